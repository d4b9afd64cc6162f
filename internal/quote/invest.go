package quote

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/STTM-NSU/paper-trading/internal/config"
	"github.com/STTM-NSU/paper-trading/internal/logger"
	"github.com/STTM-NSU/paper-trading/internal/model"
	"github.com/russianinvestments/invest-api-go-sdk/investgo"
	investapi "github.com/russianinvestments/invest-api-go-sdk/proto"
	"github.com/shopspring/decimal"
	"go.uber.org/ratelimit"
)

const _nanoExp int32 = -9

type lastPricer interface {
	GetLastPrices(instrumentIds []string) (*investgo.GetLastPricesResponse, error)
}

// InvestSource reads last prices from the T-Invest market data service.
// A symbol without a class code is looked up as TICKER_<class_code>.
type InvestSource struct {
	mdService lastPricer
	classCode string

	rateLimiter ratelimit.Limiter // 600 T/M

	logger logger.Logger
}

func NewInvestSource(c *investgo.Client, cfg config.InvestConfig, logger logger.Logger) *InvestSource {
	return newInvestSource(c.NewMarketDataServiceClient(), cfg, logger)
}

func newInvestSource(md lastPricer, cfg config.InvestConfig, logger logger.Logger) *InvestSource {
	return &InvestSource{
		mdService:   md,
		classCode:   cfg.ClassCode,
		rateLimiter: ratelimit.New(cfg.RequestsPerMinute, ratelimit.Per(1*time.Minute)),
		logger:      logger,
	}
}

func (s *InvestSource) instrumentID(symbol string) string {
	if strings.Contains(symbol, "_") || s.classCode == "" {
		return symbol
	}
	return symbol + "_" + s.classCode
}

func (s *InvestSource) GetQuote(ctx context.Context, symbol string) (model.Quote, error) {
	if err := ctx.Err(); err != nil {
		return model.Quote{}, err
	}
	s.rateLimiter.Take()

	id := s.instrumentID(symbol)
	resp, err := s.mdService.GetLastPrices([]string{id})
	if err != nil {
		return model.Quote{}, fmt.Errorf("%w: can't get last price for %s", err, id)
	}

	if len(resp.GetLastPrices()) == 0 {
		return model.Quote{}, fmt.Errorf("%w: empty last price for instrument %s", model.ErrQuoteUnavailable, id)
	}

	last := resp.GetLastPrices()[0]
	price := QuotationToDecimal(last.GetPrice())
	if !price.IsPositive() {
		return model.Quote{}, fmt.Errorf("%w: non-positive last price %s for instrument %s", model.ErrQuoteUnavailable, price, id)
	}

	asOf := time.Now().UTC()
	if ts := last.GetTime(); ts != nil && ts.IsValid() {
		asOf = ts.AsTime().UTC()
	}
	s.logger.Debugf("last price for %s: %s at %s", id, price, asOf)

	return model.Quote{
		Symbol: symbol,
		Price:  price,
		AsOf:   asOf,
	}, nil
}

// QuotationToDecimal converts units + nano billionths without going through float64.
func QuotationToDecimal(q *investapi.Quotation) decimal.Decimal {
	if q == nil {
		return decimal.Zero
	}
	return decimal.NewFromInt(q.GetUnits()).Add(decimal.New(int64(q.GetNano()), _nanoExp))
}
