package quote

import (
	"context"
	"fmt"
	"time"

	"github.com/STTM-NSU/paper-trading/internal/config"
	"github.com/STTM-NSU/paper-trading/internal/logger"
	"github.com/STTM-NSU/paper-trading/internal/model"
	"github.com/shopspring/decimal"
	"go.uber.org/ratelimit"
	"resty.dev/v3"
)

const (
	_finnhubQuoteURL = "/quote"
)

type finnhubQuote struct {
	Current       decimal.Decimal  `json:"c"`
	Change        *decimal.Decimal `json:"d"`
	ChangePercent *decimal.Decimal `json:"dp"`
	PreviousClose decimal.Decimal  `json:"pc"`
	Timestamp     int64            `json:"t"`
}

const _percentPlaces = 4

// daily fills the move against the previous close, deriving what finnhub left out.
func (q *finnhubQuote) daily(out *model.Quote) {
	if !q.PreviousClose.IsPositive() {
		return
	}
	pc := q.PreviousClose
	out.PreviousClose = &pc

	change := q.Current.Sub(pc)
	if q.Change != nil {
		change = *q.Change
	}
	out.Change = &change

	percent := change.Mul(decimal.NewFromInt(100)).DivRound(pc, _percentPlaces)
	if q.ChangePercent != nil {
		percent = *q.ChangePercent
	}
	out.ChangePercent = &percent
}

type finnhubError struct {
	Error string `json:"error"`
}

type FinnhubSource struct {
	c   *resty.Client
	cfg config.FinnhubConfig

	rateLimiter ratelimit.Limiter

	logger logger.Logger
}

func NewFinnhubSource(cfg config.FinnhubConfig, logger logger.Logger) *FinnhubSource {
	client := resty.New().
		SetLogger(logger).
		SetBaseURL(cfg.Address).
		SetTimeout(cfg.Timeout)

	return &FinnhubSource{
		c:           client,
		cfg:         cfg,
		rateLimiter: ratelimit.New(cfg.RequestsPerMinute, ratelimit.Per(1*time.Minute)),
		logger:      logger,
	}
}

// curl "https://finnhub.io/api/v1/quote?symbol=AAPL&token=..."
func (s *FinnhubSource) GetQuote(ctx context.Context, symbol string) (model.Quote, error) {
	if err := ctx.Err(); err != nil {
		return model.Quote{}, err
	}
	s.rateLimiter.Take()

	req := s.c.R().
		SetQueryParams(map[string]string{
			"symbol": symbol,
			"token":  s.cfg.Token,
		}).
		SetResult(&finnhubQuote{}).
		SetError(&finnhubError{}).
		SetContext(ctx)

	resp, err := req.Get(_finnhubQuoteURL)
	if err != nil {
		return model.Quote{}, fmt.Errorf("%w: can't send quote request for %s", err, symbol)
	}
	defer resp.Body.Close()

	s.logger.Debugf("got quote response for %s status: %s, %s", symbol, resp.Status(), resp.Duration())

	if resp.IsError() {
		message := resp.Status()
		if response, ok := resp.Error().(*finnhubError); ok && response.Error != "" {
			message = response.Error
		}
		return model.Quote{}, fmt.Errorf("%w: finnhub %s: %s", model.ErrQuoteUnavailable, symbol, message)
	}
	if !resp.IsSuccess() {
		return model.Quote{}, fmt.Errorf("finnhub quote unexpected request error: %s", resp.Status())
	}

	q := resp.Result().(*finnhubQuote)
	// unknown symbols come back as 200 with zeroes
	if !q.Current.IsPositive() {
		return model.Quote{}, fmt.Errorf("%w: finnhub has no price for %s", model.ErrQuoteUnavailable, symbol)
	}

	asOf := time.Now().UTC()
	if q.Timestamp > 0 {
		asOf = time.Unix(q.Timestamp, 0).UTC()
	}

	res := model.Quote{
		Symbol: symbol,
		Price:  q.Current,
		AsOf:   asOf,
	}
	q.daily(&res)
	return res, nil
}
