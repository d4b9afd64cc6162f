package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/STTM-NSU/paper-trading/internal/model"
)

type Period string

const (
	Daily   Period = "daily"
	Weekly  Period = "weekly"
	Monthly Period = "monthly"
	Yearly  Period = "yearly"
	All     Period = "all"
)

func ParsePeriod(s string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return Daily, nil
	case Daily, Weekly, Monthly, Yearly, All:
		return p, nil
	default:
		return "", fmt.Errorf("%w: unknown history filter %q", model.ErrInvalidInput, s)
	}
}

// Since is the start of the window ending at now; All has no start.
func (p Period) Since(now time.Time) time.Time {
	switch p {
	case Daily:
		return now.Add(-24 * time.Hour)
	case Weekly:
		return now.AddDate(0, 0, -7)
	case Monthly:
		return now.AddDate(0, -1, 0)
	case Yearly:
		return now.AddDate(-1, 0, 0)
	default:
		return time.Time{}
	}
}
