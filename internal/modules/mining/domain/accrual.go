package domain

import (
	"fmt"
	"strconv"
	"strings"

	apperrors "minesync/internal/platform/errors"
)

// UnitsPerCoin fixes settlement precision at 8 fractional digits.
const UnitsPerCoin = 100_000_000

// Amount counts 1e-8 units so settlement never touches floating point.
type Amount int64

func (a Amount) String() string {
	sign := ""
	v := int64(a)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%08d", sign, v/UnitsPerCoin, v%UnitsPerCoin)
}

func (a Amount) Positive() bool { return a > 0 }

func ParseAmount(raw string) (Amount, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("%w: empty amount", apperrors.ErrInvalidInput)
	}
	neg := strings.HasPrefix(raw, "-")
	raw = strings.TrimPrefix(raw, "-")
	whole, frac, _ := strings.Cut(raw, ".")
	if len(frac) > 8 {
		return 0, fmt.Errorf("%w: amount %q has more than 8 decimals", apperrors.ErrInvalidInput, raw)
	}
	if whole == "" {
		whole = "0"
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: amount %q", apperrors.ErrInvalidInput, raw)
	}
	var f int64
	if frac != "" {
		f, err = strconv.ParseInt(frac+strings.Repeat("0", 8-len(frac)), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: amount %q", apperrors.ErrInvalidInput, raw)
		}
	}
	v := w*UnitsPerCoin + f
	if neg {
		v = -v
	}
	return Amount(v), nil
}

// DefaultRate is 0.00000001 per active second.
const DefaultRate Amount = 1

// DefaultPrimaryCap is the most active seconds a single session can settle.
const DefaultPrimaryCap int64 = 86400

// Accrual maps active seconds to earnings at a fixed per-second rate.
// Intensity is recorded on the session but does not scale the rate.
type Accrual struct {
	RatePerSecond Amount
	PrimaryCap    int64
}

func NewAccrual(rate Amount) Accrual {
	if rate <= 0 {
		rate = DefaultRate
	}
	return Accrual{RatePerSecond: rate, PrimaryCap: DefaultPrimaryCap}
}

// WithPrimaryCap returns a copy settling at most seconds active seconds; non-positive
// values keep the default.
func (a Accrual) WithPrimaryCap(seconds int64) Accrual {
	if seconds > 0 {
		a.PrimaryCap = seconds
	}
	return a
}

// Billable clamps active seconds to [0, PrimaryCap].
func (a Accrual) Billable(activeSeconds int64) int64 {
	limit := a.PrimaryCap
	if limit <= 0 {
		limit = DefaultPrimaryCap
	}
	return max(0, min(activeSeconds, limit))
}

func (a Accrual) Earnings(activeSeconds int64, _ int) Amount {
	if activeSeconds <= 0 {
		return 0
	}
	rate := a.RatePerSecond
	if rate <= 0 {
		rate = DefaultRate
	}
	return Amount(activeSeconds) * rate
}

// ProjectedDaily extrapolates earned over duration seconds to a 24h day.
func ProjectedDaily(earned Amount, durationSeconds int64) Amount {
	if durationSeconds <= 0 || earned <= 0 {
		return 0
	}
	return Amount(int64(earned) * 86400 / durationSeconds)
}
