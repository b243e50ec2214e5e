package catalog

import (
	"strings"
	"time"

	"github.com/erp/catalog-engine/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Currency is an exchange rate into the default currency
// The default currency has rate 1.
type Currency struct {
	Code      string
	Rate      decimal.Decimal
	IsDefault bool
	UpdatedAt time.Time
}

// NewCurrency validates and normalizes a currency rate
func NewCurrency(code string, rate decimal.Decimal) (*Currency, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	if len(code) != 3 {
		return nil, shared.NewValidationError("currency code must have 3 letters, got %q", code)
	}
	if !rate.IsPositive() {
		return nil, shared.NewValidationError("rate of %s must be positive", code)
	}
	return &Currency{Code: code, Rate: rate, UpdatedAt: time.Now()}, nil
}

// Reprice applies a rate to every variant of p quoted in code.
// Returns true if any default-currency price changed.
func (p *Product) Reprice(code string, rate decimal.Decimal) bool {
	changed := false
	for i := range p.Variants {
		v := &p.Variants[i]
		if v.Currency != code {
			continue
		}
		beforePrice := v.PriceInDefaultCurrency
		beforeOld := v.OldPriceInDefaultCurrency
		v.ApplyRate(rate)
		if !beforePrice.Equal(v.PriceInDefaultCurrency) || !equalOptional(beforeOld, v.OldPriceInDefaultCurrency) {
			changed = true
		}
	}
	return changed
}

func equalOptional(a, b *decimal.Decimal) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
