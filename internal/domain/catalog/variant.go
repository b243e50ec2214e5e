package catalog

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/erp/catalog-engine/internal/domain/shared"
	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Variant is a purchasable option of a product, identified by its SKU
type Variant struct {
	SKU                       int64
	Slug                      string
	Price                     decimal.Decimal
	OldPrice                  *decimal.Decimal
	Currency                  string
	PriceInDefaultCurrency    decimal.Decimal
	OldPriceInDefaultCurrency *decimal.Decimal
	Enabled                   bool
	Media                     []string
	Attributes                []AttributeSelection
	SalesCount                int64
	Position                  int
}

// Validate checks the variant's own fields
func (v *Variant) Validate() error {
	if !IsValidSlug(v.Slug) {
		return shared.NewValidationError("invalid slug %q", v.Slug)
	}
	if v.Price.IsNegative() {
		return shared.NewValidationError("price of %q cannot be negative", v.Slug)
	}
	if v.OldPrice != nil && v.OldPrice.IsNegative() {
		return shared.NewValidationError("old price of %q cannot be negative", v.Slug)
	}
	if strings.TrimSpace(v.Currency) == "" {
		return shared.NewValidationError("currency of %q is required", v.Slug)
	}
	return nil
}

// ApplyRate recomputes the default-currency prices from the given rate
func (v *Variant) ApplyRate(rate decimal.Decimal) {
	v.PriceInDefaultCurrency = ConvertToDefault(v.Price, rate)
	if v.OldPrice == nil {
		v.OldPriceInDefaultCurrency = nil
		return
	}
	old := ConvertToDefault(*v.OldPrice, rate)
	v.OldPriceInDefaultCurrency = &old
}

// ConvertToDefault converts an amount to the default currency, rounding up
// to a whole unit
func ConvertToDefault(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate).Ceil()
}

// IsValidSlug reports whether s is lowercase ASCII words joined by single dashes
func IsValidSlug(s string) bool {
	return slugPattern.MatchString(s)
}

// NormalizeSlug lowercases, strips diacritics and collapses every run of
// non-alphanumerics into a single dash
func NormalizeSlug(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
