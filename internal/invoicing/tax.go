package invoicing

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/smartbill-sync/pkg/smartbill"
	"github.com/angelmondragon/smartbill-sync/pkg/vtex"
)

// ResolveTaxName returns the name of the tax table entry whose percentage
// equals the integer part of pct. Non-integer table entries never match.
// An empty name means no entry matched.
func ResolveTaxName(taxes []smartbill.Tax, pct decimal.Decimal) string {
	want := pct.Truncate(0)
	for _, tax := range taxes {
		if tax.Percentage.Equal(tax.Percentage.Truncate(0)) && tax.Percentage.Equal(want) {
			return tax.Name
		}
	}
	return ""
}

// ParsePercentage parses a VAT percentage setting or tax code.
func ParsePercentage(raw string) (decimal.Decimal, bool) {
	trimmed := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "%"))
	if trimmed == "" {
		return decimal.Zero, false
	}
	pct, err := decimal.NewFromString(trimmed)
	if err != nil || pct.IsNegative() {
		return decimal.Zero, false
	}
	return pct, true
}

// itemVATPercentage is the item's tax code when it parses, the default
// otherwise. With useTags set, the last percentual price tag wins.
func itemVATPercentage(item vtex.LineItem, fallback decimal.Decimal, useTags bool) decimal.Decimal {
	pct := fallback
	if parsed, ok := ParsePercentage(item.TaxCode); ok {
		pct = parsed
	}
	if !useTags {
		return pct
	}
	for _, tag := range item.PriceTags {
		if tag.IsPercentual {
			pct = tag.Value
		}
	}
	return pct
}
