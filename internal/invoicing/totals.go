package invoicing

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/smartbill-sync/pkg/vtex"
)

// PricedOrder is an order whose reconciled items carry provider-facing
// decimal prices.
type PricedOrder struct {
	Order         *vtex.Order
	Items         []PricedItem
	ShippingTotal decimal.Decimal
}

// PricedItem pairs a line item with its tax-inclusive unit price.
type PricedItem struct {
	vtex.LineItem
	UnitPrice decimal.Decimal
}

// Unscale converts a fixed-point platform amount to currency units.
func Unscale(amount, multiplier int64) decimal.Decimal {
	if multiplier <= 0 {
		multiplier = 1
	}
	return decimal.NewFromInt(amount).Div(decimal.NewFromInt(multiplier))
}

// PriceOrder computes unit prices for the reconciled items and the shipping
// total of the order.
func PriceOrder(order *vtex.Order, items []vtex.LineItem, multiplier int64, shippingTotalID string) *PricedOrder {
	priced := make([]PricedItem, 0, len(items))
	for _, item := range items {
		priced = append(priced, PricedItem{
			LineItem:  item,
			UnitPrice: Unscale(item.SellingPrice+item.Tax, multiplier),
		})
	}
	return &PricedOrder{
		Order:         order,
		Items:         priced,
		ShippingTotal: Unscale(order.TotalValue(shippingTotalID), multiplier),
	}
}
