package invoicing

import (
	"context"
	"fmt"
	"strconv"

	pkgerrors "github.com/angelmondragon/smartbill-sync/pkg/errors"
	"github.com/angelmondragon/smartbill-sync/pkg/vtex"
)

// Reconciler applies post-checkout change records to an order's items.
type Reconciler struct {
	catalog Catalog
}

func NewReconciler(catalog Catalog) *Reconciler {
	return &Reconciler{catalog: catalog}
}

// Reconcile returns a new item list with every change record applied in
// order. Within a record all additions are applied before any removal.
// Items match a change entry on both id and selling price. The input slice
// is never modified.
func (r *Reconciler) Reconcile(ctx context.Context, items []vtex.LineItem, records []vtex.ChangeRecord) ([]vtex.LineItem, error) {
	working := make([]vtex.LineItem, len(items))
	copy(working, items)

	for i, record := range records {
		for _, added := range record.ItemsAdded {
			next, err := r.applyAddition(ctx, working, added)
			if err != nil {
				return nil, fmt.Errorf("change record %d: %w", i, err)
			}
			working = next
		}
		for _, removed := range record.ItemsRemoved {
			next, err := applyRemoval(working, removed)
			if err != nil {
				return nil, fmt.Errorf("change record %d: %w", i, err)
			}
			working = next
		}
	}
	return working, nil
}

func (r *Reconciler) applyAddition(ctx context.Context, items []vtex.LineItem, added vtex.ChangeItem) ([]vtex.LineItem, error) {
	if added.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "added quantity must be positive").
			WithDetails(map[string]any{"id": added.ID, "quantity": added.Quantity})
	}
	if idx := findItem(items, added.ID, added.Price); idx >= 0 {
		items[idx].Quantity += added.Quantity
		return items, nil
	}

	item, err := r.synthesize(ctx, added)
	if err != nil {
		return nil, err
	}
	return append(items, item), nil
}

// synthesize builds a line item for a product that was not on the order at
// checkout. Its tax code is left empty so the default VAT applies.
func (r *Reconciler) synthesize(ctx context.Context, added vtex.ChangeItem) (vtex.LineItem, error) {
	if r == nil || r.catalog == nil {
		return vtex.LineItem{}, pkgerrors.New(pkgerrors.CodeInternal, "catalog not configured")
	}
	sku, err := r.catalog.SkuWithVariations(ctx, added.ID)
	if err != nil {
		return vtex.LineItem{}, err
	}

	name := sku.DisplayName()
	if name == "" {
		name = added.Name
	}
	productID := added.ID
	if sku.ProductID != 0 {
		productID = strconv.Itoa(sku.ProductID)
	}

	return vtex.LineItem{
		UniqueID:     syntheticCode(added.ID, sku.AlternateIDs.RefID),
		ID:           added.ID,
		ProductID:    productID,
		RefID:        sku.AlternateIDs.RefID,
		Name:         name,
		ImageURL:     sku.Image(),
		Price:        added.Price,
		ListPrice:    added.Price,
		SellingPrice: added.Price,
		Quantity:     added.Quantity,
	}, nil
}

// syntheticCode is the invoice line code of an added product: its catalog
// reference when it has one, its SKU id otherwise.
func syntheticCode(skuID, refID string) string {
	if refID != "" {
		return refID
	}
	return "sku-" + skuID
}

func applyRemoval(items []vtex.LineItem, removed vtex.ChangeItem) ([]vtex.LineItem, error) {
	if removed.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "removed quantity must be positive").
			WithDetails(map[string]any{"id": removed.ID, "quantity": removed.Quantity})
	}
	idx := findItem(items, removed.ID, removed.Price)
	if idx < 0 {
		return items, nil
	}

	remaining := items[idx].Quantity - removed.Quantity
	switch {
	case remaining > 0:
		items[idx].Quantity = remaining
		return items, nil
	case remaining == 0:
		return append(items[:idx], items[idx+1:]...), nil
	default:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "removed quantity exceeds item quantity").
			WithDetails(map[string]any{
				"id":        removed.ID,
				"quantity":  items[idx].Quantity,
				"removed":   removed.Quantity,
				"unitPrice": removed.Price,
			})
	}
}

func findItem(items []vtex.LineItem, id string, price int64) int {
	for i := range items {
		if items[i].ID == id && items[i].SellingPrice == price {
			return i
		}
	}
	return -1
}
