package invoicing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/smartbill-sync/pkg/errors"
	"github.com/angelmondragon/smartbill-sync/pkg/vtex"
)

func TestReconcileMergesAdditionIntoMatchingItem(t *testing.T) {
	items := []vtex.LineItem{{ID: "1", SellingPrice: 10, Quantity: 2}}
	records := []vtex.ChangeRecord{{ItemsAdded: []vtex.ChangeItem{{ID: "1", Quantity: 3, Price: 10}}}}
	catalog := &fakeCatalog{}

	out, err := NewReconciler(catalog).Reconcile(context.Background(), items, records)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 5, out[0].Quantity)
	assert.Equal(t, 2, items[0].Quantity, "source items must not be mutated")
	assert.Empty(t, catalog.calls)
}

func TestReconcileRemovingFullQuantityDropsItem(t *testing.T) {
	items := []vtex.LineItem{
		{ID: "2", SellingPrice: 5, Quantity: 4},
		{ID: "3", SellingPrice: 7, Quantity: 1},
	}
	records := []vtex.ChangeRecord{{ItemsRemoved: []vtex.ChangeItem{{ID: "2", Quantity: 4, Price: 5}}}}

	out, err := NewReconciler(nil).Reconcile(context.Background(), items, records)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "3", out[0].ID)
	assert.Len(t, items, 2)
	assert.Equal(t, "2", items[0].ID, "source items must not be mutated")
}

func TestReconcilePartialRemovalKeepsItem(t *testing.T) {
	items := []vtex.LineItem{{ID: "2", SellingPrice: 5, Quantity: 4}}
	records := []vtex.ChangeRecord{{ItemsRemoved: []vtex.ChangeItem{{ID: "2", Quantity: 1, Price: 5}}}}

	out, err := NewReconciler(nil).Reconcile(context.Background(), items, records)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 3, out[0].Quantity)
}

func TestReconcileAppliesAdditionsBeforeRemovals(t *testing.T) {
	items := []vtex.LineItem{{ID: "1", SellingPrice: 10, Quantity: 1}}
	records := []vtex.ChangeRecord{{
		ItemsRemoved: []vtex.ChangeItem{{ID: "1", Quantity: 3, Price: 10}},
		ItemsAdded:   []vtex.ChangeItem{{ID: "1", Quantity: 2, Price: 10}},
	}}

	out, err := NewReconciler(nil).Reconcile(context.Background(), items, records)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestReconcileAppliesRecordsInOrder(t *testing.T) {
	items := []vtex.LineItem{{ID: "1", SellingPrice: 10, Quantity: 1}}
	records := []vtex.ChangeRecord{
		{ItemsRemoved: []vtex.ChangeItem{{ID: "1", Quantity: 1, Price: 10}}},
		{ItemsAdded: []vtex.ChangeItem{{ID: "1", Quantity: 2, Price: 10}}},
	}
	catalog := &fakeCatalog{}

	out, err := NewReconciler(catalog).Reconcile(context.Background(), items, records)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 2, out[0].Quantity)
	assert.Equal(t, []string{"1"}, catalog.calls, "item removed by the first record is re-synthesized by the second")
}

func TestReconcileSynthesizesItemAtDifferentPrice(t *testing.T) {
	items := []vtex.LineItem{{UniqueID: "u1", ID: "1", SellingPrice: 10, Quantity: 1}}
	records := []vtex.ChangeRecord{{ItemsAdded: []vtex.ChangeItem{{ID: "1", Quantity: 1, Price: 12}}}}
	sku := &vtex.SKU{ProductID: 100, ProductName: "Mug", SkuName: "Red", ImageURL: "http://img/mug.png"}
	sku.AlternateIDs.RefID = "MUG-R"
	catalog := &fakeCatalog{skus: map[string]*vtex.SKU{"1": sku}}

	out, err := NewReconciler(catalog).Reconcile(context.Background(), items, records)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 1, out[0].Quantity)

	added := out[1]
	assert.Equal(t, "MUG-R", added.UniqueID)
	assert.Equal(t, "100", added.ProductID)
	assert.Equal(t, "Mug Red", added.Name)
	assert.Equal(t, "http://img/mug.png", added.ImageURL)
	assert.Equal(t, int64(12), added.SellingPrice)
	assert.Equal(t, 1, added.Quantity)
	assert.Empty(t, added.TaxCode)
}

func TestReconcileSyntheticCodeIsStable(t *testing.T) {
	records := []vtex.ChangeRecord{{ItemsAdded: []vtex.ChangeItem{{ID: "55", Name: "Cup", Quantity: 1, Price: 9}}}}

	first, err := NewReconciler(&fakeCatalog{skus: map[string]*vtex.SKU{"55": {}}}).Reconcile(context.Background(), nil, records)
	require.NoError(t, err)
	second, err := NewReconciler(&fakeCatalog{skus: map[string]*vtex.SKU{"55": {}}}).Reconcile(context.Background(), nil, records)
	require.NoError(t, err)

	require.Len(t, first, 1)
	assert.Equal(t, "sku-55", first[0].UniqueID)
	assert.Equal(t, first[0].UniqueID, second[0].UniqueID)
	assert.Equal(t, "Cup", first[0].Name, "change name is used when the catalog has none")
	assert.Equal(t, "55", first[0].ProductID)
}

func TestReconcileRemovalWithoutMatchIsNoop(t *testing.T) {
	items := []vtex.LineItem{{ID: "1", SellingPrice: 10, Quantity: 2}}
	records := []vtex.ChangeRecord{{ItemsRemoved: []vtex.ChangeItem{
		{ID: "9", Quantity: 1, Price: 10},
		{ID: "1", Quantity: 1, Price: 11},
	}}}

	out, err := NewReconciler(nil).Reconcile(context.Background(), items, records)
	require.NoError(t, err)
	assert.Equal(t, items, out)
}

func TestReconcileRejectsRemovalExceedingQuantity(t *testing.T) {
	items := []vtex.LineItem{{ID: "1", SellingPrice: 10, Quantity: 2}}
	records := []vtex.ChangeRecord{{ItemsRemoved: []vtex.ChangeItem{{ID: "1", Quantity: 3, Price: 10}}}}

	_, err := NewReconciler(nil).Reconcile(context.Background(), items, records)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestReconcileRejectsNonPositiveQuantities(t *testing.T) {
	items := []vtex.LineItem{{ID: "1", SellingPrice: 10, Quantity: 2}}

	_, err := NewReconciler(nil).Reconcile(context.Background(), items, []vtex.ChangeRecord{
		{ItemsAdded: []vtex.ChangeItem{{ID: "1", Quantity: 0, Price: 10}}},
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = NewReconciler(nil).Reconcile(context.Background(), items, []vtex.ChangeRecord{
		{ItemsRemoved: []vtex.ChangeItem{{ID: "1", Quantity: -1, Price: 10}}},
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestReconcilePropagatesCatalogFailure(t *testing.T) {
	catalogErr := pkgerrors.New(pkgerrors.CodeNotFound, "sku not found")
	records := []vtex.ChangeRecord{{ItemsAdded: []vtex.ChangeItem{{ID: "404", Quantity: 1, Price: 1}}}}

	_, err := NewReconciler(&fakeCatalog{err: catalogErr}).Reconcile(context.Background(), nil, records)
	require.Error(t, err)
	assert.True(t, errors.Is(err, catalogErr))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestReconcileWithoutCatalogFailsOnSynthesis(t *testing.T) {
	records := []vtex.ChangeRecord{{ItemsAdded: []vtex.ChangeItem{{ID: "1", Quantity: 1, Price: 1}}}}

	_, err := NewReconciler(nil).Reconcile(context.Background(), nil, records)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInternal))
}
