package invoicing

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/smartbill-sync/pkg/config"
	"github.com/angelmondragon/smartbill-sync/pkg/logger"
	"github.com/angelmondragon/smartbill-sync/pkg/smartbill"
	"github.com/angelmondragon/smartbill-sync/pkg/vtex"
)

var fixedNow = time.Date(2024, 3, 9, 10, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "invoicing-test", Output: io.Discard})
}

func validSettings() Settings {
	return Settings{
		Username:             "ops@shop.ro",
		APIToken:             "api-token",
		VatCode:              "RO123",
		SeriesName:           "SHOP",
		DefaultVATPercentage: "19",
		ShippingProductCode:  "TRANSPORT",
		ShippingProductName:  "Transport",
	}
}

type staticSettings Settings

func (s staticSettings) Settings(context.Context) (Settings, error) { return Settings(s), nil }

type fakeOrders struct {
	mu        sync.Mutex
	orders    map[string]*vtex.Order
	getCalls  int
	posted    []vtex.InvoiceRecord
	postErr   error
	markOnPut bool
}

func newFakeOrders(orders ...*vtex.Order) *fakeOrders {
	f := &fakeOrders{orders: make(map[string]*vtex.Order)}
	for _, o := range orders {
		f.orders[o.OrderID] = o
	}
	return f
}

func (f *fakeOrders) GetOrder(_ context.Context, id string) (*vtex.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	order, ok := f.orders[id]
	if !ok {
		return nil, errors.New("order missing")
	}
	clone := *order
	return &clone, nil
}

func (f *fakeOrders) PostInvoice(_ context.Context, id string, record vtex.InvoiceRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.postErr != nil {
		return f.postErr
	}
	f.posted = append(f.posted, record)
	if f.markOnPut {
		f.orders[id].Status = vtex.OrderStatusInvoiced
	}
	return nil
}

type fakeCustomers struct {
	customers []vtex.Customer
	err       error
	calls     []string
}

func (f *fakeCustomers) FindByProfileID(_ context.Context, id string) ([]vtex.Customer, error) {
	f.calls = append(f.calls, id)
	return f.customers, f.err
}

type fakeCatalog struct {
	skus  map[string]*vtex.SKU
	err   error
	calls []string
}

func (f *fakeCatalog) SkuWithVariations(_ context.Context, id string) (*vtex.SKU, error) {
	f.calls = append(f.calls, id)
	if f.err != nil {
		return nil, f.err
	}
	if sku, ok := f.skus[id]; ok {
		return sku, nil
	}
	return &vtex.SKU{SkuName: "sku " + id}, nil
}

type fakeProvider struct {
	taxes       []smartbill.Tax
	number      string
	createErr   error
	taxCalls    int
	created     []*smartbill.Invoice
	pdfRequests []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		number: "0042",
		taxes: []smartbill.Tax{
			{Name: "Normala", Percentage: smartbill.NewNumber(decimal.NewFromInt(19))},
			{Name: "Redusa", Percentage: smartbill.NewNumber(decimal.NewFromInt(9))},
			{Name: "Scutita", Percentage: smartbill.NewNumber(decimal.Zero)},
		},
	}
}

func (f *fakeProvider) TaxTable(context.Context, string) ([]smartbill.Tax, error) {
	f.taxCalls++
	return f.taxes, nil
}

func (f *fakeProvider) CreateInvoice(_ context.Context, invoice *smartbill.Invoice) (*smartbill.InvoiceResponse, error) {
	f.created = append(f.created, invoice)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &smartbill.InvoiceResponse{Number: f.number, Series: invoice.SeriesName}, nil
}

func (f *fakeProvider) InvoicePDF(_ context.Context, _, _, number string) (io.ReadCloser, error) {
	f.pdfRequests = append(f.pdfRequests, number)
	return io.NopCloser(bytes.NewReader([]byte("%PDF-" + number))), nil
}

type fakeGuard struct {
	locks   map[string]string
	markers map[string]string
}

func newFakeGuard() *fakeGuard {
	return &fakeGuard{locks: make(map[string]string), markers: make(map[string]string)}
}

func (g *fakeGuard) AcquireInvoiceLock(_ context.Context, orderID, holder string, _ time.Duration) (bool, error) {
	if _, held := g.locks[orderID]; held {
		return false, nil
	}
	g.locks[orderID] = holder
	return true, nil
}

func (g *fakeGuard) ReleaseInvoiceLock(_ context.Context, orderID, holder string) error {
	if g.locks[orderID] == holder {
		delete(g.locks, orderID)
	}
	return nil
}

func (g *fakeGuard) MarkInvoiced(_ context.Context, orderID, record string, _ time.Duration) error {
	g.markers[orderID] = record
	return nil
}

func (g *fakeGuard) InvoicedRecord(_ context.Context, orderID string) (string, error) {
	return g.markers[orderID], nil
}

func sampleOrder(id string) *vtex.Order {
	return &vtex.Order{
		OrderID: id,
		Status:  "ready-for-handling",
		Value:   3880,
		Totals: []vtex.Total{
			{ID: "Items", Value: 3380},
			{ID: "Shipping", Value: 500},
		},
		Items: []vtex.LineItem{
			{UniqueID: "u-mug", ID: "1", ProductID: "10", Name: "Mug", SellingPrice: 1000, Tax: 190, Quantity: 2},
			{UniqueID: "u-book", ID: "2", ProductID: "20", Name: "Book", SellingPrice: 1000, Quantity: 1, TaxCode: "9"},
		},
		ClientProfileData: vtex.ClientProfile{
			UserProfileID: "profile-1",
			Email:         "order@shop.ro",
			FirstName:     "Ana",
			LastName:      "Pop",
		},
		ShippingData: vtex.ShippingData{Address: vtex.Address{
			Street: "Lipscani",
			Number: "5",
			City:   "Bucuresti",
			State:  "B",
		}},
		StorePreferencesData: vtex.StorePreferencesData{CurrencyCode: "RON"},
	}
}

func newTestService(t *testing.T, orders *fakeOrders, provider *fakeProvider, guard InvoiceGuard, settings Settings) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Orders:    orders,
		Customers: &fakeCustomers{},
		Catalog:   &fakeCatalog{},
		Provider:  provider,
		Settings:  staticSettings(settings),
		Guard:     guard,
		Logger:    testLogger(),
		Invoice:   configInvoice(),
		InvoiceURL: func(enc string) string {
			return "https://shop.myvtex.com/smartbill/show-invoice/" + enc
		},
		Now: fixedClock,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func configInvoice() config.InvoiceConfig {
	return config.InvoiceConfig{
		PriceMultiplier: 100,
		ShippingTotalID: "Shipping",
		Country:         "Romania",
		MeasuringUnit:   "buc",
		LockTTL:         time.Minute,
		IssuedMarkerTTL: time.Hour,
	}
}
