package invoicing

import (
	"context"
	"io"
	"time"

	"github.com/angelmondragon/smartbill-sync/pkg/smartbill"
	"github.com/angelmondragon/smartbill-sync/pkg/vtex"
)

// OrderStore reads orders and records invoices on the order-management platform.
type OrderStore interface {
	GetOrder(ctx context.Context, orderID string) (*vtex.Order, error)
	PostInvoice(ctx context.Context, orderID string, record vtex.InvoiceRecord) error
}

// CustomerRegistry looks up customer documents by profile id.
type CustomerRegistry interface {
	FindByProfileID(ctx context.Context, userProfileID string) ([]vtex.Customer, error)
}

// Catalog resolves SKU data for items added after checkout.
type Catalog interface {
	SkuWithVariations(ctx context.Context, skuID string) (*vtex.SKU, error)
}

// Provider is the invoicing provider API.
type Provider interface {
	TaxTable(ctx context.Context, vatCode string) ([]smartbill.Tax, error)
	CreateInvoice(ctx context.Context, invoice *smartbill.Invoice) (*smartbill.InvoiceResponse, error)
	InvoicePDF(ctx context.Context, vatCode, seriesName, number string) (io.ReadCloser, error)
}

// SettingsSource supplies the provider settings for a request.
type SettingsSource interface {
	Settings(ctx context.Context) (Settings, error)
}

// InvoiceGuard serializes invoicing per order and remembers issued invoices.
// It is satisfied by the redis client.
type InvoiceGuard interface {
	AcquireInvoiceLock(ctx context.Context, orderID, holder string, ttl time.Duration) (bool, error)
	ReleaseInvoiceLock(ctx context.Context, orderID, holder string) error
	MarkInvoiced(ctx context.Context, orderID, record string, ttl time.Duration) error
	InvoicedRecord(ctx context.Context, orderID string) (string, error)
}

type noopGuard struct{}

func (noopGuard) AcquireInvoiceLock(context.Context, string, string, time.Duration) (bool, error) {
	return true, nil
}

func (noopGuard) ReleaseInvoiceLock(context.Context, string, string) error { return nil }

func (noopGuard) MarkInvoiced(context.Context, string, string, time.Duration) error { return nil }

func (noopGuard) InvoicedRecord(context.Context, string) (string, error) { return "", nil }
