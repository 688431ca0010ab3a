package invoicing

import (
	"context"
	"io"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/smartbill-sync/pkg/errors"
	"github.com/angelmondragon/smartbill-sync/pkg/security"
)

// IssuedInvoice is the provider's answer together with the public token
// that identifies the invoice in URLs.
type IssuedInvoice struct {
	Number          string    `json:"number"`
	Series          string    `json:"series"`
	EncryptedNumber string    `json:"encryptedNumber"`
	IssuedAt        time.Time `json:"issuedAt"`
}

// Issuer submits invoices to the provider and serves their documents.
type Issuer struct {
	builder  *Builder
	provider Provider
	now      func() time.Time
}

func NewIssuer(builder *Builder, provider Provider, now func() time.Time) *Issuer {
	if now == nil {
		now = time.Now
	}
	return &Issuer{builder: builder, provider: provider, now: now}
}

// Issue builds the payload, creates the invoice and encrypts its number with
// the provider API token.
func (i *Issuer) Issue(ctx context.Context, settings Settings, priced *PricedOrder, form *AddressForm) (*IssuedInvoice, error) {
	payload, err := i.builder.Build(ctx, settings, priced, form)
	if err != nil {
		return nil, err
	}

	resp, err := i.provider.CreateInvoice(ctx, payload)
	if err != nil {
		return nil, err
	}

	encrypted, err := security.EncryptNumber(settings.APIToken, resp.Number)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encrypt invoice number")
	}

	series := resp.Series
	if series == "" {
		series = payload.SeriesName
	}
	return &IssuedInvoice{
		Number:          resp.Number,
		Series:          series,
		EncryptedNumber: encrypted,
		IssuedAt:        i.now().UTC(),
	}, nil
}

// Document decrypts a public invoice token and streams the rendered PDF.
// The caller must close the returned reader.
func (i *Issuer) Document(ctx context.Context, settings Settings, token string) (io.ReadCloser, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice token is required")
	}

	number, err := security.DecryptNumber(settings.APIToken, token)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "invoice not found")
	}
	return i.provider.InvoicePDF(ctx, settings.VatCode, settings.SeriesName, number)
}
