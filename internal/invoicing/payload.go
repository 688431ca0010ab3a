package invoicing

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/smartbill-sync/pkg/errors"
	"github.com/angelmondragon/smartbill-sync/pkg/smartbill"
	"github.com/angelmondragon/smartbill-sync/pkg/vtex"
)

const (
	issueDateLayout       = "2006-01-02"
	defaultCurrency       = "RON"
	fallbackVATPercentage = 19
)

// AddressForm is the optional billing address submitted with an invoicing
// request. Empty fields fall back to the order's shipping address.
type AddressForm struct {
	CorporateAddress string `json:"corporateAddress" validate:"omitempty,max=255"`
	City             string `json:"city" validate:"omitempty,max=128"`
	County           string `json:"county" validate:"omitempty,max=128"`
}

// Builder maps a priced order into a provider invoice.
type Builder struct {
	customers     CustomerRegistry
	provider      Provider
	country       string
	measuringUnit string
	now           func() time.Time
}

type BuilderParams struct {
	Customers     CustomerRegistry
	Provider      Provider
	Country       string
	MeasuringUnit string
	Now           func() time.Time
}

func NewBuilder(params BuilderParams) *Builder {
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Builder{
		customers:     params.Customers,
		provider:      params.Provider,
		country:       params.Country,
		measuringUnit: params.MeasuringUnit,
		now:           now,
	}
}

// Build validates settings before any remote call, then resolves the client,
// fetches the tax table once and emits one product per item followed by the
// optional shipping line.
func (b *Builder) Build(ctx context.Context, settings Settings, priced *PricedOrder, form *AddressForm) (*smartbill.Invoice, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if priced == nil || priced.Order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order is required")
	}

	client, err := b.buildClient(ctx, priced.Order, form)
	if err != nil {
		return nil, err
	}

	taxes, err := b.provider.TaxTable(ctx, settings.VatCode)
	if err != nil {
		return nil, err
	}

	defaultVAT, ok := ParsePercentage(settings.DefaultVATPercentage)
	if !ok {
		defaultVAT = decimal.NewFromInt(fallbackVATPercentage)
	}
	currency := priced.Order.StorePreferencesData.CurrencyCode
	if currency == "" {
		currency = defaultCurrency
	}

	products := make([]smartbill.Product, 0, len(priced.Items)+1)
	for _, item := range priced.Items {
		pct := itemVATPercentage(item.LineItem, defaultVAT, settings.UseProductTaxValue)
		products = append(products, smartbill.Product{
			Code:              productCode(item.LineItem),
			Currency:          currency,
			IsTaxIncluded:     true,
			MeasuringUnitName: b.measuringUnit,
			Name:              item.Name,
			Price:             smartbill.NewNumber(item.UnitPrice),
			Quantity:          item.Quantity,
			TaxName:           ResolveTaxName(taxes, pct),
			TaxPercentage:     smartbill.NewNumber(pct),
		})
	}

	if settings.InvoiceShippingCost && priced.ShippingTotal.IsPositive() {
		products = append(products, smartbill.Product{
			Code:              settings.ShippingProductCode,
			Currency:          currency,
			IsTaxIncluded:     true,
			MeasuringUnitName: b.measuringUnit,
			Name:              settings.ShippingProductName,
			Price:             smartbill.NewNumber(priced.ShippingTotal),
			Quantity:          1,
			TaxName:           ResolveTaxName(taxes, defaultVAT),
			TaxPercentage:     smartbill.NewNumber(defaultVAT),
			IsService:         true,
		})
	}

	return &smartbill.Invoice{
		Client:         client,
		CompanyVatCode: strings.TrimSpace(settings.VatCode),
		IssueDate:      b.now().UTC().Format(issueDateLayout),
		SeriesName:     strings.TrimSpace(settings.SeriesName),
		Products:       products,
	}, nil
}

func (b *Builder) buildClient(ctx context.Context, order *vtex.Order, form *AddressForm) (smartbill.InvoiceClient, error) {
	profile := order.ClientProfileData
	shipping := order.ShippingData.Address

	client := smartbill.InvoiceClient{
		Name:    strings.TrimSpace(profile.LastName + " " + profile.FirstName),
		Address: strings.TrimSpace(shipping.Street + " " + shipping.Number),
		City:    shipping.City,
		County:  shipping.State,
		Country: b.country,
		Email:   profile.Email,
	}

	if b.customers != nil {
		customers, err := b.customers.FindByProfileID(ctx, profile.UserProfileID)
		if err != nil {
			return smartbill.InvoiceClient{}, err
		}
		for _, c := range customers {
			if c.Email != "" {
				client.Email = c.Email
				break
			}
		}
	}

	if profile.IsCorporate {
		if name := firstNonEmpty(profile.TradeName, profile.CorporateName); name != "" {
			client.Name = name
		}
		client.VatCode = profile.CorporateDocument
		client.RegCom = profile.StateInscription
	}

	if form != nil {
		if v := strings.TrimSpace(form.CorporateAddress); v != "" {
			client.Address = v
		}
		if v := strings.TrimSpace(form.City); v != "" {
			client.City = v
		}
		if v := strings.TrimSpace(form.County); v != "" {
			client.County = v
		}
	}
	return client, nil
}

func productCode(item vtex.LineItem) string {
	return firstNonEmpty(item.UniqueID, item.RefID, item.ID)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
