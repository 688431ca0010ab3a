package invoicing

import (
	"context"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/angelmondragon/smartbill-sync/pkg/config"
	pkgerrors "github.com/angelmondragon/smartbill-sync/pkg/errors"
)

// Settings are the provider settings of the store. JSON names follow the app
// settings schema the store administrators fill in.
type Settings struct {
	Username             string `json:"smarbillUsername" validate:"required"`
	APIToken             string `json:"smarbillApiToken" validate:"required"`
	VatCode              string `json:"smarbillVatCode" validate:"required"`
	SeriesName           string `json:"smarbillSeriesName" validate:"required"`
	DefaultVATPercentage string `json:"smartbillDefaultVATPercentage"`
	UseProductTaxValue   bool   `json:"useVtexProductTaxValue"`
	InvoiceShippingCost  bool   `json:"invoiceShippingCost"`
	ShippingProductCode  string `json:"invoiceShippingProductCode"`
	ShippingProductName  string `json:"invoiceShippingProductName"`
}

var settingsValidator = newSettingsValidator()

func newSettingsValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

// Validate reports every missing required setting in a single validation error.
func (s Settings) Validate() error {
	trimmed := s
	trimmed.Username = strings.TrimSpace(s.Username)
	trimmed.APIToken = strings.TrimSpace(s.APIToken)
	trimmed.VatCode = strings.TrimSpace(s.VatCode)
	trimmed.SeriesName = strings.TrimSpace(s.SeriesName)

	err := settingsValidator.Struct(trimmed)
	if err == nil {
		return nil
	}
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid smartbill settings")
	}
	missing := make([]string, 0, len(errs))
	details := make(map[string]any, len(errs))
	for _, fe := range errs {
		missing = append(missing, fe.Field())
		details[fe.Field()] = "can't be blank"
	}
	sort.Strings(missing)
	details["missing"] = missing
	return pkgerrors.New(pkgerrors.CodeValidation, "smartbill settings incomplete: "+strings.Join(missing, ", ")).WithDetails(details)
}

// StaticSettings serves settings loaded once from the environment.
type StaticSettings struct {
	settings Settings
}

// NewStaticSettings maps the SmartBill configuration into Settings.
func NewStaticSettings(cfg config.SmartBillConfig) *StaticSettings {
	return &StaticSettings{settings: Settings{
		Username:             cfg.Username,
		APIToken:             cfg.APIToken,
		VatCode:              cfg.VatCode,
		SeriesName:           cfg.SeriesName,
		DefaultVATPercentage: cfg.DefaultVATPercentage,
		UseProductTaxValue:   cfg.UseProductTaxValue,
		InvoiceShippingCost:  cfg.InvoiceShippingCost,
		ShippingProductCode:  cfg.ShippingProductCode,
		ShippingProductName:  cfg.ShippingProductName,
	}}
}

func (s *StaticSettings) Settings(context.Context) (Settings, error) {
	return s.settings, nil
}
