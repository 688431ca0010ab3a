package smartbill

import (
	"github.com/shopspring/decimal"
)

// Number is a decimal that serializes as a bare JSON number, which is what
// the SmartBill API expects for prices and percentages.
type Number struct {
	decimal.Decimal
}

// NewNumber wraps a decimal value.
func NewNumber(d decimal.Decimal) Number {
	return Number{Decimal: d}
}

func (n Number) MarshalJSON() ([]byte, error) {
	return []byte(n.Decimal.String()), nil
}

// Invoice is the body of POST /invoice.
type Invoice struct {
	Client         InvoiceClient `json:"client"`
	CompanyVatCode string        `json:"companyVatCode"`
	IssueDate      string        `json:"issueDate"`
	SeriesName     string        `json:"seriesName"`
	Products       []Product     `json:"products"`
}

// InvoiceClient is the billed party.
type InvoiceClient struct {
	Name    string `json:"name"`
	VatCode string `json:"vatCode,omitempty"`
	RegCom  string `json:"regCom,omitempty"`
	Address string `json:"address"`
	City    string `json:"city"`
	County  string `json:"county"`
	Country string `json:"country"`
	Email   string `json:"email,omitempty"`
}

// Product is one invoice line.
type Product struct {
	Code              string `json:"code"`
	Currency          string `json:"currency"`
	IsTaxIncluded     bool   `json:"isTaxIncluded"`
	MeasuringUnitName string `json:"measuringUnitName"`
	Name              string `json:"name"`
	Price             Number `json:"price"`
	Quantity          int    `json:"quantity"`
	TaxName           string `json:"taxName,omitempty"`
	TaxPercentage     Number `json:"taxPercentage"`
	IsService         bool   `json:"isService,omitempty"`
}

// Tax is an entry of the company's VAT table.
type Tax struct {
	Name       string `json:"name"`
	Percentage Number `json:"percentage"`
}

// InvoiceResponse is returned by POST /invoice.
type InvoiceResponse struct {
	ErrorText string `json:"errorText"`
	Message   string `json:"message"`
	Number    string `json:"number"`
	Series    string `json:"series"`
	URL       string `json:"url"`
}

type taxResponse struct {
	ErrorText string `json:"errorText"`
	Message   string `json:"message"`
	Taxes     []Tax  `json:"taxes"`
}
