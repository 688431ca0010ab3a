package vtex

import (
	"github.com/shopspring/decimal"
)

// OrderStatusInvoiced is the terminal OMS status of an invoiced order.
const OrderStatusInvoiced = "invoiced"

// Order is the OMS order snapshot. Monetary fields are fixed-point integers
// scaled by the platform price multiplier.
type Order struct {
	OrderID              string               `json:"orderId"`
	Status               string               `json:"status"`
	Value                int64                `json:"value"`
	Totals               []Total              `json:"totals"`
	Items                []LineItem           `json:"items"`
	ClientProfileData    ClientProfile        `json:"clientProfileData"`
	ShippingData         ShippingData         `json:"shippingData"`
	StorePreferencesData StorePreferencesData `json:"storePreferencesData"`
	ChangesAttachment    *ChangesAttachment   `json:"changesAttachment,omitempty"`
}

// IsInvoiced reports whether the order reached the terminal invoiced status.
func (o *Order) IsInvoiced() bool {
	return o != nil && o.Status == OrderStatusInvoiced
}

// TotalValue returns the value of the totals entry with the given id, or 0.
func (o *Order) TotalValue(id string) int64 {
	if o == nil {
		return 0
	}
	for _, total := range o.Totals {
		if total.ID == id {
			return total.Value
		}
	}
	return 0
}

type Total struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Value int64  `json:"value"`
}

// LineItem is one order item.
type LineItem struct {
	UniqueID     string     `json:"uniqueId"`
	ID           string     `json:"id"`
	ProductID    string     `json:"productId"`
	RefID        string     `json:"refId,omitempty"`
	Name         string     `json:"name"`
	ImageURL     string     `json:"imageUrl,omitempty"`
	Price        int64      `json:"price"`
	ListPrice    int64      `json:"listPrice"`
	SellingPrice int64      `json:"sellingPrice"`
	Tax          int64      `json:"tax"`
	Quantity     int        `json:"quantity"`
	TaxCode      string     `json:"taxCode,omitempty"`
	PriceTags    []PriceTag `json:"priceTags,omitempty"`
}

// PriceTag is a price adjustment attached to an item. Percentual tags carry
// a percentage; the others carry a fixed-point amount.
type PriceTag struct {
	Name         string          `json:"name"`
	Identifier   string          `json:"identifier,omitempty"`
	Value        decimal.Decimal `json:"value"`
	IsPercentual bool            `json:"isPercentual"`
}

type ClientProfile struct {
	UserProfileID     string `json:"userProfileId"`
	Email             string `json:"email"`
	FirstName         string `json:"firstName"`
	LastName          string `json:"lastName"`
	Document          string `json:"document,omitempty"`
	IsCorporate       bool   `json:"isCorporate"`
	CorporateName     string `json:"corporateName,omitempty"`
	TradeName         string `json:"tradeName,omitempty"`
	CorporateDocument string `json:"corporateDocument,omitempty"`
	StateInscription  string `json:"stateInscription,omitempty"`
}

type ShippingData struct {
	Address Address `json:"address"`
}

type Address struct {
	Street     string `json:"street"`
	Number     string `json:"number"`
	Complement string `json:"complement,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country,omitempty"`
}

type StorePreferencesData struct {
	CurrencyCode string `json:"currencyCode"`
}

// ChangesAttachment holds post-checkout modifications in chronological order.
type ChangesAttachment struct {
	ID          string         `json:"id,omitempty"`
	ChangesData []ChangeRecord `json:"changesData"`
}

type ChangeRecord struct {
	Reason       string       `json:"reason,omitempty"`
	ItemsAdded   []ChangeItem `json:"itemsAdded"`
	ItemsRemoved []ChangeItem `json:"itemsRemoved"`
}

type ChangeItem struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Quantity int    `json:"quantity"`
	Price    int64  `json:"price"`
}

// InvoiceRecord is the body of the OMS invoice notification.
type InvoiceRecord struct {
	Type          string              `json:"type"`
	InvoiceNumber string              `json:"invoiceNumber"`
	InvoiceValue  int64               `json:"invoiceValue"`
	IssuanceDate  string              `json:"issuanceDate"`
	InvoiceURL    string              `json:"invoiceUrl"`
	Items         []InvoiceRecordItem `json:"items"`
}

type InvoiceRecordItem struct {
	ID       string `json:"id"`
	Price    int64  `json:"price"`
	Quantity int    `json:"quantity"`
}

// Customer is a master data CL document.
type Customer struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// SKU is the catalog view of a stock keeping unit.
type SKU struct {
	ID           int    `json:"Id"`
	ProductID    int    `json:"ProductId"`
	NameComplete string `json:"NameComplete"`
	ProductName  string `json:"ProductName"`
	SkuName      string `json:"SkuName"`
	ImageURL     string `json:"ImageUrl"`
	AlternateIDs struct {
		RefID string `json:"RefId"`
	} `json:"AlternateIds"`
	Images []struct {
		ImageURL string `json:"ImageUrl"`
	} `json:"Images"`
}

// DisplayName picks the most descriptive name available.
func (s *SKU) DisplayName() string {
	switch {
	case s.NameComplete != "":
		return s.NameComplete
	case s.ProductName != "" && s.SkuName != "":
		return s.ProductName + " " + s.SkuName
	case s.SkuName != "":
		return s.SkuName
	}
	return s.ProductName
}

// Image returns the main image, falling back to the first gallery entry.
func (s *SKU) Image() string {
	if s.ImageURL != "" {
		return s.ImageURL
	}
	for _, img := range s.Images {
		if img.ImageURL != "" {
			return img.ImageURL
		}
	}
	return ""
}
