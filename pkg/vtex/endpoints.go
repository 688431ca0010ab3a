package vtex

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	pkgerrors "github.com/angelmondragon/smartbill-sync/pkg/errors"
)

const invoiceTypeOutput = "Output"

// GetOrder loads an order from OMS.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "vtex client not configured")
	}
	trimmed := strings.TrimSpace(orderID)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}

	req, err := c.newRequest(ctx, http.MethodGet, "api/oms/pvt/orders/"+url.PathEscape(trimmed), nil, nil)
	if err != nil {
		return nil, err
	}
	var order Order
	if err := c.do(req, "get_order", "order not found", &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// PostInvoice notifies OMS that the order was invoiced.
func (c *Client) PostInvoice(ctx context.Context, orderID string, record InvoiceRecord) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "vtex client not configured")
	}
	if record.Type == "" {
		record.Type = invoiceTypeOutput
	}
	path := fmt.Sprintf("api/oms/pvt/orders/%s/invoice", url.PathEscape(strings.TrimSpace(orderID)))
	req, err := c.newRequest(ctx, http.MethodPost, path, nil, record)
	if err != nil {
		return err
	}
	return c.do(req, "post_invoice", "order not found", nil)
}

// FindByProfileID searches the CL data entity by user profile id.
func (c *Client) FindByProfileID(ctx context.Context, userProfileID string) ([]Customer, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "vtex client not configured")
	}
	trimmed := strings.TrimSpace(userProfileID)
	if trimmed == "" {
		return nil, nil
	}
	query := url.Values{}
	query.Set("_fields", "_all")
	query.Set("_where", "userId="+trimmed)

	req, err := c.newRequest(ctx, http.MethodGet, "api/dataentities/CL/search/", query, nil)
	if err != nil {
		return nil, err
	}
	var customers []Customer
	if err := c.do(req, "find_customer", "", &customers); err != nil {
		return nil, err
	}
	return customers, nil
}

// SkuWithVariations loads a SKU and its images from the catalog.
func (c *Client) SkuWithVariations(ctx context.Context, skuID string) (*SKU, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "vtex client not configured")
	}
	trimmed := strings.TrimSpace(skuID)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sku id is required")
	}
	path := "api/catalog_system/pvt/sku/stockkeepingunitbyid/" + url.PathEscape(trimmed)
	req, err := c.newRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	var sku SKU
	if err := c.do(req, "get_sku", "sku not found", &sku); err != nil {
		return nil, err
	}
	return &sku, nil
}
