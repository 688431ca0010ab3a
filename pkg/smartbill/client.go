package smartbill

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/smartbill-sync/pkg/config"
	pkgerrors "github.com/angelmondragon/smartbill-sync/pkg/errors"
	"github.com/angelmondragon/smartbill-sync/pkg/logger"
)

const (
	serviceName                = "smartbill"
	defaultBaseURL             = "https://ws.smartbill.ro/SBORO/api"
	defaultTimeout             = 15 * time.Second
	responseBodyReadLimit int64 = 2048
)

var errCredentialsRequired = errors.New("smartbill username and api token are required")

// Client talks to the SmartBill Cloud REST API using basic auth.
type Client struct {
	httpClient *http.Client
	baseURL    string
	username   string
	apiToken   string
	logger     *logger.Logger
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the configured API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithLogger enables request/response logging.
func WithLogger(logg *logger.Logger) Option {
	return func(c *Client) {
		c.logger = logg
	}
}

// NewClient builds the SmartBill client. Missing credentials are reported on
// each call rather than here so the service can boot before settings exist.
func NewClient(cfg config.SmartBillConfig, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    defaultBaseURL,
		username:   strings.TrimSpace(cfg.Username),
		apiToken:   strings.TrimSpace(cfg.APIToken),
	}
	if trimmed := strings.TrimSpace(cfg.BaseURL); trimmed != "" {
		client.baseURL = trimmed
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client
}

// TaxTable returns the VAT rates configured for the company identified by vatCode.
func (c *Client) TaxTable(ctx context.Context, vatCode string) ([]Tax, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "smartbill client not configured")
	}
	query := url.Values{}
	query.Set("cif", vatCode)

	req, err := c.newRequest(ctx, http.MethodGet, "tax", query, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	var out taxResponse
	if err := c.doJSON(req, "tax_table", &out); err != nil {
		return nil, err
	}
	if msg := strings.TrimSpace(out.ErrorText); msg != "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "smartbill tax table rejected").WithDetails(map[string]any{"error": msg})
	}
	return out.Taxes, nil
}

// CreateInvoice issues an invoice and returns the provider-assigned number.
func (c *Client) CreateInvoice(ctx context.Context, invoice *Invoice) (*InvoiceResponse, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "smartbill client not configured")
	}
	if invoice == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice payload is required")
	}
	payload, err := json.Marshal(invoice)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal invoice payload")
	}

	req, err := c.newRequest(ctx, http.MethodPost, "invoice", nil, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	c.log(ctx, "request", "create_invoice", map[string]any{
		"series":   invoice.SeriesName,
		"products": len(invoice.Products),
	})

	var out InvoiceResponse
	if err := c.doJSON(req, "create_invoice", &out); err != nil {
		return nil, err
	}
	if msg := strings.TrimSpace(out.ErrorText); msg != "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "smartbill rejected invoice").WithDetails(map[string]any{"error": msg})
	}
	if strings.TrimSpace(out.Number) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "smartbill returned no invoice number")
	}

	c.log(ctx, "response", "create_invoice", map[string]any{
		"number": out.Number,
		"series": out.Series,
	})
	return &out, nil
}

// InvoicePDF streams the rendered invoice document. The caller closes the reader.
func (c *Client) InvoicePDF(ctx context.Context, vatCode, seriesName, number string) (io.ReadCloser, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "smartbill client not configured")
	}
	if strings.TrimSpace(number) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice number is required")
	}
	query := url.Values{}
	query.Set("cif", vatCode)
	query.Set("seriesname", seriesName)
	query.Set("number", number)

	req, err := c.newRequest(ctx, http.MethodGet, "invoice/pdf", query, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/octet-stream")
	req.Header.Set("Content-Type", "application/xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute invoice pdf request")
	}
	if resp.StatusCode != http.StatusOK {
		defer func() { _ = resp.Body.Close() }()
		return nil, c.statusError(resp, "invoice pdf request failed")
	}
	return resp.Body, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	if c.username == "" || c.apiToken == "" {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, errCredentialsRequired, "smartbill credentials missing")
	}
	endpoint := c.buildURL(path)
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build smartbill request")
	}
	req.Header.Set("Authorization", "Basic "+basicAuth(c.username, c.apiToken))
	return req, nil
}

func (c *Client) doJSON(req *http.Request, op string, dest any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log(req.Context(), "error", op, map[string]any{"error": err.Error()})
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("execute %s request", op))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log(req.Context(), "error", op, map[string]any{"status": resp.StatusCode})
		return c.statusError(resp, fmt.Sprintf("%s request failed", op))
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("decode %s response", op))
	}
	return nil
}

func (c *Client) statusError(resp *http.Response, msg string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	upstream := &pkgerrors.UpstreamError{
		Service:    serviceName,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, upstream, msg)
}

func (c *Client) buildURL(path string) string {
	trimmed := strings.TrimRight(c.baseURL, "/")
	path = strings.TrimLeft(path, "/")
	return fmt.Sprintf("%s/%s", trimmed, path)
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c.logger == nil {
		return
	}
	payload := map[string]any{"smartbill_op": op, "phase": phase}
	for k, v := range fields {
		payload[k] = v
	}
	c.logger.Info(c.logger.WithFields(ctx, payload), "smartbill."+phase)
}

func basicAuth(username, token string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + token))
}
