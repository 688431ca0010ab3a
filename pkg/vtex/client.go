package vtex

import (
	"bytes"
	"context"
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
	serviceName                 = "vtex"
	defaultTimeout              = 10 * time.Second
	responseBodyReadLimit int64 = 2048

	authCookieHeader = "VtexIdclientAutCookie"
	appKeyHeader     = "X-VTEX-API-AppKey"
	appTokenHeader   = "X-VTEX-API-AppToken"
)

var errAccountRequired = errors.New("vtex account is required")

// Client wraps the VTEX REST endpoints used by the invoicing flow: OMS orders,
// master data customers and the catalog.
type Client struct {
	httpClient *http.Client
	baseURL    string
	authToken  string
	appKey     string
	appToken   string
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

// WithBaseURL overrides the account-derived base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithLogger enables request logging.
func WithLogger(logg *logger.Logger) Option {
	return func(c *Client) {
		c.logger = logg
	}
}

// NewClient builds the VTEX client for the configured account.
func NewClient(cfg config.VTEXConfig, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.Account) == "" {
		return nil, errAccountRequired
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL(),
		authToken:  strings.TrimSpace(cfg.AuthToken),
		appKey:     strings.TrimSpace(cfg.AppKey),
		appToken:   strings.TrimSpace(cfg.AppToken),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal vtex request")
		}
		reader = bytes.NewReader(payload)
	}

	endpoint := fmt.Sprintf("%s/%s", strings.TrimRight(c.baseURL, "/"), strings.TrimLeft(path, "/"))
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build vtex request")
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authToken != "" {
		req.Header.Set(authCookieHeader, c.authToken)
	}
	if c.appKey != "" && c.appToken != "" {
		req.Header.Set(appKeyHeader, c.appKey)
		req.Header.Set(appTokenHeader, c.appToken)
	}
	return req, nil
}

// do executes req and decodes a JSON body into dest when dest is non-nil.
// notFound is the message used when VTEX answers 404.
func (c *Client) do(req *http.Request, op, notFound string, dest any) error {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log(req.Context(), op, 0, time.Since(start))
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("execute %s request", op))
	}
	defer func() { _ = resp.Body.Close() }()
	c.log(req.Context(), op, resp.StatusCode, time.Since(start))

	if resp.StatusCode == http.StatusNotFound && notFound != "" {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, c.upstream(resp), notFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, c.upstream(resp), fmt.Sprintf("%s request failed", op))
	}
	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("decode %s response", op))
	}
	return nil
}

func (c *Client) upstream(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	return &pkgerrors.UpstreamError{
		Service:    serviceName,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
}

func (c *Client) log(ctx context.Context, op string, status int, elapsed time.Duration) {
	if c.logger == nil {
		return
	}
	ctx = c.logger.WithFields(ctx, map[string]any{
		"vtex_op":     op,
		"status":      status,
		"duration_ms": elapsed.Milliseconds(),
	})
	c.logger.Debug(ctx, "vtex.request")
}
