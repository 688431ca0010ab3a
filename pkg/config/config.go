package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "SMARTBILL_SYNC"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv        = "SMARTBILL_SYNC_APP_ENV"
	EnvPort          = "SMARTBILL_SYNC_APP_PORT"
	EnvRedisURL      = "SMARTBILL_SYNC_REDIS_URL"
	EnvVTEXAccount   = "SMARTBILL_SYNC_VTEX_ACCOUNT"
	EnvVTEXAuthToken = "SMARTBILL_SYNC_VTEX_AUTH_TOKEN"
	EnvSmartBillUser = "SMARTBILL_SYNC_SMARTBILL_USERNAME"
	EnvSmartBillKey  = "SMARTBILL_SYNC_SMARTBILL_API_TOKEN"
)

type Config struct {
	App       AppConfig
	Redis     RedisConfig
	VTEX      VTEXConfig
	SmartBill SmartBillConfig
	Invoice   InvoiceConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.Invoice.PriceMultiplier <= 0 {
		return nil, fmt.Errorf("%s_INVOICE_PRICE_MULTIPLIER must be positive", EnvPrefix)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"SMARTBILL_SYNC_APP_ENV" required:"true"`
	Port         string   `envconfig:"SMARTBILL_SYNC_APP_PORT" default:"8080"`
	LogLevel     string   `envconfig:"SMARTBILL_SYNC_LOG_LEVEL" default:"info"`
	LogFormat    string   `envconfig:"SMARTBILL_SYNC_LOG_FORMAT" default:"json"`
	LogWarnStack bool     `envconfig:"SMARTBILL_SYNC_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"SMARTBILL_SYNC_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// RedisConfig is optional; without a URL or address the invoice lock and
// idempotency replay are disabled.
type RedisConfig struct {
	URL          string        `envconfig:"SMARTBILL_SYNC_REDIS_URL"`
	Address      string        `envconfig:"SMARTBILL_SYNC_REDIS_ADDR"`
	Password     string        `envconfig:"SMARTBILL_SYNC_REDIS_PASSWORD"`
	DB           int           `envconfig:"SMARTBILL_SYNC_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SMARTBILL_SYNC_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SMARTBILL_SYNC_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SMARTBILL_SYNC_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SMARTBILL_SYNC_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SMARTBILL_SYNC_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type VTEXConfig struct {
	Account     string        `envconfig:"SMARTBILL_SYNC_VTEX_ACCOUNT" required:"true"`
	Environment string        `envconfig:"SMARTBILL_SYNC_VTEX_ENVIRONMENT" default:"vtexcommercestable"`
	AuthToken   string        `envconfig:"SMARTBILL_SYNC_VTEX_AUTH_TOKEN"`
	AppKey      string        `envconfig:"SMARTBILL_SYNC_VTEX_APP_KEY"`
	AppToken    string        `envconfig:"SMARTBILL_SYNC_VTEX_APP_TOKEN"`
	Timeout     time.Duration `envconfig:"SMARTBILL_SYNC_VTEX_TIMEOUT" default:"10s"`
}

// BaseURL returns the account-scoped API host.
func (v VTEXConfig) BaseURL() string {
	env := strings.TrimSpace(v.Environment)
	if env == "" {
		env = "vtexcommercestable"
	}
	return fmt.Sprintf("https://%s.%s.com.br", strings.TrimSpace(v.Account), env)
}

// SmartBillConfig holds the provider settings. Credentials are intentionally
// not required at load time; the payload builder validates them per request.
type SmartBillConfig struct {
	BaseURL              string        `envconfig:"SMARTBILL_SYNC_SMARTBILL_BASE_URL" default:"https://ws.smartbill.ro/SBORO/api"`
	Username             string        `envconfig:"SMARTBILL_SYNC_SMARTBILL_USERNAME"`
	APIToken             string        `envconfig:"SMARTBILL_SYNC_SMARTBILL_API_TOKEN"`
	VatCode              string        `envconfig:"SMARTBILL_SYNC_SMARTBILL_VAT_CODE"`
	SeriesName           string        `envconfig:"SMARTBILL_SYNC_SMARTBILL_SERIES_NAME"`
	DefaultVATPercentage string        `envconfig:"SMARTBILL_SYNC_SMARTBILL_DEFAULT_VAT_PERCENTAGE" default:"19"`
	UseProductTaxValue   bool          `envconfig:"SMARTBILL_SYNC_USE_PRODUCT_TAX_VALUE" default:"false"`
	InvoiceShippingCost  bool          `envconfig:"SMARTBILL_SYNC_INVOICE_SHIPPING_COST" default:"false"`
	ShippingProductCode  string        `envconfig:"SMARTBILL_SYNC_INVOICE_SHIPPING_PRODUCT_CODE" default:"TRANSPORT"`
	ShippingProductName  string        `envconfig:"SMARTBILL_SYNC_INVOICE_SHIPPING_PRODUCT_NAME" default:"Transport"`
	Timeout              time.Duration `envconfig:"SMARTBILL_SYNC_SMARTBILL_TIMEOUT" default:"15s"`
}

type InvoiceConfig struct {
	PriceMultiplier int64         `envconfig:"SMARTBILL_SYNC_INVOICE_PRICE_MULTIPLIER" default:"100"`
	ShippingTotalID string        `envconfig:"SMARTBILL_SYNC_INVOICE_SHIPPING_TOTAL_ID" default:"Shipping"`
	Country         string        `envconfig:"SMARTBILL_SYNC_INVOICE_COUNTRY" default:"Romania"`
	MeasuringUnit   string        `envconfig:"SMARTBILL_SYNC_INVOICE_MEASURING_UNIT" default:"buc"`
	PublicBaseURL   string        `envconfig:"SMARTBILL_SYNC_INVOICE_PUBLIC_BASE_URL"`
	LockTTL         time.Duration `envconfig:"SMARTBILL_SYNC_INVOICE_LOCK_TTL" default:"2m"`
	IssuedMarkerTTL time.Duration `envconfig:"SMARTBILL_SYNC_INVOICE_ISSUED_MARKER_TTL" default:"720h"`
}

// ShowInvoiceURL builds the public lookup URL for an encrypted invoice number.
func (c *Config) ShowInvoiceURL(encryptedNumber string) string {
	base := strings.TrimRight(strings.TrimSpace(c.Invoice.PublicBaseURL), "/")
	if base == "" {
		base = fmt.Sprintf("https://%s.myvtex.com", strings.TrimSpace(c.VTEX.Account))
	}
	return fmt.Sprintf("%s/smartbill/show-invoice/%s", base, encryptedNumber)
}

// AllowedOrigins returns the configured CORS origins, defaulting to the
// store's admin domain.
func (c *Config) AllowedOrigins() []string {
	if len(c.App.CORSOrigins) > 0 {
		return c.App.CORSOrigins
	}
	return []string{fmt.Sprintf("https://%s.myvtex.com", strings.TrimSpace(c.VTEX.Account))}
}
