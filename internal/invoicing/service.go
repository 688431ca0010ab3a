package invoicing

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/smartbill-sync/pkg/config"
	pkgerrors "github.com/angelmondragon/smartbill-sync/pkg/errors"
	"github.com/angelmondragon/smartbill-sync/pkg/logger"
	"github.com/angelmondragon/smartbill-sync/pkg/metrics"
	"github.com/angelmondragon/smartbill-sync/pkg/vtex"
)

// Pipeline stages, used as log and metric labels.
const (
	StageSettings  = "settings"
	StageLock      = "lock"
	StageFetch     = "fetch"
	StageReconcile = "reconcile"
	StageIssue     = "issue"
	StageMark      = "mark"
	StageWriteBack = "write_back"
	StageDocument  = "document"
)

// InvoiceConfirmation is returned once the invoice is recorded on the order.
type InvoiceConfirmation struct {
	InvoiceNumber string `json:"invoiceNumber"`
	InvoiceDate   string `json:"invoiceDate"`
	InvoiceURL    string `json:"invoiceUrl"`
}

// Service runs the order-to-invoice pipeline.
type Service interface {
	// SaveInvoice invoices a stored order and records the invoice on it.
	SaveInvoice(ctx context.Context, orderID string, form *AddressForm) (*InvoiceConfirmation, error)
	// GenerateInvoice issues an invoice for a caller supplied order snapshot
	// without writing anything back.
	GenerateInvoice(ctx context.Context, order *vtex.Order, form *AddressForm) (*IssuedInvoice, error)
	// InvoiceDocument streams the PDF behind a public invoice token.
	InvoiceDocument(ctx context.Context, token string) (io.ReadCloser, error)
}

type ServiceParams struct {
	Orders    OrderStore
	Customers CustomerRegistry
	Catalog   Catalog
	Provider  Provider
	Settings  SettingsSource
	Guard     InvoiceGuard
	Metrics   *metrics.InvoiceMetrics
	Logger    *logger.Logger
	Invoice   config.InvoiceConfig
	// InvoiceURL renders the public URL of an encrypted invoice number.
	InvoiceURL func(encryptedNumber string) string
	Now        func() time.Time
}

type service struct {
	orders     OrderStore
	settings   SettingsSource
	guard      InvoiceGuard
	reconciler *Reconciler
	issuer     *Issuer
	metrics    *metrics.InvoiceMetrics
	logg       *logger.Logger
	cfg        config.InvoiceConfig
	invoiceURL func(string) string
	now        func() time.Time
}

// issuedMarker is persisted between provider issuance and write-back so a
// retry can finish the write-back without issuing a second invoice.
type issuedMarker struct {
	Invoice IssuedInvoice      `json:"invoice"`
	Record  vtex.InvoiceRecord `json:"record"`
}

func NewService(params ServiceParams) (Service, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order store required")
	}
	if params.Provider == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "invoicing provider required")
	}
	if params.Settings == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "settings source required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	if params.InvoiceURL == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "invoice url builder required")
	}
	guard := params.Guard
	if guard == nil {
		guard = noopGuard{}
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	if params.Invoice.PriceMultiplier <= 0 {
		params.Invoice.PriceMultiplier = 1
	}

	builder := NewBuilder(BuilderParams{
		Customers:     params.Customers,
		Provider:      params.Provider,
		Country:       params.Invoice.Country,
		MeasuringUnit: params.Invoice.MeasuringUnit,
		Now:           now,
	})

	return &service{
		orders:     params.Orders,
		settings:   params.Settings,
		guard:      guard,
		reconciler: NewReconciler(params.Catalog),
		issuer:     NewIssuer(builder, params.Provider, now),
		metrics:    params.Metrics,
		logg:       params.Logger,
		cfg:        params.Invoice,
		invoiceURL: params.InvoiceURL,
		now:        now,
	}, nil
}

func (s *service) SaveInvoice(ctx context.Context, orderID string, form *AddressForm) (_ *InvoiceConfirmation, err error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	start := s.now()
	ctx = s.logg.WithOrderID(ctx, orderID)
	outcome := metrics.OutcomeFailed
	defer func() { s.metrics.Observe(outcome, s.now().Sub(start)) }()

	settings, err := s.loadSettings(ctx)
	if err != nil {
		return nil, s.fail(ctx, StageSettings, err)
	}

	holder := uuid.NewString()
	acquired, err := s.guard.AcquireInvoiceLock(ctx, orderID, holder, s.cfg.LockTTL)
	if err != nil {
		return nil, s.fail(ctx, StageLock, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire invoice lock"))
	}
	if !acquired {
		return nil, s.fail(ctx, StageLock, pkgerrors.New(pkgerrors.CodeConflict, "order invoicing already in progress"))
	}
	defer func() {
		relErr := s.guard.ReleaseInvoiceLock(context.WithoutCancel(ctx), orderID, holder)
		if relErr == nil {
			return
		}
		if err != nil {
			err = multierr.Append(err, relErr)
			return
		}
		s.logg.Warn(s.logg.WithField(ctx, "error", relErr.Error()), "release invoice lock failed")
	}()

	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, s.fail(ctx, StageFetch, err)
	}
	if order.IsInvoiced() {
		outcome = metrics.OutcomeAlreadyInvoiced
		s.logg.Info(s.logg.WithStage(ctx, StageFetch), "order already invoiced")
		return nil, pkgerrors.New(pkgerrors.CodeAlreadyInvoiced, "order already invoiced")
	}

	marker, err := s.pendingMarker(ctx, orderID)
	if err != nil {
		return nil, s.fail(ctx, StageMark, err)
	}

	if marker != nil {
		outcome = metrics.OutcomeResumed
		s.logg.Info(s.logg.WithField(ctx, "invoice_number", marker.Invoice.Number), "resuming write-back of issued invoice")
	} else {
		marker, err = s.issueForOrder(ctx, orderID, settings, order, form)
		if err != nil {
			return nil, err
		}
		outcome = metrics.OutcomeIssued
	}

	if err := s.orders.PostInvoice(ctx, orderID, marker.Record); err != nil {
		outcome = metrics.OutcomeFailed
		return nil, s.fail(s.logg.WithField(ctx, "invoice_number", marker.Invoice.Number), StageWriteBack, err)
	}

	s.logg.Info(s.logg.WithField(ctx, "invoice_number", marker.Invoice.Number), "invoice recorded on order")
	return &InvoiceConfirmation{
		InvoiceNumber: marker.Record.InvoiceNumber,
		InvoiceDate:   marker.Record.IssuanceDate,
		InvoiceURL:    marker.Record.InvoiceURL,
	}, nil
}

// issueForOrder reconciles and prices the order, issues the invoice and
// persists the write-back record under the requested order id.
func (s *service) issueForOrder(ctx context.Context, orderID string, settings Settings, order *vtex.Order, form *AddressForm) (*issuedMarker, error) {
	items, err := s.reconcile(ctx, order)
	if err != nil {
		return nil, s.fail(ctx, StageReconcile, err)
	}
	priced := PriceOrder(order, items, s.cfg.PriceMultiplier, s.cfg.ShippingTotalID)

	issued, err := s.issuer.Issue(ctx, settings, priced, form)
	if err != nil {
		return nil, s.fail(ctx, StageIssue, err)
	}
	ctx = s.logg.WithField(ctx, "invoice_number", issued.Number)
	s.logg.Info(ctx, "invoice issued")

	marker := &issuedMarker{
		Invoice: *issued,
		Record:  s.invoiceRecord(order, items, issued),
	}
	raw, err := json.Marshal(marker)
	if err != nil {
		return nil, s.fail(ctx, StageMark, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode issued marker"))
	}
	if err := s.guard.MarkInvoiced(ctx, orderID, string(raw), s.cfg.IssuedMarkerTTL); err != nil {
		// The invoice exists at the provider; keep going so the order still
		// gets the write-back.
		s.metrics.IncStageFailure(StageMark)
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "persist issued marker failed")
	}
	return marker, nil
}

func (s *service) GenerateInvoice(ctx context.Context, order *vtex.Order, form *AddressForm) (*IssuedInvoice, error) {
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order is required")
	}
	if order.OrderID != "" {
		ctx = s.logg.WithOrderID(ctx, order.OrderID)
	}

	settings, err := s.loadSettings(ctx)
	if err != nil {
		return nil, s.fail(ctx, StageSettings, err)
	}
	items, err := s.reconcile(ctx, order)
	if err != nil {
		return nil, s.fail(ctx, StageReconcile, err)
	}
	priced := PriceOrder(order, items, s.cfg.PriceMultiplier, s.cfg.ShippingTotalID)

	issued, err := s.issuer.Issue(ctx, settings, priced, form)
	if err != nil {
		return nil, s.fail(ctx, StageIssue, err)
	}
	s.logg.Info(s.logg.WithField(ctx, "invoice_number", issued.Number), "invoice generated")
	return issued, nil
}

func (s *service) InvoiceDocument(ctx context.Context, token string) (io.ReadCloser, error) {
	settings, err := s.loadSettings(ctx)
	if err != nil {
		return nil, s.fail(ctx, StageSettings, err)
	}
	doc, err := s.issuer.Document(ctx, settings, token)
	if err != nil {
		return nil, s.fail(ctx, StageDocument, err)
	}
	return doc, nil
}

func (s *service) loadSettings(ctx context.Context) (Settings, error) {
	settings, err := s.settings.Settings(ctx)
	if err != nil {
		return Settings{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load smartbill settings")
	}
	if err := settings.Validate(); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

func (s *service) reconcile(ctx context.Context, order *vtex.Order) ([]vtex.LineItem, error) {
	if order.ChangesAttachment == nil || len(order.ChangesAttachment.ChangesData) == 0 {
		out := make([]vtex.LineItem, len(order.Items))
		copy(out, order.Items)
		return out, nil
	}
	return s.reconciler.Reconcile(ctx, order.Items, order.ChangesAttachment.ChangesData)
}

func (s *service) pendingMarker(ctx context.Context, orderID string) (*issuedMarker, error) {
	raw, err := s.guard.InvoicedRecord(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read issued marker")
	}
	if raw == "" {
		return nil, nil
	}
	var marker issuedMarker
	if err := json.Unmarshal([]byte(raw), &marker); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode issued marker")
	}
	if marker.Record.InvoiceNumber == "" {
		return nil, nil
	}
	return &marker, nil
}

func (s *service) invoiceRecord(order *vtex.Order, items []vtex.LineItem, issued *IssuedInvoice) vtex.InvoiceRecord {
	lines := make([]vtex.InvoiceRecordItem, 0, len(items))
	for _, item := range items {
		lines = append(lines, vtex.InvoiceRecordItem{
			ID:       firstNonEmpty(item.ProductID, item.ID),
			Price:    item.SellingPrice,
			Quantity: item.Quantity,
		})
	}
	return vtex.InvoiceRecord{
		InvoiceNumber: issued.Number,
		InvoiceValue:  order.Value,
		IssuanceDate:  issued.IssuedAt.Format(time.RFC3339),
		InvoiceURL:    s.invoiceURL(issued.EncryptedNumber),
		Items:         lines,
	}
}

// fail logs the error with its stage and counts it. Client errors are
// logged as warnings.
func (s *service) fail(ctx context.Context, stage string, err error) error {
	s.metrics.IncStageFailure(stage)
	ctx = s.logg.WithStage(ctx, stage)
	if typed := pkgerrors.As(err); typed != nil && pkgerrors.MetadataFor(typed.Code()).HTTPStatus < 500 {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "invoicing stage rejected")
		return err
	}
	s.logg.Error(ctx, "invoicing stage failed", err)
	return err
}
