package invoices

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/smartbill-sync/api/responses"
	"github.com/angelmondragon/smartbill-sync/api/validators"
	"github.com/angelmondragon/smartbill-sync/internal/invoicing"
	pkgerrors "github.com/angelmondragon/smartbill-sync/pkg/errors"
	"github.com/angelmondragon/smartbill-sync/pkg/logger"
	"github.com/angelmondragon/smartbill-sync/pkg/vtex"
)

const (
	maxOrderIDLen = 64
	maxTokenLen   = 512
	pdfType       = "application/pdf"
)

type generateInvoiceRequest struct {
	Order   *vtex.Order            `json:"order" validate:"required"`
	Address *invoicing.AddressForm `json:"address,omitempty"`
}

// Save invoices the order in the path and records the invoice on it. An
// already invoiced order answers 304.
func Save(svc invoicing.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "invoicing service unavailable"))
			return
		}

		orderID, err := validators.PathParam("orderId", chi.URLParam(r, "orderId"), maxOrderIDLen)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var form invoicing.AddressForm
		if err := validators.DecodeOptionalJSONBody(r, &form); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		conf, err := svc.SaveInvoice(r.Context(), orderID, &form)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, conf)
	}
}

// Generate issues an invoice for the order snapshot in the body.
func Generate(svc invoicing.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "invoicing service unavailable"))
			return
		}

		var req generateInvoiceRequest
		if err := validators.DecodePassthroughJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		issued, err := svc.GenerateInvoice(r.Context(), req.Order, req.Address)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, issued)
	}
}

// Show streams the invoice PDF behind an encrypted invoice number.
func Show(svc invoicing.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "invoicing service unavailable"))
			return
		}

		token, err := validators.PathParam("invoiceNumber", chi.URLParam(r, "invoiceNumber"), maxTokenLen)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		doc, err := svc.InvoiceDocument(r.Context(), token)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		defer doc.Close()

		responses.WriteStream(r.Context(), logg, w, pdfType, "invoice.pdf", doc)
	}
}
