package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/smartbill-sync/api/controllers"
	invoicecontrollers "github.com/angelmondragon/smartbill-sync/api/controllers/invoices"
	"github.com/angelmondragon/smartbill-sync/api/middleware"
	"github.com/angelmondragon/smartbill-sync/internal/invoicing"
	"github.com/angelmondragon/smartbill-sync/pkg/config"
	"github.com/angelmondragon/smartbill-sync/pkg/logger"
	"github.com/angelmondragon/smartbill-sync/pkg/redis"
)

// NewRouter wires the invoicing routes. idemStore may be nil, in which case
// idempotency replay is disabled. metricsHandler is mounted on /metrics when
// set.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	idemStore redis.IdempotencyStore,
	readiness map[string]controllers.Pinger,
	invoiceService invoicing.Service,
	metricsHandler http.Handler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.AllowedOrigins()),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})

	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/smartbill", func(r chi.Router) {
		r.Get("/show-invoice/{invoiceNumber}", invoicecontrollers.Show(invoiceService, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Idempotency(idemStore, logg))
			r.Post("/orders/{orderId}/invoice", invoicecontrollers.Save(invoiceService, logg))
			r.Post("/generate-invoice", invoicecontrollers.Generate(invoiceService, logg))
		})
	})

	return r
}
