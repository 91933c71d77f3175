package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/ffe-procurement/api/controllers"
	clientquotecontrollers "github.com/angelmondragon/ffe-procurement/api/controllers/clientquotes"
	itemcontrollers "github.com/angelmondragon/ffe-procurement/api/controllers/items"
	ordercontrollers "github.com/angelmondragon/ffe-procurement/api/controllers/orders"
	quotecontrollers "github.com/angelmondragon/ffe-procurement/api/controllers/quotes"
	"github.com/angelmondragon/ffe-procurement/api/middleware"
	"github.com/angelmondragon/ffe-procurement/internal/acceptance"
	"github.com/angelmondragon/ffe-procurement/internal/activity"
	"github.com/angelmondragon/ffe-procurement/internal/clientquotes"
	"github.com/angelmondragon/ffe-procurement/internal/items"
	"github.com/angelmondragon/ffe-procurement/internal/orders"
	"github.com/angelmondragon/ffe-procurement/internal/payments"
	"github.com/angelmondragon/ffe-procurement/internal/quotes"
	"github.com/angelmondragon/ffe-procurement/internal/status"
	"github.com/angelmondragon/ffe-procurement/pkg/config"
	"github.com/angelmondragon/ffe-procurement/pkg/logger"
	"github.com/angelmondragon/ffe-procurement/pkg/metrics"
	pkgredis "github.com/angelmondragon/ffe-procurement/pkg/redis"
)

// Dependencies carries everything the router wires into handlers.
type Dependencies struct {
	Config       *config.Config
	Logger       *logger.Logger
	Gatherer     prometheus.Gatherer
	HTTPMetrics  *metrics.HTTPMetrics
	Readiness    map[string]controllers.Pinger
	Idempotency  pkgredis.IdempotencyStore
	Items        items.Service
	Activity     activity.Service
	Engine       status.Engine
	Quotes       quotes.Registry
	Acceptance   acceptance.Service
	ClientQuotes clientquotes.Service
	Payments     payments.Service
	Orders       orders.Service
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(deps.HTTPMetrics),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Readiness))
	})
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Actor(logg))

		r.Route("/items", func(r chi.Router) {
			r.Post("/", itemcontrollers.Register(deps.Items, logg))
			r.Post("/advance", itemcontrollers.AdvanceMany(deps.Engine, logg))
			r.Route("/{itemId}", func(r chi.Router) {
				r.Get("/", itemcontrollers.Summary(deps.Items, logg))
				r.Post("/components", itemcontrollers.RegisterComponent(deps.Items, logg))
				r.Get("/activity", itemcontrollers.Activity(deps.Activity, logg))
				r.Post("/advance", itemcontrollers.Advance(deps.Engine, logg))
				r.Post("/quotes", quotecontrollers.Ingest(deps.Quotes, logg))
				r.Get("/quotes/comparison", quotecontrollers.Comparison(deps.Quotes, logg))
				r.Post("/quotes/{quoteId}/accept", quotecontrollers.Accept(deps.Acceptance, logg))
			})
		})

		r.Get("/quotes/{quoteId}/history", quotecontrollers.History(deps.Quotes, logg))

		r.Route("/client-quotes", func(r chi.Router) {
			r.Post("/", clientquotecontrollers.Build(deps.ClientQuotes, logg))
			r.Route("/{clientQuoteId}", func(r chi.Router) {
				r.Get("/", clientquotecontrollers.Get(deps.ClientQuotes, logg))
				r.Post("/send", clientquotecontrollers.Send(deps.ClientQuotes, logg))
				r.Post("/approve", clientquotecontrollers.Approve(deps.ClientQuotes, logg))
				r.Post("/invoice", clientquotecontrollers.Invoice(deps.ClientQuotes, logg))
				r.With(middleware.Idempotency(deps.Idempotency, cfg.Procurement.PaymentIdempotencyTTL, logg)).
					Post("/payments", clientquotecontrollers.RecordPayment(deps.Payments, logg))
				r.Post("/orders", clientquotecontrollers.CreateOrders(deps.Orders, logg))
				r.Get("/orders", clientquotecontrollers.ListOrders(deps.Orders, logg))
			})
		})

		r.Route("/orders/{orderId}", func(r chi.Router) {
			r.Get("/", ordercontrollers.Get(deps.Orders, logg))
			r.Post("/status", ordercontrollers.UpdateStatus(deps.Orders, logg))
		})
	})

	return r
}
