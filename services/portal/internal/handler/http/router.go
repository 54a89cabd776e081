package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/CitizenPortal/pkg/health"
	"github.com/utafrali/CitizenPortal/pkg/middleware"
)

// requestTimeout bounds every route except checkout, whose payment retries
// are bounded by the initializer's own policy.
const requestTimeout = 30 * time.Second

// Handlers groups the portal's HTTP handlers. Orders may serve payment
// attempts only when a journal is configured.
type Handlers struct {
	Cart     *CartHandler
	Checkout *CheckoutHandler
	Orders   *OrderHandler
	Callback *CallbackHandler
}

// RouterConfig carries the cross-cutting settings of the router.
type RouterConfig struct {
	CORS            middleware.CORSConfig
	CheckoutLimiter *middleware.RateLimiter
	CallbackLimiter *middleware.RateLimiter
	PprofCIDRs      []string
	ServeAttempts   bool
}

// NewRouter creates a chi router with all portal routes registered.
func NewRouter(h Handlers, cfg RouterConfig, healthHandler *health.Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("portal"))
	r.Use(middleware.Tracing("portal"))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// Pprof debug endpoints with IP allowlist.
	middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)

	// Gateway return pages
	r.Group(func(r chi.Router) {
		r.Use(middleware.NoStore())
		if cfg.CallbackLimiter != nil {
			r.Use(cfg.CallbackLimiter.Handler)
		}
		r.Use(chimw.Timeout(requestTimeout))
		r.Get("/payment/success", h.Callback.Success)
		r.Get("/payment/cancel", h.Callback.Cancel)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.NoStore())
		r.Use(middleware.Session())

		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(requestTimeout))
			r.Use(ContentTypeJSON)

			r.Get("/cart", h.Cart.GetCart)
			r.Delete("/cart", h.Cart.ClearCart)
			r.Put("/cart/items/{productId}", h.Cart.SetItem)
			r.Delete("/cart/items/{productId}", h.Cart.RemoveItem)

			r.Put("/checkout/contact", h.Checkout.SaveContact)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(true))

			r.Group(func(r chi.Router) {
				r.Use(chimw.Timeout(requestTimeout))
				r.Get("/orders", h.Orders.ListOrders)
				if cfg.ServeAttempts {
					r.Get("/orders/{orderId}/payment-attempts", h.Orders.ListPaymentAttempts)
				}
			})

			r.Group(func(r chi.Router) {
				if cfg.CheckoutLimiter != nil {
					r.Use(cfg.CheckoutLimiter.Handler)
				}
				r.Use(ContentTypeJSON)
				r.Post("/checkout", h.Checkout.Checkout)
			})
		})
	})

	return r
}
