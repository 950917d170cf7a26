package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-slot-scheduling/internal/logging"
	"github.com/hackgods/clinic-slot-scheduling/internal/slot"
)

type RouterConfig struct {
	Service  Scheduler
	Health   *HealthHandler
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
	// Grid holds the defaults for POST /admin/slots/generate.
	Grid      slot.Grid
	RateLimit int
}

func NewRouter(cfg RouterConfig) http.Handler {
	log := logging.OrNop(cfg.Logger)
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(log))

	health := cfg.Health
	if health == nil {
		health = NewHealthHandler(nil, "", "")
	}
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	h := &handlers{svc: cfg.Service, grid: cfg.Grid, log: log}

	r.Group(func(r chi.Router) {
		if cfg.RateLimit > 0 {
			r.Use(httprate.LimitByIP(cfg.RateLimit, time.Second))
		}

		r.Post("/patients/lookup", h.lookupPatient)
		r.Post("/slots/search", h.searchSlots)

		r.Route("/bookings", func(r chi.Router) {
			r.Post("/", h.createBooking)
			r.Get("/", h.listBookings)
			r.Get("/{id}", h.getBooking)
			r.Post("/{id}/confirm", h.confirmBooking)
			r.Post("/{id}/cancel", h.cancelBooking)
			r.Post("/{id}/form-filled", h.markFormFilled)
		})

		r.Route("/rules", func(r chi.Router) {
			r.Get("/", h.listRules)
			r.Post("/", h.createRule)
			r.Delete("/{index}", h.deleteRule)
		})

		r.Route("/admin/slots", func(r chi.Router) {
			r.Post("/generate", h.generateSlots)
			r.Post("/availability", h.setSlotAvailability)
		})
	})

	return r
}
