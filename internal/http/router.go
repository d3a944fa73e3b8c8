package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/voyago/booking-flow/internal/observability"
	"github.com/voyago/booking-flow/internal/ratelimit"
)

func SetupRouter(h *Handlers, logger observability.Logger, rl *ratelimit.RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)
	r.Use(MetricsMiddleware)
	r.Use(RateLimitMiddleware(rl))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/flows", h.OpenFlow)
		r.Get("/flows/{id}", h.GetFlow)
		r.Put("/flows/{id}/ticket", h.SelectTicket)
		r.Put("/flows/{id}/quantity", h.SetQuantity)
		r.Put("/flows/{id}/attendee", h.UpdateAttendee)
		r.Post("/flows/{id}/advance", h.Advance)
		r.Post("/flows/{id}/back", h.Back)
		r.Post("/flows/{id}/lock", h.LockTickets)
		r.Post("/flows/{id}/pay", h.InitiatePayment)
		r.Post("/flows/{id}/payment/proof", h.SubmitProof)
		r.Post("/flows/{id}/payment/dismiss", h.DismissPayment)
		r.Delete("/flows/{id}", h.AbandonFlow)
		r.Get("/bookings", h.ListBookings)
		r.Get("/bookings/{receiptID}", h.GetBooking)
		r.Get("/healthz", h.Healthz)
		r.Get("/readyz", h.Readyz)
	})
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}
