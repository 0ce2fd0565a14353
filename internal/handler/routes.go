package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"travelpay/internal/mw"
)

// PaymentRoutes builds the /api/payments subtree. The notification route is the only
// mutating endpoint served without a session, since the gateway calls it directly.
func PaymentRoutes(svc Payments, sessions *mw.Sessions, limiter *mw.RateLimiter) http.Handler {
	r := chi.NewRouter()
	if limiter != nil {
		r.Use(limiter.Middleware)
	}

	r.Get("/csrf-token", CSRFTokenHandler(sessions))
	r.Get("/check-session", CheckSessionHandler(sessions))
	r.Post("/notify/payhere", NotifyPayHereHandler(svc))

	r.Group(func(r chi.Router) {
		r.Use(sessions.RequireSession)

		r.Get("/check-order-status/{tripName}", OrderStatusHandler(svc))

		r.Group(func(r chi.Router) {
			r.Use(mw.RequireCSRF)

			r.Post("/clear-order", ClearOrderHandler(svc))
			r.Post("/initiate/payhere", InitiatePayHereHandler(svc))
			r.Post("/create-checkout-session/paypal", CreatePayPalOrderHandler(svc))
			r.Post("/capture-paypal-payment", CapturePayPalHandler(svc))
		})
	})

	return r
}
