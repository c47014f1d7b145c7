package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func (h *Handler) Routes(m *Middleware, corsOrigins []string, rateLimitRPM int) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(m.RequestID)
	r.Use(m.RequestLogger)
	r.Use(m.Recoverer)
	r.Use(m.SecurityHeaders)
	r.Use(m.Compress)
	r.Use(m.Timeout(15 * time.Second))
	r.Use(middleware.Heartbeat("/ping"))

	// CORS and rate limiting - configured from main
	r.Use(m.CORS(corsOrigins))
	r.Use(m.RateLimit(rateLimitRPM))

	// Health endpoints
	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)

	// v1 API routes
	r.Route("/v1", func(r chi.Router) {
		// Factory registry
		r.Get("/factory", h.GetFactory)

		// Pairs and settlement
		r.Route("/pairs", func(r chi.Router) {
			r.Get("/", h.ListPairs)
			r.Post("/", h.CreatePair)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetPair)
				r.Post("/swap", h.Swap)
				r.Get("/quote", h.GetSwapQuote)
				r.Get("/trades", h.GetTrades)
				r.Post("/fees/claim", h.ClaimFees)

				r.Route("/requests", func(r chi.Router) {
					r.Post("/", h.SubmitRequest)
					r.Post("/ad", h.SubmitAdRequest)
					r.Get("/history", h.GetRequestHistory)
					r.Post("/{kind}/{index}/accept", h.AcceptRequest)
					r.Post("/{kind}/{index}/reject", h.RejectRequest)
					r.Post("/{kind}/{index}/settle", h.SettleRequest)
				})
			})
		})

		// Accounts
		r.Route("/accounts", func(r chi.Router) {
			r.Get("/{address}/balances", h.GetBalances)
		})

		// Dev tooling
		r.Post("/faucet", h.Faucet)

		// Live updates
		r.Get("/stream", h.HandleSSE)
		r.Get("/ws", h.HandleWebSocket)
	})

	return r
}
