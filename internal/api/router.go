package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
)

type RouterOptions struct {
	AllowedOrigins []string
	// REST requests per minute per client IP
	RateLimit int
	WebSocket http.Handler
	Metrics   http.Handler
}

// Router mounts the REST endpoints plus the optional /ws and /metrics
// handlers. The REST group is rate limited per IP; /ws is not, each
// socket carries its own limiter.
func (a *API) Router(opts RouterOptions) http.Handler {
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 60
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))
	r.Use(middleware.Heartbeat("/ping"))

	if opts.WebSocket != nil {
		r.Handle("/ws", opts.WebSocket)
	}
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(httprate.Limit(opts.RateLimit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP, httprate.KeyByEndpoint)))

		r.Get("/health", a.HealthHandler)
		r.Get("/api/stats", a.StatsHandler)
		r.Get("/api/rooms", a.ListRoomsHandler)
		r.Get("/api/rooms/{id}", a.GetRoomHandler)
		r.Get("/api/rooms/{id}/history", a.RoomHistoryHandler)
		r.Post("/chat/send", a.SendChatHandler)
	})

	return r
}
