/*
Package handler provides the HTTP handlers and routing setup for the ConvoChat server.

This file defines the main Router, applying middleware like logging, CORS and IP-based rate
limiting before delegating requests to the REST handlers and the WebSocket endpoint.
*/
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"convochat/internal/pkg/auth/jwt"
	"convochat/internal/pkg/limiter"
	"convochat/internal/pkg/logx"
	"convochat/internal/pkg/resp"
)

const (
	AuthRate    = 0.2
	AuthBurst   = 5
	CreateRate  = 0.1
	CreateBurst = 5
	JoinRate    = 0.5
	JoinBurst   = 10
)

// Router sets up the main HTTP routing table for the application.
// The IP limiters it creates stop their cleanup loops when ctx is cancelled.
func Router(ctx context.Context, deps *AppDeps) http.Handler {
	authLimiter := limiter.NewIPRateLimiter(ctx, rate.Limit(AuthRate), AuthBurst)
	createLimiter := limiter.NewIPRateLimiter(ctx, rate.Limit(CreateRate), CreateBurst)
	joinLimiter := limiter.NewIPRateLimiter(ctx, rate.Limit(JoinRate), JoinBurst)

	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	var wsUpgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if deps.Config.IsDevelopment() {
				return true
			}

			origin := r.Header.Get("Origin")
			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}

	corsAllowedOrigins := []string{}
	if deps.Config.IsDevelopment() {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		data := map[string]any{
			"status":   "ok",
			"service":  "ConvoChat Server",
			"sessions": deps.Manager.Sessions().Len(),
		}
		resp.RespondSuccess(w, r, data)
	})

	r.Route("/api", func(api chi.Router) {
		api.Route("/auth", func(auth chi.Router) {
			auth.Use(authLimiter.Middleware)
			auth.Post("/signup", HandleSignUp(deps))
			auth.Post("/signin", HandleSignIn(deps))
		})

		api.Group(func(protected chi.Router) {
			protected.Use(jwt.RequireAuth(deps.Config.JWTSecret))

			protected.Get("/conversations", HandleListConversations(deps))
			protected.With(createLimiter.Middleware).Post("/conversations", HandleCreateConversation(deps))

			protected.Get("/users/validate", HandleValidateUsers(deps))
		})
	})

	r.Get("/ws", HandleWebSocket(deps.Manager, wsUpgrader, joinLimiter))

	return r
}
