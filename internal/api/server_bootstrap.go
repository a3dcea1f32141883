package api

import (
	"context"
	"fmt"
	"net/http"

	"ipnft-bridge/internal/bridge"
	"ipnft-bridge/internal/webhooks"

	"github.com/gorilla/mux"
)

// BuildCommit is set by main to the git commit hash baked in at build time.
var BuildCommit = "dev"

// Server is the admin HTTP surface over the running bridge engine: a
// read-only state dump, an on-demand trigger-iteration endpoint, the
// audit trail, and a websocket stream of new audit entries.
type Server struct {
	state      *bridge.AppState
	loop       *bridge.LoopController
	auth       *webhooks.AuthMiddleware
	httpServer *http.Server
}

func NewServer(state *bridge.AppState, loop *bridge.LoopController, jwtSecret string, port int) *Server {
	r := mux.NewRouter()

	s := &Server{
		state: state,
		loop:  loop,
		auth:  webhooks.NewAuthMiddleware(jwtSecret, nil),
	}

	r.Use(commonMiddleware)
	r.Use(rateLimitMiddleware)
	registerRoutes(r, s)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: r,
	}

	return s
}

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func commonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
