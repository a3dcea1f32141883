package api

import "github.com/gorilla/mux"

func registerRoutes(r *mux.Router, s *Server) {
	r.HandleFunc("/health", s.handleHealth).Methods("GET", "OPTIONS")

	admin := r.PathPrefix("/system").Subrouter()
	admin.Use(s.auth.Middleware)
	admin.HandleFunc("/state", s.handleState).Methods("GET", "OPTIONS")
	admin.HandleFunc("/trigger-iteration", s.handleTriggerIteration).Methods("POST", "OPTIONS")
	admin.HandleFunc("/audit", s.handleAudit).Methods("GET", "OPTIONS")
	admin.HandleFunc("/stream", s.handleStream).Methods("GET", "OPTIONS")
}
