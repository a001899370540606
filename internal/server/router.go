package server

import (
	"net/http"

	"github.com/STTM-NSU/account-bridge/internal/logger"
	"github.com/STTM-NSU/account-bridge/internal/server/middleware"
)

// NewRouter registers every route and wraps the mux with the middleware
// chain: request id, CORS, logging, recover.
func NewRouter(h *Handlers, corsOrigins []string, logger logger.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", h.Root)
	mux.HandleFunc("GET /health", h.Health)

	mux.HandleFunc("GET /account-info", h.AccountInfo)
	mux.HandleFunc("GET /positions", h.Positions)
	mux.HandleFunc("GET /history", h.History)
	mux.HandleFunc("GET /stats", h.Stats)
	mux.HandleFunc("GET /accounts", h.Accounts)

	if h.journal != nil {
		mux.HandleFunc("GET /journal", h.Journal)
	}

	return middleware.Chain(mux,
		middleware.RequestID,
		middleware.CORS(corsOrigins),
		middleware.Logging(logger),
		middleware.Recover(logger),
	)
}
