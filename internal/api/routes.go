package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/sheikh-saqib/token-ledger/internal/metrics"
)

// NewRouter mounts the user API under /api/v1/user next to /health and /metrics.
func NewRouter(api *API, allowedOrigins []string) http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		api.writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	authed := api.sessions.Middleware(api.notLoggedIn)
	protect := func(h http.HandlerFunc) http.Handler { return authed(h) }

	users := router.PathPrefix("/api/v1/user").Subrouter()
	users.HandleFunc("", api.ListUsers).Methods(http.MethodGet)
	users.HandleFunc("/", api.ListUsers).Methods(http.MethodGet)
	users.HandleFunc("/register", api.Register).Methods(http.MethodPost)
	users.HandleFunc("/login", api.Login).Methods(http.MethodPost)
	users.HandleFunc("/logout", api.Logout).Methods(http.MethodGet, http.MethodPost)
	users.HandleFunc("/check-session", api.CheckSession).Methods(http.MethodGet)
	users.Handle("/me", protect(api.Me)).Methods(http.MethodGet)
	users.Handle("/airdrop", protect(api.Airdrop)).Methods(http.MethodPost)
	users.Handle("/transfer", protect(api.Transfer)).Methods(http.MethodPost)
	users.Handle("/transactions", protect(api.MyTransactions)).Methods(http.MethodGet)
	users.HandleFunc("/{id}/transactions", api.UserTransactions).Methods(http.MethodGet)
	users.HandleFunc("/{id}/balance", api.UserBalance).Methods(http.MethodGet)
	users.HandleFunc("/{id}", api.GetUser).Methods(http.MethodGet)

	return metrics.InstrumentHandler(withCORS(router, allowedOrigins))
}

// withCORS answers preflights and echoes allowed origins with credentials,
// which the session cookie needs.
func withCORS(next http.Handler, allowedOrigins []string) http.Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.TrimRight(o, "/")] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && allowed[origin] {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")
			if r.Method == http.MethodOptions {
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type")
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
