// Package api serves the fleet state over HTTP: the assembled fleet view,
// progression estimates, activity history, and the ingest endpoints the
// reporting plugins push through.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"fleet_tracker/internal/activity"
	"fleet_tracker/internal/aggregator"
	"fleet_tracker/internal/estimator"
	"fleet_tracker/internal/feed"
	"fleet_tracker/internal/metrics"
	"fleet_tracker/internal/refdata"
	"fleet_tracker/internal/stats"
)

// Config holds the server settings.
type Config struct {
	Port        int
	AuthEnabled bool
	APIKeys     []string
}

// Deps are the collaborators the handlers read from and write to. Ref,
// Events, Archive, and Processor may be nil; the endpoints that need them
// degrade to empty responses or 503.
type Deps struct {
	Manager   *aggregator.Manager
	Ref       refdata.Provider
	Estimator *estimator.Estimator
	Events    activity.Store
	Archive   stats.Archive
	Processor *feed.Processor
	Logger    *slog.Logger
}

// Server is the HTTP API for the fleet tracker.
type Server struct {
	d           Deps
	logger      *slog.Logger
	port        int
	authEnabled bool
	apiKeys     map[string]bool
}

// New creates the API server.
func New(d Deps, config Config) *Server {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	keys := make(map[string]bool)
	for _, k := range config.APIKeys {
		if k != "" {
			keys[k] = true
		}
	}
	return &Server{
		d:           d,
		logger:      logger.With("component", "api"),
		port:        config.Port,
		authEnabled: config.AuthEnabled,
		apiKeys:     keys,
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	addr := ":" + itoa(s.port)
	srv := &http.Server{Addr: addr, Handler: s.Router()}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.logger.Info("api server starting", "addr", addr)
	if s.authEnabled {
		s.logger.Info("api authentication ENABLED", "keys", len(s.apiKeys))
	} else {
		s.logger.Info("api authentication DISABLED")
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// Router builds the route tree. Exposed so tests and embedders can serve it
// without binding a listener.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// The socket is long-lived; the request timeout covers only the
		// plain routes below.
		r.Get("/ws", s.handleWS)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			// Health check (no auth required).
			r.Get("/health", s.handleHealth)

			r.Group(func(r chi.Router) {
				if s.authEnabled {
					r.Use(s.authMiddleware)
				}
				r.Get("/fleet", s.handleFleet)
				r.Get("/fleet/summary", s.handleFleetSummary)
				r.Get("/estimates", s.handleEstimates)
				r.Get("/estimates/{fc_id}", s.handleFCEstimate)
				r.Get("/activity", s.handleActivity)
				r.Get("/history/daily", s.handleDailyHistory)
				r.Post("/ingest/{source}", s.handleIngest)
				r.Delete("/ingest/{source}", s.handleClearSource)
			})
		})
	})

	r.Handle("/metrics", metrics.Handler())

	return r
}

// corsMiddleware adds CORS headers to allow cross-origin requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-API-Key")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// authMiddleware validates API keys. Keys are accepted via the X-API-Key
// header, an Authorization Bearer token, or the api_key query parameter.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-API-Key")
		if key == "" {
			if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				key = strings.TrimPrefix(auth, "Bearer ")
			}
		}
		if key == "" {
			key = r.URL.Query().Get("api_key")
		}

		if key == "" {
			writeError(w, http.StatusUnauthorized, "API key required")
			return
		}
		if !s.apiKeys[key] {
			writeError(w, http.StatusForbidden, "Invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

// parseTier validates an optional tier query value. Empty means all tiers.
func parseTier(raw string) (estimator.Tier, bool) {
	if raw == "" {
		return "", true
	}
	tier := estimator.Tier(strings.ToLower(raw))
	for _, t := range estimator.Tiers {
		if tier == t {
			return tier, true
		}
	}
	return "", false
}

// queryInt reads an integer query parameter, falling back when absent or
// unparsable, and clamps the result to [min, max].
func queryInt(r *http.Request, name string, fallback, min, max int) int {
	v := fallback
	if raw := r.URL.Query().Get(name); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			v = n
		}
	}
	if v < min {
		v = min
	}
	if v > max {
		v = max
	}
	return v
}
