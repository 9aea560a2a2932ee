package httpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/storm-data-vtec/internal/vtec"
)

// RecordLister reads the current VTEC records.
type RecordLister interface {
	Records(ctx context.Context) ([]vtec.Record, error)
}

// Server exposes health, readiness, metrics, and VTEC record HTTP endpoints.
type Server struct {
	httpServer *http.Server
	records    RecordLister
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics, and
// /vtec/records routes.
func NewServer(addr string, ready sharedobs.ReadinessChecker, records RecordLister, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		records: records,
		logger:  logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /vtec/records", s.handleRecords)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// handleRecords lists stored records, optionally narrowed by ?office= and
// ?phensig= (both case-insensitive).
func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	office := strings.ToUpper(r.URL.Query().Get("office"))
	phenSig := strings.ToUpper(r.URL.Query().Get("phensig"))

	recs, err := s.records.Records(r.Context())
	if err != nil {
		s.logger.Error("read vtec records failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "vtec records unavailable"})
		return
	}

	out := make([]vtec.Record, 0, len(recs))
	for _, rec := range recs {
		if office != "" && rec.OfficeID != office {
			continue
		}
		if phenSig != "" && rec.PhenSig() != phenSig {
			continue
		}
		out = append(out, rec)
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
