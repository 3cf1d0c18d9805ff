package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/couchcryptid/aladin-mirror/internal/adapter/filestore"
	"github.com/couchcryptid/aladin-mirror/internal/observability"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ArtifactStore is the read-only view of published artifacts.
type ArtifactStore interface {
	AliasName() string
	Latest() (filestore.Entry, error)
	Lookup(name string) (filestore.Entry, error)
	List() ([]filestore.Entry, error)
	CheckReadiness(ctx context.Context) error
}

// Server serves published artifacts plus health, readiness, and metrics
// endpoints. It has no write routes.
type Server struct {
	httpServer *http.Server
	store      ArtifactStore
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewServer creates the file server.
func NewServer(addr string, store ArtifactStore, metrics *observability.Metrics, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			// Artifacts can be large; streaming must not be cut off.
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		store:   store,
		metrics: metrics,
		logger:  logger,
	}

	mux.HandleFunc("GET /{$}", s.instrument("index", s.handleIndex))
	mux.HandleFunc("GET /{name}", s.instrument("latest", s.handleLatest))
	mux.HandleFunc("GET /files/{name}", s.instrument("files", s.handleFile))
	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(store))
	mux.Handle("GET /metrics", promhttp.Handler())

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

type indexResponse struct {
	Latest    *filestore.Entry  `json:"latest"`
	Artifacts []filestore.Entry `json:"artifacts"`
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	entries, err := s.store.List()
	if err != nil {
		s.logger.Error("list artifacts failed", "error", err)
		sharedobs.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "cannot list artifacts"})
		return
	}

	resp := indexResponse{Artifacts: entries}
	if resp.Artifacts == nil {
		resp.Artifacts = []filestore.Entry{}
	}
	if latest, err := s.store.Latest(); err == nil {
		resp.Latest = &latest
	}
	sharedobs.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name != s.store.AliasName() {
		sharedobs.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	entry, err := s.store.Latest()
	if err != nil {
		sharedobs.WriteJSON(w, http.StatusNotFound, map[string]string{"error": filestore.ErrNotReady.Error()})
		return
	}
	s.serveEntry(w, r, entry, name)
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	entry, err := s.store.Lookup(r.PathValue("name"))
	if err != nil {
		sharedobs.WriteJSON(w, http.StatusNotFound, map[string]string{"error": filestore.ErrNotFound.Error()})
		return
	}
	s.serveEntry(w, r, entry, entry.Name)
}

// serveEntry streams the concrete artifact path resolved by the caller.
func (s *Server) serveEntry(w http.ResponseWriter, r *http.Request, entry filestore.Entry, downloadName string) {
	f, err := os.Open(entry.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			sharedobs.WriteJSON(w, http.StatusNotFound, map[string]string{"error": filestore.ErrNotFound.Error()})
			return
		}
		s.logger.Error("open artifact failed", "path", entry.Path, "error", err)
		sharedobs.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "cannot open artifact"})
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+downloadName+`"`)
	w.Header().Set("X-Artifact-Name", entry.Name)
	http.ServeContent(w, r, downloadName, entry.ModTime, f)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		s.metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
	}
}
