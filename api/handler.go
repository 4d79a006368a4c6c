package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/MrEthical07/zuauth"
	"github.com/MrEthical07/zuauth/metrics/export/prometheus"
	"github.com/MrEthical07/zuauth/middleware"
)

// MaxBodyBytes caps the authenticate request body.
const MaxBodyBytes = 1 << 20

const (
	PathNonce        = "/api/auth/nonce"
	PathAuthenticate = "/api/auth/authenticate"
	PathLogout       = "/api/auth/logout"
	PathUser         = "/api/auth/user"
	PathHealth       = "/healthz"
	PathMetrics      = "/metrics"
)

// Server exposes an Engine over HTTP.
type Server struct {
	engine        *zuauth.Engine
	logger        *slog.Logger
	exposeMetrics bool
}

// Option configures a [Server].
type Option func(*Server)

// WithMetricsEndpoint mounts the Prometheus exporter at /metrics.
func WithMetricsEndpoint() Option {
	return func(s *Server) {
		s.exposeMetrics = true
	}
}

// New returns a Server for engine. It logs through the engine's logger.
func New(engine *zuauth.Engine, opts ...Option) *Server {
	s := &Server{
		engine: engine,
		logger: engine.Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler with panic recovery applied.
func (s *Server) Handler() http.Handler {
	withSession := middleware.LoadSession(s.engine)

	mux := http.NewServeMux()
	mux.Handle("GET "+PathNonce, withSession(http.HandlerFunc(s.nonce)))
	mux.Handle("POST "+PathAuthenticate, withSession(http.HandlerFunc(s.authenticate)))
	mux.Handle("GET "+PathLogout, withSession(http.HandlerFunc(s.logout)))
	mux.Handle("POST "+PathLogout, withSession(http.HandlerFunc(s.logout)))
	mux.Handle("GET "+PathUser, middleware.RequireUser(s.engine)(http.HandlerFunc(s.user)))
	mux.HandleFunc("GET "+PathHealth, s.health)
	if s.exposeMetrics {
		mux.Handle("GET "+PathMetrics, prometheus.NewPrometheusExporter(s.engine).Handler())
	}

	return middleware.Recover(s.logger)(mux)
}

func (s *Server) nonce(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.SessionFromContext(r.Context())
	nonce, err := s.engine.IssueNonce(r.Context(), w, sess)
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, nonce)
}

func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) {
	var in zuauth.AuthInput
	body := http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(&in); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		s.writeError(w, zuauth.ErrMissingPayload)
		return
	}

	sess, _ := middleware.SessionFromContext(r.Context())
	res, err := s.engine.Authenticate(r.Context(), w, sess, in)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, res.Response())
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.SessionFromContext(r.Context())
	if err := s.engine.Logout(r.Context(), w, sess); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) user(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		s.writeError(w, zuauth.ErrUnauthenticated)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"user": user})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Ping(r.Context()); err != nil {
		s.logger.Error("health check failed", "error", err)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok")
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := zuauth.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	http.Error(w, zuauth.Reason(err), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
