package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/danielpatrickdp/deepresearch/internal/logging"
	"github.com/danielpatrickdp/deepresearch/internal/research"
)

// #region types

const maxJSONBodyBytes = 1 << 20 // 1 MiB

// Researcher is the engine entry point the API calls.
type Researcher interface {
	RunDeepResearch(ctx context.Context, topic string) research.ResultEnvelope
}

// ResearcherFunc adapts a function to Researcher.
type ResearcherFunc func(ctx context.Context, topic string) research.ResultEnvelope

func (f ResearcherFunc) RunDeepResearch(ctx context.Context, topic string) research.ResultEnvelope {
	return f(ctx, topic)
}

// Server is the thin HTTP façade over a Researcher.
type Server struct {
	Research Researcher
	Metrics  http.Handler // mounted at /metrics when set

	logger *slog.Logger
}

// NewServer creates a Server.
func NewServer(r Researcher, metrics http.Handler) *Server {
	return &Server{Research: r, Metrics: metrics, logger: logging.New("api")}
}

type researchRequest struct {
	Topic *string `json:"topic"`
}

type errorResponse struct {
	Detail string             `json:"detail"`
	Kind   research.ErrorKind `json:"kind,omitempty"`
}

// #endregion types

// #region routes

// Routes returns the full handler with middleware applied.
func (s *Server) Routes() http.Handler {
	if s.logger == nil {
		s.logger = logging.New("api")
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleHealth)
	mux.HandleFunc("POST /do-research", s.handleResearch)
	if s.Metrics != nil {
		mux.Handle("GET /metrics", s.Metrics)
	}
	return s.loggingMiddleware(s.recoverMiddleware(mux))
}

// #endregion routes

// #region handlers

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "API is running"})
}

func (s *Server) handleResearch(w http.ResponseWriter, r *http.Request) {
	var req researchRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Detail: fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	if req.Topic == nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Detail: "field required: topic"})
		return
	}

	env := s.Research.RunDeepResearch(r.Context(), *req.Topic)
	if env.OK() {
		writeJSON(w, http.StatusOK, env)
		return
	}
	resp := errorResponse{Detail: "research returned no result", Kind: research.KindInternalError}
	if env.Error != nil {
		resp = errorResponse{Detail: env.Error.Message, Kind: env.Error.Kind}
	}
	s.logger.Warn("research failed", "kind", resp.Kind, "detail", resp.Detail)
	writeJSON(w, http.StatusInternalServerError, resp)
}

// #endregion handlers

// #region middleware

type statusWriter struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wrote {
		w.status = code
		w.wrote = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wrote = true
	return w.ResponseWriter.Write(b)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.logger.Info("request", "method", r.Method, "path", r.URL.Path,
			"status", sw.status, "elapsed", time.Since(start))
	})
}

// recoverMiddleware turns a panic anywhere below it into a 500 whose detail
// carries the panic message.
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw, ok := w.(*statusWriter)
		if !ok {
			sw = &statusWriter{ResponseWriter: w, status: http.StatusOK}
		}
		defer func() {
			p := recover()
			if p == nil {
				return
			}
			if errors.Is(asError(p), http.ErrAbortHandler) {
				panic(p)
			}
			s.logger.Error("handler panicked", "panic", p, "stack", string(debug.Stack()))
			if !sw.wrote {
				writeJSON(sw, http.StatusInternalServerError, errorResponse{
					Detail: fmt.Sprint(p),
					Kind:   research.KindInternalError,
				})
			}
		}()
		next.ServeHTTP(sw, r)
	})
}

func asError(p any) error {
	if err, ok := p.(error); ok {
		return err
	}
	return nil
}

// #endregion middleware

// #region helpers

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"detail":"failed to encode response"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(body, '\n'))
}

// #endregion helpers
