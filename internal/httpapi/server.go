// Package httpapi implements the gateway's HTTP Surface (spec §4.8):
// POST /prompt, POST /workflow/<name>, POST /download, and the GET
// introspection/probe endpoints, composed as narrow http.Handlers over a
// stdlib http.ServeMux.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// Server bundles the collaborators every handler needs and exposes the
// composed mux via Handler().
type Server struct {
	Prompt   *PromptHandler
	Download *DownloadHandler
	Probes   *ProbeHandler
	Log      *slog.Logger
}

// Handler builds the routed, logging-wrapped http.Handler for the gateway.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /prompt", s.Prompt.ServeHTTP)
	mux.HandleFunc("POST /workflow/", handleWorkflow)
	mux.HandleFunc("POST /download", s.Download.ServeHTTP)
	mux.HandleFunc("GET /models", s.Probes.Models)
	mux.HandleFunc("GET /health", s.Probes.Health)
	mux.HandleFunc("GET /ready", s.Probes.Ready)
	return loggingMiddleware(s.logger(), mux)
}

func (s *Server) logger() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return slog.Default()
}

// statusRecorder wraps http.ResponseWriter to capture the status code and
// response size, so the access log carries more than the teacher's
// proxy needed to report for an anonymous blob pull.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.bytes += int64(n)
	return n, err
}

// promptIDCtxKey is the context key a handler uses to hand the request's
// resolved prompt id back up to loggingMiddleware, so the access log can
// correlate an HTTP request with the prompt id it produced or downloaded
// for — there is no such per-request domain identity in a docker-pull
// proxy, but every prompt/download request here has exactly one.
type promptIDCtxKey struct{}

// withPromptID attaches id to ctx for loggingMiddleware to pick up once
// the handler returns.
func withPromptID(ctx context.Context, id *string) context.Context {
	return context.WithValue(ctx, promptIDCtxKey{}, id)
}

// setPromptID records id on the request's context slot, if the handler
// was invoked through loggingMiddleware (always true in production; a
// handler unit-tested directly with no wrapping context is a no-op).
func setPromptID(r *http.Request, id string) {
	if slot, ok := r.Context().Value(promptIDCtxKey{}).(*string); ok {
		*slot = id
	}
}

// loggingMiddleware logs every request at Info level, matching the
// gateway's single-structured-logger convention, and folds in the
// prompt/model id the handler resolved so a prompt's HTTP access log
// line can be correlated with its orchestrator and webhook log lines.
func loggingMiddleware(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		var id string
		r = r.WithContext(withPromptID(r.Context(), &id))
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		args := []any{"method", r.Method, "path", r.URL.Path, "status", rec.status, "bytes", rec.bytes, "duration", time.Since(start)}
		if id != "" {
			args = append(args, "id", id)
		}
		log.Info("request", args...)
	})
}

// writeJSON marshals v as the response body with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
