package audit

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Recorder turns handled requests into audit entries.
type Recorder struct {
	Service *Service
}

// Route describes how a route is recorded. Zero values derive the action and
// resource type from the matched route pattern.
type Route struct {
	Action       string
	ResourceType string
	IDParam      string
	Metadata     func(*http.Request, int) map[string]any
}

// Middleware records every request that reaches it, including rejected ones.
func (rec Recorder) Middleware(cfg Route) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if rec.Service == nil || !rec.Service.Enabled {
				next.ServeHTTP(w, req)
				return
			}
			sw := &statusWriter{ResponseWriter: w}
			next.ServeHTTP(sw, req)

			resourceID := ""
			if cfg.IDParam != "" {
				resourceID = chi.URLParam(req, cfg.IDParam)
			}
			var metadata []byte
			if cfg.Metadata != nil {
				if payload := cfg.Metadata(req, sw.Status()); payload != nil {
					metadata, _ = json.Marshal(payload)
				}
			}
			ctx := context.WithoutCancel(req.Context())
			if err := rec.Service.Record(ctx, req, cfg.Action, cfg.ResourceType, resourceID, sw.Status(), metadata); err != nil {
				rec.Service.Logger.Error().Err(err).Str("route", req.URL.Path).Msg("record audit entry")
			}
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (s *statusWriter) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusWriter) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

func (s *statusWriter) Status() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}
