package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// AuthConfig holds the request-vetting rules for the write API.
type AuthConfig struct {
	APIKey         string
	AllowedOrigins []string
}

// writeError sends a JSON error body with the given status.
func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// authMiddleware vets mutating API requests. Rules:
//   - GET requests pass through.
//   - POST /api/trades is open (trade logging from trusted peers is
//     vetted by the engine's own dedup and filter).
//   - Every other POST needs the x-api-key header, an allowed Origin
//     (when the header is present), and a plausible User-Agent.
func authMiddleware(cfg AuthConfig, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}
		if r.Method != http.MethodPost {
			next.ServeHTTP(w, r)
			return
		}
		if r.URL.Path == "/api/trades" {
			next.ServeHTTP(w, r)
			return
		}

		apiKey := r.Header.Get("x-api-key")
		if apiKey == "" || apiKey != cfg.APIKey {
			writeError(w, http.StatusUnauthorized, "Unauthorized - Invalid API Key")
			return
		}

		if origin := r.Header.Get("Origin"); origin != "" && len(cfg.AllowedOrigins) > 0 {
			allowed := false
			for _, o := range cfg.AllowedOrigins {
				if origin == o {
					allowed = true
					break
				}
			}
			if !allowed {
				writeError(w, http.StatusUnauthorized, "Unauthorized - Invalid Origin")
				return
			}
		}

		if ua := r.Header.Get("User-Agent"); len(ua) < 10 {
			writeError(w, http.StatusUnauthorized, "Unauthorized - Invalid User Agent")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response code for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// requestLogger logs each API request and records query metrics.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		dur := time.Since(start)
		if s.metrics != nil {
			s.metrics.QueryRequests.WithLabelValues(r.URL.Path, http.StatusText(rec.status)).Inc()
			s.metrics.QueryDuration.WithLabelValues(r.URL.Path).Observe(dur.Seconds())
		}

		lvl := zerolog.DebugLevel
		if rec.status >= 500 {
			lvl = zerolog.ErrorLevel
		} else if rec.status >= 400 {
			lvl = zerolog.WarnLevel
		}
		s.log.WithLevel(lvl).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", dur).
			Msg("request")
	})
}
