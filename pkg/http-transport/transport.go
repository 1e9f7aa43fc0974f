// Package httptransport serves a svcrouter.Handler over net/http.
package httptransport

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/always-cache/svcrouter"
)

// CacheStatusHeader carries how the response cache handled a service request.
const CacheStatusHeader = "Cache-Status"

// NewHandler returns an http.Handler that routes every request through h.
// Requests are logged through logger, one line per request.
func NewHandler(h svcrouter.Handler, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(hlog.NewHandler(logger))
	r.Use(hlog.RequestIDHandler("req_id", "Request-Id"))
	r.Use(hlog.AccessHandler(accessLog))
	r.Use(middleware.Recoverer)
	r.Handle("/*", routeHandler(h))
	return r
}

func routeHandler(h svcrouter.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res := h.Route(r.Context(), r.Method, r.URL.Path)
		if res.CacheStatus != nil {
			cacheStatus := res.CacheStatus.String()
			w.Header().Set(CacheStatusHeader, cacheStatus)
			hlog.FromRequest(r).UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("cache_status", cacheStatus)
			})
		}
		writeResponse(w, res)
	}
}

func writeResponse(w http.ResponseWriter, res svcrouter.Response) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Body)))
	w.WriteHeader(res.StatusCode)
	w.Write([]byte(res.Body))
}

func accessLog(r *http.Request, status, size int, duration time.Duration) {
	hlog.FromRequest(r).Info().
		Str("method", r.Method).
		Stringer("url", r.URL).
		Int("status", status).
		Int("size", size).
		Dur("duration", duration).
		Msg("Request")
}

// NewAdminHandler serves the metrics gathered by g on /metrics next to the liveness probe.
func NewAdminHandler(g prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	r.Get(svcrouter.HealthPath, func(w http.ResponseWriter, _ *http.Request) {
		writeResponse(w, svcrouter.Health())
	})
	return r
}
