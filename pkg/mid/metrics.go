package mid

import (
	"net/http"
	"strconv"
	"time"

	"github.com/WessleyAI/wessley-pricing/pkg/metrics"
)

// Metrics returns middleware that counts requests and observes latency.
// route maps a request to a low-cardinality label.
func Metrics(reg *metrics.Registry, route func(*http.Request) string) Middleware {
	requests := reg.Counter("http_requests_total", "HTTP requests by route, method and status.", "route", "method", "code")
	latency := reg.Histogram("http_request_duration_seconds", "HTTP request latency.", nil, "route", "method")
	inflight := reg.Gauge("http_requests_in_flight", "Requests currently being served.")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			inflight.WithLabelValues().Inc()
			defer inflight.WithLabelValues().Dec()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			name := route(r)
			requests.WithLabelValues(name, r.Method, strconv.Itoa(sw.status)).Inc()
			metrics.Since(latency.WithLabelValues(name, r.Method), start)
		})
	}
}
