package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/weiawesome/wes-io-live/chat-core/pkg/log"
)

// GinMiddleware records request count and latency per route template, so
// path parameters do not blow up label cardinality.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method

		HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

// NewServer builds the side listener serving the Prometheus endpoint.
func NewServer(addr, path string, logger zerolog.Logger) *http.Server {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())

	return &http.Server{
		Addr:              addr,
		Handler:           log.HTTPMiddleware(logger)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}
