package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
)

// GinMiddleware records request counts and latency per registered route.
// Routes come from gin's FullPath so path parameters never explode label
// cardinality.
func GinMiddleware(h *HTTPMetrics) gin.HandlerFunc {
	if h == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		start := time.Now()
		h.IncInFlight()
		defer h.DecInFlight()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		h.ObserveRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
