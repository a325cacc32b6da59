package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"backoffice/pkg/logger"
)

// Logger logs one line per request with timing and status.
// The request context carries log so services log with the same trace fields.
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Request = c.Request.WithContext(logger.WithLogger(c.Request.Context(), log))

		c.Next()

		// Supplier links carry a capability token in the path.
		route := c.FullPath()
		if isPublicRoute(route) {
			path = route
			query = ""
		}

		status := c.Writer.Status()
		fields := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if query != "" {
			fields = append(fields, "query", query)
		}
		if errs := c.Errors.String(); errs != "" {
			fields = append(fields, "error", errs)
		}

		l := log.WithContext(c.Request.Context())
		switch {
		case status >= 500:
			l.Errorw("http request", fields...)
		case status >= 400:
			l.Warnw("http request", fields...)
		default:
			l.Infow("http request", fields...)
		}
	}
}

func isPublicRoute(route string) bool {
	return strings.Contains(route, "/public/")
}
