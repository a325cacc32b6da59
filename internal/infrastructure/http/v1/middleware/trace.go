package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appctx "backoffice/internal/core/context"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderTraceID   = "X-Trace-ID"
)

// gin context keys
const (
	ctxRequestID      = "request_id"
	ctxTraceID        = "trace_id"
	ctxIdempotencyKey = "idempotency_key"
	ctxIdempotency    = "idempotency_store"
)

// Trace propagates or generates the trace and request IDs and echoes them back.
func Trace() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		traceID := c.GetHeader(HeaderTraceID)
		if traceID == "" {
			traceID = uuid.New().String()
		}

		ctx := appctx.WithTrace(c.Request.Context(), &appctx.TraceContext{
			TraceID:   traceID,
			RequestID: requestID,
		})
		c.Request = c.Request.WithContext(ctx)

		c.Set(ctxTraceID, traceID)
		c.Set(ctxRequestID, requestID)

		c.Header(HeaderRequestID, requestID)
		c.Header(HeaderTraceID, traceID)

		c.Next()
	}
}
