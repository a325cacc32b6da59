package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"backoffice/internal/core/apperror"
	"backoffice/pkg/logger"
)

// ErrorHandler renders the last error registered on the context as JSON.
// AppErrors keep their code, message and details; anything else becomes a
// generic 500 and is only logged.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err

		status := http.StatusInternalServerError
		var body gin.H
		if appErr, ok := apperror.AsAppError(err); ok {
			if appErr.Err != nil || appErr.HTTPStatus >= 500 {
				logger.Error(c.Request.Context(), "request error",
					"code", appErr.Code,
					"cause", appErr.Err,
				)
			}
			status = appErr.HTTPStatus
			body = gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
				"details": appErr.Details,
			}
		} else {
			logger.Error(c.Request.Context(), "unhandled error", "error", err)
			body = gin.H{
				"code":    apperror.CodeInternal,
				"message": "Internal server error",
				"details": map[string]any{
					"request_id": c.GetString(ctxRequestID),
				},
			}
		}

		// Rejections are replayed too, so a retry sees the same outcome.
		// The store releases the key of a 5xx instead.
		if key, store, ok := idempotencyFromContext(c); ok {
			if ferr := store.FailKey(c.Request.Context(), key, status, "application/json", body); ferr != nil {
				logger.Warn(c.Request.Context(), "idempotency fail key", "key", key, "error", ferr)
			}
		}

		c.JSON(status, body)
	}
}
