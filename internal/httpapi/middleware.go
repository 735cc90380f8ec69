package httpapi

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mkoziy/contratos/crmsync/internal/apperror"
	"github.com/mkoziy/contratos/crmsync/internal/logger"
)

// HeaderRequestID is echoed on every response.
const HeaderRequestID = "X-Request-ID"

// RequestID reuses the caller's request id or generates one, and attaches a
// request-scoped logger to the context.
func RequestID(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Header(HeaderRequestID, requestID)

		ctx := logger.WithLogger(c.Request.Context(), log.With("request_id", requestID))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// AccessLog logs each request with timing and status.
func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.FromContext(c.Request.Context()).Infow("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
	}
}

// Recovery turns a panic into a 500 response.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.FromContext(c.Request.Context()).Errorw("panic recovered",
					"error", r,
					"stack", string(debug.Stack()),
				)
				_ = c.Error(apperror.NewInternal(fmt.Errorf("panic: %v", r)))
				c.Abort()
			}
		}()
		c.Next()
	}
}

// RequireActor rejects requests that do not name the calling user and role.
func RequireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader(HeaderUserID) == "" || c.GetHeader(HeaderUserRole) == "" {
			_ = c.Error(apperror.NewUnauthorized("Falta la identidad del usuario"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// ErrorHandler renders the last handler error as JSON. Internal causes are
// logged, never returned.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		appErr := toAppError(c.Errors.Last().Err)
		if appErr.Err != nil || appErr.HTTPStatus >= http.StatusInternalServerError {
			logger.FromContext(c.Request.Context()).Errorw("request error",
				"code", appErr.Code,
				"error", appErr.Err,
			)
		}

		details := appErr.Details
		if appErr.Code == apperror.CodeInternal {
			details = map[string]any{"request_id": c.GetString("request_id")}
		}
		c.JSON(apperror.GetHTTPStatus(appErr), gin.H{
			"code":    appErr.Code,
			"message": appErr.Message,
			"details": details,
		})
	}
}
