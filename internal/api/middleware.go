// Package api exposes the coordinator's ambient HTTP surface: a health
// check and the two websocket upgrade routes. Grounded on the teacher's
// internal/orchestrator/api middleware (request logging, panic recovery,
// CORS, centralized error formatting), adapted from AppError/HTTPStatus
// pairs to the coordinator's Kind-based CoordError taxonomy.
package api

import (
	stderrors "errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	coorderrors "github.com/agentbreak/coordinator/internal/common/errors"
	"github.com/agentbreak/coordinator/internal/common/logger"
)

// RequestLogger logs every request with a generated request id.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := uuid.New().String()
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)

		c.Next()

		log.Info("request completed",
			zap.String("path", c.Request.URL.Path),
			zap.String("method", c.Request.Method),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", requestID),
		)
	}
}

// ErrorHandler formats the last gin error as a JSON body, mapping a
// CoordError's Kind to an HTTP status code.
func ErrorHandler(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		var ce *coorderrors.CoordError
		if stderrors.As(err, &ce) {
			status := httpStatusFor(ce.Kind)
			log.Error("request error", zap.String("kind", string(ce.Kind)), zap.String("message", ce.Message))
			c.JSON(status, gin.H{"error": gin.H{"kind": ce.Kind, "message": ce.Message}})
			return
		}

		log.Error("internal server error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"kind": "INTERNAL", "message": "an internal error occurred"}})
	}
}

func httpStatusFor(k coorderrors.Kind) int {
	switch k {
	case coorderrors.NoActiveRun, coorderrors.UnknownEvent, coorderrors.ActiveRun:
		return http.StatusConflict
	case coorderrors.Parse, coorderrors.VersionMismatch:
		return http.StatusBadRequest
	case coorderrors.Protocol, coorderrors.AgentProtocol, coorderrors.UIProtocol:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Recovery recovers from a panic in a handler and reports it as a 500.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic recovered",
					zap.Any("panic", r),
					zap.String("path", c.Request.URL.Path),
					zap.String("method", c.Request.Method),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": gin.H{"kind": "INTERNAL", "message": "an internal error occurred"},
				})
			}
		}()
		c.Next()
	}
}

// CORS allows the UI client to be served from a different origin.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, X-Request-ID")
		c.Header("Access-Control-Expose-Headers", "X-Request-ID")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
