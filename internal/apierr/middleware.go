package apierr

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ppodhajski/RenderingResourceManager/internal/logger"
)

// ErrorHandler is Gin middleware that converts errors attached to the
// context into a consistent JSON error response.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last()
		log := logger.HTTP()

		if appErr, ok := err.Err.(*AppError); ok {
			if appErr.StatusCode >= 500 {
				log.Error().Str("code", appErr.Code).Str("details", appErr.Details).Msg(appErr.Message)
			} else {
				log.Warn().Str("code", appErr.Code).Msg(appErr.Message)
			}
			c.JSON(appErr.StatusCode, appErr.ToResponse())
			return
		}

		log.Error().Err(err.Err).Msg("unhandled error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   CodeInternal,
			Message: "an unexpected error occurred",
			Code:    CodeInternal,
		})
	}
}

// Recovery is Gin middleware that recovers from panics and reports them as
// a structured internal error instead of crashing the process.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.HTTP().Error().Interface("panic", r).Msg("recovered from panic")
				c.JSON(http.StatusInternalServerError, ErrorResponse{
					Error:   CodeInternal,
					Message: "an unexpected error occurred",
					Code:    CodeInternal,
				})
				c.Abort()
			}
		}()
		c.Next()
	}
}

// HandleError attaches err to the Gin context and writes the matching JSON
// response immediately.
func HandleError(c *gin.Context, err error) {
	appErr := As(err)
	c.Error(appErr)
	c.JSON(appErr.StatusCode, appErr.ToResponse())
}

// AbortWithError attaches err and aborts the request chain.
func AbortWithError(c *gin.Context, err *AppError) {
	c.Error(err)
	c.AbortWithStatusJSON(err.StatusCode, err.ToResponse())
}
