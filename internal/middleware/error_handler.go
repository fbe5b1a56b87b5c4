package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/Nilsonfts/Skvoznaya-analitika/internal/apierror"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// requestLog starts a log event carrying the request id and, once JWTAuth has
// run, the calling service's subject and role.
func requestLog(c *gin.Context, evt *zerolog.Event) *zerolog.Event {
	evt = evt.Str("request_id", c.GetString(RequestIDKey))
	if sub := c.GetString(SubjectKey); sub != "" {
		evt = evt.Str("subject", sub)
	}
	if claims, ok := c.Get(ClaimsKey); ok {
		if cl, ok := claims.(*JWTClaims); ok {
			evt = evt.Str("role", cl.Role)
		}
	}
	return evt
}

func internalError(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusInternalServerError,
		apierror.New("internal server error").WithRequestID(c.GetString(RequestIDKey)))
}

// ErrorHandler turns errors attached with c.Error into a 500 envelope. The
// error text only reaches the log; clients get the request id to quote.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		requestLog(c, log.Error()).
			Str("route", c.FullPath()).
			Str("method", c.Request.Method).
			Err(c.Errors.Last().Err).
			Int("errors", len(c.Errors)).
			Msg("unhandled error")

		if c.Writer.Written() {
			return
		}
		internalError(c)
	}
}

// Recovery converts a panic into a 500 envelope and logs the stack.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				requestLog(c, log.Error()).
					Str("route", c.FullPath()).
					Interface("panic", r).
					Bytes("stack", debug.Stack()).
					Msg("panic recovered")
				internalError(c)
			}
		}()
		c.Next()
	}
}

// Logger writes one line per request. Server errors log at error level and
// client errors at warn, so ingestion adapters sending bad payloads stand out.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		evt := log.Info()
		switch {
		case status >= http.StatusInternalServerError:
			evt = log.Error()
		case status >= http.StatusBadRequest:
			evt = log.Warn()
		}
		requestLog(c, evt).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("route", c.FullPath()).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Str("client_ip", c.ClientIP()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
