package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	applogger "tickwatch/pkg/logger"
)

// RequestLogging logs every request at debug and 5xx responses at error.
func RequestLogging(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			status := c.Response().Status
			fields := []applogger.Field{
				applogger.String("method", req.Method),
				applogger.String("route", routeOf(c)),
				applogger.Int("status", status),
				applogger.Duration("duration_ms", time.Since(start)),
				applogger.String("remote", c.RealIP()),
			}
			if status >= 500 {
				if err != nil {
					fields = append(fields, applogger.Error(err))
				}
				l.Error("http request failed", fields...)
			} else {
				l.Debug("http request", fields...)
			}
			return nil
		}
	}
}

func routeOf(c echo.Context) string {
	if p := c.Path(); p != "" {
		return p
	}
	return c.Request().URL.Path
}
