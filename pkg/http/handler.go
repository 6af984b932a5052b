package http

import "github.com/labstack/echo/v4"

// Handler registers its routes on the shared Echo instance.
type Handler interface {
	RegisterRoutes(e *echo.Echo)
}

// Handlers combines several route sets into one Handler.
type Handlers []Handler

func (hs Handlers) RegisterRoutes(e *echo.Echo) {
	for _, h := range hs {
		if h != nil {
			h.RegisterRoutes(e)
		}
	}
}
