package httpapi

import (
	"go.uber.org/fx"

	"github.com/labstack/echo/v4"
)

func Options() fx.Option {
	return fx.Options(
		fx.Provide(NewHandler),
		fx.Invoke(func(h *Handler, e *echo.Echo) {
			h.RegisterRoutes(e)
		}),
	)
}
