package httpapi

import "github.com/labstack/echo/v4"

type envelope struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Data    any    `json:"data,omitempty"`
}

func sendSuccess(c echo.Context, status int, code, message string, data any) error {
	return c.JSON(status, envelope{
		Message: message,
		Code:    code,
		Data:    data,
	})
}

func sendError(c echo.Context, status int, code, message string) error {
	return c.JSON(status, envelope{
		Message: message,
		Code:    code,
	})
}
