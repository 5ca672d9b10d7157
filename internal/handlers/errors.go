package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"phrasehunt/internal/gameerr"
)

// ErrorHandler renders every error as {"error", "code", ...metadata}.
func ErrorHandler(log *logrus.Entry) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := render(err)
		if status >= http.StatusInternalServerError {
			log.WithError(err).WithFields(logrus.Fields{
				"method": c.Request().Method,
				"uri":    c.Request().RequestURI,
			}).Error("request failed")
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			log.WithError(err).Warn("failed to write error response")
		}
	}
}

func render(err error) (int, map[string]any) {
	var (
		gerr *gameerr.Error
		herr *echo.HTTPError
	)
	switch {
	case errors.As(err, &gerr):
		body := map[string]any{}
		for k, v := range gerr.Metadata {
			body[k] = v
		}
		body["error"] = gerr.Message
		body["code"] = gerr.Code
		return gerr.Code.HTTPStatus(), body

	case errors.As(err, &herr):
		code := gameerr.CodeInternal
		switch {
		case herr.Code == http.StatusNotFound:
			code = gameerr.CodeNotFound
		case herr.Code == http.StatusForbidden:
			code = gameerr.CodeForbidden
		case herr.Code == http.StatusTooManyRequests:
			code = gameerr.CodeRateLimited
		case herr.Code < http.StatusInternalServerError:
			code = gameerr.CodeValidation
		}
		return herr.Code, map[string]any{"error": fmt.Sprint(herr.Message), "code": code}

	default:
		return http.StatusInternalServerError, map[string]any{
			"error": "Internal server error",
			"code":  gameerr.CodeInternal,
		}
	}
}
