// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"codeberg.org/oliverandrich/newsletter/internal/apperr"
	"codeberg.org/oliverandrich/newsletter/internal/i18n"
)

// StatusFor maps an error kind to the HTTP status returned to clients.
func StatusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes a status and one safe line of text. Client errors are
// answered with their localized message. Everything else is logged with its
// cause chain and answered with a generic message.
func (h *Handlers) respondError(c echo.Context, err error) error {
	ctx := c.Request().Context()
	status := StatusFor(err)

	if status != http.StatusInternalServerError {
		return c.String(status, i18n.TDefault(ctx, apperr.Code(err), apperr.Message(err)))
	}

	h.logger.ErrorContext(ctx, "request failed",
		"method", c.Request().Method,
		"path", c.Path(),
		"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
		"kind", apperr.KindOf(err).String(),
		"error", apperr.Chain(err),
	)
	return c.String(status, i18n.T(ctx, "internal_error"))
}
