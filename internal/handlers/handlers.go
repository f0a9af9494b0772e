// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"codeberg.org/oliverandrich/newsletter/internal/i18n"
	"codeberg.org/oliverandrich/newsletter/internal/services/subscription"
)

const healthTimeout = 2 * time.Second

// Subscriptions is the subscription flow the handlers drive.
type Subscriptions interface {
	Subscribe(ctx context.Context, rawName, rawEmail string) error
	Confirm(ctx context.Context, subscriptionToken string) error
}

// Pinger reports whether storage is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers contains all HTTP handlers.
type Handlers struct {
	db     Pinger
	subs   Subscriptions
	logger *slog.Logger
}

// New creates a new Handlers instance.
func New(db Pinger, subs Subscriptions, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{db: db, subs: subs, logger: logger}
}

// Health returns the health status.
func (h *Handlers) Health(c echo.Context) error {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			h.logger.ErrorContext(ctx, "health check failed", "error", err)
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status":  "unavailable",
				"message": i18n.T(c.Request().Context(), "service_unavailable"),
			})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Subscribe handles the sign-up form.
func (h *Handlers) Subscribe(c echo.Context) error {
	ctx := c.Request().Context()
	if err := h.subs.Subscribe(ctx, c.FormValue("name"), c.FormValue("email")); err != nil {
		return h.respondError(c, err)
	}
	return c.String(http.StatusOK, i18n.T(ctx, "subscription_created"))
}

// Confirm handles the link from the confirmation email.
func (h *Handlers) Confirm(c echo.Context) error {
	ctx := c.Request().Context()
	if err := h.subs.Confirm(ctx, c.QueryParam(subscription.TokenQueryParam)); err != nil {
		return h.respondError(c, err)
	}
	return c.String(http.StatusOK, i18n.T(ctx, "subscription_confirmed"))
}
