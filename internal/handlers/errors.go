package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/pocketbase/pocketbase/apis"

	"qrticket/internal/status"
)

// apiError maps service errors onto API responses.
func apiError(err error) error {
	switch {
	case errors.Is(err, status.ErrInvalidQuantity),
		errors.Is(err, status.ErrInvalidDesign):
		return apis.NewBadRequestError(err.Error(), nil)
	case errors.Is(err, status.ErrEventNotFound):
		return apis.NewNotFoundError("Event not found", nil)
	case errors.Is(err, status.ErrTicketNotFound):
		return apis.NewNotFoundError("Ticket not found", nil)
	case errors.Is(err, status.ErrBusy):
		return apis.NewApiError(http.StatusConflict, "A validation is already in progress, please retry", nil)
	case errors.Is(err, context.Canceled):
		return apis.NewApiError(499, "Request cancelled", nil)
	case errors.Is(err, status.ErrExport):
		return apis.NewInternalServerError("Failed to render ticket", nil)
	default:
		slog.Error("Request failed", "error", err)
		return apis.NewInternalServerError("Something went wrong, please retry", nil)
	}
}
