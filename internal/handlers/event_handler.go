package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"qrticket/internal/services"
	"qrticket/internal/store"
	"qrticket/models"
)

type EventHandler struct {
	store *store.Store
	stats *services.StatsService
}

func NewEventHandler(st *store.Store, stats *services.StatsService) *EventHandler {
	return &EventHandler{
		store: st,
		stats: stats,
	}
}

// CreateEvent - Create an event tickets can be generated for
func (h *EventHandler) CreateEvent(e *core.RequestEvent) error {
	var req struct {
		Name        string    `json:"name"`
		Description string    `json:"description"`
		EventDate   time.Time `json:"event_date"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if strings.TrimSpace(req.Name) == "" {
		return apis.NewBadRequestError("Event name required", nil)
	}

	owner := ""
	if e.Auth != nil {
		owner = e.Auth.Id
	}

	event, err := h.store.InsertEvent(e.Request.Context(), models.Event{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		EventDate:   req.EventDate,
		Owner:       owner,
	})
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusCreated, event)
}

func (h *EventHandler) GetEvent(e *core.RequestEvent) error {
	event, err := h.store.FindEvent(e.Request.Context(), e.Request.PathValue("eventId"))
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, event)
}

// ListDesigns - Design snapshots of an event, most recent first
func (h *EventHandler) ListDesigns(e *core.RequestEvent) error {
	ctx := e.Request.Context()
	eventID := e.Request.PathValue("eventId")

	if _, err := h.store.FindEvent(ctx, eventID); err != nil {
		return apiError(err)
	}
	designs, err := h.store.ListTicketDesigns(ctx, eventID)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, designs)
}

func (h *EventHandler) ListTickets(e *core.RequestEvent) error {
	ctx := e.Request.Context()
	eventID := e.Request.PathValue("eventId")

	if _, err := h.store.FindEvent(ctx, eventID); err != nil {
		return apiError(err)
	}
	tickets, err := h.store.ListTickets(ctx, eventID)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, tickets)
}

// GetStats - Attendance counts for an event
func (h *EventHandler) GetStats(e *core.RequestEvent) error {
	stats, err := h.stats.EventStats(e.Request.Context(), e.Request.PathValue("eventId"))
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, stats)
}

// DeleteTickets - Administrative removal of tickets
func (h *EventHandler) DeleteTickets(e *core.RequestEvent) error {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if len(req.IDs) == 0 {
		return apis.NewBadRequestError("Ticket ids required", nil)
	}

	deleted, err := h.store.DeleteTickets(e.Request.Context(), req.IDs)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{
		"requested": len(req.IDs),
		"deleted":   deleted,
	})
}
