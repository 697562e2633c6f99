package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"qrticket/internal/services"
)

type ScanHandler struct {
	scan     *services.ScanService
	upgrader websocket.Upgrader
}

func NewScanHandler(scan *services.ScanService) *ScanHandler {
	return &ScanHandler{
		scan: scan,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Stations are browsers on the venue network, often served from
			// another origin than the API.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Validate - Check and redeem a code typed in by hand
func (h *ScanHandler) Validate(e *core.RequestEvent) error {
	var req struct {
		Code string `json:"code"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	msg, err := h.scan.Validate(e.Request.Context(), strings.TrimSpace(req.Code))
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, msg)
}

// History - Most recent scan outcomes, newest first
func (h *ScanHandler) History(e *core.RequestEvent) error {
	limit, _ := strconv.Atoi(e.Request.URL.Query().Get("limit"))

	records, err := h.scan.History(e.Request.Context(), limit)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, records)
}

// Station - Upgrade to the scanning station websocket
func (h *ScanHandler) Station(e *core.RequestEvent) error {
	conn, err := h.upgrader.Upgrade(e.Response, e.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		slog.Warn("Station upgrade failed", "remote", e.RealIP(), "error", err)
		return nil
	}

	if err := h.scan.ServeStation(e.Request.Context(), conn, e.Request.URL.Query().Get("station")); err != nil {
		slog.Warn("Station session ended", "remote", e.RealIP(), "error", err)
	}
	return nil
}
