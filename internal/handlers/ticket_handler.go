package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"qrticket/internal/exporter"
	"qrticket/internal/layout"
	"qrticket/internal/services"
	"qrticket/models"
)

type TicketHandler struct {
	generator *services.Generator
}

func NewTicketHandler(generator *services.Generator) *TicketHandler {
	return &TicketHandler{generator: generator}
}

// Preview - Render a ticket from unsaved design inputs. Returns a PNG, or the
// layout tree with ?format=json.
func (h *TicketHandler) Preview(e *core.RequestEvent) error {
	req := services.PreviewRequest{Options: models.DefaultDesignOptions()}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	if e.Request.URL.Query().Get("format") == "json" {
		doc, err := h.generator.Preview(req)
		if err != nil {
			return apiError(err)
		}
		titleSize, subtitleSize := layout.DefaultFontSizes(req.Options.Orientation)
		return e.JSON(http.StatusOK, map[string]any{
			"width":       doc.Width,
			"height":      doc.Height,
			"orientation": doc.Orientation,
			"nodes":       doc.IDs(),
			"placement":   layout.PlacementLabel(req.Options.Orientation, req.Options.QRPosition),
			"default_font_sizes": map[string]float64{
				"title":    titleSize,
				"subtitle": subtitleSize,
			},
		})
	}

	data, err := h.generator.PreviewPNG(e.Request.Context(), req)
	if err != nil {
		return apiError(err)
	}
	return e.Blob(http.StatusOK, "image/png", data)
}

// Generate - Create a batch of tickets and stream them back as a zip archive.
// A run that fails after the first file still returns the archive, with a
// manifest naming the error.
func (h *TicketHandler) Generate(e *core.RequestEvent) error {
	req := services.GenerateRequest{Options: models.DefaultDesignOptions()}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	req.EventID = e.Request.PathValue("eventId")

	e.Response.Header().Set("Content-Type", "application/zip")
	e.Response.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="tickets-%s.zip"`, req.EventID))

	archive := exporter.NewZipSaver(e.Response)
	result, err := h.generator.Generate(e.Request.Context(), req, archive)
	if err != nil && archive.Count() == 0 {
		e.Response.Header().Del("Content-Disposition")
		return apiError(err)
	}

	manifest := map[string]any{"files": []string{}}
	if result != nil {
		manifest["tickets"] = result.Tickets
		manifest["files"] = result.Files
		manifest["design_id"] = result.Design.ID
	}
	if err != nil {
		manifest["error"] = err.Error()
	}
	if werr := writeManifest(e, archive, manifest); werr != nil {
		slog.Error("Failed to write ticket manifest", "event", req.EventID, "error", werr)
	}
	if cerr := archive.Close(); cerr != nil {
		slog.Error("Failed to finish ticket archive", "event", req.EventID, "error", cerr)
	}
	return nil
}

func writeManifest(e *core.RequestEvent, archive *exporter.ZipSaver, manifest map[string]any) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	return archive.Save(e.Request.Context(), "manifest.json", data)
}

// Download - Render one existing ticket again
func (h *TicketHandler) Download(e *core.RequestEvent) error {
	format := strings.ToLower(e.Request.URL.Query().Get("format"))

	name, data, err := h.generator.Redownload(e.Request.Context(), e.Request.PathValue("ticketId"), format)
	if err != nil {
		return apiError(err)
	}

	contentType := "application/pdf"
	if strings.HasSuffix(name, ".png") {
		contentType = "image/png"
	}
	e.Response.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	return e.Blob(http.StatusOK, contentType, data)
}
