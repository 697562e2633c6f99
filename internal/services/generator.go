package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"strings"
	"time"

	"qrticket/internal/codegen"
	"qrticket/internal/exporter"
	"qrticket/internal/layout"
	"qrticket/internal/status"
	"qrticket/models"
	"qrticket/monitoring"
	"qrticket/utils"
)

const (
	DefaultMaxBatchSize = 500
	FormatPDF           = "pdf"
	FormatPNG           = "png"

	// PreviewCode is embedded in previews so they never consume a real code.
	PreviewCode = "TKT-PREVIEW-0000000000"
)

// TicketStore is the part of the store the generator needs.
type TicketStore interface {
	FindEvent(ctx context.Context, id string) (*models.Event, error)
	InsertTicketDesign(ctx context.Context, d models.TicketDesign) (*models.TicketDesign, error)
	FindTicketDesign(ctx context.Context, id string) (*models.TicketDesign, error)
	ListTicketDesigns(ctx context.Context, eventID string) ([]models.TicketDesign, error)
	InsertTicket(ctx context.Context, t models.Ticket) (*models.Ticket, error)
	FindTicket(ctx context.Context, id string) (*models.Ticket, error)
}

type GenerateRequest struct {
	EventID  string `json:"event_id"`
	Quantity int    `json:"quantity"`
	// Title and Subtitle default to the event name and description.
	Title           string                     `json:"title"`
	Subtitle        string                     `json:"subtitle"`
	BackgroundImage string                     `json:"background_image"`
	Options         models.RenderDesignOptions `json:"options"`
	Format          string                     `json:"format"`
}

type GenerateResult struct {
	Design  *models.TicketDesign `json:"design"`
	Tickets []models.Ticket      `json:"tickets"`
	Files   []string             `json:"files"`
}

type PreviewRequest struct {
	Title           string                     `json:"title"`
	Subtitle        string                     `json:"subtitle"`
	EventDate       *time.Time                 `json:"event_date"`
	TicketNumber    int                        `json:"ticket_number"`
	BackgroundImage string                     `json:"background_image"`
	Options         models.RenderDesignOptions `json:"options"`
}

type Generator struct {
	store     TicketStore
	exporter  *exporter.Exporter
	monitor   *monitoring.Monitor
	maxBatch  int
	unitDelay time.Duration
}

type GeneratorOption func(*Generator)

func WithMaxBatch(n int) GeneratorOption {
	return func(g *Generator) {
		if n > 0 {
			g.maxBatch = n
		}
	}
}

// WithUnitDelay sets the pause between two units of a batch.
func WithUnitDelay(d time.Duration) GeneratorOption {
	return func(g *Generator) { g.unitDelay = d }
}

func WithMonitor(m *monitoring.Monitor) GeneratorOption {
	return func(g *Generator) { g.monitor = m }
}

func NewGenerator(store TicketStore, exp *exporter.Exporter, opts ...GeneratorOption) *Generator {
	g := &Generator{
		store:    store,
		exporter: exp,
		maxBatch: DefaultMaxBatchSize,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Generator) MaxBatch() int {
	return g.maxBatch
}

// Generate creates req.Quantity tickets one after another, numbered 1..N
// under a fresh design snapshot, and hands each rendered file to saver. The
// first failing unit aborts the rest of the run; tickets already inserted stay
// in the store and are returned alongside the error.
func (g *Generator) Generate(ctx context.Context, req GenerateRequest, saver exporter.Saver) (*GenerateResult, error) {
	if req.Quantity < 1 || req.Quantity > g.maxBatch {
		return nil, fmt.Errorf("%w: %d not in 1..%d", status.ErrInvalidQuantity, req.Quantity, g.maxBatch)
	}
	if err := req.Options.Validate(); err != nil {
		return nil, err
	}
	format, err := normalizeFormat(req.Format)
	if err != nil {
		return nil, err
	}
	background, err := DecodeDataURL(req.BackgroundImage)
	if err != nil {
		return nil, err
	}

	event, err := g.store.FindEvent(ctx, req.EventID)
	if err != nil {
		return nil, err
	}

	title := firstNonEmpty(req.Title, event.Name)
	subtitle := firstNonEmpty(req.Subtitle, event.Description)

	design, err := g.store.InsertTicketDesign(ctx, models.TicketDesign{
		EventID:         event.ID,
		Title:           title,
		Subtitle:        subtitle,
		BackgroundImage: req.BackgroundImage,
		Options:         req.Options,
	})
	if err != nil {
		return nil, err
	}

	result := &GenerateResult{Design: design}
	started := time.Now()
	runID, _ := utils.GenerateCode(4)
	log := slog.With("run", runID, "event", event.ID, "design", design.ID)

	log.Info("Generating tickets", "quantity", req.Quantity, "format", format)

	for i := 1; i <= req.Quantity; i++ {
		if i > 1 && g.unitDelay > 0 {
			if err := sleep(ctx, g.unitDelay); err != nil {
				return result, err
			}
		}

		ticket, file, err := g.generateOne(ctx, event, design, background, i, format, saver)
		if err != nil {
			g.monitor.TrackTicketGenerated(false)
			log.Error("Ticket generation aborted",
				"unit", i,
				"completed", len(result.Tickets),
				"error", err,
			)
			return result, fmt.Errorf("unit %d of %d: %w", i, req.Quantity, err)
		}

		g.monitor.TrackTicketGenerated(true)
		result.Tickets = append(result.Tickets, *ticket)
		result.Files = append(result.Files, file)
	}

	log.Info("Tickets generated",
		"count", len(result.Tickets),
		"duration", time.Since(started),
	)

	return result, nil
}

func (g *Generator) generateOne(ctx context.Context, event *models.Event, design *models.TicketDesign, background image.Image, number int, format string, saver exporter.Saver) (*models.Ticket, string, error) {
	code, err := codegen.NewTicketCode()
	if err != nil {
		return nil, "", err
	}
	qr, err := codegen.RenderCode(code, design.Options.QRSize)
	if err != nil {
		return nil, "", err
	}

	ticket, err := g.store.InsertTicket(ctx, models.Ticket{
		EventID:      event.ID,
		DesignID:     design.ID,
		QRCode:       code,
		TicketNumber: number,
	})
	if err != nil {
		return nil, "", err
	}

	doc := layout.LayoutTicket(layout.Input{
		Title:        design.Title,
		Subtitle:     design.Subtitle,
		TicketNumber: ticket.TicketNumber,
		DateText:     eventDateText(event.EventDate),
		QR:           qr,
		Background:   background,
		Options:      design.Options,
	})

	name := exporter.TicketFilename(event.Name, ticket.TicketNumber)
	if err := g.export(ctx, doc, name, event.Name, format, saver); err != nil {
		return ticket, "", err
	}
	return ticket, name + "." + format, nil
}

func (g *Generator) export(ctx context.Context, doc *layout.Document, name, eventName, format string, saver exporter.Saver) error {
	var err error
	if format == FormatPNG {
		err = g.exporter.ExportPNG(ctx, doc, name, saver)
	} else {
		err = g.exporter.Export(ctx, doc, name, eventName, saver)
	}
	g.monitor.TrackExport(format, err == nil)
	return err
}

// Preview lays out a ticket with placeholder text and a sample code. Nothing is
// written to the store.
func (g *Generator) Preview(req PreviewRequest) (*layout.Document, error) {
	if err := req.Options.Validate(); err != nil {
		return nil, err
	}
	background, err := DecodeDataURL(req.BackgroundImage)
	if err != nil {
		return nil, err
	}
	qr, err := codegen.RenderCode(PreviewCode, req.Options.QRSize)
	if err != nil {
		return nil, err
	}

	var date string
	if req.EventDate != nil {
		date = eventDateText(*req.EventDate)
	}

	return layout.LayoutTicket(layout.Input{
		Title:        req.Title,
		Subtitle:     req.Subtitle,
		TicketNumber: req.TicketNumber,
		DateText:     date,
		QR:           qr,
		Background:   background,
		Options:      req.Options,
		Preview:      true,
	}), nil
}

func (g *Generator) PreviewPNG(ctx context.Context, req PreviewRequest) ([]byte, error) {
	doc, err := g.Preview(req)
	if err != nil {
		return nil, err
	}
	return g.exporter.PNG(ctx, doc)
}

// Redownload renders an existing ticket again from the design it was issued
// under, or the latest design of its event when that one is gone, and returns
// the file name and content.
func (g *Generator) Redownload(ctx context.Context, ticketID, format string) (string, []byte, error) {
	format, err := normalizeFormat(format)
	if err != nil {
		return "", nil, err
	}

	ticket, err := g.store.FindTicket(ctx, ticketID)
	if err != nil {
		return "", nil, err
	}
	event, err := g.store.FindEvent(ctx, ticket.EventID)
	if err != nil {
		return "", nil, err
	}

	design, err := g.designFor(ctx, ticket, event)
	if err != nil {
		return "", nil, err
	}

	background, err := DecodeDataURL(design.BackgroundImage)
	if err != nil {
		slog.Warn("Stored background is unreadable, using gradient", "design", design.ID, "error", err)
		background = nil
	}
	qr, err := codegen.RenderCode(ticket.QRCode, design.Options.QRSize)
	if err != nil {
		return "", nil, err
	}

	doc := layout.LayoutTicket(layout.Input{
		Title:        design.Title,
		Subtitle:     design.Subtitle,
		TicketNumber: ticket.TicketNumber,
		DateText:     eventDateText(event.EventDate),
		QR:           qr,
		Background:   background,
		Options:      design.Options,
	})

	saver := exporter.NewMemorySaver()
	name := exporter.TicketFilename(event.Name, ticket.TicketNumber)
	if err := g.export(ctx, doc, name, event.Name, format, saver); err != nil {
		return "", nil, err
	}
	file := name + "." + format
	data, _ := saver.Get(file)
	return file, data, nil
}

func (g *Generator) designFor(ctx context.Context, ticket *models.Ticket, event *models.Event) (models.TicketDesign, error) {
	if ticket.DesignID != "" {
		d, err := g.store.FindTicketDesign(ctx, ticket.DesignID)
		if err == nil {
			return *d, nil
		}
		if !errors.Is(err, status.ErrDesignNotFound) {
			return models.TicketDesign{}, err
		}
	}

	designs, err := g.store.ListTicketDesigns(ctx, event.ID)
	if err != nil {
		return models.TicketDesign{}, err
	}
	if len(designs) > 0 {
		return designs[0], nil
	}
	return models.TicketDesign{
		Title:    event.Name,
		Subtitle: event.Description,
		Options:  models.DefaultDesignOptions(),
	}, nil
}

// DecodeDataURL decodes a base64 image data URL. An empty string yields a nil
// image.
func DecodeDataURL(s string) (image.Image, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	header, payload, ok := strings.Cut(s, ",")
	if !ok || !strings.HasPrefix(header, "data:image/") || !strings.HasSuffix(header, ";base64") {
		return nil, fmt.Errorf("%w: background_image is not a base64 image data URL", status.ErrInvalidDesign)
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: background_image: %w", status.ErrInvalidDesign, err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: background_image: %w", status.ErrInvalidDesign, err)
	}
	return img, nil
}

func normalizeFormat(f string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(f)) {
	case "", FormatPDF:
		return FormatPDF, nil
	case FormatPNG:
		return FormatPNG, nil
	default:
		return "", fmt.Errorf("%w: unsupported format %q", status.ErrInvalidDesign, f)
	}
}

func eventDateText(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return layout.FormatEventDate(t)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
