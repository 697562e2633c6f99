package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/klauspost/compress/zip"
	"github.com/pocketbase/pocketbase/core"
	_ "github.com/pocketbase/pocketbase/migrations"
	"github.com/pocketbase/pocketbase/tools/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrticket/internal/exporter"
	"qrticket/internal/services"
	"qrticket/internal/status"
	"qrticket/internal/store"
	"qrticket/models"
)

type testEnv struct {
	app     core.App
	store   *store.Store
	events  *EventHandler
	tickets *TicketHandler
	scan    *ScanHandler
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	app := core.NewBaseApp(core.BaseAppConfig{DataDir: t.TempDir()})
	require.NoError(t, app.Bootstrap())
	t.Cleanup(func() { _ = app.ResetBootstrapState() })
	require.NoError(t, store.EnsureCollections(app))

	st := store.New(app)
	gen := services.NewGenerator(st, exporter.New())
	scan := services.NewScanService(st, nil, st, nil, services.ScanConfig{})

	return &testEnv{
		app:     app,
		store:   st,
		events:  NewEventHandler(st, services.NewStatsService(st)),
		tickets: NewTicketHandler(gen),
		scan:    NewScanHandler(scan),
	}
}

func (env *testEnv) request(method, target string, body any, pathValues map[string]string) (*core.RequestEvent, *httptest.ResponseRecorder) {
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, target, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range pathValues {
		req.SetPathValue(k, v)
	}
	rec := httptest.NewRecorder()

	e := &core.RequestEvent{App: env.app}
	e.Request = req
	e.Response = rec
	return e, rec
}

func (env *testEnv) seedEvent(t *testing.T) *models.Event {
	t.Helper()
	ev, err := env.store.InsertEvent(context.Background(), models.Event{
		Name:      "Romeo y Julieta",
		EventDate: time.Date(2025, 12, 1, 20, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return ev
}

func apiStatus(t *testing.T, err error) int {
	t.Helper()
	var apiErr *router.ApiError
	require.True(t, errors.As(err, &apiErr), "expected an api error, got %v", err)
	return apiErr.Status
}

func TestEventHandler_CreateEvent(t *testing.T) {
	env := setupTestEnv(t)

	e, rec := env.request(http.MethodPost, "/api/v1/events", map[string]any{
		"name":       "  Romeo y Julieta ",
		"event_date": "2025-12-01T20:00:00Z",
	}, nil)
	require.NoError(t, env.events.CreateEvent(e))
	assert.Equal(t, http.StatusCreated, rec.Code)

	var created models.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Romeo y Julieta", created.Name)

	e, _ = env.request(http.MethodPost, "/api/v1/events", map[string]any{"name": " "}, nil)
	assert.Equal(t, http.StatusBadRequest, apiStatus(t, env.events.CreateEvent(e)))

	e, _ = env.request(http.MethodGet, "/api/v1/events/missing", nil, map[string]string{"eventId": "missing"})
	assert.Equal(t, http.StatusNotFound, apiStatus(t, env.events.GetEvent(e)))
}

func TestTicketHandler_GenerateStreamsZip(t *testing.T) {
	env := setupTestEnv(t)
	ev := env.seedEvent(t)

	e, rec := env.request(http.MethodPost, "/api/v1/events/"+ev.ID+"/tickets/generate", map[string]any{
		"quantity": 2,
		"format":   "png",
		"options":  map[string]any{"orientation": "portrait"},
	}, map[string]string{"eventId": ev.ID})
	require.NoError(t, env.tickets.Generate(e))

	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	body := rec.Body.Bytes()
	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	require.NoError(t, err)

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{
		"romeo-y-julieta-ticket-001.png",
		"romeo-y-julieta-ticket-002.png",
		"manifest.json",
	}, names)

	tickets, err := env.store.ListTickets(context.Background(), ev.ID)
	require.NoError(t, err)
	assert.Len(t, tickets, 2)

	designs, err := env.store.ListTicketDesigns(context.Background(), ev.ID)
	require.NoError(t, err)
	require.Len(t, designs, 1)
	assert.Equal(t, models.OrientationPortrait, designs[0].Options.Orientation)
}

func TestTicketHandler_GenerateErrorsBeforeFirstFile(t *testing.T) {
	env := setupTestEnv(t)
	ev := env.seedEvent(t)

	e, _ := env.request(http.MethodPost, "/", map[string]any{"quantity": 0}, map[string]string{"eventId": ev.ID})
	assert.Equal(t, http.StatusBadRequest, apiStatus(t, env.tickets.Generate(e)))

	e, _ = env.request(http.MethodPost, "/", map[string]any{"quantity": 1}, map[string]string{"eventId": "missing"})
	assert.Equal(t, http.StatusNotFound, apiStatus(t, env.tickets.Generate(e)))
}

func TestTicketHandler_PreviewAndDownload(t *testing.T) {
	env := setupTestEnv(t)
	ev := env.seedEvent(t)

	e, rec := env.request(http.MethodPost, "/api/v1/tickets/preview?format=json", map[string]any{}, nil)
	require.NoError(t, env.tickets.Preview(e))
	var doc struct {
		Width     float64            `json:"width"`
		Nodes     []string           `json:"nodes"`
		Placement string             `json:"placement"`
		FontSizes map[string]float64 `json:"default_font_sizes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, 900.0, doc.Width)
	assert.Contains(t, doc.Nodes, "qr-image")
	assert.Equal(t, "QR right", doc.Placement)
	assert.Equal(t, map[string]float64{"title": 36, "subtitle": 18}, doc.FontSizes)

	e, rec = env.request(http.MethodPost, "/api/v1/tickets/preview?format=json", map[string]any{
		"options": map[string]any{"orientation": "portrait", "qr_position": "start"},
	}, nil)
	require.NoError(t, env.tickets.Preview(e))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "QR above", doc.Placement)
	assert.Equal(t, 28.0, doc.FontSizes["title"])

	e, rec = env.request(http.MethodPost, "/api/v1/tickets/preview", map[string]any{"title": "Gala"}, nil)
	require.NoError(t, env.tickets.Preview(e))
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	tk, err := env.store.InsertTicket(context.Background(), models.Ticket{EventID: ev.ID, QRCode: "TKT-DOWNLOAD-01", TicketNumber: 1})
	require.NoError(t, err)

	e, rec = env.request(http.MethodGet, "/api/v1/tickets/"+tk.ID+"/download", nil, map[string]string{"ticketId": tk.ID})
	require.NoError(t, env.tickets.Download(e))
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "romeo-y-julieta-ticket-001.pdf")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "%PDF-"))
}

func TestScanHandler_ValidateAndStats(t *testing.T) {
	env := setupTestEnv(t)
	ev := env.seedEvent(t)
	ctx := context.Background()

	var ids []string
	for i := 1; i <= 4; i++ {
		tk, err := env.store.InsertTicket(ctx, models.Ticket{
			EventID:      ev.ID,
			QRCode:       fmt.Sprintf("TKT-HANDLER-%03d", i),
			TicketNumber: i,
		})
		require.NoError(t, err)
		ids = append(ids, tk.ID)
	}

	kinds := []models.OutcomeKind{models.OutcomeRedeemed, models.OutcomeAlreadyUsed}
	for _, want := range kinds {
		e, rec := env.request(http.MethodPost, "/api/v1/scan/validate", map[string]any{"code": " TKT-HANDLER-001 "}, nil)
		require.NoError(t, env.scan.Validate(e))
		var msg services.OutcomeMessage
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))
		assert.Equal(t, want, msg.Outcome.Kind)
	}

	e, rec := env.request(http.MethodGet, "/api/v1/events/"+ev.ID+"/stats", nil, map[string]string{"eventId": ev.ID})
	require.NoError(t, env.events.GetStats(e))
	var stats models.EventStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 1, stats.Used)
	assert.Equal(t, "25.00", stats.UsedPercent)

	e, rec = env.request(http.MethodGet, "/api/v1/scan/history?limit=5", nil, nil)
	require.NoError(t, env.scan.History(e))
	var history []models.ScanRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	assert.Len(t, history, 2)

	e, rec = env.request(http.MethodPost, "/api/v1/tickets/delete-batch", map[string]any{"ids": ids[:2]}, nil)
	require.NoError(t, env.events.DeleteTickets(e))
	assert.JSONEq(t, `{"requested":2,"deleted":2}`, rec.Body.String())

	e, rec = env.request(http.MethodPost, "/api/v1/scan/validate", map[string]any{"code": "TKT-HANDLER-001"}, nil)
	require.NoError(t, env.scan.Validate(e))
	var msg services.OutcomeMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))
	assert.Equal(t, models.OutcomeInvalid, msg.Outcome.Kind, "a deleted ticket is not found")
}

func TestAPIError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: 0", status.ErrInvalidQuantity), http.StatusBadRequest},
		{status.ErrInvalidDesign, http.StatusBadRequest},
		{status.ErrEventNotFound, http.StatusNotFound},
		{status.ErrTicketNotFound, http.StatusNotFound},
		{status.ErrBusy, http.StatusConflict},
		{fmt.Errorf("%w: rasterize", status.ErrExport), http.StatusInternalServerError},
		{fmt.Errorf("%w: boom", status.ErrStore), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, apiStatus(t, apiError(tt.err)), tt.err.Error())
	}
}

func TestRoutes_Health(t *testing.T) {
	env := setupTestEnv(t)

	routes := &Routes{}
	e, rec := env.request(http.MethodGet, "/health", nil, nil)
	require.NoError(t, routes.Health(e))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())

	client, mock := redismock.NewClientMock()
	mock.ExpectPing().SetErr(errors.New("connection refused"))
	routes.Redis = client

	e, rec = env.request(http.MethodGet, "/health", nil, nil)
	require.NoError(t, routes.Health(e))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "unhealthy")
	assert.NoError(t, mock.ExpectationsWereMet())
}
