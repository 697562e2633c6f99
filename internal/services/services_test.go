package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/pocketbase/pocketbase/core"
	_ "github.com/pocketbase/pocketbase/migrations"
	"github.com/stretchr/testify/require"

	"qrticket/internal/store"
	"qrticket/models"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	app := core.NewBaseApp(core.BaseAppConfig{DataDir: t.TempDir()})
	require.NoError(t, app.Bootstrap())
	t.Cleanup(func() { _ = app.ResetBootstrapState() })
	require.NoError(t, store.EnsureCollections(app))

	return store.New(app)
}

func seedEvent(t *testing.T, s *store.Store) *models.Event {
	t.Helper()
	ev, err := s.InsertEvent(context.Background(), models.Event{
		Name:        "Romeo y Julieta",
		Description: "Teatro Nacional, función de gala",
		EventDate:   time.Date(2025, 12, 1, 20, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return ev
}

func pngDataURL(t *testing.T, w, h int, c color.Color) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}
