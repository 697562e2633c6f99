package layout

import (
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrticket/internal/fonts"
	"qrticket/models"
)

func baseInput() Input {
	return Input{
		Title:        "Romeo y Julieta",
		Subtitle:     "Teatro Nacional, main hall",
		TicketNumber: 7,
		DateText:     "Sat, Mar 14, 2026 · 20:00",
		QR:           image.NewGray(image.Rect(0, 0, 200, 200)),
		Options:      models.DefaultDesignOptions(),
	}
}

func ptr(v float64) *float64 { return &v }

func TestLayoutTicket_Deterministic(t *testing.T) {
	in := baseInput()
	in.Background = image.NewRGBA(image.Rect(0, 0, 50, 50))

	a := LayoutTicket(in)
	b := LayoutTicket(in)

	assert.Equal(t, a, b)
	assert.Equal(t, a.IDs(), b.IDs())
}

func TestLayoutTicket_CanvasFixedPerOrientation(t *testing.T) {
	long := strings.Repeat("extraordinarily ", 120)

	tests := []struct {
		name        string
		orientation models.Orientation
		w, h        float64
	}{
		{"landscape", models.OrientationLandscape, LandscapeWidth, LandscapeHeight},
		{"portrait", models.OrientationPortrait, PortraitWidth, PortraitHeight},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := baseInput()
			in.Options.Orientation = tt.orientation

			short := LayoutTicket(in)
			in.Title, in.Subtitle = long, long
			stretched := LayoutTicket(in)

			for _, doc := range []*Document{short, stretched} {
				assert.Equal(t, tt.w, doc.Width)
				assert.Equal(t, tt.h, doc.Height)
				assert.Equal(t, tt.w, doc.Root.Rect.W)
				assert.Equal(t, tt.h, doc.Root.Rect.H)
			}
			if tt.orientation == models.OrientationPortrait {
				assert.Greater(t, short.Height, short.Width)
			} else {
				assert.Greater(t, short.Width, short.Height)
			}
		})
	}
}

func TestLayoutTicket_ToggleRemovesOnlyItsElement(t *testing.T) {
	full := LayoutTicket(baseInput()).IDs()
	require.Contains(t, full, IDTitle)
	require.Contains(t, full, IDSubtitle)
	require.Contains(t, full, IDDate)
	require.Contains(t, full, IDTicketNumber)

	toggles := []struct {
		id  string
		off func(o *models.RenderDesignOptions)
	}{
		{IDTitle, func(o *models.RenderDesignOptions) { o.ShowEventTitle = false }},
		{IDSubtitle, func(o *models.RenderDesignOptions) { o.ShowEventDescription = false }},
		{IDDate, func(o *models.RenderDesignOptions) { o.ShowEventDate = false }},
		{IDTicketNumber, func(o *models.RenderDesignOptions) { o.ShowTicketNumber = false }},
	}

	for _, orientation := range []models.Orientation{models.OrientationLandscape, models.OrientationPortrait} {
		for _, tg := range toggles {
			t.Run(string(orientation)+"/"+tg.id, func(t *testing.T) {
				in := baseInput()
				in.Options.Orientation = orientation
				full := LayoutTicket(in).IDs()

				tg.off(&in.Options)
				got := LayoutTicket(in).IDs()

				var want []string
				for _, id := range full {
					if id != tg.id {
						want = append(want, id)
					}
				}
				assert.ElementsMatch(t, want, got)
			})
		}
	}
}

func TestLayoutTicket_Background(t *testing.T) {
	t.Run("image with default overlay", func(t *testing.T) {
		in := baseInput()
		in.Background = image.NewRGBA(image.Rect(0, 0, 10, 10))
		doc := LayoutTicket(in)

		bg := doc.Find(IDBackground)
		require.NotNil(t, bg)
		assert.Equal(t, KindImage, bg.Kind)
		assert.Equal(t, FitCover, bg.Fit)

		overlay := doc.Find(IDOverlay)
		require.NotNil(t, overlay)
		assert.InDelta(t, models.DefaultOverlayOpacity, overlay.Opacity, 1e-9)
	})

	t.Run("gradient without image", func(t *testing.T) {
		doc := LayoutTicket(baseInput())

		bg := doc.Find(IDBackground)
		require.NotNil(t, bg)
		assert.Equal(t, KindGradient, bg.Kind)
		assert.Equal(t, uint8(0x1e), bg.Fill.R)
		assert.Equal(t, uint8(0x7c), bg.FillTo.R)
		assert.Nil(t, doc.Find(IDOverlay))
	})

	t.Run("explicit overlay", func(t *testing.T) {
		in := baseInput()
		in.Options.OverlayOpacity = ptr(0.3)
		overlay := LayoutTicket(in).Find(IDOverlay)
		require.NotNil(t, overlay)
		assert.InDelta(t, 0.3, overlay.Opacity, 1e-9)
	})
}

func TestLayoutTicket_PreviewPlaceholders(t *testing.T) {
	in := baseInput()
	in.Title, in.Subtitle, in.DateText = "", "  ", ""
	in.Preview = true

	doc := LayoutTicket(in)
	require.NotNil(t, doc.Find(IDTitle))
	assert.Equal(t, []string{PlaceholderTitle}, doc.Find(IDTitle).Text.Lines)
	assert.Equal(t, []string{PlaceholderSubtitle}, doc.Find(IDSubtitle).Text.Lines)
	assert.Equal(t, []string{PlaceholderDate}, doc.Find(IDDate).Text.Lines)

	in.Preview = false
	doc = LayoutTicket(in)
	assert.Nil(t, doc.Find(IDTitle))
	assert.Nil(t, doc.Find(IDSubtitle))
	assert.Nil(t, doc.Find(IDDate))
}

func TestLayoutTicket_TicketNumberClamped(t *testing.T) {
	for _, n := range []int{0, -5} {
		in := baseInput()
		in.TicketNumber = n
		node := LayoutTicket(in).Find(IDTicketNumber)
		require.NotNil(t, node)
		assert.Equal(t, []string{"#001"}, node.Text.Lines)
	}

	in := baseInput()
	in.TicketNumber = 42
	assert.Equal(t, []string{"#042"}, LayoutTicket(in).Find(IDTicketNumber).Text.Lines)
}

func TestLayoutTicket_LongTitleWrapsAndClips(t *testing.T) {
	in := baseInput()
	in.Title = strings.Repeat("word ", 200)

	doc := LayoutTicket(in)
	title := doc.Find(IDTitle)
	require.NotNil(t, title)

	lines := title.Text.Lines
	assert.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[len(lines)-1], "…"))
	for _, l := range lines {
		assert.LessOrEqual(t, fonts.Measure(l, title.Text.Size, true), title.Rect.W)
	}

	block := doc.Find(IDTextBlock)
	for _, c := range block.Children {
		assert.GreaterOrEqual(t, c.Rect.Y, block.Rect.Y)
		assert.LessOrEqual(t, c.Rect.Y+c.Rect.H, block.Rect.Y+block.Rect.H+0.001)
	}
}

func TestLayoutTicket_FontSizes(t *testing.T) {
	in := baseInput()
	doc := LayoutTicket(in)
	assert.Equal(t, 36.0, doc.Find(IDTitle).Text.Size)
	assert.Equal(t, 18.0, doc.Find(IDSubtitle).Text.Size)

	in.Options.Orientation = models.OrientationPortrait
	doc = LayoutTicket(in)
	assert.Equal(t, 28.0, doc.Find(IDTitle).Text.Size)
	assert.Equal(t, 16.0, doc.Find(IDSubtitle).Text.Size)

	in.Options.TitleFontSize = ptr(48)
	in.Options.SubtitleFontSize = ptr(12)
	doc = LayoutTicket(in)
	assert.Equal(t, 48.0, doc.Find(IDTitle).Text.Size)
	assert.Equal(t, 12.0, doc.Find(IDSubtitle).Text.Size)
}

func TestLayoutTicket_QRPlacement(t *testing.T) {
	tests := []struct {
		name        string
		orientation models.Orientation
		position    models.QRPosition
		card        Rect
		textX       float64
		textY       float64
	}{
		{"landscape end", models.OrientationLandscape, models.QRPositionEnd, Rect{X: 684, Y: 88, W: 184, H: 184}, 32, 32},
		{"landscape start", models.OrientationLandscape, models.QRPositionStart, Rect{X: 32, Y: 88, W: 184, H: 184}, 240, 32},
		{"portrait end", models.OrientationPortrait, models.QRPositionEnd, Rect{X: 108, Y: 488, W: 184, H: 184}, 28, 28},
		{"portrait start", models.OrientationPortrait, models.QRPositionStart, Rect{X: 108, Y: 28, W: 184, H: 184}, 28, 236},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := baseInput()
			in.Options.Orientation = tt.orientation
			in.Options.QRPosition = tt.position
			doc := LayoutTicket(in)

			assert.Equal(t, tt.card, doc.Find(IDQRCard).Rect)
			assert.Equal(t, Rect{X: tt.card.X + 12, Y: tt.card.Y + 12, W: 160, H: 160}, doc.Find(IDQRImage).Rect)

			text := doc.Find(IDTextBlock).Rect
			assert.Equal(t, tt.textX, text.X)
			assert.Equal(t, tt.textY, text.Y)
		})
	}
}

func TestLayoutTicket_QRSizeTiers(t *testing.T) {
	for size, px := range map[models.QRSize]float64{
		models.QRSizeSmall:  120,
		models.QRSizeMedium: 160,
		models.QRSizeLarge:  200,
	} {
		in := baseInput()
		in.Options.QRSize = size
		img := LayoutTicket(in).Find(IDQRImage)
		assert.Equal(t, px, img.Rect.W, size)
		assert.Equal(t, px, img.Rect.H, size)
	}
}

func TestLayoutTicket_BorderStyleAffectsCardOnly(t *testing.T) {
	tests := []struct {
		style       models.QRBorderStyle
		radius      float64
		strokeWidth float64
	}{
		{models.QRBorderNone, 0, 0},
		{models.QRBorderRounded, 16, 0},
		{models.QRBorderSquare, 0, 2},
	}

	for _, tt := range tests {
		t.Run(string(tt.style), func(t *testing.T) {
			in := baseInput()
			in.Options.QRBorderStyle = tt.style
			doc := LayoutTicket(in)

			card := doc.Find(IDQRCard)
			assert.Equal(t, tt.radius, card.Radius)
			assert.Equal(t, tt.strokeWidth, card.StrokeWidth)

			img := doc.Find(IDQRImage)
			assert.Zero(t, img.Radius)
			assert.Zero(t, img.StrokeWidth)
		})
	}
}

func TestPlacementLabel(t *testing.T) {
	assert.Equal(t, "QR left", PlacementLabel(models.OrientationLandscape, models.QRPositionStart))
	assert.Equal(t, "QR right", PlacementLabel(models.OrientationLandscape, models.QRPositionEnd))
	assert.Equal(t, "QR above", PlacementLabel(models.OrientationPortrait, models.QRPositionStart))
	assert.Equal(t, "QR below", PlacementLabel(models.OrientationPortrait, models.QRPositionEnd))
}

func TestParseHex(t *testing.T) {
	fallback := parseHex("#000000", parseHex("#fff", fallbackWhite()))
	assert.Equal(t, uint8(0), fallback.R)

	c := parseHex("#abc", fallbackWhite())
	assert.Equal(t, uint8(0xaa), c.R)
	assert.Equal(t, uint8(0xbb), c.G)
	assert.Equal(t, uint8(0xcc), c.B)

	assert.Equal(t, fallbackWhite(), parseHex("nope", fallbackWhite()))
}

func fallbackWhite() color.RGBA { return color.RGBA{R: 255, G: 255, B: 255, A: 255} }
