// Package layout turns ticket fields and design options into a styled
// document tree. LayoutTicket is pure: the same Input always yields the same
// tree, which is what lets the preview endpoint re-run it on every change.
package layout

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strconv"
	"strings"
	"time"

	"qrticket/models"
)

const (
	LandscapeWidth  = 900.0
	LandscapeHeight = 360.0
	PortraitWidth   = 400.0
	PortraitHeight  = 700.0

	PlaceholderTitle    = "Event title"
	PlaceholderSubtitle = "Event description"
	PlaceholderDate     = "Event date"

	ticketRadius  = 16.0
	cardPadding   = 12.0
	blockGap      = 24.0
	badgeFontSize = 14.0
	badgePadX     = 12.0
	badgePadY     = 6.0
	badgeGap      = 8.0
	lineSpacing   = 1.25
	ellipsis      = "…"
)

type Input struct {
	Title        string
	Subtitle     string
	TicketNumber int
	DateText     string
	QR           image.Image
	Background   image.Image
	Options      models.RenderDesignOptions
	// Preview substitutes placeholders for empty fields.
	Preview bool
}

type metrics struct {
	width, height float64
	padding       float64
	titleSize     float64
	subtitleSize  float64
	titleLines    int
	subtitleLines int
	align         Align
}

func metricsFor(o models.Orientation) metrics {
	if o == models.OrientationPortrait {
		return metrics{
			width: PortraitWidth, height: PortraitHeight, padding: 28,
			titleSize: 28, subtitleSize: 16, titleLines: 3, subtitleLines: 4,
			align: AlignCenter,
		}
	}
	return metrics{
		width: LandscapeWidth, height: LandscapeHeight, padding: 32,
		titleSize: 36, subtitleSize: 18, titleLines: 2, subtitleLines: 3,
		align: AlignLeft,
	}
}

// QRPixels is the edge of the QR image inside the card for a size tier.
func QRPixels(size models.QRSize) float64 {
	switch size {
	case models.QRSizeSmall:
		return 120
	case models.QRSizeLarge:
		return 200
	default:
		return 160
	}
}

// DefaultFontSizes returns the title and subtitle sizes used when the design
// does not override them.
func DefaultFontSizes(o models.Orientation) (title, subtitle float64) {
	m := metricsFor(o)
	return m.titleSize, m.subtitleSize
}

// PlacementLabel describes where the QR block lands for the configuration UI.
func PlacementLabel(o models.Orientation, p models.QRPosition) string {
	first := p == models.QRPositionStart
	if o == models.OrientationPortrait {
		if first {
			return "QR above"
		}
		return "QR below"
	}
	if first {
		return "QR left"
	}
	return "QR right"
}

func FormatEventDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("Mon, Jan 2, 2006 · 15:04")
}

func FormatTicketNumber(n int) string {
	return fmt.Sprintf("#%03d", n)
}

func LayoutTicket(in Input) *Document {
	opts := in.Options
	m := metricsFor(opts.Orientation)
	if opts.TitleFontSize != nil {
		m.titleSize = *opts.TitleFontSize
	}
	if opts.SubtitleFontSize != nil {
		m.subtitleSize = *opts.SubtitleFontSize
	}

	def := models.DefaultDesignOptions()
	bg := parseHex(opts.BackgroundColor, parseHex(def.BackgroundColor, color.RGBA{A: 255}))
	accent := parseHex(opts.AccentColor, parseHex(def.AccentColor, color.RGBA{A: 255}))
	textColor := parseHex(opts.TextColor, color.RGBA{R: 255, G: 255, B: 255, A: 255})

	canvas := Rect{W: m.width, H: m.height}
	root := &Node{ID: IDTicket, Kind: KindFrame, Rect: canvas, Radius: ticketRadius}

	if in.Background != nil {
		root.Children = append(root.Children, &Node{
			ID: IDBackground, Kind: KindImage, Rect: canvas, Image: in.Background,
			Fit: FitCover, Opacity: 1, Radius: ticketRadius,
		})
	} else {
		root.Children = append(root.Children, &Node{
			ID: IDBackground, Kind: KindGradient, Rect: canvas, Fill: bg, FillTo: accent,
			Opacity: 1, Radius: ticketRadius,
		})
	}

	if op := opts.EffectiveOverlayOpacity(in.Background != nil); op > 0 {
		root.Children = append(root.Children, &Node{
			ID: IDOverlay, Kind: KindBox, Rect: canvas, Fill: color.RGBA{A: 255},
			Opacity: op, Radius: ticketRadius,
		})
	}

	qrPx := QRPixels(opts.QRSize)
	cardEdge := qrPx + 2*cardPadding
	inner := Rect{X: m.padding, Y: m.padding, W: m.width - 2*m.padding, H: m.height - 2*m.padding}
	qrFirst := opts.QRPosition == models.QRPositionStart

	var textRect, qrRect Rect
	if opts.Orientation == models.OrientationPortrait {
		textH := inner.H - cardEdge - blockGap
		qrRect = Rect{X: inner.X, W: inner.W, H: cardEdge}
		textRect = Rect{X: inner.X, W: inner.W, H: textH}
		if qrFirst {
			qrRect.Y = inner.Y
			textRect.Y = inner.Y + cardEdge + blockGap
		} else {
			textRect.Y = inner.Y
			qrRect.Y = inner.Y + textH + blockGap
		}
	} else {
		textW := inner.W - cardEdge - blockGap
		qrRect = Rect{Y: inner.Y, W: cardEdge, H: inner.H}
		textRect = Rect{Y: inner.Y, W: textW, H: inner.H}
		if qrFirst {
			qrRect.X = inner.X
			textRect.X = inner.X + cardEdge + blockGap
		} else {
			textRect.X = inner.X
			qrRect.X = inner.X + textW + blockGap
		}
	}

	root.Children = append(root.Children,
		textBlock(in, m, textRect, textColor, accent),
		qrBlock(in, qrRect, cardEdge, qrPx, accent),
	)

	return &Document{
		Width:       m.width,
		Height:      m.height,
		Orientation: string(orientationOrDefault(opts.Orientation)),
		Root:        root,
	}
}

func orientationOrDefault(o models.Orientation) models.Orientation {
	if o == models.OrientationPortrait {
		return o
	}
	return models.OrientationLandscape
}

func textBlock(in Input, m metrics, r Rect, fg, accent color.RGBA) *Node {
	opts := in.Options
	block := &Node{ID: IDTextBlock, Kind: KindFrame, Rect: r}

	title := strings.TrimSpace(in.Title)
	subtitle := strings.TrimSpace(in.Subtitle)
	date := strings.TrimSpace(in.DateText)
	if in.Preview {
		if title == "" {
			title = PlaceholderTitle
		}
		if subtitle == "" {
			subtitle = PlaceholderSubtitle
		}
		if date == "" {
			date = PlaceholderDate
		}
	}

	number := in.TicketNumber
	if number < 1 {
		number = 1
	}

	var badges []*Node
	if opts.ShowEventDate && date != "" {
		badges = append(badges, badge(IDDate, date, fg, accent))
	}
	if opts.ShowTicketNumber {
		badges = append(badges, badge(IDTicketNumber, FormatTicketNumber(number), fg, accent))
	}
	badgeH := placeBadges(badges, r, m.align)

	avail := r.H
	if badgeH > 0 {
		avail -= badgeH + badgeGap*2
	}

	var texts []*Node
	if opts.ShowEventTitle && title != "" {
		n := textNode(IDTitle, title, m.titleSize, true, m.titleLines, r.W, avail, fg, m.align)
		if n != nil {
			texts = append(texts, n)
			avail -= n.Rect.H + badgeGap
		}
	}
	if opts.ShowEventDescription && subtitle != "" {
		n := textNode(IDSubtitle, subtitle, m.subtitleSize, false, m.subtitleLines, r.W, avail, fg, m.align)
		if n != nil {
			texts = append(texts, n)
		}
	}

	contentH := 0.0
	for i, n := range texts {
		if i > 0 {
			contentH += badgeGap
		}
		contentH += n.Rect.H
	}
	if badgeH > 0 {
		if len(texts) > 0 {
			contentH += badgeGap * 2
		}
		contentH += badgeH
	}

	y := r.Y + math.Max(0, (r.H-contentH)/2)
	for i, n := range texts {
		if i > 0 {
			y += badgeGap
		}
		n.Rect.X = r.X
		n.Rect.Y = y
		y += n.Rect.H
		block.Children = append(block.Children, n)
	}
	if len(badges) > 0 {
		if len(texts) > 0 {
			y += badgeGap * 2
		}
		for _, b := range badges {
			b.Rect.Y += y
			block.Children = append(block.Children, b)
		}
	}

	return block
}

// textNode wraps text into at most maxLines lines that fit in both width and
// height. It returns nil when not even one line fits.
func textNode(id, text string, size float64, bold bool, maxLines int, width, height float64, fg color.RGBA, align Align) *Node {
	lineH := math.Round(size * lineSpacing)
	fit := int(height / lineH)
	if fit < maxLines {
		maxLines = fit
	}
	if maxLines < 1 {
		return nil
	}

	lines := wrap(text, size, bold, width, maxLines)
	return &Node{
		ID:   id,
		Kind: KindText,
		Rect: Rect{W: width, H: lineH * float64(len(lines))},
		Text: &Text{
			Lines:      lines,
			Size:       size,
			Bold:       bold,
			Color:      fg,
			LineHeight: lineH,
			Align:      align,
		},
	}
}

func badge(id, label string, fg, accent color.RGBA) *Node {
	w := measure(label, badgeFontSize, true) + 2*badgePadX
	h := math.Round(badgeFontSize*lineSpacing) + 2*badgePadY
	return &Node{
		ID:      id,
		Kind:    KindBox,
		Rect:    Rect{W: math.Ceil(w), H: h},
		Fill:    accent,
		Opacity: 0.85,
		Radius:  h / 2,
		Text: &Text{
			Lines:      []string{label},
			Size:       badgeFontSize,
			Bold:       true,
			Color:      fg,
			LineHeight: math.Round(badgeFontSize * lineSpacing),
			Align:      AlignLeft,
			PadX:       badgePadX,
			PadY:       badgePadY,
		},
	}
}

// placeBadges flows badges in rows within r and sets their X and row-relative
// Y. Badges wider than the block are shrunk and their label ellipsized.
func placeBadges(badges []*Node, r Rect, align Align) float64 {
	if len(badges) == 0 {
		return 0
	}

	for _, b := range badges {
		if b.Rect.W > r.W {
			b.Rect.W = r.W
			b.Text.Lines[0] = clip(b.Text.Lines[0], b.Text.Size, b.Text.Bold, r.W-2*badgePadX)
		}
	}

	var rows [][]*Node
	var row []*Node
	rowW := 0.0
	for _, b := range badges {
		need := b.Rect.W
		if len(row) > 0 {
			need += badgeGap
		}
		if len(row) > 0 && rowW+need > r.W {
			rows = append(rows, row)
			row, rowW, need = nil, 0, b.Rect.W
		}
		row = append(row, b)
		rowW += need
	}
	rows = append(rows, row)

	y := 0.0
	for i, row := range rows {
		if i > 0 {
			y += badgeGap
		}
		total := 0.0
		for j, b := range row {
			if j > 0 {
				total += badgeGap
			}
			total += b.Rect.W
		}
		x := r.X
		if align == AlignCenter {
			x += (r.W - total) / 2
		}
		rowH := 0.0
		for _, b := range row {
			b.Rect.X = x
			b.Rect.Y = y
			x += b.Rect.W + badgeGap
			rowH = math.Max(rowH, b.Rect.H)
		}
		y += rowH
	}
	return y
}

func qrBlock(in Input, r Rect, cardEdge, qrPx float64, accent color.RGBA) *Node {
	card := &Node{
		ID:      IDQRCard,
		Kind:    KindBox,
		Rect:    Rect{X: r.X + (r.W-cardEdge)/2, Y: r.Y + (r.H-cardEdge)/2, W: cardEdge, H: cardEdge},
		Fill:    color.RGBA{R: 255, G: 255, B: 255, A: 255},
		Opacity: 1,
	}

	switch in.Options.QRBorderStyle {
	case models.QRBorderRounded:
		card.Radius = 16
	case models.QRBorderSquare:
		card.Stroke = accent
		card.StrokeWidth = 2
	}

	card.Children = []*Node{{
		ID:      IDQRImage,
		Kind:    KindImage,
		Rect:    Rect{X: card.Rect.X + cardPadding, Y: card.Rect.Y + cardPadding, W: qrPx, H: qrPx},
		Image:   in.QR,
		Fit:     FitStretch,
		Opacity: 1,
	}}

	return &Node{ID: IDQRBlock, Kind: KindFrame, Rect: r, Children: []*Node{card}}
}

func parseHex(s string, fallback color.RGBA) color.RGBA {
	s = strings.TrimPrefix(s, "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return fallback
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return fallback
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}
}
