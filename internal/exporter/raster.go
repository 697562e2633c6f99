package exporter

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"

	"qrticket/internal/fonts"
	"qrticket/internal/layout"
)

// DefaultScale is the pixel density used for print output.
const DefaultScale = 2.0

var placeholderQR = color.RGBA{R: 0xe5, G: 0xe7, B: 0xeb, A: 0xff}

// Rasterize paints doc at scale pixels per layout unit. Pixels outside the
// rounded ticket outline stay transparent.
func Rasterize(doc *layout.Document, scale float64) (*image.RGBA, error) {
	if doc == nil || doc.Root == nil {
		return nil, errEmptyDocument
	}
	if scale <= 0 {
		scale = DefaultScale
	}

	bounds := image.Rect(0, 0, int(math.Round(doc.Width*scale)), int(math.Round(doc.Height*scale)))
	if bounds.Empty() {
		return nil, errEmptyDocument
	}

	layer := image.NewRGBA(bounds)
	for _, child := range doc.Root.Children {
		if err := paint(layer, child, scale); err != nil {
			return nil, err
		}
	}

	out := image.NewRGBA(bounds)
	fillShape(out, bounds, doc.Root.Radius*scale, 0, layer, image.Point{})
	return out, nil
}

func paint(dst *image.RGBA, n *layout.Node, scale float64) error {
	r := pixelRect(n.Rect, scale)

	switch n.Kind {
	case layout.KindGradient:
		fillShape(dst, r, n.Radius*scale, 0, gradient(r.Dx(), r.Dy(), n.Fill, n.FillTo), image.Point{})
	case layout.KindImage:
		paintImage(dst, n, r, scale)
	case layout.KindBox:
		if n.Opacity > 0 {
			fillShape(dst, r, n.Radius*scale, 0, image.NewUniform(withOpacity(n.Fill, n.Opacity)), image.Point{})
		}
		if n.StrokeWidth > 0 {
			fillShape(dst, r, n.Radius*scale, n.StrokeWidth*scale, image.NewUniform(n.Stroke), image.Point{})
		}
	}

	if n.Text != nil {
		if err := paintText(dst, n, scale); err != nil {
			return err
		}
	}

	for _, c := range n.Children {
		if err := paint(dst, c, scale); err != nil {
			return err
		}
	}
	return nil
}

func paintImage(dst *image.RGBA, n *layout.Node, r image.Rectangle, scale float64) {
	if r.Empty() {
		return
	}
	if n.Image == nil {
		fillShape(dst, r, n.Radius*scale, 0, image.NewUniform(placeholderQR), image.Point{})
		return
	}

	var src image.Image
	switch n.Fit {
	case layout.FitCover:
		src = imaging.Fill(n.Image, r.Dx(), r.Dy(), imaging.Center, imaging.Lanczos)
	default:
		// Nearest neighbour keeps QR modules crisp.
		src = resize.Resize(uint(r.Dx()), uint(r.Dy()), n.Image, resize.NearestNeighbor)
	}
	fillShape(dst, r, n.Radius*scale, 0, src, src.Bounds().Min)
}

func paintText(dst *image.RGBA, n *layout.Node, scale float64) error {
	t := n.Text
	face, err := fonts.Face(t.Size*scale, t.Bold)
	if err != nil {
		return err
	}

	unlock := fonts.Lock()
	defer unlock()

	ascent := float64(face.Metrics().Ascent) / 64
	d := font.Drawer{Dst: dst, Src: image.NewUniform(t.Color), Face: face}

	left := (n.Rect.X + t.PadX) * scale
	width := (n.Rect.W - 2*t.PadX) * scale
	top := (n.Rect.Y + t.PadY) * scale
	lineH := t.LineHeight * scale
	// Centre the glyph box in the line box.
	lead := (lineH - float64(face.Metrics().Height)/64) / 2

	for i, line := range t.Lines {
		x := left
		if t.Align == layout.AlignCenter {
			x += (width - float64(font.MeasureString(face, line))/64) / 2
		}
		y := top + float64(i)*lineH + lead + ascent
		d.Dot = fixed.Point26_6{X: fixed.Int26_6(x * 64), Y: fixed.Int26_6(y * 64)}
		d.DrawString(line)
	}
	return nil
}

func pixelRect(r layout.Rect, scale float64) image.Rectangle {
	return image.Rect(
		int(math.Round(r.X*scale)),
		int(math.Round(r.Y*scale)),
		int(math.Round((r.X+r.W)*scale)),
		int(math.Round((r.Y+r.H)*scale)),
	)
}

func withOpacity(c color.RGBA, opacity float64) color.NRGBA {
	if opacity > 1 {
		opacity = 1
	}
	return color.NRGBA{R: c.R, G: c.G, B: c.B, A: uint8(math.Round(float64(c.A) * opacity))}
}

// gradient is a diagonal two-stop blend from the top-left to the bottom-right.
func gradient(w, h int, from, to color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	span := float64(w + h - 2)
	if span <= 0 {
		span = 1
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			t := float64(x+y) / span
			img.SetRGBA(x, y, color.RGBA{
				R: lerp(from.R, to.R, t),
				G: lerp(from.G, to.G, t),
				B: lerp(from.B, to.B, t),
				A: lerp(from.A, to.A, t),
			})
		}
	}
	return img
}

func lerp(a, b uint8, t float64) uint8 {
	return uint8(math.Round(float64(a) + (float64(b)-float64(a))*t))
}

// fillShape composites src over dst through a rounded rectangle covering r.
// A positive ring paints only a border of that width.
func fillShape(dst draw.Image, r image.Rectangle, radius, ring float64, src image.Image, sp image.Point) {
	if r.Empty() {
		return
	}
	w, h := float64(r.Dx()), float64(r.Dy())

	z := vector.NewRasterizer(r.Dx(), r.Dy())
	z.DrawOp = draw.Over
	tracePath(z, roundedRect(0, 0, w, h, radius), false)
	if ring > 0 && ring*2 < math.Min(w, h) {
		inner := math.Max(0, radius-ring)
		tracePath(z, roundedRect(ring, ring, w-ring, h-ring, inner), true)
	}
	z.Draw(dst, r, src, sp)
}

type point struct{ x, y float64 }

const cornerSteps = 8

// roundedRect returns the outline clockwise in screen space.
func roundedRect(x0, y0, x1, y1, radius float64) []point {
	radius = math.Min(radius, math.Min(x1-x0, y1-y0)/2)
	if radius <= 0 {
		return []point{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}}
	}

	corners := []struct {
		cx, cy, start float64
	}{
		{x0 + radius, y0 + radius, math.Pi},
		{x1 - radius, y0 + radius, 1.5 * math.Pi},
		{x1 - radius, y1 - radius, 0},
		{x0 + radius, y1 - radius, 0.5 * math.Pi},
	}

	pts := make([]point, 0, len(corners)*(cornerSteps+1))
	for _, c := range corners {
		for i := 0; i <= cornerSteps; i++ {
			a := c.start + float64(i)/cornerSteps*math.Pi/2
			pts = append(pts, point{c.cx + radius*math.Cos(a), c.cy + radius*math.Sin(a)})
		}
	}
	return pts
}

// tracePath adds a closed polygon. Reversed polygons cut holes.
func tracePath(z *vector.Rasterizer, pts []point, reverse bool) {
	if len(pts) == 0 {
		return
	}
	at := func(i int) point {
		if reverse {
			return pts[len(pts)-1-i]
		}
		return pts[i]
	}

	p := at(0)
	z.MoveTo(float32(p.x), float32(p.y))
	for i := 1; i < len(pts); i++ {
		p = at(i)
		z.LineTo(float32(p.x), float32(p.y))
	}
	z.ClosePath()
}
