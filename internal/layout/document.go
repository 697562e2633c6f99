package layout

import (
	"image"
	"image/color"
)

type Kind string

const (
	KindFrame    Kind = "frame"
	KindGradient Kind = "gradient"
	KindImage    Kind = "image"
	KindBox      Kind = "box"
	KindText     Kind = "text"
)

type Align string

const (
	AlignLeft   Align = "left"
	AlignCenter Align = "center"
)

// ImageFit says how an image node maps its source onto its rect.
type ImageFit string

const (
	FitCover   ImageFit = "cover"
	FitStretch ImageFit = "stretch"
)

// Node IDs assigned by LayoutTicket.
const (
	IDTicket       = "ticket"
	IDBackground   = "background"
	IDOverlay      = "overlay"
	IDTextBlock    = "text-block"
	IDTitle        = "title"
	IDSubtitle     = "subtitle"
	IDDate         = "date"
	IDTicketNumber = "ticket-number"
	IDQRBlock      = "qr-block"
	IDQRCard       = "qr-card"
	IDQRImage      = "qr-image"
)

// Rect is in layout units relative to the canvas origin.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

type Text struct {
	Lines      []string   `json:"lines"`
	Size       float64    `json:"size"`
	Bold       bool       `json:"bold"`
	Color      color.RGBA `json:"color"`
	LineHeight float64    `json:"line_height"`
	Align      Align      `json:"align"`
	PadX       float64    `json:"pad_x"`
	PadY       float64    `json:"pad_y"`
}

type Node struct {
	ID          string      `json:"id"`
	Kind        Kind        `json:"kind"`
	Rect        Rect        `json:"rect"`
	Fill        color.RGBA  `json:"fill"`
	FillTo      color.RGBA  `json:"fill_to"`
	Opacity     float64     `json:"opacity"`
	Radius      float64     `json:"radius"`
	Stroke      color.RGBA  `json:"stroke"`
	StrokeWidth float64     `json:"stroke_width"`
	Image       image.Image `json:"-"`
	Fit         ImageFit    `json:"fit,omitempty"`
	Text        *Text       `json:"text,omitempty"`
	Children    []*Node     `json:"children,omitempty"`
}

// Document is the visual tree of one ticket. It is both the live-preview
// payload and the input to the exporter.
type Document struct {
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
	Orientation string  `json:"orientation"`
	Root        *Node   `json:"root"`
}

// Walk visits nodes depth first in paint order.
func (d *Document) Walk(fn func(n *Node)) {
	if d == nil || d.Root == nil {
		return
	}
	walk(d.Root, fn)
}

func walk(n *Node, fn func(n *Node)) {
	fn(n)
	for _, c := range n.Children {
		walk(c, fn)
	}
}

func (d *Document) Find(id string) *Node {
	var found *Node
	d.Walk(func(n *Node) {
		if found == nil && n.ID == id {
			found = n
		}
	})
	return found
}

func (d *Document) IDs() []string {
	var ids []string
	d.Walk(func(n *Node) {
		ids = append(ids, n.ID)
	})
	return ids
}
