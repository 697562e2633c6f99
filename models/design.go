package models

import (
	"encoding/json"
	"fmt"
	"regexp"

	"qrticket/internal/status"
)

type QRSize string

const (
	QRSizeSmall  QRSize = "small"
	QRSizeMedium QRSize = "medium"
	QRSizeLarge  QRSize = "large"
)

type QRBorderStyle string

const (
	QRBorderNone    QRBorderStyle = "none"
	QRBorderRounded QRBorderStyle = "rounded"
	QRBorderSquare  QRBorderStyle = "square"
)

type Orientation string

const (
	OrientationLandscape Orientation = "landscape"
	OrientationPortrait  Orientation = "portrait"
)

type QRPosition string

const (
	QRPositionStart QRPosition = "start"
	QRPositionEnd   QRPosition = "end"
)

// DefaultOverlayOpacity applies when a background image is present and no
// opacity was chosen.
const DefaultOverlayOpacity = 0.55

var hexColor = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// RenderDesignOptions is the declarative bundle of visual parameters consumed
// by the layout engine. Optional numeric fields are nil when unset so that
// their defaults can depend on orientation or on the presence of an image.
type RenderDesignOptions struct {
	BackgroundColor      string        `json:"background_color"`
	AccentColor          string        `json:"accent_color"`
	TextColor            string        `json:"text_color"`
	QRSize               QRSize        `json:"qr_size"`
	TitleFontSize        *float64      `json:"title_font_size,omitempty"`
	SubtitleFontSize     *float64      `json:"subtitle_font_size,omitempty"`
	OverlayOpacity       *float64      `json:"overlay_opacity,omitempty"`
	ShowTicketNumber     bool          `json:"show_ticket_number"`
	ShowEventTitle       bool          `json:"show_event_title"`
	ShowEventDescription bool          `json:"show_event_description"`
	ShowEventDate        bool          `json:"show_event_date"`
	QRBorderStyle        QRBorderStyle `json:"qr_border_style"`
	Orientation          Orientation   `json:"orientation"`
	QRPosition           QRPosition    `json:"qr_position"`
}

func DefaultDesignOptions() RenderDesignOptions {
	return RenderDesignOptions{
		BackgroundColor:      "#1e1b4b",
		AccentColor:          "#7c3aed",
		TextColor:            "#ffffff",
		QRSize:               QRSizeMedium,
		ShowTicketNumber:     true,
		ShowEventTitle:       true,
		ShowEventDescription: true,
		ShowEventDate:        true,
		QRBorderStyle:        QRBorderRounded,
		Orientation:          OrientationLandscape,
		QRPosition:           QRPositionEnd,
	}
}

// UnmarshalJSON starts from the defaults so that absent keys keep them.
func (o *RenderDesignOptions) UnmarshalJSON(data []byte) error {
	type alias RenderDesignOptions
	a := alias(DefaultDesignOptions())
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*o = RenderDesignOptions(a)
	return nil
}

// EffectiveOverlayOpacity resolves the overlay opacity for a render with or
// without a background image.
func (o RenderDesignOptions) EffectiveOverlayOpacity(hasImage bool) float64 {
	if o.OverlayOpacity != nil {
		return *o.OverlayOpacity
	}
	if hasImage {
		return DefaultOverlayOpacity
	}
	return 0
}

func (o RenderDesignOptions) Validate() error {
	for name, c := range map[string]string{
		"background_color": o.BackgroundColor,
		"accent_color":     o.AccentColor,
		"text_color":       o.TextColor,
	} {
		if !hexColor.MatchString(c) {
			return fmt.Errorf("%w: %s %q is not a hex color", status.ErrInvalidDesign, name, c)
		}
	}

	switch o.QRSize {
	case QRSizeSmall, QRSizeMedium, QRSizeLarge:
	default:
		return fmt.Errorf("%w: qr_size %q", status.ErrInvalidDesign, o.QRSize)
	}

	switch o.QRBorderStyle {
	case QRBorderNone, QRBorderRounded, QRBorderSquare:
	default:
		return fmt.Errorf("%w: qr_border_style %q", status.ErrInvalidDesign, o.QRBorderStyle)
	}

	switch o.Orientation {
	case OrientationLandscape, OrientationPortrait:
	default:
		return fmt.Errorf("%w: orientation %q", status.ErrInvalidDesign, o.Orientation)
	}

	switch o.QRPosition {
	case QRPositionStart, QRPositionEnd:
	default:
		return fmt.Errorf("%w: qr_position %q", status.ErrInvalidDesign, o.QRPosition)
	}

	if o.OverlayOpacity != nil && (*o.OverlayOpacity < 0 || *o.OverlayOpacity > 1) {
		return fmt.Errorf("%w: overlay_opacity %v outside [0,1]", status.ErrInvalidDesign, *o.OverlayOpacity)
	}

	for name, size := range map[string]*float64{
		"title_font_size":    o.TitleFontSize,
		"subtitle_font_size": o.SubtitleFontSize,
	} {
		if size != nil && (*size < 6 || *size > 120) {
			return fmt.Errorf("%w: %s %v outside [6,120]", status.ErrInvalidDesign, name, *size)
		}
	}

	return nil
}
