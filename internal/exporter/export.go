// Package exporter rasterizes ticket documents and packages them as PDF or
// PNG files handed to a Saver.
package exporter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"log/slog"
	"regexp"
	"strings"

	"github.com/go-pdf/fpdf"

	"qrticket/internal/layout"
	"qrticket/internal/status"
)

// CSS pixels per inch, used to size pages from bitmap pixels.
const pixelsPerInch = 96.0

var errEmptyDocument = errors.New("empty document")

// Saver persists one exported file.
type Saver interface {
	Save(ctx context.Context, name string, data []byte) error
}

type Exporter struct {
	Scale float64
}

func New() *Exporter {
	return &Exporter{Scale: DefaultScale}
}

// Export renders doc into a single-page PDF whose page matches the bitmap at
// 96 DPI and saves it as filename. Any failure is reported as ErrExport and
// only concerns this document.
func (e *Exporter) Export(ctx context.Context, doc *layout.Document, filename, eventName string, saver Saver) error {
	data, err := e.PDF(ctx, doc, eventName)
	if err != nil {
		return err
	}
	return e.save(ctx, saver, withExt(filename, ".pdf"), data)
}

func (e *Exporter) ExportPNG(ctx context.Context, doc *layout.Document, filename string, saver Saver) error {
	data, err := e.PNG(ctx, doc)
	if err != nil {
		return err
	}
	return e.save(ctx, saver, withExt(filename, ".png"), data)
}

func (e *Exporter) PNG(ctx context.Context, doc *layout.Document) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", status.ErrExport, err)
	}

	img, err := Rasterize(doc, e.Scale)
	if err != nil {
		slog.Error("Failed to rasterize ticket", "error", err)
		return nil, fmt.Errorf("%w: rasterize: %w", status.ErrExport, err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		slog.Error("Failed to encode ticket png", "error", err)
		return nil, fmt.Errorf("%w: encode png: %w", status.ErrExport, err)
	}
	return buf.Bytes(), nil
}

func (e *Exporter) PDF(ctx context.Context, doc *layout.Document, eventName string) ([]byte, error) {
	img, err := e.PNG(ctx, doc)
	if err != nil {
		return nil, err
	}

	wmm := pxToMM(doc.Width * e.scale())
	hmm := pxToMM(doc.Height * e.scale())

	orientation := "P"
	if wmm > hmm {
		orientation = "L"
	}

	// fpdf takes the page size portrait-first and swaps it for landscape.
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: orientation,
		UnitStr:        "mm",
		Size:           fpdf.SizeType{Wd: min(wmm, hmm), Ht: max(wmm, hmm)},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetTitle(eventName, true)
	pdf.SetSubject("Ticket", false)
	pdf.SetCreator("qrticket", false)
	pdf.AddPage()

	opts := fpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("ticket", opts, bytes.NewReader(img))
	pdf.ImageOptions("ticket", 0, 0, wmm, hmm, false, opts, 0, "")

	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		slog.Error("Failed to package ticket pdf", "event", eventName, "error", err)
		return nil, fmt.Errorf("%w: package pdf: %w", status.ErrExport, err)
	}
	return out.Bytes(), nil
}

func (e *Exporter) save(ctx context.Context, saver Saver, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", status.ErrExport, err)
	}
	if err := saver.Save(ctx, name, data); err != nil {
		slog.Error("Failed to save ticket", "file", name, "error", err)
		return fmt.Errorf("%w: save %s: %w", status.ErrExport, name, err)
	}
	return nil
}

func (e *Exporter) scale() float64 {
	if e.Scale <= 0 {
		return DefaultScale
	}
	return e.Scale
}

func pxToMM(px float64) float64 {
	return px * 25.4 / pixelsPerInch
}

func withExt(name, ext string) string {
	if strings.HasSuffix(strings.ToLower(name), ext) {
		return name
	}
	return name + ext
}

var unsafeChars = regexp.MustCompile(`[^a-z0-9]+`)

// TicketFilename builds the per-ticket file name, without extension, from the
// event name and the ticket number.
func TicketFilename(eventName string, number int) string {
	slug := strings.Trim(unsafeChars.ReplaceAllString(strings.ToLower(eventName), "-"), "-")
	if slug == "" {
		slug = "event"
	}
	return fmt.Sprintf("%s-ticket-%s", slug, strings.TrimPrefix(layout.FormatTicketNumber(number), "#"))
}
