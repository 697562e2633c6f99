package codegen

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"qrticket/internal/status"
	"qrticket/models"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// Pixel widths of the three QR tiers.
var tierPixels = map[models.QRSize]int{
	models.QRSizeSmall:  128,
	models.QRSizeMedium: 200,
	models.QRSizeLarge:  256,
}

// TierPixels returns the pixel width for size, defaulting to medium.
func TierPixels(size models.QRSize) int {
	if px, ok := tierPixels[size]; ok {
		return px
	}
	return tierPixels[models.QRSizeMedium]
}

// RenderCode encodes text as a QR code, black on white with a one module margin.
func RenderCode(text string, size models.QRSize) (image.Image, error) {
	px := TierPixels(size)

	hints := map[gozxing.EncodeHintType]interface{}{
		gozxing.EncodeHintType_MARGIN:           1,
		gozxing.EncodeHintType_ERROR_CORRECTION: "M",
		gozxing.EncodeHintType_CHARACTER_SET:    "UTF-8",
	}

	matrix, err := qrcode.NewQRCodeWriter().Encode(text, gozxing.BarcodeFormat_QR_CODE, px, px, hints)
	if err != nil {
		return nil, fmt.Errorf("%w: %d bytes: %v", status.ErrEncoding, len(text), err)
	}

	img := image.NewGray(image.Rect(0, 0, matrix.GetWidth(), matrix.GetHeight()))
	for y := 0; y < matrix.GetHeight(); y++ {
		for x := 0; x < matrix.GetWidth(); x++ {
			if matrix.Get(x, y) {
				img.SetGray(x, y, color.Gray{Y: 0})
			} else {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}

	return img, nil
}

// Decode finds and decodes one QR code in img. A frame without a readable
// code yields status.ErrNoCode.
func Decode(img image.Image) (string, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(withQuietZone(img))
	if err != nil {
		return "", fmt.Errorf("%w: %v", status.ErrNoCode, err)
	}

	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}

	result, err := qrcode.NewQRCodeReader().Decode(bmp, hints)
	if err != nil {
		var notFound gozxing.NotFoundException
		if errors.As(err, &notFound) {
			return "", status.ErrNoCode
		}
		return "", fmt.Errorf("%w: %v", status.ErrNoCode, err)
	}

	return result.GetText(), nil
}

// Decoder adapts Decode to the scanner's frame decoder contract.
type Decoder struct{}

func (Decoder) Decode(img image.Image) (string, error) {
	return Decode(img)
}

// withQuietZone pads img with white so codes rendered flush to the frame edge
// still have the quiet zone the detector expects.
func withQuietZone(img image.Image) image.Image {
	b := img.Bounds()
	pad := b.Dx() / 8
	if pad < 8 {
		pad = 8
	}

	out := image.NewGray(image.Rect(0, 0, b.Dx()+2*pad, b.Dy()+2*pad))
	draw.Draw(out, out.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(out, image.Rect(pad, pad, pad+b.Dx(), pad+b.Dy()), img, b.Min, draw.Src)
	return out
}
