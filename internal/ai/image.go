package ai

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

const jpegQuality = 85

// ResizeImage decodes a photo and scales it down so its longest edge fits
// maxSize. The result is always a JPEG, even when no scaling was needed, so
// every provider payload has a single format.
func ResizeImage(data []byte, maxSize int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	width := img.Bounds().Dx()
	height := img.Bounds().Dy()
	if width <= maxSize && height <= maxSize {
		return encodeJPEG(img)
	}

	scale := float64(maxSize) / float64(width)
	if height > width {
		scale = float64(maxSize) / float64(height)
	}
	target := image.Rect(0, 0, int(float64(width)*scale), int(float64(height)*scale))

	resized := image.NewRGBA(target)
	draw.CatmullRom.Scale(resized, target, img, img.Bounds(), draw.Over, nil)
	return encodeJPEG(resized)
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}
