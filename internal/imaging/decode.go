package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrEmptyImage is returned for nil or zero-area images.
var ErrEmptyImage = errors.New("empty image")

// Decode reads any registered raster format and returns the image and its format name.
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", ErrEmptyImage
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	if img.Bounds().Empty() {
		return nil, format, ErrEmptyImage
	}
	return img, format, nil
}

// EncodePNG serialises a grayscale image losslessly.
func EncodePNG(g *image.Gray) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, g); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
