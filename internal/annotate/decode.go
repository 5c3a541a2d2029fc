package annotate

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrImageTooLarge is returned when an image header declares a side longer
// than the decode limit.
var ErrImageTooLarge = errors.New("image too large")

// DecodeImage decodes any registered chart image format.
func DecodeImage(data []byte) (image.Image, string, error) {
	return DecodeImageLimit(data, 0)
}

// DecodeImageLimit is DecodeImage with a cap on either side, checked from the
// header before any pixels are allocated. maxSide <= 0 means no cap.
func DecodeImageLimit(data []byte, maxSide int) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("empty image")
	}
	if maxSide > 0 {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, "", fmt.Errorf("decode image header: %w", err)
		}
		if cfg.Width > maxSide || cfg.Height > maxSide {
			return nil, "", fmt.Errorf("%w: %dx%d exceeds %dpx", ErrImageTooLarge, cfg.Width, cfg.Height, maxSide)
		}
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return img, format, nil
}
