package annotate

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"strings"
	"time"
)

// Format is an export encoding.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"

	DefaultJPEGQuality = 90
)

// ParseFormat accepts png, jpeg and jpg. Empty means png.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "png":
		return FormatPNG, nil
	case "jpeg", "jpg":
		return FormatJPEG, nil
	}
	return "", fmt.Errorf("format must be \"png\" or \"jpeg\", got %q", s)
}

// MIME returns the media type of the format.
func (f Format) MIME() string {
	if f == FormatJPEG {
		return "image/jpeg"
	}
	return "image/png"
}

// StillImage is one rasterized export of a canvas.
type StillImage struct {
	Seq        uint64    `json:"seq"`
	Format     Format    `json:"format"`
	MIME       string    `json:"mime"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	ShapeCount int       `json:"shape_count"`
	CreatedAt  time.Time `json:"created_at"`
	Data       []byte    `json:"-"`
}

// DataURI renders the image as data:<mime>;base64,<payload>.
func (s StillImage) DataURI() string {
	return "data:" + s.MIME + ";base64," + base64.StdEncoding.EncodeToString(s.Data)
}

// Info is StillImage without the payload, for logs and listings.
type Info struct {
	Seq        uint64    `json:"seq"`
	Format     Format    `json:"format"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	SizeBytes  int       `json:"size_bytes"`
	ShapeCount int       `json:"shape_count"`
	CreatedAt  time.Time `json:"created_at"`
}

func (s StillImage) Info() Info {
	return Info{
		Seq:        s.Seq,
		Format:     s.Format,
		Width:      s.Width,
		Height:     s.Height,
		SizeBytes:  len(s.Data),
		ShapeCount: s.ShapeCount,
		CreatedAt:  s.CreatedAt,
	}
}

// Exporter encodes composed frames.
type Exporter struct {
	format  Format
	quality int
}

// NewExporter returns an exporter for the format. Quality only applies to
// JPEG and is clamped to 1..100; zero selects DefaultJPEGQuality.
func NewExporter(format Format, quality int) *Exporter {
	if format == "" {
		format = FormatPNG
	}
	switch {
	case quality == 0:
		quality = DefaultJPEGQuality
	case quality < 1:
		quality = 1
	case quality > 100:
		quality = 100
	}
	return &Exporter{format: format, quality: quality}
}

func (e *Exporter) Format() Format { return e.format }

// Encode rasterizes img synchronously.
func (e *Exporter) Encode(img image.Image, seq uint64, shapeCount int) (StillImage, error) {
	var buf bytes.Buffer
	var err error
	if e.format == FormatJPEG {
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: e.quality})
	} else {
		err = png.Encode(&buf, img)
	}
	if err != nil {
		return StillImage{}, fmt.Errorf("encode %s: %w", e.format, err)
	}
	b := img.Bounds()
	return StillImage{
		Seq:        seq,
		Format:     e.format,
		MIME:       e.format.MIME(),
		Width:      b.Dx(),
		Height:     b.Dy(),
		ShapeCount: shapeCount,
		CreatedAt:  time.Now().UTC(),
		Data:       buf.Bytes(),
	}, nil
}

// ParseDataURI splits a data URI into its media type and decoded payload.
// A bare base64 string is accepted with an empty media type.
func ParseDataURI(s string) (string, []byte, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "data:") {
		data, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return "", nil, fmt.Errorf("invalid base64 payload: %w", err)
		}
		return "", data, nil
	}
	parts := strings.SplitN(s, ",", 2)
	if len(parts) != 2 {
		return "", nil, fmt.Errorf("invalid data URL format")
	}
	header := strings.TrimPrefix(parts[0], "data:")
	mime, _, _ := strings.Cut(header, ";")
	if !strings.HasSuffix(header, ";base64") {
		return "", nil, fmt.Errorf("data URL must be base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", nil, fmt.Errorf("invalid base64 payload: %w", err)
	}
	return mime, data, nil
}
