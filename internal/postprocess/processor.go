package postprocess

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"photobooth/internal/domain"
)

const (
	DefaultWidth  = 2400
	DefaultHeight = 3600
	OutputMIME    = "image/png"
)

// Processor fits generated images to a fixed portrait canvas and stamps the
// watermark along the bottom edge. Output is always PNG.
type Processor struct {
	Width         int
	Height        int
	WatermarkPath string

	encoder png.Encoder
}

// New returns a Processor for a width x height canvas.
func New(width, height int, watermarkPath string) (*Processor, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.New("postprocess: canvas dimensions must be positive")
	}
	if watermarkPath == "" {
		return nil, errors.New("postprocess: watermark path is required")
	}
	return &Processor{
		Width:         width,
		Height:        height,
		WatermarkPath: watermarkPath,
		encoder:       png.Encoder{CompressionLevel: png.BestSpeed},
	}, nil
}

// Process decodes data, crops it to cover the canvas around the center,
// overlays the watermark unscaled and anchored south, and encodes PNG.
// The watermark is read on every call so a missing asset fails the request
// instead of producing an unmarked image.
func (p *Processor) Process(data []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode generated image: %v", domain.ErrProcessing, err)
	}

	watermark, err := imaging.Open(p.WatermarkPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open watermark: %v", domain.ErrProcessing, err)
	}

	canvas := imaging.Fill(src, p.Width, p.Height, imaging.Center, imaging.Lanczos)
	canvas = imaging.Overlay(canvas, watermark, SouthAnchor(p.Width, p.Height, watermark.Bounds().Dx(), watermark.Bounds().Dy()), 1.0)

	var buf bytes.Buffer
	if err := p.encoder.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("%w: encode png: %v", domain.ErrProcessing, err)
	}
	return buf.Bytes(), nil
}

// SouthAnchor returns the top-left point placing an overlay of size w x h
// horizontally centered and flush with the bottom of a W x H canvas.
func SouthAnchor(canvasW, canvasH, w, h int) image.Point {
	return image.Pt((canvasW-w)/2, canvasH-h)
}
