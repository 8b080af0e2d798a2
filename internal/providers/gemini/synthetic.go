package gemini

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strconv"

	"photobooth/internal/imagegen"
)

// Synthetic renders a deterministic placeholder instead of calling Gemini.
// It keeps the whole pipeline exercisable locally and in CI without a
// credential.
type Synthetic struct {
	Width  int
	Height int
}

// NewSynthetic returns a generator producing width x height PNGs.
func NewSynthetic(width, height int) *Synthetic {
	if width <= 0 {
		width = 768
	}
	if height <= 0 {
		height = 1152
	}
	return &Synthetic{Width: width, Height: height}
}

func (s *Synthetic) Generate(ctx context.Context, req imagegen.Request) (*imagegen.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seed := deterministicSeed(req.Prompt, req.MIMEType, req.Image)
	data, err := renderSyntheticImage(s.Width, s.Height, seed)
	if err != nil {
		return nil, fmt.Errorf("gemini: render synthetic image: %w", err)
	}
	return &imagegen.Result{Data: data, MIMEType: "image/png"}, nil
}

var _ imagegen.Generator = (*Synthetic)(nil)

func renderSyntheticImage(width, height int, seed string) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	base := colorFromSeed(seed, 0)
	accent := colorFromSeed(seed, 1)
	draw.Draw(img, img.Bounds(), &image.Uniform{base}, image.Point{}, draw.Src)

	stripeHeight := max(32, height/12)
	for y := 0; y < height; y += stripeHeight * 2 {
		stripe := image.Rect(0, y, width, min(height, y+stripeHeight))
		draw.Draw(img, stripe, &image.Uniform{accent}, image.Point{}, draw.Over)
	}

	diagonal := colorFromSeed(seed, 2)
	for i := 0; i < max(width, height); i += max(16, width/32) {
		for y := 0; y < height; y++ {
			xx := i + y
			if xx >= width {
				break
			}
			img.Set(xx, y, diagonal)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func colorFromSeed(seed string, shift int) color.RGBA {
	if seed == "" {
		seed = "000000"
	}
	doubled := seed + seed
	start := (shift * 6) % len(seed)
	segment := doubled[start : start+6]
	return color.RGBA{
		R: parseHexByte(segment[0:2]),
		G: parseHexByte(segment[2:4]),
		B: parseHexByte(segment[4:6]),
		A: 255,
	}
}

func parseHexByte(s string) uint8 {
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0
	}
	return uint8(v)
}

func deterministicSeed(prompt, mimeType string, image []byte) string {
	hasher := sha256.New()
	hasher.Write([]byte(prompt))
	hasher.Write([]byte{'|'})
	hasher.Write([]byte(mimeType))
	hasher.Write([]byte{'|'})
	hasher.Write(image)
	return hex.EncodeToString(hasher.Sum(nil))[:18]
}
