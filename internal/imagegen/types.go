package imagegen

import (
	"context"
	"fmt"

	"photobooth/internal/domain"
)

// ErrNoImage is returned when the provider answered but no part carried
// inline image data, i.e. the model declined.
var ErrNoImage = fmt.Errorf("imagegen: %w", domain.ErrNoImageProduced)

// Request is a single prompt + photo pair sent to a provider.
type Request struct {
	Prompt   string
	Image    []byte
	MIMEType string
}

// Result holds the raw bytes of the first generated image. The format is
// whatever the provider returned and is not validated here.
type Result struct {
	Data     []byte
	MIMEType string
}

// Generator is the contract implemented by all image providers. Generate
// invokes the provider once and never retries.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req Request) (*Result, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (*Result, error) {
	return f(ctx, req)
}
