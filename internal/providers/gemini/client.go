package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"photobooth/internal/domain"
	"photobooth/internal/imagegen"
)

const DefaultModel = "gemini-2.5-flash-image"

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zerolog.Logger
}

// Client sends the prompt and the captured photo to a Gemini image model and
// returns the first inline image of the answer.
type Client struct {
	models  *genai.Models
	model   string
	timeout time.Duration
	logger  zerolog.Logger
}

// NewClient constructs a Gemini client. An API key is required; callers
// without one should use Unconfigured instead.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, domain.ErrCredentialMissing
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultModel
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if base := strings.TrimSpace(opts.BaseURL); base != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: strings.TrimRight(base, "/") + "/"}
	}

	sdk, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	logger := zerolog.New(io.Discard)
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	return &Client{
		models:  sdk.Models,
		model:   model,
		timeout: opts.Timeout,
		logger:  logger,
	}, nil
}

// Model returns the configured Gemini model identifier.
func (c *Client) Model() string {
	return c.model
}

// Generate performs exactly one generateContent call.
func (c *Client) Generate(ctx context.Context, req imagegen.Request) (*imagegen.Result, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(req.Prompt),
			genai.NewPartFromBytes(req.Image, req.MIMEType),
		}, genai.RoleUser),
	}

	start := time.Now()
	resp, err := c.models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("gemini: invoke: %w", ctxErr)
		}
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("%w: gemini status %d: %s", domain.ErrProviderFailure, apiErr.Code, apiErr.Message)
		}
		var apiErrPtr *genai.APIError
		if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
			return nil, fmt.Errorf("%w: gemini status %d: %s", domain.ErrProviderFailure, apiErrPtr.Code, apiErrPtr.Message)
		}
		return nil, fmt.Errorf("%w: invoke gemini: %w", domain.ErrProviderFailure, err)
	}

	result, ok := firstInlineImage(resp)
	if !ok {
		c.logger.Warn().
			Str("model", c.model).
			Str("finish_reason", finishReason(resp)).
			Msg("gemini: response carried no inline image")
		return nil, imagegen.ErrNoImage
	}

	c.logger.Debug().
		Str("model", c.model).
		Str("mime", result.MIMEType).
		Int("bytes", len(result.Data)).
		Dur("elapsed", time.Since(start)).
		Msg("gemini: image generated")

	return result, nil
}

func firstInlineImage(resp *genai.GenerateContentResponse) (*imagegen.Result, bool) {
	if resp == nil {
		return nil, false
	}
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			return &imagegen.Result{Data: part.InlineData.Data, MIMEType: part.InlineData.MIMEType}, true
		}
	}
	return nil, false
}

func finishReason(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return ""
	}
	return string(resp.Candidates[0].FinishReason)
}

var _ imagegen.Generator = (*Client)(nil)

// Unconfigured fails every call because no credential is available. It keeps
// the service bootable so the health endpoint can report the problem.
type Unconfigured struct{}

func (Unconfigured) Generate(context.Context, imagegen.Request) (*imagegen.Result, error) {
	return nil, domain.ErrCredentialMissing
}

var _ imagegen.Generator = Unconfigured{}
