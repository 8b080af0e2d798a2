package photobooth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"photobooth/internal/domain"
	"photobooth/internal/imagegen"
	"photobooth/internal/metrics"
	"photobooth/internal/upload"
)

// ImageProcessor turns raw generated bytes into the final artifact bytes.
type ImageProcessor interface {
	Process(data []byte) ([]byte, error)
}

// ArtifactSaver persists finished artifacts.
type ArtifactSaver interface {
	Save(ctx context.Context, data []byte) (*domain.Artifact, error)
}

// Outcome is the result of one successful pipeline run.
type Outcome struct {
	Artifact *domain.Artifact
	Image    []byte
}

// Service runs the request pipeline: scratch upload -> generator ->
// post-processor -> artifact store.
type Service struct {
	generator imagegen.Generator
	processor ImageProcessor
	store     ArtifactSaver
	metrics   metrics.Recorder
	logger    zerolog.Logger
}

// NewService wires the pipeline stages.
func NewService(gen imagegen.Generator, proc ImageProcessor, store ArtifactSaver, rec metrics.Recorder, logger zerolog.Logger) *Service {
	if rec == nil {
		rec = metrics.Noop{}
	}
	return &Service{generator: gen, processor: proc, store: store, metrics: rec, logger: logger}
}

// Generate consumes sub. The scratch upload is removed as soon as its bytes
// have been read, and again on return, whatever the outcome.
func (s *Service) Generate(ctx context.Context, sub *domain.Submission) (out *Outcome, err error) {
	if sub == nil || sub.Upload == nil {
		return nil, domain.ErrImageRequired
	}
	defer s.release(sub.Upload)

	start := time.Now()
	defer func() {
		s.metrics.ObserveGeneration(OutcomeLabel(err), time.Since(start).Seconds())
	}()

	if sub.Prompt == "" {
		return nil, domain.ErrPromptRequired
	}

	photo, err := upload.Read(sub.Upload)
	if err != nil {
		return nil, err
	}
	s.release(sub.Upload)

	log := s.logger.With().Str("mime", sub.Upload.MIMEType).Int64("upload_bytes", sub.Upload.Size).Logger()
	log.Info().Msg("photobooth: generating image")

	generated, err := s.generator.Generate(ctx, imagegen.Request{
		Prompt:   sub.Prompt,
		Image:    photo,
		MIMEType: sub.Upload.MIMEType,
	})
	if err != nil {
		return nil, err
	}

	final, err := s.processor.Process(generated.Data)
	if err != nil {
		return nil, err
	}

	artifact, err := s.store.Save(ctx, final)
	if err != nil {
		return nil, fmt.Errorf("photobooth: persist artifact: %w", err)
	}

	log.Info().
		Str("artifact_id", artifact.ID).
		Int64("artifact_bytes", artifact.Bytes).
		Dur("elapsed", time.Since(start)).
		Msg("photobooth: artifact ready")

	return &Outcome{Artifact: artifact, Image: final}, nil
}

func (s *Service) release(up *domain.Upload) {
	if err := upload.Remove(up); err != nil {
		s.logger.Error().Err(err).Str("path", up.Path).Msg("photobooth: failed to remove scratch upload")
	}
}

// OutcomeLabel maps a pipeline error to a short metrics label.
func OutcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case domain.IsValidation(err):
		return "invalid"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	case errors.Is(err, domain.ErrCredentialMissing):
		return "credential_missing"
	case errors.Is(err, domain.ErrNoImageProduced):
		return "no_image"
	case errors.Is(err, domain.ErrProviderFailure):
		return "provider_failure"
	case errors.Is(err, domain.ErrProcessing):
		return "processing_failure"
	default:
		return "internal"
	}
}
