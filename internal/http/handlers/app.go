package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"photobooth/internal/domain"
	"photobooth/internal/infra"
	"photobooth/internal/metrics"
	"photobooth/internal/middleware"
	"photobooth/internal/photobooth"
	"photobooth/internal/scancode"
	"photobooth/internal/storage"
	"photobooth/internal/upload"
)

// App carries the dependencies shared by the HTTP handlers.
type App struct {
	Config   *infra.Config
	Logger   zerolog.Logger
	Receiver *upload.Receiver
	Service  *photobooth.Service
	Store    *storage.ArtifactStore
	QR       scancode.Renderer
	Metrics  metrics.Recorder
}

func NewApp(cfg *infra.Config, logger zerolog.Logger, receiver *upload.Receiver, svc *photobooth.Service, store *storage.ArtifactStore, qr scancode.Renderer, rec metrics.Recorder) *App {
	if qr == nil {
		qr = scancode.ClientSide{}
	}
	if rec == nil {
		rec = metrics.Noop{}
	}
	return &App{
		Config:   cfg,
		Logger:   logger,
		Receiver: receiver,
		Service:  svc,
		Store:    store,
		QR:       qr,
		Metrics:  rec,
	}
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, r *http.Request, status int, code string) {
	locale := middleware.LocaleFromContext(r.Context())
	a.json(w, status, errorResponse{Success: false, Error: code, Message: message(locale, code)})
}

// fail maps err onto a status and error code and logs it at a level that
// matches who is at fault.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	log := a.logger(r)
	switch {
	case status < http.StatusInternalServerError:
		log.Debug().Err(err).Str("code", code).Msg("request rejected")
	default:
		log.Error().Err(err).Str("code", code).Msg("request failed")
	}
	a.error(w, r, status, code)
}

func (a *App) logger(r *http.Request) *zerolog.Logger {
	if l := zerolog.Ctx(r.Context()); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &a.Logger
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrUploadTooLarge):
		return http.StatusRequestEntityTooLarge, "upload_too_large"
	case errors.Is(err, domain.ErrPromptRequired):
		return http.StatusBadRequest, "prompt_required"
	case errors.Is(err, domain.ErrImageRequired):
		return http.StatusBadRequest, "image_required"
	case errors.Is(err, domain.ErrUnsupportedMedia):
		return http.StatusBadRequest, "unsupported_media"
	case errors.Is(err, domain.ErrInvalidUpload):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrInvalidID):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, domain.ErrCredentialMissing):
		return http.StatusServiceUnavailable, "credential_missing"
	case errors.Is(err, domain.ErrNoImageProduced):
		return http.StatusBadGateway, "no_image"
	case errors.Is(err, domain.ErrProviderFailure):
		return http.StatusBadGateway, "provider_failure"
	case errors.Is(err, domain.ErrProcessing):
		return http.StatusInternalServerError, "processing_failed"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
