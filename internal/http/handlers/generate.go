package handlers

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"

	"photobooth/internal/middleware"
	"photobooth/internal/upload"
)

type generateResponse struct {
	Success     bool   `json:"success"`
	Image       string `json:"image"`
	DownloadURL string `json:"downloadUrl"`
	QRCode      string `json:"qrCode,omitempty"`
	Message     string `json:"message"`
}

// Generate accepts a multipart photo and prompt, runs the pipeline and
// answers with the finished image plus its download link.
func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	sub, err := a.Receiver.Receive(w, r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	defer func() {
		if err := upload.Remove(sub.Upload); err != nil {
			a.logger(r).Error().Err(err).Str("path", sub.Upload.Path).Msg("failed to remove scratch upload")
		}
	}()

	ctx := r.Context()
	if a.Config != nil && a.Config.GenerationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Config.GenerationTimeout)
		defer cancel()
	}

	out, err := a.Service.Generate(ctx, sub)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	downloadURL := a.downloadURL(r, out.Artifact.ID)
	qr, err := a.QR.Render(downloadURL)
	if err != nil {
		a.logger(r).Warn().Err(err).Str("artifact_id", out.Artifact.ID).Msg("qr render failed")
		qr = ""
	}

	locale := middleware.LocaleFromContext(r.Context())
	a.json(w, http.StatusOK, generateResponse{
		Success:     true,
		Image:       "data:" + out.Artifact.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(out.Image),
		DownloadURL: downloadURL,
		QRCode:      qr,
		Message:     message(locale, "generated"),
	})
}

func (a *App) downloadURL(r *http.Request, id string) string {
	base := ""
	if a.Config != nil {
		base = a.Config.PublicBaseURL
	}
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.ToLower(strings.TrimSpace(strings.Split(proto, ",")[0]))
		}
		base = scheme + "://" + r.Host
	}
	return base + "/download/" + id
}
