package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"photobooth/internal/domain"
)

// Download streams a stored artifact as an attachment. Unknown, expired and
// malformed ids all answer 404.
func (a *App) Download(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(chi.URLParam(r, "id"), ".png")
	f, info, err := a.Store.Open(id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.Metrics.ObserveDownload("not_found")
		} else {
			a.Metrics.ObserveDownload("error")
		}
		a.fail(w, r, err)
		return
	}
	defer f.Close()

	a.Metrics.ObserveDownload("ok")
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", `attachment; filename="`+domain.DownloadFilename(id)+`"`)
	w.Header().Set("Cache-Control", "no-store")
	http.ServeContent(w, r, domain.DownloadFilename(id), info.ModTime(), f)
}
