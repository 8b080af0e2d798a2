package handlers

import (
	"net/http"

	"photobooth/internal/middleware"
)

type healthResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	HasAPIKey bool   `json:"hasApiKey"`
}

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	locale := middleware.LocaleFromContext(r.Context())
	a.json(w, http.StatusOK, healthResponse{
		Status:    "OK",
		Message:   message(locale, "health"),
		HasAPIKey: a.Config != nil && a.Config.HasAPIKey(),
	})
}
