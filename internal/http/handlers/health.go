package handlers

import (
	"net/http"
)

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if a.Push != nil {
		body["subscribers"] = a.Push.Count()
	}
	if a.Watcher != nil {
		body["watcher"] = a.Watcher.Stats()
	}
	a.json(w, http.StatusOK, body)
}
