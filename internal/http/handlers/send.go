package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"onecam/internal/domain"
	"onecam/internal/engine"
	"onecam/internal/generation"
	"onecam/internal/middleware"
)

const noImagesMessage = "No images found in the output"

// Send handles POST /send: it queues an image-to-image job on the engine and
// reports whether images were produced.
func (a *App) Send(w http.ResponseWriter, r *http.Request) {
	log := a.Logger.With().Str("request_id", middleware.RequestIDFromContext(r.Context())).Logger()
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Msg("send handler panicked")
			a.error(w, http.StatusInternalServerError, fmt.Sprint(rec))
		}
	}()

	var req generation.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	res, err := a.Generator.Generate(r.Context(), req)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrPromptRequired):
		a.error(w, http.StatusBadRequest, "Prompt is required")
		return
	case errors.Is(err, domain.ErrImagePathRequired):
		a.error(w, http.StatusBadRequest, "Image path is required")
		return
	case errors.Is(err, domain.ErrNoResult), errors.Is(err, domain.ErrNoImages):
		a.json(w, http.StatusInternalServerError, map[string]string{"message": noImagesMessage})
		return
	default:
		log.Error().Err(err).Bool("engine_error", engine.IsEngineError(err)).Msg("send failed")
		a.error(w, http.StatusInternalServerError, err.Error())
		return
	}

	a.json(w, http.StatusOK, map[string]any{
		"message":   "Process completed successfully. Images saved at " + res.OutputDir,
		"prompt_id": res.PromptID,
		"images":    res.Images,
	})
}
