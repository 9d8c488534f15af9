package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"onecam/internal/domain"
	"onecam/internal/generation"
	"onecam/internal/watcher"
)

// Generator runs one generation request end to end.
type Generator interface {
	Generate(ctx context.Context, req generation.Request) (*generation.Result, error)
}

// SubscriberCounter reports connected push subscribers.
type SubscriberCounter interface {
	Count() int
}

// WatchStats reports folder watcher counters.
type WatchStats interface {
	Stats() watcher.Stats
}

type App struct {
	Generator Generator
	Ledger    domain.JobLedger
	Push      SubscriberCounter
	Watcher   WatchStats
	Logger    zerolog.Logger
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, msg string) {
	a.json(w, code, map[string]string{"error": msg})
}
