package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/goonidz/purple-sub000/internal/domain"
	"github.com/goonidz/purple-sub000/internal/engine"
)

// App carries the handler dependencies.
type App struct {
	Engine *engine.Engine
	Jobs   domain.JobRepository
	Log    zerolog.Logger
}

func NewApp(eng *engine.Engine, jobs domain.JobRepository, log zerolog.Logger) *App {
	return &App{Engine: eng, Jobs: jobs, Log: log}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) jsonError(w http.ResponseWriter, code int, msg string) {
	a.json(w, code, map[string]string{"error": msg})
}
