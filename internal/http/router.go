package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"interview-copilot-service/internal/audio"
	"interview-copilot-service/internal/observability/metrics"
	"interview-copilot-service/internal/service/copilot"
	"interview-copilot-service/internal/service/transcript"
)

// Controller drives the copilot session behind the HTTP surface.
type Controller interface {
	Start(ctx context.Context, source audio.Source) error
	Stop() error
	Flush() error
	Status() copilot.Status
	Done() <-chan struct{}
}

// Deps are the collaborators of the router.
type Deps struct {
	Controller Controller
	Store      *transcript.Store
	Hub        *Hub
	Ready      func() bool
	Metrics    *metrics.Metrics

	// BaseContext outlives individual requests; audio sessions run under it.
	BaseContext context.Context
	// SampleRate is the rate the session monitor expects. 0 accepts any.
	SampleRate int
	// AllowedOrigins are the browser origins accepted on websockets.
	// Empty means same origin only, "*" accepts any.
	AllowedOrigins []string
}

// NewRouter constructs the HTTP router for the service.
func NewRouter(deps Deps) http.Handler {
	if deps.BaseContext == nil {
		deps.BaseContext = context.Background()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.DefaultMetrics
	}

	upgrader := newUpgrader(deps.AllowedOrigins)
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if deps.Ready != nil && !deps.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/session/status", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, deps.Controller.Status())
		})
		r.Post("/session/stop", func(w http.ResponseWriter, _ *http.Request) {
			if err := deps.Controller.Stop(); err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, deps.Controller.Status())
		})
		r.Post("/session/flush", func(w http.ResponseWriter, _ *http.Request) {
			if err := deps.Controller.Flush(); err != nil {
				writeError(w, err)
				return
			}
			w.WriteHeader(http.StatusAccepted)
		})
		r.Get("/transcript", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"turns": deps.Store.Turns()})
		})

		r.Get("/audio", ingestHandler(deps, upgrader))
		if deps.Hub != nil {
			r.Get("/events", func(w http.ResponseWriter, r *http.Request) {
				deps.Hub.serve(w, r, upgrader)
			})
		}
	})

	return r
}

type errorBody struct {
	Error     string `json:"error"`
	ErrorKind string `json:"errorKind"`
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, copilot.ErrNotRunning):
		code = http.StatusConflict
	case errors.Is(err, copilot.ErrUnsupported):
		code = http.StatusNotImplemented
	case errors.Is(err, copilot.ErrSessionActive):
		code = http.StatusConflict
	}
	writeJSON(w, code, errorBody{Error: err.Error(), ErrorKind: copilot.ErrorKind(err)})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to write response")
	}
}
