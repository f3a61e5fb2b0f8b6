// Package boardapi serves the reconciled patient queue over HTTP. It is
// the display surface of the board: rendering stays with the consumer,
// this API hands out structured snapshots.
package boardapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/triagedesk/internal/api"
	"github.com/linnemanlabs/triagedesk/internal/authmw"
	"github.com/linnemanlabs/triagedesk/internal/board"
)

// Board is the slice of the polling registry the API needs.
type Board interface {
	Snapshot() board.Snapshot
	Refresh(ctx context.Context)
	ClearAll(ctx context.Context, confirm func() bool) error
}

// Explainer retrieves cached saliency explanations.
type Explainer interface {
	Explanation(ctx context.Context, p *api.Patient) (*api.Explanation, bool, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger    log.Logger
	board     Board
	explainer Explainer
	adminKey  string
}

// New creates a new API handler. adminKey guards destructive endpoints;
// empty leaves them open.
func New(logger log.Logger, b Board, e Explainer, adminKey string) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if b == nil {
		panic(xerrors.New("board registry is required"))
	}
	if e == nil {
		panic(xerrors.New("explainer is required"))
	}
	return &API{
		logger:    logger,
		board:     b,
		explainer: e,
		adminKey:  adminKey,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/board", a.handleGetBoard)
		r.Post("/board/refresh", a.handleRefresh)
		r.Post("/board/explain", a.handleExplain)

		r.Group(func(r chi.Router) {
			if a.adminKey != "" {
				r.Use(authmw.KeyHeader("X-Admin-Key", a.adminKey))
			}
			r.Delete("/board/patients", a.handleClearAll)
		})
	})
}

func (a *API) handleGetBoard(w http.ResponseWriter, r *http.Request) {
	snap := a.board.Snapshot()

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.Int("triagedesk.board.patients", len(snap.Entries)))

	// view filters operate on the already-fetched snapshot, never refetch
	if q := r.URL.Query().Get("nombre"); q != "" {
		snap.Entries = board.FilterByName(snap.Entries, q)
	}
	if p := r.URL.Query().Get("prioridad"); p != "" {
		level, err := strconv.Atoi(p)
		if err != nil || level < 0 || level > 5 {
			http.Error(w, `{"error":"prioridad must be 0..5"}`, http.StatusBadRequest)
			return
		}
		snap.Entries = board.FilterByPriority(snap.Entries, level)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(snap)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	// fire and forget; the refresh shares the poll code path and the
	// generation stamp resolves any race with the timer
	go a.board.Refresh(context.WithoutCancel(r.Context()))
	w.WriteHeader(http.StatusAccepted)
}

func (a *API) handleClearAll(w http.ResponseWriter, r *http.Request) {
	confirmed := r.URL.Query().Get("confirm") == "true"

	err := a.board.ClearAll(r.Context(), func() bool { return confirmed })
	if errors.Is(err, board.ErrNotConfirmed) {
		http.Error(w, `{"error":"confirm=true is required"}`, http.StatusBadRequest)
		return
	}
	if err != nil {
		a.logger.Error(r.Context(), err, "delete-all failed")
		http.Error(w, `{"error":"delete-all failed"}`, http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"mensaje": "Todos los pacientes han sido eliminados"})
}

type explainRequest struct {
	Nombre      string `json:"nombre"`
	Edad        int    `json:"edad"`
	Descripcion string `json:"descripcion"`
}

func (a *API) handleExplain(w http.ResponseWriter, r *http.Request) {
	var req explainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}

	patient := api.Patient{Nombre: req.Nombre, Edad: req.Edad, Descripcion: req.Descripcion}

	expl, cached, err := a.explainer.Explanation(r.Context(), &patient)
	if err != nil {
		a.logger.Error(r.Context(), err, "explanation fetch failed", "patient", patient.Key())
		http.Error(w, `{"error":"explanation unavailable"}`, http.StatusBadGateway)
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.Bool("triagedesk.explain.cached", cached),
		attribute.Int("triagedesk.explain.tokens", len(expl.ShapTexto)),
	)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"prediccion": expl.Prediccion,
		"cached":     cached,
		"tokens":     board.DisplayTokens(expl),
	})
}
