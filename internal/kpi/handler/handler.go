// Package handler exposes the reporting endpoints. Both routes are
// tenant-scoped reads and expect an authenticated request context.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"vigil/internal/kpi"
	"vigil/internal/platform/middleware"
	"vigil/internal/transport/http/shared"
	dErrors "vigil/pkg/domain-errors"
	"vigil/pkg/requestcontext"
)

const dateLayout = "2006-01-02"

// Service defines the reporting operations the handler needs.
type Service interface {
	Aggregate(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (*kpi.Aggregate, error)
	Snapshot(ctx context.Context, tenantID uuid.UUID, base time.Time) (*kpi.Snapshot, error)
}

// Handler handles reporting endpoints.
type Handler struct {
	reports Service
	logger  *slog.Logger
}

func New(reports Service, logger *slog.Logger) *Handler {
	return &Handler{reports: reports, logger: logger}
}

// Register mounts the reporting routes.
func (h *Handler) Register(r chi.Router) {
	r.Route("/kpis", func(r chi.Router) {
		r.Get("/aggregate", h.handleAggregate)
		r.Get("/snapshot", h.handleSnapshot)
	})
}

// handleAggregate serves GET /kpis/aggregate?from=YYYY-MM-DD&to=YYYY-MM-DD.
// Both dates are inclusive calendar days in UTC.
func (h *Handler) handleAggregate(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantFromContext(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	from, err := parseDate(r.URL.Query().Get("from"), "from")
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	to, err := parseDate(r.URL.Query().Get("to"), "to")
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if to.Before(from) {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "to precedes from"))
		return
	}

	agg, err := h.reports.Aggregate(r.Context(), tenantID, from, to.AddDate(0, 0, 1))
	if err != nil {
		h.writeError(r.Context(), w, "aggregate", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, agg)
}

// handleSnapshot serves GET /kpis/snapshot?baseDate=YYYY-MM-DD. The base
// date defaults to today.
func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantFromContext(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	base := requestcontext.Now(r.Context()).UTC()
	if raw := r.URL.Query().Get("baseDate"); raw != "" {
		base, err = parseDate(raw, "baseDate")
		if err != nil {
			shared.WriteError(w, err)
			return
		}
	}

	snap, err := h.reports.Snapshot(r.Context(), tenantID, base)
	if err != nil {
		h.writeError(r.Context(), w, "snapshot", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, snap)
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	if dErrors.ToHTTPStatus(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, "reporting operation failed",
			"op", op,
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
	}
	shared.WriteError(w, err)
}

func tenantFromContext(ctx context.Context) (uuid.UUID, error) {
	raw := middleware.GetTenantID(ctx)
	if raw == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeUnauthorized, "missing tenant scope")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeUnauthorized, "invalid tenant scope")
	}
	return id, nil
}

func parseDate(raw, name string) (time.Time, error) {
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, dErrors.Newf(dErrors.CodeValidation, "invalid %s date", name)
	}
	return t, nil
}
