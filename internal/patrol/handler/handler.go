// Package handler exposes the patrol verification endpoints. The surface is
// credential-per-call: authenticate and pending carry field credentials,
// the rest are keyed by execution ID.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"vigil/internal/patrol/service"
	"vigil/internal/platform/middleware"
	"vigil/internal/transport/http/shared"
	dErrors "vigil/pkg/domain-errors"
)

// Service defines the patrol operations the handler needs.
type Service interface {
	Authenticate(ctx context.Context, creds service.Credentials) (*service.Session, error)
	ListPending(ctx context.Context, creds service.Credentials) ([]service.PendingExecution, error)
	Start(ctx context.Context, in service.StartInput) (*service.StartResult, error)
	MarkCheckpoint(ctx context.Context, in service.MarkInput) (*service.MarkReceipt, error)
	Complete(ctx context.Context, executionID uuid.UUID) (*service.CompletionResult, error)
	Panic(ctx context.Context, in service.PanicInput) (*service.AlertAck, error)
}

// Handler handles patrol endpoints.
type Handler struct {
	verifier Service
	logger   *slog.Logger
}

func New(verifier Service, logger *slog.Logger) *Handler {
	return &Handler{verifier: verifier, logger: logger}
}

// Register mounts the patrol routes.
func (h *Handler) Register(r chi.Router) {
	r.Route("/patrols", func(r chi.Router) {
		r.Post("/authenticate", h.handleAuthenticate)
		r.Post("/pending", h.handlePending)
		r.Post("/start", h.handleStart)
		r.Post("/mark", h.handleMark)
		r.Post("/complete", h.handleComplete)
		r.Post("/panic", h.handlePanic)
	})
}

type credentialsRequest struct {
	SiteCode   string `json:"siteCode"`
	NationalID string `json:"nationalId"`
	PIN        string `json:"pin"`
}

func (c credentialsRequest) validate() error {
	if !govalidator.StringLength(c.SiteCode, "1", "32") {
		return dErrors.New(dErrors.CodeValidation, "invalid siteCode")
	}
	if !govalidator.StringLength(c.NationalID, "1", "16") {
		return dErrors.New(dErrors.CodeValidation, "invalid nationalId")
	}
	if !govalidator.StringLength(c.PIN, "4", "12") {
		return dErrors.New(dErrors.CodeValidation, "invalid pin")
	}
	return nil
}

func (c credentialsRequest) toCredentials() service.Credentials {
	return service.Credentials{SiteCode: c.SiteCode, NationalID: c.NationalID, PIN: c.PIN}
}

type sessionResponse struct {
	GuardName        string `json:"guardName"`
	InstallationID   string `json:"installationId"`
	InstallationName string `json:"installationName"`
}

func (h *Handler) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decode(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := req.validate(); err != nil {
		shared.WriteError(w, err)
		return
	}

	session, err := h.verifier.Authenticate(r.Context(), req.toCredentials())
	if err != nil {
		h.writeError(r.Context(), w, "authenticate", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, sessionResponse{
		GuardName:        session.GuardName,
		InstallationID:   session.InstallationID.String(),
		InstallationName: session.InstallationName,
	})
}

type pendingExecutionResponse struct {
	ID              string `json:"id"`
	TemplateName    string `json:"templateName,omitempty"`
	ScheduledFor    string `json:"scheduledFor"`
	State           string `json:"state"`
	MarksRecorded   int    `json:"marksRecorded"`
	CheckpointTotal int    `json:"checkpointTotal"`
}

func (h *Handler) handlePending(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decode(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := req.validate(); err != nil {
		shared.WriteError(w, err)
		return
	}

	pending, err := h.verifier.ListPending(r.Context(), req.toCredentials())
	if err != nil {
		h.writeError(r.Context(), w, "list pending", err)
		return
	}
	out := make([]pendingExecutionResponse, 0, len(pending))
	for _, pe := range pending {
		out = append(out, pendingExecutionResponse{
			ID:              pe.ID.String(),
			TemplateName:    pe.TemplateName,
			ScheduledFor:    pe.ScheduledFor.Format(time.RFC3339),
			State:           string(pe.State),
			MarksRecorded:   pe.MarksRecorded,
			CheckpointTotal: pe.CheckpointTotal,
		})
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"executions": out})
}

type startRequest struct {
	ExecutionID  string  `json:"executionId"`
	UserAgent    string  `json:"userAgent"`
	BatteryLevel float64 `json:"batteryLevel"`
}

type startResponse struct {
	ExecutionID     string `json:"executionId"`
	State           string `json:"state"`
	StartedAt       string `json:"startedAt"`
	DeviceName      string `json:"deviceName"`
	CheckpointTotal int    `json:"checkpointTotal"`
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decode(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	executionID, err := parseExecutionID(req.ExecutionID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if len(req.UserAgent) > 512 {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "userAgent too long"))
		return
	}

	res, err := h.verifier.Start(r.Context(), service.StartInput{
		ExecutionID:  executionID,
		UserAgent:    req.UserAgent,
		BatteryLevel: req.BatteryLevel,
	})
	if err != nil {
		h.writeError(r.Context(), w, "start", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, startResponse{
		ExecutionID:     res.ExecutionID.String(),
		State:           string(res.State),
		StartedAt:       res.StartedAt.Format(time.RFC3339),
		DeviceName:      res.DeviceName,
		CheckpointTotal: res.CheckpointTotal,
	})
}

type markRequest struct {
	ExecutionID    string  `json:"executionId"`
	CheckpointCode string  `json:"checkpointCode"`
	Lat            float64 `json:"lat"`
	Lng            float64 `json:"lng"`
	BatteryLevel   float64 `json:"batteryLevel"`
	MotionScore    float64 `json:"motionScore"`
	ClientRef      string  `json:"clientRef,omitempty"`
}

type markResponse struct {
	MarkID          string `json:"markId"`
	Timestamp       string `json:"timestamp"`
	MarksRecorded   int    `json:"marksRecorded"`
	CheckpointTotal int    `json:"checkpointTotal"`
	Duplicate       bool   `json:"duplicate"`
}

func (h *Handler) handleMark(w http.ResponseWriter, r *http.Request) {
	var req markRequest
	if err := decode(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	executionID, err := parseExecutionID(req.ExecutionID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if !govalidator.StringLength(req.CheckpointCode, "1", "64") {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid checkpointCode"))
		return
	}
	var clientRef uuid.UUID
	if req.ClientRef != "" {
		clientRef, err = uuid.Parse(req.ClientRef)
		if err != nil {
			shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid clientRef"))
			return
		}
	}

	receipt, err := h.verifier.MarkCheckpoint(r.Context(), service.MarkInput{
		ExecutionID:    executionID,
		CheckpointCode: req.CheckpointCode,
		Lat:            req.Lat,
		Lng:            req.Lng,
		BatteryLevel:   req.BatteryLevel,
		MotionScore:    req.MotionScore,
		ClientRef:      clientRef,
	})
	if err != nil {
		h.writeError(r.Context(), w, "mark checkpoint", err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, markResponse{
		MarkID:          receipt.MarkID.String(),
		Timestamp:       receipt.Timestamp.Format(time.RFC3339),
		MarksRecorded:   receipt.MarksRecorded,
		CheckpointTotal: receipt.CheckpointTotal,
		Duplicate:       receipt.Duplicate,
	})
}

type completeRequest struct {
	ExecutionID string `json:"executionId"`
}

type completeResponse struct {
	ExecutionID     string  `json:"executionId"`
	State           string  `json:"state"`
	CompletionRatio float64 `json:"completionRatio"`
	TrustScore      float64 `json:"trustScore"`
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := decode(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	executionID, err := parseExecutionID(req.ExecutionID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	res, err := h.verifier.Complete(r.Context(), executionID)
	if err != nil {
		h.writeError(r.Context(), w, "complete", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, completeResponse{
		ExecutionID:     res.ExecutionID.String(),
		State:           string(res.State),
		CompletionRatio: res.CompletionRatio,
		TrustScore:      res.TrustScore,
	})
}

type panicRequest struct {
	ExecutionID string  `json:"executionId"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
}

type panicResponse struct {
	AlertID  string `json:"alertId"`
	RaisedAt string `json:"raisedAt"`
}

func (h *Handler) handlePanic(w http.ResponseWriter, r *http.Request) {
	var req panicRequest
	if err := decode(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	executionID, err := parseExecutionID(req.ExecutionID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	ack, err := h.verifier.Panic(r.Context(), service.PanicInput{
		ExecutionID: executionID,
		Lat:         req.Lat,
		Lng:         req.Lng,
	})
	if err != nil {
		h.writeError(r.Context(), w, "panic", err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, panicResponse{
		AlertID:  ack.AlertID.String(),
		RaisedAt: ack.RaisedAt.Format(time.RFC3339),
	})
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	if dErrors.ToHTTPStatus(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, "patrol operation failed",
			"op", op,
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
	}
	shared.WriteError(w, err)
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return dErrors.New(dErrors.CodeValidation, "invalid request body")
	}
	return nil
}

func parseExecutionID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, "invalid executionId")
	}
	return id, nil
}
