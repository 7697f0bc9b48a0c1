// Package handler exposes the clock-event endpoint. It delegates to the
// recorder service without embedding business logic so transport concerns
// remain isolated.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/go-chi/chi/v5"

	"vigil/internal/attendance/service"
	"vigil/internal/platform/middleware"
	"vigil/internal/transport/http/shared"
	dErrors "vigil/pkg/domain-errors"
)

// Service defines the recorder operations the handler needs.
type Service interface {
	RegisterClockEvent(ctx context.Context, in service.RegisterInput) (*service.Receipt, error)
}

// Handler handles clock-event endpoints.
type Handler struct {
	recorder Service
	logger   *slog.Logger
}

func New(recorder Service, logger *slog.Logger) *Handler {
	return &Handler{recorder: recorder, logger: logger}
}

// Register mounts the clock-event routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/clock-events", h.handleRegister)
}

type registerRequest struct {
	SiteCode      string  `json:"siteCode"`
	NationalID    string  `json:"nationalId"`
	PIN           string  `json:"pin"`
	Type          string  `json:"type"`
	Lat           float64 `json:"lat"`
	Lng           float64 `json:"lng"`
	EvidencePhoto string  `json:"evidencePhoto,omitempty"`
}

type registerResponse struct {
	ID                string   `json:"id"`
	Type              string   `json:"type"`
	Timestamp         string   `json:"timestamp"`
	GeofenceValidated bool     `json:"geofenceValidated"`
	DistanceMeters    *float64 `json:"distanceMeters,omitempty"`
	LatenessMinutes   *int     `json:"latenessMinutes,omitempty"`
	GuardName         string   `json:"guardName"`
	InstallationName  string   `json:"installationName"`
	IntegrityHash     string   `json:"integrityHash"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}
	if err := validateRegisterRequest(req); err != nil {
		shared.WriteError(w, err)
		return
	}

	receipt, err := h.recorder.RegisterClockEvent(ctx, service.RegisterInput{
		SiteCode:         req.SiteCode,
		NationalID:       req.NationalID,
		PIN:              req.PIN,
		Type:             req.Type,
		Lat:              req.Lat,
		Lng:              req.Lng,
		EvidencePhotoRef: req.EvidencePhoto,
	})
	if err != nil {
		if dErrors.ToHTTPStatus(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
			h.logger.ErrorContext(ctx, "clock event registration failed",
				"request_id", middleware.GetRequestID(ctx),
				"error", err.Error(),
			)
		}
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusCreated, registerResponse{
		ID:                receipt.EventID.String(),
		Type:              string(receipt.Type),
		Timestamp:         receipt.Timestamp.Format(time.RFC3339),
		GeofenceValidated: receipt.GeofenceValidated,
		DistanceMeters:    receipt.DistanceMeters,
		LatenessMinutes:   receipt.LatenessMinutes,
		GuardName:         receipt.GuardName,
		InstallationName:  receipt.InstallationName,
		IntegrityHash:     receipt.IntegrityHash,
	})
}

func validateRegisterRequest(req registerRequest) error {
	if !govalidator.StringLength(req.SiteCode, "1", "32") {
		return dErrors.New(dErrors.CodeValidation, "invalid siteCode")
	}
	if !govalidator.StringLength(req.NationalID, "1", "16") {
		return dErrors.New(dErrors.CodeValidation, "invalid nationalId")
	}
	if !govalidator.StringLength(req.PIN, "4", "12") {
		return dErrors.New(dErrors.CodeValidation, "invalid pin")
	}
	if req.Type != "entry" && req.Type != "exit" {
		return dErrors.New(dErrors.CodeValidation, "type must be entry or exit")
	}
	if len(req.EvidencePhoto) > 512 {
		return dErrors.New(dErrors.CodeValidation, "evidencePhoto reference too long")
	}
	return nil
}
