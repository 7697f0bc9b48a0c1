package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	dErrors "vigil/pkg/domain-errors"
)

// Credentials are the field credentials sent on every authenticate/pending
// call.
type Credentials struct {
	SiteCode   string `json:"siteCode"`
	NationalID string `json:"nationalId"`
	PIN        string `json:"pin"`
}

// Session is the server's answer to a successful login.
type Session struct {
	GuardName        string `json:"guardName"`
	InstallationID   string `json:"installationId"`
	InstallationName string `json:"installationName"`
}

// PendingExecution is one selectable patrol.
type PendingExecution struct {
	ID              uuid.UUID
	TemplateName    string
	ScheduledFor    time.Time
	State           string
	MarksRecorded   int
	CheckpointTotal int
}

// MarkSubmission is one scan sent to the server.
type MarkSubmission struct {
	ExecutionID    uuid.UUID
	CheckpointCode string
	Lat            float64
	Lng            float64
	BatteryLevel   float64
	MotionScore    float64
	ClientRef      uuid.UUID
}

// MarkAck is the server's acknowledgement of a scan.
type MarkAck struct {
	MarkID          uuid.UUID
	MarksRecorded   int
	CheckpointTotal int
	Duplicate       bool
}

// StartAck acknowledges the start transition.
type StartAck struct {
	State           string
	CheckpointTotal int
}

// CompletionAck is the terminal outcome stored for display.
type CompletionAck struct {
	State           string
	CompletionRatio float64
	TrustScore      float64
}

// ServerAPI is the verification server seen from the edge. Implementations
// must classify network and availability failures as CodeUnavailable; that
// is the only class the offline queue retries.
type ServerAPI interface {
	Authenticate(ctx context.Context, creds Credentials) (*Session, error)
	ListPending(ctx context.Context, creds Credentials) ([]PendingExecution, error)
	Start(ctx context.Context, executionID uuid.UUID, userAgent string, batteryLevel float64) (*StartAck, error)
	Mark(ctx context.Context, sub MarkSubmission) (*MarkAck, error)
	Complete(ctx context.Context, executionID uuid.UUID) (*CompletionAck, error)
	Panic(ctx context.Context, executionID uuid.UUID, lat, lng float64) error
}

// HTTPAPI talks to the verification server over its public JSON surface.
type HTTPAPI struct {
	baseURL string
	http    *http.Client
}

// NewHTTPAPI builds a client for the server at baseURL. The timeout caps
// each round-trip; an expired deadline surfaces as CodeUnavailable.
func NewHTTPAPI(baseURL string, timeout time.Duration) *HTTPAPI {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPAPI{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

func (a *HTTPAPI) Authenticate(ctx context.Context, creds Credentials) (*Session, error) {
	var out Session
	if err := a.post(ctx, "/patrols/authenticate", creds, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *HTTPAPI) ListPending(ctx context.Context, creds Credentials) ([]PendingExecution, error) {
	var out struct {
		Executions []struct {
			ID              string `json:"id"`
			TemplateName    string `json:"templateName"`
			ScheduledFor    string `json:"scheduledFor"`
			State           string `json:"state"`
			MarksRecorded   int    `json:"marksRecorded"`
			CheckpointTotal int    `json:"checkpointTotal"`
		} `json:"executions"`
	}
	if err := a.post(ctx, "/patrols/pending", creds, &out); err != nil {
		return nil, err
	}

	pending := make([]PendingExecution, 0, len(out.Executions))
	for _, e := range out.Executions {
		id, err := uuid.Parse(e.ID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "malformed execution id from server")
		}
		scheduled, _ := time.Parse(time.RFC3339, e.ScheduledFor)
		pending = append(pending, PendingExecution{
			ID:              id,
			TemplateName:    e.TemplateName,
			ScheduledFor:    scheduled,
			State:           e.State,
			MarksRecorded:   e.MarksRecorded,
			CheckpointTotal: e.CheckpointTotal,
		})
	}
	return pending, nil
}

func (a *HTTPAPI) Start(ctx context.Context, executionID uuid.UUID, userAgent string, batteryLevel float64) (*StartAck, error) {
	req := map[string]any{
		"executionId":  executionID.String(),
		"userAgent":    userAgent,
		"batteryLevel": batteryLevel,
	}
	var out struct {
		State           string `json:"state"`
		CheckpointTotal int    `json:"checkpointTotal"`
	}
	if err := a.post(ctx, "/patrols/start", req, &out); err != nil {
		return nil, err
	}
	return &StartAck{State: out.State, CheckpointTotal: out.CheckpointTotal}, nil
}

func (a *HTTPAPI) Mark(ctx context.Context, sub MarkSubmission) (*MarkAck, error) {
	req := map[string]any{
		"executionId":    sub.ExecutionID.String(),
		"checkpointCode": sub.CheckpointCode,
		"lat":            sub.Lat,
		"lng":            sub.Lng,
		"batteryLevel":   sub.BatteryLevel,
		"motionScore":    sub.MotionScore,
		"clientRef":      sub.ClientRef.String(),
	}
	var out struct {
		MarkID          string `json:"markId"`
		MarksRecorded   int    `json:"marksRecorded"`
		CheckpointTotal int    `json:"checkpointTotal"`
		Duplicate       bool   `json:"duplicate"`
	}
	if err := a.post(ctx, "/patrols/mark", req, &out); err != nil {
		return nil, err
	}
	markID, _ := uuid.Parse(out.MarkID)
	return &MarkAck{
		MarkID:          markID,
		MarksRecorded:   out.MarksRecorded,
		CheckpointTotal: out.CheckpointTotal,
		Duplicate:       out.Duplicate,
	}, nil
}

func (a *HTTPAPI) Complete(ctx context.Context, executionID uuid.UUID) (*CompletionAck, error) {
	req := map[string]any{"executionId": executionID.String()}
	var out struct {
		State           string  `json:"state"`
		CompletionRatio float64 `json:"completionRatio"`
		TrustScore      float64 `json:"trustScore"`
	}
	if err := a.post(ctx, "/patrols/complete", req, &out); err != nil {
		return nil, err
	}
	return &CompletionAck{
		State:           out.State,
		CompletionRatio: out.CompletionRatio,
		TrustScore:      out.TrustScore,
	}, nil
}

func (a *HTTPAPI) Panic(ctx context.Context, executionID uuid.UUID, lat, lng float64) error {
	req := map[string]any{
		"executionId": executionID.String(),
		"lat":         lat,
		"lng":         lng,
	}
	return a.post(ctx, "/patrols/panic", req, nil)
}

// post sends one JSON round-trip. A transport failure is CodeUnavailable; a
// non-2xx response is translated back into the server's domain code.
func (a *HTTPAPI) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "server unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "truncated server response")
		}
		return nil
	}

	var envelope struct {
		Error   string         `json:"error"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil || envelope.Error == "" {
		if resp.StatusCode >= 500 {
			return dErrors.Newf(dErrors.CodeUnavailable, "server error %d", resp.StatusCode)
		}
		return dErrors.Newf(dErrors.CodeInternal, "unexpected server response %d", resp.StatusCode)
	}
	code := dErrors.Code(envelope.Error)
	message := envelope.Message
	if message == "" {
		message = fmt.Sprintf("server rejected request (%d)", resp.StatusCode)
	}
	de := dErrors.New(code, message)
	if envelope.Details != nil {
		de = de.WithDetails(envelope.Details)
	}
	return de
}
