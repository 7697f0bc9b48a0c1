package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"vigil/internal/patrol"
	"vigil/internal/patrol/service"
	dErrors "vigil/pkg/domain-errors"
	"vigil/pkg/testutil"
)

type PatrolHandlerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	service *MockService
	router  chi.Router
}

func TestPatrolHandlerSuite(t *testing.T) {
	suite.Run(t, new(PatrolHandlerSuite))
}

func (s *PatrolHandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = NewMockService(s.ctrl)
	s.router = chi.NewRouter()
	New(s.service, slog.New(slog.DiscardHandler)).Register(s.router)
}

func (s *PatrolHandlerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *PatrolHandlerSuite) post(path, body string) *httptest.ResponseRecorder {
	req := testutil.NewRequestWithBody(s.T(), http.MethodPost, path, body)
	return testutil.DoRequest(s.router, req)
}

const credsBody = `{"siteCode":"AX93","nationalId":"11.111.111-1","pin":"4321"}`

func (s *PatrolHandlerSuite) TestAuthenticate() {
	s.service.EXPECT().
		Authenticate(gomock.Any(), service.Credentials{SiteCode: "AX93", NationalID: "11.111.111-1", PIN: "4321"}).
		Return(&service.Session{
			GuardName:        "Rosa Fuentes",
			InstallationID:   uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"),
			InstallationName: "Plant North",
		}, nil)

	rec := s.post("/patrols/authenticate", credsBody)
	s.Equal(http.StatusOK, rec.Code)

	var resp map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal("Rosa Fuentes", resp["guardName"])
	s.Equal("Plant North", resp["installationName"])
}

func (s *PatrolHandlerSuite) TestAuthenticateBadPIN() {
	s.service.EXPECT().
		Authenticate(gomock.Any(), gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeUnauthorized, "invalid PIN"))

	rec := s.post("/patrols/authenticate", credsBody)
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *PatrolHandlerSuite) TestShortPINRejectedBeforeService() {
	rec := s.post("/patrols/authenticate", `{"siteCode":"AX93","nationalId":"11.111.111-1","pin":"12"}`)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *PatrolHandlerSuite) TestPendingList() {
	scheduled := time.Date(2026, 3, 10, 22, 0, 0, 0, time.UTC)
	s.service.EXPECT().
		ListPending(gomock.Any(), gomock.Any()).
		Return([]service.PendingExecution{{
			ID:              uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"),
			TemplateName:    "Night round",
			ScheduledFor:    scheduled,
			State:           patrol.StatePending,
			CheckpointTotal: 5,
		}}, nil)

	rec := s.post("/patrols/pending", credsBody)
	s.Equal(http.StatusOK, rec.Code)

	var resp struct {
		Executions []map[string]any `json:"executions"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Require().Len(resp.Executions, 1)
	s.Equal("Night round", resp.Executions[0]["templateName"])
	s.Equal("2026-03-10T22:00:00Z", resp.Executions[0]["scheduledFor"])
}

func (s *PatrolHandlerSuite) TestStart() {
	execID := uuid.New()
	started := time.Date(2026, 3, 10, 22, 0, 0, 0, time.UTC)
	s.service.EXPECT().
		Start(gomock.Any(), service.StartInput{ExecutionID: execID, UserAgent: "agent", BatteryLevel: 90}).
		Return(&service.StartResult{
			ExecutionID:     execID,
			State:           patrol.StateInProgress,
			StartedAt:       started,
			DeviceName:      "Chrome 120 on Android",
			CheckpointTotal: 5,
		}, nil)

	rec := s.post("/patrols/start", `{"executionId":"`+execID.String()+`","userAgent":"agent","batteryLevel":90}`)
	s.Equal(http.StatusOK, rec.Code)

	var resp map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal("in_progress", resp["state"])
	s.Equal("Chrome 120 on Android", resp["deviceName"])
}

func (s *PatrolHandlerSuite) TestStartMalformedExecutionID() {
	rec := s.post("/patrols/start", `{"executionId":"not-a-uuid","batteryLevel":90}`)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *PatrolHandlerSuite) TestMark() {
	execID := uuid.New()
	ref := uuid.New()
	markID := uuid.New()
	ts := time.Date(2026, 3, 10, 22, 10, 0, 0, time.UTC)
	s.service.EXPECT().
		MarkCheckpoint(gomock.Any(), service.MarkInput{
			ExecutionID:    execID,
			CheckpointCode: "CP-2",
			Lat:            -33.4489,
			Lng:            -70.6693,
			BatteryLevel:   88,
			MotionScore:    0.61,
			ClientRef:      ref,
		}).
		Return(&service.MarkReceipt{
			MarkID:          markID,
			Timestamp:       ts,
			MarksRecorded:   2,
			CheckpointTotal: 5,
		}, nil)

	body := `{"executionId":"` + execID.String() + `","checkpointCode":"CP-2","lat":-33.4489,"lng":-70.6693,"batteryLevel":88,"motionScore":0.61,"clientRef":"` + ref.String() + `"}`
	rec := s.post("/patrols/mark", body)
	s.Equal(http.StatusCreated, rec.Code)

	var resp map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal(markID.String(), resp["markId"])
	s.Equal(2.0, resp["marksRecorded"])
	s.Equal(false, resp["duplicate"])
}

func (s *PatrolHandlerSuite) TestMarkConflictAfterFinalization() {
	execID := uuid.New()
	s.service.EXPECT().
		MarkCheckpoint(gomock.Any(), gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeConflict, "execution is completed, marks require in_progress"))

	body := `{"executionId":"` + execID.String() + `","checkpointCode":"CP-2","lat":0,"lng":0,"batteryLevel":88,"motionScore":0.5}`
	rec := s.post("/patrols/mark", body)
	s.Equal(http.StatusConflict, rec.Code)
}

func (s *PatrolHandlerSuite) TestComplete() {
	execID := uuid.New()
	s.service.EXPECT().
		Complete(gomock.Any(), execID).
		Return(&service.CompletionResult{
			ExecutionID:     execID,
			State:           patrol.StatePartial,
			CompletionRatio: 0.6,
			TrustScore:      71.5,
		}, nil)

	rec := s.post("/patrols/complete", `{"executionId":"`+execID.String()+`"}`)
	s.Equal(http.StatusOK, rec.Code)

	var resp map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal("partial", resp["state"])
	s.Equal(0.6, resp["completionRatio"])
	s.Equal(71.5, resp["trustScore"])
}

func (s *PatrolHandlerSuite) TestPanic() {
	execID := uuid.New()
	alertID := uuid.New()
	raised := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)
	s.service.EXPECT().
		Panic(gomock.Any(), service.PanicInput{ExecutionID: execID, Lat: -33.44, Lng: -70.66}).
		Return(&service.AlertAck{AlertID: alertID, RaisedAt: raised}, nil)

	rec := s.post("/patrols/panic", `{"executionId":"`+execID.String()+`","lat":-33.44,"lng":-70.66}`)
	s.Equal(http.StatusCreated, rec.Code)

	var resp map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal(alertID.String(), resp["alertId"])
}

func (s *PatrolHandlerSuite) TestUnknownExecution() {
	s.service.EXPECT().
		Complete(gomock.Any(), gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeNotFound, "unknown execution"))

	rec := s.post("/patrols/complete", `{"executionId":"`+uuid.NewString()+`"}`)
	s.Equal(http.StatusNotFound, rec.Code)
}
