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

	"vigil/internal/attendance"
	"vigil/internal/attendance/service"
	dErrors "vigil/pkg/domain-errors"
	"vigil/pkg/testutil"
)

type ClockEventHandlerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	service *MockService
	router  chi.Router
}

func TestClockEventHandlerSuite(t *testing.T) {
	suite.Run(t, new(ClockEventHandlerSuite))
}

func (s *ClockEventHandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = NewMockService(s.ctrl)
	s.router = chi.NewRouter()
	New(s.service, slog.New(slog.DiscardHandler)).Register(s.router)
}

func (s *ClockEventHandlerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ClockEventHandlerSuite) post(body string) *httptest.ResponseRecorder {
	req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/clock-events", body)
	return testutil.DoRequest(s.router, req)
}

const validBody = `{
	"siteCode": "AX93",
	"nationalId": "11.111.111-1",
	"pin": "4321",
	"type": "entry",
	"lat": -33.4489,
	"lng": -70.6693
}`

func (s *ClockEventHandlerSuite) TestSuccess() {
	distance := 12.5
	lateness := 5
	s.service.EXPECT().
		RegisterClockEvent(gomock.Any(), gomock.Any()).
		Return(&service.Receipt{
			EventID:           uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"),
			Type:              attendance.EventEntry,
			Timestamp:         time.Date(2026, 3, 10, 8, 5, 0, 0, time.UTC),
			GeofenceValidated: true,
			DistanceMeters:    &distance,
			LatenessMinutes:   &lateness,
			GuardName:         "Rosa Fuentes",
			InstallationName:  "Plant North",
			IntegrityHash:     "abc123",
		}, nil)

	rec := s.post(validBody)
	s.Equal(http.StatusCreated, rec.Code)

	var resp map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal("entry", resp["type"])
	s.Equal("2026-03-10T08:05:00Z", resp["timestamp"])
	s.Equal(true, resp["geofenceValidated"])
	s.Equal(12.5, resp["distanceMeters"])
	s.Equal(5.0, resp["latenessMinutes"])
	s.Equal("Rosa Fuentes", resp["guardName"])
	s.Equal("abc123", resp["integrityHash"])
}

func (s *ClockEventHandlerSuite) TestMalformedBody() {
	rec := s.post(`{not json`)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *ClockEventHandlerSuite) TestValidationRejectsBeforeService() {
	rec := s.post(`{"siteCode":"AX93","nationalId":"11.111.111-1","pin":"123","type":"entry"}`)
	s.Equal(http.StatusBadRequest, rec.Code, "short pin rejected without calling the service")
}

func (s *ClockEventHandlerSuite) TestErrorStatusMapping() {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"bad pin", dErrors.New(dErrors.CodeUnauthorized, "invalid PIN"), http.StatusUnauthorized},
		{"blacklisted", dErrors.New(dErrors.CodeForbidden, "guard is blacklisted"), http.StatusForbidden},
		{"unknown site", dErrors.New(dErrors.CodeNotFound, "unknown or inactive site code"), http.StatusNotFound},
		{"alternation", dErrors.New(dErrors.CodeConflict, "events must alternate"), http.StatusConflict},
		{"internal", dErrors.New(dErrors.CodeInternal, "boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			s.service.EXPECT().
				RegisterClockEvent(gomock.Any(), gomock.Any()).
				Return(nil, tc.err)

			rec := s.post(validBody)
			s.Equal(tc.status, rec.Code)
		})
	}
}

func (s *ClockEventHandlerSuite) TestGeofenceRejectionCarriesDetails() {
	err := dErrors.New(dErrors.CodeForbidden, "submission outside installation geofence").
		WithDetails(map[string]any{"distance_meters": 150.0, "radius_meters": 100.0})
	s.service.EXPECT().
		RegisterClockEvent(gomock.Any(), gomock.Any()).
		Return(nil, err)

	rec := s.post(validBody)
	s.Equal(http.StatusForbidden, rec.Code)

	var resp map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	details := resp["details"].(map[string]any)
	s.Equal(150.0, details["distance_meters"])
	s.Equal(100.0, details["radius_meters"])
}
