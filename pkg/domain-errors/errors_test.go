package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/suite"
)

type DomainErrorsSuite struct {
	suite.Suite
}

func TestDomainErrorsSuite(t *testing.T) {
	suite.Run(t, new(DomainErrorsSuite))
}

func (s *DomainErrorsSuite) TestHasCode() {
	s.Run("direct error matches its code", func() {
		err := New(CodeConflict, "entry already recorded")
		s.True(HasCode(err, CodeConflict))
		s.False(HasCode(err, CodeNotFound))
	})

	s.Run("wrapped error still matches", func() {
		cause := New(CodeUnauthorized, "pin mismatch")
		err := fmt.Errorf("register clock event: %w", cause)
		s.True(HasCode(err, CodeUnauthorized))
	})

	s.Run("plain error matches nothing", func() {
		s.False(HasCode(errors.New("boom"), CodeInternal))
	})
}

func (s *DomainErrorsSuite) TestCodeOf() {
	s.Equal(CodeForbidden, CodeOf(New(CodeForbidden, "blacklisted")))
	s.Equal(CodeInternal, CodeOf(errors.New("raw")))
}

func (s *DomainErrorsSuite) TestWrapPreservesCause() {
	cause := errors.New("connection reset")
	err := Wrap(cause, CodeUnavailable, "store unreachable")
	s.ErrorIs(err, cause)
	s.Equal(CodeUnavailable, err.Code)
	s.Contains(err.Error(), "connection reset")
}

func (s *DomainErrorsSuite) TestWithDetailsDoesNotMutateOriginal() {
	base := New(CodeForbidden, "outside geofence")
	detailed := base.WithDetails(map[string]any{"distance_meters": 150.0, "radius_meters": 100.0})
	s.Nil(base.Details)
	s.Equal(150.0, detailed.Details["distance_meters"])
}

func (s *DomainErrorsSuite) TestToHTTPStatus() {
	cases := map[Code]int{
		CodeValidation:   http.StatusBadRequest,
		CodeUnauthorized: http.StatusUnauthorized,
		CodeForbidden:    http.StatusForbidden,
		CodeNotFound:     http.StatusNotFound,
		CodeConflict:     http.StatusConflict,
		CodeUnavailable:  http.StatusServiceUnavailable,
		CodeIntegrity:    http.StatusInternalServerError,
		CodeInternal:     http.StatusInternalServerError,
	}
	for code, want := range cases {
		s.Equal(want, ToHTTPStatus(code), string(code))
	}
}
