package ratelimit

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"vigil/internal/platform/cache"
	dErrors "vigil/pkg/domain-errors"
	"vigil/pkg/requestcontext"
)

type LockoutSuite struct {
	suite.Suite
	lockout  *Lockout
	tenantID uuid.UUID
	now      time.Time
}

func TestLockoutSuite(t *testing.T) {
	suite.Run(t, new(LockoutSuite))
}

func (s *LockoutSuite) SetupTest() {
	s.lockout = NewLockout(cache.NewMemory(), LockoutConfig{
		MaxFailures:  3,
		Window:       15 * time.Minute,
		LockDuration: 15 * time.Minute,
	}, slog.New(slog.DiscardHandler))
	s.tenantID = uuid.New()
	s.now = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
}

func (s *LockoutSuite) ctx() context.Context {
	return requestcontext.WithTime(context.Background(), s.now)
}

func (s *LockoutSuite) TestCleanIdentityPasses() {
	s.NoError(s.lockout.Check(s.ctx(), s.tenantID, "111111111"))
}

func (s *LockoutSuite) TestLocksAfterMaxFailures() {
	for i := 0; i < 2; i++ {
		s.lockout.RecordFailure(s.ctx(), s.tenantID, "111111111")
		s.NoError(s.lockout.Check(s.ctx(), s.tenantID, "111111111"))
	}

	s.lockout.RecordFailure(s.ctx(), s.tenantID, "111111111")
	err := s.lockout.Check(s.ctx(), s.tenantID, "111111111")
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *LockoutSuite) TestLockExpiresAfterCooldown() {
	for i := 0; i < 3; i++ {
		s.lockout.RecordFailure(s.ctx(), s.tenantID, "111111111")
	}
	s.Error(s.lockout.Check(s.ctx(), s.tenantID, "111111111"))

	s.now = s.now.Add(16 * time.Minute)
	s.NoError(s.lockout.Check(s.ctx(), s.tenantID, "111111111"))
}

func (s *LockoutSuite) TestWindowExpiryForgetsOldFailures() {
	s.lockout.RecordFailure(s.ctx(), s.tenantID, "111111111")
	s.lockout.RecordFailure(s.ctx(), s.tenantID, "111111111")

	// A stale window restarts the count; the next failure is the first of a
	// fresh window, not the third of the old one.
	s.now = s.now.Add(20 * time.Minute)
	s.lockout.RecordFailure(s.ctx(), s.tenantID, "111111111")
	s.NoError(s.lockout.Check(s.ctx(), s.tenantID, "111111111"))
}

func (s *LockoutSuite) TestResetClearsHistory() {
	s.lockout.RecordFailure(s.ctx(), s.tenantID, "111111111")
	s.lockout.RecordFailure(s.ctx(), s.tenantID, "111111111")
	s.lockout.Reset(s.ctx(), s.tenantID, "111111111")

	s.lockout.RecordFailure(s.ctx(), s.tenantID, "111111111")
	s.NoError(s.lockout.Check(s.ctx(), s.tenantID, "111111111"))
}

func (s *LockoutSuite) TestIdentitiesAreIndependent() {
	for i := 0; i < 3; i++ {
		s.lockout.RecordFailure(s.ctx(), s.tenantID, "111111111")
	}
	s.Error(s.lockout.Check(s.ctx(), s.tenantID, "111111111"))
	s.NoError(s.lockout.Check(s.ctx(), s.tenantID, "222222222"))
	s.NoError(s.lockout.Check(s.ctx(), uuid.New(), "111111111"))
}

func (s *LockoutSuite) TestNilLockoutDisablesProtection() {
	var l *Lockout
	s.NoError(l.Check(s.ctx(), s.tenantID, "111111111"))
	l.RecordFailure(s.ctx(), s.tenantID, "111111111")
	l.Reset(s.ctx(), s.tenantID, "111111111")
}
