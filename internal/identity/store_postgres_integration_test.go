//go:build integration

package identity_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"vigil/internal/identity"
	"vigil/pkg/platform/sentinel"
	"vigil/pkg/testutil/containers"
)

type PostgresDirectorySuite struct {
	suite.Suite
	postgres  *containers.PostgresContainer
	directory *identity.PostgresDirectory

	tenantID       uuid.UUID
	guardID        uuid.UUID
	installationID uuid.UUID
}

func TestPostgresDirectorySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresDirectorySuite))
}

func (s *PostgresDirectorySuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.directory = identity.NewPostgresDirectory(s.postgres.DB)
}

func (s *PostgresDirectorySuite) SetupTest() {
	ctx := context.Background()
	err := s.postgres.TruncateTables(ctx, "schedule_assignments", "guards", "installations")
	s.Require().NoError(err)

	s.tenantID = uuid.New()
	s.guardID = uuid.New()
	s.installationID = uuid.New()

	pinHash, err := bcrypt.GenerateFromPassword([]byte("4321"), bcrypt.MinCost)
	s.Require().NoError(err)

	_, err = s.postgres.DB.ExecContext(ctx,
		`INSERT INTO guards (id, tenant_id, national_id, first_name, last_name, status, pin_hash)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		s.guardID, s.tenantID, "111111111", "Rosa", "Fuentes", identity.StatusHired, pinHash,
	)
	s.Require().NoError(err)

	_, err = s.postgres.DB.ExecContext(ctx,
		`INSERT INTO installations (id, tenant_id, name, site_code, active,
		                            geofence_lat, geofence_lng, geofence_radius_m, shift_start)
		 VALUES ($1,$2,$3,$4,TRUE,$5,$6,$7,$8)`,
		s.installationID, s.tenantID, "Plant North", "AX93", -33.45, -70.66, 150.0, "22:00",
	)
	s.Require().NoError(err)
}

func (s *PostgresDirectorySuite) TestFindByNationalID() {
	guard, err := s.directory.FindByNationalID(context.Background(), s.tenantID, "111111111")
	s.Require().NoError(err)

	s.Equal(s.guardID, guard.ID)
	s.Equal("Rosa Fuentes", guard.DisplayName())
	s.Equal(identity.StatusHired, guard.Status)
	s.NotEmpty(guard.PINHash)
}

func (s *PostgresDirectorySuite) TestFindByNationalIDUnknownGuard() {
	_, err := s.directory.FindByNationalID(context.Background(), s.tenantID, "999999999")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresDirectorySuite) TestFindByNationalIDScopesByTenant() {
	_, err := s.directory.FindByNationalID(context.Background(), uuid.New(), "111111111")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresDirectorySuite) TestFindBySiteCode() {
	inst, err := s.directory.FindBySiteCode(context.Background(), "AX93")
	s.Require().NoError(err)

	s.Equal(s.installationID, inst.ID)
	s.Equal("Plant North", inst.Name)
	s.Require().NotNil(inst.Geofence)
	s.InDelta(150.0, inst.Geofence.RadiusMeters, 0.001)
	s.Equal("22:00", inst.ShiftStart)
}

func (s *PostgresDirectorySuite) TestFindBySiteCodeWithoutGeofence() {
	ctx := context.Background()
	_, err := s.postgres.DB.ExecContext(ctx,
		`INSERT INTO installations (id, tenant_id, name, site_code, active)
		 VALUES ($1,$2,$3,$4,TRUE)`,
		uuid.New(), s.tenantID, "Depot South", "QZ17",
	)
	s.Require().NoError(err)

	inst, err := s.directory.FindBySiteCode(ctx, "QZ17")
	s.Require().NoError(err)
	s.Nil(inst.Geofence)
	s.Empty(inst.ShiftStart)
}

func (s *PostgresDirectorySuite) TestFindBySiteCodeSkipsInactive() {
	ctx := context.Background()
	_, err := s.postgres.DB.ExecContext(ctx,
		`UPDATE installations SET active = FALSE WHERE id = $1`, s.installationID)
	s.Require().NoError(err)

	_, err = s.directory.FindBySiteCode(ctx, "AX93")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresDirectorySuite) TestHasAssignment() {
	ctx := context.Background()
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	_, err := s.postgres.DB.ExecContext(ctx,
		`INSERT INTO schedule_assignments (guard_id, installation_id, day) VALUES ($1,$2,$3)`,
		s.guardID, s.installationID, day.Format("2006-01-02"),
	)
	s.Require().NoError(err)

	assigned, err := s.directory.HasAssignment(ctx, s.guardID, s.installationID, day)
	s.Require().NoError(err)
	s.True(assigned)

	assigned, err = s.directory.HasAssignment(ctx, s.guardID, s.installationID, day.AddDate(0, 0, 1))
	s.Require().NoError(err)
	s.False(assigned)
}
