package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"vigil/pkg/platform/sentinel"
)

// PostgresDirectory reads guards, installations and schedule assignments from
// the shared operational database.
type PostgresDirectory struct {
	db *sql.DB
}

func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) FindByNationalID(ctx context.Context, tenantID uuid.UUID, nationalID string) (*Guard, error) {
	const q = `
		SELECT id, tenant_id, national_id, first_name, last_name, status, pin_hash, created_at
		FROM guards
		WHERE tenant_id = $1 AND national_id = $2`

	var g Guard
	var pinHash []byte
	err := d.db.QueryRowContext(ctx, q, tenantID, nationalID).Scan(
		&g.ID, &g.TenantID, &g.NationalID, &g.FirstName, &g.LastName, &g.Status, &pinHash, &g.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find guard by national id: %w", err)
	}
	g.PINHash = pinHash
	return &g, nil
}

func (d *PostgresDirectory) FindBySiteCode(ctx context.Context, siteCode string) (*Installation, error) {
	const q = `
		SELECT id, tenant_id, name, site_code, active,
		       geofence_lat, geofence_lng, geofence_radius_m, shift_start
		FROM installations
		WHERE site_code = $1 AND active`

	var i Installation
	var lat, lng, radius sql.NullFloat64
	var shiftStart sql.NullString
	err := d.db.QueryRowContext(ctx, q, siteCode).Scan(
		&i.ID, &i.TenantID, &i.Name, &i.SiteCode, &i.Active, &lat, &lng, &radius, &shiftStart,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find installation by site code: %w", err)
	}
	if lat.Valid && lng.Valid && radius.Valid {
		i.Geofence = &Geofence{Lat: lat.Float64, Lng: lng.Float64, RadiusMeters: radius.Float64}
	}
	i.ShiftStart = shiftStart.String
	return &i, nil
}

func (d *PostgresDirectory) HasAssignment(ctx context.Context, guardID, installationID uuid.UUID, day time.Time) (bool, error) {
	const q = `
		SELECT EXISTS (
			SELECT 1 FROM schedule_assignments
			WHERE guard_id = $1 AND installation_id = $2 AND day = $3
		)`

	var exists bool
	err := d.db.QueryRowContext(ctx, q, guardID, installationID, day.Format("2006-01-02")).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check schedule assignment: %w", err)
	}
	return exists, nil
}
