package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"vigil/internal/attendance"
	"vigil/internal/patrol"
	"vigil/pkg/platform/sentinel"
)

// PostgresStore persists patrol templates, executions, marks and alerts in
// PostgreSQL.
//
// Concurrency: FindExecutionForUpdate takes a row lock, so concurrent marks
// or a mark racing a complete serialize on the execution row.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type postgresTx struct {
	tx *sql.Tx
}

func (s *PostgresStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin patrol tx: %w", err)
	}
	if err := fn(&postgresTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit patrol tx: %w", err)
	}
	return nil
}

const executionColumns = `
	id, tenant_id, installation_id, guard_id, template_id, scheduled_for,
	state, marks_recorded, checkpoint_total,
	device_user_agent, device_display_name, device_battery,
	started_at, completed_at, trust_score`

func (t *postgresTx) FindExecutionForUpdate(ctx context.Context, id uuid.UUID) (*patrol.Execution, error) {
	q := `SELECT ` + executionColumns + ` FROM patrol_executions WHERE id = $1 FOR UPDATE`
	exec, err := scanExecution(t.tx.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find execution for update: %w", err)
	}
	return exec, nil
}

func (t *postgresTx) SaveExecution(ctx context.Context, exec *patrol.Execution) error {
	const q = `
		UPDATE patrol_executions SET
			state = $2,
			marks_recorded = $3,
			device_user_agent = $4,
			device_display_name = $5,
			device_battery = $6,
			started_at = $7,
			completed_at = $8,
			trust_score = $9
		WHERE id = $1`

	var ua, display sql.NullString
	var battery sql.NullFloat64
	if exec.Device != nil {
		ua = sql.NullString{String: exec.Device.UserAgent, Valid: true}
		display = sql.NullString{String: exec.Device.DisplayName, Valid: true}
		battery = sql.NullFloat64{Float64: exec.Device.BatteryLevel, Valid: true}
	}
	res, err := t.tx.ExecContext(ctx, q,
		exec.ID, exec.State, exec.MarksRecorded,
		ua, display, battery,
		exec.StartedAt, exec.CompletedAt, exec.TrustScore,
	)
	if err != nil {
		return fmt.Errorf("save execution: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (t *postgresTx) FindMarkByClientRef(ctx context.Context, executionID, clientRef uuid.UUID) (*patrol.Mark, error) {
	const q = `
		SELECT id, execution_id, client_ref, checkpoint_code, scanned_at,
		       lat, lng, battery_level, motion_score
		FROM checkpoint_marks
		WHERE execution_id = $1 AND client_ref = $2`

	mark, err := scanMark(t.tx.QueryRowContext(ctx, q, executionID, clientRef))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find mark by client ref: %w", err)
	}
	return mark, nil
}

func (t *postgresTx) InsertMark(ctx context.Context, mark *patrol.Mark) error {
	const q = `
		INSERT INTO checkpoint_marks (
			id, execution_id, client_ref, checkpoint_code, scanned_at,
			lat, lng, battery_level, motion_score
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err := t.tx.ExecContext(ctx, q,
		mark.ID, mark.ExecutionID, mark.ClientRef, mark.CheckpointCode, mark.Timestamp,
		mark.Lat, mark.Lng, mark.BatteryLevel, mark.MotionScore,
	)
	if err != nil {
		return fmt.Errorf("insert checkpoint mark: %w", err)
	}
	return nil
}

func (t *postgresTx) ListMarks(ctx context.Context, executionID uuid.UUID) ([]*patrol.Mark, error) {
	const q = `
		SELECT id, execution_id, client_ref, checkpoint_code, scanned_at,
		       lat, lng, battery_level, motion_score
		FROM checkpoint_marks
		WHERE execution_id = $1
		ORDER BY scanned_at`

	rows, err := t.tx.QueryContext(ctx, q, executionID)
	if err != nil {
		return nil, fmt.Errorf("list marks: %w", err)
	}
	defer rows.Close()

	var out []*patrol.Mark
	for rows.Next() {
		mark, err := scanMark(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mark: %w", err)
		}
		out = append(out, mark)
	}
	return out, rows.Err()
}

func (s *PostgresStore) FindTemplate(ctx context.Context, id uuid.UUID) (*patrol.Template, error) {
	const q = `
		SELECT id, tenant_id, installation_id, name
		FROM patrol_templates
		WHERE id = $1`

	var t patrol.Template
	err := s.db.QueryRowContext(ctx, q, id).Scan(&t.ID, &t.TenantID, &t.InstallationID, &t.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find template: %w", err)
	}

	const cq = `
		SELECT code, name, expected_offset_s
		FROM patrol_checkpoints
		WHERE template_id = $1
		ORDER BY position`

	rows, err := s.db.QueryContext(ctx, cq, id)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var cp patrol.Checkpoint
		var offsetSec int64
		if err := rows.Scan(&cp.Code, &cp.Name, &offsetSec); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		cp.ExpectedOffset = time.Duration(offsetSec) * time.Second
		t.Checkpoints = append(t.Checkpoints, cp)
	}
	return &t, rows.Err()
}

func (s *PostgresStore) FindExecution(ctx context.Context, id uuid.UUID) (*patrol.Execution, error) {
	q := `SELECT ` + executionColumns + ` FROM patrol_executions WHERE id = $1`
	exec, err := scanExecution(s.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find execution: %w", err)
	}
	return exec, nil
}

func (s *PostgresStore) ListPending(ctx context.Context, installationID uuid.UUID, day time.Time) ([]*patrol.Execution, error) {
	dayStart := attendance.DayOf(day)
	q := `SELECT ` + executionColumns + `
		FROM patrol_executions
		WHERE installation_id = $1
		  AND scheduled_for >= $2 AND scheduled_for < $3
		  AND state IN ('pending', 'in_progress')
		ORDER BY scheduled_for`

	rows, err := s.db.QueryContext(ctx, q, installationID, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("list pending executions: %w", err)
	}
	defer rows.Close()

	var out []*patrol.Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		out = append(out, exec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListMarks(ctx context.Context, executionID uuid.UUID) ([]*patrol.Mark, error) {
	const q = `
		SELECT id, execution_id, client_ref, checkpoint_code, scanned_at,
		       lat, lng, battery_level, motion_score
		FROM checkpoint_marks
		WHERE execution_id = $1
		ORDER BY scanned_at`

	rows, err := s.db.QueryContext(ctx, q, executionID)
	if err != nil {
		return nil, fmt.Errorf("list marks: %w", err)
	}
	defer rows.Close()

	var out []*patrol.Mark
	for rows.Next() {
		mark, err := scanMark(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mark: %w", err)
		}
		out = append(out, mark)
	}
	return out, rows.Err()
}

func (s *PostgresStore) InsertAlert(ctx context.Context, alert *patrol.Alert) error {
	const q = `
		INSERT INTO panic_alerts (id, tenant_id, execution_id, installation_id, guard_id, lat, lng, raised_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err := s.db.ExecContext(ctx, q,
		alert.ID, alert.TenantID, alert.ExecutionID, alert.InstallationID, alert.GuardID,
		alert.Lat, alert.Lng, alert.RaisedAt,
	)
	if err != nil {
		return fmt.Errorf("insert panic alert: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAlerts(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]*patrol.Alert, error) {
	const q = `
		SELECT id, tenant_id, execution_id, installation_id, guard_id, lat, lng, raised_at
		FROM panic_alerts
		WHERE tenant_id = $1 AND raised_at >= $2 AND raised_at < $3
		ORDER BY raised_at`

	rows, err := s.db.QueryContext(ctx, q, tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list panic alerts: %w", err)
	}
	defer rows.Close()

	var out []*patrol.Alert
	for rows.Next() {
		var a patrol.Alert
		err := rows.Scan(&a.ID, &a.TenantID, &a.ExecutionID, &a.InstallationID, &a.GuardID, &a.Lat, &a.Lng, &a.RaisedAt)
		if err != nil {
			return nil, fmt.Errorf("scan panic alert: %w", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListFinalized(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]*patrol.Execution, error) {
	q := `SELECT ` + executionColumns + `
		FROM patrol_executions
		WHERE tenant_id = $1
		  AND scheduled_for >= $2 AND scheduled_for < $3
		  AND state IN ('completed', 'partial', 'suspicious')
		ORDER BY scheduled_for`

	rows, err := s.db.QueryContext(ctx, q, tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list finalized executions: %w", err)
	}
	defer rows.Close()

	var out []*patrol.Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		out = append(out, exec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExecution(r rowScanner) (*patrol.Execution, error) {
	var exec patrol.Execution
	var ua, display sql.NullString
	var battery sql.NullFloat64
	err := r.Scan(
		&exec.ID, &exec.TenantID, &exec.InstallationID, &exec.GuardID, &exec.TemplateID, &exec.ScheduledFor,
		&exec.State, &exec.MarksRecorded, &exec.CheckpointTotal,
		&ua, &display, &battery,
		&exec.StartedAt, &exec.CompletedAt, &exec.TrustScore,
	)
	if err != nil {
		return nil, err
	}
	if ua.Valid {
		exec.Device = &patrol.DeviceSnapshot{
			UserAgent:    ua.String,
			DisplayName:  display.String,
			BatteryLevel: battery.Float64,
		}
	}
	return &exec, nil
}

func scanMark(r rowScanner) (*patrol.Mark, error) {
	var m patrol.Mark
	err := r.Scan(
		&m.ID, &m.ExecutionID, &m.ClientRef, &m.CheckpointCode, &m.Timestamp,
		&m.Lat, &m.Lng, &m.BatteryLevel, &m.MotionScore,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
