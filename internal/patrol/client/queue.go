package client

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// QueuedMark is one checkpoint scan captured while offline. ClientRef is
// assigned at capture time so a retried submission is recognized as a
// duplicate server-side instead of being counted twice.
type QueuedMark struct {
	Seq            int64
	ClientRef      uuid.UUID
	ExecutionID    uuid.UUID
	CheckpointCode string
	Lat            float64
	Lng            float64
	BatteryLevel   float64
	MotionScore    float64
	CapturedAt     time.Time
}

// ErrQueueEmpty is returned by Head when the replay cursor has reached the
// end of the log.
var ErrQueueEmpty = errors.New("mark queue is empty")

// Queue is the durable offline mark log: an append-only SQLite table with a
// replay cursor. The queue survives client restarts; an item is consumed
// only when the server confirms acceptance.
type Queue struct {
	db *sql.DB
}

// OpenQueue opens (or creates) the queue database at path.
func OpenQueue(path string) (*Queue, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("queue path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open queue db: %w", err)
	}
	// Single cooperative writer.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping queue db: %w", err)
	}
	if err := initQueueSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Queue{db: db}, nil
}

func initQueueSchema(db *sql.DB) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS queued_marks (
			seq             INTEGER PRIMARY KEY AUTOINCREMENT,
			client_ref      TEXT NOT NULL,
			execution_id    TEXT NOT NULL,
			checkpoint_code TEXT NOT NULL,
			lat             REAL NOT NULL,
			lng             REAL NOT NULL,
			battery_level   REAL NOT NULL,
			motion_score    REAL NOT NULL,
			captured_at     INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS queue_cursor (
			id       INTEGER PRIMARY KEY CHECK (id = 1),
			next_seq INTEGER NOT NULL
		);
		INSERT OR IGNORE INTO queue_cursor (id, next_seq) VALUES (1, 1);`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("init queue schema: %w", err)
	}
	return nil
}

// Close closes the queue database.
func (q *Queue) Close() error {
	return q.db.Close()
}

// Enqueue appends one mark to the log.
func (q *Queue) Enqueue(ctx context.Context, m QueuedMark) error {
	const stmt = `
		INSERT INTO queued_marks (
			client_ref, execution_id, checkpoint_code,
			lat, lng, battery_level, motion_score, captured_at
		) VALUES (?,?,?,?,?,?,?,?)`

	_, err := q.db.ExecContext(ctx, stmt,
		m.ClientRef.String(), m.ExecutionID.String(), m.CheckpointCode,
		m.Lat, m.Lng, m.BatteryLevel, m.MotionScore, m.CapturedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("enqueue mark: %w", err)
	}
	return nil
}

// Head returns the oldest unconsumed mark, or ErrQueueEmpty.
func (q *Queue) Head(ctx context.Context) (*QueuedMark, error) {
	const query = `
		SELECT seq, client_ref, execution_id, checkpoint_code,
		       lat, lng, battery_level, motion_score, captured_at
		FROM queued_marks
		WHERE seq >= (SELECT next_seq FROM queue_cursor WHERE id = 1)
		ORDER BY seq
		LIMIT 1`

	var m QueuedMark
	var ref, execID string
	var capturedMillis int64
	err := q.db.QueryRowContext(ctx, query).Scan(
		&m.Seq, &ref, &execID, &m.CheckpointCode,
		&m.Lat, &m.Lng, &m.BatteryLevel, &m.MotionScore, &capturedMillis,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQueueEmpty
		}
		return nil, fmt.Errorf("read queue head: %w", err)
	}
	if m.ClientRef, err = uuid.Parse(ref); err != nil {
		return nil, fmt.Errorf("corrupt queue entry %d: %w", m.Seq, err)
	}
	if m.ExecutionID, err = uuid.Parse(execID); err != nil {
		return nil, fmt.Errorf("corrupt queue entry %d: %w", m.Seq, err)
	}
	m.CapturedAt = time.UnixMilli(capturedMillis).UTC()
	return &m, nil
}

// Consume advances the replay cursor past seq and compacts the consumed
// entry. Called only after the server confirms acceptance (or definitively
// rejects the item).
func (q *Queue) Consume(ctx context.Context, seq int64) error {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin consume: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`UPDATE queue_cursor SET next_seq = ? WHERE id = 1 AND next_seq <= ?`,
		seq+1, seq,
	); err != nil {
		return fmt.Errorf("advance cursor: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM queued_marks WHERE seq <= ?`, seq); err != nil {
		return fmt.Errorf("compact queue: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit consume: %w", err)
	}
	return nil
}

// Len reports how many marks await flushing.
func (q *Queue) Len(ctx context.Context) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM queued_marks
		WHERE seq >= (SELECT next_seq FROM queue_cursor WHERE id = 1)`

	var n int
	if err := q.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count queue: %w", err)
	}
	return n, nil
}
