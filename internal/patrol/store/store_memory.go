package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"vigil/internal/attendance"
	"vigil/internal/patrol"
	"vigil/pkg/platform/sentinel"
)

// MemoryStore keeps templates, executions, marks and alerts in process.
// RunInTx takes a coarse lock, matching the row lock the SQL store takes on
// the execution.
type MemoryStore struct {
	mu         sync.Mutex
	executions map[uuid.UUID]*patrol.Execution
	marks      []*patrol.Mark
	alerts     []*patrol.Alert

	// Templates carry their own lock so they stay readable from inside a
	// RunInTx scope.
	tmu       sync.RWMutex
	templates map[uuid.UUID]*patrol.Template
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		templates:  make(map[uuid.UUID]*patrol.Template),
		executions: make(map[uuid.UUID]*patrol.Execution),
	}
}

// PutTemplate seeds a route template. Templates are owned by operations
// tooling; the server only reads them.
func (s *MemoryStore) PutTemplate(t *patrol.Template) {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	s.templates[t.ID] = cloneTemplate(t)
}

// PutExecution seeds a scheduled execution.
func (s *MemoryStore) PutExecution(e *patrol.Execution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions[e.ID] = cloneExecution(e)
}

// memoryTx operates on the store while RunInTx holds the lock.
type memoryTx struct {
	s       *MemoryStore
	updates map[uuid.UUID]*patrol.Execution
	marks   []*patrol.Mark
}

func (s *MemoryStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{s: s, updates: make(map[uuid.UUID]*patrol.Execution)}
	if err := fn(tx); err != nil {
		return err
	}
	for id, exec := range tx.updates {
		s.executions[id] = exec
	}
	s.marks = append(s.marks, tx.marks...)
	return nil
}

func (tx *memoryTx) FindExecutionForUpdate(ctx context.Context, id uuid.UUID) (*patrol.Execution, error) {
	if exec, ok := tx.updates[id]; ok {
		return cloneExecution(exec), nil
	}
	exec, ok := tx.s.executions[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneExecution(exec), nil
}

func (tx *memoryTx) SaveExecution(ctx context.Context, exec *patrol.Execution) error {
	tx.updates[exec.ID] = cloneExecution(exec)
	return nil
}

func (tx *memoryTx) FindMarkByClientRef(ctx context.Context, executionID, clientRef uuid.UUID) (*patrol.Mark, error) {
	scan := func(marks []*patrol.Mark) *patrol.Mark {
		for _, m := range marks {
			if m.ExecutionID == executionID && m.ClientRef == clientRef {
				return m
			}
		}
		return nil
	}
	if m := scan(tx.s.marks); m != nil {
		copied := *m
		return &copied, nil
	}
	if m := scan(tx.marks); m != nil {
		copied := *m
		return &copied, nil
	}
	return nil, sentinel.ErrNotFound
}

func (tx *memoryTx) InsertMark(ctx context.Context, mark *patrol.Mark) error {
	copied := *mark
	tx.marks = append(tx.marks, &copied)
	return nil
}

func (tx *memoryTx) ListMarks(ctx context.Context, executionID uuid.UUID) ([]*patrol.Mark, error) {
	var out []*patrol.Mark
	collect := func(marks []*patrol.Mark) {
		for _, m := range marks {
			if m.ExecutionID != executionID {
				continue
			}
			copied := *m
			out = append(out, &copied)
		}
	}
	collect(tx.s.marks)
	collect(tx.marks)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *MemoryStore) FindTemplate(ctx context.Context, id uuid.UUID) (*patrol.Template, error) {
	s.tmu.RLock()
	defer s.tmu.RUnlock()

	t, ok := s.templates[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneTemplate(t), nil
}

func (s *MemoryStore) FindExecution(ctx context.Context, id uuid.UUID) (*patrol.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exec, ok := s.executions[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneExecution(exec), nil
}

func (s *MemoryStore) ListPending(ctx context.Context, installationID uuid.UUID, day time.Time) ([]*patrol.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*patrol.Execution
	for _, exec := range s.executions {
		if exec.InstallationID != installationID || exec.State.Terminal() {
			continue
		}
		if !attendance.DayOf(exec.ScheduledFor).Equal(attendance.DayOf(day)) {
			continue
		}
		out = append(out, cloneExecution(exec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledFor.Before(out[j].ScheduledFor) })
	return out, nil
}

func (s *MemoryStore) ListMarks(ctx context.Context, executionID uuid.UUID) ([]*patrol.Mark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*patrol.Mark
	for _, m := range s.marks {
		if m.ExecutionID != executionID {
			continue
		}
		copied := *m
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *MemoryStore) InsertAlert(ctx context.Context, alert *patrol.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *alert
	s.alerts = append(s.alerts, &copied)
	return nil
}

func (s *MemoryStore) ListAlerts(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]*patrol.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*patrol.Alert
	for _, a := range s.alerts {
		if a.TenantID != tenantID {
			continue
		}
		if a.RaisedAt.Before(from) || !a.RaisedAt.Before(to) {
			continue
		}
		copied := *a
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RaisedAt.Before(out[j].RaisedAt) })
	return out, nil
}

// Alerts returns the persisted panic alerts. Test hook.
func (s *MemoryStore) Alerts() []*patrol.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*patrol.Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		copied := *a
		out = append(out, &copied)
	}
	return out
}

func (s *MemoryStore) ListFinalized(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]*patrol.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*patrol.Execution
	for _, exec := range s.executions {
		if exec.TenantID != tenantID || !exec.State.Terminal() {
			continue
		}
		if exec.ScheduledFor.Before(from) || !exec.ScheduledFor.Before(to) {
			continue
		}
		out = append(out, cloneExecution(exec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledFor.Before(out[j].ScheduledFor) })
	return out, nil
}

func cloneExecution(in *patrol.Execution) *patrol.Execution {
	out := *in
	if in.Device != nil {
		device := *in.Device
		out.Device = &device
	}
	if in.StartedAt != nil {
		ts := *in.StartedAt
		out.StartedAt = &ts
	}
	if in.CompletedAt != nil {
		ts := *in.CompletedAt
		out.CompletedAt = &ts
	}
	if in.TrustScore != nil {
		score := *in.TrustScore
		out.TrustScore = &score
	}
	return &out
}

func cloneTemplate(in *patrol.Template) *patrol.Template {
	out := *in
	out.Checkpoints = append([]patrol.Checkpoint(nil), in.Checkpoints...)
	return &out
}
