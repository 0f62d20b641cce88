// internal/agent/manager.go
package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Vrooli/agent-s2/api/schemas"
)

const defaultMaxTaskRecords = 200

// ErrTaskNotFound is returned for an unknown or evicted task id.
var ErrTaskNotFound = fmt.Errorf("%w: task not found", schemas.ErrInvalidInput)

// TaskManager runs tasks in the background and keeps their records. Tasks
// still queue on the executor, so at most one runs at a time.
type TaskManager struct {
	exec   *Executor
	logger *zap.Logger
	max    int
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	records map[string]*TaskRecord
	done    map[string]chan struct{}
	order   []string
}

func NewTaskManager(exec *Executor, maxRecords int, logger *zap.Logger) *TaskManager {
	if maxRecords <= 0 {
		maxRecords = defaultMaxTaskRecords
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &TaskManager{
		exec:    exec,
		logger:  logger.Named("task_manager"),
		max:     maxRecords,
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
		records: make(map[string]*TaskRecord),
		done:    make(map[string]chan struct{}),
	}
}

// Submit validates the task, records it as pending and starts it. Readiness
// is checked here so a refused task leaves no record.
func (m *TaskManager) Submit(task, taskContext string) (TaskRecord, error) {
	task = strings.TrimSpace(task)
	if task == "" {
		return TaskRecord{}, fmt.Errorf("%w: task is empty", schemas.ErrInvalidInput)
	}
	if err := m.exec.CheckReady(); err != nil {
		return TaskRecord{}, err
	}
	if err := m.ctx.Err(); err != nil {
		return TaskRecord{}, fmt.Errorf("%w: task manager is closed", schemas.ErrNotReady)
	}

	rec := &TaskRecord{
		ID:        uuid.NewString(),
		Task:      task,
		Context:   taskContext,
		Status:    TaskPending,
		CreatedAt: m.now(),
	}
	done := make(chan struct{})

	m.mu.Lock()
	m.records[rec.ID] = rec
	m.done[rec.ID] = done
	m.order = append(m.order, rec.ID)
	m.evictLocked()
	snapshot := *rec
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(done)
		m.execute(rec.ID, task, taskContext)
	}()
	return snapshot, nil
}

func (m *TaskManager) execute(id, task, taskContext string) {
	m.update(id, func(r *TaskRecord) { r.Status = TaskRunning })

	result := m.exec.run(m.ctx, id, task, taskContext)

	m.update(id, func(r *TaskRecord) {
		completed := m.now()
		r.CompletedAt = &completed
		r.Result = result
		if result.Error != "" {
			r.Status = TaskFailed
			r.Error = result.Error
			return
		}
		r.Status = TaskCompleted
	})
	m.logger.Debug("Background task finished", zap.String("task_id", id), zap.Bool("success", result.Success))
}

func (m *TaskManager) update(id string, fn func(*TaskRecord)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.records[id]; ok {
		fn(r)
	}
}

// evictLocked drops the oldest finished records beyond the cap.
func (m *TaskManager) evictLocked() {
	if len(m.order) <= m.max {
		return
	}
	kept := m.order[:0]
	excess := len(m.order) - m.max
	for _, id := range m.order {
		if excess > 0 && m.records[id].done() {
			delete(m.records, id)
			delete(m.done, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
}

// Get returns a copy of the record for id.
func (m *TaskManager) Get(id string) (TaskRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[id]
	if !ok {
		return TaskRecord{}, false
	}
	return *r, true
}

// List returns every retained record, newest first.
func (m *TaskManager) List() []TaskRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]TaskRecord, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		out = append(out, *m.records[m.order[i]])
	}
	return out
}

// Wait blocks until task id finishes or ctx ends.
func (m *TaskManager) Wait(ctx context.Context, id string) (TaskRecord, error) {
	m.mu.RLock()
	done, ok := m.done[id]
	m.mu.RUnlock()
	if !ok {
		return TaskRecord{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	select {
	case <-done:
	case <-ctx.Done():
		return TaskRecord{}, ctx.Err()
	}
	rec, ok := m.Get(id)
	if !ok {
		return TaskRecord{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return rec, nil
}

// Close cancels running tasks and waits for them to return.
func (m *TaskManager) Close() {
	m.cancel()
	m.wg.Wait()
}
