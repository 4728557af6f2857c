// Package queue runs deferred jobs: match reminders, timeout sweeps,
// scheduled status flips. Jobs fire at least once; handlers must be
// idempotent.
package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Handler processes one job payload. A returned error is logged, not
// retried; recurring work belongs in the automation sweep instead.
type Handler func(ctx context.Context, payload interface{}) error

type JobQueue interface {
	// Enqueue schedules a job by handler name and returns its id.
	Enqueue(name string, payload interface{}, runAt time.Time) (string, error)
	// Cancel drops a pending job. Cancelling a fired or unknown job is a no-op.
	Cancel(jobID string)
}

type job struct {
	id      string
	name    string
	payload interface{}
	timer   *time.Timer
}

// Memory is an in-process timer-backed queue. Pending jobs do not
// survive a restart; the automation sweep picks up anything missed.
type Memory struct {
	logger   *slog.Logger
	handlers map[string]Handler

	mu      sync.Mutex
	pending map[string]*job
	closed  bool
}

func NewMemory(logger *slog.Logger) *Memory {
	return &Memory{
		logger:   logger,
		handlers: make(map[string]Handler),
		pending:  make(map[string]*job),
	}
}

// Register binds a handler to a job name. Call before Enqueue.
func (m *Memory) Register(name string, handler Handler) {
	m.mu.Lock()
	m.handlers[name] = handler
	m.mu.Unlock()
}

func (m *Memory) Enqueue(name string, payload interface{}, runAt time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", ErrQueueClosed
	}
	if _, ok := m.handlers[name]; !ok {
		return "", ErrUnknownHandler
	}

	j := &job{
		id:      uuid.NewString(),
		name:    name,
		payload: payload,
	}
	j.timer = time.AfterFunc(time.Until(runAt), func() { m.fire(j) })
	m.pending[j.id] = j
	return j.id, nil
}

func (m *Memory) Cancel(jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.pending[jobID]; ok {
		j.timer.Stop()
		delete(m.pending, jobID)
	}
}

// Close stops all pending timers. Fired handlers already in flight run
// to completion.
func (m *Memory) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for id, j := range m.pending {
		j.timer.Stop()
		delete(m.pending, id)
	}
}

func (m *Memory) fire(j *job) {
	m.mu.Lock()
	if _, ok := m.pending[j.id]; !ok {
		m.mu.Unlock()
		return
	}
	delete(m.pending, j.id)
	handler := m.handlers[j.name]
	m.mu.Unlock()

	if err := handler(context.Background(), j.payload); err != nil {
		m.logger.Error("job failed",
			slog.String("job_id", j.id),
			slog.String("job", j.name),
			slog.String("error", err.Error()))
	}
}
