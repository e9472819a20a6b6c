package queue

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Queue for tests and single-binary development.
type Memory struct {
	mu      sync.Mutex
	ready   chan string
	delayed []delayedJob
}

type delayedJob struct {
	jobID string
	runAt time.Time
}

// NewMemory returns an empty in-memory queue.
func NewMemory() *Memory {
	return &Memory{ready: make(chan string, 1024)}
}

// Enqueue implements Queue.
func (m *Memory) Enqueue(ctx context.Context, jobID string, runAt time.Time) error {
	if time.Until(runAt) > 0 {
		m.mu.Lock()
		m.delayed = append(m.delayed, delayedJob{jobID: jobID, runAt: runAt})
		m.mu.Unlock()
		return nil
	}
	select {
	case m.ready <- jobID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue implements Queue.
func (m *Memory) Dequeue(ctx context.Context, block time.Duration) (string, error) {
	timer := time.NewTimer(block)
	defer timer.Stop()
	select {
	case id := <-m.ready:
		return id, nil
	case <-timer.C:
		return "", ErrEmpty
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// MoveDue implements Queue.
func (m *Memory) MoveDue(ctx context.Context, now time.Time, batch int64) error {
	m.mu.Lock()
	sort.Slice(m.delayed, func(i, j int) bool { return m.delayed[i].runAt.Before(m.delayed[j].runAt) })
	var due []string
	rest := m.delayed[:0]
	for _, d := range m.delayed {
		if !d.runAt.After(now) && int64(len(due)) < batch {
			due = append(due, d.jobID)
			continue
		}
		rest = append(rest, d)
	}
	m.delayed = rest
	m.mu.Unlock()

	for _, id := range due {
		select {
		case m.ready <- id:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

var _ Queue = (*Memory)(nil)
