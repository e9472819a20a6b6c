package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hadiwinata/mediaforge/internal/domain"
)

// Synthetic is an in-process gateway used when no vendor credentials are
// configured. It produces deterministic placeholder artifacts after a short
// delay so the full job lifecycle can be exercised locally.
type Synthetic struct {
	kind  domain.ArtifactKind
	delay time.Duration

	mu    sync.Mutex
	tasks map[string]*domain.Job
	seq   int
}

// NewSynthetic builds a synthetic gateway emitting artifacts of the given
// kind.
func NewSynthetic(kind domain.ArtifactKind, delay time.Duration) *Synthetic {
	return &Synthetic{kind: kind, delay: delay, tasks: make(map[string]*domain.Job)}
}

// Dispatch implements Gateway.
func (s *Synthetic) Dispatch(ctx context.Context, job *domain.Job) (Receipt, error) {
	s.mu.Lock()
	s.seq++
	taskID := fmt.Sprintf("synthetic-%d", s.seq)
	s.tasks[taskID] = job
	s.mu.Unlock()
	return Receipt{TaskID: taskID, Provider: "synthetic"}, nil
}

// Await implements Gateway.
func (s *Synthetic) Await(ctx context.Context, receipt Receipt) (Result, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	s.mu.Lock()
	job, ok := s.tasks[receipt.TaskID]
	delete(s.tasks, receipt.TaskID)
	s.mu.Unlock()
	if !ok {
		return Result{}, &Error{Kind: KindUpstreamInternal, Message: "unknown synthetic task " + receipt.TaskID}
	}

	quantity := job.Input.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	if s.kind == domain.ArtifactScript {
		quantity = len(job.Input.Steps)
		if quantity == 0 {
			quantity = 1
		}
	}
	artifacts := make([]domain.Artifact, 0, quantity)
	for i := 0; i < quantity; i++ {
		artifacts = append(artifacts, domain.Artifact{
			Kind:     s.kind,
			Location: fmt.Sprintf("synthetic/%s/%s-%02d", job.ID, s.kind, i+1),
			Provider: "synthetic",
		})
	}
	return Result{Artifacts: artifacts}, nil
}

var _ Gateway = (*Synthetic)(nil)
