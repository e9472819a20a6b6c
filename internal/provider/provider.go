// Package provider is the uniform interface over heterogeneous generation
// vendors. It normalizes request/response shapes and the error taxonomy the
// retry policy keys on, so no other package needs vendor status codes.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/hadiwinata/mediaforge/internal/domain"
)

// Kind is the normalized provider error classification.
type Kind string

const (
	KindInvalidRequest   Kind = "invalid_request"
	KindUnauthorized     Kind = "unauthorized"
	KindRateLimited      Kind = "rate_limited"
	KindModelUnavailable Kind = "model_unavailable"
	KindUpstreamTimeout  Kind = "upstream_timeout"
	KindUpstreamInternal Kind = "upstream_internal"
)

// Error is a provider failure tagged with its normalized kind. Code and
// Message preserve the vendor detail for the job's error record.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider error (%s/%s): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("provider error (%s): %s", e.Kind, e.Message)
}

// KindOf extracts the normalized kind from err, defaulting to
// KindUpstreamInternal for anything untagged.
func KindOf(err error) Kind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return KindUpstreamInternal
}

// Receipt identifies a dispatched task at the vendor.
type Receipt struct {
	TaskID   string
	Provider string
}

// Result is the normalized outcome of a finished task.
type Result struct {
	Artifacts []domain.Artifact
}

// Gateway is implemented by every concrete provider integration. Await must
// work by polling; no push callback is assumed.
type Gateway interface {
	// Dispatch submits the job's input to the vendor and returns a receipt.
	// Note the vendor may incur cost even when the caller later treats the
	// attempt as failed.
	Dispatch(ctx context.Context, job *domain.Job) (Receipt, error)
	// Await blocks until the task reaches a vendor-terminal state or ctx
	// is done.
	Await(ctx context.Context, receipt Receipt) (Result, error)
}

// Registry maps job modules to their gateways with an optional fallback.
type Registry struct {
	gateways map[domain.JobModule]Gateway
	fallback Gateway
}

// NewRegistry builds a registry. fallback may be nil.
func NewRegistry(gateways map[domain.JobModule]Gateway, fallback Gateway) *Registry {
	if gateways == nil {
		gateways = make(map[domain.JobModule]Gateway)
	}
	return &Registry{gateways: gateways, fallback: fallback}
}

// Lookup resolves the gateway for a module.
func (r *Registry) Lookup(module domain.JobModule) (Gateway, error) {
	if gw, ok := r.gateways[module]; ok {
		return gw, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, &Error{Kind: KindModelUnavailable, Message: fmt.Sprintf("no provider configured for module %q", module)}
}
