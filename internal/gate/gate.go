// Package gate admits or denies generation requests before any job record
// exists. All checks are synchronous reads; none touch a provider.
package gate

import (
	"fmt"
	"sync/atomic"

	"github.com/hadiwinata/mediaforge/internal/domain"
)

// DenyReason identifies why admission was refused, in the order checks run.
type DenyReason string

const (
	DenyMaintenance     DenyReason = "maintenance_mode"
	DenySuspended       DenyReason = "tenant_suspended"
	DenyPaymentLocked   DenyReason = "payment_locked"
	DenyFeatureDisabled DenyReason = "feature_disabled"
)

// DenyError is the typed admission failure. It matches
// domain.ErrAdmissionDenied under errors.Is.
type DenyError struct {
	Reason  DenyReason
	Message string
}

func (e *DenyError) Error() string {
	return fmt.Sprintf("admission denied (%s): %s", e.Reason, e.Message)
}

// Is lets callers test for the sentinel without losing the reason.
func (e *DenyError) Is(target error) bool {
	return target == domain.ErrAdmissionDenied
}

// MaintenanceState is the process-wide maintenance signal, injected as
// configuration and read at admission time.
type MaintenanceState struct {
	Enabled bool
	Message string
}

// MaintenanceSource yields the current maintenance state.
type MaintenanceSource interface {
	State() MaintenanceState
}

// StaticMaintenance adapts a fixed state into a MaintenanceSource.
type StaticMaintenance MaintenanceState

// State implements MaintenanceSource.
func (s StaticMaintenance) State() MaintenanceState { return MaintenanceState(s) }

// MaintenanceController is a settable MaintenanceSource for the admin
// surface.
type MaintenanceController struct {
	state atomic.Value
}

// NewMaintenanceController starts with the given state.
func NewMaintenanceController(initial MaintenanceState) *MaintenanceController {
	c := &MaintenanceController{}
	c.state.Store(initial)
	return c
}

// State implements MaintenanceSource.
func (c *MaintenanceController) State() MaintenanceState {
	return c.state.Load().(MaintenanceState)
}

// Set replaces the maintenance state.
func (c *MaintenanceController) Set(state MaintenanceState) {
	c.state.Store(state)
}

// Options qualifies the caller of an admission check.
type Options struct {
	// SuperAdmin bypasses the SUSPENDED check only.
	SuperAdmin bool
	// ReadOnly marks non-mutating requests, which LOCKED_PAYMENT_FAIL
	// tenants may still perform.
	ReadOnly bool
}

// Gate evaluates plan features, tenant flags and the maintenance signal.
type Gate struct {
	maintenance MaintenanceSource
	// killed holds globally disabled features. A kill always wins: a
	// tenant override cannot re-enable a killed feature.
	killed map[domain.FeatureID]bool
}

// New constructs a Gate. killedFeatures may be nil.
func New(maintenance MaintenanceSource, killedFeatures []domain.FeatureID) *Gate {
	killed := make(map[domain.FeatureID]bool, len(killedFeatures))
	for _, f := range killedFeatures {
		killed[f] = true
	}
	if maintenance == nil {
		maintenance = StaticMaintenance{}
	}
	return &Gate{maintenance: maintenance, killed: killed}
}

// Admit returns nil when the tenant may create a job for the feature, or a
// *DenyError with the highest-priority applicable reason.
func (g *Gate) Admit(tenant *domain.Tenant, feature domain.FeatureID, opts Options) error {
	if state := g.maintenance.State(); state.Enabled {
		msg := state.Message
		if msg == "" {
			msg = "platform is under maintenance"
		}
		return &DenyError{Reason: DenyMaintenance, Message: msg}
	}
	if tenant.Status == domain.TenantSuspended && !opts.SuperAdmin {
		return &DenyError{Reason: DenySuspended, Message: "tenant is suspended"}
	}
	if tenant.Status == domain.TenantLockedPayment && !opts.ReadOnly {
		return &DenyError{Reason: DenyPaymentLocked, Message: "tenant is locked after payment failure"}
	}
	if !g.featureEnabled(tenant, feature) {
		return &DenyError{Reason: DenyFeatureDisabled, Message: fmt.Sprintf("feature %q is not enabled for this tenant", feature)}
	}
	return nil
}

func (g *Gate) featureEnabled(tenant *domain.Tenant, feature domain.FeatureID) bool {
	if g.killed[feature] {
		return false
	}
	plan := domain.LookupPlan(tenant.PlanID)
	if plan.FeatureEnabled(feature) {
		return true
	}
	return tenant.HasOverride(feature)
}
