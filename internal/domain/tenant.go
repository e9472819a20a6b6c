package domain

import "time"

// TenantStatus enumerates the administrative states of a tenant.
type TenantStatus string

const (
	TenantActive        TenantStatus = "ACTIVE"
	TenantSuspended     TenantStatus = "SUSPENDED"
	TenantLockedPayment TenantStatus = "LOCKED_PAYMENT_FAIL"
)

// FeatureID names a gated capability. Generation modules are features; so are
// platform add-ons outside the module set.
type FeatureID string

const (
	FeatureTextToImage    FeatureID = "text_to_image"
	FeatureTextToVideo    FeatureID = "text_to_video"
	FeatureImageToVideo   FeatureID = "image_to_video"
	FeatureTextToAudio    FeatureID = "text_to_audio"
	FeatureCampaignWizard FeatureID = "campaign_wizard"
	FeatureExport         FeatureID = "export"
)

// Feature maps a job module to the feature that gates it.
func (m JobModule) Feature() FeatureID {
	return FeatureID(m)
}

// Tenant is the unit of isolation and billing. Lifecycle is owned by tenant
// administration; the admission path reads it only.
type Tenant struct {
	ID     string
	Name   string
	Status TenantStatus
	PlanID PlanID
	// FeatureOverrides force-enables features beyond the plan defaults. An
	// override can never re-enable a globally killed feature.
	FeatureOverrides []FeatureID
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HasOverride reports whether the tenant force-enables the given feature.
func (t *Tenant) HasOverride(feature FeatureID) bool {
	for _, f := range t.FeatureOverrides {
		if f == feature {
			return true
		}
	}
	return false
}
