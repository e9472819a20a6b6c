package domain

// PlanID enumerates catalog plans.
type PlanID string

const (
	PlanFree   PlanID = "FREE"
	PlanPro    PlanID = "PRO"
	PlanTeam   PlanID = "TEAM"
	PlanCustom PlanID = "CUSTOM"
)

// Plan is a static catalog entry. The catalog is immutable at runtime;
// administrative changes ship as configuration.
type Plan struct {
	ID             PlanID
	MonthlyCredits int64
	SeatLimit      int
	Features       map[FeatureID]bool
	// CreditCost is the per-job reservation amount by module.
	CreditCost map[JobModule]int64
	// MaxRetries is the per-module retry ceiling for jobs under this plan.
	MaxRetries map[JobModule]int
}

// FeatureEnabled reports whether the plan enables the feature by default.
func (p Plan) FeatureEnabled(feature FeatureID) bool {
	return p.Features[feature]
}

// CostFor returns the credits reserved for one job of the given module.
// Unknown modules cost the conservative default of one credit.
func (p Plan) CostFor(module JobModule) int64 {
	if cost, ok := p.CreditCost[module]; ok {
		return cost
	}
	return 1
}

// RetriesFor returns the retry ceiling for the given module.
func (p Plan) RetriesFor(module JobModule) int {
	if n, ok := p.MaxRetries[module]; ok {
		return n
	}
	return 0
}

var defaultRetries = map[JobModule]int{
	ModuleTextToImage:    3,
	ModuleTextToVideo:    3,
	ModuleImageToVideo:   3,
	ModuleTextToAudio:    3,
	ModuleCampaignWizard: 2,
	ModuleExport:         1,
}

var defaultCosts = map[JobModule]int64{
	ModuleTextToImage:    10,
	ModuleTextToVideo:    50,
	ModuleImageToVideo:   40,
	ModuleTextToAudio:    15,
	ModuleCampaignWizard: 25,
	ModuleExport:         5,
}

// PlanCatalog is the built-in plan catalog.
var PlanCatalog = map[PlanID]Plan{
	PlanFree: {
		ID:             PlanFree,
		MonthlyCredits: 100,
		SeatLimit:      1,
		Features: map[FeatureID]bool{
			FeatureTextToImage: true,
			FeatureExport:      true,
		},
		CreditCost: defaultCosts,
		MaxRetries: defaultRetries,
	},
	PlanPro: {
		ID:             PlanPro,
		MonthlyCredits: 2000,
		SeatLimit:      5,
		Features: map[FeatureID]bool{
			FeatureTextToImage:  true,
			FeatureTextToVideo:  true,
			FeatureImageToVideo: true,
			FeatureTextToAudio:  true,
			FeatureExport:       true,
		},
		CreditCost: defaultCosts,
		MaxRetries: defaultRetries,
	},
	PlanTeam: {
		ID:             PlanTeam,
		MonthlyCredits: 10000,
		SeatLimit:      25,
		Features: map[FeatureID]bool{
			FeatureTextToImage:    true,
			FeatureTextToVideo:    true,
			FeatureImageToVideo:   true,
			FeatureTextToAudio:    true,
			FeatureCampaignWizard: true,
			FeatureExport:         true,
		},
		CreditCost: defaultCosts,
		MaxRetries: defaultRetries,
	},
	PlanCustom: {
		ID:             PlanCustom,
		MonthlyCredits: 0,
		SeatLimit:      0,
		Features: map[FeatureID]bool{
			FeatureTextToImage:    true,
			FeatureTextToVideo:    true,
			FeatureImageToVideo:   true,
			FeatureTextToAudio:    true,
			FeatureCampaignWizard: true,
			FeatureExport:         true,
		},
		CreditCost: defaultCosts,
		MaxRetries: defaultRetries,
	},
}

// LookupPlan resolves a plan id against the catalog, falling back to FREE for
// unknown ids so a stale tenant row never blocks admission outright.
func LookupPlan(id PlanID) Plan {
	if plan, ok := PlanCatalog[id]; ok {
		return plan
	}
	return PlanCatalog[PlanFree]
}
