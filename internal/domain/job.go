package domain

import "time"

// JobModule enumerates the generation capabilities a job can request.
type JobModule string

const (
	ModuleTextToImage    JobModule = "text_to_image"
	ModuleTextToVideo    JobModule = "text_to_video"
	ModuleImageToVideo   JobModule = "image_to_video"
	ModuleTextToAudio    JobModule = "text_to_audio"
	ModuleCampaignWizard JobModule = "campaign_wizard"
	ModuleExport         JobModule = "export"
)

// KnownModules lists every module the platform accepts, in catalog order.
var KnownModules = []JobModule{
	ModuleTextToImage,
	ModuleTextToVideo,
	ModuleImageToVideo,
	ModuleTextToAudio,
	ModuleCampaignWizard,
	ModuleExport,
}

// Valid reports whether m names a supported module.
func (m JobModule) Valid() bool {
	for _, known := range KnownModules {
		if m == known {
			return true
		}
	}
	return false
}

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether no further transition can occur from s.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// NonTerminalStatuses is the set of states a cancel request may act on.
var NonTerminalStatuses = []JobStatus{JobStatusQueued, JobStatusProcessing, JobStatusRetrying}

// JobInput is the normalized provider-bound payload. Fields are optional and
// interpreted per module; anything the older diagnostic tooling read ad hoc
// is a named field here.
type JobInput struct {
	Prompt          string   `json:"prompt,omitempty"`
	NegativePrompt  string   `json:"negative_prompt,omitempty"`
	ModelID         string   `json:"model_id,omitempty"`
	AspectRatio     string   `json:"aspect_ratio,omitempty"`
	DurationSec     int      `json:"duration_sec,omitempty"`
	Quantity        int      `json:"quantity,omitempty"`
	VoiceID         string   `json:"voice_id,omitempty"`
	ReferenceAssets []string `json:"reference_assets,omitempty"`
	// Steps carries the scene outline for campaign_wizard jobs.
	Steps []string `json:"steps,omitempty"`
	// SourceJobIDs names completed jobs whose artifacts an export bundles.
	SourceJobIDs []string `json:"source_job_ids,omitempty"`
}

// ArtifactKind enumerates the typed outputs a job can produce.
type ArtifactKind string

const (
	ArtifactImage  ArtifactKind = "image"
	ArtifactVideo  ArtifactKind = "video"
	ArtifactAudio  ArtifactKind = "audio"
	ArtifactScript ArtifactKind = "script"
	ArtifactExport ArtifactKind = "export"
)

// Artifact is one element of a job's ordered output sequence.
type Artifact struct {
	Kind     ArtifactKind      `json:"kind"`
	Location string            `json:"location"`
	MIME     string            `json:"mime,omitempty"`
	Provider string            `json:"provider,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// JobError records the last failure observed on a job.
type JobError struct {
	Code    string    `json:"code"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Job is one unit of work requested by a user on behalf of a tenant. Records
// are append-only: they are never deleted, only transitioned to a terminal
// state.
type Job struct {
	ID          string
	TenantID    string
	UserID      string
	Module      JobModule
	Status      JobStatus
	Input       JobInput
	Output      []Artifact
	CreditsUsed int64
	RetryCount  int
	MaxRetries  int
	Error       *JobError
	QueuedAt    time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}
