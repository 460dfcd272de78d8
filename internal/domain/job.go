package domain

import "time"

// JobType enumerates supported generation job categories.
type JobType string

const (
	JobTypeImageGenerate      JobType = "image_generate"
	JobTypeRemoveBackground   JobType = "remove_background"
	JobTypeUpscale            JobType = "upscale"
	JobTypeCompositeMockup    JobType = "composite_mockup"
	JobTypeGhostMannequin     JobType = "ghost_mannequin"
	JobTypeModel3DConcept     JobType = "model3d_concept"
	JobTypeModel3DAngles      JobType = "model3d_angles"
	JobTypeModel3DReconstruct JobType = "model3d_reconstruct"
)

// JobStatus enumerates job lifecycle states. Transitions are monotonic
// (queued -> running -> terminal) with a single back-edge: a running job may
// be set back to queued to wait on a prerequisite job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusSkipped   JobStatus = "skipped"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusSkipped:
		return true
	}
	return false
}

// Job encapsulates one unit of orchestrated asset-generation work.
type Job struct {
	ID        string
	ProductID string
	UserID    string
	Type      JobType
	Status    JobStatus
	// InputJSON and OutputJSON hold the per-type payloads; see payloads.go
	// for the typed views keyed by Type.
	InputJSON  []byte
	OutputJSON []byte
	// ExternalPredictionID is set only while an async provider call is
	// outstanding. For multi-model fan-out it holds the sentinel "multi" and
	// the per-model prediction ids live inside OutputJSON.
	ExternalPredictionID string
	ErrorMessage         string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// MultiPredictionID marks a job whose outstanding predictions are tracked
// per-model inside the output payload rather than in ExternalPredictionID.
const MultiPredictionID = "multi"
