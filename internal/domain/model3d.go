package domain

import "time"

// Model3DStatus mirrors the 3D pipeline's job outcomes onto the model record
// so UIs can read progress without joining against jobs.
type Model3DStatus string

const (
	Model3DStatusPending        Model3DStatus = "pending"
	Model3DStatusConceptReady   Model3DStatus = "concept_ready"
	Model3DStatusAnglesReady    Model3DStatus = "angles_ready"
	Model3DStatusReconstructing Model3DStatus = "reconstructing"
	Model3DStatusCompleted      Model3DStatus = "completed"
	Model3DStatusFailed         Model3DStatus = "failed"
)

// Model3D is a 3D-printable model generated through the concept -> angles ->
// reconstruct pipeline.
type Model3D struct {
	ID                 string
	UserID             string
	ProductID          string
	Prompt             string
	Style              string
	Status             Model3DStatus
	ErrorMessage       string
	ConceptURL         string
	AngleImagesJSON    []byte
	GLBUrl             string
	STLUrl             string
	TriangleCount      int
	ProcessingTimeSecs float64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
