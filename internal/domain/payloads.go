package domain

import "encoding/json"

// Typed views over Job.InputJSON and Job.OutputJSON. The job row stores raw
// JSON; each job type decodes into its own struct so handler code never
// shape-sniffs payloads.

// ImageGenerateInput configures a multi-model image synthesis job.
type ImageGenerateInput struct {
	Prompt         string   `json:"prompt"`
	ShirtColor     string   `json:"shirtColor,omitempty"`
	PrintStyle     string   `json:"printStyle,omitempty"`
	ProductType    string   `json:"productType,omitempty"`
	PrintPlacement string   `json:"printPlacement,omitempty"`
	Models         []string `json:"models,omitempty"`
}

// ModelOutputStatus enumerates the terminal and pending states of one
// fan-out sub-result.
type ModelOutputStatus string

const (
	ModelOutputPending   ModelOutputStatus = "pending"
	ModelOutputSucceeded ModelOutputStatus = "succeeded"
	ModelOutputFailed    ModelOutputStatus = "failed"
)

// ModelOutput is one image-synthesis model's sub-result within a fan-out job.
type ModelOutput struct {
	ModelID       string            `json:"modelId"`
	ModelName     string            `json:"modelName"`
	Status        ModelOutputStatus `json:"status"`
	IsSynchronous bool              `json:"isSynchronous"`
	PredictionID  string            `json:"predictionId,omitempty"`
	URL           string            `json:"url,omitempty"`
	Error         string            `json:"error,omitempty"`
}

// Terminal reports whether the sub-result has reached success or failure.
func (m ModelOutput) Terminal() bool {
	return m.Status == ModelOutputSucceeded || m.Status == ModelOutputFailed
}

// ImageGenerateOutput is the fan-out result payload. Legacy single-prediction
// jobs carry PredictionID instead of Outputs.
type ImageGenerateOutput struct {
	IsMultiModel bool          `json:"isMultiModel,omitempty"`
	Outputs      []ModelOutput `json:"outputs,omitempty"`
	PredictionID string        `json:"prediction_id,omitempty"`
}

// RemoveBackgroundInput selects an optional explicit source asset.
type RemoveBackgroundInput struct {
	SelectedAssetID string `json:"selected_asset_id,omitempty"`
}

// CompositeMockupInput configures mockup compositing. GarmentImageURL is
// written back by the handler once the source image is resolved, for audit.
type CompositeMockupInput struct {
	Template        string `json:"template"`
	SelectedAssetID string `json:"selected_asset_id,omitempty"`
	GarmentImageURL string `json:"garment_image_url,omitempty"`
}

// GhostMannequinInput configures ghost-mannequin compositing.
type GhostMannequinInput struct {
	ProductType     string `json:"productType"`
	ShirtColor      string `json:"shirtColor,omitempty"`
	SelectedAssetID string `json:"selected_asset_id,omitempty"`
}

// AssetOutput is the common single-asset result payload.
type AssetOutput struct {
	URL         string `json:"url"`
	StoragePath string `json:"storage_path"`
}

// Model3DInput is shared by the three 3D pipeline job types.
type Model3DInput struct {
	ModelID         string            `json:"model_id"`
	UserID          string            `json:"user_id"`
	Prompt          string            `json:"prompt,omitempty"`
	Style           string            `json:"style,omitempty"`
	ConceptImageURL string            `json:"concept_image_url,omitempty"`
	AngleImages     map[string]string `json:"angle_images,omitempty"`
}

// Model3DConceptOutput carries the generated concept art URL.
type Model3DConceptOutput struct {
	ConceptURL string `json:"concept_url"`
}

// Model3DAnglesOutput carries the four generated view URLs keyed by angle.
type Model3DAnglesOutput struct {
	AngleImages map[string]string `json:"angle_images"`
}

// Model3DReconstructOutput carries the reconstructed mesh artifacts.
type Model3DReconstructOutput struct {
	GLBUrl         string  `json:"glb_url"`
	STLUrl         string  `json:"stl_url"`
	TriangleCount  int     `json:"triangle_count"`
	ProcessingTime float64 `json:"processing_time"`
}

// Progress is the fragment handlers merge into a job's output so external
// pollers can display intermediate state.
type Progress struct {
	Message    string `json:"message"`
	Step       int    `json:"step"`
	TotalSteps int    `json:"total_steps"`
}

// DecodeInput unmarshals the job input into the given typed payload. A nil or
// empty input decodes to the zero value.
func (j *Job) DecodeInput(v any) error {
	if len(j.InputJSON) == 0 {
		return nil
	}
	return json.Unmarshal(j.InputJSON, v)
}

// DecodeOutput unmarshals the job output into the given typed payload.
func (j *Job) DecodeOutput(v any) error {
	if len(j.OutputJSON) == 0 {
		return nil
	}
	return json.Unmarshal(j.OutputJSON, v)
}

// MergeOutput overlays the given fields onto the job's output JSON without
// discarding keys written by earlier steps.
func (j *Job) MergeOutput(fields map[string]any) error {
	merged := map[string]any{}
	if len(j.OutputJSON) > 0 {
		if err := json.Unmarshal(j.OutputJSON, &merged); err != nil {
			return err
		}
	}
	for k, v := range fields {
		merged[k] = v
	}
	raw, err := json.Marshal(merged)
	if err != nil {
		return err
	}
	j.OutputJSON = raw
	return nil
}

// SetOutput replaces the job output with the JSON encoding of v.
func (j *Job) SetOutput(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	j.OutputJSON = raw
	return nil
}
