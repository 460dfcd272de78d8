package jobs

import (
	"fmt"

	"inkforge/internal/predict"
	"inkforge/internal/providers/predictions"
)

// providerError folds a terminal failed/canceled prediction into one error
// message, copying the provider's error text where available.
func providerError(pred *predictions.Prediction) error {
	msg := pred.Error
	if msg == "" {
		msg = string(pred.Status)
	}
	return fmt.Errorf("prediction %s: %s", pred.ID, msg)
}

// normalizeOutput extracts the authoritative URL from a succeeded
// prediction's output.
func normalizeOutput(pred *predictions.Prediction) (string, error) {
	url, err := predict.FirstURL(pred.Output)
	if err != nil {
		return "", fmt.Errorf("prediction %s: %w", pred.ID, err)
	}
	return url, nil
}
