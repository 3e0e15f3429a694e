package engine

import (
	"context"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/goonidz/purple-sub000/internal/providers/image"
)

// pollPrediction checks a prediction at the configured interval until it
// reaches a terminal state or the max wait elapses. Failed and canceled
// predictions come back as errors.
func (e *Engine) pollPrediction(ctx context.Context, predictionID string) (*image.Prediction, error) {
	deadline := time.Now().Add(e.cfg.PollMaxWait)
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		pred, err := e.predictions.Check(ctx, predictionID)
		if err != nil {
			return nil, err
		}
		if pred.Terminal() {
			switch {
			case pred.Succeeded():
				return pred, nil
			case pred.Error != "":
				return nil, fmt.Errorf("prediction %s %s: %s", predictionID, pred.Status, pred.Error)
			default:
				return nil, fmt.Errorf("prediction %s %s", predictionID, pred.Status)
			}
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("prediction %s timed out after %s", predictionID, e.cfg.PollMaxWait)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// generateAndStoreImage runs a full submit/poll/download/re-host cycle and
// returns the locally hosted URL. keyPrefix names the asset without its
// extension; the extension follows the downloaded content type.
func (e *Engine) generateAndStoreImage(ctx context.Context, req image.GenerateRequest, keyPrefix string) (string, error) {
	predictionID, err := e.predictions.Submit(ctx, req)
	if err != nil {
		return "", err
	}
	pred, err := e.pollPrediction(ctx, predictionID)
	if err != nil {
		return "", err
	}
	outputURL := pred.FirstOutput()
	if outputURL == "" {
		return "", fmt.Errorf("prediction %s succeeded without output", predictionID)
	}
	data, contentType, err := e.fetcher.Fetch(ctx, outputURL)
	if err != nil {
		return "", err
	}
	url, err := e.store.Write(ctx, keyPrefix+extensionFor(contentType), data)
	if err != nil {
		return "", err
	}
	return url, nil
}

// extensionFor picks a file extension from the provider's content type,
// defaulting to .png.
func extensionFor(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ".png"
	}
	switch strings.ToLower(mediaType) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	case "image/png":
		return ".png"
	}
	return ".png"
}
