package wardrobe

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/closetiq/closetiq/internal/governor"
)

// UnknownClass is reported when the classifier gives no predicted class.
const UnknownClass = "unknown"

// ClassifyImage uploads a garment photo to /api/classify.
func (c *Client) ClassifyImage(ctx context.Context, name string, data []byte) (*ClassificationResponse, error) {
	const op = "classify"

	part, err := PrepareImage(name, data, c.images)
	if err != nil {
		msg := err.Error()
		if errors.Is(err, ErrImageTooLarge) {
			msg = "Image file is too large. Please use a smaller image."
		}
		return nil, &Error{Op: op, Message: msg, Err: err}
	}

	var resp ClassificationResponse
	req := &governor.Request{
		Method: "POST",
		Path:   "/api/classify",
		Form:   &governor.Form{Files: []governor.File{part}},
	}
	if _, err := c.call(ctx, op, req, &resp); err != nil {
		return nil, err
	}

	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "Classification failed"
		}
		return nil, &Error{Op: op, Message: msg}
	}
	if resp.Classification == nil {
		return nil, &Error{Op: op, Message: "No classification data in response"}
	}

	sanitizeClassification(&resp)
	if resp.Classification.PredictedClass == UnknownClass && c.logger != nil {
		c.logger.Info("Classifier returned unknown class",
			zap.String("file", part.Name),
			zap.String("model_version", resp.ModelVersion))
	}
	return &resp, nil
}

// sanitizeClassification fills defaults so an unknown result is still usable.
func sanitizeClassification(resp *ClassificationResponse) {
	cls := resp.Classification
	if cls.PredictedClass == "" {
		cls.PredictedClass = UnknownClass
	}
	if cls.AllPredictions == nil {
		cls.AllPredictions = []Prediction{}
	}
	resp.Error = ""
}

// GenerateRecommendations asks /api/recommendations for style suggestions
// and returns the raw payload.
func (c *Client) GenerateRecommendations(ctx context.Context, in RecommendationInput) (map[string]any, error) {
	const op = "recommendations"

	if in.StylePreferences == nil {
		in.StylePreferences = []string{}
	}

	var payload map[string]any
	req := &governor.Request{Method: "POST", Path: "/api/recommendations", Body: in}
	if _, err := c.call(ctx, op, req, &payload); err != nil {
		return nil, err
	}

	if ok, present := payload["success"].(bool); present && !ok {
		msg, _ := payload["error"].(string)
		if msg == "" {
			msg = "Failed to generate recommendations"
		}
		return nil, &Error{Op: op, Message: msg}
	}
	return payload, nil
}
