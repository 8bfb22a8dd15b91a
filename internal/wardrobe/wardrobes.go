package wardrobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/closetiq/closetiq/internal/governor"
)

// ListWardrobes returns the signed-in user's wardrobes.
func (c *Client) ListWardrobes(ctx context.Context) ([]Wardrobe, error) {
	res, err := c.call(ctx, "list wardrobes", &governor.Request{Method: "GET", Path: "/api/wardrobes"}, nil)
	if err != nil {
		return nil, err
	}

	var wardrobes []Wardrobe
	if err := extractList(res.Data, &wardrobes, "wardrobes", "items", "results", "data"); err != nil {
		return nil, &Error{Op: "list wardrobes", Message: "Invalid data format", Err: err}
	}
	return wardrobes, nil
}

// CreateWardrobe creates a named wardrobe.
func (c *Client) CreateWardrobe(ctx context.Context, name, description string) (*Wardrobe, error) {
	const op = "create wardrobe"
	if strings.TrimSpace(name) == "" {
		return nil, &Error{Op: op, Message: "wardrobe name is required"}
	}

	body := map[string]string{"name": name}
	if description != "" {
		body["description"] = description
	}

	res, err := c.call(ctx, op, &governor.Request{Method: "POST", Path: "/api/wardrobes", Body: body}, nil)
	if err != nil {
		return nil, err
	}

	var wrapped struct {
		Wardrobe *Wardrobe `json:"wardrobe"`
	}
	if err := json.Unmarshal(res.Data, &wrapped); err == nil && wrapped.Wardrobe != nil {
		return wrapped.Wardrobe, nil
	}
	var created Wardrobe
	if err := json.Unmarshal(res.Data, &created); err != nil {
		return nil, &Error{Op: op, Message: "Invalid data format", Err: err}
	}
	return &created, nil
}

// ItemFromClassification builds the item filed after a photo is classified.
func ItemFromClassification(wardrobeID string, resp *ClassificationResponse) ClothingItem {
	cls := Classification{PredictedClass: UnknownClass}
	if resp != nil && resp.Classification != nil {
		cls = *resp.Classification
	}

	category := cls.PredictedClass
	name := strings.ReplaceAll(cls.PredictedClass, "_", " ")
	if category == "" {
		category = "general"
		name = "Unknown Item"
	}

	color := UnknownClass
	if resp != nil && resp.Attributes != nil {
		if colors := resp.Attributes.Attributes["color"]; len(colors) > 0 {
			color = colors[0]
		}
	}

	return ClothingItem{
		WardrobeID:   wardrobeID,
		Name:         name + " Item",
		Category:     category,
		Color:        color,
		Confidence:   cls.Confidence,
		Tags:         []string{"ai-classified", fmt.Sprintf("confidence-%d", int(math.Round(cls.Confidence*100)))},
		Notes:        fmt.Sprintf("AI classified with %.1f%% confidence", cls.Confidence*100),
		AIClassified: true,
	}
}

// extractList decodes a list that the backend may return bare or nested
// one or two levels under any of keys.
func extractList(data json.RawMessage, out any, keys ...string) error {
	if len(data) == 0 {
		return errors.New("empty payload")
	}
	if err := json.Unmarshal(data, out); err == nil {
		return nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("decode list: %w", err)
	}
	for _, key := range keys {
		nested, ok := obj[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(nested, out); err == nil {
			return nil
		}
		if err := extractList(nested, out, keys...); err == nil {
			return nil
		}
	}
	return errors.New("no list found in payload")
}
