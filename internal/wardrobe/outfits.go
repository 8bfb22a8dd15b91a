package wardrobe

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/closetiq/closetiq/internal/governor"
)

const (
	defaultSeason      = "spring"
	defaultOutfitCount = 5
)

type outfitRequest struct {
	Occasion       string          `json:"occasion"`
	Season         string          `json:"season"`
	WeatherContext *WeatherContext `json:"weather_context,omitempty"`
	Items          []string        `json:"items"`
	Count          int             `json:"count"`
}

// GenerateOutfits asks /api/outfits/generate for outfit suggestions.
func (c *Client) GenerateOutfits(ctx context.Context, in OutfitInput) ([]Outfit, error) {
	const op = "generate outfits"
	if strings.TrimSpace(in.Occasion) == "" {
		return nil, &Error{Op: op, Message: "occasion is required"}
	}

	body := outfitRequest{
		Occasion:       in.Occasion,
		Season:         in.Season,
		WeatherContext: in.Weather,
		Items:          in.ItemIDs,
		Count:          in.Count,
	}
	if body.Season == "" {
		body.Season = defaultSeason
	}
	if body.Items == nil {
		body.Items = []string{}
	}
	if body.Count <= 0 {
		body.Count = defaultOutfitCount
	}

	res, err := c.call(ctx, op, &governor.Request{Method: "POST", Path: "/api/outfits/generate", Body: body}, nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Recommendations struct {
			Outfits []Outfit `json:"outfits"`
		} `json:"recommendations"`
		Outfits []Outfit `json:"outfits"`
	}
	if err := json.Unmarshal(res.Data, &payload); err != nil {
		return nil, &Error{Op: op, Message: "Invalid data format", Err: err}
	}
	if payload.Recommendations.Outfits != nil {
		return payload.Recommendations.Outfits, nil
	}
	if payload.Outfits != nil {
		return payload.Outfits, nil
	}
	return []Outfit{}, nil
}
