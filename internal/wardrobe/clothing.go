package wardrobe

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/closetiq/closetiq/internal/governor"
)

// ListClothing returns the clothing items matching q.
func (c *Client) ListClothing(ctx context.Context, q ClothingQuery) ([]ClothingItem, error) {
	query := url.Values{}
	if id := strings.TrimSpace(q.WardrobeID); id != "" {
		query.Set("wardrobeId", id)
	}
	if q.Page > 0 {
		query.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		query.Set("limit", strconv.Itoa(q.Limit))
	}

	res, err := c.call(ctx, "list clothing", &governor.Request{Method: "GET", Path: "/api/clothing", Query: query}, nil)
	if err != nil {
		return nil, err
	}

	var items []ClothingItem
	if err := extractList(res.Data, &items, "items", "clothing"); err != nil {
		return nil, &Error{Op: "list clothing", Message: "Invalid data format", Err: err}
	}
	return items, nil
}

// AddClothing creates an item.
func (c *Client) AddClothing(ctx context.Context, item ClothingItem) (*ClothingItem, error) {
	const op = "add clothing"
	if strings.TrimSpace(item.WardrobeID) == "" {
		return nil, &Error{Op: op, Message: "wardrobe id is required"}
	}
	if item.Tags == nil {
		item.Tags = []string{}
	}

	var created ClothingItem
	req := &governor.Request{Method: "POST", Path: "/api/clothing", Body: item}
	if _, err := c.call(ctx, op, req, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// AddClassifiedClothing classifies a photo and files it into a wardrobe.
func (c *Client) AddClassifiedClothing(ctx context.Context, wardrobeID, name string, data []byte) (*ClothingItem, error) {
	resp, err := c.ClassifyImage(ctx, name, data)
	if err != nil {
		return nil, err
	}
	return c.AddClothing(ctx, ItemFromClassification(wardrobeID, resp))
}

// UpdateClothing sends a partial update for one item.
func (c *Client) UpdateClothing(ctx context.Context, id string, changes map[string]any) (*ClothingItem, error) {
	const op = "update clothing"
	path, err := itemPath(id, "")
	if err != nil {
		return nil, &Error{Op: op, Message: err.Error()}
	}

	var updated ClothingItem
	if _, err := c.call(ctx, op, &governor.Request{Method: "PUT", Path: path, Body: changes}, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteClothing removes one item.
func (c *Client) DeleteClothing(ctx context.Context, id string) error {
	const op = "delete clothing"
	path, err := itemPath(id, "")
	if err != nil {
		return &Error{Op: op, Message: err.Error()}
	}
	_, err = c.call(ctx, op, &governor.Request{Method: "DELETE", Path: path}, nil)
	return err
}

// SetFavorite flags or unflags an item as favourite.
func (c *Client) SetFavorite(ctx context.Context, id string, favorite bool) error {
	const op = "favorite clothing"
	path, err := itemPath(id, "favorite")
	if err != nil {
		return &Error{Op: op, Message: err.Error()}
	}
	body := map[string]bool{"isFavorite": favorite}
	_, err = c.call(ctx, op, &governor.Request{Method: "PUT", Path: path, Body: body}, nil)
	return err
}

func itemPath(id, suffix string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errors.New("item id is required")
	}
	path := "/api/clothing/" + url.PathEscape(id)
	if suffix != "" {
		path += "/" + suffix
	}
	return path, nil
}
