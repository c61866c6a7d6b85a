package hub

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// MaxSearchLimit caps the number of search hits requested from the hub.
const MaxSearchLimit = 100

// ModelSummary is one hit of the model search API.
type ModelSummary struct {
	ID           string   `json:"id"`
	ModelID      string   `json:"modelId"`
	Author       string   `json:"author"`
	Downloads    int64    `json:"downloads"`
	Likes        int      `json:"likes"`
	Tags         []string `json:"tags"`
	LastModified string   `json:"lastModified"`
	Private      bool     `json:"private"`
}

// SearchModels lists GGUF model repos matching query, most downloaded first.
func (c *Client) SearchModels(ctx context.Context, query string, limit int) ([]ModelSummary, error) {
	if limit <= 0 || limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}
	q := url.Values{}
	if query = strings.TrimSpace(query); query != "" {
		q.Set("search", query)
	}
	q.Set("filter", "gguf")
	q.Set("sort", "downloads")
	q.Set("direction", "-1")
	q.Set("limit", strconv.Itoa(limit))
	var out []ModelSummary
	if err := c.getJSON(ctx, c.baseURL+"/api/models?"+q.Encode(), &out); err != nil {
		return nil, fmt.Errorf("search models %q: %w", query, err)
	}
	for i := range out {
		if out[i].ID == "" {
			out[i].ID = out[i].ModelID
		}
	}
	return out, nil
}
