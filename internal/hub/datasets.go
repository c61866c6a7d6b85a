package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
)

// MaxRowsPerPage is the largest page the rows API serves.
const MaxRowsPerPage = 100

// RowsPage is one page of the datasets rows API.
type RowsPage struct {
	Rows           []Row `json:"rows"`
	NumRowsTotal   int   `json:"num_rows_total"`
	NumRowsPerPage int   `json:"num_rows_per_page"`
	Partial        bool  `json:"partial"`
}

// Row carries one dataset record as raw JSON.
type Row struct {
	Index int             `json:"row_idx"`
	Row   json.RawMessage `json:"row"`
}

// Rows fetches length rows of dataset/config/split starting at offset.
func (c *Client) Rows(ctx context.Context, dataset, config, split string, offset, length int) (*RowsPage, error) {
	if err := ValidateRepo(dataset); err != nil {
		return nil, err
	}
	if length <= 0 || length > MaxRowsPerPage {
		length = MaxRowsPerPage
	}
	q := url.Values{}
	q.Set("dataset", dataset)
	q.Set("config", config)
	q.Set("split", split)
	q.Set("offset", strconv.Itoa(offset))
	q.Set("length", strconv.Itoa(length))
	var page RowsPage
	if err := c.getJSON(ctx, c.datasetsURL+"/rows?"+q.Encode(), &page); err != nil {
		return nil, fmt.Errorf("rows %s[%s] offset=%d: %w", dataset, split, offset, err)
	}
	return &page, nil
}
