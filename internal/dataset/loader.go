package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"

	"aiserver/internal/common/fsutil"
	"aiserver/internal/hub"
	"aiserver/internal/workspace"
)

// DefaultConfig is the datasets-server config holding every language and
// license of codeparrot/github-code.
const DefaultConfig = "all-all"

// Rows is the part of the hub client the loader needs.
type Rows interface {
	Rows(ctx context.Context, dataset, config, split string, offset, length int) (*hub.RowsPage, error)
}

// Loader fetches a dataset split into the layout's dataset cache.
type Loader struct {
	Hub       Rows
	Layout    workspace.Layout
	Config    string
	Languages []string
	// MaxRows caps how many rows are fetched; 0 fetches the whole split.
	MaxRows  int
	PageSize int
	Log      zerolog.Logger
}

// Load returns the split filtered to the configured languages. The raw rows
// are cached as JSONL and reused on later runs. Errors are logged and returned.
func (l *Loader) Load(ctx context.Context, name, split string) (*Dataset, error) {
	l.Log.Info().Str("dataset", name).Str("split", split).Msg("Loading dataset")
	ds, err := l.load(ctx, name, split)
	if err != nil {
		l.Log.Error().Err(err).Str("dataset", name).Msg("Error loading dataset")
		return nil, err
	}
	l.Log.Info().Str("dataset", name).Int("examples", ds.Len()).Strs("languages", l.languages()).Msg("dataset loaded")
	return ds, nil
}

// CachePath is the JSONL file holding the raw rows of one config, split
// and row cap, e.g. all-all_train_10000.jsonl.
func (l *Loader) CachePath(name, split string) string {
	limit := "full"
	if l.MaxRows > 0 {
		limit = strconv.Itoa(l.MaxRows)
	}
	file := fsutil.SafeName(l.config()) + "_" + fsutil.SafeName(split) + "_" + limit + ".jsonl"
	return filepath.Join(l.Layout.DatasetCacheDir(name), file)
}

func (l *Loader) config() string {
	if l.Config == "" {
		return DefaultConfig
	}
	return l.Config
}

func (l *Loader) load(ctx context.Context, name, split string) (*Dataset, error) {
	cache := l.CachePath(name, split)
	var raw []Example
	if fsutil.PathExists(cache) {
		var err error
		if raw, err = ReadJSONL(cache); err != nil {
			return nil, fmt.Errorf("read cache %s: %w", cache, err)
		}
		l.Log.Debug().Str("cache", cache).Int("rows", len(raw)).Msg("dataset cache hit")
	} else {
		var err error
		if raw, err = l.fetch(ctx, name, split); err != nil {
			return nil, err
		}
		if err := writeJSONL(cache, raw); err != nil {
			return nil, fmt.Errorf("write cache %s: %w", cache, err)
		}
	}
	return &Dataset{Name: name, Split: split, Examples: Filter(raw, l.languages())}, nil
}

func (l *Loader) fetch(ctx context.Context, name, split string) ([]Example, error) {
	config := l.config()
	size := l.PageSize
	if size <= 0 || size > hub.MaxRowsPerPage {
		size = hub.MaxRowsPerPage
	}
	var out []Example
	for offset := 0; ; {
		want := size
		if l.MaxRows > 0 {
			if offset >= l.MaxRows {
				break
			}
			want = min(size, l.MaxRows-offset)
		}
		page, err := l.Hub.Rows(ctx, name, config, split, offset, want)
		if err != nil {
			return nil, err
		}
		for _, r := range page.Rows {
			var ex Example
			if err := json.Unmarshal(r.Row, &ex); err != nil {
				return nil, fmt.Errorf("row %d: %w", r.Index, err)
			}
			out = append(out, ex)
		}
		offset += len(page.Rows)
		if len(page.Rows) == 0 || (page.NumRowsTotal > 0 && offset >= page.NumRowsTotal) {
			break
		}
	}
	return out, nil
}

func (l *Loader) languages() []string {
	if len(l.Languages) == 0 {
		return DefaultLanguages
	}
	return l.Languages
}
