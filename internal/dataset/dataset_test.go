package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aiserver/internal/hub"
	"aiserver/internal/workspace"
)

var allLanguages = []string{"Python", "Java", "C", "HTML", "Rust", "CSS", "JavaScript", "TypeScript", "Go", "python"}

type fakeRows struct {
	total   int
	calls   int
	err     error
	configs []string
}

func (f *fakeRows) Rows(_ context.Context, _, config, _ string, offset, length int) (*hub.RowsPage, error) {
	f.calls++
	f.configs = append(f.configs, config)
	if f.err != nil {
		return nil, f.err
	}
	page := &hub.RowsPage{NumRowsTotal: f.total}
	for i := offset; i < offset+length && i < f.total; i++ {
		ex := Example{Code: fmt.Sprintf("// %d", i), Path: fmt.Sprintf("f%d", i), Language: allLanguages[i%len(allLanguages)]}
		b, _ := json.Marshal(ex)
		page.Rows = append(page.Rows, hub.Row{Index: i, Row: b})
	}
	return page, nil
}

func newLoader(t *testing.T, rows Rows) *Loader {
	t.Helper()
	l, err := workspace.Resolve(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, l.Ensure())
	return &Loader{Hub: rows, Layout: l, PageSize: 7, Log: zerolog.Nop()}
}

func TestFilterKeepsOnlyConfiguredLanguages(t *testing.T) {
	var in []Example
	for _, lang := range allLanguages {
		in = append(in, Example{Language: lang})
	}
	got := Filter(in, DefaultLanguages)
	var langs []string
	for _, ex := range got {
		langs = append(langs, ex.Language)
	}
	want := []string{"Python", "Java", "HTML", "CSS", "JavaScript"}
	if diff := cmp.Diff(want, langs); diff != "" {
		t.Fatalf("filtered languages mismatch (-want +got):\n%s", diff)
	}
}

func TestFilterEmpty(t *testing.T) {
	assert.Empty(t, Filter(nil, DefaultLanguages))
	assert.Empty(t, Filter([]Example{{Language: "Python"}}, nil))
}

func TestLoadPagesFiltersAndCaches(t *testing.T) {
	rows := &fakeRows{total: 30}
	ld := newLoader(t, rows)
	ds, err := ld.Load(context.Background(), "codeparrot/github-code", "train")
	require.NoError(t, err)
	assert.Equal(t, "codeparrot/github-code", ds.Name)
	assert.Equal(t, "train", ds.Split)
	// 30 rows, page size 7 -> 5 requests
	assert.Equal(t, 5, rows.calls)
	// 5 of every 10 labels match exactly
	assert.Equal(t, 15, ds.Len())
	for _, ex := range ds.Examples {
		assert.Contains(t, DefaultLanguages, ex.Language)
	}

	cache := filepath.Join(ld.Layout.DatasetCacheDir("codeparrot/github-code"), "all-all_train_full.jsonl")
	assert.Equal(t, cache, ld.CachePath("codeparrot/github-code", "train"))
	assert.Equal(t, "all-all", rows.configs[0])
	raw, err := ReadJSONL(cache)
	require.NoError(t, err)
	assert.Len(t, raw, 30)

	// second load reads the cache only
	again, err := ld.Load(context.Background(), "codeparrot/github-code", "train")
	require.NoError(t, err)
	assert.Equal(t, 5, rows.calls)
	assert.Equal(t, ds.Examples, again.Examples)
}

func TestLoadRespectsMaxRows(t *testing.T) {
	rows := &fakeRows{total: 1000}
	ld := newLoader(t, rows)
	ld.MaxRows = 20
	ds, err := ld.Load(context.Background(), "codeparrot/github-code", "train")
	require.NoError(t, err)
	assert.Equal(t, 10, ds.Len())
	assert.Equal(t, 3, rows.calls)
}

func TestCacheKeyedByConfigAndRowCap(t *testing.T) {
	rows := &fakeRows{total: 1000}
	ld := newLoader(t, rows)
	ld.MaxRows = 10
	_, err := ld.Load(context.Background(), "codeparrot/github-code", "train")
	require.NoError(t, err)
	calls := rows.calls

	ld.MaxRows = 20
	ds, err := ld.Load(context.Background(), "codeparrot/github-code", "train")
	require.NoError(t, err)
	assert.Greater(t, rows.calls, calls, "a larger cap must not reuse the smaller cache")
	assert.Equal(t, 10, ds.Len())

	calls = rows.calls
	ld.Config = "Python-mit"
	_, err = ld.Load(context.Background(), "codeparrot/github-code", "train")
	require.NoError(t, err)
	assert.Greater(t, rows.calls, calls, "a different config must not reuse the cache")
	assert.Equal(t, "Python-mit", rows.configs[len(rows.configs)-1])

	dir := ld.Layout.DatasetCacheDir("codeparrot/github-code")
	for _, f := range []string{"all-all_train_10.jsonl", "all-all_train_20.jsonl", "Python-mit_train_20.jsonl"} {
		assert.FileExists(t, filepath.Join(dir, f))
	}
}

func TestLoadError(t *testing.T) {
	ld := newLoader(t, &fakeRows{err: hub.ErrNotFound})
	_, err := ld.Load(context.Background(), "org/missing", "train")
	require.Error(t, err)
	assert.True(t, errors.Is(err, hub.ErrNotFound))
}

func TestWriteReadJSONL(t *testing.T) {
	ds := &Dataset{Examples: []Example{{Code: "print(1)\n", Language: "Python", Size: 9}, {Code: "<p>", Language: "HTML"}}}
	p := filepath.Join(t.TempDir(), "out", "train.jsonl")
	require.NoError(t, ds.WriteJSONL(p))
	got, err := ReadJSONL(p)
	require.NoError(t, err)
	assert.Equal(t, ds.Examples, got)
}
