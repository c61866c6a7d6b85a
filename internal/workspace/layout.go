// Package workspace owns the on-disk layout under the configured root:
// tmp/, models/, datasets/, training/ and the final fine_tuned_model/.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"aiserver/internal/common/fsutil"
)

// Layout is the resolved directory layout. It is created once by Ensure and
// never restructured afterwards.
type Layout struct {
	Root         string
	Temp         string
	Models       string
	Datasets     string
	Training     string
	TrainingLogs string
	FineTuned    string
}

// Resolve expands root and derives every directory of the layout from it.
func Resolve(root string) (Layout, error) {
	if root == "" {
		return Layout{}, fmt.Errorf("empty root")
	}
	p, err := fsutil.ExpandHome(root)
	if err != nil {
		return Layout{}, err
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return Layout{}, fmt.Errorf("abs path: %w", err)
	}
	training := filepath.Join(abs, "training")
	return Layout{
		Root:         abs,
		Temp:         filepath.Join(abs, "tmp"),
		Models:       filepath.Join(abs, "models"),
		Datasets:     filepath.Join(abs, "datasets"),
		Training:     training,
		TrainingLogs: filepath.Join(training, "logs"),
		FineTuned:    filepath.Join(abs, "fine_tuned_model"),
	}, nil
}

// Ensure creates the working directories. It is unconditional and idempotent.
func (l Layout) Ensure() error {
	for _, dir := range []string{l.Temp, l.Models, l.Datasets, l.Training} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// ModelCacheDir is the cache directory for a hub model repo.
func (l Layout) ModelCacheDir(name string) string {
	return filepath.Join(l.Models, fsutil.SafeName(name))
}

// DatasetCacheDir is the cache directory for a hub dataset repo.
func (l Layout) DatasetCacheDir(name string) string {
	return filepath.Join(l.Datasets, fsutil.SafeName(name))
}

// DBPath is the location of the run ledger.
func (l Layout) DBPath() string { return filepath.Join(l.Root, "aiserver.db") }

// Cleanup removes the temp directory. Best effort: failures are logged only.
func (l Layout) Cleanup(log zerolog.Logger) {
	if l.Temp == "" {
		return
	}
	if err := os.RemoveAll(l.Temp); err != nil {
		log.Error().Err(err).Str("dir", l.Temp).Msg("Error cleaning up")
		return
	}
	log.Info().Str("dir", l.Temp).Msg("Cleaned up temporary directory")
}
