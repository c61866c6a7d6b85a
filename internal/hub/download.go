package hub

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
)

// File names a repo file and, when known, its expected size.
type File struct {
	Name string
	Size int64
}

// Download fetches files of repo at revision into destDir, preserving their
// relative paths. Files already present with the expected size are skipped.
// It returns the local paths in the order of files.
func (c *Client) Download(ctx context.Context, repo, revision string, files []File, destDir string) ([]string, error) {
	if err := ValidateRepo(repo); err != nil {
		return nil, err
	}
	if revision == "" {
		revision = "main"
	}
	paths := make([]string, len(files))
	for i, f := range files {
		target, err := localPath(destDir, f.Name)
		if err != nil {
			return nil, err
		}
		paths[i] = target
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallel)
	for i, f := range files {
		target := paths[i]
		if fi, err := os.Stat(target); err == nil && (f.Size <= 0 || fi.Size() == f.Size) {
			continue
		}
		u := fmt.Sprintf("%s/%s/resolve/%s/%s", c.baseURL, repo, url.PathEscape(revision), escapePath(f.Name))
		g.Go(func() error {
			if err := c.fetch(gctx, u, target); err != nil {
				return fmt.Errorf("download %s: %w", f.Name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

func (c *Client) fetch(ctx context.Context, u, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkResponse(resp); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	part := target + ".part"
	out, err := os.Create(part)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		_ = out.Close()
		_ = os.Remove(part)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(part)
		return err
	}
	return os.Rename(part, target)
}

// localPath joins a repo-relative name under dir, rejecting escapes.
func localPath(dir, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid repo file name %q", name)
	}
	return filepath.Join(dir, clean), nil
}

func escapePath(name string) string {
	parts := strings.Split(name, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
