// Package weights maintains the local cache of pretrained checkpoint
// files, one per ensemble fold, lazily fetched from a fixed remote URL
// pattern keyed by fold index.
package weights

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// Store resolves fold indices to local checkpoint files, downloading any
// that are missing. Presence of a file is treated as cache-valid; there is
// no checksum verification. Downloads land in a "-partial" temp file and
// are renamed into place only on success, so an interrupted fetch is never
// mistaken for a cached checkpoint.
type Store struct {
	// Dir is the local cache directory, created on first use.
	Dir string

	// URLPattern is the remote location of the checkpoints, with one %d
	// verb for the fold index.
	URLPattern string

	// Client is the HTTP client used for fetches; http.DefaultClient when
	// nil.
	Client *http.Client
}

// NewStore returns a store caching checkpoints from the given URL pattern
// under dir.
func NewStore(dir, urlPattern string) *Store {
	return &Store{Dir: dir, URLPattern: urlPattern}
}

// Checkpoint returns the local path of the checkpoint for the given fold,
// fetching it from the remote store first if it is not cached. Fetch
// failures are fatal for the run; there is no retry.
func (s *Store) Checkpoint(fold int) (string, error) {
	path := filepath.Join(s.Dir, fmt.Sprintf("fold_%d.onnx", fold))
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create weights cache directory: %w", err)
	}

	url := fmt.Sprintf(s.URLPattern, fold)
	fmt.Printf("Downloading checkpoint for fold %d from %s\n", fold, url)
	if err := s.download(url, path); err != nil {
		return "", fmt.Errorf("failed to fetch checkpoint for fold %d: %w", fold, err)
	}
	return path, nil
}

func (s *Store) download(url, path string) error {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	partial := path + "-partial"
	f, err := os.Create(partial)
	if err != nil {
		return err
	}

	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(partial)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(partial)
		return err
	}

	return os.Rename(partial, path)
}
