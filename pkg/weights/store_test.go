package weights

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointDownloadsOnceThenCaches(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		fmt.Fprintf(w, "weights for %s", r.URL.Path)
	}))
	defer server.Close()

	dir := t.TempDir()
	store := NewStore(dir, server.URL+"/fold_%d.onnx")

	path, err := store.Checkpoint(3)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "fold_3.onnx"), path)
	assert.Equal(t, 1, requests)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "weights for /fold_3.onnx", string(content))

	// Second resolution hits the cache: presence of the file is valid.
	_, err = store.Checkpoint(3)
	require.NoError(t, err)
	assert.Equal(t, 1, requests)

	// A different fold is a different artifact.
	_, err = store.Checkpoint(4)
	require.NoError(t, err)
	assert.Equal(t, 2, requests)
}

func TestCheckpointFetchFailureIsFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	store := NewStore(t.TempDir(), server.URL+"/fold_%d.onnx")
	_, err := store.Checkpoint(1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fold 1")

	// No partial or misleading cache entry may be left behind.
	entries, err := os.ReadDir(store.Dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCheckpointUnreachableRemote(t *testing.T) {
	store := NewStore(t.TempDir(), "http://127.0.0.1:1/fold_%d.onnx")
	_, err := store.Checkpoint(2)
	assert.Error(t, err)
}

func TestCheckpointCreatesCacheDir(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	}))
	defer server.Close()

	dir := filepath.Join(t.TempDir(), "nested", "cache")
	store := NewStore(dir, server.URL+"/fold_%d.onnx")
	path, err := store.Checkpoint(1)
	require.NoError(t, err)
	_, err = os.Stat(path)
	assert.NoError(t, err)
}
