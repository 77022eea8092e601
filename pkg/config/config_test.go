package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultLesionConfig(t *testing.T) {
	cfg := DefaultLesionConfig()

	if got := len(cfg.Model.Modalities); got != 2 {
		t.Errorf("expected 2 modalities, got %d", got)
	}
	if cfg.Model.Modalities[0] != "t1" || cfg.Model.Modalities[1] != "flair" {
		t.Errorf("unexpected modalities %v", cfg.Model.Modalities)
	}
	if cfg.Model.NumClasses != 8 {
		t.Errorf("expected 8 classes, got %d", cfg.Model.NumClasses)
	}
	if cfg.Model.WindowSize != [3]int{128, 128, 48} {
		t.Errorf("unexpected window size %v", cfg.Model.WindowSize)
	}
	if cfg.Model.NumFolds != 5 {
		t.Errorf("expected 5 folds, got %d", cfg.Model.NumFolds)
	}
}

func TestDefaultTumorConfig(t *testing.T) {
	cfg := DefaultTumorConfig()

	if got := len(cfg.Model.Modalities); got != 1 {
		t.Errorf("expected 1 modality, got %d", got)
	}
	if cfg.Model.NumClasses != 10 {
		t.Errorf("expected 10 classes, got %d", cfg.Model.NumClasses)
	}
	if cfg.Model.WindowSize != [3]int{128, 128, 128} {
		t.Errorf("unexpected window size %v", cfg.Model.WindowSize)
	}
}

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"), DefaultLesionConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Model.NumClasses != 8 {
		t.Errorf("defaults not preserved, got %d classes", cfg.Model.NumClasses)
	}
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	contents := `
model:
  numFolds: 3
  windowSize: [96, 96, 32]
weights:
  cacheDir: /tmp/test-cache
`
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path, DefaultLesionConfig())
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Model.NumFolds != 3 {
		t.Errorf("expected 3 folds, got %d", cfg.Model.NumFolds)
	}
	if cfg.Model.WindowSize != [3]int{96, 96, 32} {
		t.Errorf("unexpected window size %v", cfg.Model.WindowSize)
	}
	if cfg.Weights.CacheDir != "/tmp/test-cache" {
		t.Errorf("unexpected cache dir %q", cfg.Weights.CacheDir)
	}
	// Untouched fields keep their defaults.
	if cfg.Model.NumClasses != 8 {
		t.Errorf("expected default 8 classes, got %d", cfg.Model.NumClasses)
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := DefaultTumorConfig()
	cfg.Model.NumFolds = 7

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("failed to save config: %v", err)
	}
	loaded, err := LoadConfig(path, DefaultTumorConfig())
	if err != nil {
		t.Fatalf("failed to reload config: %v", err)
	}
	if loaded.Model.NumFolds != 7 {
		t.Errorf("expected 7 folds after round trip, got %d", loaded.Model.NumFolds)
	}
}

func TestParseWindow(t *testing.T) {
	w, err := ParseWindow("128,128,48")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w != [3]int{128, 128, 48} {
		t.Errorf("unexpected window %v", w)
	}

	for _, bad := range []string{"", "128", "128,128", "a,b,c", "0,128,48", "-1,2,3"} {
		if _, err := ParseWindow(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}
