// Package config provides configuration loading and management for the
// segmentation tools. It handles loading configuration from YAML files and
// provides per-tool default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents a tool's configuration loaded from YAML.
type Config struct {
	// Model parameters
	Model struct {
		// Modalities lists the input modality names, in channel order.
		Modalities []string `yaml:"modalities"`

		// NumClasses is the number of output tissue/lesion classes.
		NumClasses int `yaml:"numClasses"`

		// NumFolds is the number of ensembled checkpoints.
		NumFolds int `yaml:"numFolds"`

		// WindowSize is the spatial extent (x, y, z) the network accepts.
		WindowSize [3]int `yaml:"windowSize"`

		// Border is the per-axis overlap margin between adjacent patches.
		Border [3]int `yaml:"border"`

		// InputName and OutputName are the ONNX graph tensor names.
		InputName  string `yaml:"inputName"`
		OutputName string `yaml:"outputName"`
	} `yaml:"model"`

	// Weights parameters
	Weights struct {
		// URLPattern is the remote checkpoint location with one %d verb
		// for the fold index.
		URLPattern string `yaml:"urlPattern"`

		// CacheDir is the local checkpoint cache directory.
		CacheDir string `yaml:"cacheDir"`
	} `yaml:"weights"`

	// Output parameters
	Output struct {
		// SaveQCSlices controls whether axial slices of the label map are
		// exported as images for visual inspection.
		SaveQCSlices bool `yaml:"saveQCSlices"`

		// QCDir is the directory QC slices are written to.
		QCDir string `yaml:"qcDir"`
	} `yaml:"output"`
}

// defaultCacheDir places the checkpoint cache under the user cache
// directory, falling back to a hidden directory in $HOME.
func defaultCacheDir(tool string) string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "brainseg", tool)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".brainseg", tool)
}

// DefaultLesionConfig returns the defaults for the white-matter lesion
// tool: two modalities (T1 + FLAIR), 8 classes.
func DefaultLesionConfig() *Config {
	cfg := &Config{}

	cfg.Model.Modalities = []string{"t1", "flair"}
	cfg.Model.NumClasses = 8
	cfg.Model.NumFolds = 5
	cfg.Model.WindowSize = [3]int{128, 128, 48}
	cfg.Model.Border = [3]int{0, 0, 0}
	cfg.Model.InputName = "input"
	cfg.Model.OutputName = "output"

	cfg.Weights.URLPattern = "https://artifacts.brainseg.dev/lesion/v1/fold_%d.onnx"
	cfg.Weights.CacheDir = defaultCacheDir("lesion")

	cfg.Output.SaveQCSlices = false
	cfg.Output.QCDir = "qc_slices"

	return cfg
}

// DefaultTumorConfig returns the defaults for the tissue + glioma tumor
// tool: one modality (T1), 10 classes.
func DefaultTumorConfig() *Config {
	cfg := &Config{}

	cfg.Model.Modalities = []string{"t1"}
	cfg.Model.NumClasses = 10
	cfg.Model.NumFolds = 5
	cfg.Model.WindowSize = [3]int{128, 128, 128}
	cfg.Model.Border = [3]int{0, 0, 0}
	cfg.Model.InputName = "input"
	cfg.Model.OutputName = "output"

	cfg.Weights.URLPattern = "https://artifacts.brainseg.dev/tumor/v1/fold_%d.onnx"
	cfg.Weights.CacheDir = defaultCacheDir("tumor")

	cfg.Output.SaveQCSlices = false
	cfg.Output.QCDir = "qc_slices"

	return cfg
}

// ParseWindow parses a window-size override of the form "x,y,z".
func ParseWindow(s string) ([3]int, error) {
	var w [3]int
	if _, err := fmt.Sscanf(s, "%d,%d,%d", &w[0], &w[1], &w[2]); err != nil {
		return w, fmt.Errorf("invalid window size %q, want x,y,z: %w", s, err)
	}
	for _, dim := range w {
		if dim <= 0 {
			return w, fmt.Errorf("invalid window size %q, dimensions must be positive", s)
		}
	}
	return w, nil
}

// LoadConfig loads configuration from a YAML file on top of the given
// defaults. If the file doesn't exist, the defaults are returned as-is.
func LoadConfig(configPath string, defaults *Config) (*Config, error) {
	cfg := *defaults

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return &cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &cfg, nil
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}
