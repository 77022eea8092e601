// Package preprocess invokes the external co-registration and
// skull-stripping pipeline. The pipeline is an opaque collaborator: it is
// given named input images, an output directory, and a reference modality,
// and produces standardized files at fixed relative paths.
package preprocess

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// Pipeline describes one invocation of the external preprocessing tool.
type Pipeline struct {
	// Executable is the name or path of the preprocessing binary.
	Executable string

	// OutputDir is where the pipeline writes its standardized outputs.
	OutputDir string

	// Reference is the modality name the other inputs are co-registered to.
	Reference string
}

// Available verifies the external binary can be found. Missing
// preprocessing dependencies are a precondition failure; the caller should
// fail fast before any expensive work.
func (p *Pipeline) Available() error {
	if _, err := exec.LookPath(p.Executable); err != nil {
		return fmt.Errorf("preprocessing pipeline %q not found in PATH: %w", p.Executable, err)
	}
	return nil
}

// OutputPath returns the standardized location of a preprocessed modality.
func (p *Pipeline) OutputPath(modality string) string {
	return filepath.Join(p.OutputDir, modality+"_preprocessed.nii.gz")
}

// Run executes the pipeline on the named input images and returns the
// standardized path per modality. Inputs are passed as modality=path
// pairs; the pipeline co-registers everything to the reference modality
// and skull-strips the result.
func (p *Pipeline) Run(inputs map[string]string) (map[string]string, error) {
	if err := p.Available(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(p.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create preprocessing output directory: %w", err)
	}

	args := []string{"-o", p.OutputDir, "-r", p.Reference}
	for modality, path := range inputs {
		args = append(args, "-i", fmt.Sprintf("%s=%s", modality, path))
	}

	cmd := exec.Command(p.Executable, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("preprocessing pipeline failed: %w", err)
	}

	out := make(map[string]string, len(inputs))
	for modality := range inputs {
		path := p.OutputPath(modality)
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("preprocessing pipeline did not produce %s: %w", path, err)
		}
		out[modality] = path
	}
	return out, nil
}
