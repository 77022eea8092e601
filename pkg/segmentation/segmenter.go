// Package segmentation orchestrates the full volumetric segmentation
// pipeline: reading the input scans, preprocessing them into the space the
// network expects, dispatching ensemble inference, and restoring the label
// map to the geometry of the original input before writing it out.
package segmentation

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"brainseg/pkg/config"
	"brainseg/pkg/inference"
	"brainseg/pkg/nifti"
	"brainseg/pkg/preprocess"
	"brainseg/pkg/visualization"
	"brainseg/pkg/volume"
)

// Params holds the per-run parameters.
type Params struct {
	// InputPaths maps modality name to scan path. Every modality listed in
	// the tool configuration must be present.
	InputPaths map[string]string

	// OutputFile is the path the label map is written to. When empty it is
	// derived from the first modality's path by inserting a _seg suffix.
	OutputFile string

	// RunPipeline enables external co-registration and skull-stripping
	// before segmentation.
	RunPipeline bool

	// PipelineExec is the external preprocessing binary.
	PipelineExec string

	// PipelineDir is where the external pipeline writes its outputs.
	PipelineDir string
}

// Segmenter runs the segmentation pipeline for a single subject.
//
// The pipeline consists of several steps:
// 1. Validating inputs and optionally running the external preprocessing
// 2. Reading the scans and stacking modalities into one volume
// 3. Reorienting to canonical space and normalizing intensities
// 4. Whole-volume or patch-based ensemble inference
// 5. Resampling the label map back onto the original input geometry
// 6. Writing the result
type Segmenter struct {
	params *Params
	cfg    *config.Config
	net    inference.Network
	store  inference.CheckpointStore
}

// NewSegmenter creates a segmenter for one run. The network and checkpoint
// store are injected so the tools share one construction path and tests
// can substitute synthetic implementations.
func NewSegmenter(params *Params, cfg *config.Config, net inference.Network, store inference.CheckpointStore) *Segmenter {
	return &Segmenter{params: params, cfg: cfg, net: net, store: store}
}

// DeriveOutputPath derives the default output path from an input scan path
// by replacing the .nii/.nii.gz suffix with _seg.nii/_seg.nii.gz.
func DeriveOutputPath(inputPath string) string {
	lower := strings.ToLower(inputPath)
	switch {
	case strings.HasSuffix(lower, ".nii.gz"):
		return inputPath[:len(inputPath)-len(".nii.gz")] + "_seg.nii.gz"
	case strings.HasSuffix(lower, ".nii"):
		return inputPath[:len(inputPath)-len(".nii")] + "_seg.nii"
	default:
		return inputPath + "_seg.nii.gz"
	}
}

// Run executes the complete pipeline. Output is written only after every
// step has succeeded; a failed run leaves no partial result file behind.
func (s *Segmenter) Run() error {
	// Step 1: Validate inputs
	fmt.Println("Step 1: Validating inputs...")
	paths, err := s.resolveInputs()
	if err != nil {
		return err
	}

	if s.params.RunPipeline {
		fmt.Println("Running external co-registration and skull-stripping...")
		pipeline := &preprocess.Pipeline{
			Executable: s.params.PipelineExec,
			OutputDir:  s.params.PipelineDir,
			Reference:  s.cfg.Model.Modalities[0],
		}
		preprocessed, err := pipeline.Run(paths)
		if err != nil {
			return err
		}
		paths = preprocessed
	}

	// Step 2: Read scans and stack modalities
	fmt.Println("Step 2: Loading input scans...")
	input, ref, err := s.loadScans(paths)
	if err != nil {
		return err
	}
	fmt.Printf("Loaded %d modalities with dimensions %dx%dx%d\n", input.Channels, input.X, input.Y, input.Z)

	// Step 3: Canonical orientation and intensity normalization
	fmt.Println("Step 3: Reorienting to canonical space and normalizing intensities...")
	canonical := volume.ToCanonical(input)
	normalized := volume.ZScoreNormalize(canonical)

	// Step 4: Ensemble inference (whole-volume with patch-based fallback)
	fmt.Println("Step 4: Running ensemble inference...")
	ensemble, err := inference.NewEnsemble(s.net, s.store, s.cfg.Model.NumFolds, s.cfg.Model.NumClasses)
	if err != nil {
		return err
	}
	dispatcher := inference.NewDispatcher(ensemble, s.cfg.Model.WindowSize, s.cfg.Model.Border)
	labels, err := dispatcher.Run(normalized)
	if err != nil {
		return fmt.Errorf("inference failed: %w", err)
	}

	// Step 5: Restore the label map to the original input geometry.
	// Nearest-neighbor only: label data must not be smoothed.
	fmt.Println("Step 5: Resampling label map onto original geometry...")
	restored, err := volume.Resample(labels, ref, volume.Nearest)
	if err != nil {
		return fmt.Errorf("failed to restore geometry: %w", err)
	}

	// Step 6: Write the result
	outputFile := s.params.OutputFile
	if outputFile == "" {
		outputFile = DeriveOutputPath(s.params.InputPaths[s.cfg.Model.Modalities[0]])
	}
	fmt.Printf("Step 6: Writing label map to %s...\n", outputFile)
	if dir := filepath.Dir(outputFile); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := nifti.Write(outputFile, restored, nifti.DTUint8); err != nil {
		return fmt.Errorf("failed to write label map: %w", err)
	}

	if s.cfg.Output.SaveQCSlices {
		fmt.Printf("Saving QC slices to %s...\n", s.cfg.Output.QCDir)
		viewer := visualization.NewViewer(restored, s.cfg.Model.NumClasses)
		if err := viewer.SaveSliceSequence("z", s.cfg.Output.QCDir); err != nil {
			fmt.Printf("Warning: failed to save QC slices: %v\n", err)
		}
	}

	return nil
}

// resolveInputs checks that every configured modality has an existing
// input file. Missing inputs are a precondition failure.
func (s *Segmenter) resolveInputs() (map[string]string, error) {
	paths := make(map[string]string, len(s.cfg.Model.Modalities))
	for _, modality := range s.cfg.Model.Modalities {
		path, ok := s.params.InputPaths[modality]
		if !ok || path == "" {
			return nil, fmt.Errorf("missing required %s scan", strings.ToUpper(modality))
		}
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("cannot read %s scan %s: %w", strings.ToUpper(modality), path, err)
		}
		paths[modality] = path
	}
	return paths, nil
}

// loadScans reads each modality and stacks them into a single multi-channel
// volume. The returned geometry is that of the first modality as read,
// which the final label map is resampled onto.
func (s *Segmenter) loadScans(paths map[string]string) (*volume.Volume, volume.Geometry, error) {
	vols := make([]*volume.Volume, 0, len(s.cfg.Model.Modalities))
	for _, modality := range s.cfg.Model.Modalities {
		v, err := nifti.Read(paths[modality])
		if err != nil {
			return nil, volume.Geometry{}, fmt.Errorf("failed to load %s scan: %w", strings.ToUpper(modality), err)
		}
		vols = append(vols, v)
	}

	stacked, err := volume.StackChannels(vols...)
	if err != nil {
		return nil, volume.Geometry{}, fmt.Errorf("input scans are not co-registered: %w", err)
	}
	return stacked, vols[0].Geometry(), nil
}
