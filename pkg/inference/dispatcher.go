package inference

import (
	"errors"
	"fmt"

	"brainseg/pkg/sampler"
	"brainseg/pkg/volume"
)

// Dispatcher attempts fast whole-volume inference first and falls back to
// patch-based sliding-window inference when the device runs out of memory.
// The fallback is one-way: once a run is patch-based it completes or fails
// there. Before dispatch the volume is padded per axis to at least the
// window size, so the window always fits either path.
type Dispatcher struct {
	ensemble *Ensemble
	window   [3]int
	border   [3]int
}

// NewDispatcher returns a dispatcher running the given ensemble with the
// given window size and per-axis overlap border.
func NewDispatcher(ensemble *Ensemble, window, border [3]int) *Dispatcher {
	return &Dispatcher{ensemble: ensemble, window: window, border: border}
}

// Run segments the (normalized) input and returns a single-channel label
// volume of the padded input's shape, carrying the padded affine so the
// caller can resample it back onto the original geometry.
func (d *Dispatcher) Run(in *volume.Volume) (*volume.Volume, error) {
	padded := volume.PadToWindow(in, d.window)

	labels, err := d.ensemble.Predict(padded)
	if err == nil {
		return labels, nil
	}
	if !errors.Is(err, ErrResourceExhausted) {
		return nil, err
	}

	fmt.Println("Whole-volume inference exceeded device memory, falling back to patch-based inference...")
	return d.runPatches(padded)
}

// runPatches drives the sampler -> ensemble -> aggregator path over the
// already padded volume. Each patch is fully produced, inferred, and
// aggregated before the next is requested.
func (d *Dispatcher) runPatches(padded *volume.Volume) (*volume.Volume, error) {
	grid, err := sampler.NewGridSampler(padded, d.window, d.border)
	if err != nil {
		return nil, fmt.Errorf("failed to lay out patch grid: %w", err)
	}

	agg := sampler.NewGridAggregator(1, padded.X, padded.Y, padded.Z, padded.Affine, grid.Locations())

	total := grid.NumPatches()
	for i := 0; i < total; i++ {
		patch, err := grid.Patch(i)
		if err != nil {
			return nil, err
		}

		labels, err := d.ensemble.Predict(patch.Data)
		if err != nil {
			// No further fallback exists on the patch path.
			return nil, fmt.Errorf("patch %d/%d inference failed: %w", i+1, total, err)
		}

		if err := agg.Add(labels, patch.Start, patch.Core); err != nil {
			return nil, err
		}
		fmt.Printf("\rPatch-based inference: %d/%d patches", i+1, total)
	}
	fmt.Println()

	return agg.Volume()
}
