package sampler

import (
	"fmt"

	"brainseg/pkg/volume"
)

// GridAggregator accumulates patch-level prediction outputs into a single
// output volume of the padded input's spatial shape. Each Add writes the
// patch's core region into the accumulator, overwriting whatever was there
// before; with a zero border the grid does not overlap and every voxel is
// written exactly once, with a non-zero border overlap resolves to the
// last writer.
type GridAggregator struct {
	out      *volume.Volume
	pending  map[Location]bool
	received int
	expected int
}

// NewGridAggregator prepares an accumulator of spatial shape (x, y, z) with
// the given output channel count, expecting exactly one Add per sampler
// location. The assembled volume carries the provided affine so downstream
// geometry restoration lines up with the padded input.
func NewGridAggregator(channels, x, y, z int, affine volume.Affine, locations []Location) *GridAggregator {
	pending := make(map[Location]bool, len(locations))
	for _, loc := range locations {
		pending[loc] = true
	}
	out := volume.New(channels, x, y, z)
	out.Affine = affine
	return &GridAggregator{
		out:      out,
		pending:  pending,
		expected: len(locations),
	}
}

// Add writes the core region of one patch output into the accumulator.
// The patch has the full window extent; the slice of it copied out is the
// core's offset within the window. Locations not produced by the sampler,
// or added twice, are rejected.
func (a *GridAggregator) Add(patch *volume.Volume, start [3]int, core Location) error {
	if !a.pending[core] {
		return fmt.Errorf("location %v was not expected or was already added", core)
	}
	if patch.Channels != a.out.Channels {
		return fmt.Errorf("patch has %d channels, aggregator expects %d", patch.Channels, a.out.Channels)
	}
	if core.X0 < start[0] || core.Y0 < start[1] || core.Z0 < start[2] ||
		core.X1 > start[0]+patch.X || core.Y1 > start[1]+patch.Y || core.Z1 > start[2]+patch.Z {
		return fmt.Errorf("core %v does not fit within patch at %v with shape (%d, %d, %d)",
			core, start, patch.X, patch.Y, patch.Z)
	}

	nz := core.Z1 - core.Z0
	for c := 0; c < patch.Channels; c++ {
		for x := core.X0; x < core.X1; x++ {
			for y := core.Y0; y < core.Y1; y++ {
				src := patch.Index(c, x-start[0], y-start[1], core.Z0-start[2])
				dst := a.out.Index(c, x, y, core.Z0)
				copy(a.out.Data[dst:dst+nz], patch.Data[src:src+nz])
			}
		}
	}

	delete(a.pending, core)
	a.received++
	return nil
}

// Volume returns the fully assembled output. It is an error to read the
// output before every expected location has been added.
func (a *GridAggregator) Volume() (*volume.Volume, error) {
	if len(a.pending) > 0 {
		return nil, fmt.Errorf("aggregation incomplete: %d of %d patches added", a.received, a.expected)
	}
	return a.out, nil
}
