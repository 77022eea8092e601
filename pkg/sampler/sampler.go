// Package sampler partitions a padded 3D volume into fixed-size patches on
// a regular grid for windowed inference, and reassembles the per-patch
// predictions into a full-size output volume.
package sampler

import (
	"fmt"

	"brainseg/pkg/volume"
)

// Location is the half-open index range [X0:X1, Y0:Y1, Z0:Z1) within the
// padded volume that a patch's core region occupies. The union of all core
// regions yielded by a sampler tiles the volume exactly.
type Location struct {
	X0, Y0, Z0 int
	X1, Y1, Z1 int
}

// Patch is one window of the sampled volume together with its placement.
type Patch struct {
	// Data has shape (C, wx, wy, wz).
	Data *volume.Volume

	// Start is the origin of the window within the padded volume.
	Start [3]int

	// Core is the region the aggregator will write for this patch. With a
	// zero border it spans the full window; otherwise it is the window
	// interior, extended back out to the volume boundary on edge patches.
	Core Location
}

// GridSampler yields a finite, restartable sequence of patches laid out on
// a regular stride grid. The grid starts at index 0 and the last patch per
// axis is shifted backward so it ends exactly at the volume boundary,
// guaranteeing full coverage without stepping out of bounds.
type GridSampler struct {
	vol    *volume.Volume
	window [3]int
	border [3]int
	starts [3][]int
}

// NewGridSampler validates the window against the volume and lays out the
// grid. Stride per axis is window-2*border when the border is non-zero,
// else the window itself (a non-overlapping tiling). It is the caller's
// responsibility to pad the volume to at least the window size beforehand;
// an axis smaller than the window is an error.
func NewGridSampler(v *volume.Volume, window, border [3]int) (*GridSampler, error) {
	dims := [3]int{v.X, v.Y, v.Z}
	for axis := 0; axis < 3; axis++ {
		if window[axis] <= 0 {
			return nil, fmt.Errorf("window size must be positive, got %v", window)
		}
		if border[axis] < 0 {
			return nil, fmt.Errorf("border must be non-negative, got %v", border)
		}
		if 2*border[axis] >= window[axis] {
			return nil, fmt.Errorf("border %v leaves no core within window %v", border, window)
		}
		if window[axis] > dims[axis] {
			return nil, fmt.Errorf("window %v exceeds volume dimensions (%d, %d, %d) along axis %d; pad the volume first",
				window, v.X, v.Y, v.Z, axis)
		}
	}

	s := &GridSampler{vol: v, window: window, border: border}
	for axis := 0; axis < 3; axis++ {
		stride := window[axis]
		if border[axis] > 0 {
			stride = window[axis] - 2*border[axis]
		}
		s.starts[axis] = gridStarts(dims[axis], window[axis], stride)
	}
	return s, nil
}

// gridStarts returns the window origins along one axis: 0, stride, 2*stride
// and so on, with the final origin pulled back to extent-window so the last
// window ends on the boundary.
func gridStarts(extent, window, stride int) []int {
	var starts []int
	for s := 0; ; s += stride {
		if s+window >= extent {
			starts = append(starts, extent-window)
			return starts
		}
		starts = append(starts, s)
	}
}

// NumPatches returns the length of the patch sequence.
func (s *GridSampler) NumPatches() int {
	return len(s.starts[0]) * len(s.starts[1]) * len(s.starts[2])
}

// Locations returns the core region of every patch in iteration order
// (x outermost, z innermost). The order is deterministic so aggregation is
// reproducible.
func (s *GridSampler) Locations() []Location {
	locs := make([]Location, 0, s.NumPatches())
	for _, x := range s.starts[0] {
		for _, y := range s.starts[1] {
			for _, z := range s.starts[2] {
				locs = append(locs, s.core([3]int{x, y, z}))
			}
		}
	}
	return locs
}

// core computes the region written for the window at the given origin.
func (s *GridSampler) core(start [3]int) Location {
	dims := [3]int{s.vol.X, s.vol.Y, s.vol.Z}
	var lo, hi [3]int
	for axis := 0; axis < 3; axis++ {
		lo[axis] = start[axis] + s.border[axis]
		hi[axis] = start[axis] + s.window[axis] - s.border[axis]
		// Edge patches keep their border so the tiling still reaches the
		// volume boundary.
		if start[axis] == 0 {
			lo[axis] = 0
		}
		if start[axis]+s.window[axis] == dims[axis] {
			hi[axis] = dims[axis]
		}
	}
	return Location{lo[0], lo[1], lo[2], hi[0], hi[1], hi[2]}
}

// Patch extracts patch i of the sequence. Extraction is lazy; calling
// Patch repeatedly with the same index always returns the same content.
func (s *GridSampler) Patch(i int) (Patch, error) {
	if i < 0 || i >= s.NumPatches() {
		return Patch{}, fmt.Errorf("patch index %d out of range [0, %d)", i, s.NumPatches())
	}

	ny := len(s.starts[1])
	nz := len(s.starts[2])
	start := [3]int{
		s.starts[0][i/(ny*nz)],
		s.starts[1][(i/nz)%ny],
		s.starts[2][i%nz],
	}

	data, err := s.vol.SubVolume(start[0], start[1], start[2], s.window[0], s.window[1], s.window[2])
	if err != nil {
		return Patch{}, err
	}

	return Patch{Data: data, Start: start, Core: s.core(start)}, nil
}
