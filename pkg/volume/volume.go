// Package volume provides the dense 3D+channel array type shared by the
// segmentation pipeline, together with the geometric transforms (padding,
// reorientation, resampling) applied to it between pipeline stages.
package volume

import (
	"fmt"
	"math"
)

// Affine maps voxel indices (x, y, z, 1) to physical millimetre coordinates.
// Row-major 4x4, last row (0, 0, 0, 1).
type Affine [4][4]float64

// Identity returns the identity affine transform.
func Identity() Affine {
	return Affine{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	}
}

// Apply transforms the voxel index (x, y, z) to physical coordinates.
func (a Affine) Apply(x, y, z float64) (float64, float64, float64) {
	px := a[0][0]*x + a[0][1]*y + a[0][2]*z + a[0][3]
	py := a[1][0]*x + a[1][1]*y + a[1][2]*z + a[1][3]
	pz := a[2][0]*x + a[2][1]*y + a[2][2]*z + a[2][3]
	return px, py, pz
}

// Translated returns the affine of a volume whose voxel (0,0,0) sits at
// voxel (ox, oy, oz) of the volume described by a.
func (a Affine) Translated(ox, oy, oz int) Affine {
	out := a
	px, py, pz := a.Apply(float64(ox), float64(oy), float64(oz))
	out[0][3] = px
	out[1][3] = py
	out[2][3] = pz
	return out
}

// Geometry describes the spatial frame of a volume without its voxel data.
// It is what the resampler targets when restoring a result to the space of
// the original input image.
type Geometry struct {
	X, Y, Z int
	Affine  Affine
	// VoxelSize is the physical size of each voxel in mm along each axis.
	VoxelSize [3]float64
}

// Volume is a dense array of shape (C, X, Y, Z) with an affine transform
// mapping voxel indices to physical space. A Volume is treated as immutable
// once produced; each transform stage returns a new Volume.
//
// Data is stored channel-major with z varying fastest:
// index = ((c*X + x)*Y + y)*Z + z.
type Volume struct {
	Data     []float32
	Channels int
	X, Y, Z  int
	Affine   Affine
}

// New allocates a zero-filled volume with the identity affine.
func New(channels, x, y, z int) *Volume {
	return &Volume{
		Data:     make([]float32, channels*x*y*z),
		Channels: channels,
		X:        x,
		Y:        y,
		Z:        z,
		Affine:   Identity(),
	}
}

// Index returns the flat index of voxel (c, x, y, z).
func (v *Volume) Index(c, x, y, z int) int {
	return ((c*v.X+x)*v.Y+y)*v.Z + z
}

// At returns the value at voxel (c, x, y, z).
func (v *Volume) At(c, x, y, z int) float32 {
	return v.Data[v.Index(c, x, y, z)]
}

// Set stores val at voxel (c, x, y, z).
func (v *Volume) Set(c, x, y, z int, val float32) {
	v.Data[v.Index(c, x, y, z)] = val
}

// Geometry returns the spatial frame of the volume.
func (v *Volume) Geometry() Geometry {
	return Geometry{
		X:         v.X,
		Y:         v.Y,
		Z:         v.Z,
		Affine:    v.Affine,
		VoxelSize: v.voxelSize(),
	}
}

func (v *Volume) voxelSize() [3]float64 {
	var size [3]float64
	for axis := 0; axis < 3; axis++ {
		s := 0.0
		for row := 0; row < 3; row++ {
			s += v.Affine[row][axis] * v.Affine[row][axis]
		}
		size[axis] = math.Sqrt(s)
	}
	return size
}

// Clone returns a deep copy of the volume.
func (v *Volume) Clone() *Volume {
	out := &Volume{
		Data:     make([]float32, len(v.Data)),
		Channels: v.Channels,
		X:        v.X,
		Y:        v.Y,
		Z:        v.Z,
		Affine:   v.Affine,
	}
	copy(out.Data, v.Data)
	return out
}

// SubVolume extracts the region of size (sx, sy, sz) starting at voxel
// (ox, oy, oz), across all channels. The extracted volume carries a
// translated affine so its voxels keep their physical positions.
func (v *Volume) SubVolume(ox, oy, oz, sx, sy, sz int) (*Volume, error) {
	if ox < 0 || oy < 0 || oz < 0 || ox+sx > v.X || oy+sy > v.Y || oz+sz > v.Z {
		return nil, fmt.Errorf("sub-volume [%d:%d, %d:%d, %d:%d] exceeds volume bounds (%d, %d, %d)",
			ox, ox+sx, oy, oy+sy, oz, oz+sz, v.X, v.Y, v.Z)
	}

	out := New(v.Channels, sx, sy, sz)
	out.Affine = v.Affine.Translated(ox, oy, oz)

	for c := 0; c < v.Channels; c++ {
		for x := 0; x < sx; x++ {
			for y := 0; y < sy; y++ {
				src := v.Index(c, ox+x, oy+y, oz)
				dst := out.Index(c, x, y, 0)
				copy(out.Data[dst:dst+sz], v.Data[src:src+sz])
			}
		}
	}

	return out, nil
}

// StackChannels combines single-geometry volumes into one multi-channel
// volume. All inputs must share the same spatial dimensions; the affine of
// the first input is kept (inputs are assumed co-registered).
func StackChannels(vols ...*Volume) (*Volume, error) {
	if len(vols) == 0 {
		return nil, fmt.Errorf("no volumes to stack")
	}

	first := vols[0]
	channels := 0
	for _, v := range vols {
		if v.X != first.X || v.Y != first.Y || v.Z != first.Z {
			return nil, fmt.Errorf("cannot stack volumes with mismatched dimensions: (%d,%d,%d) vs (%d,%d,%d)",
				v.X, v.Y, v.Z, first.X, first.Y, first.Z)
		}
		channels += v.Channels
	}

	out := New(channels, first.X, first.Y, first.Z)
	out.Affine = first.Affine

	offset := 0
	for _, v := range vols {
		copy(out.Data[offset:offset+len(v.Data)], v.Data)
		offset += len(v.Data)
	}

	return out, nil
}
