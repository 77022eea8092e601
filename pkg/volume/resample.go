package volume

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Interpolation selects the sampling kernel used when resampling a volume
// onto a new geometry.
type Interpolation int

const (
	// Nearest picks the closest source voxel. Required for label maps,
	// which must not be smoothed across class boundaries.
	Nearest Interpolation = iota

	// Trilinear blends the eight surrounding source voxels. Used for
	// continuous intensity data.
	Trilinear
)

// invert returns the inverse of an affine transform.
func invert(a Affine) (Affine, error) {
	flat := make([]float64, 16)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			flat[i*4+j] = a[i][j]
		}
	}

	var inv mat.Dense
	if err := inv.Inverse(mat.NewDense(4, 4, flat)); err != nil {
		return Affine{}, fmt.Errorf("affine is not invertible: %w", err)
	}

	var out Affine
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			out[i][j] = inv.At(i, j)
		}
	}
	return out, nil
}

// Resample maps the source volume onto the reference geometry. Each
// reference voxel is projected through the reference affine into physical
// space and back through the inverse source affine; the source is then
// sampled there with the chosen kernel. Reference voxels falling outside
// the source grid are zero.
func Resample(src *Volume, ref Geometry, interp Interpolation) (*Volume, error) {
	srcInv, err := invert(src.Affine)
	if err != nil {
		return nil, err
	}

	out := New(src.Channels, ref.X, ref.Y, ref.Z)
	out.Affine = ref.Affine

	for x := 0; x < ref.X; x++ {
		for y := 0; y < ref.Y; y++ {
			for z := 0; z < ref.Z; z++ {
				px, py, pz := ref.Affine.Apply(float64(x), float64(y), float64(z))
				sx, sy, sz := srcInv.Apply(px, py, pz)

				for c := 0; c < src.Channels; c++ {
					var val float32
					switch interp {
					case Trilinear:
						val = sampleTrilinear(src, c, sx, sy, sz)
					default:
						val = sampleNearest(src, c, sx, sy, sz)
					}
					out.Set(c, x, y, z, val)
				}
			}
		}
	}

	return out, nil
}

// sampleNearest returns the value of the closest voxel, or zero outside
// the grid.
func sampleNearest(v *Volume, c int, x, y, z float64) float32 {
	xi := int(math.Round(x))
	yi := int(math.Round(y))
	zi := int(math.Round(z))
	if xi < 0 || yi < 0 || zi < 0 || xi >= v.X || yi >= v.Y || zi >= v.Z {
		return 0
	}
	return v.At(c, xi, yi, zi)
}

// sampleTrilinear blends the eight neighbors of the sampling point.
func sampleTrilinear(v *Volume, c int, x, y, z float64) float32 {
	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	z0 := int(math.Floor(z))
	fx := x - float64(x0)
	fy := y - float64(y0)
	fz := z - float64(z0)

	var acc float64
	for dx := 0; dx <= 1; dx++ {
		for dy := 0; dy <= 1; dy++ {
			for dz := 0; dz <= 1; dz++ {
				xi, yi, zi := x0+dx, y0+dy, z0+dz
				if xi < 0 || yi < 0 || zi < 0 || xi >= v.X || yi >= v.Y || zi >= v.Z {
					continue
				}
				wx := 1 - fx
				if dx == 1 {
					wx = fx
				}
				wy := 1 - fy
				if dy == 1 {
					wy = fy
				}
				wz := 1 - fz
				if dz == 1 {
					wz = fz
				}
				acc += wx * wy * wz * float64(v.At(c, xi, yi, zi))
			}
		}
	}
	return float32(acc)
}
