package volume

import (
	"math"
)

// ToCanonical reorients the volume so its voxel axes align with the RAS+
// convention: x increasing to the right, y to the front, z to the top.
// Axes are permuted and flipped according to the dominant direction of each
// affine column; the affine is rewritten so voxels keep their physical
// positions. Volumes already in canonical orientation come back as a copy.
func ToCanonical(v *Volume) *Volume {
	// For each world axis, pick the input axis whose direction cosine
	// dominates it, and whether that axis runs backwards.
	var srcAxis [3]int
	var flip [3]bool
	var used [3]bool
	for range [3]int{} {
		bestWorld, bestSrc, bestAbs := -1, -1, -1.0
		for i := 0; i < 3; i++ {
			if used[i] {
				continue
			}
			for j := 0; j < 3; j++ {
				taken := false
				for w := 0; w < 3; w++ {
					if used[w] && srcAxis[w] == j {
						taken = true
					}
				}
				if taken {
					continue
				}
				if a := math.Abs(v.Affine[i][j]); a > bestAbs {
					bestWorld, bestSrc, bestAbs = i, j, a
				}
			}
		}
		used[bestWorld] = true
		srcAxis[bestWorld] = bestSrc
		flip[bestWorld] = v.Affine[bestWorld][bestSrc] < 0
	}

	inDims := [3]int{v.X, v.Y, v.Z}
	var outDims [3]int
	for i := 0; i < 3; i++ {
		outDims[i] = inDims[srcAxis[i]]
	}

	// Rebuild the affine: column i of the output is the (possibly negated)
	// source column, with the translation shifted across flipped axes.
	out := New(v.Channels, outDims[0], outDims[1], outDims[2])
	aff := Identity()
	for i := 0; i < 3; i++ {
		j := srcAxis[i]
		for row := 0; row < 3; row++ {
			if flip[i] {
				aff[row][i] = -v.Affine[row][j]
			} else {
				aff[row][i] = v.Affine[row][j]
			}
		}
	}
	for row := 0; row < 3; row++ {
		t := v.Affine[row][3]
		for i := 0; i < 3; i++ {
			if flip[i] {
				t += v.Affine[row][srcAxis[i]] * float64(inDims[srcAxis[i]]-1)
			}
		}
		aff[row][3] = t
	}
	out.Affine = aff

	var in [3]int
	for c := 0; c < v.Channels; c++ {
		for x := 0; x < outDims[0]; x++ {
			for y := 0; y < outDims[1]; y++ {
				for z := 0; z < outDims[2]; z++ {
					o := [3]int{x, y, z}
					for i := 0; i < 3; i++ {
						idx := o[i]
						if flip[i] {
							idx = outDims[i] - 1 - idx
						}
						in[srcAxis[i]] = idx
					}
					out.Set(c, x, y, z, v.At(c, in[0], in[1], in[2]))
				}
			}
		}
	}

	return out
}
