package volume

// CropOrPad returns a volume with spatial shape (tx, ty, tz), centered on
// the input: axes larger than the target are cropped symmetrically, axes
// smaller are zero-padded symmetrically. The affine is adjusted so every
// surviving voxel keeps its physical position, which lets the result be
// mapped back onto the original geometry later by plain resampling.
//
// A volume already at the target shape is returned as an unmodified copy.
func CropOrPad(v *Volume, tx, ty, tz int) *Volume {
	if v.X == tx && v.Y == ty && v.Z == tz {
		return v.Clone()
	}

	out := New(v.Channels, tx, ty, tz)

	// Offset of the output origin within the input grid. Negative when the
	// axis grows (padding), positive when it shrinks (cropping).
	ox := (v.X - tx) / 2
	oy := (v.Y - ty) / 2
	oz := (v.Z - tz) / 2
	out.Affine = v.Affine.Translated(ox, oy, oz)

	for c := 0; c < v.Channels; c++ {
		for x := 0; x < tx; x++ {
			sx := x + ox
			if sx < 0 || sx >= v.X {
				continue
			}
			for y := 0; y < ty; y++ {
				sy := y + oy
				if sy < 0 || sy >= v.Y {
					continue
				}
				// Copy the overlapping z-run in one go.
				z0 := 0
				if oz < 0 {
					z0 = -oz
				}
				sz0 := z0 + oz
				n := tz - z0
				if rem := v.Z - sz0; rem < n {
					n = rem
				}
				if n <= 0 {
					continue
				}
				src := v.Index(c, sx, sy, sz0)
				dst := out.Index(c, x, y, z0)
				copy(out.Data[dst:dst+n], v.Data[src:src+n])
			}
		}
	}

	return out
}

// PadToWindow grows each spatial axis to at least the given window size,
// leaving axes that already fit untouched: padded_dim = max(dim, window_dim).
// This guarantees the sampler precondition that the window never exceeds
// the volume along any axis.
func PadToWindow(v *Volume, window [3]int) *Volume {
	tx, ty, tz := v.X, v.Y, v.Z
	if window[0] > tx {
		tx = window[0]
	}
	if window[1] > ty {
		ty = window[1]
	}
	if window[2] > tz {
		tz = window[2]
	}
	return CropOrPad(v, tx, ty, tz)
}
