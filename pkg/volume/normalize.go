package volume

import (
	"gonum.org/v1/gonum/stat"
)

// ZScoreNormalize returns a volume whose intensities have zero mean and
// unit standard deviation per channel. Statistics are computed over the
// foreground only (voxels with a non-zero intensity), so the large
// zero-valued background of a skull-stripped scan does not skew them;
// background voxels stay at zero.
//
// A channel with zero variance is passed through unchanged.
func ZScoreNormalize(v *Volume) *Volume {
	out := v.Clone()
	size := v.X * v.Y * v.Z

	for c := 0; c < v.Channels; c++ {
		channel := v.Data[c*size : (c+1)*size]

		foreground := make([]float64, 0, len(channel))
		for _, val := range channel {
			if val != 0 {
				foreground = append(foreground, float64(val))
			}
		}
		if len(foreground) < 2 {
			continue
		}

		mean, std := stat.MeanStdDev(foreground, nil)
		if std == 0 {
			continue
		}

		dst := out.Data[c*size : (c+1)*size]
		for i, val := range channel {
			if val != 0 {
				dst[i] = float32((float64(val) - mean) / std)
			}
		}
	}

	return out
}
