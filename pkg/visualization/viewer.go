// Package visualization exports 2D slices of a segmentation label map as
// images for quick visual quality control of a run.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"

	"brainseg/pkg/volume"
)

// Viewer renders slices of a single-channel label volume. Class indices
// are spread over a gray ramp so every class is distinguishable regardless
// of the class count.
type Viewer struct {
	labels  *volume.Volume
	classes int
}

// NewViewer creates a viewer over a label map with the given class count.
func NewViewer(labels *volume.Volume, classes int) *Viewer {
	if classes < 2 {
		classes = 2
	}
	return &Viewer{labels: labels, classes: classes}
}

// gray maps a class index onto the 16-bit gray ramp.
func (v *Viewer) gray(class float32) color.Gray16 {
	c := int(class)
	if c < 0 {
		c = 0
	}
	if c >= v.classes {
		c = v.classes - 1
	}
	return color.Gray16{Y: uint16(c * 65535 / (v.classes - 1))}
}

// ExtractSlice renders the 2D slice at the given position along the
// specified axis ("x", "y" or "z").
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}

	l := v.labels
	switch axis {
	case "x", "X":
		if position >= l.X {
			return nil, fmt.Errorf("position %d exceeds width %d", position, l.X)
		}
		img := image.NewGray16(image.Rect(0, 0, l.Y, l.Z))
		for y := 0; y < l.Y; y++ {
			for z := 0; z < l.Z; z++ {
				img.SetGray16(y, z, v.gray(l.At(0, position, y, z)))
			}
		}
		return img, nil

	case "y", "Y":
		if position >= l.Y {
			return nil, fmt.Errorf("position %d exceeds height %d", position, l.Y)
		}
		img := image.NewGray16(image.Rect(0, 0, l.X, l.Z))
		for x := 0; x < l.X; x++ {
			for z := 0; z < l.Z; z++ {
				img.SetGray16(x, z, v.gray(l.At(0, x, position, z)))
			}
		}
		return img, nil

	case "z", "Z":
		if position >= l.Z {
			return nil, fmt.Errorf("position %d exceeds depth %d", position, l.Z)
		}
		img := image.NewGray16(image.Rect(0, 0, l.X, l.Y))
		for x := 0; x < l.X; x++ {
			for y := 0; y < l.Y; y++ {
				img.SetGray16(x, y, v.gray(l.At(0, x, y, position)))
			}
		}
		return img, nil

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}
}

// SaveSlice saves a rendered slice as a JPEG image.
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}

// SaveSliceSequence renders and saves every slice along the specified axis.
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	var maxPos int
	switch axis {
	case "x", "X":
		maxPos = v.labels.X
	case "y", "Y":
		maxPos = v.labels.Y
	case "z", "Z":
		maxPos = v.labels.Z
	default:
		return fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.jpg", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}
