package nifti

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"brainseg/pkg/volume"
)

func makeVolume(t *testing.T) *volume.Volume {
	t.Helper()
	v := volume.New(1, 5, 4, 3)
	for i := range v.Data {
		v.Data[i] = float32(i) - 7.5
	}
	v.Affine = volume.Affine{
		{2, 0, 0, -10},
		{0, 2, 0, -12},
		{0, 0, 3, 5},
		{0, 0, 0, 1},
	}
	return v
}

func TestRoundTripFloat32(t *testing.T) {
	for _, name := range []string{"image.nii", "image.nii.gz"} {
		t.Run(name, func(t *testing.T) {
			v := makeVolume(t)
			path := filepath.Join(t.TempDir(), name)

			if err := Write(path, v, DTFloat32); err != nil {
				t.Fatalf("failed to write: %v", err)
			}
			got, err := Read(path)
			if err != nil {
				t.Fatalf("failed to read: %v", err)
			}

			if got.Channels != 1 || got.X != 5 || got.Y != 4 || got.Z != 3 {
				t.Fatalf("unexpected shape (%d, %d, %d, %d)", got.Channels, got.X, got.Y, got.Z)
			}
			for i := range v.Data {
				if got.Data[i] != v.Data[i] {
					t.Fatalf("voxel %d: %v, want %v", i, got.Data[i], v.Data[i])
				}
			}
			for i := 0; i < 3; i++ {
				for j := 0; j < 4; j++ {
					if math.Abs(got.Affine[i][j]-v.Affine[i][j]) > 1e-5 {
						t.Fatalf("affine[%d][%d] = %v, want %v", i, j, got.Affine[i][j], v.Affine[i][j])
					}
				}
			}
		})
	}
}

func TestRoundTripLabelMap(t *testing.T) {
	v := volume.New(1, 4, 4, 4)
	for i := range v.Data {
		v.Data[i] = float32(i % 8)
	}
	path := filepath.Join(t.TempDir(), "labels_seg.nii.gz")

	if err := Write(path, v, DTUint8); err != nil {
		t.Fatalf("failed to write: %v", err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatalf("failed to read: %v", err)
	}
	for i := range v.Data {
		if got.Data[i] != v.Data[i] {
			t.Fatalf("label %d: %v, want %v", i, got.Data[i], v.Data[i])
		}
	}
}

func TestRoundTripMultiChannel(t *testing.T) {
	v := volume.New(3, 4, 3, 2)
	for i := range v.Data {
		v.Data[i] = float32(i)
	}
	path := filepath.Join(t.TempDir(), "multi.nii")

	if err := Write(path, v, DTFloat32); err != nil {
		t.Fatalf("failed to write: %v", err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatalf("failed to read: %v", err)
	}
	if got.Channels != 3 {
		t.Fatalf("expected 3 channels, got %d", got.Channels)
	}
	for i := range v.Data {
		if got.Data[i] != v.Data[i] {
			t.Fatalf("voxel %d: %v, want %v", i, got.Data[i], v.Data[i])
		}
	}
}

func TestReadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.nii")
	if err := os.WriteFile(path, make([]byte, 400), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Read(path); err == nil {
		t.Fatal("expected error reading a non-NIfTI file")
	}
}

func TestReadMissingFile(t *testing.T) {
	if _, err := Read(filepath.Join(t.TempDir(), "nope.nii")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
