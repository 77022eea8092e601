package sampler

import (
	"testing"

	"brainseg/pkg/volume"
)

// makeVolume creates a test volume whose voxels hold their own flat index,
// so misplaced patches are easy to spot.
func makeVolume(channels, x, y, z int) *volume.Volume {
	v := volume.New(channels, x, y, z)
	for i := range v.Data {
		v.Data[i] = float32(i)
	}
	return v
}

func TestGridStartsBoundaryShift(t *testing.T) {
	// A dimension not evenly divisible by the window must produce a final
	// start pulled back inside the bounds, not a zero-padded overflow.
	starts := gridStarts(130, 128, 128)
	if len(starts) != 2 {
		t.Fatalf("expected 2 starts for extent 130 window 128, got %v", starts)
	}
	if starts[0] != 0 || starts[1] != 2 {
		t.Errorf("expected starts [0 2], got %v", starts)
	}

	// Exact fit: a single position.
	starts = gridStarts(128, 128, 128)
	if len(starts) != 1 || starts[0] != 0 {
		t.Errorf("expected starts [0] for exact fit, got %v", starts)
	}

	// Evenly divisible: non-overlapping tiling.
	starts = gridStarts(256, 128, 128)
	if len(starts) != 2 || starts[0] != 0 || starts[1] != 128 {
		t.Errorf("expected starts [0 128], got %v", starts)
	}
}

func TestGridSamplerRejectsSmallVolume(t *testing.T) {
	v := volume.New(1, 64, 128, 128)
	if _, err := NewGridSampler(v, [3]int{128, 128, 128}, [3]int{0, 0, 0}); err == nil {
		t.Fatal("expected error for volume smaller than window, got nil")
	}
}

func TestGridSamplerRejectsDegenerateBorder(t *testing.T) {
	v := volume.New(1, 32, 32, 32)
	if _, err := NewGridSampler(v, [3]int{16, 16, 16}, [3]int{8, 8, 8}); err == nil {
		t.Fatal("expected error for border consuming the whole window, got nil")
	}
}

// TestGridSamplerFixture pins the exact patch sequence for the reference
// input: volume (1, 130, 130, 50) with window (128, 128, 48) and no border.
func TestGridSamplerFixture(t *testing.T) {
	v := volume.New(1, 130, 130, 50)
	s, err := NewGridSampler(v, [3]int{128, 128, 48}, [3]int{0, 0, 0})
	if err != nil {
		t.Fatalf("failed to create sampler: %v", err)
	}

	if got := s.NumPatches(); got != 8 {
		t.Fatalf("expected 8 patches, got %d", got)
	}

	want := []Location{
		{0, 0, 0, 128, 128, 48},
		{0, 0, 2, 128, 128, 50},
		{0, 2, 0, 128, 130, 48},
		{0, 2, 2, 128, 130, 50},
		{2, 0, 0, 130, 128, 48},
		{2, 0, 2, 130, 128, 50},
		{2, 2, 0, 130, 130, 48},
		{2, 2, 2, 130, 130, 50},
	}
	got := s.Locations()
	if len(got) != len(want) {
		t.Fatalf("expected %d locations, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("location %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

// TestGridSamplerCoverage verifies the tiling property: every voxel is
// covered by at least one core, and exactly once when the grid divides the
// volume evenly.
func TestGridSamplerCoverage(t *testing.T) {
	cases := []struct {
		name    string
		dims    [3]int
		window  [3]int
		border  [3]int
		exactly bool
	}{
		{"exact tiling", [3]int{64, 64, 32}, [3]int{32, 32, 16}, [3]int{0, 0, 0}, true},
		{"shifted last patch", [3]int{70, 64, 33}, [3]int{32, 32, 16}, [3]int{0, 0, 0}, false},
		{"single patch", [3]int{32, 32, 16}, [3]int{32, 32, 16}, [3]int{0, 0, 0}, true},
		{"with border", [3]int{64, 64, 32}, [3]int{32, 32, 16}, [3]int{4, 4, 2}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := volume.New(1, tc.dims[0], tc.dims[1], tc.dims[2])
			s, err := NewGridSampler(v, tc.window, tc.border)
			if err != nil {
				t.Fatalf("failed to create sampler: %v", err)
			}

			covered := make([]int, tc.dims[0]*tc.dims[1]*tc.dims[2])
			for _, loc := range s.Locations() {
				for x := loc.X0; x < loc.X1; x++ {
					for y := loc.Y0; y < loc.Y1; y++ {
						for z := loc.Z0; z < loc.Z1; z++ {
							covered[(x*tc.dims[1]+y)*tc.dims[2]+z]++
						}
					}
				}
			}

			for i, c := range covered {
				if c == 0 {
					t.Fatalf("voxel %d not covered by any core", i)
				}
				if tc.exactly && c != 1 {
					t.Fatalf("voxel %d covered %d times, expected exactly once", i, c)
				}
			}
		})
	}
}

func TestGridSamplerDeterministic(t *testing.T) {
	v := makeVolume(2, 40, 36, 20)
	window := [3]int{16, 16, 8}
	border := [3]int{0, 0, 0}

	s1, err := NewGridSampler(v, window, border)
	if err != nil {
		t.Fatalf("failed to create sampler: %v", err)
	}
	s2, err := NewGridSampler(v, window, border)
	if err != nil {
		t.Fatalf("failed to create sampler: %v", err)
	}

	locs1 := s1.Locations()
	locs2 := s2.Locations()
	for i := range locs1 {
		if locs1[i] != locs2[i] {
			t.Fatalf("location %d differs between samplers: %v vs %v", i, locs1[i], locs2[i])
		}
	}

	// Restartable: re-extracting the same index yields identical content.
	p1, err := s1.Patch(3)
	if err != nil {
		t.Fatalf("failed to extract patch: %v", err)
	}
	p2, err := s1.Patch(3)
	if err != nil {
		t.Fatalf("failed to extract patch: %v", err)
	}
	for i := range p1.Data.Data {
		if p1.Data.Data[i] != p2.Data.Data[i] {
			t.Fatal("re-extracted patch content differs")
		}
	}
}

func TestGridSamplerPatchContent(t *testing.T) {
	v := makeVolume(1, 20, 20, 10)
	s, err := NewGridSampler(v, [3]int{16, 16, 8}, [3]int{0, 0, 0})
	if err != nil {
		t.Fatalf("failed to create sampler: %v", err)
	}

	for i := 0; i < s.NumPatches(); i++ {
		p, err := s.Patch(i)
		if err != nil {
			t.Fatalf("failed to extract patch %d: %v", i, err)
		}
		if p.Data.X != 16 || p.Data.Y != 16 || p.Data.Z != 8 {
			t.Fatalf("patch %d has shape (%d, %d, %d), want (16, 16, 8)", i, p.Data.X, p.Data.Y, p.Data.Z)
		}

		// Spot-check the corner voxel against the source volume.
		if got, want := p.Data.At(0, 0, 0, 0), v.At(0, p.Start[0], p.Start[1], p.Start[2]); got != want {
			t.Errorf("patch %d corner = %v, want %v", i, got, want)
		}
	}
}
