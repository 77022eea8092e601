package inference

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brainseg/pkg/volume"
)

// oomNetwork signals resource exhaustion for any input larger than the
// window, succeeding on window-sized patches. This mirrors a device that
// can fit one patch but not the whole volume.
type oomNetwork struct {
	fakeNetwork
	window      [3]int
	wholeVolume int
	patchVolume int
}

func newOOMNetwork(classes, winner int, window [3]int) *oomNetwork {
	n := &oomNetwork{window: window}
	n.logits = func(_ string, in *volume.Volume) (*volume.Volume, error) {
		if in.X > window[0] || in.Y > window[1] || in.Z > window[2] {
			n.wholeVolume++
			return nil, fmt.Errorf("%w: device allocation of %d voxels failed", ErrResourceExhausted, in.X*in.Y*in.Z)
		}
		n.patchVolume++
		return constantLogits(classes, winner)("", in)
	}
	return n
}

func TestDispatcherFallsBackOnResourceExhaustion(t *testing.T) {
	const folds = 2
	window := [3]int{16, 16, 8}
	net := newOOMNetwork(3, 2, window)
	store := &fakeStore{}

	e, err := NewEnsemble(&net.fakeNetwork, store, folds, 3)
	require.NoError(t, err)
	d := NewDispatcher(e, window, [3]int{0, 0, 0})

	in := volume.New(1, 20, 20, 10)
	labels, err := d.Run(in)
	require.NoError(t, err)

	// Whole-volume inference was attempted exactly once before the
	// transition; there is no way back.
	assert.Equal(t, 1, net.wholeVolume, "whole-volume attempts")

	// 2x2x2 patch grid, each patch run through every fold.
	assert.Equal(t, 8*folds, net.patchVolume, "patch forward passes")

	// The assembled output covers the full (padded) volume.
	require.Equal(t, 1, labels.Channels)
	require.Equal(t, [3]int{20, 20, 10}, [3]int{labels.X, labels.Y, labels.Z})
	for i, val := range labels.Data {
		require.Equalf(t, float32(2), val, "voxel %d not covered", i)
	}
}

func TestDispatcherWholeVolumeFastPath(t *testing.T) {
	window := [3]int{32, 32, 16}
	net := &fakeNetwork{logits: constantLogits(3, 1)}
	e, err := NewEnsemble(net, &fakeStore{}, 1, 3)
	require.NoError(t, err)
	d := NewDispatcher(e, window, [3]int{0, 0, 0})

	labels, err := d.Run(volume.New(1, 40, 40, 20))
	require.NoError(t, err)
	assert.Equal(t, 40, labels.X)
	// One forward pass: no patching happened.
	assert.Len(t, net.events, 2)
}

func TestDispatcherPadsSmallVolume(t *testing.T) {
	window := [3]int{16, 16, 8}
	net := &fakeNetwork{logits: constantLogits(3, 1)}
	e, err := NewEnsemble(net, &fakeStore{}, 1, 3)
	require.NoError(t, err)
	d := NewDispatcher(e, window, [3]int{0, 0, 0})

	// Smaller than the window along every axis: padded up to it.
	labels, err := d.Run(volume.New(1, 10, 12, 5))
	require.NoError(t, err)
	assert.Equal(t, [3]int{16, 16, 8}, [3]int{labels.X, labels.Y, labels.Z})
}

func TestDispatcherPropagatesOtherErrors(t *testing.T) {
	broken := errors.New("model file corrupt")
	net := &fakeNetwork{logits: func(string, *volume.Volume) (*volume.Volume, error) {
		return nil, broken
	}}
	e, err := NewEnsemble(net, &fakeStore{}, 1, 3)
	require.NoError(t, err)
	d := NewDispatcher(e, [3]int{16, 16, 8}, [3]int{0, 0, 0})

	_, err = d.Run(volume.New(1, 20, 20, 10))
	require.Error(t, err)
	assert.ErrorIs(t, err, broken)
	// Exactly one forward attempt: no fallback for non-OOM failures.
	assert.Len(t, net.events, 2)
}

func TestDispatcherPatchPathExhaustionIsFatal(t *testing.T) {
	// Device too small even for a single patch.
	net := &fakeNetwork{logits: func(_ string, in *volume.Volume) (*volume.Volume, error) {
		return nil, fmt.Errorf("%w: allocation failed", ErrResourceExhausted)
	}}
	e, err := NewEnsemble(net, &fakeStore{}, 1, 3)
	require.NoError(t, err)
	d := NewDispatcher(e, [3]int{16, 16, 8}, [3]int{0, 0, 0})

	_, err = d.Run(volume.New(1, 20, 20, 10))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResourceExhausted)
}
