package inference

import (
	"fmt"
	"math"

	"brainseg/pkg/volume"
)

// Ensemble runs an input through each of K pretrained checkpoints ("folds")
// sequentially, summing the per-class softmax distributions, and reduces the
// sum to a hard label per voxel via arg-max. The sum is not divided by K:
// arg-max is invariant to positive scaling, so averaging would change
// nothing.
type Ensemble struct {
	net     Network
	store   CheckpointStore
	folds   int
	classes int
}

// NewEnsemble wires an ensemble over the given network and checkpoint
// store. Folds are numbered 1..folds and always executed in that order.
func NewEnsemble(net Network, store CheckpointStore, folds, classes int) (*Ensemble, error) {
	if folds < 1 {
		return nil, fmt.Errorf("ensemble needs at least one fold, got %d", folds)
	}
	if classes < 2 {
		return nil, fmt.Errorf("ensemble needs at least two classes, got %d", classes)
	}
	return &Ensemble{net: net, store: store, folds: folds, classes: classes}, nil
}

// Classes returns the number of output classes.
func (e *Ensemble) Classes() int { return e.classes }

// Predict runs the input tensor (a patch or a whole volume) through every
// fold and returns the arg-max label map: a single-channel volume whose
// voxel values are class indices. The class-probability accumulator is
// owned by this call alone and reset on entry.
func (e *Ensemble) Predict(in *volume.Volume) (*volume.Volume, error) {
	acc := volume.New(e.classes, in.X, in.Y, in.Z)
	acc.Affine = in.Affine

	for fold := 1; fold <= e.folds; fold++ {
		path, err := e.store.Checkpoint(fold)
		if err != nil {
			return nil, err
		}
		if err := e.net.LoadCheckpoint(path); err != nil {
			return nil, fmt.Errorf("failed to load fold %d: %w", fold, err)
		}

		logits, err := e.net.Forward(in)
		if err != nil {
			return nil, fmt.Errorf("fold %d forward pass: %w", fold, err)
		}
		if logits.Channels != e.classes || logits.X != in.X || logits.Y != in.Y || logits.Z != in.Z {
			return nil, fmt.Errorf("fold %d produced shape (%d, %d, %d, %d), want (%d, %d, %d, %d)",
				fold, logits.Channels, logits.X, logits.Y, logits.Z, e.classes, in.X, in.Y, in.Z)
		}

		accumulateSoftmax(acc, logits)
	}

	return argmax(acc), nil
}

// accumulateSoftmax adds the per-voxel softmax over the class axis of
// logits into acc.
func accumulateSoftmax(acc, logits *volume.Volume) {
	size := logits.X * logits.Y * logits.Z
	classes := logits.Channels

	for i := 0; i < size; i++ {
		// Shift by the max logit for numerical stability.
		maxLogit := float32(math.Inf(-1))
		for c := 0; c < classes; c++ {
			if v := logits.Data[c*size+i]; v > maxLogit {
				maxLogit = v
			}
		}

		var sum float64
		for c := 0; c < classes; c++ {
			sum += math.Exp(float64(logits.Data[c*size+i] - maxLogit))
		}
		for c := 0; c < classes; c++ {
			p := math.Exp(float64(logits.Data[c*size+i]-maxLogit)) / sum
			acc.Data[c*size+i] += float32(p)
		}
	}
}

// argmax reduces a class-probability volume to a single-channel label map.
// Ties resolve to the lowest class index.
func argmax(acc *volume.Volume) *volume.Volume {
	size := acc.X * acc.Y * acc.Z
	out := volume.New(1, acc.X, acc.Y, acc.Z)
	out.Affine = acc.Affine

	for i := 0; i < size; i++ {
		best := 0
		bestVal := acc.Data[i]
		for c := 1; c < acc.Channels; c++ {
			if v := acc.Data[c*size+i]; v > bestVal {
				best = c
				bestVal = v
			}
		}
		out.Data[i] = float32(best)
	}
	return out
}
