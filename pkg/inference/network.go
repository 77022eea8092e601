// Package inference runs a pretrained segmentation ensemble over a volume,
// either in one whole-volume pass or, when device memory runs out, through
// the patch-based sliding-window fallback.
package inference

import (
	"errors"

	"brainseg/pkg/volume"
)

// ErrResourceExhausted reports that the compute device ran out of memory
// while executing a forward pass. The dispatcher treats it as the trigger
// for the patch-based fallback; every other error is fatal.
var ErrResourceExhausted = errors.New("compute device out of memory")

// Network is the pretrained segmentation model: an owned, mutable resource
// whose weights are replaced in full by each LoadCheckpoint call. It must
// never be shared across concurrent callers.
type Network interface {
	// LoadCheckpoint replaces the network weights with the checkpoint at
	// the given path.
	LoadCheckpoint(path string) error

	// Forward runs the loaded network on an input of shape (C, X, Y, Z)
	// and returns per-class logits of shape (classes, X, Y, Z).
	Forward(in *volume.Volume) (*volume.Volume, error)

	// Close releases the network's device resources.
	Close() error
}

// CheckpointStore resolves a fold index to a local checkpoint file,
// fetching it from the pretrained-artifact store if needed.
type CheckpointStore interface {
	Checkpoint(fold int) (string, error)
}
