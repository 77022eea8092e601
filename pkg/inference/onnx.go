package inference

import (
	"fmt"
	"strings"

	ort "github.com/yalue/onnxruntime_go"

	"brainseg/pkg/volume"
)

// ONNXNetwork runs the pretrained model through onnxruntime. Each fold is
// an .onnx file; LoadCheckpoint drops the previous session before opening
// the next, so exactly one set of weights is resident at a time. Sessions
// use fixed-shape input/output tensors which are rebuilt whenever the
// input shape changes (the whole-volume and patch paths use different
// shapes).
type ONNXNetwork struct {
	classes    int
	inputName  string
	outputName string

	checkpoint string
	session    *ort.AdvancedSession
	input      *ort.Tensor[float32]
	output     *ort.Tensor[float32]
	shape      [4]int
}

// NewONNXNetwork initializes the onnxruntime environment and returns a
// network producing the given number of output classes. The environment is
// shared process-wide; Close releases it.
func NewONNXNetwork(classes int, inputName, outputName string) (*ONNXNetwork, error) {
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}
	return &ONNXNetwork{
		classes:    classes,
		inputName:  inputName,
		outputName: outputName,
	}, nil
}

// LoadCheckpoint replaces the network weights with the checkpoint at path.
// The session itself is built lazily on the next Forward call, once the
// input shape is known.
func (n *ONNXNetwork) LoadCheckpoint(path string) error {
	if path == "" {
		return fmt.Errorf("empty checkpoint path")
	}
	n.destroySession()
	n.checkpoint = path
	return nil
}

// Forward runs the network on an input of shape (C, X, Y, Z), returning
// logits of shape (classes, X, Y, Z). Out-of-memory failures from the
// runtime are reported as ErrResourceExhausted so the dispatcher can fall
// back to patch-based inference.
func (n *ONNXNetwork) Forward(in *volume.Volume) (*volume.Volume, error) {
	if n.checkpoint == "" {
		return nil, fmt.Errorf("no checkpoint loaded")
	}

	shape := [4]int{in.Channels, in.X, in.Y, in.Z}
	if n.session == nil || shape != n.shape {
		if err := n.buildSession(shape); err != nil {
			return nil, err
		}
	}

	copy(n.input.GetData(), in.Data)
	if err := n.session.Run(); err != nil {
		return nil, classifyRunError(err)
	}

	out := volume.New(n.classes, in.X, in.Y, in.Z)
	out.Affine = in.Affine
	copy(out.Data, n.output.GetData())
	return out, nil
}

// buildSession creates the session and its fixed-shape tensors for the
// current checkpoint. The model takes NCDHW input with batch size 1.
func (n *ONNXNetwork) buildSession(shape [4]int) error {
	n.destroySession()

	inShape := ort.NewShape(1, int64(shape[0]), int64(shape[1]), int64(shape[2]), int64(shape[3]))
	outShape := ort.NewShape(1, int64(n.classes), int64(shape[1]), int64(shape[2]), int64(shape[3]))

	input, err := ort.NewEmptyTensor[float32](inShape)
	if err != nil {
		return classifyRunError(fmt.Errorf("failed to create input tensor: %w", err))
	}
	output, err := ort.NewEmptyTensor[float32](outShape)
	if err != nil {
		input.Destroy()
		return classifyRunError(fmt.Errorf("failed to create output tensor: %w", err))
	}

	session, err := ort.NewAdvancedSession(n.checkpoint,
		[]string{n.inputName}, []string{n.outputName},
		[]ort.ArbitraryTensor{input}, []ort.ArbitraryTensor{output},
		nil)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return fmt.Errorf("failed to load checkpoint %s: %w", n.checkpoint, err)
	}

	n.session = session
	n.input = input
	n.output = output
	n.shape = shape
	return nil
}

func (n *ONNXNetwork) destroySession() {
	if n.input != nil {
		n.input.Destroy()
		n.input = nil
	}
	if n.output != nil {
		n.output.Destroy()
		n.output = nil
	}
	if n.session != nil {
		n.session.Destroy()
		n.session = nil
	}
}

// Close releases the session and the shared runtime environment.
func (n *ONNXNetwork) Close() error {
	n.destroySession()
	if ort.IsInitialized() {
		return ort.DestroyEnvironment()
	}
	return nil
}

// classifyRunError maps runtime allocation failures onto
// ErrResourceExhausted, leaving everything else untouched.
func classifyRunError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "out of memory") ||
		strings.Contains(msg, "bad_alloc") ||
		strings.Contains(msg, "failed to allocate") ||
		strings.Contains(msg, "oom") {
		return fmt.Errorf("%w: %v", ErrResourceExhausted, err)
	}
	return err
}
