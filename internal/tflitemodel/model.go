// Package tflitemodel runs the classifier in-process with TensorFlow Lite.
package tflitemodel

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mattn/go-tflite"
	"go.uber.org/zap"

	"github.com/example/mpox-check/internal/classifier"
	"github.com/example/mpox-check/internal/imageprocessor"
)

// Model is a loaded .tflite classifier. The interpreter owns mutable
// input/output buffers, so invocations are serialised.
type Model struct {
	mu          sync.Mutex
	model       *tflite.Model
	options     *tflite.InterpreterOptions
	interpreter *tflite.Interpreter
	logger      *zap.Logger
}

var _ classifier.Classifier = (*Model)(nil)

// Load reads a .tflite model file and checks that its input and output
// tensors match the classifier contract.
func Load(path string, threads int, logger *zap.Logger) (*Model, error) {
	model := tflite.NewModelFromFile(path)
	if model == nil {
		return nil, fmt.Errorf("load model %s: cannot read or parse file", path)
	}

	options := tflite.NewInterpreterOptions()
	if threads > 0 {
		options.SetNumThread(threads)
	}
	options.SetErrorReporter(func(msg string, _ interface{}) {
		logger.Warn("tflite", zap.String("message", msg))
	}, nil)

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		options.Delete()
		model.Delete()
		return nil, fmt.Errorf("load model %s: cannot create interpreter", path)
	}

	t := &Model{model: model, options: options, interpreter: interpreter, logger: logger}
	if err := t.init(); err != nil {
		t.Close()
		return nil, fmt.Errorf("load model %s: %w", path, err)
	}
	return t, nil
}

func (t *Model) init() error {
	if status := t.interpreter.AllocateTensors(); status != tflite.OK {
		return fmt.Errorf("allocate tensors: status %v", status)
	}

	input := t.interpreter.GetInputTensor(0)
	if input == nil || input.Type() != tflite.Float32 {
		return errors.New("input tensor 0 must be float32")
	}
	want := []int{1, imageprocessor.Height, imageprocessor.Width, imageprocessor.Channels}
	if input.NumDims() != len(want) {
		return fmt.Errorf("input tensor has %d dims, want %d", input.NumDims(), len(want))
	}
	for i, d := range want {
		if input.Dim(i) != d {
			return fmt.Errorf("input dim %d is %d, want %d", i, input.Dim(i), d)
		}
	}

	output := t.interpreter.GetOutputTensor(0)
	if output == nil || output.Type() != tflite.Float32 {
		return errors.New("output tensor 0 must be float32")
	}
	if n := len(output.Float32s()); n != len(classifier.Labels) {
		return fmt.Errorf("output tensor has %d values, want %d", n, len(classifier.Labels))
	}
	return nil
}

// Classify copies the tensor into the interpreter, invokes it and returns a
// copy of the output probabilities.
func (t *Model) Classify(ctx context.Context, tensor *imageprocessor.Tensor) ([]float32, error) {
	if err := classifier.CheckInput(ctx, tensor); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.interpreter == nil {
		return nil, fmt.Errorf("%w: interpreter closed", classifier.ErrModelUnavailable)
	}
	copy(t.interpreter.GetInputTensor(0).Float32s(), tensor.Data)
	if status := t.interpreter.Invoke(); status != tflite.OK {
		return nil, fmt.Errorf("%w: invoke status %v", classifier.ErrModelUnavailable, status)
	}
	return append([]float32(nil), t.interpreter.GetOutputTensor(0).Float32s()...), nil
}

// Close releases the interpreter and model.
func (t *Model) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.interpreter != nil {
		t.interpreter.Delete()
		t.interpreter = nil
	}
	if t.options != nil {
		t.options.Delete()
		t.options = nil
	}
	if t.model != nil {
		t.model.Delete()
		t.model = nil
	}
	return nil
}
