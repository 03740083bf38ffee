// Package classifier is the boundary to the pre-trained binary image model.
// The model is opaque: it takes a [1,224,224,3] tensor and returns two class
// probabilities, index 0 for Mpox and index 1 for Normal.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/example/mpox-check/internal/imageprocessor"
)

// Label is a predicted class.
type Label string

const (
	LabelMpox   Label = "Mpox"
	LabelNormal Label = "Normal"
)

// Labels maps output indices to labels.
var Labels = []Label{LabelMpox, LabelNormal}

// ErrModelUnavailable indicates the model could not be loaded or could not
// produce a prediction.
var ErrModelUnavailable = errors.New("model unavailable")

// Classifier runs inference on a preprocessed tensor. Implementations are
// loaded once at startup and shared across sessions.
type Classifier interface {
	Classify(ctx context.Context, tensor *imageprocessor.Tensor) ([]float32, error)
}

// Prediction is the outcome of one classification.
type Prediction struct {
	Label         Label     `json:"label"`
	Probabilities []float32 `json:"probabilities"`
}

// Probability returns the probability assigned to label, or 0 if unknown.
func (p Prediction) Probability(label Label) float32 {
	for i, l := range Labels {
		if l == label && i < len(p.Probabilities) {
			return p.Probabilities[i]
		}
	}
	return 0
}

// NewPrediction picks the argmax label. Ties resolve to the lower index.
func NewPrediction(probs []float32) (Prediction, error) {
	if len(probs) != len(Labels) {
		return Prediction{}, fmt.Errorf("%w: expected %d outputs, got %d", ErrModelUnavailable, len(Labels), len(probs))
	}
	best := 0
	for i, p := range probs {
		if math.IsNaN(float64(p)) || math.IsInf(float64(p), 0) {
			return Prediction{}, fmt.Errorf("%w: non-finite output %v at index %d", ErrModelUnavailable, p, i)
		}
		if p > probs[best] {
			best = i
		}
	}
	return Prediction{
		Label:         Labels[best],
		Probabilities: append([]float32(nil), probs...),
	}, nil
}

// Predict classifies the tensor and resolves the label.
func Predict(ctx context.Context, c Classifier, tensor *imageprocessor.Tensor) (Prediction, error) {
	probs, err := c.Classify(ctx, tensor)
	if err != nil {
		return Prediction{}, err
	}
	return NewPrediction(probs)
}

// Unavailable is the classifier installed when the model failed to load.
// Every call fails with ErrModelUnavailable.
type Unavailable struct {
	Cause error
}

func (u Unavailable) Classify(context.Context, *imageprocessor.Tensor) ([]float32, error) {
	if u.Cause == nil {
		return nil, ErrModelUnavailable
	}
	return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, u.Cause)
}

// IsAvailable reports whether c is backed by a loaded model.
func IsAvailable(c Classifier) bool {
	switch c.(type) {
	case nil, Unavailable, *Unavailable:
		return false
	}
	return true
}

// CheckInput verifies tensor has the [1,224,224,3] shape the model expects
// and that ctx is still live. Failures wrap ErrModelUnavailable.
func CheckInput(ctx context.Context, tensor *imageprocessor.Tensor) error {
	want := [4]int{1, imageprocessor.Height, imageprocessor.Width, imageprocessor.Channels}
	if tensor == nil || tensor.Shape != want || len(tensor.Data) != tensor.Len() {
		return fmt.Errorf("%w: invalid input tensor, want shape %v", ErrModelUnavailable, want)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}
	return nil
}
