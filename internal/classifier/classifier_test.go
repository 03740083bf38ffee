package classifier

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/example/mpox-check/internal/imageprocessor"
)

type stubClassifier struct {
	probs []float32
	err   error
	calls int
}

func (s *stubClassifier) Classify(ctx context.Context, tensor *imageprocessor.Tensor) ([]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.probs, nil
}

func validTensor() *imageprocessor.Tensor {
	return imageprocessor.NewTensor(1, imageprocessor.Height, imageprocessor.Width, imageprocessor.Channels)
}

func TestNewPredictionArgmax(t *testing.T) {
	cases := []struct {
		probs []float32
		want  Label
	}{
		{[]float32{0.9, 0.1}, LabelMpox},
		{[]float32{0.2, 0.8}, LabelNormal},
		{[]float32{0.5, 0.5}, LabelMpox},
		{[]float32{0, 0}, LabelMpox},
	}
	for _, tc := range cases {
		p, err := NewPrediction(tc.probs)
		if err != nil {
			t.Fatalf("%v: unexpected error: %v", tc.probs, err)
		}
		if p.Label != tc.want {
			t.Fatalf("%v: expected %s, got %s", tc.probs, tc.want, p.Label)
		}
	}
}

func TestNewPredictionCopiesProbabilities(t *testing.T) {
	probs := []float32{0.3, 0.7}
	p, err := NewPrediction(probs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	probs[0] = 1
	if p.Probabilities[0] != 0.3 {
		t.Fatal("prediction aliases the caller's slice")
	}
	if p.Probability(LabelNormal) != 0.7 || p.Probability(Label("Other")) != 0 {
		t.Fatalf("unexpected probability lookup: %+v", p)
	}
}

func TestNewPredictionRejectsMalformedOutput(t *testing.T) {
	for _, probs := range [][]float32{nil, {1}, {0.1, 0.2, 0.7}, {float32(math.NaN()), 0.5}, {float32(math.Inf(1)), 0}} {
		if _, err := NewPrediction(probs); !errors.Is(err, ErrModelUnavailable) {
			t.Fatalf("%v: expected ErrModelUnavailable, got %v", probs, err)
		}
	}
}

func TestPredictUsesClassifier(t *testing.T) {
	stub := &stubClassifier{probs: []float32{0.1, 0.9}}
	p, err := Predict(context.Background(), stub, validTensor())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Label != LabelNormal || stub.calls != 1 {
		t.Fatalf("unexpected prediction %+v after %d calls", p, stub.calls)
	}

	stub = &stubClassifier{err: errors.New("boom")}
	if _, err := Predict(context.Background(), stub, validTensor()); err == nil {
		t.Fatal("expected classifier error to propagate")
	}
}

func TestUnavailableAlwaysFails(t *testing.T) {
	cause := errors.New("file not found")
	for _, c := range []Classifier{Unavailable{}, Unavailable{Cause: cause}} {
		_, err := c.Classify(context.Background(), validTensor())
		if !errors.Is(err, ErrModelUnavailable) {
			t.Fatalf("expected ErrModelUnavailable, got %v", err)
		}
		if IsAvailable(c) {
			t.Fatal("expected unavailable classifier to report unavailable")
		}
	}
	if IsAvailable(nil) {
		t.Fatal("expected nil classifier to be unavailable")
	}
	if !IsAvailable(&stubClassifier{}) {
		t.Fatal("expected stub classifier to be available")
	}
}

func TestCheckInput(t *testing.T) {
	ctx := context.Background()
	if err := CheckInput(ctx, validTensor()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := CheckInput(ctx, nil); !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable for nil tensor, got %v", err)
	}
	if err := CheckInput(ctx, imageprocessor.NewTensor(1, 32, 32, 3)); !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable for wrong shape, got %v", err)
	}
}

func TestCheckInputRejectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := CheckInput(ctx, validTensor())
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected the cancellation to stay visible, got %v", err)
	}
}
