// Package imageprocessor accepts uploaded symptom photos and turns them into
// the fixed input tensor the classifier was trained on.
package imageprocessor

import "errors"

// Input geometry expected by the classifier.
const (
	Width    = 224
	Height   = 224
	Channels = 3
)

// MaxPixels bounds the decoded source image to keep hostile uploads from
// exhausting memory.
const MaxPixels = 40_000_000

var (
	// ErrImageDecode indicates the bytes are not a decodable image.
	ErrImageDecode = errors.New("image decode failed")
	// ErrPreprocessing indicates a failure after decoding (conversion, resize).
	ErrPreprocessing = errors.New("image preprocessing failed")
	// ErrUnsupportedFormat indicates an upload that is not jpg, jpeg or png.
	ErrUnsupportedFormat = errors.New("unsupported image format")
	// ErrEmptyUpload indicates an upload without content.
	ErrEmptyUpload = errors.New("empty upload")
)

// Tensor is a dense float32 NHWC tensor.
type Tensor struct {
	Shape [4]int
	Data  []float32
}

// NewTensor allocates a zeroed tensor of the given NHWC shape.
func NewTensor(batch, height, width, channels int) *Tensor {
	return &Tensor{
		Shape: [4]int{batch, height, width, channels},
		Data:  make([]float32, batch*height*width*channels),
	}
}

// Len is the number of elements.
func (t *Tensor) Len() int {
	return t.Shape[0] * t.Shape[1] * t.Shape[2] * t.Shape[3]
}

// At returns the value at batch b, row y, column x, channel c.
func (t *Tensor) At(b, y, x, c int) float32 {
	return t.Data[t.offset(b, y, x, c)]
}

func (t *Tensor) set(b, y, x, c int, v float32) {
	t.Data[t.offset(b, y, x, c)] = v
}

func (t *Tensor) offset(b, y, x, c int) int {
	return ((b*t.Shape[1]+y)*t.Shape[2]+x)*t.Shape[3] + c
}
