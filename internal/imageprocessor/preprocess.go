package imageprocessor

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
)

// Preprocess decodes raw image bytes and produces a [1,224,224,3] tensor with
// values in [0,1]. Undecodable input yields ErrImageDecode; any later failure
// yields ErrPreprocessing.
func Preprocess(raw []byte) (tensor *Tensor, err error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: empty image %dx%d", ErrPreprocessing, cfg.Width, cfg.Height)
	}
	if cfg.Width*cfg.Height > MaxPixels {
		return nil, fmt.Errorf("%w: image %dx%d exceeds %d pixels", ErrPreprocessing, cfg.Width, cfg.Height, MaxPixels)
	}

	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}

	defer func() {
		if r := recover(); r != nil {
			tensor = nil
			err = fmt.Errorf("%w: %v", ErrPreprocessing, r)
		}
	}()

	resized := resize.Resize(Width, Height, toOpaqueRGB(src), resize.Bicubic)
	if b := resized.Bounds(); b.Dx() != Width || b.Dy() != Height {
		return nil, fmt.Errorf("%w: resize produced %dx%d", ErrPreprocessing, b.Dx(), b.Dy())
	}
	return toTensor(resized), nil
}

// toOpaqueRGB drops the alpha channel without compositing: each pixel keeps
// its straight (non-premultiplied) colour and becomes fully opaque. Greyscale
// and paletted images expand to three equal channels.
func toOpaqueRGB(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(src.At(x, y)).(color.NRGBA)
			dst.SetRGBA(x-b.Min.X, y-b.Min.Y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff})
		}
	}
	return dst
}

func toTensor(img image.Image) *Tensor {
	t := NewTensor(1, Height, Width, Channels)
	b := img.Bounds()
	for y := 0; y < Height; y++ {
		for x := 0; x < Width; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			t.set(0, y, x, 0, float32(r>>8)/255)
			t.set(0, y, x, 1, float32(g>>8)/255)
			t.set(0, y, x, 2, float32(bl>>8)/255)
		}
	}
	return t
}
