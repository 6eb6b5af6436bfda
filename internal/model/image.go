package model

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrInvalidImage is returned for uploads that are not a decodable image.
var ErrInvalidImage = errors.New("invalid image")

// DecodeImage decodes JPEG, PNG, GIF, BMP, TIFF or WebP bytes.
func DecodeImage(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty file", ErrInvalidImage)
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, "", fmt.Errorf("%w: zero-sized image", ErrInvalidImage)
	}
	return img, format, nil
}

// interpolation maps PIL resample codes to resize filters.
func interpolation(code int) resize.InterpolationFunction {
	switch code {
	case 0:
		return resize.NearestNeighbor
	case 1:
		return resize.Lanczos3
	case 3:
		return resize.Bicubic
	default:
		// 2 is bilinear; box (4) and hamming (5) have no direct equivalent.
		return resize.Bilinear
	}
}

// CheckInputSize rejects images that will not match the input tensor. Only
// relevant when resizing is disabled.
func CheckInputSize(img image.Image, p Preprocessing) error {
	if p.Resize {
		return nil
	}
	b := img.Bounds()
	if b.Dx() != p.Width || b.Dy() != p.Height {
		return fmt.Errorf("%w: image is %dx%d, model expects %dx%d",
			ErrInvalidImage, b.Dx(), b.Dy(), p.Width, p.Height)
	}
	return nil
}

// Preprocess converts img to a normalized [1, 3, H, W] float32 tensor in CHW
// order. Alpha is dropped without premultiplying and grayscale input is
// replicated across channels.
func Preprocess(img image.Image, p Preprocessing) []float32 {
	src := img
	if p.Resize {
		b := img.Bounds()
		if b.Dx() != p.Width || b.Dy() != p.Height {
			src = resize.Resize(uint(p.Width), uint(p.Height), img, interpolation(p.Resample))
		}
	}

	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	plane := width * height
	out := make([]float32, 3*plane)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			nc := color.NRGBAModel.Convert(src.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			px := [3]float32{float32(nc.R), float32(nc.G), float32(nc.B)}

			idx := y*width + x
			for c := 0; c < 3; c++ {
				v := px[c]
				if p.Rescale {
					v *= p.RescaleFactor
				}
				if p.Normalize {
					v = (v - p.Mean[c]) / p.Std[c]
				}
				out[c*plane+idx] = v
			}
		}
	}
	return out
}
