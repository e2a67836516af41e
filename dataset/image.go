package dataset

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"golang.org/x/image/draw"

	"captchanet/tensor"
)

// decodeToTensor reads one image file, resizes it to width x height
// with bilinear interpolation and writes its normalized RGB values
// into row b of the NHWC tensor dst.
func decodeToTensor(path string, height, width int, dst *tensor.Tensor, b int) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return err
	}

	resized := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(resized, resized.Bounds(), src, src.Bounds(), draw.Src, nil)

	base := b * height * width * 3
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, bl, _ := resized.At(x, y).RGBA()
			idx := base + (y*width+x)*3
			dst.Data[idx] = float64(r>>8) / 255.0
			dst.Data[idx+1] = float64(g>>8) / 255.0
			dst.Data[idx+2] = float64(bl>>8) / 255.0
		}
	}
	return nil
}

// LoadImage prepares one image for prediction: decode, resize to
// (width, height), normalize RGB to [0,1]. Returns a
// [1, height, width, 3] tensor.
func LoadImage(path string, height, width int) (*tensor.Tensor, error) {
	if height <= 0 || width <= 0 {
		return nil, fmt.Errorf("image dimensions must be positive, got %dx%d", height, width)
	}
	t := tensor.New(1, height, width, 3)
	if err := decodeToTensor(path, height, width, t, 0); err != nil {
		return nil, fmt.Errorf("cannot load image %s: %w", path, err)
	}
	return t, nil
}
