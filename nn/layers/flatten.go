package layers

import (
	"fmt"

	"captchanet/tensor"
)

// Flatten reshapes conv activations [B, C, H, W] into the (features,
// batch) column layout consumed by Linear. A 3D input is treated as a
// batch of one. Backward restores the cached input shape.
type Flatten struct {
	lastShape []int
}

func NewFlatten() *Flatten { return &Flatten{} }

func (f *Flatten) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	switch len(x.Shape) {
	case 4:
		batch := x.Shape[0]
		features := x.Shape[1] * x.Shape[2] * x.Shape[3]
		f.lastShape = append([]int(nil), x.Shape...)
		out := tensor.New(features, batch)
		for b := 0; b < batch; b++ {
			for i := 0; i < features; i++ {
				out.Data[i*batch+b] = x.Data[b*features+i]
			}
		}
		return out, nil
	case 3:
		f.lastShape = append([]int(nil), x.Shape...)
		out := tensor.New(len(x.Data), 1)
		copy(out.Data, x.Data)
		return out, nil
	}
	return nil, fmt.Errorf("Flatten expects 3D or 4D input, got shape %v", x.Shape)
}

func (f *Flatten) Backward(g *tensor.Tensor) (*tensor.Tensor, error) {
	if f.lastShape == nil {
		return nil, fmt.Errorf("no cached input shape for backward pass")
	}
	out := tensor.New(f.lastShape...)
	if len(f.lastShape) == 4 {
		batch := f.lastShape[0]
		features := len(out.Data) / batch
		if len(g.Shape) != 2 || g.Shape[0] != features || g.Shape[1] != batch {
			return nil, fmt.Errorf("gradient shape %v does not match flattened (%d, %d)", g.Shape, features, batch)
		}
		for b := 0; b < batch; b++ {
			for i := 0; i < features; i++ {
				out.Data[b*features+i] = g.Data[i*batch+b]
			}
		}
		return out, nil
	}
	if len(g.Data) != len(out.Data) {
		return nil, fmt.Errorf("gradient length %d does not match input length %d", len(g.Data), len(out.Data))
	}
	copy(out.Data, g.Data)
	return out, nil
}

func (f *Flatten) Update(float64) error { return nil }

func (f *Flatten) Tag() string { return "Flatten" }
