package layers

import (
	"fmt"

	"captchanet/tensor"
)

// MaxPool2D downsamples with non-overlapping p×p windows, keeping the
// maximum of each window. Trailing rows and columns that do not fill a
// window are dropped (floor division).
type MaxPool2D struct {
	poolSize int

	// Cached for backward pass
	lastShape []int
	argmax    []int // flat input index of each output maximum
}

func NewMaxPool2D(p int) *MaxPool2D {
	return &MaxPool2D{poolSize: p}
}

// GetOutputShape returns the output dimensions for given input dimensions.
func (m *MaxPool2D) GetOutputShape(inH, inW int) (outH, outW int) {
	return inH / m.poolSize, inW / m.poolSize
}

func (m *MaxPool2D) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	// Input: [C,H,W] or [B,C,H,W]
	shape := x.Shape
	var B, C, H, W int
	if len(shape) == 3 {
		B, C, H, W = 1, shape[0], shape[1], shape[2]
	} else if len(shape) == 4 {
		B, C, H, W = shape[0], shape[1], shape[2], shape[3]
	} else {
		return nil, fmt.Errorf("MaxPool2D expects 3D or 4D input, got shape %v", x.Shape)
	}
	p := m.poolSize
	outH, outW := H/p, W/p
	if outH == 0 || outW == 0 {
		return nil, fmt.Errorf("input %dx%d too small for %dx%d pooling", H, W, p, p)
	}
	outShape := []int{C, outH, outW}
	if len(shape) == 4 {
		outShape = []int{B, C, outH, outW}
	}
	out := tensor.New(outShape...)
	m.lastShape = append([]int(nil), shape...)
	m.argmax = make([]int, len(out.Data))

	outIdx := 0
	for b := 0; b < B; b++ {
		for c := 0; c < C; c++ {
			for oh := 0; oh < outH; oh++ {
				for ow := 0; ow < outW; ow++ {
					// Start from the window's top-left element
					var bestIdx int
					if len(shape) == 4 {
						bestIdx = (((b*C+c)*H + oh*p) * W) + ow*p
					} else {
						bestIdx = ((c*H + oh*p) * W) + ow*p
					}
					best := x.Data[bestIdx]
					for ph := 0; ph < p; ph++ {
						for pw := 0; pw < p; pw++ {
							ih := oh*p + ph
							jw := ow*p + pw
							var idx int
							if len(shape) == 4 {
								idx = (((b*C+c)*H+ih)*W + jw)
							} else {
								idx = ((c*H+ih)*W + jw)
							}
							if x.Data[idx] > best {
								best = x.Data[idx]
								bestIdx = idx
							}
						}
					}
					out.Data[outIdx] = best
					m.argmax[outIdx] = bestIdx
					outIdx++
				}
			}
		}
	}
	return out, nil
}

// Backward routes each output gradient to the input position that won
// the max; all other positions get zero.
func (m *MaxPool2D) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	if m.lastShape == nil {
		return nil, fmt.Errorf("no cached input for backward pass")
	}
	if len(gradOut.Data) != len(m.argmax) {
		return nil, fmt.Errorf("gradient length %d does not match pooled output length %d", len(gradOut.Data), len(m.argmax))
	}
	gradIn := tensor.New(m.lastShape...)
	for i, idx := range m.argmax {
		gradIn.Data[idx] += gradOut.Data[i]
	}
	return gradIn, nil
}

func (m *MaxPool2D) Update(float64) error { return nil }

func (m *MaxPool2D) Tag() string {
	return fmt.Sprintf("MaxPool2D_%d", m.poolSize)
}
