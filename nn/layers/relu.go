package layers

import (
	"fmt"

	"captchanet/tensor"
)

// ReLU applies max(0, x) elementwise.
type ReLU struct {
	// Cached input for backward pass
	lastInput *tensor.Tensor
}

func NewReLU() *ReLU { return &ReLU{} }

func (a *ReLU) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	// Cache input for backward
	a.lastInput = x.Clone()
	return tensor.ReluPlain(x), nil
}

func (a *ReLU) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	input := a.lastInput
	if input == nil {
		return nil, fmt.Errorf("no cached input for backward pass")
	}
	if len(gradOut.Data) != len(input.Data) {
		return nil, fmt.Errorf("gradient length %d does not match cached input length %d", len(gradOut.Data), len(input.Data))
	}
	gradIn := tensor.New(input.Shape...)
	for i := range gradIn.Data {
		deriv := 0.0
		if input.Data[i] > 0 {
			deriv = 1.0
		}
		gradIn.Data[i] = gradOut.Data[i] * deriv
	}
	return gradIn, nil
}

func (a *ReLU) Update(float64) error { return nil }

func (a *ReLU) Tag() string { return "ReLU" }
