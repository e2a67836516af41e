package layers

import (
	"fmt"
	"math/rand"

	"captchanet/tensor"
)

// Dropout zeroes a random fraction of activations during training and
// scales the survivors by 1/(1-rate), so activation magnitudes match
// between training and evaluation. Outside training mode it is the
// identity.
type Dropout struct {
	rate     float64
	rng      *rand.Rand
	training bool

	// Cached mask for backward pass; nil when the last forward was a
	// pass-through
	mask *tensor.Tensor
}

// NewDropout creates a dropout layer. The rng drives mask sampling and
// must be non-nil when rate > 0.
func NewDropout(rate float64, rng *rand.Rand) *Dropout {
	return &Dropout{rate: rate, rng: rng}
}

// SetTraining switches between training (mask applied) and evaluation
// (identity) behavior.
func (d *Dropout) SetTraining(training bool) { d.training = training }

func (d *Dropout) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if !d.training || d.rate == 0 {
		d.mask = nil
		return x.Clone(), nil
	}
	if d.rng == nil {
		return nil, fmt.Errorf("dropout with rate %v requires a random source", d.rate)
	}
	keep := 1.0 - d.rate
	d.mask = tensor.New(x.Shape...)
	out := tensor.New(x.Shape...)
	for i := range x.Data {
		if d.rng.Float64() < keep {
			d.mask.Data[i] = 1.0 / keep
			out.Data[i] = x.Data[i] * d.mask.Data[i]
		}
	}
	return out, nil
}

func (d *Dropout) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	if d.mask == nil {
		// Pass-through forward means pass-through backward
		return gradOut, nil
	}
	if len(gradOut.Data) != len(d.mask.Data) {
		return nil, fmt.Errorf("gradient length %d does not match mask length %d", len(gradOut.Data), len(d.mask.Data))
	}
	gradIn := tensor.New(gradOut.Shape...)
	for i := range gradIn.Data {
		gradIn.Data[i] = gradOut.Data[i] * d.mask.Data[i]
	}
	return gradIn, nil
}

func (d *Dropout) Update(float64) error { return nil }

func (d *Dropout) Tag() string { return fmt.Sprintf("Dropout_%v", d.rate) }
