package nn

import (
	"captchanet/tensor"
)

// Module defines a single layer/unit in the network.
type Module interface {
	Forward(input *tensor.Tensor) (*tensor.Tensor, error)
	// Backward computes gradients and propagates them.
	// It takes the gradient of the loss with respect to the module's output,
	// and returns the gradient of the loss with respect to the module's input.
	Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error)
	// Update applies accumulated gradients with the given learning rate.
	// Parameter-free layers implement it as a no-op.
	Update(lr float64) error
}

// Trainable is implemented by layers whose forward pass differs between
// training and evaluation, such as dropout.
type Trainable interface {
	SetTraining(training bool)
}

// Sequential chains multiple Modules in order.
type Sequential struct {
	Layers []Module
}

// Forward applies each layer in sequence.
func (s *Sequential) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	var err error
	out := x
	for _, layer := range s.Layers {
		out, err = layer.Forward(out)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Backward applies Backward in reverse order.
func (s *Sequential) Backward(grad *tensor.Tensor) (*tensor.Tensor, error) {
	var err error
	out := grad
	for i := len(s.Layers) - 1; i >= 0; i-- {
		out, err = s.Layers[i].Backward(out)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Update applies gradients on every layer.
func (s *Sequential) Update(lr float64) error {
	for _, layer := range s.Layers {
		if err := layer.Update(lr); err != nil {
			return err
		}
	}
	return nil
}

// SetTraining propagates the training flag to every layer that cares.
func (s *Sequential) SetTraining(training bool) {
	for _, layer := range s.Layers {
		if t, ok := layer.(Trainable); ok {
			t.SetTraining(training)
		}
	}
}
