package layers

import (
	"fmt"

	"captchanet/tensor"
)

// Linear is a fully-connected layer. Inputs are column-major: a batch of
// n vectors arrives as an (inDim, n) tensor, one sample per column.
type Linear struct {
	W, B *tensor.Tensor // W: [outDim, inDim], B: [outDim]

	// Cached input for backward pass
	lastInput *tensor.Tensor

	// Gradient storage
	gradW *tensor.Tensor
	gradB *tensor.Tensor
}

// NewLinear creates a fully-connected layer mapping inDim features to
// outDim outputs.
func NewLinear(inDim, outDim int) *Linear {
	return &Linear{
		W:     tensor.New(outDim, inDim),
		B:     tensor.New(outDim),
		gradW: tensor.New(outDim, inDim),
		gradB: tensor.New(outDim),
	}
}

// Forward computes W*x + B. A 1-D input is treated as (inDim, 1).
func (l *Linear) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) == 1 {
		// x is a vector, treat as (inDim, 1)
		x = &tensor.Tensor{Data: x.Data, Shape: []int{x.Shape[0], 1}}
	}
	if len(l.W.Shape) != 2 || len(x.Shape) != 2 {
		return nil, fmt.Errorf("expected 2D weights and 2D input, got %v and %v", l.W.Shape, x.Shape)
	}

	// Cache input for backward
	l.lastInput = x.Clone()

	wx, err := tensor.MatMul(l.W, x)
	if err != nil {
		return nil, err
	}
	// wx is (outDim, batchSize); broadcast bias across batch columns
	for i := 0; i < wx.Shape[0]; i++ {
		for j := 0; j < wx.Shape[1]; j++ {
			wx.Data[i*wx.Shape[1]+j] += l.B.Data[i]
		}
	}
	return wx, nil
}

// Backward accumulates parameter gradients and returns the input
// gradient W^T * gradOut. gradOut is (outDim, batchSize).
func (l *Linear) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	inDim, outDim := l.W.Shape[1], l.W.Shape[0]
	input := l.lastInput
	if input == nil {
		return nil, fmt.Errorf("no cached input for backward pass")
	}
	if len(gradOut.Shape) == 1 {
		gradOut = &tensor.Tensor{Data: gradOut.Data, Shape: []int{gradOut.Shape[0], 1}}
	}
	if len(gradOut.Shape) != 2 || gradOut.Shape[0] != outDim || gradOut.Shape[1] != input.Shape[1] {
		return nil, fmt.Errorf("gradOut shape %v does not match output (%d, %d)", gradOut.Shape, outDim, input.Shape[1])
	}

	batchSize := input.Shape[1]
	l.gradW = tensor.New(outDim, inDim)
	l.gradB = tensor.New(outDim)
	gradIn := tensor.New(inDim, batchSize)

	for b := 0; b < batchSize; b++ {
		for j := 0; j < outDim; j++ {
			g := gradOut.Data[j*batchSize+b]
			l.gradB.Data[j] += g
			for i := 0; i < inDim; i++ {
				l.gradW.Data[j*inDim+i] += g * input.Data[i*batchSize+b]
			}
		}
	}

	// dL/dx = W^T * gradOut, for each sample
	for b := 0; b < batchSize; b++ {
		for i := 0; i < inDim; i++ {
			val := 0.0
			for j := 0; j < outDim; j++ {
				val += l.W.Data[j*inDim+i] * gradOut.Data[j*batchSize+b]
			}
			gradIn.Data[i*batchSize+b] = val
		}
	}
	return gradIn, nil
}

// Update applies SGD to weights and bias.
func (l *Linear) Update(lr float64) error {
	inDim, outDim := l.W.Shape[1], l.W.Shape[0]
	for j := 0; j < outDim; j++ {
		for i := 0; i < inDim; i++ {
			l.W.Data[j*inDim+i] -= lr * l.gradW.Data[j*inDim+i]
		}
	}
	for j := 0; j < outDim; j++ {
		l.B.Data[j] -= lr * l.gradB.Data[j]
	}
	return nil
}

func (l *Linear) Tag() string {
	inDim := l.W.Shape[1]
	outDim := l.W.Shape[0]
	return fmt.Sprintf("Linear_%d_%d", inDim, outDim)
}
