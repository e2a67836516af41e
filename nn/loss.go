package nn

import (
	"fmt"
	"math"

	"captchanet/tensor"
)

// CrossEntropyLoss pairs column-major class probabilities (classes,
// batch) with row-major one-hot labels (batch, classes), the layouts
// produced by Linear and the data provider respectively.
type CrossEntropyLoss struct{}

// Forward returns the cross-entropy averaged over the batch.
// Probabilities are clamped at 1e-10 before the log.
func (c *CrossEntropyLoss) Forward(probs, oneHot *tensor.Tensor) (float64, error) {
	probs, oneHot, err := alignLossShapes(probs, oneHot)
	if err != nil {
		return 0, err
	}
	classes, batch := probs.Shape[0], probs.Shape[1]

	loss := 0.0
	for b := 0; b < batch; b++ {
		for j := 0; j < classes; j++ {
			y := oneHot.Data[b*classes+j]
			if y > 0 {
				p := probs.Data[j*batch+b]
				if p < 1e-10 {
					p = 1e-10
				}
				loss -= y * math.Log(p)
			}
		}
	}
	return loss / float64(batch), nil
}

// Backward computes the gradient of the mean cross-entropy with respect
// to the logits that produced probs: (softmax_output - one_hot_label)/batch.
func (c *CrossEntropyLoss) Backward(probs, oneHot *tensor.Tensor) (*tensor.Tensor, error) {
	probs, oneHot, err := alignLossShapes(probs, oneHot)
	if err != nil {
		return nil, err
	}
	classes, batch := probs.Shape[0], probs.Shape[1]

	grad := tensor.New(classes, batch)
	for b := 0; b < batch; b++ {
		for j := 0; j < classes; j++ {
			grad.Data[j*batch+b] = (probs.Data[j*batch+b] - oneHot.Data[b*classes+j]) / float64(batch)
		}
	}
	return grad, nil
}

// alignLossShapes promotes 1-D arguments to their 2-D forms and checks
// that probabilities (classes, batch) and labels (batch, classes) agree.
func alignLossShapes(probs, oneHot *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, error) {
	if len(probs.Shape) == 1 {
		probs = &tensor.Tensor{Data: probs.Data, Shape: []int{probs.Shape[0], 1}}
	}
	if len(oneHot.Shape) == 1 {
		oneHot = &tensor.Tensor{Data: oneHot.Data, Shape: []int{1, oneHot.Shape[0]}}
	}
	if len(probs.Shape) != 2 || len(oneHot.Shape) != 2 {
		return nil, nil, fmt.Errorf("expected 2D probabilities and labels, got %v and %v", probs.Shape, oneHot.Shape)
	}
	if oneHot.Shape[0] != probs.Shape[1] || oneHot.Shape[1] != probs.Shape[0] {
		return nil, nil, fmt.Errorf("labels shape %v do not match probabilities (%d, %d)", oneHot.Shape, probs.Shape[0], probs.Shape[1])
	}
	return probs, oneHot, nil
}

// Softmax applies the softmax function to a tensor. A 1-D tensor is one
// distribution; a 2-D (classes, batch) tensor is normalized per column,
// subtracting each column's max before exponentiating for stability.
func Softmax(logits *tensor.Tensor) *tensor.Tensor {
	if len(logits.Shape) == 2 {
		classes, batch := logits.Shape[0], logits.Shape[1]
		softmax := tensor.New(classes, batch)
		for b := 0; b < batch; b++ {
			maxLogit := logits.Data[b]
			for j := 1; j < classes; j++ {
				if v := logits.Data[j*batch+b]; v > maxLogit {
					maxLogit = v
				}
			}
			expSum := 0.0
			for j := 0; j < classes; j++ {
				e := math.Exp(logits.Data[j*batch+b] - maxLogit)
				softmax.Data[j*batch+b] = e
				expSum += e
			}
			for j := 0; j < classes; j++ {
				softmax.Data[j*batch+b] /= expSum
			}
		}
		return softmax
	}

	maxLogit := logits.Data[0]
	for _, v := range logits.Data {
		if v > maxLogit {
			maxLogit = v
		}
	}
	expSum := 0.0
	exps := make([]float64, len(logits.Data))
	for i, v := range logits.Data {
		e := math.Exp(v - maxLogit)
		exps[i] = e
		expSum += e
	}
	softmax := tensor.New(len(logits.Data))
	for i, e := range exps {
		softmax.Data[i] = e / expSum
	}
	return softmax
}
