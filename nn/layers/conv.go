package layers

import (
	"fmt"

	"captchanet/tensor"
)

// Conv2D is a 2D convolutional layer (valid padding, stride 1).
type Conv2D struct {
	// Layer parameters
	inChan, outChan int // number of input/output channels
	kh, kw          int // kernel height and width

	W *tensor.Tensor // weights: [outChan, inChan, kh, kw]
	B *tensor.Tensor // bias: [outChan]

	// Cached input for backward pass
	lastInput *tensor.Tensor

	// Gradient storage
	gradW *tensor.Tensor
	gradB *tensor.Tensor
}

// NewConv2D creates a new Conv2D layer.
func NewConv2D(inChan, outChan, kh, kw int) *Conv2D {
	return &Conv2D{
		inChan:  inChan,
		outChan: outChan,
		kh:      kh,
		kw:      kw,
		W:       tensor.New(outChan, inChan, kh, kw),
		B:       tensor.New(outChan),
		gradW:   tensor.New(outChan, inChan, kh, kw),
		gradB:   tensor.New(outChan),
	}
}

// GetOutputShape returns the output dimensions for given input dimensions.
func (c *Conv2D) GetOutputShape(inH, inW int) (outH, outW int) {
	return inH - c.kh + 1, inW - c.kw + 1
}

// Forward performs the convolution. Input shape is
// [batch, inChan, height, width] or [inChan, height, width].
func (c *Conv2D) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	var batchSize, height, width int
	if len(input.Shape) == 4 {
		batchSize, _, height, width = input.Shape[0], input.Shape[1], input.Shape[2], input.Shape[3]
	} else if len(input.Shape) == 3 {
		batchSize = 1
		_, height, width = input.Shape[0], input.Shape[1], input.Shape[2]
	} else {
		return nil, fmt.Errorf("input must be 3D or 4D tensor")
	}

	// Calculate output dimensions
	outHeight := height - c.kh + 1
	outWidth := width - c.kw + 1
	if outHeight <= 0 || outWidth <= 0 {
		return nil, fmt.Errorf("input %dx%d too small for %dx%d kernel", height, width, c.kh, c.kw)
	}

	// Create output tensor
	output := tensor.New(batchSize, c.outChan, outHeight, outWidth)

	// Cache input for backward pass
	c.lastInput = input

	// Perform convolution
	for b := 0; b < batchSize; b++ {
		for oc := 0; oc < c.outChan; oc++ {
			for y := 0; y < outHeight; y++ {
				for x := 0; x < outWidth; x++ {
					sum := c.B.Data[oc] // Start with bias

					// Convolve with kernel
					for ic := 0; ic < c.inChan; ic++ {
						for dy := 0; dy < c.kh; dy++ {
							for dx := 0; dx < c.kw; dx++ {
								// Input indices
								iy := y + dy
								ix := x + dx

								// Weight index
								wIdx := oc*c.inChan*c.kh*c.kw + ic*c.kh*c.kw + dy*c.kw + dx

								// Input index (handle both 3D and 4D)
								var inIdx int
								if len(input.Shape) == 3 {
									inIdx = ic*height*width + iy*width + ix
								} else {
									inIdx = b*c.inChan*height*width + ic*height*width + iy*width + ix
								}

								sum += input.Data[inIdx] * c.W.Data[wIdx]
							}
						}
					}

					// Output index
					outIdx := b*c.outChan*outHeight*outWidth + oc*outHeight*outWidth + y*outWidth + x
					output.Data[outIdx] = sum
				}
			}
		}
	}

	return output, nil
}

// Backward computes gradients for weights, bias and input from the
// upstream gradient [batch, outChan, outHeight, outWidth].
func (c *Conv2D) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	if c.lastInput == nil {
		return nil, fmt.Errorf("no cached input for backward pass")
	}

	var batchSize, outHeight, outWidth int
	if len(gradOut.Shape) == 4 {
		batchSize, _, outHeight, outWidth = gradOut.Shape[0], gradOut.Shape[1], gradOut.Shape[2], gradOut.Shape[3]
	} else {
		return nil, fmt.Errorf("gradOut must be 4D tensor")
	}

	// Get input dimensions
	var inHeight, inWidth int
	if len(c.lastInput.Shape) == 4 {
		_, _, inHeight, inWidth = c.lastInput.Shape[0], c.lastInput.Shape[1], c.lastInput.Shape[2], c.lastInput.Shape[3]
	} else {
		_, inHeight, inWidth = c.lastInput.Shape[0], c.lastInput.Shape[1], c.lastInput.Shape[2]
	}

	// Initialize gradients
	c.gradW = tensor.New(c.outChan, c.inChan, c.kh, c.kw)
	c.gradB = tensor.New(c.outChan)

	// Compute bias gradients: sum over all spatial positions
	for oc := 0; oc < c.outChan; oc++ {
		for b := 0; b < batchSize; b++ {
			for y := 0; y < outHeight; y++ {
				for x := 0; x < outWidth; x++ {
					gradIdx := b*c.outChan*outHeight*outWidth + oc*outHeight*outWidth + y*outWidth + x
					c.gradB.Data[oc] += gradOut.Data[gradIdx]
				}
			}
		}
	}

	// Compute weight gradients
	for oc := 0; oc < c.outChan; oc++ {
		for ic := 0; ic < c.inChan; ic++ {
			for dy := 0; dy < c.kh; dy++ {
				for dx := 0; dx < c.kw; dx++ {
					wGradIdx := oc*c.inChan*c.kh*c.kw + ic*c.kh*c.kw + dy*c.kw + dx

					for b := 0; b < batchSize; b++ {
						for y := 0; y < outHeight; y++ {
							for x := 0; x < outWidth; x++ {
								// Input position
								iy := y + dy
								ix := x + dx

								// Input index
								var inIdx int
								if len(c.lastInput.Shape) == 4 {
									inIdx = b*c.inChan*inHeight*inWidth + ic*inHeight*inWidth + iy*inWidth + ix
								} else {
									inIdx = ic*inHeight*inWidth + iy*inWidth + ix
								}

								// Gradient index
								gradIdx := b*c.outChan*outHeight*outWidth + oc*outHeight*outWidth + y*outWidth + x

								c.gradW.Data[wGradIdx] += c.lastInput.Data[inIdx] * gradOut.Data[gradIdx]
							}
						}
					}
				}
			}
		}
	}

	// Compute input gradients (transposed convolution)
	inputGrad := tensor.New(c.lastInput.Shape...)

	for b := 0; b < batchSize; b++ {
		for ic := 0; ic < c.inChan; ic++ {
			for y := 0; y < inHeight; y++ {
				for x := 0; x < inWidth; x++ {
					var inGradIdx int
					if len(c.lastInput.Shape) == 4 {
						inGradIdx = b*c.inChan*inHeight*inWidth + ic*inHeight*inWidth + y*inWidth + x
					} else {
						inGradIdx = ic*inHeight*inWidth + y*inWidth + x
					}

					sum := 0.0
					for oc := 0; oc < c.outChan; oc++ {
						for dy := 0; dy < c.kh; dy++ {
							for dx := 0; dx < c.kw; dx++ {
								// Output position
								oy := y - dy
								ox := x - dx

								if oy >= 0 && oy < outHeight && ox >= 0 && ox < outWidth {
									// Weight index
									wIdx := oc*c.inChan*c.kh*c.kw + ic*c.kh*c.kw + dy*c.kw + dx

									// Gradient index
									gradIdx := b*c.outChan*outHeight*outWidth + oc*outHeight*outWidth + oy*outWidth + ox

									sum += c.W.Data[wIdx] * gradOut.Data[gradIdx]
								}
							}
						}
					}
					inputGrad.Data[inGradIdx] = sum
				}
			}
		}
	}

	return inputGrad, nil
}

// Update applies SGD to weights and bias.
func (c *Conv2D) Update(lr float64) error {
	// Update weights
	for i := range c.W.Data {
		c.W.Data[i] -= lr * c.gradW.Data[i]
	}

	// Update bias
	for i := range c.B.Data {
		c.B.Data[i] -= lr * c.gradB.Data[i]
	}

	return nil
}

func (c *Conv2D) Tag() string {
	return fmt.Sprintf("Conv2D_%d_%d_%d_%d", c.inChan, c.outChan, c.kh, c.kw)
}
