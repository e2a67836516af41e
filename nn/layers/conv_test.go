package layers

import (
	"testing"

	"captchanet/tensor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConv2D_Identity1x1(t *testing.T) {
	// 1x1 identity convolution should preserve the input
	conv := NewConv2D(1, 1, 1, 1)

	conv.W.Set(1.0, 0, 0, 0, 0)
	conv.B.Set(0.0, 0)

	// Create test input: 1 channel, 3x3 image
	input := tensor.New(1, 3, 3)
	for i := 0; i < 9; i++ {
		input.Data[i] = float64(i + 1)
	}

	output, err := conv.Forward(input)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 1, 3, 3}, output.Shape)
	for i := 0; i < 9; i++ {
		assert.Equal(t, input.Data[i], output.Data[i], "Identity conv should preserve input")
	}
}

func TestConv2D_Random3x3(t *testing.T) {
	// 3x3 conv layer: 1 input channel, 2 output channels
	conv := NewConv2D(1, 2, 3, 3)

	for oc := 0; oc < 2; oc++ {
		for kh := 0; kh < 3; kh++ {
			for kw := 0; kw < 3; kw++ {
				conv.W.Set(float64(oc+kh+kw), oc, 0, kh, kw)
			}
		}
	}
	conv.B.Set(0.1, 0)
	conv.B.Set(0.2, 1)

	// Create test input: 1 channel, 5x5 image
	input := tensor.New(1, 5, 5)
	for i := 0; i < 25; i++ {
		input.Data[i] = float64(i + 1)
	}

	output, err := conv.Forward(input)
	require.NoError(t, err)

	// 5x5 input - 3x3 kernel + 1 = 3x3 output
	assert.Equal(t, []int{1, 2, 3, 3}, output.Shape)

	hasNonZero := false
	for _, val := range output.Data {
		if val != 0 {
			hasNonZero = true
			break
		}
	}
	assert.True(t, hasNonZero, "Output should have non-zero values")
}

func TestConv2D_BatchedForward(t *testing.T) {
	conv := NewConv2D(1, 1, 2, 2)
	conv.W.Set(1.0, 0, 0, 0, 0)
	conv.W.Set(1.0, 0, 0, 0, 1)
	conv.W.Set(1.0, 0, 0, 1, 0)
	conv.W.Set(1.0, 0, 0, 1, 1)
	conv.B.Set(0.0, 0)

	// Batch of two: second sample is the first scaled by 2
	input := tensor.New(2, 1, 3, 3)
	for i := 0; i < 9; i++ {
		input.Data[i] = float64(i + 1)
		input.Data[9+i] = 2 * float64(i+1)
	}

	output, err := conv.Forward(input)
	require.NoError(t, err)
	require.Equal(t, []int{2, 1, 2, 2}, output.Shape)

	// With zero bias the conv is linear in its input
	for i := 0; i < 4; i++ {
		assert.InDelta(t, 2*output.Data[i], output.Data[4+i], 1e-12, "second sample should be twice the first")
	}
}

func TestConv2D_Backward(t *testing.T) {
	// 2x2 all-ones kernel on a 3x3 input has closed-form gradients
	conv := NewConv2D(1, 1, 2, 2)

	conv.W.Set(1.0, 0, 0, 0, 0)
	conv.W.Set(1.0, 0, 0, 0, 1)
	conv.W.Set(1.0, 0, 0, 1, 0)
	conv.W.Set(1.0, 0, 0, 1, 1)
	conv.B.Set(0.0, 0)

	input := tensor.New(1, 3, 3)
	for i := 0; i < 9; i++ {
		input.Data[i] = float64(i + 1)
	}

	output, err := conv.Forward(input)
	require.NoError(t, err)

	gradOut := tensor.New(output.Shape...)
	for i := 0; i < len(gradOut.Data); i++ {
		gradOut.Data[i] = 1.0
	}

	gradIn, err := conv.Backward(gradOut)
	require.NoError(t, err)
	assert.Equal(t, input.Shape, gradIn.Shape)

	// Bias gradient is the sum of the 2x2 output gradient
	assert.Equal(t, 4.0, conv.gradB.At(0))

	// Weight gradient at (dy,dx) sums the input window it touches
	assert.Equal(t, 12.0, conv.gradW.At(0, 0, 0, 0))
	assert.Equal(t, 16.0, conv.gradW.At(0, 0, 0, 1))
	assert.Equal(t, 24.0, conv.gradW.At(0, 0, 1, 0))
	assert.Equal(t, 28.0, conv.gradW.At(0, 0, 1, 1))

	// Input gradient counts how many output windows cover each pixel
	wantGradIn := []float64{1, 2, 1, 2, 4, 2, 1, 2, 1}
	for i, want := range wantGradIn {
		assert.Equal(t, want, gradIn.Data[i], "gradIn[%d]", i)
	}
}

func TestConv2D_Update(t *testing.T) {
	conv := NewConv2D(1, 1, 2, 2)

	initialWeight := 1.0
	initialBias := 0.5
	conv.W.Set(initialWeight, 0, 0, 0, 0)
	conv.B.Set(initialBias, 0)

	conv.gradW.Set(0.1, 0, 0, 0, 0)
	conv.gradB.Set(0.05, 0)

	lr := 0.1
	err := conv.Update(lr)
	require.NoError(t, err)

	expectedWeight := initialWeight - lr*0.1
	expectedBias := initialBias - lr*0.05

	assert.Equal(t, expectedWeight, conv.W.At(0, 0, 0, 0))
	assert.Equal(t, expectedBias, conv.B.At(0))
}

func TestConv2D_RejectsBadInput(t *testing.T) {
	conv := NewConv2D(1, 1, 3, 3)

	_, err := conv.Forward(tensor.NewWithData([]float64{1, 2, 3}))
	assert.Error(t, err, "1-D input should be rejected")

	// 2x2 image is smaller than the 3x3 kernel
	_, err = conv.Forward(tensor.New(1, 2, 2))
	assert.Error(t, err)

	// Backward without forward has no cached input
	fresh := NewConv2D(1, 1, 2, 2)
	_, err = fresh.Backward(tensor.New(1, 1, 2, 2))
	assert.Error(t, err)
}

func TestConv2D_OutputShapeAndTag(t *testing.T) {
	conv := NewConv2D(3, 16, 3, 3)
	outH, outW := conv.GetOutputShape(50, 250)
	assert.Equal(t, 48, outH)
	assert.Equal(t, 248, outW)
	assert.Equal(t, "Conv2D_3_16_3_3", conv.Tag())
}

func BenchmarkConv2D_Forward(b *testing.B) {
	// LeNet-style: 1->6, 5x5 on 28x28
	conv := NewConv2D(1, 6, 5, 5)

	input := tensor.New(1, 28, 28)
	for i := 0; i < 28*28; i++ {
		input.Data[i] = float64(i % 10)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := conv.Forward(input)
		if err != nil {
			b.Fatal(err)
		}
	}
}
