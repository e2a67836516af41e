package nn

import (
	"math"
	"testing"

	"captchanet/tensor"
)

func TestSoftmaxVector(t *testing.T) {
	logits := tensor.NewWithData([]float64{1, 2, 3})
	probs := Softmax(logits)

	sum := 0.0
	for _, p := range probs.Data {
		sum += p
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Fatalf("probabilities sum to %v, want 1", sum)
	}
	if !(probs.Data[0] < probs.Data[1] && probs.Data[1] < probs.Data[2]) {
		t.Fatalf("softmax must preserve logit order, got %v", probs.Data)
	}
	// Unit logit gaps give ratio e between neighbors
	if math.Abs(probs.Data[2]/probs.Data[1]-math.E) > 1e-9 {
		t.Fatalf("expected ratio e, got %v", probs.Data[2]/probs.Data[1])
	}
}

func TestSoftmaxExtremeLogits(t *testing.T) {
	logits := tensor.NewWithData([]float64{1000, 0, -1000})
	probs := Softmax(logits)

	for i, p := range probs.Data {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			t.Fatalf("probs[%d] = %v, max subtraction failed", i, p)
		}
	}
	if math.Abs(probs.Data[0]-1.0) > 1e-9 {
		t.Fatalf("dominant logit should take all mass, got %v", probs.Data[0])
	}
}

func TestSoftmaxPerColumn(t *testing.T) {
	// Two columns: (0,0) and (ln3, 0)
	logits := tensor.New(2, 2)
	logits.Data[1] = math.Log(3)

	probs := Softmax(logits)

	want := []float64{0.5, 0.75, 0.5, 0.25}
	for i, w := range want {
		if math.Abs(probs.Data[i]-w) > 1e-9 {
			t.Fatalf("probs[%d] = %v, want %v", i, probs.Data[i], w)
		}
	}
}

func lossFixture() (*tensor.Tensor, *tensor.Tensor) {
	// Two classes, two samples: columns (0.5, 0.5) and (0.25, 0.75)
	probs := tensor.New(2, 2)
	copy(probs.Data, []float64{0.5, 0.25, 0.5, 0.75})
	// Sample 0 is class 0, sample 1 is class 1
	oneHot := tensor.New(2, 2)
	copy(oneHot.Data, []float64{1, 0, 0, 1})
	return probs, oneHot
}

func TestCrossEntropyForward(t *testing.T) {
	loss := &CrossEntropyLoss{}
	probs, oneHot := lossFixture()

	got, err := loss.Forward(probs, oneHot)
	if err != nil {
		t.Fatal(err)
	}
	want := (-math.Log(0.5) - math.Log(0.75)) / 2
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("loss = %v, want %v", got, want)
	}
}

func TestCrossEntropyClampsZeroProbability(t *testing.T) {
	loss := &CrossEntropyLoss{}
	probs := tensor.New(2, 1)
	probs.Data[0] = 1.0 // all mass on class 0
	oneHot := tensor.New(1, 2)
	oneHot.Data[1] = 1.0 // true class is 1

	got, err := loss.Forward(probs, oneHot)
	if err != nil {
		t.Fatal(err)
	}
	if math.IsInf(got, 0) || math.IsNaN(got) {
		t.Fatalf("loss = %v, clamp failed", got)
	}
	want := -math.Log(1e-10)
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("loss = %v, want clamped %v", got, want)
	}
}

func TestCrossEntropyBackward(t *testing.T) {
	loss := &CrossEntropyLoss{}
	probs, oneHot := lossFixture()

	grad, err := loss.Backward(probs, oneHot)
	if err != nil {
		t.Fatal(err)
	}
	if grad.Shape[0] != 2 || grad.Shape[1] != 2 {
		t.Fatalf("grad shape %v, want [2 2]", grad.Shape)
	}
	// (probs - labels) / batch
	want := []float64{-0.25, 0.125, 0.25, -0.125}
	for i, w := range want {
		if math.Abs(grad.Data[i]-w) > 1e-9 {
			t.Fatalf("grad[%d] = %v, want %v", i, grad.Data[i], w)
		}
	}
}

func TestCrossEntropyShapeMismatch(t *testing.T) {
	loss := &CrossEntropyLoss{}
	probs := tensor.New(2, 2)
	oneHot := tensor.New(3, 2)
	if _, err := loss.Forward(probs, oneHot); err == nil {
		t.Fatal("expected shape mismatch error")
	}
	if _, err := loss.Backward(probs, oneHot); err == nil {
		t.Fatal("expected shape mismatch error")
	}
}
