package layers

import (
	"testing"

	"captchanet/tensor"
)

func TestFlatten_ColumnLayout(t *testing.T) {
	f := NewFlatten()
	// Two samples of 1x2x2
	input := tensor.New(2, 1, 2, 2)
	for i := range input.Data {
		input.Data[i] = float64(i + 1)
	}
	out, err := f.Forward(input)
	if err != nil {
		t.Fatalf("flatten error: %v", err)
	}
	if out.Shape[0] != 4 || out.Shape[1] != 2 {
		t.Fatalf("flatten wrong shape %v", out.Shape)
	}
	// One sample per column
	want := []float64{1, 5, 2, 6, 3, 7, 4, 8}
	for i, w := range want {
		if out.Data[i] != w {
			t.Fatalf("flatten data[%d] = %v, want %v", i, out.Data[i], w)
		}
	}
}

func TestFlatten_Single3D(t *testing.T) {
	f := NewFlatten()
	input := tensor.New(1, 2, 2)
	for i := range input.Data {
		input.Data[i] = float64(i)
	}
	out, err := f.Forward(input)
	if err != nil {
		t.Fatalf("flatten error: %v", err)
	}
	if out.Shape[0] != 4 || out.Shape[1] != 1 {
		t.Fatalf("flatten wrong shape %v", out.Shape)
	}
}

func TestFlatten_BackwardRoundTrip(t *testing.T) {
	f := NewFlatten()
	input := tensor.New(2, 1, 2, 2)
	for i := range input.Data {
		input.Data[i] = float64(i + 1)
	}
	out, err := f.Forward(input)
	if err != nil {
		t.Fatalf("flatten error: %v", err)
	}
	back, err := f.Backward(out)
	if err != nil {
		t.Fatalf("backward error: %v", err)
	}
	if len(back.Shape) != 4 {
		t.Fatalf("backward wrong rank %v", back.Shape)
	}
	for i := range input.Data {
		if back.Data[i] != input.Data[i] {
			t.Fatalf("round trip mismatch at %d: %v != %v", i, back.Data[i], input.Data[i])
		}
	}
}

func TestFlatten_RejectsBadRank(t *testing.T) {
	f := NewFlatten()
	if _, err := f.Forward(tensor.New(2, 3)); err == nil {
		t.Fatalf("expected error for 2D input")
	}
}
