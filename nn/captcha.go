package nn

import (
	"fmt"
	"math"
	"math/rand"
	"strings"

	"captchanet/nn/layers"
	"captchanet/tensor"
	"captchanet/vocab"
)

// Arch describes the network topology. It is embedded in saved model
// artifacts so a model can be rebuilt without external configuration.
type Arch struct {
	ImageHeight int     `json:"image_height"`
	ImageWidth  int     `json:"image_width"`
	Channels    int     `json:"channels"`
	ConvFilters []int   `json:"conv_filters"`
	KernelSize  int     `json:"kernel_size"`
	PoolSize    int     `json:"pool_size"`
	HiddenUnits int     `json:"hidden_units"`
	NumHeads    int     `json:"num_heads"`
	NumClasses  int     `json:"num_classes"`
	DropoutRate float64 `json:"dropout_rate"`
}

// Validate checks the topology before any tensors are allocated.
func (a Arch) Validate() error {
	if a.ImageHeight <= 0 || a.ImageWidth <= 0 {
		return fmt.Errorf("image dimensions must be positive, got %dx%d", a.ImageHeight, a.ImageWidth)
	}
	if a.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", a.Channels)
	}
	if len(a.ConvFilters) == 0 {
		return fmt.Errorf("at least one conv block is required")
	}
	for i, f := range a.ConvFilters {
		if f <= 0 {
			return fmt.Errorf("conv filter count %d at block %d must be positive", f, i)
		}
	}
	if a.KernelSize <= 0 {
		return fmt.Errorf("kernel size must be positive, got %d", a.KernelSize)
	}
	if a.PoolSize <= 0 {
		return fmt.Errorf("pool size must be positive, got %d", a.PoolSize)
	}
	if a.HiddenUnits <= 0 {
		return fmt.Errorf("hidden units must be positive, got %d", a.HiddenUnits)
	}
	if a.NumHeads <= 0 {
		return fmt.Errorf("number of heads must be positive, got %d", a.NumHeads)
	}
	if a.NumClasses <= 0 {
		return fmt.Errorf("number of classes must be positive, got %d", a.NumClasses)
	}
	if a.DropoutRate < 0 || a.DropoutRate >= 1 {
		return fmt.Errorf("dropout rate must be in [0, 1), got %v", a.DropoutRate)
	}
	_, err := a.FeatureDim()
	return err
}

// FeatureDim walks the conv/pool stack and returns the flattened
// feature count per sample that the heads consume.
func (a Arch) FeatureDim() (int, error) {
	h, w := a.ImageHeight, a.ImageWidth
	for i := range a.ConvFilters {
		if h < a.KernelSize || w < a.KernelSize {
			return 0, fmt.Errorf("image collapses at conv block %d: %dx%d left for a %dx%d kernel", i, h, w, a.KernelSize, a.KernelSize)
		}
		h, w = (h-a.KernelSize+1)/a.PoolSize, (w-a.KernelSize+1)/a.PoolSize
		if h == 0 || w == 0 {
			return 0, fmt.Errorf("image collapses at pool block %d", i)
		}
	}
	return a.ConvFilters[len(a.ConvFilters)-1] * h * w, nil
}

// CaptchaNet predicts fixed-length captcha strings. A shared conv
// backbone feeds NumHeads independent classifier heads, one per
// character position, each a softmax over the vocabulary.
type CaptchaNet struct {
	arch Arch

	// Backbone: [Conv2D, ReLU, MaxPool2D] per conv block, then
	// Flatten and a single Dropout.
	Backbone *Sequential
	// Heads: Linear(features, hidden), ReLU, Linear(hidden, classes).
	Heads []*Sequential
}

// NewCaptchaNet builds the network and initializes all weights from
// rng. Biases start at zero.
func NewCaptchaNet(arch Arch, rng *rand.Rand) (*CaptchaNet, error) {
	if err := arch.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, fmt.Errorf("weight initialization requires a random source")
	}

	backbone := &Sequential{}
	inChan := arch.Channels
	for _, filters := range arch.ConvFilters {
		conv := layers.NewConv2D(inChan, filters, arch.KernelSize, arch.KernelSize)
		initWeights(conv.W, inChan*arch.KernelSize*arch.KernelSize, filters*arch.KernelSize*arch.KernelSize, rng)
		backbone.Layers = append(backbone.Layers,
			conv,
			layers.NewReLU(),
			layers.NewMaxPool2D(arch.PoolSize),
		)
		inChan = filters
	}
	backbone.Layers = append(backbone.Layers,
		layers.NewFlatten(),
		layers.NewDropout(arch.DropoutRate, rng),
	)

	features, err := arch.FeatureDim()
	if err != nil {
		return nil, err
	}

	heads := make([]*Sequential, arch.NumHeads)
	for h := range heads {
		fc1 := layers.NewLinear(features, arch.HiddenUnits)
		initWeights(fc1.W, features, arch.HiddenUnits, rng)
		fc2 := layers.NewLinear(arch.HiddenUnits, arch.NumClasses)
		initWeights(fc2.W, arch.HiddenUnits, arch.NumClasses, rng)
		heads[h] = &Sequential{Layers: []Module{fc1, layers.NewReLU(), fc2}}
	}

	return &CaptchaNet{arch: arch, Backbone: backbone, Heads: heads}, nil
}

// initWeights fills w with He-style init scaled by fan-in and fan-out.
func initWeights(w *tensor.Tensor, fanIn, fanOut int, rng *rand.Rand) {
	scale := math.Sqrt(2.0 / float64(fanIn+fanOut))
	for i := range w.Data {
		w.Data[i] = rng.NormFloat64() * scale
	}
}

// Arch returns the topology the network was built with.
func (m *CaptchaNet) Arch() Arch { return m.arch }

// Forward runs a (batch, height, width, channels) image tensor through
// the backbone and every head, returning one (classes, batch) logit
// tensor per character position.
func (m *CaptchaNet) Forward(images *tensor.Tensor) ([]*tensor.Tensor, error) {
	if len(images.Shape) != 4 ||
		images.Shape[1] != m.arch.ImageHeight ||
		images.Shape[2] != m.arch.ImageWidth ||
		images.Shape[3] != m.arch.Channels {
		return nil, fmt.Errorf("input shape %v does not match (batch, %d, %d, %d)",
			images.Shape, m.arch.ImageHeight, m.arch.ImageWidth, m.arch.Channels)
	}

	features, err := m.Backbone.Forward(toNCHW(images))
	if err != nil {
		return nil, err
	}

	logits := make([]*tensor.Tensor, len(m.Heads))
	for h, head := range m.Heads {
		logits[h], err = head.Forward(features)
		if err != nil {
			return nil, err
		}
	}
	return logits, nil
}

// Backward propagates one (classes, batch) gradient per head back
// through the heads and the shared backbone. Head gradients sum at the
// backbone output because every head reads the same features.
func (m *CaptchaNet) Backward(headGrads []*tensor.Tensor) error {
	if len(headGrads) != len(m.Heads) {
		return fmt.Errorf("got %d head gradients for %d heads", len(headGrads), len(m.Heads))
	}

	var total *tensor.Tensor
	for h, head := range m.Heads {
		gradFeatures, err := head.Backward(headGrads[h])
		if err != nil {
			return err
		}
		if total == nil {
			total = gradFeatures
			continue
		}
		total, err = tensor.Add(total, gradFeatures)
		if err != nil {
			return err
		}
	}

	_, err := m.Backbone.Backward(total)
	return err
}

// Update applies accumulated gradients on the backbone and all heads.
func (m *CaptchaNet) Update(lr float64) error {
	if err := m.Backbone.Update(lr); err != nil {
		return err
	}
	for _, head := range m.Heads {
		if err := head.Update(lr); err != nil {
			return err
		}
	}
	return nil
}

// SetTraining switches dropout between mask and identity behavior.
func (m *CaptchaNet) SetTraining(training bool) {
	m.Backbone.SetTraining(training)
	for _, head := range m.Heads {
		head.SetTraining(training)
	}
}

// Predict decodes a single (height, width, channels) image, or a batch
// of one, into its text. Runs in evaluation mode.
func (m *CaptchaNet) Predict(image *tensor.Tensor) (string, error) {
	if len(image.Shape) == 3 {
		image = &tensor.Tensor{Data: image.Data, Shape: []int{1, image.Shape[0], image.Shape[1], image.Shape[2]}}
	}
	if len(image.Shape) == 4 && image.Shape[0] != 1 {
		return "", fmt.Errorf("Predict takes a single image, got batch of %d", image.Shape[0])
	}

	m.SetTraining(false)
	logits, err := m.Forward(image)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, l := range logits {
		probs := Softmax(l)
		best := 0
		for j := 1; j < len(probs.Data); j++ {
			if probs.Data[j] > probs.Data[best] {
				best = j
			}
		}
		ch, err := vocab.Decode(best)
		if err != nil {
			return "", err
		}
		sb.WriteRune(ch)
	}
	return sb.String(), nil
}

// paramLayer pairs a stable name with a layer's parameter tensors.
// Names follow the block order: conv_0, conv_1, ... for the backbone
// and head_<h>_fc_<i> for the classifier heads.
type paramLayer struct {
	name string
	w, b *tensor.Tensor
}

func (m *CaptchaNet) paramLayers() []paramLayer {
	var params []paramLayer
	convIdx := 0
	for _, layer := range m.Backbone.Layers {
		if conv, ok := layer.(*layers.Conv2D); ok {
			params = append(params, paramLayer{fmt.Sprintf("conv_%d", convIdx), conv.W, conv.B})
			convIdx++
		}
	}
	for h, head := range m.Heads {
		fcIdx := 0
		for _, layer := range head.Layers {
			if lin, ok := layer.(*layers.Linear); ok {
				params = append(params, paramLayer{fmt.Sprintf("head_%d_fc_%d", h, fcIdx), lin.W, lin.B})
				fcIdx++
			}
		}
	}
	return params
}

// Snapshot deep-copies every parameter tensor, keyed by layer name and
// "weight"/"bias" suffix. Used for best-epoch checkpointing.
func (m *CaptchaNet) Snapshot() map[string]*tensor.Tensor {
	snap := make(map[string]*tensor.Tensor)
	for _, p := range m.paramLayers() {
		snap[p.name+".weight"] = p.w.Clone()
		snap[p.name+".bias"] = p.b.Clone()
	}
	return snap
}

// Restore copies a snapshot back into the network parameters.
func (m *CaptchaNet) Restore(snap map[string]*tensor.Tensor) error {
	for _, p := range m.paramLayers() {
		w, ok := snap[p.name+".weight"]
		if !ok {
			return fmt.Errorf("snapshot is missing %s.weight", p.name)
		}
		b, ok := snap[p.name+".bias"]
		if !ok {
			return fmt.Errorf("snapshot is missing %s.bias", p.name)
		}
		if len(w.Data) != len(p.w.Data) || len(b.Data) != len(p.b.Data) {
			return fmt.Errorf("snapshot %s does not match layer dimensions", p.name)
		}
		copy(p.w.Data, w.Data)
		copy(p.b.Data, b.Data)
	}
	return nil
}

// toNCHW reorders a (batch, height, width, channels) image tensor into
// the (batch, channels, height, width) layout the conv stack expects.
func toNCHW(x *tensor.Tensor) *tensor.Tensor {
	b, h, w, c := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
	out := tensor.New(b, c, h, w)
	for n := 0; n < b; n++ {
		for y := 0; y < h; y++ {
			for xx := 0; xx < w; xx++ {
				for ch := 0; ch < c; ch++ {
					out.Data[((n*c+ch)*h+y)*w+xx] = x.Data[((n*h+y)*w+xx)*c+ch]
				}
			}
		}
	}
	return out
}
