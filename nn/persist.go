package nn

import (
	"encoding/json"
	"fmt"
	"math/rand"

	"captchanet/tensor"
	"captchanet/utils"
)

// ModelLoadError reports a model artifact that could not be read or
// does not describe a usable network.
type ModelLoadError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ModelLoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot load model from %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("cannot load model from %s: %s", e.Path, e.Reason)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

// Save writes the network to a single JSON artifact holding the
// architecture and every parameter tensor, so the file alone is enough
// to rebuild the model.
func (m *CaptchaNet) Save(path string) error {
	archJSON, err := json.Marshal(m.arch)
	if err != nil {
		return fmt.Errorf("failed to marshal architecture: %w", err)
	}

	weights := &utils.ModelWeights{
		Version: "1.0",
		Arch:    archJSON,
		Layers:  make(map[string]utils.LayerWeight),
	}
	for _, p := range m.paramLayers() {
		weights.Layers[p.name] = utils.LayerWeight{
			Weight: utils.TensorToWeightData("weight", p.w),
			Bias:   utils.TensorToWeightData("bias", p.b),
		}
	}
	return utils.SaveWeights(path, weights)
}

// LoadCaptchaNet rebuilds a network from an artifact written by Save.
func LoadCaptchaNet(path string) (*CaptchaNet, error) {
	weights, err := utils.LoadWeights(path)
	if err != nil {
		return nil, &ModelLoadError{Path: path, Reason: "unreadable artifact", Err: err}
	}
	if len(weights.Arch) == 0 {
		return nil, &ModelLoadError{Path: path, Reason: "artifact has no architecture section"}
	}

	var arch Arch
	if err := json.Unmarshal(weights.Arch, &arch); err != nil {
		return nil, &ModelLoadError{Path: path, Reason: "invalid architecture section", Err: err}
	}
	if err := arch.Validate(); err != nil {
		return nil, &ModelLoadError{Path: path, Reason: "invalid architecture", Err: err}
	}

	// The seed is irrelevant: every initialized weight is overwritten
	// from the artifact below.
	model, err := NewCaptchaNet(arch, rand.New(rand.NewSource(0)))
	if err != nil {
		return nil, &ModelLoadError{Path: path, Reason: "cannot build network", Err: err}
	}

	for _, p := range model.paramLayers() {
		lw, ok := weights.Layers[p.name]
		if !ok {
			return nil, &ModelLoadError{Path: path, Reason: fmt.Sprintf("artifact is missing layer %s", p.name)}
		}
		if err := fillFromArtifact(p.w, lw.Weight, p.name+" weight", path); err != nil {
			return nil, err
		}
		if err := fillFromArtifact(p.b, lw.Bias, p.name+" bias", path); err != nil {
			return nil, err
		}
	}
	return model, nil
}

func fillFromArtifact(dst *tensor.Tensor, wd *utils.WeightData, what, path string) error {
	if wd == nil {
		return &ModelLoadError{Path: path, Reason: fmt.Sprintf("artifact is missing %s", what)}
	}
	if len(wd.Data) != len(dst.Data) {
		return &ModelLoadError{Path: path, Reason: fmt.Sprintf("%s has %d values, want %d", what, len(wd.Data), len(dst.Data))}
	}
	copy(dst.Data, wd.Data)
	return nil
}
