package utils

import (
	"fmt"
	"strconv"
	"strings"

	"captchanet/vocab"
)

// Config holds training configuration
type Config struct {
	// Data
	ManifestPath       string
	ImageDir           string
	BatchSize          int
	ImageHeight        int
	ImageWidth         int
	NumClasses         int
	Shuffle            bool
	ValidationFraction float64
	Seed               int64

	// Architecture
	ConvFilters []int
	KernelSize  int
	PoolSize    int
	HiddenUnits int
	DropoutRate float64

	// Optimization
	MaxEpochs    int
	LearningRate float64
	MinDelta     float64
	Patience     int
	RestoreBest  bool

	// Artifact outputs; an empty path disables the corresponding write
	ModelPath      string
	CheckpointPath string
	HistoryPath    string
}

// DefaultConfig returns the configuration the model was designed around:
// a 50x250 RGB canvas and five character positions over the 36-class
// vocabulary.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:          32,
		ImageHeight:        50,
		ImageWidth:         250,
		NumClasses:         vocab.Size,
		Shuffle:            true,
		ValidationFraction: 0.2,
		Seed:               42,
		ConvFilters:        []int{16, 32, 32},
		KernelSize:         3,
		PoolSize:           2,
		HiddenUnits:        64,
		DropoutRate:        0.5,
		MaxEpochs:          30,
		LearningRate:       0.01,
		MinDelta:           0.001,
		Patience:           5,
	}
}

// ParseFilters parses a filter-count string like "16 32 32" into a slice
// of per-stage filter counts.
func ParseFilters(filterStr string) ([]int, error) {
	parts := strings.Fields(filterStr)
	filters := make([]int, len(parts))
	for i, s := range parts {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, err
		}
		filters[i] = n
	}
	return filters, nil
}

// ValidateConfig validates training configuration
func ValidateConfig(config *Config) error {
	if config.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}

	if config.ImageHeight <= 0 || config.ImageWidth <= 0 {
		return fmt.Errorf("image dimensions must be positive")
	}

	if config.NumClasses != vocab.Size {
		return fmt.Errorf("num classes must be %d to match the vocabulary", vocab.Size)
	}

	if config.ValidationFraction <= 0 || config.ValidationFraction >= 1 {
		return fmt.Errorf("validation fraction must be in (0, 1)")
	}

	if len(config.ConvFilters) == 0 {
		return fmt.Errorf("at least one convolution stage is required")
	}
	for _, f := range config.ConvFilters {
		if f <= 0 {
			return fmt.Errorf("conv filter counts must be positive")
		}
	}

	if config.KernelSize <= 0 {
		return fmt.Errorf("kernel size must be positive")
	}

	if config.PoolSize <= 0 {
		return fmt.Errorf("pool size must be positive")
	}

	if config.HiddenUnits <= 0 {
		return fmt.Errorf("head hidden units must be positive")
	}

	if config.DropoutRate < 0 || config.DropoutRate >= 1 {
		return fmt.Errorf("dropout rate must be in [0, 1)")
	}

	if config.MaxEpochs <= 0 {
		return fmt.Errorf("max epochs must be positive")
	}

	if config.LearningRate <= 0 {
		return fmt.Errorf("learning rate must be positive")
	}

	if config.MinDelta < 0 {
		return fmt.Errorf("early stopping min delta must be non-negative")
	}

	if config.Patience <= 0 {
		return fmt.Errorf("early stopping patience must be positive")
	}

	return nil
}
