package trainer

import (
	"fmt"
	"math/rand"
	"time"

	"captchanet/dataset"
	"captchanet/nn"
	"captchanet/utils"
)

// Seed offsets keep the split, the epoch shuffling and the model's
// weights/dropout on independent streams, so changing one concern does
// not silently reshuffle another.
const (
	seedOffsetShuffle = 1
	seedOffsetModel   = 2
)

// TrainFromScratch builds a fresh model from the configuration and
// trains it on the manifest's data. Returns the trained model and the
// per-epoch history.
func TrainFromScratch(cfg *utils.Config) (*nn.CaptchaNet, History, error) {
	if err := checkDataConfig(cfg); err != nil {
		return nil, nil, err
	}

	initStart := time.Now()
	model, err := nn.NewCaptchaNet(archFromConfig(cfg), rand.New(rand.NewSource(cfg.Seed+seedOffsetModel)))
	if err != nil {
		return nil, nil, err
	}
	return runTraining(model, cfg, time.Since(initStart))
}

// ResumeFromArtifact loads a persisted model and continues training it
// under the same controller. The artifact's geometry must agree with
// the configuration's data settings.
func ResumeFromArtifact(path string, cfg *utils.Config) (*nn.CaptchaNet, History, error) {
	if err := checkDataConfig(cfg); err != nil {
		return nil, nil, err
	}

	initStart := time.Now()
	model, err := nn.LoadCaptchaNet(path)
	if err != nil {
		return nil, nil, err
	}

	arch := model.Arch()
	if arch.ImageHeight != cfg.ImageHeight || arch.ImageWidth != cfg.ImageWidth ||
		arch.Channels != 3 || arch.NumClasses != cfg.NumClasses || arch.NumHeads != dataset.LabelLength {
		return nil, nil, fmt.Errorf("artifact %s was trained on %dx%d images with %d heads over %d classes, which does not match the configuration",
			path, arch.ImageHeight, arch.ImageWidth, arch.NumHeads, arch.NumClasses)
	}
	return runTraining(model, cfg, time.Since(initStart))
}

func checkDataConfig(cfg *utils.Config) error {
	if err := utils.ValidateConfig(cfg); err != nil {
		return err
	}
	if cfg.ManifestPath == "" {
		return fmt.Errorf("manifest path is required")
	}
	if cfg.ImageDir == "" {
		return fmt.Errorf("image directory is required")
	}
	return nil
}

func archFromConfig(cfg *utils.Config) nn.Arch {
	return nn.Arch{
		ImageHeight: cfg.ImageHeight,
		ImageWidth:  cfg.ImageWidth,
		Channels:    3,
		ConvFilters: cfg.ConvFilters,
		KernelSize:  cfg.KernelSize,
		PoolSize:    cfg.PoolSize,
		HiddenUnits: cfg.HiddenUnits,
		NumHeads:    dataset.LabelLength,
		NumClasses:  cfg.NumClasses,
		DropoutRate: cfg.DropoutRate,
	}
}

// buildProviders loads the manifest, splits it and wires the two
// providers. The validation provider never shuffles.
func buildProviders(cfg *utils.Config) (train, val *dataset.Provider, err error) {
	samples, err := dataset.LoadManifest(cfg.ManifestPath)
	if err != nil {
		return nil, nil, err
	}

	trainSamples, valSamples, err := dataset.Split(samples, cfg.ValidationFraction, rand.New(rand.NewSource(cfg.Seed)))
	if err != nil {
		return nil, nil, err
	}

	train, err = dataset.NewProvider(trainSamples, cfg.ImageDir, cfg.BatchSize,
		cfg.ImageHeight, cfg.ImageWidth, cfg.Shuffle, rand.New(rand.NewSource(cfg.Seed+seedOffsetShuffle)))
	if err != nil {
		return nil, nil, fmt.Errorf("training provider: %w", err)
	}
	val, err = dataset.NewProvider(valSamples, cfg.ImageDir, cfg.BatchSize,
		cfg.ImageHeight, cfg.ImageWidth, false, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("validation provider: %w", err)
	}
	return train, val, nil
}

func runTraining(model *nn.CaptchaNet, cfg *utils.Config, initTime time.Duration) (*nn.CaptchaNet, History, error) {
	loadStart := time.Now()
	train, val, err := buildProviders(cfg)
	if err != nil {
		return nil, nil, err
	}

	t := New(model, train, val, cfg)
	t.Stats.ModelInitTime = initTime
	t.Stats.DataLoadingTime += time.Since(loadStart)

	history, err := t.Run()
	if err != nil {
		return nil, history, err
	}

	if cfg.HistoryPath != "" {
		if err := history.WriteCSV(cfg.HistoryPath); err != nil {
			return nil, history, err
		}
	}
	if cfg.ModelPath != "" {
		if err := model.Save(cfg.ModelPath); err != nil {
			return nil, history, fmt.Errorf("cannot save model: %w", err)
		}
	}
	return model, history, nil
}
