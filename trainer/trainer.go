package trainer

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/stat"

	"captchanet/dataset"
	"captchanet/nn"
	"captchanet/tensor"
	"captchanet/utils"
)

// State describes where a training run ended up.
type State int

const (
	StateRunning State = iota
	StateStopped
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateCompleted:
		return "completed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// StopReason says why a run ended in StateStopped.
type StopReason string

const (
	StopReasonNone          StopReason = ""
	StopReasonEarlyStopping StopReason = "early_stopping"
	StopReasonCanceled      StopReason = "canceled"
)

// earlyStopper tracks validation loss between epochs.
type earlyStopper struct {
	minDelta float64
	patience int

	best float64
	bad  int
}

func newEarlyStopper(minDelta float64, patience int) *earlyStopper {
	return &earlyStopper{minDelta: minDelta, patience: patience, best: math.Inf(1)}
}

// observe records one epoch's validation loss. improved reports whether
// the loss beat the running best by more than minDelta; stop reports
// whether patience has run out.
func (e *earlyStopper) observe(valLoss float64) (improved, stop bool) {
	if e.best-valLoss > e.minDelta {
		e.best = valLoss
		e.bad = 0
		return true, false
	}
	e.bad++
	return false, e.bad >= e.patience
}

// Trainer drives the epoch loop: a training pass over the train
// provider, a loss-only pass over the validation provider, early
// stopping on the validation loss, and optional checkpointing of the
// best weights seen so far.
type Trainer struct {
	model *nn.CaptchaNet
	train *dataset.Provider
	val   *dataset.Provider
	cfg   *utils.Config

	loss    *nn.CrossEntropyLoss
	stopper *earlyStopper
	halt    atomic.Bool

	state  State
	reason StopReason
	steps  int

	// Stats aggregates per-phase wall time across the whole run.
	Stats utils.TimingStats
}

// New wires a trainer around an existing model and providers.
func New(model *nn.CaptchaNet, train, val *dataset.Provider, cfg *utils.Config) *Trainer {
	return &Trainer{
		model:   model,
		train:   train,
		val:     val,
		cfg:     cfg,
		loss:    &nn.CrossEntropyLoss{},
		stopper: newEarlyStopper(cfg.MinDelta, cfg.Patience),
	}
}

// Stop requests cancellation. Safe to call from another goroutine; the
// run halts before its next batch and ends as a normal stop, not a
// failure.
func (t *Trainer) Stop() { t.halt.Store(true) }

// State reports how the last Run ended. Meaningful once Run has
// returned.
func (t *Trainer) State() (State, StopReason) { return t.state, t.reason }

// Run executes the training loop and returns the per-epoch history.
// The run ends Completed when MaxEpochs is exhausted, or Stopped when
// early stopping triggers or Stop is called; a cancelled run returns
// the history collected so far and a nil error.
func (t *Trainer) Run() (History, error) {
	t.state = StateRunning
	t.reason = StopReasonNone
	totalStart := time.Now()

	var history History
	var bestSnapshot map[string]*tensor.Tensor

	for epoch := 1; epoch <= t.cfg.MaxEpochs && t.state == StateRunning; epoch++ {
		epochStart := time.Now()

		trainLoss, halted, err := t.trainEpoch()
		if err != nil {
			return history, err
		}
		if halted {
			t.state, t.reason = StateStopped, StopReasonCanceled
			t.Stats.TotalTime = time.Since(totalStart)
			return history, nil
		}

		valLoss, err := t.validate()
		if err != nil {
			return history, err
		}

		duration := time.Since(epochStart)
		history = append(history, EpochStats{Epoch: epoch, TrainLoss: trainLoss, ValLoss: valLoss, Duration: duration})
		t.logf("Epoch %d/%d | Train Loss: %.6f | Val Loss: %.6f | Time: %.2fs\n",
			epoch, t.cfg.MaxEpochs, trainLoss, valLoss, duration.Seconds())

		improved, stop := t.stopper.observe(valLoss)
		if improved {
			bestSnapshot = t.model.Snapshot()
			if t.cfg.CheckpointPath != "" {
				if err := t.model.Save(t.cfg.CheckpointPath); err != nil {
					return history, fmt.Errorf("cannot write checkpoint: %w", err)
				}
			}
		}
		if stop {
			t.state, t.reason = StateStopped, StopReasonEarlyStopping
			t.logf("Early stopping after %d epochs without improvement\n", t.cfg.Patience)
		}
	}
	if t.state == StateRunning {
		t.state = StateCompleted
	}

	// Last-epoch weights stay in place unless the best ones were asked for
	if t.cfg.RestoreBest && bestSnapshot != nil {
		if err := t.model.Restore(bestSnapshot); err != nil {
			return history, err
		}
	}

	t.Stats.TotalTime = time.Since(totalStart)
	utils.PrintTimingStats(&t.Stats, t.steps)
	return history, nil
}

// trainEpoch runs one pass over the training provider. halted reports
// that Stop was observed between batches.
func (t *Trainer) trainEpoch() (loss float64, halted bool, err error) {
	t.model.SetTraining(true)
	t.train.Reset()

	batches := t.train.Len()
	losses := make([]float64, 0, batches)
	for i := 0; i < batches; i++ {
		if t.halt.Load() {
			return 0, true, nil
		}

		loadStart := time.Now()
		batch, err := t.train.Batch(i)
		if err != nil {
			return 0, false, err
		}
		t.Stats.DataLoadingTime += time.Since(loadStart)

		batchLoss, err := t.trainStep(batch)
		if err != nil {
			return 0, false, err
		}
		losses = append(losses, batchLoss)
		t.steps++
	}
	return stat.Mean(losses, nil), false, nil
}

// trainStep does forward, loss, backward and update for one batch. The
// batch loss is the sum over character positions of the batch-mean
// cross-entropy.
func (t *Trainer) trainStep(batch *dataset.Batch) (float64, error) {
	forwardStart := time.Now()
	logits, err := t.model.Forward(batch.Images)
	if err != nil {
		return 0, err
	}
	t.Stats.ForwardPassTime += time.Since(forwardStart)

	if len(logits) != len(batch.Labels) {
		return 0, fmt.Errorf("model has %d heads but labels cover %d positions", len(logits), len(batch.Labels))
	}

	lossStart := time.Now()
	total := 0.0
	grads := make([]*tensor.Tensor, len(logits))
	for h, l := range logits {
		probs := nn.Softmax(l)
		v, err := t.loss.Forward(probs, batch.Labels[h])
		if err != nil {
			return 0, err
		}
		total += v
		grads[h], err = t.loss.Backward(probs, batch.Labels[h])
		if err != nil {
			return 0, err
		}
	}
	t.Stats.LossComputationTime += time.Since(lossStart)

	backwardStart := time.Now()
	if err := t.model.Backward(grads); err != nil {
		return 0, err
	}
	t.Stats.BackwardPassTime += time.Since(backwardStart)

	updateStart := time.Now()
	if err := t.model.Update(t.cfg.LearningRate); err != nil {
		return 0, err
	}
	t.Stats.UpdateTime += time.Since(updateStart)

	return total, nil
}

// validate computes the loss over the validation provider in
// evaluation mode. No gradients, no updates.
func (t *Trainer) validate() (float64, error) {
	valStart := time.Now()
	defer func() { t.Stats.ValidationTime += time.Since(valStart) }()

	t.model.SetTraining(false)
	t.val.Reset()

	batches := t.val.Len()
	losses := make([]float64, 0, batches)
	for i := 0; i < batches; i++ {
		batch, err := t.val.Batch(i)
		if err != nil {
			return 0, err
		}
		logits, err := t.model.Forward(batch.Images)
		if err != nil {
			return 0, err
		}
		if len(logits) != len(batch.Labels) {
			return 0, fmt.Errorf("model has %d heads but labels cover %d positions", len(logits), len(batch.Labels))
		}

		total := 0.0
		for h, l := range logits {
			v, err := t.loss.Forward(nn.Softmax(l), batch.Labels[h])
			if err != nil {
				return 0, err
			}
			total += v
		}
		losses = append(losses, total)
	}
	return stat.Mean(losses, nil), nil
}

func (t *Trainer) logf(format string, args ...interface{}) {
	if utils.Verbose {
		fmt.Fprintf(utils.Output, format, args...)
	}
}
