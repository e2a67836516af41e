package trainer

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"
)

// EpochStats is one epoch's outcome.
type EpochStats struct {
	Epoch     int
	TrainLoss float64
	ValLoss   float64
	Duration  time.Duration
}

// History collects per-epoch stats across a run, the raw data behind a
// training curve.
type History []EpochStats

// WriteCSV saves the history to path with a header row.
func (h History) WriteCSV(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cannot write history: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write([]string{"Epoch", "TrainLoss", "ValLoss", "Seconds"}); err != nil {
		return fmt.Errorf("writing csv headers: %w", err)
	}
	for _, e := range h {
		record := []string{
			strconv.Itoa(e.Epoch),
			strconv.FormatFloat(e.TrainLoss, 'f', 6, 64),
			strconv.FormatFloat(e.ValLoss, 'f', 6, 64),
			strconv.FormatFloat(e.Duration.Seconds(), 'f', 2, 64),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("writing csv record: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}
