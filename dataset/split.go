package dataset

import (
	"fmt"
	"math"
	"math/rand"
)

// Split partitions samples into disjoint train and validation subsets
// covering the input exactly once. The validation subset holds
// round(fraction*N) samples drawn by permutation from rng, so a fixed
// seed and input order always reproduce the same split.
func Split(samples []Sample, fraction float64, rng *rand.Rand) (train, val []Sample, err error) {
	if fraction <= 0 || fraction >= 1 {
		return nil, nil, fmt.Errorf("validation fraction must be in (0, 1), got %v", fraction)
	}
	if rng == nil {
		return nil, nil, fmt.Errorf("split requires a random source")
	}

	n := len(samples)
	nVal := int(math.Round(fraction * float64(n)))
	perm := rng.Perm(n)

	val = make([]Sample, 0, nVal)
	train = make([]Sample, 0, n-nVal)
	for i, idx := range perm {
		if i < nVal {
			val = append(val, samples[idx])
		} else {
			train = append(train, samples[idx])
		}
	}
	return train, val, nil
}
