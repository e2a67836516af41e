package dataset

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"runtime"
	"sync"

	"captchanet/tensor"
	"captchanet/vocab"
)

// LabelLength is the required answer length in characters.
const LabelLength = 5

// MissingImageError reports a sample whose image file cannot be opened
// or decoded. Never substituted with a blank image.
type MissingImageError struct {
	ID   string
	Path string
	Err  error
}

func (e *MissingImageError) Error() string {
	return fmt.Sprintf("missing or unreadable image for sample %s at %s: %v", e.ID, e.Path, e.Err)
}

func (e *MissingImageError) Unwrap() error { return e.Err }

// LabelLengthMismatchError reports an answer that is not exactly
// LabelLength characters.
type LabelLengthMismatchError struct {
	ID    string
	Label string
}

func (e *LabelLengthMismatchError) Error() string {
	return fmt.Sprintf("sample %s: label %q has %d characters, want %d", e.ID, e.Label, len(e.Label), LabelLength)
}

// Batch pairs an image tensor with per-position one-hot labels.
type Batch struct {
	Images *tensor.Tensor   // [batch, height, width, 3], values in [0,1]
	Labels []*tensor.Tensor // LabelLength tensors of shape [batch, vocab.Size]
}

// Provider iterates a sample list in batches, decoding images on
// demand. Apart from the epoch permutation it holds no state, so any
// batch of the current epoch can be built at any time and the provider
// can be reused for as many epochs as needed.
type Provider struct {
	samples   []Sample
	imageDir  string
	batchSize int
	height    int
	width     int
	shuffle   bool
	rng       *rand.Rand

	order []int
}

// NewProvider validates the arguments and prepares the first epoch.
// With shuffle enabled, rng drives the epoch permutations and must be
// non-nil.
func NewProvider(samples []Sample, imageDir string, batchSize, height, width int, shuffle bool, rng *rand.Rand) (*Provider, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("provider needs at least one sample")
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	if height <= 0 || width <= 0 {
		return nil, fmt.Errorf("image dimensions must be positive, got %dx%d", height, width)
	}
	if shuffle && rng == nil {
		return nil, fmt.Errorf("shuffling requires a random source")
	}

	p := &Provider{
		samples:   samples,
		imageDir:  imageDir,
		batchSize: batchSize,
		height:    height,
		width:     width,
		shuffle:   shuffle,
		rng:       rng,
	}
	p.Reset()
	return p, nil
}

// Len returns the number of batches per epoch; the final batch carries
// the remainder.
func (p *Provider) Len() int {
	return (len(p.samples) + p.batchSize - 1) / p.batchSize
}

// Reset starts a new epoch. With shuffling enabled this redraws the
// sample permutation; otherwise the manifest order is kept.
func (p *Provider) Reset() {
	if p.shuffle {
		p.order = p.rng.Perm(len(p.samples))
		return
	}
	if p.order == nil {
		p.order = make([]int, len(p.samples))
		for i := range p.order {
			p.order[i] = i
		}
	}
}

// ImagePath returns where sample id's image is expected on disk.
func (p *Provider) ImagePath(id string) string {
	return filepath.Join(p.imageDir, id+".png")
}

// Batch assembles batch i of the current epoch. Images are decoded in
// parallel; each worker fills a disjoint row range of the output
// tensors, so batch content is independent of goroutine scheduling.
func (p *Provider) Batch(i int) (*Batch, error) {
	if i < 0 || i >= p.Len() {
		return nil, fmt.Errorf("batch index %d out of range [0, %d)", i, p.Len())
	}
	start := i * p.batchSize
	end := start + p.batchSize
	if end > len(p.samples) {
		end = len(p.samples)
	}
	rows := p.order[start:end]
	n := end - start

	batch := &Batch{
		Images: tensor.New(n, p.height, p.width, 3),
		Labels: make([]*tensor.Tensor, LabelLength),
	}
	for c := range batch.Labels {
		batch.Labels[c] = tensor.New(n, vocab.Size)
	}

	// Labels first: cheap to build and fail fast on bad answers
	for row, idx := range rows {
		s := p.samples[idx]
		if len(s.Label) != LabelLength {
			return nil, &LabelLengthMismatchError{ID: s.ID, Label: s.Label}
		}
		classes, err := vocab.EncodeString(s.Label)
		if err != nil {
			return nil, fmt.Errorf("sample %s: %w", s.ID, err)
		}
		for c, class := range classes {
			batch.Labels[c].Data[row*vocab.Size+class] = 1.0
		}
	}

	workers := runtime.NumCPU()
	if workers > n {
		workers = n
	}
	errs := make([]error, n)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for row := w; row < n; row += workers {
				s := p.samples[rows[row]]
				path := p.ImagePath(s.ID)
				if err := decodeToTensor(path, p.height, p.width, batch.Images, row); err != nil {
					errs[row] = &MissingImageError{ID: s.ID, Path: path, Err: err}
				}
			}
		}(w)
	}
	wg.Wait()

	// Report the first failure in batch order, not completion order
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return batch, nil
}
