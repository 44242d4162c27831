package facepairs

import (
	"image"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	timage "github.com/gomlx/gomlx/pkg/core/tensors/images"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/gopjrt/dtypes"

	"github.com/Noofbiz/facePrep/organize"
)

// Loader batches a Dataset for a gomlx training loop. Each Yield returns two
// image tensors shaped [batch, height, width, 3] plus an int label tensor
// shaped [batch]; io.EOF signals the end of a pass. A shuffling loader
// reorders the pairs on every Reset, an order-preserving one visits them in
// the same order every pass.
//
// Decoding and transforming fan out over numWorkers goroutines per batch.
// Workers get read-only access to the pair list and independent file reads,
// so no locking beyond the loader's own position counter is needed.
type Loader struct {
	name       string
	ds         *Dataset
	batchSize  int
	shuffle    bool
	numWorkers int

	// staging keeps batch buffers alive across yields so each Yield reuses
	// the same backing slices instead of reallocating. It is the host-side
	// analogue of pinned-memory staging; a performance hint only.
	staging        bool
	stageA, stageB []image.Image
	stageLabels    []int

	toTensor *timage.ToTensorConfig

	mu      sync.Mutex
	rng     *rand.Rand
	indices []int
	pos     int
}

// Loader implements gomlx's train.Dataset.
var _ train.Dataset = &Loader{}

// NewLoader creates a batched iteration source over ds. If shuffle is set the
// pair order is reshuffled on every Reset; otherwise order is preserved
// across passes. numWorkers bounds the decode/transform parallelism per
// batch; values below 1 mean sequential loading.
func NewLoader(name string, ds *Dataset, batchSize int, shuffle bool, numWorkers int) *Loader {
	if batchSize <= 0 {
		batchSize = 1
	}
	if numWorkers <= 0 {
		numWorkers = 1
	}
	l := &Loader{
		name:       name,
		ds:         ds,
		batchSize:  batchSize,
		shuffle:    shuffle,
		numWorkers: numWorkers,
		toTensor:   timage.ToTensor(dtypes.Float32),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		indices:    make([]int, ds.Len()),
	}
	for i := range l.indices {
		l.indices[i] = i
	}
	l.Reset()
	return l
}

// NewLoaders builds the two batch sources a verification training run needs:
// a shuffling loader over the train pairs and an order-preserving one over
// the validation pairs, each with its own transform. Both have staging-buffer
// reuse enabled.
func NewLoaders(trainPairs, valPairs []organize.Pair, trainTransform, valTransform Transform,
	batchSize, numWorkers int) (trainLoader, valLoader *Loader) {
	trainLoader = NewLoader("train", NewDataset(trainPairs, trainTransform),
		batchSize, true, numWorkers).WithStaging(true)
	valLoader = NewLoader("val", NewDataset(valPairs, valTransform),
		batchSize, false, numWorkers).WithStaging(true)
	return
}

// WithRand replaces the shuffle RNG and reshuffles. Useful for deterministic
// tests; has no effect on an order-preserving loader. Returns the loader to
// allow chaining.
func (l *Loader) WithRand(rng *rand.Rand) *Loader {
	l.mu.Lock()
	l.rng = rng
	l.mu.Unlock()
	l.Reset()
	return l
}

// WithStaging toggles reuse of the batch staging buffers between yields.
// Returns the loader to allow chaining.
func (l *Loader) WithStaging(enabled bool) *Loader {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.staging = enabled
	if !enabled {
		l.stageA, l.stageB, l.stageLabels = nil, nil, nil
	}
	return l
}

// Name implements train.Dataset.
func (l *Loader) Name() string { return l.name }

// Reset implements train.Dataset. It rewinds to the start of the pair list
// and, for a shuffling loader, draws a fresh permutation.
func (l *Loader) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pos = 0
	if l.shuffle {
		l.rng.Shuffle(len(l.indices), func(i, j int) {
			l.indices[i], l.indices[j] = l.indices[j], l.indices[i]
		})
	}
}

// Yield implements train.Dataset. It returns:
//
//   - spec: a pointer to the Loader.
//   - inputs: two tensors shaped [batch, height, width, 3], one per side of
//     the pairs.
//   - labels: one int tensor shaped [batch].
//
// The final batch of a pass may be smaller than the configured batch size.
// After the whole pair list has been yielded it returns io.EOF until Reset is
// called.
func (l *Loader) Yield() (spec any, inputs, labels []*tensors.Tensor, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pos >= len(l.indices) {
		err = io.EOF
		return
	}
	end := l.pos + l.batchSize
	if end > len(l.indices) {
		end = len(l.indices)
	}
	batch := l.indices[l.pos:end]
	l.pos = end

	imgsA, imgsB, lbls := l.stageBuffers(len(batch))
	if err = l.loadBatch(batch, imgsA, imgsB, lbls); err != nil {
		return
	}

	spec = l
	inputs = []*tensors.Tensor{l.toTensor.Batch(imgsA), l.toTensor.Batch(imgsB)}
	labels = []*tensors.Tensor{tensors.FromValue(lbls)}
	return
}

// loadBatch fills the staging slices for the given dataset indices, fanning
// the per-pair work out over the worker pool.
func (l *Loader) loadBatch(batch []int, imgsA, imgsB []image.Image, lbls []int) error {
	workers := l.numWorkers
	if workers > len(batch) {
		workers = len(batch)
	}

	jobs := make(chan int, len(batch))
	errCh := make(chan error, workers)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for pos := range jobs {
				a, b, label, err := l.ds.Example(batch[pos])
				if err != nil {
					errCh <- err
					return
				}
				imgsA[pos], imgsB[pos], lbls[pos] = a, b, label
			}
		}()
	}
	for pos := range len(batch) {
		jobs <- pos
	}
	close(jobs)
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}

// stageBuffers returns slices of length n to decode the batch into, reusing
// the loader's retained buffers when staging is enabled.
func (l *Loader) stageBuffers(n int) ([]image.Image, []image.Image, []int) {
	if !l.staging {
		return make([]image.Image, n), make([]image.Image, n), make([]int, n)
	}
	if cap(l.stageA) < n {
		l.stageA = make([]image.Image, n)
		l.stageB = make([]image.Image, n)
		l.stageLabels = make([]int, n)
	}
	return l.stageA[:n], l.stageB[:n], l.stageLabels[:n]
}
