package organize

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Pair is a verification example: two image paths and a label. Label 1 means
// both images belong to the same identity ("positive"), label 0 means they
// belong to different identities ("negative").
type Pair struct {
	A     string `json:"a"`
	B     string `json:"b"`
	Label int    `json:"label"`
}

// GeneratePairs samples verification pairs from an already-organized split
// directory. It is a pure in-memory generator: nothing is written to disk and
// repeated pairs are possible.
//
// Positive pairs: nPositive times, one identity is picked uniformly at
// random; if it has at least 2 images, 2 distinct images are picked uniformly
// and emitted as a positive pair. An identity with fewer than 2 images
// contributes nothing for that iteration, so the returned positive count may
// be less than requested.
//
// Negative pairs: nNegative times, 2 distinct identities are picked uniformly
// at random and one image uniformly from each. A split with fewer than 2
// identities, or a selected identity directory with zero images, is an error.
//
// The combined list is shuffled uniformly before returning.
func (o *Organizer) GeneratePairs(split string, nPositive, nNegative int) ([]Pair, error) {
	splitDir := filepath.Join(o.cfg.ProcessedDir, split)
	ids, err := scanSplit(splitDir)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 && nPositive+nNegative > 0 {
		return nil, fmt.Errorf("split %q has no identities", split)
	}

	pairs := make([]Pair, 0, nPositive+nNegative)

	for range nPositive {
		id := ids[o.rng.Intn(len(ids))]
		if len(id.images) < 2 {
			continue
		}
		i := o.rng.Intn(len(id.images))
		j := o.rng.Intn(len(id.images) - 1)
		if j >= i {
			j++
		}
		pairs = append(pairs, Pair{
			A:     filepath.Join(splitDir, id.name, id.images[i]),
			B:     filepath.Join(splitDir, id.name, id.images[j]),
			Label: 1,
		})
	}

	if nNegative > 0 && len(ids) < 2 {
		return nil, fmt.Errorf("split %q has %d identities, need at least 2 for negative pairs", split, len(ids))
	}
	for range nNegative {
		a := o.rng.Intn(len(ids))
		b := o.rng.Intn(len(ids) - 1)
		if b >= a {
			b++
		}
		idA, idB := ids[a], ids[b]
		if len(idA.images) == 0 || len(idB.images) == 0 {
			return nil, fmt.Errorf("identity directory with no images in split %q", split)
		}
		pairs = append(pairs, Pair{
			A:     filepath.Join(splitDir, idA.name, idA.images[o.rng.Intn(len(idA.images))]),
			B:     filepath.Join(splitDir, idB.name, idB.images[o.rng.Intn(len(idB.images))]),
			Label: 0,
		})
	}

	o.rng.Shuffle(len(pairs), func(i, j int) {
		pairs[i], pairs[j] = pairs[j], pairs[i]
	})
	return pairs, nil
}

// scanSplit lists every identity directory under splitDir with its image
// files. Unlike scanRaw it applies no minimum-count filter: the filter runs
// at organize time, not at pair-generation time.
func scanSplit(splitDir string) ([]identity, error) {
	entries, err := os.ReadDir(splitDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read split directory %s: %w", splitDir, err)
	}
	var ids []identity
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		images, err := listImages(filepath.Join(splitDir, entry.Name()))
		if err != nil {
			return nil, err
		}
		ids = append(ids, identity{name: entry.Name(), images: images})
	}
	return ids, nil
}

// SavePairs writes a pair list to path as JSON, so a sampled pair set can be
// reused across training runs.
func SavePairs(path string, pairs []Pair) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create pairs file %s: %w", path, err)
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(pairs); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to encode pairs to %s: %w", path, err)
	}
	return f.Close()
}

// LoadPairs reads a pair list previously written by SavePairs.
func LoadPairs(path string) ([]Pair, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pairs file %s: %w", path, err)
	}
	defer f.Close()

	var pairs []Pair
	if err := json.NewDecoder(f).Decode(&pairs); err != nil {
		return nil, fmt.Errorf("failed to decode pairs from %s: %w", path, err)
	}
	return pairs, nil
}
