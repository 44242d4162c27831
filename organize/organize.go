package organize

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Split directory names produced under Config.ProcessedDir.
const (
	SplitTrain = "train"
	SplitVal   = "val"
	SplitTest  = "test"
)

// Splits lists all split names in the order they are assigned: train gets the
// first slice of the shuffled identity list, val the second, test the rest.
var Splits = []string{SplitTrain, SplitVal, SplitTest}

// Config holds the configurable knobs for organizing a raw identity-labeled
// image collection into train/val/test partitions.
type Config struct {
	// RawDir is the input layout: <RawDir>/<identity>/*.{jpg,png}, one
	// subdirectory per identity.
	RawDir string

	// ProcessedDir is where the mirrored output tree is created:
	// <ProcessedDir>/{train,val,test}/<identity>/<filename>.
	ProcessedDir string

	// TrainRatio is the fraction of identities assigned to the train split
	// (default if 0: 0.8). The split is by identity, not by image, so no
	// identity ever straddles two splits.
	TrainRatio float64

	// ValRatio is the fraction of identities assigned to the val split
	// (default if 0: 0.1). Whatever is left after train and val goes to test.
	ValRatio float64

	// MinImages is the minimum number of images an identity must have to
	// survive filtering (default if 0: 5).
	MinImages int

	// Seed controls the RNG used for identity shuffling and pair sampling.
	// If zero, a time-based seed is used.
	Seed int64

	// Verbose enables a progress bar while copying files.
	Verbose bool
}

// Organizer partitions a raw directory tree of per-identity image folders
// into train/val/test splits and samples verification pairs from the result.
// All randomness flows through a single seedable RNG so runs can be made
// reproducible via Config.Seed.
type Organizer struct {
	cfg Config
	rng *rand.Rand
}

// New creates an Organizer from cfg, filling in defaults for zero values.
func New(cfg Config) (*Organizer, error) {
	if cfg.RawDir == "" {
		return nil, fmt.Errorf("raw directory not set")
	}
	if cfg.ProcessedDir == "" {
		return nil, fmt.Errorf("processed directory not set")
	}
	if cfg.TrainRatio == 0 {
		cfg.TrainRatio = 0.8
	}
	if cfg.ValRatio == 0 {
		cfg.ValRatio = 0.1
	}
	if cfg.TrainRatio < 0 || cfg.ValRatio < 0 || cfg.TrainRatio+cfg.ValRatio > 1 {
		return nil, fmt.Errorf("invalid split ratios: train=%v val=%v", cfg.TrainRatio, cfg.ValRatio)
	}
	if cfg.MinImages == 0 {
		cfg.MinImages = 5
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	return &Organizer{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// identity is a directory name plus the image file names found inside it.
type identity struct {
	name   string
	images []string
}

// Organize scans RawDir for identity subdirectories, drops identities with
// fewer than MinImages images, shuffles the survivors and assigns contiguous
// slices to train/val/test by the configured ratios (integer-truncated, the
// remainder going to test). Every image of an assigned identity is copied to
// <ProcessedDir>/<split>/<identity>/<filename>, preserving file mode and
// modification time. Directories are created as needed; pre-existing files in
// ProcessedDir are left alone except for name collisions, which are
// overwritten.
//
// It returns the number of images copied per split. An empty raw directory is
// not an error: it just produces three empty splits.
func (o *Organizer) Organize() (map[string]int, error) {
	ids, err := o.scanRaw()
	if err != nil {
		return nil, err
	}

	o.rng.Shuffle(len(ids), func(i, j int) {
		ids[i], ids[j] = ids[j], ids[i]
	})

	n := len(ids)
	nTrain := int(float64(n) * o.cfg.TrainRatio)
	nVal := int(float64(n) * o.cfg.ValRatio)
	assignment := map[string][]identity{
		SplitTrain: ids[:nTrain],
		SplitVal:   ids[nTrain : nTrain+nVal],
		SplitTest:  ids[nTrain+nVal:],
	}

	var bar *progressbar.ProgressBar
	if o.cfg.Verbose {
		total := 0
		for _, id := range ids {
			total += len(id.images)
		}
		bar = progressbar.NewOptions(total,
			progressbar.OptionSetDescription("Organizing"),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("images"),
			progressbar.OptionSetTheme(progressbar.ThemeUnicode),
		)
	}

	counts := make(map[string]int, len(Splits))
	for _, split := range Splits {
		counts[split] = 0
		if err := os.MkdirAll(filepath.Join(o.cfg.ProcessedDir, split), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create split directory %s: %w", split, err)
		}
		for _, id := range assignment[split] {
			dstDir := filepath.Join(o.cfg.ProcessedDir, split, id.name)
			if err := os.MkdirAll(dstDir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create split directory %s: %w", dstDir, err)
			}
			for _, name := range id.images {
				src := filepath.Join(o.cfg.RawDir, id.name, name)
				if err := copyFile(src, filepath.Join(dstDir, name)); err != nil {
					return nil, fmt.Errorf("failed to copy %s into %s split: %w", src, split, err)
				}
				counts[split]++
				if bar != nil {
					_ = bar.Add(1)
				}
			}
		}
	}
	if bar != nil {
		_ = bar.Close()
		fmt.Println()
	}
	return counts, nil
}

// scanRaw lists the identities in RawDir that pass the minimum image count
// filter. Entries that are not directories are silently skipped.
func (o *Organizer) scanRaw() ([]identity, error) {
	entries, err := os.ReadDir(o.cfg.RawDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read raw directory %s: %w", o.cfg.RawDir, err)
	}
	var ids []identity
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		images, err := listImages(filepath.Join(o.cfg.RawDir, entry.Name()))
		if err != nil {
			return nil, err
		}
		if len(images) < o.cfg.MinImages {
			continue
		}
		ids = append(ids, identity{name: entry.Name(), images: images})
	}
	return ids, nil
}

// listImages returns the image file names (jpg/png, case-insensitive) found
// directly inside dir.
func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read identity directory %s: %w", dir, err)
	}
	var images []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".jpg", ".png":
			images = append(images, entry.Name())
		}
	}
	return images, nil
}

// copyFile copies src to dst, carrying over the source's permission bits and
// modification time. An existing dst is truncated.
func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", src, err)
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", dst, err)
	}
	if err := os.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
		return fmt.Errorf("failed to preserve times on %s: %w", dst, err)
	}
	return nil
}
