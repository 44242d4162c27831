// Command faceprep organizes a raw identity-labeled image collection into
// train/val/test splits and samples verification pair lists from the result.
//
// Usage:
//
//	faceprep -raw data/raw -out data/processed
//	faceprep -raw data/raw -out data/processed -positive 3000 -negative 3000 -pairs-dir data/pairs
//	faceprep -raw data/raw -out data/processed -hist identity_counts.png
//
// Pair lists are written as JSON, one file per split, and can be loaded back
// with organize.LoadPairs for a training run.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/Noofbiz/facePrep/organize"
)

func main() {
	var (
		rawDir     = flag.String("raw", "", "raw input directory: <raw>/<identity>/*.{jpg,png}")
		outDir     = flag.String("out", "", "output directory for the train/val/test tree")
		trainRatio = flag.Float64("train-ratio", 0.8, "fraction of identities assigned to train")
		valRatio   = flag.Float64("val-ratio", 0.1, "fraction of identities assigned to val")
		minImages  = flag.Int("min-images", 5, "minimum images an identity needs to be kept")
		seed       = flag.Int64("seed", 0, "RNG seed for shuffling and sampling (0 = time-based)")
		quiet      = flag.Bool("quiet", false, "disable the copy progress bar")
		nPositive  = flag.Int("positive", 0, "positive pairs to sample per split")
		nNegative  = flag.Int("negative", 0, "negative pairs to sample per split")
		pairsDir   = flag.String("pairs-dir", "", "directory for the per-split pair JSON files (default: the output directory)")
		histPath   = flag.String("hist", "", "optional PNG path for an images-per-identity histogram of the raw collection")
	)
	flag.Parse()

	if *rawDir == "" || *outDir == "" {
		flag.Usage()
		os.Exit(2)
	}

	org, err := organize.New(organize.Config{
		RawDir:       *rawDir,
		ProcessedDir: *outDir,
		TrainRatio:   *trainRatio,
		ValRatio:     *valRatio,
		MinImages:    *minImages,
		Seed:         *seed,
		Verbose:      !*quiet,
	})
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	if *histPath != "" {
		if err := plotIdentityHistogram(*rawDir, *histPath); err != nil {
			log.Fatalf("failed to plot identity histogram: %v", err)
		}
		log.Printf("wrote images-per-identity histogram to %s", *histPath)
	}

	counts, err := org.Organize()
	if err != nil {
		log.Fatalf("organize failed: %v", err)
	}
	for _, split := range organize.Splits {
		log.Printf("split %-5s: %d images", split, counts[split])
	}

	if *nPositive <= 0 && *nNegative <= 0 {
		return
	}
	dir := *pairsDir
	if dir == "" {
		dir = *outDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Fatalf("failed to create pairs directory %s: %v", dir, err)
	}
	for _, split := range organize.Splits {
		if counts[split] == 0 {
			log.Printf("split %s is empty, skipping pair generation", split)
			continue
		}
		pairs, err := org.GeneratePairs(split, *nPositive, *nNegative)
		if err != nil {
			log.Fatalf("failed to generate pairs for split %s: %v", split, err)
		}
		path := filepath.Join(dir, split+"_pairs.json")
		if err := organize.SavePairs(path, pairs); err != nil {
			log.Fatalf("failed to save pairs for split %s: %v", split, err)
		}
		log.Printf("split %-5s: wrote %d pairs to %s", split, len(pairs), path)
	}
}

// plotIdentityHistogram renders the distribution of images per identity in
// rawDir. Handy for choosing a min-images threshold before organizing.
func plotIdentityHistogram(rawDir, outPath string) error {
	entries, err := os.ReadDir(rawDir)
	if err != nil {
		return fmt.Errorf("failed to read raw directory %s: %w", rawDir, err)
	}
	values := make(plotter.Values, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		count, err := countImages(filepath.Join(rawDir, entry.Name()))
		if err != nil {
			return err
		}
		values = append(values, float64(count))
	}
	if len(values) == 0 {
		return fmt.Errorf("no identity directories found in %s", rawDir)
	}

	p := plot.New()
	p.Title.Text = "Images per identity"
	p.X.Label.Text = "images"
	p.Y.Label.Text = "identities"
	hist, err := plotter.NewHist(values, 16)
	if err != nil {
		return fmt.Errorf("failed to build histogram: %w", err)
	}
	p.Add(hist)
	return p.Save(6*vg.Inch, 4*vg.Inch, outPath)
}

// countImages counts jpg/png files directly inside dir.
func countImages(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read identity directory %s: %w", dir, err)
	}
	count := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".jpg", ".png":
			count++
		}
	}
	return count, nil
}
