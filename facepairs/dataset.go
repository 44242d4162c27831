// Package facepairs wraps verification pair lists in a dataset/loader
// abstraction for a training loop.
//
// A Dataset gives indexed access to decoded (and optionally transformed)
// image pairs; a Loader batches a Dataset and implements gomlx's
// train.Dataset so it can be handed directly to a train.Loop. The packing and
// splitting logic itself lives in the organize package and has no dependency
// on the loading framework.
package facepairs

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	"github.com/Noofbiz/facePrep/organize"
)

// Transform maps a decoded image to the representation fed to the model. It
// must be deterministic per input and safe for concurrent use: the loader may
// apply it from several goroutines at once.
type Transform func(image.Image) image.Image

// Resize returns a Transform that scales images to width x height using
// Lanczos resampling. Batching requires all images in a batch to share one
// size, so most pipelines install this (or an equivalent) as the transform.
func Resize(width, height int) Transform {
	return func(img image.Image) image.Image {
		return imaging.Resize(img, width, height, imaging.Lanczos)
	}
}

// Dataset presents a fixed list of verification pairs as indexed examples.
// The pair list and transform are set at construction and never change; image
// files are read lazily at access time.
type Dataset struct {
	pairs     []organize.Pair
	transform Transform
}

// NewDataset creates a Dataset over pairs. transform may be nil, in which
// case decoded images pass through unchanged.
func NewDataset(pairs []organize.Pair, transform Transform) *Dataset {
	return &Dataset{pairs: pairs, transform: transform}
}

// Len returns the number of pairs.
func (d *Dataset) Len() int { return len(d.pairs) }

// Example loads both images of pair idx, converts each to an RGB
// representation, applies the transform to each independently and returns
// them with the pair's label. A missing or corrupt image file surfaces as an
// error here; there is no retry.
func (d *Dataset) Example(idx int) (a, b image.Image, label int, err error) {
	if idx < 0 || idx >= len(d.pairs) {
		err = errors.Errorf("index %d out of range [0, %d)", idx, len(d.pairs))
		return
	}
	p := d.pairs[idx]
	if a, err = d.load(p.A); err != nil {
		return
	}
	if b, err = d.load(p.B); err != nil {
		return
	}
	label = p.Label
	return
}

// load decodes one image file into a uniform color representation. Cloning
// through imaging normalizes whatever color model the decoder produced.
func (d *Dataset) load(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open image %q", path)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode image %q", path)
	}
	rgb := imaging.Clone(img)
	if d.transform != nil {
		return d.transform(rgb), nil
	}
	return rgb, nil
}
