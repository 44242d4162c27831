package organize

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// makeSplit builds an already-organized split tree directly: pair generation
// operates on the processed layout, independent of how it was produced.
func makeSplit(t *testing.T, processedDir, split string, imagesPerIdentity map[string]int) {
	t.Helper()
	for name, count := range imagesPerIdentity {
		dir := filepath.Join(processedDir, split, name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("failed to create %s: %v", dir, err)
		}
		for i := 0; i < count; i++ {
			writePNG(t, filepath.Join(dir, fmt.Sprintf("f%02d.png", i)),
				color.NRGBA{R: uint8(i), G: uint8(count), A: 255})
		}
	}
}

func newTestOrganizer(t *testing.T, processedDir string, seed int64) *Organizer {
	t.Helper()
	org, err := New(Config{RawDir: t.TempDir(), ProcessedDir: processedDir, Seed: seed})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return org
}

// identityOf extracts the identity directory name from a pair path.
func identityOf(t *testing.T, path string) string {
	t.Helper()
	return filepath.Base(filepath.Dir(path))
}

func TestGeneratePairs_LabelsAndCounts(t *testing.T) {
	processed := t.TempDir()
	makeSplit(t, processed, SplitTrain, map[string]int{"ann": 4, "bob": 3, "cyd": 5})

	org := newTestOrganizer(t, processed, 11)
	pairs, err := org.GeneratePairs(SplitTrain, 20, 15)
	if err != nil {
		t.Fatalf("GeneratePairs failed: %v", err)
	}

	positives, negatives := 0, 0
	for _, p := range pairs {
		idA, idB := identityOf(t, p.A), identityOf(t, p.B)
		switch p.Label {
		case 1:
			positives++
			if idA != idB {
				t.Fatalf("positive pair spans identities %s and %s", idA, idB)
			}
			if p.A == p.B {
				t.Fatalf("positive pair repeats the same image %s", p.A)
			}
		case 0:
			negatives++
			if idA == idB {
				t.Fatalf("negative pair stays within identity %s", idA)
			}
		default:
			t.Fatalf("unexpected label %d", p.Label)
		}
		for _, path := range []string{p.A, p.B} {
			if _, err := os.Stat(path); err != nil {
				t.Fatalf("pair references missing file %s: %v", path, err)
			}
			if !strings.Contains(path, filepath.Join(processed, SplitTrain)) {
				t.Fatalf("pair path %s escapes the split directory", path)
			}
		}
	}
	// All identities have >=2 images, so both requests are met exactly.
	if positives != 20 {
		t.Fatalf("expected 20 positive pairs, got %d", positives)
	}
	if negatives != 15 {
		t.Fatalf("expected 15 negative pairs, got %d", negatives)
	}
}

// TestGeneratePairs_UnderGeneratesPositives: identities with a single image
// contribute no positive pairs, so the positive count silently undershoots
// while negatives stay exact.
func TestGeneratePairs_UnderGeneratesPositives(t *testing.T) {
	processed := t.TempDir()
	makeSplit(t, processed, SplitVal, map[string]int{"solo1": 1, "solo2": 1})

	org := newTestOrganizer(t, processed, 5)
	pairs, err := org.GeneratePairs(SplitVal, 10, 6)
	if err != nil {
		t.Fatalf("GeneratePairs failed: %v", err)
	}
	for _, p := range pairs {
		if p.Label == 1 {
			t.Fatalf("got a positive pair from single-image identities: %+v", p)
		}
	}
	if len(pairs) != 6 {
		t.Fatalf("expected exactly the 6 negative pairs, got %d", len(pairs))
	}
}

func TestGeneratePairs_RequiresTwoIdentitiesForNegatives(t *testing.T) {
	processed := t.TempDir()
	makeSplit(t, processed, SplitTest, map[string]int{"lonely": 3})

	org := newTestOrganizer(t, processed, 2)
	if _, err := org.GeneratePairs(SplitTest, 0, 1); err == nil {
		t.Fatal("expected error for negative pairs over a single identity")
	}

	// Positives alone are fine with one identity.
	pairs, err := org.GeneratePairs(SplitTest, 4, 0)
	if err != nil {
		t.Fatalf("GeneratePairs failed for positives only: %v", err)
	}
	if len(pairs) != 4 {
		t.Fatalf("expected 4 positive pairs, got %d", len(pairs))
	}
}

func TestGeneratePairs_EmptyIdentityDirectory(t *testing.T) {
	processed := t.TempDir()
	makeSplit(t, processed, SplitTrain, map[string]int{"full": 2})
	if err := os.MkdirAll(filepath.Join(processed, SplitTrain, "empty"), 0o755); err != nil {
		t.Fatalf("failed to create empty identity dir: %v", err)
	}

	org := newTestOrganizer(t, processed, 9)
	// With exactly two identities every negative draw selects both, so the
	// empty directory is guaranteed to be hit.
	if _, err := org.GeneratePairs(SplitTrain, 0, 3); err == nil {
		t.Fatal("expected error for an identity directory with zero images")
	}
}

func TestGeneratePairs_MissingSplit(t *testing.T) {
	org := newTestOrganizer(t, t.TempDir(), 1)
	if _, err := org.GeneratePairs("nope", 1, 1); err == nil {
		t.Fatal("expected error for a split directory that does not exist")
	}
}

func TestSaveLoadPairs(t *testing.T) {
	pairs := []Pair{
		{A: "train/ann/f00.png", B: "train/ann/f01.png", Label: 1},
		{A: "train/ann/f00.png", B: "train/bob/f02.png", Label: 0},
	}
	path := filepath.Join(t.TempDir(), "pairs.json")
	if err := SavePairs(path, pairs); err != nil {
		t.Fatalf("SavePairs failed: %v", err)
	}
	loaded, err := LoadPairs(path)
	if err != nil {
		t.Fatalf("LoadPairs failed: %v", err)
	}
	if len(loaded) != len(pairs) {
		t.Fatalf("expected %d pairs, got %d", len(pairs), len(loaded))
	}
	for i := range pairs {
		if loaded[i] != pairs[i] {
			t.Fatalf("pair %d mismatch: got %+v want %+v", i, loaded[i], pairs[i])
		}
	}
}
