package scanning

import (
	"slices"

	"github.com/zombor/leakscan/internal/fingerprint"
)

// Index maps each distinct fingerprint to the paths that produced it.
// Fingerprints are kept in first-seen order so iteration is deterministic.
type Index struct {
	kind   fingerprint.Kind
	order  []fingerprint.Fingerprint
	paths  map[fingerprint.Fingerprint][]string
	images int
}

// NewIndex creates an empty index for fingerprints of the given kind
func NewIndex(kind fingerprint.Kind) *Index {
	return &Index{
		kind:  kind,
		paths: make(map[fingerprint.Fingerprint][]string),
	}
}

// Add records that path has fingerprint fp
func (ix *Index) Add(fp fingerprint.Fingerprint, path string) {
	if _, ok := ix.paths[fp]; !ok {
		ix.order = append(ix.order, fp)
	}
	ix.paths[fp] = append(ix.paths[fp], path)
	ix.images++
}

// Kind returns the hash kind of every fingerprint in the index
func (ix *Index) Kind() fingerprint.Kind {
	return ix.kind
}

// Fingerprints returns the distinct fingerprints in insertion order
func (ix *Index) Fingerprints() []fingerprint.Fingerprint {
	return slices.Clone(ix.order)
}

// Paths returns the paths sharing fingerprint fp, in insertion order
func (ix *Index) Paths(fp fingerprint.Fingerprint) []string {
	return slices.Clone(ix.paths[fp])
}

// Len returns the number of distinct fingerprints
func (ix *Index) Len() int {
	return len(ix.order)
}

// Images returns the number of fingerprinted files
func (ix *Index) Images() int {
	return ix.images
}
