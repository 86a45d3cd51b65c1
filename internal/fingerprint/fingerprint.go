package fingerprint

import (
	"fmt"
	"math/bits"
)

// Kind identifies the hash function that produced a Fingerprint
type Kind string

const (
	// KindPerception is the DCT-based perceptual hash (pHash)
	KindPerception Kind = "phash"
	// KindAverage compares each pixel of an 8x8 thumbnail against the mean
	KindAverage Kind = "ahash"
	// KindDifference compares horizontally adjacent pixels of a 9x8 thumbnail
	KindDifference Kind = "dhash"
)

// Kinds lists every supported hash kind
func Kinds() []Kind {
	return []Kind{KindPerception, KindAverage, KindDifference}
}

// Fingerprint is a 64-bit perceptual hash of an image
type Fingerprint uint64

// Distance returns the Hamming distance between two fingerprints
func (f Fingerprint) Distance(other Fingerprint) int {
	return bits.OnesCount64(uint64(f ^ other))
}

// String returns the fingerprint as 16 hex digits
func (f Fingerprint) String() string {
	return fmt.Sprintf("%016x", uint64(f))
}
