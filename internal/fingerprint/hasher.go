package fingerprint

import (
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/corona10/goimagehash"
)

// Hasher computes a fingerprint from a decoded image.
// Implementations must be deterministic and safe for concurrent use.
type Hasher interface {
	// Kind reports which hash function the hasher implements
	Kind() Kind
	// Hash computes the fingerprint of img
	Hash(img image.Image) (Fingerprint, error)
}

// imageHasher adapts one of the goimagehash functions to the Hasher interface
type imageHasher struct {
	kind Kind
	fn   func(image.Image) (*goimagehash.ImageHash, error)
}

// NewHasher returns the Hasher for the given kind. An empty kind selects pHash.
func NewHasher(kind Kind) (Hasher, error) {
	switch kind {
	case KindPerception, "":
		return &imageHasher{kind: KindPerception, fn: goimagehash.PerceptionHash}, nil
	case KindAverage:
		return &imageHasher{kind: KindAverage, fn: goimagehash.AverageHash}, nil
	case KindDifference:
		return &imageHasher{kind: KindDifference, fn: goimagehash.DifferenceHash}, nil
	default:
		return nil, fmt.Errorf("unknown hash kind %q (valid: %s)", kind, kindNames())
	}
}

func kindNames() string {
	names := make([]string, 0, len(Kinds()))
	for _, k := range Kinds() {
		names = append(names, string(k))
	}
	return strings.Join(names, ", ")
}

func (h *imageHasher) Kind() Kind {
	return h.kind
}

func (h *imageHasher) Hash(img image.Image) (Fingerprint, error) {
	if img == nil {
		return 0, errors.New("cannot hash a nil image")
	}
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return 0, errors.New("cannot hash an empty image")
	}

	hash, err := h.fn(img)
	if err != nil {
		return 0, fmt.Errorf("computing %s: %w", h.kind, err)
	}
	return Fingerprint(hash.GetHash()), nil
}
