// Package leakage finds near-duplicate images shared between a reference
// set and a query set.
package leakage

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/zombor/leakscan/internal/scanning"
)

var (
	// ErrNegativeThreshold is returned for a distance threshold below zero
	ErrNegativeThreshold = errors.New("threshold must be non-negative")
	// ErrKindMismatch is returned when the two indices hold different hash kinds
	ErrKindMismatch = errors.New("indices hold fingerprints of different kinds")
)

// Leak is a query image within threshold of a reference image
type Leak struct {
	Query     string `json:"query" yaml:"query"`
	Reference string `json:"reference" yaml:"reference"`
	Distance  int    `json:"distance" yaml:"distance"`
}

// CompareFunc produces the leaks between two indices
type CompareFunc func(reference, query *scanning.Index, threshold int) ([]Leak, error)

func validate(reference, query *scanning.Index, threshold int) error {
	if threshold < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeThreshold, threshold)
	}
	if reference.Kind() != query.Kind() {
		return fmt.Errorf("%w: reference %s, query %s", ErrKindMismatch, reference.Kind(), query.Kind())
	}
	return nil
}

// Compare checks every distinct query fingerprint against every distinct
// reference fingerprint. Each fingerprint pair within threshold yields one
// Leak per combination of their paths. Records follow query index order,
// then reference index order, then path order; they are not sorted.
func Compare(reference, query *scanning.Index, threshold int) ([]Leak, error) {
	if err := validate(reference, query, threshold); err != nil {
		return nil, err
	}

	leaks := make([]Leak, 0)
	refs := reference.Fingerprints()
	for _, q := range query.Fingerprints() {
		queryPaths := query.Paths(q)
		for _, r := range refs {
			d := q.Distance(r)
			if d > threshold {
				continue
			}
			leaks = appendPairs(leaks, queryPaths, reference.Paths(r), d)
		}
	}
	return leaks, nil
}

// appendPairs expands one matching fingerprint pair into path pairs
func appendPairs(leaks []Leak, queryPaths, referencePaths []string, distance int) []Leak {
	for _, qp := range queryPaths {
		for _, rp := range referencePaths {
			leaks = append(leaks, Leak{Query: qp, Reference: rp, Distance: distance})
		}
	}
	return leaks
}

// SortLeaks orders leaks by distance, then query path, then reference path
func SortLeaks(leaks []Leak) {
	slices.SortStableFunc(leaks, func(a, b Leak) int {
		return cmp.Or(
			cmp.Compare(a.Distance, b.Distance),
			cmp.Compare(a.Query, b.Query),
			cmp.Compare(a.Reference, b.Reference),
		)
	})
}
