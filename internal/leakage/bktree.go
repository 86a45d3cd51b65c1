package leakage

import (
	"slices"

	"github.com/zombor/leakscan/internal/fingerprint"
	"github.com/zombor/leakscan/internal/scanning"
)

// bkNode is a BK-tree node. Children are keyed by their distance to the node.
type bkNode struct {
	fp       fingerprint.Fingerprint
	pos      int
	children map[int]*bkNode
}

// bkTree indexes fingerprints under Hamming distance
type bkTree struct {
	root *bkNode
}

func (t *bkTree) insert(fp fingerprint.Fingerprint, pos int) {
	node := &bkNode{fp: fp, pos: pos}
	if t.root == nil {
		t.root = node
		return
	}

	cur := t.root
	for {
		d := cur.fp.Distance(fp)
		if cur.children == nil {
			cur.children = make(map[int]*bkNode)
		}
		next, ok := cur.children[d]
		if !ok {
			cur.children[d] = node
			return
		}
		cur = next
	}
}

// bkMatch is a reference fingerprint found within threshold
type bkMatch struct {
	pos      int
	distance int
}

// search returns every indexed fingerprint within threshold of fp
func (t *bkTree) search(fp fingerprint.Fingerprint, threshold int) []bkMatch {
	if t.root == nil {
		return nil
	}

	var matches []bkMatch
	stack := []*bkNode{t.root}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		d := node.fp.Distance(fp)
		if d <= threshold {
			matches = append(matches, bkMatch{pos: node.pos, distance: d})
		}
		// Triangle inequality: only children at distance d±threshold can match
		for cd, child := range node.children {
			if cd >= d-threshold && cd <= d+threshold {
				stack = append(stack, child)
			}
		}
	}
	return matches
}

// CompareIndexed returns the same leaks in the same order as Compare, but
// looks candidates up in a BK-tree built over the reference fingerprints
// instead of scanning all of them for every query fingerprint.
func CompareIndexed(reference, query *scanning.Index, threshold int) ([]Leak, error) {
	if err := validate(reference, query, threshold); err != nil {
		return nil, err
	}

	refs := reference.Fingerprints()
	tree := &bkTree{}
	for pos, fp := range refs {
		tree.insert(fp, pos)
	}

	leaks := make([]Leak, 0)
	for _, q := range query.Fingerprints() {
		matches := tree.search(q, threshold)
		if len(matches) == 0 {
			continue
		}
		slices.SortFunc(matches, func(a, b bkMatch) int { return a.pos - b.pos })

		queryPaths := query.Paths(q)
		for _, m := range matches {
			leaks = appendPairs(leaks, queryPaths, reference.Paths(refs[m.pos]), m.distance)
		}
	}
	return leaks, nil
}
