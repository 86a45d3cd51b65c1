package leakage

import "fmt"

// Strategy selects how fingerprints are compared
type Strategy string

const (
	// StrategyExhaustive compares every query fingerprint with every reference fingerprint
	StrategyExhaustive Strategy = "exhaustive"
	// StrategyBKTree looks reference fingerprints up in a BK-tree
	StrategyBKTree Strategy = "bktree"
)

// ParseStrategy validates a strategy name. An empty name selects exhaustive.
func ParseStrategy(name string) (Strategy, error) {
	switch Strategy(name) {
	case StrategyExhaustive, "":
		return StrategyExhaustive, nil
	case StrategyBKTree:
		return StrategyBKTree, nil
	default:
		return "", fmt.Errorf("unknown strategy %q (valid: exhaustive, bktree)", name)
	}
}

// CompareFunc returns the comparison function implementing the strategy
func (s Strategy) CompareFunc() (CompareFunc, error) {
	switch s {
	case StrategyExhaustive, "":
		return Compare, nil
	case StrategyBKTree:
		return CompareIndexed, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", s)
	}
}
