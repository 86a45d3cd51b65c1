// Package report renders the result of a leakage check.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zombor/leakscan/internal/leakage"
)

// Format selects the report rendering
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// DefaultLimit is the number of leaks shown in the text preview
const DefaultLimit = 10

// ParseFormat validates a format name. An empty name selects text.
func ParseFormat(name string) (Format, error) {
	switch Format(name) {
	case FormatText, "":
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatYAML:
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown report format %q (valid: text, json, yaml)", name)
	}
}

// Formatter writes a leakage.Result in one format
type Formatter struct {
	format Format
	limit  int
}

// NewFormatter creates a Formatter. limit only affects the text preview;
// structured formats always carry every leak.
func NewFormatter(format Format, limit int) (*Formatter, error) {
	if limit < 0 {
		return nil, fmt.Errorf("preview limit must be non-negative: %d", limit)
	}
	if _, err := ParseFormat(string(format)); err != nil {
		return nil, err
	}
	if format == "" {
		format = FormatText
	}
	return &Formatter{format: format, limit: limit}, nil
}

// Write renders result to w
func (f *Formatter) Write(w io.Writer, result *leakage.Result) error {
	switch f.format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(newDocument(result)); err != nil {
			return fmt.Errorf("encoding json report: %w", err)
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(newDocument(result)); err != nil {
			return fmt.Errorf("encoding yaml report: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("encoding yaml report: %w", err)
		}
		return nil
	default:
		return writeText(w, result, f.limit)
	}
}

// document is the structured form of a report
type document struct {
	RunID     string              `json:"run_id" yaml:"run_id"`
	StartedAt string              `json:"started_at" yaml:"started_at"`
	Duration  string              `json:"duration" yaml:"duration"`
	Hash      string              `json:"hash" yaml:"hash"`
	Strategy  string              `json:"strategy" yaml:"strategy"`
	Threshold int                 `json:"threshold" yaml:"threshold"`
	Reference leakage.ScanSummary `json:"reference" yaml:"reference"`
	Query     leakage.ScanSummary `json:"query" yaml:"query"`
	LeakCount int                 `json:"leak_count" yaml:"leak_count"`
	Leaks     []leakage.Leak      `json:"leaks" yaml:"leaks"`
}

func newDocument(r *leakage.Result) document {
	leaks := r.Leaks
	if leaks == nil {
		leaks = []leakage.Leak{}
	}
	return document{
		RunID:     r.RunID,
		StartedAt: r.StartedAt.UTC().Format(time.RFC3339),
		Duration:  r.Duration.String(),
		Hash:      string(r.Kind),
		Strategy:  string(r.Strategy),
		Threshold: r.Threshold,
		Reference: r.Reference,
		Query:     r.Query,
		LeakCount: len(leaks),
		Leaks:     leaks,
	}
}
