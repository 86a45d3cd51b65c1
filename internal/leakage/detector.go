package leakage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/zombor/leakscan/internal/fingerprint"
	"github.com/zombor/leakscan/internal/scanning"
)

// Labels used for the two sets in logs, progress and reports
const (
	LabelReference = "reference"
	LabelQuery     = "query"
)

// IndexScanner builds a fingerprint index for a directory
type IndexScanner interface {
	Scan(ctx context.Context, label, root string) (*scanning.Result, error)
}

// IDGenerator generates unique run IDs
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultIDGenerator generates random UUIDs
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Request describes one leakage check
type Request struct {
	ReferenceDir string
	QueryDir     string
	Threshold    int
	Strategy     Strategy
	// Sort orders the leaks by distance then paths
	Sort bool
	// Sequential scans the reference set before the query set instead of
	// scanning both at once
	Sequential bool
}

// SkippedFile is a file that could not be fingerprinted
type SkippedFile struct {
	Path  string `json:"path" yaml:"path"`
	Error string `json:"error" yaml:"error"`
}

// ScanSummary describes the scan of one set
type ScanSummary struct {
	Label         string        `json:"label" yaml:"label"`
	Root          string        `json:"root" yaml:"root"`
	Candidates    int           `json:"candidates" yaml:"candidates"`
	Fingerprinted int           `json:"fingerprinted" yaml:"fingerprinted"`
	Distinct      int           `json:"distinct" yaml:"distinct"`
	CacheHits     int           `json:"cache_hits" yaml:"cache_hits"`
	Skipped       []SkippedFile `json:"skipped" yaml:"skipped"`
}

// Result is the outcome of a leakage check
type Result struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration
	Kind      fingerprint.Kind
	Strategy  Strategy
	Threshold int
	Reference ScanSummary
	Query     ScanSummary
	Leaks     []Leak
}

// Detector scans a reference and a query directory and reports near-duplicates
type Detector struct {
	scanner     IndexScanner
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewDetector creates a new Detector with default ID generator and time source
func NewDetector(scanner IndexScanner) *Detector {
	return &Detector{
		scanner:     scanner,
		idGenerator: &defaultIDGenerator{},
		timeSource:  &defaultTimeSource{},
	}
}

// NewDetectorWithDeps creates a new Detector with custom dependencies for testing
func NewDetectorWithDeps(scanner IndexScanner, idGen IDGenerator, timeSrc TimeSource) *Detector {
	return &Detector{
		scanner:     scanner,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// Run scans both directories and compares them. Any error is fatal: no
// partial result is returned. Zero leaks is a successful outcome.
func (d *Detector) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Threshold < 0 {
		return nil, fmt.Errorf("%w: %d", ErrNegativeThreshold, req.Threshold)
	}
	compare, err := req.Strategy.CompareFunc()
	if err != nil {
		return nil, err
	}

	runID := d.idGenerator.Generate()
	start := d.timeSource.Now()
	slog.Info("Starting leakage check",
		"run_id", runID,
		"reference", req.ReferenceDir,
		"query", req.QueryDir,
		"threshold", req.Threshold,
	)

	reference, query, err := d.scanBoth(ctx, req)
	if err != nil {
		return nil, err
	}

	leaks, err := compare(reference.Index, query.Index, req.Threshold)
	if err != nil {
		return nil, fmt.Errorf("comparing fingerprints: %w", err)
	}
	if req.Sort {
		SortLeaks(leaks)
	}

	strategy := req.Strategy
	if strategy == "" {
		strategy = StrategyExhaustive
	}

	result := &Result{
		RunID:     runID,
		StartedAt: start,
		Duration:  d.timeSource.Now().Sub(start),
		Kind:      reference.Index.Kind(),
		Strategy:  strategy,
		Threshold: req.Threshold,
		Reference: summarize(LabelReference, reference),
		Query:     summarize(LabelQuery, query),
		Leaks:     leaks,
	}

	slog.Info("Leakage check complete",
		"run_id", runID,
		"leaks", len(leaks),
		"duration", result.Duration,
	)
	return result, nil
}

// scanBoth scans the reference and query directories
func (d *Detector) scanBoth(ctx context.Context, req Request) (*scanning.Result, *scanning.Result, error) {
	if req.Sequential {
		reference, err := d.scanner.Scan(ctx, LabelReference, req.ReferenceDir)
		if err != nil {
			return nil, nil, fmt.Errorf("scanning reference set: %w", err)
		}
		query, err := d.scanner.Scan(ctx, LabelQuery, req.QueryDir)
		if err != nil {
			return nil, nil, fmt.Errorf("scanning query set: %w", err)
		}
		return reference, query, nil
	}

	var reference, query *scanning.Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		reference, err = d.scanner.Scan(gctx, LabelReference, req.ReferenceDir)
		if err != nil {
			return fmt.Errorf("scanning reference set: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		query, err = d.scanner.Scan(gctx, LabelQuery, req.QueryDir)
		if err != nil {
			return fmt.Errorf("scanning query set: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return reference, query, nil
}

// summarize converts a scan result into its report form
func summarize(label string, r *scanning.Result) ScanSummary {
	skipped := make([]SkippedFile, 0, len(r.Skipped))
	for _, s := range r.Skipped {
		skipped = append(skipped, SkippedFile{Path: s.Path, Error: s.Err.Error()})
	}
	return ScanSummary{
		Label:         label,
		Root:          r.Root,
		Candidates:    r.Candidates,
		Fingerprinted: r.Index.Images(),
		Distinct:      r.Index.Len(),
		CacheHits:     r.CacheHits,
		Skipped:       skipped,
	}
}
