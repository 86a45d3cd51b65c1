package main

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"

	"github.com/peterbourgon/ff/v4"

	"github.com/zombor/leakscan/internal/fingerprint"
	"github.com/zombor/leakscan/internal/leakage"
	"github.com/zombor/leakscan/internal/logging"
	"github.com/zombor/leakscan/internal/report"
	"github.com/zombor/leakscan/internal/scanning"
)

// config is the validated command line
type config struct {
	reference  string
	query      string
	threshold  int
	limit      int
	hash       fingerprint.Kind
	strategy   leakage.Strategy
	workers    int
	sequential bool
	format     report.Format
	sort       bool
	extensions []string
	autoOrient bool
	cache      string
	logLevel   slog.Level
	logFile    string
	version    bool
}

// parseConfig reads flags, LEAKSCAN_* environment variables and the optional
// config file. The flag set is returned so callers can print usage.
func parseConfig(args []string) (*config, *ff.FlagSet, error) {
	fs := ff.NewFlagSet("leakscan")
	var (
		reference   = fs.StringLong("reference", "", "Reference (training) image directory")
		query       = fs.StringLong("query", "", "Query (validation) image directory")
		threshold   = fs.IntLong("threshold", 5, "Maximum Hamming distance reported as a leak")
		limit       = fs.IntLong("limit", report.DefaultLimit, "Number of leaks shown in the text report")
		hash        = fs.StringLong("hash", string(fingerprint.KindPerception), "Hash function: "+hashNames())
		strategy    = fs.StringLong("strategy", string(leakage.StrategyExhaustive), "Comparison strategy: exhaustive or bktree")
		workers     = fs.IntLong("workers", runtime.NumCPU(), "Concurrent fingerprinting workers per directory")
		sequential  = fs.BoolLong("sequential", "Scan the reference directory before the query directory")
		format      = fs.StringLong("format", string(report.FormatText), "Report format: text, json or yaml")
		sortLeaks   = fs.BoolLong("sort", "Sort leaks by distance, then paths")
		extensions  = fs.StringLong("ext", strings.Join(scanning.DefaultExtensions, ","), "Comma separated image extensions")
		autoOrient  = fs.BoolLong("auto-orient", "Apply EXIF orientation before hashing")
		cachePath   = fs.StringLong("cache", "", "Fingerprint cache file (disabled when empty)")
		logLevel    = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		logFile     = fs.StringLong("log-file", "", "Also write JSON logs to this file")
		_           = fs.StringLong("config", "", "Config file with one 'flag value' pair per line")
		showVersion = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, args,
		ff.WithEnvVarPrefix("LEAKSCAN"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
	); err != nil {
		return nil, fs, err
	}

	cfg := &config{
		reference:  *reference,
		query:      *query,
		threshold:  *threshold,
		limit:      *limit,
		hash:       fingerprint.Kind(*hash),
		workers:    *workers,
		sequential: *sequential,
		sort:       *sortLeaks,
		extensions: splitList(*extensions),
		autoOrient: *autoOrient,
		cache:      *cachePath,
		logFile:    *logFile,
		version:    *showVersion,
	}
	if cfg.version {
		return cfg, fs, nil
	}

	var err error
	if cfg.strategy, err = leakage.ParseStrategy(*strategy); err != nil {
		return nil, fs, err
	}
	if cfg.format, err = report.ParseFormat(*format); err != nil {
		return nil, fs, err
	}
	if cfg.logLevel, err = logging.ParseLevel(*logLevel); err != nil {
		return nil, fs, err
	}
	if err := cfg.validate(); err != nil {
		return nil, fs, err
	}
	return cfg, fs, nil
}

func (c *config) validate() error {
	var errs []error
	if c.reference == "" {
		errs = append(errs, errors.New("--reference is required"))
	}
	if c.query == "" {
		errs = append(errs, errors.New("--query is required"))
	}
	if c.threshold < 0 {
		errs = append(errs, fmt.Errorf("%w: %d", leakage.ErrNegativeThreshold, c.threshold))
	}
	if c.limit < 0 {
		errs = append(errs, fmt.Errorf("--limit must be non-negative: %d", c.limit))
	}
	if c.workers < 1 {
		errs = append(errs, fmt.Errorf("--workers must be at least 1: %d", c.workers))
	}
	if len(c.extensions) == 0 {
		errs = append(errs, errors.New("--ext must name at least one extension"))
	}
	if _, err := fingerprint.NewHasher(c.hash); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// hashNames lists the supported hash kinds for usage text
func hashNames() string {
	var names []string
	for _, k := range fingerprint.Kinds() {
		names = append(names, string(k))
	}
	return strings.Join(names, ", ")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
