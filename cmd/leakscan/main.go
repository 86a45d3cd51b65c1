package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/spf13/afero"
	"golang.org/x/term"

	"github.com/zombor/leakscan/internal/cache"
	"github.com/zombor/leakscan/internal/fingerprint"
	"github.com/zombor/leakscan/internal/leakage"
	"github.com/zombor/leakscan/internal/logging"
	"github.com/zombor/leakscan/internal/report"
	"github.com/zombor/leakscan/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	cfg, fs, err := parseConfig(os.Args[1:])
	if errors.Is(err, ff.ErrHelp) {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if cfg.version {
		fmt.Println(version)
		os.Exit(0)
	}

	logger, closeLog := logging.Setup(os.Stderr, cfg.logFile, cfg.logLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	interactive := term.IsTerminal(int(os.Stderr.Fd()))
	err = run(ctx, cfg, afero.NewOsFs(), os.Stdout, os.Stderr, interactive)
	stop()

	if err != nil {
		slog.Error("Leakage check failed", "error", err)
		closeLog()
		os.Exit(1)
	}
	closeLog()
}

// run performs one leakage check and writes the report to stdout. Progress
// is drawn on stderr when interactive and logged otherwise.
func run(ctx context.Context, cfg *config, fs afero.Fs, stdout, stderr io.Writer, interactive bool) error {
	hasher, err := fingerprint.NewHasher(cfg.hash)
	if err != nil {
		return err
	}
	formatter, err := report.NewFormatter(cfg.format, cfg.limit)
	if err != nil {
		return err
	}

	progress := scanning.NewProgressTracker(stderr, interactive)
	opts := scanning.Options{
		Extensions: cfg.extensions,
		Workers:    cfg.workers,
		AutoOrient: cfg.autoOrient,
		Progress:   progress.Update,
	}

	if cfg.cache != "" {
		slog.Info("Opening fingerprint cache", "path", cfg.cache)
		c, err := cache.NewBoltCache(cfg.cache)
		if err != nil {
			return fmt.Errorf("opening fingerprint cache: %w", err)
		}
		defer func() {
			if n, err := c.Len(); err == nil {
				slog.Debug("Fingerprint cache closed", "entries", n)
			}
			c.Close()
		}()
		opts.Cache = c
	}

	scanner := scanning.NewScanner(fs, hasher, opts)
	detector := leakage.NewDetector(scanner)

	result, err := detector.Run(ctx, leakage.Request{
		ReferenceDir: cfg.reference,
		QueryDir:     cfg.query,
		Threshold:    cfg.threshold,
		Strategy:     cfg.strategy,
		Sort:         cfg.sort,
		Sequential:   cfg.sequential,
	})
	progress.Finish()
	if err != nil {
		return err
	}

	if err := formatter.Write(stdout, result); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}
