package main

import (
	"context"
	_ "embed"
	"encoding/json"
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
	"github.com/zombor/receipt-extractor/internal/extraction"
	"github.com/zombor/receipt-extractor/internal/keywords"
	"github.com/zombor/receipt-extractor/internal/receipt"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

type config struct {
	port             int
	dbPath           string
	language         string
	applyCorrections bool
	trace            bool
	wordLevel        bool
	rateLimit        float64
	burst            int
	maxBody          int
	verbose          bool
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, ff.ErrHelp) {
			os.Exit(0)
		}
		slog.Error("Fatal error", "error", err)
		os.Exit(1)
	}
}

// run extracts the documents named in args, or "-" for stdin, and prints the
// results. Without documents it serves the HTTP API.
func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := ff.NewFlagSet("receipt-extractor")
	var cfg config
	fs.IntVar(&cfg.port, 0, "port", 8080, "HTTP server port")
	fs.StringVar(&cfg.dbPath, 0, "db", "receipt-extractor.db", "Database file path for cached extractions (empty disables the cache)")
	fs.StringVar(&cfg.language, 0, "lang", "", "Language hint: en, fi, sv, de or fr")
	fs.BoolVar(&cfg.applyCorrections, 0, "apply-corrections", "Apply corrections proposed by consistency rules")
	fs.BoolVar(&cfg.trace, 0, "trace", "Include rows, candidates and rule outcomes in results")
	fs.BoolVar(&cfg.wordLevel, 0, "word-level", "Reconstruct rows from word elements instead of lines")
	fs.Float64Var(&cfg.rateLimit, 0, "rate-limit", 0, "Requests per second accepted by the server (0 disables)")
	fs.IntVar(&cfg.burst, 0, "burst", receipt.DefaultLimits().Burst, "Requests accepted in a burst above the rate limit")
	fs.IntVar(&cfg.maxBody, 0, "max-body", int(receipt.DefaultLimits().MaxBodyBytes), "Maximum request body size in bytes")
	fs.BoolVar(&cfg.verbose, 0, "verbose", "Enable debug logging")
	fs.BoolLong("version", "Show version information")

	if err := ff.Parse(fs, args,
		ff.WithEnvVarPrefix("RECEIPT_EXTRACTOR"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		return err
	}

	level := slog.LevelInfo
	if cfg.verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	reg, err := keywords.Default()
	if err != nil {
		return fmt.Errorf("loading keywords: %w", err)
	}
	validator, err := receipt.NewValidator()
	if err != nil {
		return fmt.Errorf("loading document schema: %w", err)
	}
	engine := extraction.NewEngine(reg)

	if paths := fs.GetArgs(); len(paths) > 0 {
		service := receipt.NewService(nil, engine, validator, nil)
		return extractFiles(service, cfg, paths, stdin, stdout)
	}
	return serve(ctx, cfg, engine, validator)
}

func extractFiles(service *receipt.Service, cfg config, paths []string, stdin io.Reader, stdout io.Writer) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	opts := extraction.Options{
		ApplyCorrections: cfg.applyCorrections,
		Trace:            cfg.trace,
		WordLevel:        cfg.wordLevel,
	}

	for _, path := range paths {
		var (
			data []byte
			err  error
		)
		if path == "-" {
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(path)
		}
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		e, err := service.Extract(receipt.Request{Data: data, Language: cfg.language, Options: opts})
		if err != nil {
			return fmt.Errorf("extracting %s: %w", path, err)
		}
		if err := enc.Encode(e.Result); err != nil {
			return fmt.Errorf("writing result: %w", err)
		}
	}
	return nil
}

func serve(ctx context.Context, cfg config, engine *extraction.Engine, validator *receipt.Validator) error {
	var db receipt.DB
	if cfg.dbPath != "" {
		slog.Info("Initializing database...", "path", cfg.dbPath)
		boltDB, err := receipt.NewBoltDB(cfg.dbPath)
		if err != nil {
			return fmt.Errorf("initializing database: %w", err)
		}
		defer boltDB.Close()
		db = boltDB
	} else {
		slog.Info("Extraction cache disabled")
	}

	metrics := receipt.NewMetrics()
	service := receipt.NewService(db, engine, validator, metrics)
	server := receipt.NewServer(service, metrics, receipt.Limits{
		RequestsPerSecond: cfg.rateLimit,
		Burst:             cfg.burst,
		MaxBodyBytes:      int64(cfg.maxBody),
	})

	addr := fmt.Sprintf(":%d", cfg.port)
	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	return server.Start(ctx, addr)
}
