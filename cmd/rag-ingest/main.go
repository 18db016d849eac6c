package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"ragengine/internal/checksum"
	"ragengine/internal/chunker"
	"ragengine/internal/config"
	"ragengine/internal/domain"
	"ragengine/internal/embedding"
	"ragengine/internal/embedding/hashing"
	"ragengine/internal/embedding/openai"
	"ragengine/internal/extract"
	"ragengine/internal/index/bolt"
	"ragengine/internal/index/jsonfile"
	"ragengine/internal/ingest"
	"ragengine/internal/retriever"
	"ragengine/internal/service"
	"ragengine/internal/tokenizer"

	charmlog "github.com/charmbracelet/log"
)

func main() {
	_ = godotenv.Load()

	var cfgPath, mode string
	var status bool
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/ragengine/config.yaml if not provided)")
	flag.StringVar(&mode, "mode", "changed", "Ingestion mode: all, changed, or files (files are the positional arguments)")
	flag.BoolVar(&status, "status", false, "Print the source directory diff and exit without ingesting")
	flag.Parse()

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := cfg.Logger(os.Stderr)

	engine, store, err := buildEngine(cfg, logger)
	if err != nil {
		logger.Fatal("assemble engine", "err", err)
	}
	defer store.Close()

	ctx := context.Background()
	if status {
		changes, err := engine.Status(ctx)
		if err != nil {
			logger.Fatal("status", "err", err)
		}
		printStatus(changes)
		return
	}

	opts := ingest.Options{Mode: ingest.Mode(mode), Files: flag.Args()}
	switch opts.Mode {
	case ingest.ModeAll, ingest.ModeChanged:
	case ingest.ModeFiles:
		if len(opts.Files) == 0 {
			fmt.Fprintln(os.Stderr, "mode files requires at least one file argument")
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown mode: %s\n", mode)
		os.Exit(1)
	}

	report, err := engine.Ingest(ctx, opts)
	if err != nil {
		logger.Fatal("ingest", "err", err)
	}
	printReport(report)
	if report.FilesFailed > 0 {
		os.Exit(1)
	}
}

func printStatus(c checksum.Changes) {
	fmt.Printf("unchanged: %d  modified: %d  new: %d  deleted: %d\n",
		len(c.Unchanged), len(c.Modified), len(c.New), len(c.Deleted))
	for _, f := range c.Modified {
		fmt.Printf("  M %s\n", f)
	}
	for _, f := range c.New {
		fmt.Printf("  A %s\n", f)
	}
	for _, f := range c.Deleted {
		fmt.Printf("  D %s\n", f)
	}
}

func printReport(r *ingest.Report) {
	fmt.Printf("run %s finished in %s\n", r.RunID, r.Duration.Round(time.Millisecond))
	fmt.Printf("  files seen %d, ingested %d, failed %d, empty %d\n",
		r.FilesSeen, r.FilesIngested, r.FilesFailed, r.ZeroChunkFiles)
	fmt.Printf("  chunks embedded %d, chunks in index %d\n", r.ChunksEmbedded, r.ChunksInIndex)
	for _, f := range r.Failures {
		fmt.Printf("  failed %s (%s): %s\n", f.File, f.Stage, f.Err)
	}
}

// buildEngine assembles the full stack from config.
func buildEngine(cfg *config.AppConfig, logger *charmlog.Logger) (*service.Engine, domain.IndexStore, error) {
	counter := tokenizer.NewCounter(cfg.Chunker.Encoding)
	ch := chunker.NewTokenChunker(counter, cfg.Chunker.MaxTokens, cfg.Chunker.OverlapTokens)

	var factory embedding.Factory
	switch cfg.Embedder.Type {
	case "hashing", "":
		dim := cfg.Embedder.Dimension
		factory = func() (domain.Embedder, error) { return hashing.New(dim), nil }
	case "openai":
		oa := cfg.Embedder.OpenAI
		if oa == nil {
			return nil, nil, fmt.Errorf("openai embedder config missing")
		}
		factory = func() (domain.Embedder, error) {
			return openai.NewClient(openai.Config{
				BaseURL:   oa.BaseURL,
				APIKeyEnv: oa.APIKeyEnv,
				Model:     oa.Model,
				BatchSize: oa.BatchSize,
				Timeout:   time.Duration(oa.TimeoutSecs) * time.Second,
			})
		}
	default:
		return nil, nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}
	emb := embedding.NewService(factory)

	var store domain.IndexStore
	switch cfg.Index.Backend {
	case "jsonfile", "":
		store = jsonfile.New(cfg.Index.Dir)
	case "bolt":
		st, err := bolt.Open(cfg.Index.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open index %s: %w", cfg.Index.Path, err)
		}
		store = st
	default:
		return nil, nil, fmt.Errorf("unknown index backend: %s", cfg.Index.Backend)
	}

	pipe := ingest.New(cfg.SourceDir, extract.New(), ch, emb, store, logger)
	ret := retriever.New(emb)
	return service.NewEngine(pipe, ret, store, logger), store, nil
}
