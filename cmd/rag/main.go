package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

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
	"ragengine/internal/tui"

	charmlog "github.com/charmbracelet/log"
)

func main() {
	_ = godotenv.Load()

	var cfgPath string
	var refresh bool
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/ragengine/config.yaml if not provided)")
	flag.BoolVar(&refresh, "refresh", true, "Ingest changed source files before starting")
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
	summary := fmt.Sprintf("source: %s · index: %s", cfg.SourceDir, cfg.Index.Backend)
	if refresh {
		report, err := engine.Ingest(ctx, ingest.Options{Mode: ingest.ModeChanged})
		if err != nil {
			logger.Fatal("ingest", "err", err)
		}
		summary = fmt.Sprintf("%d chunks indexed from %s · index: %s", report.ChunksInIndex, cfg.SourceDir, cfg.Index.Backend)
	}

	m := tui.New(engine, summary, cfg.Search.TopK)
	if _, err := tea.NewProgram(m).Run(); err != nil {
		logger.Fatal("tui", "err", err)
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
