package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/memodiary/memo/db"
	"github.com/memodiary/memo/internal/config"
	"github.com/memodiary/memo/internal/engine"
	"github.com/memodiary/memo/internal/extract"
	"github.com/memodiary/memo/internal/intent"
	"github.com/memodiary/memo/internal/keypool"
	"github.com/memodiary/memo/internal/llm"
	"github.com/memodiary/memo/internal/log"
	"github.com/memodiary/memo/internal/retrieve"
	"github.com/memodiary/memo/internal/store"
	"github.com/memodiary/memo/internal/summarize"
)

// app bundles the wired components behind the CLI commands.
type app struct {
	cfg        *config.Config
	logger     log.Logger
	store      *store.Store
	engine     *engine.Engine
	summarizer *summarize.Summarizer
}

// buildApp loads configuration, migrates the database, and wires every
// component. The returned cleanup drains background work and closes the pool.
func buildApp(ctx context.Context) (*app, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}

	logger := log.New(log.Config{JSON: cfg.LogJSON})
	logger.Debug("configuration loaded", "config", cfg)

	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return nil, nil, fmt.Errorf("migrating database: %w", err)
	}

	st, err := store.New(ctx, cfg.PostgresConnectionString(), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to database: %w", err)
	}

	keys := keypool.FromEnv()
	logger.Debug("API key pool loaded", "keys", keys.Len())

	invoker := llm.NewInvoker(
		llm.NewGemini(),
		keys,
		cfg.MaxRetries,
		time.Duration(cfg.RetryBaseDelay)*time.Millisecond,
		logger,
	)

	analyzer := intent.New(invoker, cfg.AnalyzerModel, logger)
	assembler := retrieve.New(st, cfg.HistoryTurns, logger)
	extractor := extract.New(invoker, st, cfg.ExtractorModel, logger)
	summarizer := summarize.New(invoker, st, cfg.ExtractorModel, logger)

	eng := engine.New(engine.Deps{
		Store:      st,
		Invoker:    invoker,
		Analyzer:   analyzer,
		Assembler:  assembler,
		Extractor:  extractor,
		Summarizer: summarizer,
	}, engine.Config{
		ChatModel:     cfg.ChatModel,
		AnalyzerModel: cfg.AnalyzerModel,
		Temperature:   cfg.Temperature,
		TopP:          cfg.TopP,
		HistoryTurns:  cfg.HistoryTurns,
	}, logger)

	cleanup := func() {
		eng.Close()
		st.Close()
	}

	return &app{
		cfg:        cfg,
		logger:     logger,
		store:      st,
		engine:     eng,
		summarizer: summarizer,
	}, cleanup, nil
}
