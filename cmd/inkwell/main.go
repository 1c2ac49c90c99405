package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"time"

	"inkwell/internal/beat"
	"inkwell/internal/capabilities"
	"inkwell/internal/config"
	"inkwell/internal/doc"
	"inkwell/internal/domain/repositories"
	"inkwell/internal/history"
	"inkwell/internal/nodeview"
	"inkwell/internal/provider"
	anthropicprovider "inkwell/internal/provider/anthropic"
	"inkwell/internal/provider/lorem"
	"inkwell/internal/repository/memory"
	"inkwell/internal/repository/postgres"
	"inkwell/internal/repository/sqlite"
	"inkwell/internal/schema"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	// Load configuration
	cfg := config.Load()

	// Setup structured logging
	logLevel := slog.LevelInfo
	if cfg.Environment == "dev" || cfg.Debug {
		logLevel = slog.LevelDebug
	}

	logOutput := io.Writer(os.Stdout)
	if cfg.LogDir != "" {
		logFile, err := config.SetupLogFile(cfg.LogDir, cfg.MaxLogFiles)
		if err != nil {
			log.Fatalf("Failed to set up log file: %v", err)
		}
		defer logFile.Close()
		logOutput = io.MultiWriter(os.Stdout, logFile)
	}

	logger := slog.New(slog.NewJSONHandler(logOutput, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("inkwell starting",
		"environment", cfg.Environment,
		"default_model", cfg.DefaultModel,
		"max_versions", cfg.MaxVersions,
	)

	ctx := context.Background()

	// Pick a history repository: postgres when a database URL is set,
	// sqlite when a file path is set, in-memory otherwise.
	var historyRepo repositories.BeatHistoryRepository
	switch {
	case cfg.DatabaseURL != "":
		pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to create connection pool: %v", err)
		}
		defer pool.Close()
		tables := postgres.NewTableNames(cfg.TablePrefix)
		if err := postgres.EnsureSchema(ctx, pool, tables); err != nil {
			log.Fatalf("Failed to ensure schema: %v", err)
		}
		historyRepo = postgres.NewHistoryRepository(&postgres.RepositoryConfig{
			Pool:   pool,
			Tables: tables,
			Logger: logger,
		})
		logger.Info("history repository ready", "backend", "postgres", "table_prefix", cfg.TablePrefix)
	case cfg.HistoryDBPath != "":
		repo, err := sqlite.Open(cfg.HistoryDBPath)
		if err != nil {
			log.Fatalf("Failed to open history database: %v", err)
		}
		defer repo.Close()
		historyRepo = repo
		logger.Info("history repository ready", "backend", "sqlite", "path", cfg.HistoryDBPath)
	default:
		historyRepo = memory.NewHistoryRepository()
		logger.Info("history repository ready", "backend", "memory")
	}

	historyStore := history.NewStore(historyRepo, history.Config{
		MaxVersions: cfg.MaxVersions,
		CacheTTL:    cfg.HistoryCacheTTL,
	}, logger)

	// Capability registry (embedded model metadata)
	caps, err := capabilities.NewRegistry()
	if err != nil {
		log.Fatalf("Failed to load capability registry: %v", err)
	}

	// Generation providers
	providers := provider.NewRegistry(logger, lorem.NewProvider())
	if cfg.AnthropicAPIKey != "" {
		anthropicProvider, err := anthropicprovider.NewProvider(cfg.AnthropicAPIKey)
		if err != nil {
			log.Fatalf("Failed to create anthropic provider: %v", err)
		}
		providers.Register(anthropicProvider)
		logger.Info("anthropic provider registered")
	}

	// Editor session over a starter document
	beatID := uuid.NewString()
	now := time.Now()
	document := schema.NewDoc(
		schema.NewParagraph("The lighthouse keeper had not spoken to anyone in three weeks."),
		schema.NewBeat(&schema.BeatAttrs{
			ID:        beatID,
			BeatType:  schema.BeatTypeStory,
			CreatedAt: now,
			UpdatedAt: now,
		}),
		schema.NewParagraph("She climbed the stairs one last time."),
	)
	editor := doc.NewEditor(document, logger)

	beats := beat.NewService(editor, providers, historyStore, caps, cfg.DefaultModel, logger)
	defer beats.Close()

	bridge := nodeview.NewBridge(editor, beats, &logRenderer{logger: logger}, logger)
	defer bridge.Close()

	// Signal when the demo beat finishes generating.
	done := make(chan struct{}, 1)
	detach := editor.OnTransaction(func(ev doc.TransactionEvent) {
		if b, _ := ev.After.FindBeat(beatID); b != nil && !b.BeatAttrs().IsGenerating {
			if prev, _ := ev.Before.FindBeat(beatID); prev != nil && prev.BeatAttrs().IsGenerating {
				select {
				case done <- struct{}{}:
				default:
				}
			}
		}
	})
	defer detach()

	err = bridge.SubmitPrompt(ctx, &beat.SubmitRequest{
		BeatID:  beatID,
		StoryID: uuid.NewString(),
		Prompt:  "A storm rolls in while the keeper remembers why she stayed.",
		Action:  beat.ActionGenerate,
	})
	if err != nil {
		log.Fatalf("Failed to submit prompt: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Minute):
		logger.Error("generation timed out")
	}

	fmt.Println(schema.ToMarkup(editor.Doc()))

	if hist, err := historyStore.GetHistory(ctx, beatID); err == nil && hist != nil {
		logger.Info("history state", "beat_id", beatID, "versions", len(hist.Versions))
	}
}

// logRenderer is a headless widget implementation for CLI runs.
type logRenderer struct {
	logger *slog.Logger
}

func (r *logRenderer) Render(attrs *schema.BeatAttrs) (nodeview.Widget, error) {
	r.logger.Debug("beat widget mounted", "beat_id", attrs.ID)
	return &logWidget{logger: r.logger, beatID: attrs.ID}, nil
}

type logWidget struct {
	logger *slog.Logger
	beatID string
}

func (w *logWidget) Update(attrs *schema.BeatAttrs) error {
	w.logger.Debug("beat widget updated",
		"beat_id", w.beatID,
		"generating", attrs.IsGenerating,
		"words", attrs.WordCount,
	)
	return nil
}

func (w *logWidget) Destroy() {
	w.logger.Debug("beat widget destroyed", "beat_id", w.beatID)
}
