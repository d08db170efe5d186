// Package app wires the configuration into running services and owns
// the process lifecycle.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/northhybrid/norte/internal/chat"
	"github.com/northhybrid/norte/internal/clubinfo"
	"github.com/northhybrid/norte/internal/config"
	"github.com/northhybrid/norte/internal/connectors/telegram"
	"github.com/northhybrid/norte/internal/httpapi"
	"github.com/northhybrid/norte/internal/llm/openai"
	"github.com/northhybrid/norte/internal/memory"
	"github.com/northhybrid/norte/internal/report"
	"github.com/northhybrid/norte/internal/scheduler"
	"github.com/northhybrid/norte/internal/store"
	"github.com/northhybrid/norte/internal/training"
	"github.com/northhybrid/norte/internal/watcher"
)

type Runtime struct {
	cfg        config.Config
	logger     *slog.Logger
	store      *store.Store
	chat       *chat.Orchestrator
	club       *clubinfo.Service
	reports    *report.Service
	telegram   *telegram.Connector
	scheduler  *scheduler.Service
	watcher    *watcher.Service
	httpServer *http.Server
}

func New(cfg config.Config, logger *slog.Logger) (*Runtime, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	sqlStore, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := sqlStore.AutoMigrate(context.Background()); err != nil {
		sqlStore.Close()
		return nil, err
	}

	llmClient := openai.New(openai.Config{
		APIKey:         cfg.OpenAIAPIKey,
		BaseURL:        cfg.OpenAIBaseURL,
		ChatModel:      cfg.ChatModel,
		ExtractorModel: cfg.ExtractorModel,
		Timeout:        time.Duration(cfg.LLMTimeoutSec) * time.Second,
	}, logger.With("component", "llm-openai"))

	memoryManager := memory.NewManager(sqlStore, llmClient, memory.Config{
		SummaryMinChars:    cfg.SummaryRefreshMinChars,
		SummaryWindowChars: cfg.SummaryHistoryWindowChars,
	}, logger)
	trainingService := training.NewService(sqlStore, llmClient, training.Config{
		DuplicateWindow: time.Duration(cfg.DuplicateWindowMinutes) * time.Minute,
		LookbackDays:    cfg.TrainingLookbackDays,
		RecentRuns:      cfg.RunsRecentItems,
	}, logger)
	clubService := clubinfo.NewService(clubinfo.Config{
		WebsiteURL:   cfg.ClubWebsiteURL,
		TTL:          time.Duration(cfg.ClubInfoTTLHours) * time.Hour,
		KnowledgeDir: cfg.KnowledgeDir,
		FetchRetries: cfg.ClubFetchRetries,
		FetchTimeout: time.Duration(cfg.ClubFetchTimeoutSec) * time.Second,
	}, logger)
	orchestrator := chat.NewOrchestrator(sqlStore, memoryManager, trainingService, clubService, llmClient, llmClient, chat.Config{
		HistoryLimit:     cfg.HistoryLimit,
		ReplyMaxChars:    cfg.ReplyMaxChars,
		ReplyTemperature: cfg.ReplyTemperature,
		ReplyMaxTokens:   cfg.ReplyMaxTokens,
		LookbackDays:     cfg.TrainingLookbackDays,
		RecentItems:      cfg.TrainingRecentItems,
	}, logger)
	reportService := report.NewService(sqlStore, logger)
	connector := telegram.New(cfg.TelegramToken, cfg.TelegramAPIBase, orchestrator, sqlStore, llmClient, logger)

	runtime := &Runtime{
		cfg:      cfg,
		logger:   logger,
		store:    sqlStore,
		chat:     orchestrator,
		club:     clubService,
		reports:  reportService,
		telegram: connector,
	}

	if cfg.WeeklyReportEnabled {
		schedulerService, err := scheduler.New(sqlStore, reportService, connector, cfg.WeeklyReportCron, logger)
		if err != nil {
			sqlStore.Close()
			return nil, err
		}
		runtime.scheduler = schedulerService
	}
	if cfg.KnowledgeWatch {
		watchService, err := watcher.New(cfg.KnowledgeDir, logger, func(ctx context.Context, path string) {
			clubService.Invalidate()
		})
		if err != nil {
			sqlStore.Close()
			return nil, err
		}
		runtime.watcher = watchService
	}

	runtime.httpServer = &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.NewRouter(httpapi.Dependencies{
			Config:   cfg,
			Store:    sqlStore,
			Chat:     orchestrator,
			Training: trainingService,
			Reports:  reportService,
			Telegram: connector,
			Logger:   logger.With("component", "httpapi"),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return runtime, nil
}
