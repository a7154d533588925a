// Package di assembles the application. Construction is explicit; the
// container just names the pieces everything else pulls from.
package di

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"knowmap-backend/application/ports"
	"knowmap-backend/application/services"
	"knowmap-backend/domain/services/layout"
	"knowmap-backend/infrastructure/collaborators"
	"knowmap-backend/infrastructure/config"
	"knowmap-backend/pkg/observability"
)

// Container holds the assembled application.
type Container struct {
	Config   *config.Config
	Logger   *zap.Logger
	Metrics  *observability.Collector
	Tuning   *config.TuningWatcher
	Manager  *services.SessionManager
	Combined *services.CombinedViewService
}

// InitializeContainer builds every component from configuration.
func InitializeContainer(_ context.Context, cfg *config.Config) (*Container, error) {
	logger, err := buildLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	var metrics *observability.Collector
	if cfg.EnableMetrics {
		metrics = observability.NewCollector("knowmap")
	}

	tuning, err := config.NewTuningWatcher(cfg.TuningFile, config.Tuning{
		AutosaveQuietPeriod: cfg.AutosaveQuietPeriod,
	}, logger)
	if err != nil {
		return nil, err
	}

	documentClient := collaborators.NewClient(
		cfg.DocumentServiceURL, cfg.UpstreamTimeout,
		collaborators.DefaultBreakerSettings("document-service"), logger)
	knowledgeClient := collaborators.NewClient(
		cfg.KnowledgeServiceURL, cfg.UpstreamTimeout,
		collaborators.DefaultBreakerSettings("knowledge-service"), logger)

	var activity ports.ActivityLogger = collaborators.NopActivityLogger{}
	if cfg.ActivityServiceURL != "" {
		activityClient := collaborators.NewClient(
			cfg.ActivityServiceURL, cfg.UpstreamTimeout,
			collaborators.DefaultBreakerSettings("activity-service"), logger)
		activity = collaborators.NewHTTPActivityLogger(activityClient, logger)
	}

	engine := layout.NewEngine()
	mainLayout := func() layout.Options {
		t := tuning.Current()
		opts := layout.MainOptions()
		if t.MainNodeSpacing > 0 {
			opts.NodeSpacing = t.MainNodeSpacing
		}
		if t.MainLayerSpacing > 0 {
			opts.LayerSpacing = t.MainLayerSpacing
		}
		return opts
	}
	previewLayout := func() layout.Options {
		t := tuning.Current()
		opts := layout.PreviewOptions()
		if t.PreviewNodeSpacing > 0 {
			opts.NodeSpacing = t.PreviewNodeSpacing
		}
		if t.PreviewLayerSpacing > 0 {
			opts.LayerSpacing = t.PreviewLayerSpacing
		}
		return opts
	}

	manager := services.NewSessionManager(services.ManagerDeps{
		MapStore:    collaborators.NewHTTPMapStore(documentClient),
		MemoStore:   collaborators.NewHTTPMemoStore(documentClient),
		Suggestions: collaborators.NewHTTPSuggestionService(knowledgeClient),
		NodeFactory: collaborators.NewHTTPNodeFactory(knowledgeClient),
		Temporal:    collaborators.NewHTTPTemporalService(knowledgeClient),
		Activity:    activity,
		Engine:      engine,
		Logger:      logger,
		Metrics:     metrics,

		MainLayout:    mainLayout,
		PreviewLayout: previewLayout,
	}, services.ManagerConfig{
		AutosaveQuietPeriod: cfg.AutosaveQuietPeriod,
		SessionIdleTimeout:  cfg.SessionIdleTimeout,
		MaxNotifications:    cfg.MaxNotifications,
	})

	combined := services.NewCombinedViewService(
		collaborators.NewHTTPCombinedMapSource(documentClient),
		engine, logger, metrics, tuning.Current().GroupSpacing)

	tuning.OnChange(func(t config.Tuning) {
		manager.SetAutosaveQuietPeriod(t.AutosaveQuietPeriod)
		combined.SetGroupSpacing(t.GroupSpacing)
	})
	if t := tuning.Current(); t.AutosaveQuietPeriod > 0 {
		manager.SetAutosaveQuietPeriod(t.AutosaveQuietPeriod)
	}

	return &Container{
		Config:   cfg,
		Logger:   logger,
		Metrics:  metrics,
		Tuning:   tuning,
		Manager:  manager,
		Combined: combined,
	}, nil
}

// Shutdown flushes sessions and stops background work.
func (c *Container) Shutdown(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	c.Manager.Shutdown(shutdownCtx)
	c.Tuning.Stop()
}

func buildLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}
	zcfg := zap.NewProductionConfig()
	if err := zcfg.Level.UnmarshalText([]byte(cfg.LogLevel)); err == nil {
		return zcfg.Build()
	}
	return zap.NewProduction()
}
