package app

import (
	"fmt"
	"os"

	"alphapilot/internal/config"
	"alphapilot/internal/exit"
	"alphapilot/internal/feed"
	"alphapilot/internal/lifecycle"
	"alphapilot/internal/logger"
	"alphapilot/internal/market"
	"alphapilot/internal/pkg/circuit"
	"alphapilot/internal/position"
	"alphapilot/internal/risk"
	"alphapilot/internal/signal"
	"alphapilot/internal/store/eventlog"
	"alphapilot/internal/store/gormstore"
	statushttp "alphapilot/internal/transport/http"
	"alphapilot/internal/tuning"
)

// Builder assembles the engine's dependency graph from configuration.
type Builder struct {
	cfg *config.Config
}

func NewBuilder(cfg *config.Config) *Builder {
	return &Builder{cfg: cfg}
}

// Build wires stores, feeds, decision components, the controller and the
// status server. Nothing starts running until App.Run.
func (b *Builder) Build() (*App, error) {
	cfg := b.cfg
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}

	posStore, err := gormstore.NewStore(cfg.Store.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open position store: %w", err)
	}
	events, err := eventlog.NewStore(cfg.Store.EventLogPath)
	if err != nil {
		posStore.Close()
		return nil, fmt.Errorf("open event log: %w", err)
	}

	marketBreaker := circuit.NewBreaker("yahoo", cfg.Feeds.BreakerThreshold, cfg.Feeds.BreakerCooldown())
	predBreaker := circuit.NewBreaker("predictions", cfg.Feeds.BreakerThreshold, cfg.Feeds.BreakerCooldown())

	yahoo := feed.NewYahooSource(cfg.Market.BenchmarkSymbol,
		cfg.Market.TrendLookbackDays, cfg.Market.VolLookbackDays, marketBreaker)
	classifier := market.NewClassifier(cfg.Market.StressVolatilityPct)
	holder := market.NewHolder(yahoo, classifier, cfg.Market.ContextTTL())

	adjuster := signal.NewAdjuster(tuningSource(cfg.Signal.TuningPath))

	manager := position.NewManager(posStore, events)
	validator := risk.NewValidator(risk.Limits{
		MinPositionUSD:   cfg.Risk.MinPositionUSD,
		MaxPositionUSD:   cfg.Risk.MaxPositionUSD,
		MaxRiskPerTrade:  cfg.Risk.MaxRiskPerTrade,
		MaxAccountRisk:   cfg.Risk.MaxAccountRisk,
		StopLossFraction: cfg.Risk.StopLossFraction,
	}, manager)
	engine := exit.NewEngine(exit.Rules{
		ProfitTargetPct: cfg.Exit.ProfitTargetPct,
		StopLossPct:     cfg.Exit.StopLossPct,
		MaxHold:         cfg.Exit.MaxHold(),
	})

	predictions := feed.NewPredictionClient(cfg.Feeds.PredictionURL, cfg.Feeds.Timeout(), predBreaker)

	controller := lifecycle.NewController(lifecycle.Options{
		Symbols:        cfg.Symbols,
		TickInterval:   cfg.Lifecycle.TickInterval(),
		FeedTimeout:    cfg.Feeds.Timeout(),
		InitialCashUSD: cfg.Lifecycle.InitialCashUSD,
		RunImmediately: true,
	}, holder, adjuster, validator, manager, engine, yahoo, predictions, posStore)

	httpServer, err := statushttp.NewServer(statushttp.Config{
		Addr:      cfg.App.HTTPAddr,
		Manager:   manager,
		Decisions: posStore,
		Events:    events,
	})
	if err != nil {
		posStore.Close()
		events.Close()
		return nil, fmt.Errorf("build status http server: %w", err)
	}

	return &App{
		cfg:        cfg,
		controller: controller,
		manager:    manager,
		httpServer: httpServer,
		posStore:   posStore,
		events:     events,
	}, nil
}

// tuningSource loads the hot-reloading registry when the tuning file
// exists, otherwise runs on the shipped defaults.
func tuningSource(path string) signal.TuningSource {
	if _, err := os.Stat(path); err != nil {
		logger.Warnf("tuning file %s not found, using built-in defaults", path)
		return signal.StaticTuning(tuning.Defaults())
	}
	reg, err := tuning.NewRegistry(path)
	if err != nil {
		logger.Warnf("tuning registry init failed (%v), using built-in defaults", err)
		return signal.StaticTuning(tuning.Defaults())
	}
	return reg
}
