package app

import (
	"context"
	"fmt"
	"time"

	"alphapilot/internal/config"
	"alphapilot/internal/lifecycle"
	"alphapilot/internal/logger"
	"alphapilot/internal/position"
	"alphapilot/internal/store"
	statushttp "alphapilot/internal/transport/http"
)

// App owns the running services: the lifecycle controller and the status
// HTTP surface, plus the stores they persist into.
type App struct {
	cfg        *config.Config
	controller *lifecycle.Controller
	manager    *position.Manager
	httpServer *statushttp.Server
	posStore   store.PositionStore
	events     store.EventStore
}

// NewApp builds the application from config without starting it.
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(cfg)
}

// Run blocks until ctx is canceled or the controller halts on a fatal
// persistence error. Shutdown is graceful: the in-flight tick completes
// before stores close.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.controller == nil {
		return fmt.Errorf("app not initialized")
	}

	a.httpServer.Start()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("status http shutdown: %v", err)
		}
		if err := a.events.Close(); err != nil {
			logger.Warnf("event log close: %v", err)
		}
		if err := a.posStore.Close(); err != nil {
			logger.Warnf("position store close: %v", err)
		}
	}()

	logger.Infof("engine starting: symbols=%d tick=%s env=%s",
		len(a.cfg.Symbols), a.cfg.Lifecycle.TickInterval(), a.cfg.App.Env)
	err := a.controller.Run(ctx)
	if err != nil {
		logger.Errorf("engine stopped: %v", err)
		return err
	}
	logger.Infof("engine stopped cleanly")
	return nil
}

// Manager exposes the position manager for read-only CLI commands.
func (a *App) Manager() *position.Manager { return a.manager }

// PositionStore exposes the persistence layer for read-only CLI commands.
func (a *App) PositionStore() store.PositionStore { return a.posStore }
