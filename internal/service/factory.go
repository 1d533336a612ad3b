// File: internal/service/factory.go
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/sift/api/schemas"
	"github.com/xkilldash9x/sift/internal/auth"
	"github.com/xkilldash9x/sift/internal/browser"
	"github.com/xkilldash9x/sift/internal/browser/humanoid"
	"github.com/xkilldash9x/sift/internal/browser/stealth"
	"github.com/xkilldash9x/sift/internal/config"
	"github.com/xkilldash9x/sift/internal/diagnostics"
	"github.com/xkilldash9x/sift/internal/extract"
	"github.com/xkilldash9x/sift/internal/navigator"
	"github.com/xkilldash9x/sift/internal/orchestrator"
)

// ComponentFactory creates the components for one crawl.
type ComponentFactory interface {
	Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error)
}

// concreteFactory is the production implementation of the ComponentFactory.
type concreteFactory struct{}

// NewComponentFactory creates a factory that launches a real browser.
func NewComponentFactory() ComponentFactory {
	return &concreteFactory{}
}

// Create launches the browser, opens a tab and wires the crawl engine on top of it.
func (f *concreteFactory) Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error) {
	components := &Components{shutdownTimeout: cfg.Server().ShutdownTimeout}

	// Ensure cleanup happens if initialization fails midway.
	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			components.Shutdown()
		}
	}()

	// 1. Diagnostics
	fileSink, err := diagnostics.NewFileSink(cfg.Diagnostics(), logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize diagnostics: %w", err)
		return nil, initializationErr
	}
	components.Diagnostics = fileSink
	var sink schemas.SnapshotSink
	if fileSink != nil {
		sink = fileSink
		logger.Debug("Diagnostic captures enabled.", zap.String("dir", fileSink.Dir()))
	}

	// 2. Browser Manager
	persona := stealth.FromConfig(cfg.Browser().Persona)
	manager, err := browser.NewManager(ctx, logger, cfg.Browser(), persona)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize browser manager: %w", err)
		return nil, initializationErr
	}
	components.BrowserManager = manager
	logger.Debug("Browser manager initialized.")

	// 3. Session
	session, err := manager.NewSession(ctx)
	if err != nil {
		initializationErr = fmt.Errorf("failed to open browser session: %w", err)
		return nil, initializationErr
	}
	components.Session = session
	logger.Debug("Browser session opened.", zap.String("session_id", session.ID()))

	// 4. Crawl engine
	orch, err := Assemble(session, cfg, logger, sink)
	if err != nil {
		initializationErr = err
		return nil, initializationErr
	}
	components.Orchestrator = orch

	logger.Info("All crawl components initialized successfully.")
	return components, nil
}

// Assemble wires the crawl engine onto a browsing context. sink may be nil.
func Assemble(bc schemas.BrowsingContext, cfg config.Interface, logger *zap.Logger, sink schemas.SnapshotSink) (*orchestrator.Orchestrator, error) {
	gate, err := auth.NewGate(bc, cfg.Session(), cfg.Platform(), logger, sink)
	if err != nil {
		return nil, fmt.Errorf("failed to create session gate: %w", err)
	}

	rules, err := navigator.NewRules(cfg.Platform())
	if err != nil {
		return nil, fmt.Errorf("failed to compile page rules: %w", err)
	}
	navCfg := cfg.Navigation()
	policy := navigator.RandomBackoff(navCfg.MaxAttempts, navCfg.BackoffMin, navCfg.BackoffMax, nil)
	var navOpts []navigator.Option
	if sink != nil {
		navOpts = append(navOpts, navigator.WithSnapshotSink(sink))
	}
	nav := navigator.New(bc, rules, policy, navCfg, logger, navOpts...)

	scroller := humanoid.New(cfg.Scroll(), logger, humanoid.NewExecutor(bc), nil)

	extractor, err := extract.NewDefault(logger, cfg.Platform().BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create extractor: %w", err)
	}

	orch, err := orchestrator.New(orchestrator.Dependencies{
		Gate:      gate,
		Navigator: nav,
		Scroller:  scroller,
		Content:   bc,
		Extractor: extractor,
	}, cfg, logger, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}
	return orch, nil
}
