// File: internal/service/components.go
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/sift/internal/diagnostics"
	"github.com/xkilldash9x/sift/internal/observability"
	"github.com/xkilldash9x/sift/internal/orchestrator"
)

// BrowserManager is the part of the browser manager the components own.
type BrowserManager interface {
	Shutdown(ctx context.Context) error
}

// SessionCloser releases a browser tab.
type SessionCloser interface {
	Close()
}

// Components holds everything one crawl needs and releases it in order.
type Components struct {
	BrowserManager BrowserManager
	Session        SessionCloser
	Orchestrator   *orchestrator.Orchestrator
	// Diagnostics is nil when captures are disabled.
	Diagnostics *diagnostics.FileSink

	shutdownTimeout time.Duration
}

const defaultShutdownTimeout = 30 * time.Second

// Shutdown closes the session and then the browser process.
func (c *Components) Shutdown() {
	logger := observability.GetLogger()
	logger.Debug("Beginning components shutdown sequence.")

	// 1. Close the tab so the manager is not left waiting on it.
	if c.Session != nil {
		c.Session.Close()
		logger.Debug("Browser session closed.")
	}

	// 2. Shut down the browser manager on a fresh context; the caller's may be cancelled.
	if c.BrowserManager != nil {
		timeout := c.shutdownTimeout
		if timeout <= 0 {
			timeout = defaultShutdownTimeout
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := c.BrowserManager.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error during browser manager shutdown.", zap.Error(err))
		} else {
			logger.Debug("Browser manager shut down.")
		}
	}

	logger.Info("All crawl components shut down successfully.")
}
