// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sift/api/schemas"
	"github.com/xkilldash9x/sift/internal/browser/session"
	"github.com/xkilldash9x/sift/internal/config"
)

// Manager owns the browser process. Sessions are tabs opened in that one process.
type Manager struct {
	logger  *zap.Logger
	cfg     config.BrowserConfig
	persona schemas.Persona

	// allocatorCtx manages the browser process; browserCtx holds the connection all tabs share.
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc

	// wg tracks open sessions for a graceful shutdown.
	wg sync.WaitGroup
}

const defaultStartupTimeout = 30 * time.Second

// NewManager launches the browser process and verifies it responds.
func NewManager(ctx context.Context, logger *zap.Logger, cfg config.BrowserConfig, persona schemas.Persona) (*Manager, error) {
	m := &Manager{
		logger:  logger.Named("browser_manager"),
		cfg:     cfg,
		persona: persona,
	}
	if err := m.launchBrowser(ctx); err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	return m, nil
}

// launchBrowser creates the allocator and runs a startup check against about:blank.
func (m *Manager) launchBrowser(ctx context.Context) error {
	m.logger.Info("Initializing browser allocator...", zap.Bool("headless", m.cfg.Headless))

	// The process must outlive the caller's startup context.
	m.allocatorCtx, m.allocatorCancel = chromedp.NewExecAllocator(context.WithoutCancel(ctx), buildAllocatorOptions(m.cfg, m.persona)...)
	m.browserCtx, m.browserCancel = chromedp.NewContext(m.allocatorCtx)

	timeout := m.cfg.StartupTimeout
	if timeout <= 0 {
		timeout = defaultStartupTimeout
	}
	startCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// The first Run allocates the browser, so it runs on browserCtx and is abandoned,
	// not cancelled, if the startup deadline passes.
	errCh := make(chan error, 1)
	go func() {
		errCh <- chromedp.Run(m.browserCtx, chromedp.Navigate("about:blank"))
	}()

	var err error
	select {
	case err = <-errCh:
	case <-startCtx.Done():
		err = startCtx.Err()
	}
	if err != nil {
		m.browserCancel()
		m.allocatorCancel()
		return fmt.Errorf("browser failed to start or respond: %w", err)
	}

	m.logger.Info("Browser launched successfully and is responsive.")
	return nil
}

// allocatorFlags returns the command line flags layered over chromedp's defaults.
func allocatorFlags(cfg config.BrowserConfig) map[string]interface{} {
	flags := map[string]interface{}{
		// A false value removes the default flag that advertises automation.
		"enable-automation":      false,
		"headless":               cfg.Headless,
		"disable-blink-features": "AutomationControlled",
		"disable-extensions":     true,
		"disable-gpu":            cfg.DisableGPU || cfg.Headless,
	}
	if cfg.ProxyURL != "" {
		flags["proxy-server"] = cfg.ProxyURL
	}

	// Container friendly flags.
	if runtime.GOOS == "linux" {
		flags["no-sandbox"] = true
		flags["disable-dev-shm-usage"] = true
		flags["disable-setuid-sandbox"] = true
	}
	return flags
}

// buildAllocatorOptions assembles the launch options for the configured browser.
func buildAllocatorOptions(cfg config.BrowserConfig, persona schemas.Persona) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	for name, value := range allocatorFlags(cfg) {
		opts = append(opts, chromedp.Flag(name, value))
	}
	opts = append(opts, chromedp.UserAgent(persona.UserAgent))
	if persona.Width > 0 && persona.Height > 0 {
		opts = append(opts, chromedp.WindowSize(int(persona.Width), int(persona.Height)))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}

// NewSession opens a new tab with the persona applied.
func (m *Manager) NewSession(ctx context.Context) (*ManagedSession, error) {
	s := session.New(m.browserCtx, m.cfg, m.persona, m.logger)
	if err := s.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize browser session: %w", err)
	}
	m.wg.Add(1)
	return &ManagedSession{Session: s, wg: &m.wg}, nil
}

// Shutdown waits for open sessions, bounded by ctx, then terminates the browser process.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Browser manager shutdown initiated. Waiting for active sessions to complete...")

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("All sessions have completed.")
	case <-ctx.Done():
		m.logger.Warn("Shutdown deadline exceeded. Forcing browser termination.", zap.Error(ctx.Err()))
	}

	if m.allocatorCancel != nil {
		m.logger.Info("Shutting down main browser process...")
		m.browserCancel()
		m.allocatorCancel()
		<-m.allocatorCtx.Done()
	}
	return nil
}

// ManagedSession decrements the manager's session count exactly once when closed.
type ManagedSession struct {
	*session.Session
	wg   *sync.WaitGroup
	once sync.Once
}

// Close closes the tab and reports it to the manager.
func (ms *ManagedSession) Close() {
	ms.once.Do(func() {
		ms.Session.Close()
		ms.wg.Done()
	})
}
