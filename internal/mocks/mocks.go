// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/xkilldash9x/sift/api/schemas"
	"github.com/xkilldash9x/sift/internal/config"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

var _ config.Interface = (*MockConfig)(nil)

// --- Getters ---

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Browser() config.BrowserConfig {
	args := m.Called()
	return args.Get(0).(config.BrowserConfig)
}

func (m *MockConfig) Session() config.SessionConfig {
	args := m.Called()
	return args.Get(0).(config.SessionConfig)
}

func (m *MockConfig) Navigation() config.NavigationConfig {
	args := m.Called()
	return args.Get(0).(config.NavigationConfig)
}

func (m *MockConfig) Scroll() config.ScrollConfig {
	args := m.Called()
	return args.Get(0).(config.ScrollConfig)
}

func (m *MockConfig) Crawl() config.CrawlConfig {
	args := m.Called()
	return args.Get(0).(config.CrawlConfig)
}

func (m *MockConfig) Platform() config.PlatformConfig {
	args := m.Called()
	return args.Get(0).(config.PlatformConfig)
}

func (m *MockConfig) Server() config.ServerConfig {
	args := m.Called()
	return args.Get(0).(config.ServerConfig)
}

func (m *MockConfig) Diagnostics() config.DiagnosticsConfig {
	args := m.Called()
	return args.Get(0).(config.DiagnosticsConfig)
}

// --- Setters ---

func (m *MockConfig) SetBrowserHeadless(b bool) {
	m.Called(b)
}

func (m *MockConfig) SetCrawlMaxPages(n int) {
	m.Called(n)
}

func (m *MockConfig) SetDiagnosticsEnabled(b bool) {
	m.Called(b)
}

// -- Browsing Context Mock --

// MockBrowsingContext mocks the schemas.BrowsingContext interface.
type MockBrowsingContext struct {
	mock.Mock
}

var _ schemas.BrowsingContext = (*MockBrowsingContext)(nil)

// NewMockBrowsingContext creates a new mock browsing context.
func NewMockBrowsingContext() *MockBrowsingContext {
	return &MockBrowsingContext{}
}

func (m *MockBrowsingContext) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	return m.Called(ctx, url, timeout).Error(0)
}

func (m *MockBrowsingContext) SetCookies(ctx context.Context, cookies []schemas.Cookie) error {
	return m.Called(ctx, cookies).Error(0)
}

func (m *MockBrowsingContext) ClearCookies(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockBrowsingContext) Evaluate(ctx context.Context, script string, out interface{}) error {
	return m.Called(ctx, script, out).Error(0)
}

func (m *MockBrowsingContext) WaitSelector(ctx context.Context, selector string, timeout time.Duration) error {
	return m.Called(ctx, selector, timeout).Error(0)
}

func (m *MockBrowsingContext) CurrentURL(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockBrowsingContext) Content(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockBrowsingContext) Snapshot(ctx context.Context) (*schemas.Snapshot, error) {
	args := m.Called(ctx)
	if snap := args.Get(0); snap != nil {
		return snap.(*schemas.Snapshot), args.Error(1)
	}
	return nil, args.Error(1)
}

// -- Snapshot Sink Mock --

// MockSnapshotSink mocks the schemas.SnapshotSink interface.
type MockSnapshotSink struct {
	mock.Mock
}

var _ schemas.SnapshotSink = (*MockSnapshotSink)(nil)

func (m *MockSnapshotSink) Capture(ctx context.Context, reason string, snap *schemas.Snapshot) error {
	return m.Called(ctx, reason, snap).Error(0)
}
