// File: cmd/serve.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/sift/api/schemas"
	"github.com/xkilldash9x/sift/internal/auth"
	"github.com/xkilldash9x/sift/internal/config"
	"github.com/xkilldash9x/sift/internal/navigator"
	"github.com/xkilldash9x/sift/internal/observability"
	"github.com/xkilldash9x/sift/internal/orchestrator"
)

// newServeCmd creates and configures the `serve` command.
func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serves crawls over HTTP as server-sent event streams",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			listenAddr := cfg.Server().Addr
			if addr != "" {
				listenAddr = addr
			}
			srv := newCrawlServer(cfg, opts.launch, observability.GetLogger())
			return srv.listenAndServe(cmd.Context(), listenAddr)
		},
	}
	serveCmd.Flags().StringVar(&addr, "addr", "", "Listen address. (Overrides config/env)")
	return serveCmd
}

// crawlRequest is the body of POST /crawl.
type crawlRequest struct {
	SearchURL string `json:"searchUrl"`
	MaxPages  int    `json:"maxPages"`
	Cookie    string `json:"cookie"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Status string `json:"status"`
}

// crawlServer runs one crawl at a time; the browser profile is not shared between them.
type crawlServer struct {
	cfg     config.Interface
	launch  launcher
	logger  *zap.Logger
	slots   *semaphore.Weighted
	started time.Time
}

func newCrawlServer(cfg config.Interface, launch launcher, logger *zap.Logger) *crawlServer {
	return &crawlServer{
		cfg:     cfg,
		launch:  launch,
		logger:  logger.Named("server"),
		slots:   semaphore.NewWeighted(1),
		started: time.Now(),
	}
}

func (s *crawlServer) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLogger())

	r.GET("/healthz", s.handleHealth)
	r.POST("/crawl", s.handleCrawl)
	return r
}

// requestLogger logs each request through zap instead of gin's own writer.
func (s *crawlServer) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("Request served",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func (s *crawlServer) handleHealth(c *gin.Context) {
	busy := !s.slots.TryAcquire(1)
	if !busy {
		s.slots.Release(1)
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"busy":   busy,
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *crawlServer) handleCrawl(c *gin.Context) {
	var body crawlRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Status: "invalid_request"})
		return
	}
	req := orchestrator.Request{
		SearchURL:   body.SearchURL,
		MaxPages:    body.MaxPages,
		Credentials: body.Cookie,
	}
	if req.MaxPages <= 0 {
		req.MaxPages = s.cfg.Crawl().MaxPages
	}
	if err := validateRequest(req, s.cfg); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Status: validationStatus(err)})
		return
	}

	if !s.slots.TryAcquire(1) {
		c.JSON(http.StatusConflict, errorResponse{Error: "a crawl is already running", Status: "busy"})
		return
	}
	defer s.slots.Release(1)

	ctx := c.Request.Context()
	crawler, release, err := s.launch(ctx, s.cfg)
	if err != nil {
		s.logger.Error("Failed to initialize crawl components.", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error(), Status: schemas.StatusFailed})
		return
	}
	defer release()

	events, err := crawler.Run(ctx, req)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Status: validationStatus(err)})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	// A client that goes away cancels ctx, which ends the crawl and closes the channel.
	for ev := range events {
		payload, err := eventJSON.MarshalToString(ev)
		if err != nil {
			s.logger.Error("Failed to encode crawl event.", zap.Error(err))
			continue
		}
		c.SSEvent(string(ev.Type), payload)
		c.Writer.Flush()
	}
}

func validationStatus(err error) string {
	switch {
	case errors.Is(err, navigator.ErrInvalidSearch):
		return "invalid_search"
	case errors.Is(err, auth.ErrMissingToken):
		return "missing_token"
	default:
		return "invalid_request"
	}
}

// listenAndServe blocks until ctx is cancelled or the listener fails. In-flight
// crawls see the cancellation through their request context.
func (s *crawlServer) listenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.router(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("Crawl server starting", zap.String("address", addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("Shutting down crawl server...")

		timeout := s.cfg.Server().ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		return nil
	})

	err := g.Wait()
	s.logger.Info("Crawl server stopped.")
	return err
}
