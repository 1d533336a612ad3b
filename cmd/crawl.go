// File: cmd/crawl.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sift/api/schemas"
	"github.com/xkilldash9x/sift/internal/auth"
	"github.com/xkilldash9x/sift/internal/config"
	"github.com/xkilldash9x/sift/internal/navigator"
	"github.com/xkilldash9x/sift/internal/observability"
	"github.com/xkilldash9x/sift/internal/orchestrator"
	"github.com/xkilldash9x/sift/internal/service"
)

// cookieEnv names the environment variable consulted when no cookie flag is given.
const cookieEnv = envPrefix + "_COOKIE"

var eventJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// Crawler starts crawls. *orchestrator.Orchestrator satisfies it.
type Crawler interface {
	Run(ctx context.Context, req orchestrator.Request) (<-chan schemas.CrawlEvent, error)
}

// launcher provisions a Crawler for one run. release frees the browser behind it.
type launcher func(ctx context.Context, cfg config.Interface) (crawler Crawler, release func(), err error)

func factoryLauncher(factory service.ComponentFactory) launcher {
	return func(ctx context.Context, cfg config.Interface) (Crawler, func(), error) {
		components, err := factory.Create(ctx, cfg, observability.GetLogger())
		if err != nil {
			return nil, nil, err
		}
		return components.Orchestrator, components.Shutdown, nil
	}
}

type crawlFlags struct {
	maxPages    int
	cookie      string
	cookieFile  string
	output      string
	headless    bool
	diagnostics bool
}

// newCrawlCmd creates and configures the `crawl` command.
func newCrawlCmd(opts *rootOptions) *cobra.Command {
	var flags crawlFlags

	crawlCmd := &cobra.Command{
		Use:   "crawl <search-url>",
		Short: "Runs one crawl and writes its events to stdout as NDJSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg := opts.cfg

			// 1. Flag overrides
			if cmd.Flags().Changed("headless") {
				cfg.SetBrowserHeadless(flags.headless)
			}
			if cmd.Flags().Changed("diagnostics") {
				cfg.SetDiagnosticsEnabled(flags.diagnostics)
			}
			if cmd.Flags().Changed("max-pages") {
				if flags.maxPages <= 0 {
					return fmt.Errorf("--max-pages must be a positive integer")
				}
				cfg.SetCrawlMaxPages(flags.maxPages)
			}

			cookie, err := resolveCredentials(flags.cookie, flags.cookieFile, os.LookupEnv)
			if err != nil {
				return err
			}
			req := orchestrator.Request{
				SearchURL:   args[0],
				MaxPages:    cfg.Crawl().MaxPages,
				Credentials: cookie,
			}
			if err := validateRequest(req, cfg); err != nil {
				return err
			}

			out, closeOut, err := openOutput(cmd.OutOrStdout(), flags.output)
			if err != nil {
				return err
			}
			defer closeOut()

			// 2. Components
			crawler, release, err := opts.launch(ctx, cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize crawl components: %w", err)
			}
			defer release()

			// 3. Crawl
			events, err := crawler.Run(ctx, req)
			if err != nil {
				return err
			}
			done, err := writeEvents(events, out)
			if err != nil {
				return fmt.Errorf("failed to write crawl events: %w", err)
			}
			logger.Info("Crawl finished",
				zap.String("crawl_id", done.CrawlID),
				zap.String("status", done.Status),
				zap.Int("count", done.Count),
			)
			return outcome(done)
		},
	}

	crawlCmd.Flags().IntVarP(&flags.maxPages, "max-pages", "p", 0, "Maximum number of result pages to visit. (Overrides config/env)")
	crawlCmd.Flags().StringVar(&flags.cookie, "cookie", "", "Cookie header of a signed-in browser (or set "+cookieEnv+")")
	crawlCmd.Flags().StringVar(&flags.cookieFile, "cookie-file", "", "Read the cookie header from a file ('-' for stdin)")
	crawlCmd.Flags().StringVarP(&flags.output, "output", "o", "", "Write events to this file instead of stdout")
	crawlCmd.Flags().BoolVar(&flags.headless, "headless", true, "Run the browser headless. (Overrides config/env)")
	crawlCmd.Flags().BoolVar(&flags.diagnostics, "diagnostics", false, "Capture HTML and screenshots on blocked or expired pages. (Overrides config/env)")

	return crawlCmd
}

// resolveCredentials picks the cookie from the flag, then the file, then the environment.
func resolveCredentials(flagValue, file string, lookupEnv func(string) (string, bool)) (string, error) {
	if v := strings.TrimSpace(flagValue); v != "" {
		return v, nil
	}
	if file != "" {
		var (
			data []byte
			err  error
		)
		if file == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(file)
		}
		if err != nil {
			return "", fmt.Errorf("failed to read cookie file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	if v, ok := lookupEnv(cookieEnv); ok {
		return strings.TrimSpace(v), nil
	}
	return "", nil
}

// validateRequest rejects input the orchestrator would reject, before a browser is launched.
func validateRequest(req orchestrator.Request, cfg config.Interface) error {
	if limit := cfg.Crawl().MaxPages; limit > 0 && req.MaxPages > limit {
		return fmt.Errorf("%w: max pages %d exceeds the configured limit of %d", navigator.ErrInvalidSearch, req.MaxPages, limit)
	}
	if _, err := navigator.NewSearchSpec(req.SearchURL, req.MaxPages, cfg.Platform()); err != nil {
		return err
	}
	if _, err := auth.ParseCredentials(req.Credentials, cfg.Session().TokenCookie); err != nil {
		return err
	}
	return nil
}

func openOutput(stdout io.Writer, path string) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// writeEvents encodes every event as one JSON line and returns the done event. The
// channel is always drained, even after a write error, so the crawl can finish.
func writeEvents(events <-chan schemas.CrawlEvent, w io.Writer) (schemas.CrawlEvent, error) {
	var (
		done     schemas.CrawlEvent
		writeErr error
	)
	enc := eventJSON.NewEncoder(w)
	for ev := range events {
		if writeErr == nil {
			writeErr = enc.Encode(ev)
		}
		if ev.Terminal() {
			done = ev
		}
	}
	return done, writeErr
}

// outcome maps the terminal status to the command result.
func outcome(done schemas.CrawlEvent) error {
	switch done.Status {
	case schemas.StatusCompleted, schemas.StatusNoMoreResults:
		return nil
	case schemas.StatusCancelled:
		return fmt.Errorf("crawl cancelled: %w", context.Canceled)
	case "":
		return fmt.Errorf("crawl stream closed without a done event")
	default:
		if done.Message != "" {
			return fmt.Errorf("crawl ended with status %q: %s", done.Status, done.Message)
		}
		return fmt.Errorf("crawl ended with status %q", done.Status)
	}
}
