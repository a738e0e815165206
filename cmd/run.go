package cmd

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/williampepple1/scrapebot/internal/config"
	"github.com/williampepple1/scrapebot/internal/interpreter"
	"github.com/williampepple1/scrapebot/internal/metrics"
	"github.com/williampepple1/scrapebot/internal/observability"
	"github.com/williampepple1/scrapebot/internal/proxy"
	"github.com/williampepple1/scrapebot/internal/scraper"
)

const pushTimeout = 10 * time.Second

// openBrowser builds the browser opener of a run. Tests replace it.
var openBrowser = chromeOpener

func chromeOpener(proxyURL *url.URL, logger *zap.Logger) interpreter.OpenFunc {
	return func(ctx context.Context, cfg config.Config) (interpreter.Browser, error) {
		b, err := scraper.Open(ctx, scraper.OptionsFromConfig(cfg, proxyURL, logger))
		if err != nil {
			return nil, err
		}
		return b, nil
	}
}

func newRunCommand() *cobra.Command {
	var lf *launchFlags

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the job of one uid to completion",
		Long: `Loads <dir.prefix>/<dir.config>/<uid>.json, merges its oConfig over the
launch options and executes its steps in one browser session.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := lf.resolveLaunch()
			if err != nil {
				return err
			}
			if err := requireUID(cfg, cmd.ErrOrStderr()); err != nil {
				return err
			}
			return runJob(cmd.Context(), cmd, cfg)
		},
	}

	lf = bindLaunchFlags(runCmd)
	return runCmd
}

func runJob(ctx context.Context, cmd *cobra.Command, launch config.Config) error {
	logger := observability.GetLogger().Named("run").With(zap.String("uid", launch.UID))

	job, cfg, err := loadJob(launch)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	proxyURL, err := proxy.NewManager(cfg.Proxies, nil).Pick()
	if err != nil {
		return err
	}
	if proxyURL != nil {
		logger.Info("using proxy", zap.String("proxy", proxy.Redact(proxyURL)))
	}

	rec := metrics.New()
	in := interpreter.New(cfg, interpreter.Deps{
		Open:    openBrowser(proxyURL, logger),
		Metrics: rec,
		Echo:    cmd.OutOrStdout(),
		Logger:  logger,
	})
	runErr := in.Run(ctx, job)

	if cfg.Pushgateway != "" {
		pushMetrics(ctx, rec, cfg, proxyURL, logger)
	}
	return runErr
}

// pushMetrics sends the run metrics. Failures never fail the run.
func pushMetrics(ctx context.Context, rec *metrics.Recorder, cfg config.Config, proxyURL *url.URL, logger *zap.Logger) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	proxy.ApplyToTransport(transport, proxyURL)
	client := &http.Client{Transport: transport, Timeout: pushTimeout}

	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
	defer cancel()

	if err := rec.Push(pushCtx, cfg.Pushgateway, cfg.UID, client); err != nil {
		logger.Warn("metrics push failed", zap.Error(err))
		return
	}
	logger.Debug("metrics pushed", zap.String("pushgateway", cfg.Pushgateway))
}
