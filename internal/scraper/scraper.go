package scraper

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/williampepple1/scrapebot/internal/config"
	"github.com/williampepple1/scrapebot/internal/proxy"
)

// DefaultActionTimeout bounds every single browser command
const DefaultActionTimeout = 60 * time.Second

// Options configures a browser session
type Options struct {
	Width          int
	Height         int
	UserAgent      string
	AcceptLanguage string
	Headless       bool
	Proxy          *url.URL
	ActionTimeout  time.Duration
	Logger         *zap.Logger
}

// OptionsFromConfig derives session options from the effective config
func OptionsFromConfig(cfg config.Config, proxyURL *url.URL, logger *zap.Logger) Options {
	return Options{
		Width:          cfg.Width,
		Height:         cfg.Height,
		UserAgent:      cfg.UserAgent,
		AcceptLanguage: cfg.AcceptLanguage,
		Headless:       cfg.Headless,
		Proxy:          proxyURL,
		ActionTimeout:  DefaultActionTimeout,
		Logger:         logger,
	}
}

// allocatorOptions builds the Chrome command line
func allocatorOptions(opts Options) []chromedp.ExecAllocatorOption {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.WindowSize(opts.Width, opts.Height),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.Proxy != nil {
		allocOpts = append(allocOpts, chromedp.ProxyServer(proxy.ServerAddr(opts.Proxy)))
	}
	return allocOpts
}

// Open starts Chrome and prepares one tab with the configured viewport and
// identity. The returned Browser must be closed.
func Open(ctx context.Context, opts Options) (*Browser, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("browser")
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = DefaultActionTimeout
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocatorOptions(opts)...)

	sugar := logger.Sugar()
	browserCtx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Errorf),
	)

	b := &Browser{
		ctx:           browserCtx,
		cancel:        cancel,
		allocCancel:   allocCancel,
		actionTimeout: opts.ActionTimeout,
		logger:        logger,
	}

	setup := []chromedp.Action{
		network.Enable(),
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
	}
	if opts.UserAgent != "" || opts.AcceptLanguage != "" {
		override := emulation.SetUserAgentOverride(opts.UserAgent)
		if opts.AcceptLanguage != "" {
			override = override.WithAcceptLanguage(opts.AcceptLanguage)
		}
		setup = append(setup, override)
	}
	if opts.Proxy != nil && opts.Proxy.User != nil {
		b.listenProxyAuth(opts.Proxy.User)
		setup = append(setup, fetch.Enable().WithHandleAuthRequests(true))
	}

	// the first Run starts the browser process
	if err := chromedp.Run(browserCtx, setup...); err != nil {
		b.Close()
		return nil, fmt.Errorf("starting browser: %w", err)
	}

	logger.Debug("browser session opened",
		zap.Int("width", opts.Width),
		zap.Int("height", opts.Height),
		zap.Bool("headless", opts.Headless),
		zap.String("proxy", proxy.Redact(opts.Proxy)))
	return b, nil
}

// listenProxyAuth answers proxy authentication challenges with the proxy
// URL credentials. Paused requests must be continued from a goroutine.
func (b *Browser) listenProxyAuth(user *url.Userinfo) {
	password, _ := user.Password()
	chromedp.ListenTarget(b.ctx, func(ev any) {
		switch ev := ev.(type) {
		case *fetch.EventRequestPaused:
			go func() {
				_ = chromedp.Run(b.ctx, fetch.ContinueRequest(ev.RequestID))
			}()
		case *fetch.EventAuthRequired:
			response := &fetch.AuthChallengeResponse{Response: fetch.AuthChallengeResponseResponseDefault}
			if ev.AuthChallenge != nil && ev.AuthChallenge.Source == fetch.AuthChallengeSourceProxy {
				response = &fetch.AuthChallengeResponse{
					Response: fetch.AuthChallengeResponseResponseProvideCredentials,
					Username: user.Username(),
					Password: password,
				}
			}
			go func() {
				_ = chromedp.Run(b.ctx, fetch.ContinueWithAuth(ev.RequestID, response))
			}()
		}
	})
}
