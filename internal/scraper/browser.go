package scraper

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/williampepple1/scrapebot/internal/extraction"
	"github.com/williampepple1/scrapebot/pkg/models"
)

// Browser is one Chrome tab driven over the DevTools protocol
type Browser struct {
	ctx           context.Context
	cancel        context.CancelFunc
	allocCancel   context.CancelFunc
	actionTimeout time.Duration
	logger        *zap.Logger
}

// run executes actions on the tab. The call is bounded by the action
// timeout and aborted when ctx is done.
func (b *Browser) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(b.ctx, b.actionTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

// Navigate opens target. POST navigations submit opts.Data as a form, GET
// navigations append it to the query string.
func (b *Browser) Navigate(ctx context.Context, target string, opts models.NavOptions) error {
	var actions []chromedp.Action
	if len(opts.Headers) > 0 {
		actions = append(actions, network.SetExtraHTTPHeaders(toHeaders(opts.Headers)))
	}

	if opts.IsPost() {
		fields, err := formFields(opts.Data)
		if err != nil {
			return err
		}
		script, err := postScript(target, fields)
		if err != nil {
			return err
		}
		actions = append(actions, waitLoad(chromedp.Evaluate(script, nil)))
	} else {
		u, err := withQuery(target, opts.Data)
		if err != nil {
			return err
		}
		actions = append(actions, chromedp.Navigate(u))
	}

	if len(opts.Headers) > 0 {
		actions = append(actions, network.SetExtraHTTPHeaders(network.Headers{}))
	}
	return b.run(ctx, actions...)
}

// Click clicks the first element matching sel
func (b *Browser) Click(ctx context.Context, sel string) error {
	return b.run(ctx, chromedp.Click(sel, chromedp.ByQuery))
}

// Fill sets the named fields of the form matching sel and optionally
// submits it
func (b *Browser) Fill(ctx context.Context, sel string, values map[string]any, submit bool) error {
	script, err := fillScript(sel, values, submit)
	if err != nil {
		return err
	}
	action := chromedp.Action(chromedp.Evaluate(script, nil))
	if submit {
		action = waitLoad(action)
	}
	return b.run(ctx, action)
}

// SendKeys focuses the element matching sel and types keys into it
func (b *Browser) SendKeys(ctx context.Context, sel, keys string) error {
	return b.run(ctx,
		chromedp.Focus(sel, chromedp.ByQuery),
		chromedp.SendKeys(sel, keys, chromedp.ByQuery),
	)
}

// Back goes one entry back in history. It does nothing on the first entry.
func (b *Browser) Back(ctx context.Context) error {
	return b.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		current, _, err := page.GetNavigationHistory().Do(ctx)
		if err != nil {
			return err
		}
		if current <= 0 {
			b.logger.Debug("no history entry to go back to")
			return nil
		}
		return chromedp.NavigateBack().Do(ctx)
	}))
}

// Reload reloads the current page
func (b *Browser) Reload(ctx context.Context) error {
	return b.run(ctx, chromedp.Reload())
}

// Screenshot captures the full page as PNG into path
func (b *Browser) Screenshot(ctx context.Context, path string) error {
	var buf []byte
	// quality 100 selects PNG
	if err := b.run(ctx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating screenshot directory: %w", err)
	}
	if err := os.WriteFile(path, buf, 0644); err != nil {
		return fmt.Errorf("saving screenshot: %w", err)
	}
	return nil
}

// Extract runs fn over a snapshot of the rendered DOM. An empty document
// yields nil.
func (b *Browser) Extract(ctx context.Context, fn extraction.Func) ([]models.Record, error) {
	var html string
	if err := b.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return nil, err
	}
	if strings.TrimSpace(html) == "" {
		return nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parsing page: %w", err)
	}
	return fn(doc), nil
}

// Cookies returns every cookie of the browser profile
func (b *Browser) Cookies(ctx context.Context) ([]models.Cookie, error) {
	var jar []models.Cookie
	err := b.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		cookies, err := storage.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		jar = fromNetworkCookies(cookies)
		return nil
	}))
	if err != nil {
		return nil, err
	}
	return jar, nil
}

// SetCookies installs jar into the browser profile
func (b *Browser) SetCookies(ctx context.Context, jar []models.Cookie) error {
	if len(jar) == 0 {
		return nil
	}
	return b.run(ctx, network.SetCookies(toCookieParams(jar)))
}

// Close shuts the tab and the browser process down
func (b *Browser) Close() error {
	err := chromedp.Cancel(b.ctx)
	b.cancel()
	b.allocCancel()
	if err != nil && err != context.Canceled {
		return fmt.Errorf("closing browser: %w", err)
	}
	return nil
}

// waitLoad runs action and waits for the load event of the page it
// triggers
func waitLoad(action chromedp.Action) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		loaded := make(chan struct{}, 1)
		listenCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		chromedp.ListenTarget(listenCtx, func(ev any) {
			if _, ok := ev.(*page.EventLoadEventFired); ok {
				select {
				case loaded <- struct{}{}:
				default:
				}
			}
		})

		if err := action.Do(ctx); err != nil {
			return err
		}
		select {
		case <-loaded:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

func withQuery(target string, data map[string]any) (string, error) {
	if len(data) == 0 {
		return target, nil
	}
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("parsing url %q: %w", target, err)
	}
	fields, err := formFields(data)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for _, f := range fields {
		q.Set(f.Name, f.Value)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func toHeaders(h map[string]string) network.Headers {
	headers := make(network.Headers, len(h))
	for k, v := range h {
		headers[k] = v
	}
	return headers
}

func fromNetworkCookies(cookies []*network.Cookie) []models.Cookie {
	jar := make([]models.Cookie, 0, len(cookies))
	for _, c := range cookies {
		jar = append(jar, models.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			Session:  c.Session,
			SameSite: c.SameSite.String(),
		})
	}
	return jar
}

func toCookieParams(jar []models.Cookie) []*network.CookieParam {
	params := make([]*network.CookieParam, 0, len(jar))
	for _, c := range jar {
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		}
		if c.SameSite != "" {
			p.SameSite = network.CookieSameSite(c.SameSite)
		}
		if !c.Session && c.Expires > 0 {
			sec, frac := math.Modf(c.Expires)
			expires := cdp.TimeSinceEpoch(time.Unix(int64(sec), int64(frac*1e9)))
			p.Expires = &expires
		}
		params = append(params, p)
	}
	return params
}
