package interpreter

import (
	"bufio"
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/williampepple1/scrapebot/internal/config"
	"github.com/williampepple1/scrapebot/internal/extraction"
	"github.com/williampepple1/scrapebot/pkg/models"
)

// call is one recorded browser command
type call struct {
	Method string
	Args   []any
}

// fakeBrowser records every command and fails on demand
type fakeBrowser struct {
	mu      sync.Mutex
	calls   []call
	records []models.Record
	jar     []models.Cookie
	failOn  string
	failErr error
	closed  bool
}

func (b *fakeBrowser) record(method string, args ...any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, call{Method: method, Args: args})
	if b.failOn == method {
		return b.failErr
	}
	return nil
}

func (b *fakeBrowser) Navigate(_ context.Context, url string, opts models.NavOptions) error {
	return b.record("Navigate", url, opts)
}

func (b *fakeBrowser) Click(_ context.Context, sel string) error {
	return b.record("Click", sel)
}

func (b *fakeBrowser) Fill(_ context.Context, sel string, values map[string]any, submit bool) error {
	copied := make(map[string]any, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return b.record("Fill", sel, copied, submit)
}

func (b *fakeBrowser) SendKeys(_ context.Context, sel, keys string) error {
	return b.record("SendKeys", sel, keys)
}

func (b *fakeBrowser) Back(context.Context) error   { return b.record("Back") }
func (b *fakeBrowser) Reload(context.Context) error { return b.record("Reload") }

func (b *fakeBrowser) Screenshot(_ context.Context, path string) error {
	return b.record("Screenshot", path)
}

func (b *fakeBrowser) Extract(_ context.Context, fn extraction.Func) ([]models.Record, error) {
	if err := b.record("Extract"); err != nil {
		return nil, err
	}
	// the stub library ignores the document
	if fn != nil {
		if got := fn(nil); got != nil {
			return got, nil
		}
	}
	return b.records, nil
}

func (b *fakeBrowser) Cookies(context.Context) ([]models.Cookie, error) {
	if err := b.record("Cookies"); err != nil {
		return nil, err
	}
	return b.jar, nil
}

func (b *fakeBrowser) SetCookies(_ context.Context, jar []models.Cookie) error {
	if err := b.record("SetCookies", jar); err != nil {
		return err
	}
	b.jar = append([]models.Cookie(nil), jar...)
	return nil
}

func (b *fakeBrowser) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}

func (b *fakeBrowser) methods() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.calls))
	for _, c := range b.calls {
		out = append(out, c.Method)
	}
	return out
}

func (b *fakeBrowser) callsOf(method string) []call {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []call
	for _, c := range b.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// fixedPicker always draws n
type fixedPicker int

func (p fixedPicker) Intn(int) int { return int(p) }

var testNow = time.Date(2026, 10, 19, 8, 15, 0, 0, time.UTC)

// harness runs an interpreter against a fakeBrowser in a temp prefix
type harness struct {
	t       *testing.T
	cfg     config.Config
	browser *fakeBrowser
	deps    Deps
	sleeps  []time.Duration
}

func newHarness(t *testing.T, mutate func(cfg *config.Config)) *harness {
	t.Helper()
	cfg := config.Defaults()
	cfg.UID = "job1"
	cfg.Cookie = false
	cfg.Dir.Prefix = t.TempDir()
	if mutate != nil {
		mutate(&cfg)
	}

	h := &harness{t: t, cfg: cfg, browser: &fakeBrowser{}}
	h.deps = Deps{
		Open: func(context.Context, config.Config) (Browser, error) {
			return h.browser, nil
		},
		Picker: fixedPicker(0),
		Sleep: func(_ context.Context, d time.Duration) error {
			h.sleeps = append(h.sleeps, d)
			return nil
		},
		Now: func() time.Time { return testNow },
	}
	return h
}

func (h *harness) run(steps ...models.Step) error {
	return New(h.cfg, h.deps).Run(context.Background(), &models.Job{Steps: steps})
}

// logLines returns the session log without timestamps
func (h *harness) logLines() []string {
	h.t.Helper()
	f, err := os.Open(h.cfg.SessionLogFile())
	require.NoError(h.t, err)
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	prefix := len("2006-01-02 15:04:05.000 ")
	for scanner.Scan() {
		line := scanner.Text()
		require.GreaterOrEqual(h.t, len(line), prefix)
		lines = append(lines, line[prefix:])
	}
	require.NoError(h.t, scanner.Err())
	return lines
}

// stepLines returns the log lines produced by steps
func (h *harness) stepLines() []string {
	var out []string
	for _, l := range h.logLines() {
		if strings.HasPrefix(l, "[") || strings.HasPrefix(l, "ERROR in step") {
			out = append(out, l)
		}
	}
	return out
}

func (h *harness) results() []models.ExtractionResult {
	h.t.Helper()
	f, err := os.Open(h.cfg.ResultFile())
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(h.t, err)
	defer f.Close()

	var out []models.ExtractionResult
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var r models.ExtractionResult
		require.NoError(h.t, json.Unmarshal(scanner.Bytes(), &r))
		out = append(out, r)
	}
	require.NoError(h.t, scanner.Err())
	return out
}
