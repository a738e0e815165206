package interpreter

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/williampepple1/scrapebot/internal/config"
	"github.com/williampepple1/scrapebot/internal/cookies"
	"github.com/williampepple1/scrapebot/internal/extraction"
	"github.com/williampepple1/scrapebot/internal/metrics"
	"github.com/williampepple1/scrapebot/pkg/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func stubLibrary(records []models.Record) *extraction.Library {
	lib := extraction.NewLibrary()
	lib.Register("extractGoogleResults", func(*goquery.Document) []models.Record { return records })
	return lib
}

func TestEveryStepWaitsOnce(t *testing.T) {
	h := newHarness(t, nil)
	steps := []models.Step{
		{URL: "https://example.com"},
		{Type: models.StepClick},
		{Type: models.StepClick, Selector: "#next"},
		{Type: models.StepLog, Text: "checkpoint"},
		{Type: models.StepLog},
		{Type: "scroll"},
		{Type: models.StepKey, Selector: "#q"},
		{Type: models.StepBack},
		{Type: models.StepReload},
		{Type: models.StepShot},
		{Type: models.StepRandom},
		{Type: models.StepEval, Eval: "extractNothing"},
		{Type: models.StepFill, Selector: "form"},
	}

	require.NoError(t, h.run(steps...))

	require.Len(t, h.sleeps, len(steps))
	for _, d := range h.sleeps {
		assert.Equal(t, 800*time.Millisecond, d)
	}

	log := strings.Join(h.logLines(), "\n")
	for i := range steps {
		if steps[i].Type == models.StepLog && steps[i].Text != "" {
			continue
		}
		assert.Regexp(t, fmt.Sprintf(`(?m)^(\[%d\] |ERROR in step %d: )`, i, i), log, "step %d left no log entry", i)
	}
	assert.Contains(t, log, "checkpoint")
	assert.Contains(t, log, "ERROR in step 5: Unknown step type scroll")
	assert.Contains(t, log, "ERROR in step 4: No text given")
	assert.Contains(t, log, "Finishing #job1")
	assert.True(t, h.browser.closed)
}

func TestMissingSelectorClick(t *testing.T) {
	h := newHarness(t, nil)

	require.NoError(t, h.run(
		models.Step{Type: models.StepClick},
		models.Step{Type: models.StepLog, Text: "next"},
	))

	var errorsLogged []string
	for _, l := range h.logLines() {
		if strings.HasPrefix(l, "ERROR") {
			errorsLogged = append(errorsLogged, l)
		}
	}
	assert.Equal(t, []string{"ERROR in step 0: No selector given"}, errorsLogged)
	assert.Empty(t, h.browser.callsOf("Click"))
	assert.Len(t, h.sleeps, 2, "the run proceeds after the normal wait")
	assert.Contains(t, h.logLines(), "next")
}

func TestRandomFallsThroughToOpen(t *testing.T) {
	opts := &models.NavOptions{Headers: map[string]string{"X-Test": "1"}}

	viaOpen := newHarness(t, nil)
	require.NoError(t, viaOpen.run(models.Step{Type: models.StepOpen, URL: "https://b.example", Options: opts}))

	viaRandom := newHarness(t, nil)
	viaRandom.deps.Picker = fixedPicker(1)
	job := &models.Job{Steps: []models.Step{{
		Type:    models.StepRandom,
		URLs:    []string{"https://a.example", "https://b.example", "https://c.example"},
		Options: opts,
	}}}
	require.NoError(t, New(viaRandom.cfg, viaRandom.deps).Run(context.Background(), job))

	assert.Equal(t, viaOpen.stepLines(), viaRandom.stepLines())
	assert.Equal(t, []string{"[0] Opening https://b.example"}, viaRandom.stepLines())
	if diff := cmp.Diff(viaOpen.browser.calls, viaRandom.browser.calls); diff != "" {
		t.Errorf("browser calls differ (-open +random):\n%s", diff)
	}
	assert.Equal(t, "https://b.example", job.Steps[0].URL, "the resolved url is stored in the step")
}

func TestRandomWithoutURLs(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.run(models.Step{Type: models.StepRandom, URL: "https://ignored.example"}))

	assert.Equal(t, []string{"ERROR in step 0: No URL array given"}, h.stepLines())
	assert.Empty(t, h.browser.callsOf("Navigate"))
}

func TestOpenDefaultsAndOptions(t *testing.T) {
	h := newHarness(t, nil)
	job := &models.Job{Steps: []models.Step{
		{URL: "https://example.com"},
		{Type: models.StepOpen},
		{URL: "https://collector.example", Options: &models.NavOptions{Method: "POST", Data: map[string]any{"a": "1"}}},
	}}
	require.NoError(t, New(h.cfg, h.deps).Run(context.Background(), job))

	assert.Equal(t, models.StepOpen, job.Steps[0].Type)
	require.NotNil(t, job.Steps[0].Options)

	navs := h.browser.callsOf("Navigate")
	require.Len(t, navs, 2)
	assert.Equal(t, models.NavOptions{}, navs[0].Args[1])
	assert.True(t, navs[1].Args[1].(models.NavOptions).IsPost())
	assert.Contains(t, h.stepLines(), "ERROR in step 1: No URL given")
}

func TestPickStaysInRange(t *testing.T) {
	for k := 1; k <= 5; k++ {
		assert.Equal(t, k-1, pick(fixedPicker(k), k), "a draw of k is clamped")
		assert.Equal(t, 0, pick(fixedPicker(-1), k))
	}

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 1000; i++ {
		k := 1 + i%7
		idx := pick(rng, k)
		assert.True(t, idx >= 0 && idx <= k-1)
	}
}

func TestFillResolvesRandomValues(t *testing.T) {
	h := newHarness(t, nil)
	h.deps.Picker = fixedPicker(3) // out of range for both lists
	job := &models.Job{Steps: []models.Step{{
		Type:     models.StepFill,
		Selector: "form#search",
		Values: map[string]any{
			"q":     []any{"cats", "dogs", "birds"},
			"lang":  "en",
			"page":  []any{"1", "2"},
			"empty": []any{},
		},
		Submit: true,
	}}}

	require.NoError(t, New(h.cfg, h.deps).Run(context.Background(), job))

	want := map[string]any{"q": "birds", "lang": "en", "page": "2"}
	assert.Equal(t, want, job.Steps[0].Values, "resolved values replace the lists")

	fills := h.browser.callsOf("Fill")
	require.Len(t, fills, 1)
	assert.Equal(t, "form#search", fills[0].Args[0])
	assert.Equal(t, want, fills[0].Args[1])
	assert.Equal(t, true, fills[0].Args[2])

	assert.Equal(t, []string{
		"ERROR in step 0: Empty value list for field empty",
		"[0] Random fill string set (2)",
		"[0] Random fill string set (birds)",
		`[0] Filling form form#search ({"lang":"en","page":"2","q":"birds"})`,
	}, h.stepLines())

	results := h.results()
	require.Len(t, results, 1)
	assert.Equal(t, models.KindFill, results[0].Kind)
	assert.Equal(t, 0, results[0].StepIndex)
	assert.Equal(t, 2, results[0].ItemCount)
	assert.Equal(t, []models.Record{{"q": "birds", "lang": "en", "page": "2"}}, results[0].Items)
}

func TestFillWithoutRandomValuesWritesNoResult(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.run(
		models.Step{Type: models.StepFill, Selector: "form", Values: map[string]any{"q": "fixed"}},
		models.Step{Type: models.StepFill, Values: map[string]any{"q": "x"}},
	))

	assert.Nil(t, h.results())
	assert.Len(t, h.browser.callsOf("Fill"), 1)
	assert.Contains(t, h.stepLines(), "ERROR in step 1: Form selector or values missing")
}

func TestNullExtraction(t *testing.T) {
	h := newHarness(t, nil)
	h.deps.Library = extraction.NewLibrary()
	h.deps.Library.Register("extractNothing", func(*goquery.Document) []models.Record { return nil })

	require.NoError(t, h.run(models.Step{Type: models.StepEvaluate, Eval: "extractNothing"}))

	assert.Equal(t, []string{
		"[0] Evaluating extractNothing",
		"ERROR in step 0: eval returned NULL",
	}, h.stepLines())

	results := h.results()
	require.Len(t, results, 1)
	assert.Equal(t, 0, results[0].ItemCount)
	assert.NotNil(t, results[0].Items)
	assert.Empty(t, results[0].Items)

	raw, err := os.ReadFile(h.cfg.ResultFile())
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"items":[]`)
}

func TestUnknownFunction(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.run(models.Step{Type: models.StepEval}, models.Step{Type: models.StepEval, Eval: "nope"}))

	assert.Equal(t, []string{
		"ERROR in step 0: No function given",
		"ERROR in step 1: No function given",
	}, h.stepLines())
	assert.Empty(t, h.browser.callsOf("Extract"))
}

func TestOpenThenEval(t *testing.T) {
	h := newHarness(t, nil)
	h.deps.Library = stubLibrary([]models.Record{{"text": "a", "link": "/a", "position": 1}})

	require.NoError(t, h.run(
		models.Step{Type: models.StepOpen, URL: "https://example.com"},
		models.Step{Type: models.StepEval, Eval: "extractGoogleResults"},
	))

	assert.Equal(t, []string{
		"[0] Opening https://example.com",
		"[1] Evaluating extractGoogleResults",
	}, h.stepLines())

	results := h.results()
	require.Len(t, results, 1)
	assert.Equal(t, models.KindEval, results[0].Kind)
	assert.Equal(t, 1, results[0].StepIndex)
	assert.Equal(t, 1, results[0].ItemCount)
	assert.Equal(t, "extractGoogleResults", results[0].Function)
	assert.True(t, testNow.Equal(results[0].Timestamp))
	assert.Equal(t, "/a", results[0].Items[0]["link"])
}

func TestScreenshotNaming(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.run(models.Step{Type: models.StepLog, Text: "x"}, models.Step{Type: models.StepScreenshot}))

	assert.Equal(t, []string{"[1] Taking screenshot into job1_1_2026-10-19_08-15-00.png"}, h.stepLines())
	shots := h.browser.callsOf("Screenshot")
	require.Len(t, shots, 1)
	assert.Equal(t, filepath.Join(h.cfg.ScreenshotDir(), "job1_1_2026-10-19_08-15-00.png"), shots[0].Args[0])
}

func TestKeyAndNavigationSteps(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.run(
		models.Step{Type: models.StepKey, Selector: "#q", Keys: "hello"},
		models.Step{Type: models.StepBack},
		models.Step{Type: models.StepReload},
	))

	assert.Equal(t, []string{
		"[0] Sending keystrokes to #q (hello)",
		"[1] Going one step back.",
		"[2] Reloading page",
	}, h.stepLines())
	assert.Equal(t, []string{"SendKeys", "Back", "Reload"}, h.browser.methods())
}

func TestRemoteDelivery(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.LogToREST = true
		cfg.RESTURL = "https://collector.example/push"
		cfg.RESTIdentifier = "bot-7"
		cfg.RESTKey = "s3cret"
	})
	h.deps.Library = stubLibrary([]models.Record{{"text": "a", "link": "/a", "position": 1}})

	require.NoError(t, h.run(
		models.Step{URL: "https://example.com"},
		models.Step{Type: models.StepEval, Eval: "extractGoogleResults"},
	))

	assert.Len(t, h.sleeps, 3, "delivery waits like a step")

	navs := h.browser.callsOf("Navigate")
	require.Len(t, navs, 2)
	assert.Equal(t, "https://collector.example/push", navs[1].Args[0])
	opts := navs[1].Args[1].(models.NavOptions)
	assert.True(t, opts.IsPost())
	assert.Equal(t, "bot-7", opts.Data["me"])
	assert.Equal(t, "s3cret", opts.Data["key"])

	var delivered []models.ExtractionResult
	require.NoError(t, json.Unmarshal([]byte(opts.Data["data"].(string)), &delivered))
	require.Len(t, delivered, 1)
	assert.Equal(t, 1, delivered[0].ItemCount)

	var pushLine string
	for _, l := range h.logLines() {
		if strings.HasPrefix(l, "Pushing eval data to REST (https://collector.example/push): ") {
			pushLine = l
		}
		assert.NotContains(t, l, "s3cret", "the credential is never logged")
	}
	assert.NotEmpty(t, pushLine)
}

func TestCookiesRestoredAndPersisted(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) { cfg.Cookie = true })
	store := cookies.NewStore(h.cfg.CookieDir())
	saved := []models.Cookie{{Name: "NID", Value: "1", Domain: ".google.com", Path: "/"}}
	require.NoError(t, store.Save("job1", saved))

	h.browser.jar = nil
	require.NoError(t, h.run(models.Step{URL: "https://example.com"}))

	lines := h.logLines()
	assert.Contains(t, lines, "Loading cookies from "+store.Path("job1"))
	assert.Contains(t, lines, "Storing cookies in "+store.Path("job1"))
	assert.Equal(t, "Finishing #job1", lines[len(lines)-1])

	methods := h.browser.methods()
	assert.Equal(t, "SetCookies", methods[0], "cookies are restored before the first navigation")
	assert.Equal(t, "Cookies", methods[len(methods)-1])

	jar, ok, err := store.Load("job1")
	require.NoError(t, err)
	assert.True(t, ok)
	if diff := cmp.Diff(saved, jar); diff != "" {
		t.Errorf("persisted jar mismatch (-want +got):\n%s", diff)
	}
}

func TestCookiesFirstRun(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) { cfg.Cookie = true })
	h.browser.jar = []models.Cookie{{Name: "sid", Value: "x", Domain: "example.com", Path: "/"}}

	require.NoError(t, h.run(models.Step{URL: "https://example.com"}))

	for _, l := range h.logLines() {
		assert.NotContains(t, l, "Loading cookies")
	}
	assert.Empty(t, h.browser.callsOf("SetCookies"))
	assert.FileExists(t, h.cfg.CookieFile())
}

func TestCookiesDisabled(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.run(models.Step{URL: "https://example.com"}))

	assert.Empty(t, h.browser.callsOf("Cookies"))
	assert.Empty(t, h.browser.callsOf("SetCookies"))
	_, err := os.Stat(h.cfg.CookieFile())
	assert.True(t, os.IsNotExist(err))
}

func TestEngineErrorIsFatal(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Cookie = true
		cfg.LogToREST = true
		cfg.RESTURL = "https://collector.example/push"
	})
	h.deps.Library = stubLibrary([]models.Record{{"text": "a"}})
	boom := errors.New("net::ERR_NAME_NOT_RESOLVED")
	h.browser.failOn = "Click"
	h.browser.failErr = boom

	err := h.run(
		models.Step{Type: models.StepEval, Eval: "extractGoogleResults"},
		models.Step{Type: models.StepClick, Selector: "#go"},
		models.Step{Type: models.StepLog, Text: "never"},
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "step 1")

	lines := h.logLines()
	assert.Equal(t, "FATAL in step 1: net::ERR_NAME_NOT_RESOLVED", lines[len(lines)-1])
	for _, l := range lines {
		assert.NotContains(t, l, "never")
		assert.NotContains(t, l, "Pushing eval data")
		assert.NotContains(t, l, "Storing cookies")
		assert.NotContains(t, l, "Finishing")
	}

	assert.Len(t, h.results(), 1, "results captured before the failure stay on disk")
	assert.Empty(t, h.browser.callsOf("Navigate"))
	assert.Empty(t, h.browser.callsOf("Cookies"))
	assert.True(t, h.browser.closed)
	_, statErr := os.Stat(h.cfg.CookieFile())
	assert.True(t, os.IsNotExist(statErr))
}

func TestOpenFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.deps.Open = func(context.Context, config.Config) (Browser, error) {
		return nil, errors.New("chrome not found")
	}

	in := New(h.cfg, h.deps)
	err := in.Run(context.Background(), &models.Job{Steps: []models.Step{{URL: "https://example.com"}}})
	require.Error(t, err)

	lines := h.logLines()
	assert.True(t, strings.HasPrefix(lines[0], "Config: "))
	assert.Equal(t, "FATAL during initializing: opening browser: chrome not found", lines[len(lines)-1])
	assert.Empty(t, h.sleeps)
	assert.Equal(t, StateTerminated, in.RunContext().State())
}

func TestMissingUID(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) { cfg.UID = "" })

	err := h.run(models.Step{URL: "https://example.com"})
	assert.ErrorIs(t, err, config.ErrMissingUID)

	entries, readErr := os.ReadDir(h.cfg.Dir.Prefix)
	require.NoError(t, readErr)
	assert.Empty(t, entries, "nothing is written without a uid")
	assert.Empty(t, h.browser.calls)
}

func TestConfigLineIsRedacted(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) { cfg.RESTKey = "s3cret" })
	require.NoError(t, h.run())

	lines := h.logLines()
	require.NotEmpty(t, lines)
	assert.True(t, strings.HasPrefix(lines[0], `Config: {"uid":"job1"`))
	assert.NotContains(t, lines[0], "s3cret")
	assert.Equal(t, []string{lines[0], "Finishing #job1"}, lines)
}

func TestCancelledRun(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	h.deps.Sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	err := New(h.cfg, h.deps).Run(ctx, &models.Job{Steps: []models.Step{
		{URL: "https://example.com"},
		{URL: "https://example.org"},
	}})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, h.browser.callsOf("Navigate"), 1)
	assert.True(t, h.browser.closed)
}

func TestMetricsAreRecorded(t *testing.T) {
	h := newHarness(t, nil)
	h.deps.Metrics = metrics.New()
	h.deps.Library = stubLibrary([]models.Record{{"text": "a"}})

	require.NoError(t, h.run(
		models.Step{URL: "https://example.com"},
		models.Step{Type: models.StepClick},
		models.Step{Type: models.StepEval, Eval: "extractGoogleResults"},
	))

	families, err := h.deps.Metrics.Registry().Gather()
	require.NoError(t, err)
	got := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			key := mf.GetName()
			for _, lp := range m.GetLabel() {
				key += "," + lp.GetName() + "=" + lp.GetValue()
			}
			if m.GetCounter() != nil {
				got[key] = m.GetCounter().GetValue()
			}
			if m.GetGauge() != nil {
				got[key] = m.GetGauge().GetValue()
			}
		}
	}

	assert.Equal(t, float64(1), got["scrapebot_steps_total,outcome=ok,type=open"])
	assert.Equal(t, float64(1), got["scrapebot_steps_total,outcome=error,type=click"])
	assert.Equal(t, float64(1), got["scrapebot_steps_total,outcome=ok,type=eval"])
	assert.Equal(t, float64(1), got["scrapebot_results_captured_total"])
	assert.Equal(t, float64(1), got["scrapebot_run_success"])
}

func TestStateNames(t *testing.T) {
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "delivering results", StateDeliveringResults.String())
	assert.Equal(t, "unknown", State(42).String())
}
