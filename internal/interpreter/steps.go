package interpreter

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/williampepple1/scrapebot/pkg/models"
)

// handler executes one step. done is false when the step was skipped
// because of a recoverable problem that has already been logged. A
// returned error ends the run.
type handler func(ctx context.Context, i int, step *models.Step) (done bool, err error)

func (in *Interpreter) registerHandlers() map[models.StepType]handler {
	return map[models.StepType]handler{
		models.StepOpen:       in.open,
		models.StepRandom:     in.random,
		models.StepClick:      in.click,
		models.StepEval:       in.eval,
		models.StepEvaluate:   in.eval,
		models.StepFill:       in.fill,
		models.StepKey:        in.key,
		models.StepBack:       in.back,
		models.StepReload:     in.reload,
		models.StepLog:        in.text,
		models.StepShot:       in.screenshot,
		models.StepScreenshot: in.screenshot,
	}
}

// skip logs a step error and marks the step as not done
func (in *Interpreter) skip(i int, msg string) (bool, error) {
	return false, in.stepError(i, msg)
}

func (in *Interpreter) open(ctx context.Context, i int, step *models.Step) (bool, error) {
	if step.URL == "" {
		return in.skip(i, "No URL given")
	}
	if step.Options == nil {
		step.Options = &models.NavOptions{}
	}
	if err := in.log.Recordf("[%d] Opening %s", i, step.URL); err != nil {
		return false, err
	}
	return true, in.rc.Browser.Navigate(ctx, step.URL, *step.Options)
}

// random resolves the URL list to one URL and continues as an open step
func (in *Interpreter) random(ctx context.Context, i int, step *models.Step) (bool, error) {
	if len(step.URLs) == 0 {
		return in.skip(i, "No URL array given")
	}
	step.URL = step.URLs[pick(in.deps.Picker, len(step.URLs))]
	return in.open(ctx, i, step)
}

func (in *Interpreter) click(ctx context.Context, i int, step *models.Step) (bool, error) {
	if step.Selector == "" {
		return in.skip(i, "No selector given")
	}
	if err := in.log.Recordf("[%d] Clicking %s", i, step.Selector); err != nil {
		return false, err
	}
	return true, in.rc.Browser.Click(ctx, step.Selector)
}

func (in *Interpreter) eval(ctx context.Context, i int, step *models.Step) (bool, error) {
	fn, ok := in.deps.Library.Lookup(step.Eval)
	if step.Eval == "" || !ok {
		return in.skip(i, "No function given")
	}
	if err := in.log.Recordf("[%d] Evaluating %s", i, step.Eval); err != nil {
		return false, err
	}

	records, err := in.rc.Browser.Extract(ctx, fn)
	if err != nil {
		return false, err
	}
	done := true
	if records == nil {
		if err := in.stepError(i, "eval returned NULL"); err != nil {
			return false, err
		}
		records = []models.Record{}
		done = false
	}

	return done, in.capture(models.ExtractionResult{
		Kind:      models.KindEval,
		StepIndex: i,
		Timestamp: in.deps.Now(),
		ItemCount: len(records),
		Items:     records,
		Function:  step.Eval,
	})
}

func (in *Interpreter) fill(ctx context.Context, i int, step *models.Step) (bool, error) {
	if step.Selector == "" || step.Values == nil {
		return in.skip(i, "Form selector or values missing")
	}

	names := make([]string, 0, len(step.Values))
	for name := range step.Values {
		names = append(names, name)
	}
	sort.Strings(names)

	draws := 0
	for _, name := range names {
		list, ok := asList(step.Values[name])
		if !ok {
			continue
		}
		if len(list) == 0 {
			delete(step.Values, name)
			if err := in.stepError(i, fmt.Sprintf("Empty value list for field %s", name)); err != nil {
				return false, err
			}
			continue
		}
		step.Values[name] = list[pick(in.deps.Picker, len(list))]
		draws++
		if err := in.log.Recordf("[%d] Random fill string set (%v)", i, step.Values[name]); err != nil {
			return false, err
		}
	}

	if draws > 0 {
		resolved := make(models.Record, len(step.Values))
		for k, v := range step.Values {
			resolved[k] = v
		}
		err := in.capture(models.ExtractionResult{
			Kind:      models.KindFill,
			StepIndex: i,
			Timestamp: in.deps.Now(),
			ItemCount: draws,
			Items:     []models.Record{resolved},
		})
		if err != nil {
			return false, err
		}
	}

	values, err := json.Marshal(step.Values)
	if err != nil {
		return false, fmt.Errorf("encoding form values: %w", err)
	}
	if err := in.log.Recordf("[%d] Filling form %s (%s)", i, step.Selector, values); err != nil {
		return false, err
	}
	return true, in.rc.Browser.Fill(ctx, step.Selector, step.Values, step.Submit)
}

func (in *Interpreter) key(ctx context.Context, i int, step *models.Step) (bool, error) {
	if step.Selector == "" || step.Keys == "" {
		return in.skip(i, "Input selector or keys missing")
	}
	if err := in.log.Recordf("[%d] Sending keystrokes to %s (%s)", i, step.Selector, step.Keys); err != nil {
		return false, err
	}
	return true, in.rc.Browser.SendKeys(ctx, step.Selector, step.Keys)
}

func (in *Interpreter) back(ctx context.Context, i int, _ *models.Step) (bool, error) {
	if err := in.log.Recordf("[%d] Going one step back.", i); err != nil {
		return false, err
	}
	return true, in.rc.Browser.Back(ctx)
}

func (in *Interpreter) reload(ctx context.Context, i int, _ *models.Step) (bool, error) {
	if err := in.log.Recordf("[%d] Reloading page", i); err != nil {
		return false, err
	}
	return true, in.rc.Browser.Reload(ctx)
}

func (in *Interpreter) text(_ context.Context, i int, step *models.Step) (bool, error) {
	if step.Text == "" {
		return in.skip(i, "No text given")
	}
	return true, in.log.Record(step.Text)
}

func (in *Interpreter) screenshot(ctx context.Context, i int, _ *models.Step) (bool, error) {
	path := in.cfg.ScreenshotFile(i, in.rc.RunStamp)
	if err := in.log.Recordf("[%d] Taking screenshot into %s", i, filepath.Base(path)); err != nil {
		return false, err
	}
	return true, in.rc.Browser.Screenshot(ctx, path)
}
