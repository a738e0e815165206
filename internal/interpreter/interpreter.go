package interpreter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/williampepple1/scrapebot/internal/config"
	"github.com/williampepple1/scrapebot/internal/cookies"
	"github.com/williampepple1/scrapebot/internal/extraction"
	sio "github.com/williampepple1/scrapebot/internal/io"
	"github.com/williampepple1/scrapebot/internal/metrics"
	"github.com/williampepple1/scrapebot/internal/worker"
	"github.com/williampepple1/scrapebot/pkg/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Browser is the browser session a run drives
type Browser interface {
	Navigate(ctx context.Context, url string, opts models.NavOptions) error
	Click(ctx context.Context, sel string) error
	Fill(ctx context.Context, sel string, values map[string]any, submit bool) error
	SendKeys(ctx context.Context, sel, keys string) error
	Back(ctx context.Context) error
	Reload(ctx context.Context) error
	Screenshot(ctx context.Context, path string) error
	Extract(ctx context.Context, fn extraction.Func) ([]models.Record, error)
	Cookies(ctx context.Context) ([]models.Cookie, error)
	SetCookies(ctx context.Context, jar []models.Cookie) error
	Close() error
}

// OpenFunc starts a browser session for cfg
type OpenFunc func(ctx context.Context, cfg config.Config) (Browser, error)

// Deps are the collaborators of an Interpreter. Only Open is required.
type Deps struct {
	Open    OpenFunc
	Library *extraction.Library
	Metrics *metrics.Recorder
	// Echo receives a copy of every session log line
	Echo   io.Writer
	Picker Picker
	Sleep  func(ctx context.Context, d time.Duration) error
	Now    func() time.Time
	Logger *zap.Logger
}

// Interpreter executes the steps of one job against one browser session
type Interpreter struct {
	cfg      config.Config
	deps     Deps
	handlers map[models.StepType]handler
	logger   *zap.Logger

	rc   *RunContext
	log  *sio.SessionLog
	sink *sio.ResultSink
}

// New creates an interpreter for the resolved configuration cfg
func New(cfg config.Config, deps Deps) *Interpreter {
	if deps.Library == nil {
		deps.Library = extraction.Default()
	}
	if deps.Picker == nil {
		deps.Picker = newPicker()
	}
	if deps.Sleep == nil {
		deps.Sleep = worker.Sleep
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	in := &Interpreter{
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger.Named("interpreter").With(zap.String("uid", cfg.UID)),
	}
	in.handlers = in.registerHandlers()
	return in
}

// RunContext returns the context of the current or last run
func (in *Interpreter) RunContext() *RunContext {
	return in.rc
}

// Run executes job to completion. Step-level problems are logged and the
// run continues; browser engine errors stop it and are returned.
func (in *Interpreter) Run(ctx context.Context, job *models.Job) (err error) {
	if in.deps.Open == nil {
		return errors.New("interpreter: no browser opener configured")
	}
	if err := in.cfg.Validate(); err != nil {
		return err
	}

	in.rc = newRunContext(in.cfg, in.deps.Now())
	rc := in.rc

	in.log, err = sio.OpenSessionLog(in.cfg.SessionLogFile(), in.deps.Echo)
	if err != nil {
		return err
	}
	in.log.SetClock(in.deps.Now)
	in.sink = sio.NewResultSink(in.cfg.ResultFile(), rc.Buffer)

	in.logger.Info("run started",
		zap.String("run_id", rc.RunID),
		zap.Int("steps", len(job.Steps)))

	defer func() {
		in.terminate(err)
	}()

	seq := worker.NewSequence(in.cfg.Wait())
	seq.Sleep = in.deps.Sleep
	seq.Add(worker.Task{Name: "initialize", Run: in.initialize})
	for i := range job.Steps {
		i, step := i, &job.Steps[i]
		seq.Add(worker.Task{
			Name:   fmt.Sprintf("step %d", i),
			Run:    func(ctx context.Context) error { return in.execute(ctx, i, step) },
			Settle: true,
		})
	}
	if in.cfg.LogToREST {
		seq.Add(worker.Task{Name: "deliver results", Run: in.deliver, Settle: true})
	}
	seq.Add(worker.Task{Name: "persist cookies", Run: in.persistCookies})
	seq.Add(worker.Task{Name: "finish", Run: in.finish})

	if err := seq.Run(ctx); err != nil {
		return fmt.Errorf("run %s: %w", rc.UID, err)
	}
	return nil
}

// initialize opens the browser session and restores cookies
func (in *Interpreter) initialize(ctx context.Context) error {
	rc := in.rc
	rc.state = StateInitializing

	cfgJSON, err := json.Marshal(in.cfg.Redacted())
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := in.log.Record("Config: " + string(cfgJSON)); err != nil {
		return err
	}

	browser, err := in.deps.Open(ctx, in.cfg)
	if err != nil {
		return fmt.Errorf("opening browser: %w", err)
	}
	rc.Browser = browser

	if in.cfg.Cookie {
		bridge := in.cookieBridge()
		path := bridge.Store.Path(rc.UID)
		_, found, err := bridge.Store.Load(rc.UID)
		if err != nil {
			return err
		}
		if found {
			if err := in.log.Record("Loading cookies from " + path); err != nil {
				return err
			}
			if _, err := bridge.Restore(ctx, browser, rc.UID); err != nil {
				return err
			}
		}
	}

	rc.state = StateRunning
	return nil
}

// execute dispatches one step to its handler
func (in *Interpreter) execute(ctx context.Context, i int, step *models.Step) error {
	in.rc.step = i
	if step.Type == "" {
		step.Type = models.StepOpen
	}

	h, ok := in.handlers[step.Type]
	if !ok {
		in.deps.Metrics.Step(string(step.Type), false)
		return in.stepError(i, "Unknown step type "+string(step.Type))
	}

	done, err := h(ctx, i, step)
	if err != nil {
		return err
	}
	in.deps.Metrics.Step(string(step.Type), done)
	in.logger.Debug("step done",
		zap.Int("step", i),
		zap.String("type", string(step.Type)),
		zap.Bool("ok", done))
	return nil
}

// deliver submits the buffered results to the REST collector
func (in *Interpreter) deliver(ctx context.Context) error {
	rc := in.rc
	rc.state = StateDeliveringResults
	rc.step = -1

	data, err := rc.Buffer.JSON()
	if err != nil {
		return fmt.Errorf("encoding delivery: %w", err)
	}
	if err := in.log.Recordf("Pushing eval data to REST (%s): %s", in.cfg.RESTURL, data); err != nil {
		return err
	}

	return rc.Browser.Navigate(ctx, in.cfg.RESTURL, models.NavOptions{
		Method: "post",
		Data: map[string]any{
			"me":   in.cfg.RESTIdentifier,
			"key":  in.cfg.RESTKey,
			"data": string(data),
		},
	})
}

func (in *Interpreter) persistCookies(ctx context.Context) error {
	rc := in.rc
	rc.state = StatePersistingCookies
	rc.step = -1

	if !in.cfg.Cookie {
		return nil
	}
	bridge := in.cookieBridge()
	if err := in.log.Record("Storing cookies in " + bridge.Store.Path(rc.UID)); err != nil {
		return err
	}
	return bridge.Persist(ctx, rc.Browser, rc.UID)
}

func (in *Interpreter) finish(context.Context) error {
	return in.log.Record("Finishing #" + in.rc.UID)
}

// terminate releases the session and records a fatal error if the run
// failed
func (in *Interpreter) terminate(runErr error) {
	rc := in.rc

	if runErr != nil {
		msg := fmt.Sprintf("FATAL during %s: %v", rc.state, rootCause(runErr))
		if rc.state == StateRunning && rc.step >= 0 {
			msg = fmt.Sprintf("FATAL in step %d: %v", rc.step, rootCause(runErr))
		}
		// best effort, the run error is what gets reported
		_ = in.log.Record(msg)
		in.logger.Error("run failed", zap.Error(runErr))
	}

	if rc.Browser != nil {
		if err := rc.Browser.Close(); err != nil {
			in.logger.Warn("closing browser", zap.Error(err))
		}
	}
	if err := in.sink.Close(); err != nil {
		in.logger.Warn("closing result file", zap.Error(err))
	}
	if err := in.log.Close(); err != nil {
		in.logger.Warn("closing session log", zap.Error(err))
	}

	rc.state = StateTerminated
	in.deps.Metrics.Finish(in.deps.Now().Sub(rc.Started), runErr == nil)
	in.logger.Info("run terminated", zap.Bool("success", runErr == nil))
}

func (in *Interpreter) cookieBridge() *cookies.Bridge {
	return cookies.NewBridge(cookies.NewStore(in.cfg.CookieDir()))
}

// stepError records a recoverable step problem
func (in *Interpreter) stepError(i int, msg string) error {
	return in.log.Recordf("ERROR in step %d: %s", i, msg)
}

// capture writes r to the result sink
func (in *Interpreter) capture(r models.ExtractionResult) error {
	if err := in.sink.Capture(r); err != nil {
		return err
	}
	in.deps.Metrics.ResultCaptured()
	return nil
}

// rootCause strips the run and task prefixes added while unwinding
func rootCause(err error) error {
	for i := 0; i < 2; i++ {
		inner := errors.Unwrap(err)
		if inner == nil {
			break
		}
		err = inner
	}
	return err
}
