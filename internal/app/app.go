package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"replybot/internal/config"
	"replybot/internal/configuration"
	"replybot/internal/dispatch"
	"replybot/internal/runtime/supervisor"
	"replybot/internal/storage"
	"replybot/internal/task/engine"
	"replybot/internal/task/scheduler"
	logx "replybot/pkg/logx"
)

// App wires the store, the scheduler stack and the configuration service.
//
// CLI commands use an App without starting it: mutations reach the store
// and the (idle) scheduler validates cron specs. A started App also fires
// jobs and reconciles with the store every resync interval.
type App struct {
	cfgm *config.Manager
	log  logx.Logger
	logs *logx.Service

	store   configuration.Store
	engine  *engine.Service
	sched   *scheduler.Service
	replies *scheduler.Replies
	svc     *configuration.Service

	resync time.Duration
	sup    *supervisor.Supervisor
}

type Option func(*options)

type options struct {
	logs       *logx.Service
	log        logx.Logger
	dispatcher scheduler.Dispatcher
}

// WithLogger reuses an existing logging service instead of creating one
// from the config. logs may be nil when hot reload of logging is not needed.
func WithLogger(logs *logx.Service, log logx.Logger) Option {
	return func(o *options) {
		o.logs = logs
		o.log = log
	}
}

// WithDispatcher overrides the configured dispatch driver.
func WithDispatcher(d scheduler.Dispatcher) Option {
	return func(o *options) { o.dispatcher = d }
}

func New(cfgm *config.Manager, opts ...Option) (*App, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	cfg := cfgm.Get()
	if cfg == nil {
		var err error
		if cfg, err = cfgm.Load(); err != nil {
			return nil, err
		}
	}

	logs, log := o.logs, o.log
	if log.IsZero() {
		logs, log = logx.New(mapLogging(cfg))
	}
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	sc, err := mapStorage(cfg)
	if err != nil {
		return nil, err
	}
	engCfg, err := mapEngine(cfg)
	if err != nil {
		return nil, err
	}
	schedCfg, jobTimeout, resync, err := mapScheduler(cfg)
	if err != nil {
		return nil, err
	}

	d := o.dispatcher
	if d == nil {
		dc, err := mapDispatch(cfg)
		if err != nil {
			return nil, err
		}
		if d, err = dispatch.New(dc, log); err != nil {
			return nil, err
		}
	}

	store, err := storage.Open(sc, log)
	if err != nil {
		return nil, err
	}

	eng := engine.New(engCfg, log)
	sched := scheduler.New(schedCfg, eng, log)
	replies := scheduler.NewReplies(sched, d, jobTimeout, log)

	return &App{
		cfgm:    cfgm,
		log:     log.With(logx.String("comp", "app")),
		logs:    logs,
		store:   store,
		engine:  eng,
		sched:   sched,
		replies: replies,
		svc:     configuration.NewService(store, replies, log),
		resync:  resync,
	}, nil
}

func (a *App) Configurations() *configuration.Service { return a.svc }

func (a *App) Scheduler() *scheduler.Service { return a.sched }

func (a *App) Log() logx.Logger { return a.log }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start runs the scheduler, rebuilds the live schedule from the store and
// keeps it reconciled. It returns the number of jobs restored.
func (a *App) Start(ctx context.Context) (int, error) {
	if a.sup != nil {
		return 0, errors.New("app already started")
	}
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.engine.Start(a.sup.Context())
	a.sched.Start(a.sup.Context())

	n, err := a.svc.Restore(ctx)
	if err != nil {
		// the resync loop retries; a partially restored schedule still serves
		a.log.Warn("restore incomplete", logx.Int("jobs", n), logx.Err(err))
	}

	if a.resync > 0 {
		a.sup.Go0("schedule.resync", a.resyncLoop)
	}

	sub := a.cfgm.Subscribe(4)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.log.Info("app started", logx.Int("jobs", n), logx.Duration("resync", a.resync))
	return n, nil
}

func (a *App) resyncLoop(ctx context.Context) {
	t := time.NewTicker(a.resync)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			rctx, cancel := context.WithTimeout(ctx, a.resync)
			n, err := a.svc.Restore(rctx)
			cancel()
			if err != nil && ctx.Err() == nil {
				a.log.Warn("schedule resync failed", logx.Int("jobs", n), logx.Err(err))
				continue
			}
			a.log.Trace("schedule resynced", logx.Int("jobs", n))
		}
	}
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			sections, attrs := config.SummarizeChange(lastApplied, newCfg)
			lastApplied = newCfg
			if len(sections) == 0 {
				a.log.Debug("config reload received, but no effective changes detected")
				continue
			}
			if restart := config.RestartRequired(sections); len(restart) > 0 {
				a.log.Warn("config changes need a restart to take effect", logx.String("sections", strings.Join(restart, ",")))
			}
			if a.logs != nil {
				a.logs.Apply(mapLogging(newCfg))
			}
			if sc, _, _, err := mapScheduler(newCfg); err != nil {
				a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
			} else {
				a.sched.Apply(sc)
			}
			fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
			a.log.Info("config reloaded", fields...)
		}
	}
}

// Stop shuts components down in dependency order. Each step is bounded so
// one component cannot stall the whole stop. Safe on an App that was never
// started.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.log.Debug("stopping", logx.String("reason", string(reason)))
	if a.sup != nil {
		a.sup.Cancel()
	}

	var errs []error
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		sctx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		start := time.Now()
		if err := fn(sctx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("taskengine", 2*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	if a.sup != nil {
		step("supervisor", 2*time.Second, func(c context.Context) error {
			err := a.sup.Wait(c)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Debug("stopped", logx.String("reason", string(reason)))
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return errors.Join(errs...)
}
