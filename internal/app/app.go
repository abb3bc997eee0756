package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ruche/internal/config"
	"ruche/internal/httpapi"
	"ruche/internal/livegame"
	"ruche/internal/metrics"
	"ruche/internal/riot"
	"ruche/internal/runtime/supervisor"
	"ruche/internal/sse"
	"ruche/internal/storage"
	"ruche/internal/task/scheduler"
	logx "ruche/pkg/logx"
)

// Job names, also used as metric labels.
const (
	jobPoll    = "live_game.poll"
	jobSweep   = "live_game.sweep"
	jobCleanup = "sse.cleanup"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	store   storage.Store
	riot    *riot.Client
	cache   *livegame.Cache
	hub     *sse.Hub
	poller  *livegame.Poller
	sched   *scheduler.Scheduler
	metrics *metrics.Registry
	server  *httpapi.Server
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validateConfig(context.Background(), cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	appLog := log.With(logx.String("comp", "app"))

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	rc, err := mapRiotConfig(cfg)
	if err != nil {
		return nil, err
	}
	pc, err := mapPollerConfig(cfg)
	if err != nil {
		return nil, err
	}
	srvCfg, err := mapServerConfig(cfg)
	if err != nil {
		return nil, err
	}
	ss, err := mapSSEConfig(cfg)
	if err != nil {
		return nil, err
	}
	sched, err := mapSchedules(cfg)
	if err != nil {
		return nil, err
	}

	rclient, err := riot.New(rc, log.With(logx.String("comp", "riot")))
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	appLog.Info("storage opened", logx.String("driver", sc.Driver))

	cache := livegame.NewCache(livegame.WithNoneTTL(sched.noneTTL))
	hub := sse.NewHub(
		sse.WithCapacity(ss.capacity),
		sse.WithLogger(log.With(logx.String("comp", "sse"))),
	)
	poller := livegame.NewPoller(cache, hub, rclient, store, pc, log.With(logx.String("comp", "livegame")))
	hub.SetPrimer(poller.Prime)

	s := scheduler.New(log.With(logx.String("comp", "scheduler")))
	jobs := []scheduler.Job{
		scheduler.NewTask(jobPoll, sched.poll, poller.Run, scheduler.Exclusive(), scheduler.FirstRunAt(time.Now())),
		scheduler.NewTask(jobSweep, sched.sweep, livegame.SweepFunc(cache, log.With(logx.String("comp", "livegame"))), scheduler.Exclusive()),
		scheduler.NewTask(jobCleanup, sched.cleanup, sse.CleanupFunc(hub, ss.grace, cache.Forget, log.With(logx.String("comp", "sse"))), scheduler.Exclusive()),
	}
	for _, j := range jobs {
		if err := s.Register(j); err != nil {
			_ = store.Close()
			return nil, err
		}
	}

	a := &App{
		cfgm:    cfgm,
		log:     appLog,
		logs:    logSvc,
		store:   store,
		riot:    rclient,
		cache:   cache,
		hub:     hub,
		poller:  poller,
		sched:   s,
		metrics: metrics.NewRegistry(log.With(logx.String("comp", "metrics"))),
	}
	a.registerCollectors()

	router := httpapi.NewRouter(httpapi.Deps{
		Hub:     hub,
		Live:    cache,
		Store:   store,
		Metrics: a.metrics.Handler(),
		Stream:  ss.stream,
		Pprof:   cfg.HTTP.Pprof,
		Log:     log.With(logx.String("comp", "http")),
	})
	a.server = httpapi.NewServer(srvCfg, router, hub.Close, log.With(logx.String("comp", "http")))
	return a, nil
}

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

func (a *App) Start(ctx context.Context) error {
	if a.sup != nil {
		return errors.New("app already started")
	}
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))),
		supervisor.WithCancelOnError(true),
	)

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(validateConfig)

	a.poller.Bind(a.sup.Context())

	a.sup.Go("http", a.server.Run)
	a.sup.Go("scheduler", a.sched.Run)

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
		return nil
	})
	a.sup.GoRestart("config.watch", a.cfgm.Watch, time.Second, 30*time.Second)

	a.log.Info("app started")
	return nil
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// First, cancel the app run context so background loops start unwinding immediately.
	a.sup.Cancel()

	// The supervisor owns the listener and the scheduler; both drain in-flight
	// work on cancel.
	a.step(ctx, "supervisor", 6*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	a.step(ctx, "primes", time.Second, func(context.Context) error { a.poller.WaitPrimes(); return nil })
	a.step(ctx, "sse", time.Second, func(context.Context) error { a.hub.Close(); return nil })
	a.step(ctx, "storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// step runs one shutdown step with an upper bound so one component can't
// stall the whole stop.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

	// respect the caller's deadline; never extend it
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < max {
			max = rem
		}
	}
	if max <= 0 {
		a.log.Warn("stop step skipped, deadline reached", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		took := time.Since(start)
		if took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		} else {
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
	case <-stepCtx.Done():
		// fn must honor stepCtx; if it doesn't, log when it eventually finishes.
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Err(stepCtx.Err()),
			logx.Duration("elapsed", time.Since(start)),
		)
		go func() {
			err := <-done
			a.log.Info("stop step finished after deadline",
				logx.String("name", name),
				logx.Err(err),
				logx.Duration("took", time.Since(start)),
			)
		}()
	}
}
