package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"distask/internal/config"
	"distask/internal/eventbus"
	"distask/internal/notify"
	"distask/internal/reminder"
	"distask/internal/runtime/supervisor"
	"distask/internal/scheduler"
	"distask/internal/storage"
	"distask/internal/transport"
	"distask/internal/transport/telegram"
	"distask/pkg/logx"
)

// Deps are the outside-world pieces of an App. New builds them from the
// config file; tests pass in-memory ones to Build.
type Deps struct {
	Store *storage.SQLiteStore
	Out   transport.Deliverer
	Log   logx.Logger
	// Logs, when set, receives live logging config on reload.
	Logs *logx.Service
	// Clock overrides time.Now for the router and the scheduler.
	Clock func() time.Time
}

type App struct {
	cfgm *config.ConfigManager
	cfg  *config.Config

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store *storage.SQLiteStore
	out   transport.Deliverer

	prefs  *notify.PreferenceManager
	router *notify.Router
	events *notify.EventNotifier
	sched  *scheduler.Scheduler

	sup   *supervisor.Supervisor
	ready chan struct{}
}

// New loads cfgPath and wires the SQLite store and the Telegram adapter.
func New(cfgPath string) (_ *App, err error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	tcfg, err := mapTelegramConfig(cfg)
	if err != nil {
		return nil, err
	}
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}

	// The chat sink gets its sender once the adapter exists.
	logs, log := logx.New(mapLogConfig(cfg), nil)
	var store *storage.SQLiteStore
	defer func() {
		if err == nil {
			return
		}
		if store != nil {
			_ = store.Close()
		}
		_ = logs.Close()
	}()

	store, err = storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", sc.Driver))

	ad, err := telegram.New(tcfg, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}
	logs.SetSender(ad)

	a, err := Build(cfg, Deps{Store: store, Out: ad, Log: log, Logs: logs})
	if err != nil {
		return nil, err
	}
	a.cfgm = cfgm
	return a, nil
}

// Build assembles the notification core on top of d.
func Build(cfg *config.Config, d Deps) (*App, error) {
	if d.Store == nil || d.Out == nil {
		return nil, errors.New("app: store and deliverer are required")
	}
	log := d.Log
	bus := eventbus.New()

	breaker, err := mapBreakerConfig(cfg)
	if err != nil {
		return nil, err
	}

	prefs := notify.NewPreferenceManager(d.Store, log.With(logx.String("comp", "prefs")))
	ropts := []notify.RouterOption{notify.WithBus(bus), notify.WithBreaker(breaker)}
	if d.Clock != nil {
		ropts = append(ropts, notify.WithClock(d.Clock))
	}
	router := notify.NewRouter(prefs, d.Store, d.Out, log.With(logx.String("comp", "router")), ropts...)

	engines := []scheduler.Engine{
		reminder.NewDueDateEngine(d.Store, prefs, router, log.With(logx.String("comp", "due_date"))),
		reminder.NewDigestEngine(d.Store, d.Store, prefs, d.Out, bus, log.With(logx.String("comp", "digest"))),
		reminder.NewEscalationEngine(d.Store, router, log.With(logx.String("comp", "escalation"))),
		reminder.NewSnoozedEngine(d.Store, d.Store, router, log.With(logx.String("comp", "snoozed"))),
	}
	if cfg.Scheduler.LegacyReminders {
		engines = append(engines, scheduler.NewReminderLoop(d.Store, d.Store, d.Out,
			log.With(logx.String("comp", "legacy_reminders")), cfg.Scheduler.LegacyConcurrency))
	}

	ready := make(chan struct{})
	sopts := []scheduler.Option{scheduler.WithReady(ready), scheduler.WithBus(bus)}
	if d.Clock != nil {
		sopts = append(sopts, scheduler.WithClock(d.Clock))
	}
	sched, err := scheduler.New(cfg.Scheduler.Tick, engines, log.With(logx.String("comp", "scheduler")), sopts...)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:    cfg,
		log:    log.With(logx.String("comp", "app")),
		logs:   d.Logs,
		bus:    bus,
		store:  d.Store,
		out:    d.Out,
		prefs:  prefs,
		router: router,
		events: notify.NewEventNotifier(router),
		sched:  sched,
		ready:  ready,
	}, nil
}

func (a *App) Scheduler() *scheduler.Scheduler { return a.sched }

func (a *App) Router() *notify.Router { return a.router }

func (a *App) Preferences() *notify.PreferenceManager { return a.prefs }

// Events is the entry point for task-change alerts raised by the command
// layer.
func (a *App) Events() *notify.EventNotifier { return a.events }

func (a *App) Bus() eventbus.Bus { return a.bus }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// RunOnce runs a single tick without starting the loop.
func (a *App) RunOnce(ctx context.Context) scheduler.TickReport {
	return a.sched.Tick(ctx)
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.NewSupervisor(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	if err := a.store.Ping(ctx); err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	a.startEventLog()
	if a.cfgm != nil {
		a.startConfigReload()
	}

	if a.cfg.Scheduler.Enabled {
		if err := a.sched.Start(a.sup.Context()); err != nil {
			return err
		}
	} else {
		a.log.Info("scheduler disabled via config")
	}
	close(a.ready)

	a.notifySystemd()
	a.log.Info("app started", logx.Any("engines", a.sched.Engines()))
	return nil
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		// Never started (RunOnce only): just release the store and sinks.
		err := a.store.Close()
		if a.logs != nil {
			_ = a.logs.Close()
		}
		return err
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	var errs []error
	if err := a.sched.Stop(ctx); err != nil && !errors.Is(err, scheduler.ErrNotRunning) {
		errs = append(errs, fmt.Errorf("scheduler: %w", err))
	}
	if err := a.sup.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
		errs = append(errs, err)
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("storage: %w", err))
	}
	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return errors.Join(errs...)
}

// notifySystemd reports readiness and, when the unit has WatchdogSec set,
// pings the watchdog at half its interval. Without NOTIFY_SOCKET both are
// no-ops.
func (a *App) notifySystemd() {
	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	} else if ok {
		a.log.Debug("sd_notify ready sent")
	}

	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-c.Done():
				return
			case <-t.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	})
}

func (a *App) startEventLog() {
	events, unsub := a.bus.Subscribe(128, eventbus.TopicNotifySent, eventbus.TopicNotifySuppressed,
		eventbus.TopicNotifyFailed, eventbus.TopicDigestSent)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				fields := []logx.Field{logx.String("type", e.Type), logx.Time("time", e.Time)}
				if d, ok := e.Data.(notify.DeliveryEvent); ok {
					fields = append(fields,
						logx.Int64("user", d.Recipient),
						logx.String("category", string(d.Category)),
						logx.String("outcome", string(d.Outcome)),
					)
				}
				a.log.Debug("event", fields...)
			}
		}
	})
}

func (a *App) startConfigReload() {
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validateConfig(cfg)
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(last, next)
				last = next
			}
		}
	})
	a.sup.Go("config.watch", a.cfgm.Watch)
}

// applyConfig applies the live-reloadable sections: logging and the
// delivery breaker. Other sections are logged as needing a restart.
func (a *App) applyConfig(prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}

	if a.logs != nil {
		a.logs.Apply(mapLogConfig(next))
	}
	if bc, err := mapBreakerConfig(next); err != nil {
		a.log.Warn("invalid notifications config; keeping previous", logx.Err(err))
	} else {
		a.router.ConfigureBreaker(bc)
	}
	if restart := config.RestartRequired(sections); len(restart) > 0 {
		a.log.Warn("config sections changed that need a restart", logx.String("sections", strings.Join(restart, ",")))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}
