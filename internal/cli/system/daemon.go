package system

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/julianstephens/habitual/internal/cli"
	"github.com/julianstephens/habitual/internal/logger"
	"github.com/julianstephens/habitual/internal/models"
	"github.com/julianstephens/habitual/internal/notifier"
	"github.com/julianstephens/habitual/internal/realtime"
	"github.com/julianstephens/habitual/internal/scheduler"
)

type DaemonCmd struct {
	DryRun      bool          `help:"Print reminders to stdout instead of the tray app."`
	MetricsAddr string        `help:"Address to serve Prometheus metrics on. Empty uses daemon.metrics_addr; 'off' disables."`
	UserPoll    time.Duration `help:"How often to check for sign-in changes." default:"1m"`
	Sync        time.Duration `help:"How often to reload triggers saved by other habitual commands." default:"1m"`
}

func (c *DaemonCmd) Run(ctx *cli.Context) error {
	runCtx, stop := signal.NotifyContext(ctx.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sink, err := c.sink(ctx)
	if err != nil {
		return err
	}

	dispatcher := &notifier.Dispatcher{
		Users:              ctx.Auth,
		Habits:             ctx.Habits,
		Sink:               sink,
		Metrics:            ctx.Metrics,
		FilterByRecurrence: ctx.Config.Reminders.FilterByRecurrence,
		Location:           ctx.Location,
	}
	engine := notifier.NewEngine(ctx.Registry, ctx.Location, dispatcher.FireFunc(), notifier.WithSyncInterval(c.Sync))
	dispatcher.Triggers = engine
	sched := scheduler.New(engine, ctx.Location, scheduler.WithMetrics(ctx.Metrics))

	if err := engine.Start(runCtx); err != nil {
		return fmt.Errorf("failed to start trigger engine: %w", err)
	}
	defer engine.Stop()

	if srv := c.metricsServer(ctx); srv != nil {
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		fmt.Fprintf(ctx.Out, "Serving metrics on http://%s/metrics\n", srv.Addr)
	}

	var bridge *realtime.Bridge
	if ctx.Feed != nil {
		bridge = realtime.NewBridge(ctx.Feed, sched, ctx.Habits)
		bridge.Persist = ctx.Habits.SetNotificationID
		bridge.Metrics = ctx.Metrics
		defer bridge.Unsubscribe(context.Background())
	}

	cli.Success(ctx.Out, "Reminder daemon running (%d trigger(s) loaded, sink: %s)", engine.Active(), sink.Name())

	w := &userWatcher{ctx: ctx, bridge: bridge, onChange: syncOnChange(engine)}
	w.check(runCtx)

	ticker := time.NewTicker(c.UserPoll)
	defer ticker.Stop()
	for {
		select {
		case <-runCtx.Done():
			fmt.Fprintln(ctx.Out, "Shutting down")
			return nil
		case <-ticker.C:
			w.check(runCtx)
		}
	}
}

func (c *DaemonCmd) sink(ctx *cli.Context) (notifier.Sink, error) {
	if c.DryRun {
		return notifier.NewStdoutSink(ctx.Out), nil
	}
	return notifier.NewSink(ctx.Config.Reminders.Sink, ctx.Out)
}

func (c *DaemonCmd) metricsServer(ctx *cli.Context) *http.Server {
	addr := c.MetricsAddr
	if addr == "" {
		addr = ctx.Config.Daemon.MetricsAddr
	}
	if addr == "" || addr == "off" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", ctx.Metrics.Handler())
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}

// userWatcher keeps the realtime subscription pointed at whoever is signed
// in. Sign-in happens in a separate CLI process, so the daemon polls.
type userWatcher struct {
	ctx      *cli.Context
	bridge   *realtime.Bridge
	onChange realtime.ChangeFunc
	current  string
}

type syncer interface {
	Sync(ctx context.Context) error
}

// syncOnChange reloads the registry after every remote change. The CLI
// process that made the change has usually saved its trigger already.
func syncOnChange(engine syncer) realtime.ChangeFunc {
	return func(kind realtime.EventKind, habit models.Habit) {
		logger.Info("Habit changed remotely", "kind", kind, "habit", habit.ID)
		if err := engine.Sync(context.Background()); err != nil {
			logger.Warn("Trigger sync failed", "error", err)
		}
	}
}

func (w *userWatcher) check(ctx context.Context) {
	user, err := w.ctx.Auth.CurrentUser(ctx)
	if err != nil {
		logger.Warn("Failed to resolve current user", "error", err)
		return
	}

	id := ""
	if user != nil {
		id = user.ID
	}
	changed := id != w.current
	w.current = id

	if w.bridge == nil {
		return
	}
	if id == "" {
		if changed {
			logger.Info("Signed out, stopping realtime sync")
			if err := w.bridge.Unsubscribe(ctx); err != nil {
				logger.Warn("Failed to unsubscribe", "error", err)
			}
		}
		return
	}
	if !changed && w.bridge.State() == realtime.StateActive {
		return
	}
	if !changed {
		logger.Info("Realtime subscription lost, resubscribing", "user", id)
	}

	// A failed subscribe leaves the bridge inactive, so the next check retries.
	if _, err := w.bridge.Subscribe(ctx, id, w.onChange); err != nil {
		logger.Error("Failed to subscribe to habit changes", "error", err)
	}
}
