// Package reconcile periodically repairs threads whose destination channel
// disappeared out-of-band (deleted by an admin, guild pruned). Such threads
// would otherwise reference a dead channel forever; the sweep closes them so
// the user's next message opens a fresh thread.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"modmaild/pkg/logger"
	"modmaild/pkg/mail"
	"modmaild/pkg/store"
	"modmaild/pkg/transport"
)

// DefaultCron runs the sweep hourly.
const DefaultCron = "0 * * * *"

// Start starts the sweep scheduler. Returns a cancel func stopping it.
func Start(ctx context.Context, tr transport.Transport, mgr *mail.Manager, cronExpr string) (context.CancelFunc, error) {
	if cronExpr == "" {
		cronExpr = DefaultCron
	}
	if !gronx.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid reconcile cron expression: %s", cronExpr)
	}
	logger.Info("reconcile_enabled", "cron", cronExpr)
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, tr, mgr, cronExpr)
	return cancel, nil
}

// runScheduler computes the next tick for the cron expression and sleeps
// until then.
func runScheduler(ctx context.Context, tr transport.Transport, mgr *mail.Manager, cronExpr string) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("reconcile_scheduler_stopping")
			return
		default:
		}

		next, err := gronx.NextTickAfter(cronExpr, time.Now().UTC(), false)
		if err != nil {
			logger.Error("reconcile_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
		case <-ctx.Done():
			logger.Info("reconcile_scheduler_stopping")
			return
		}

		if err := RunOnce(ctx, tr, mgr); err != nil {
			logger.Error("reconcile_run_error", "error", err)
		}
	}
}

// RunOnce probes every active thread's channel and closes threads whose
// channel no longer exists. Probe failures skip the thread; a flaky
// transport must not mass-close conversations.
func RunOnce(ctx context.Context, tr transport.Transport, mgr *mail.Manager) error {
	threads, err := store.ListActiveThreads()
	if err != nil {
		return err
	}
	for _, t := range threads {
		ok, err := tr.HasChannel(ctx, t.ChannelID)
		if err != nil {
			logger.Warn("reconcile_probe_failed", "thread", t.ID, "channel", t.ChannelID, "error", err)
			continue
		}
		if ok {
			continue
		}
		logger.Info("reconcile_closing_abandoned", "thread", t.ID, "channel", t.ChannelID)
		if err := mgr.CloseAbandoned(ctx, t.ID); err != nil {
			logger.Error("reconcile_close_failed", "thread", t.ID, "error", err)
		}
	}
	return nil
}
