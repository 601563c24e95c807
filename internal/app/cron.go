package app

import (
	"context"
	"time"

	"github.com/qrdine/core/internal/modules/gateway/webhook"
	"github.com/qrdine/core/internal/modules/ordering/order"
	pkgcron "github.com/qrdine/core/internal/pkg/cron"
)

const (
	reconcileInterval = 5 * time.Minute
	pruneInterval     = 24 * time.Hour
)

// registerCronJobs registers the scheduled maintenance jobs.
func registerCronJobs(sched *pkgcron.Scheduler, orders *order.Service, webhooks *webhook.Service, retentionDays int) {
	sched.Register(pkgcron.Job{
		Name:        "reconcile_tables",
		Description: "Reset occupied tables that no active order references",
		Interval:    reconcileInterval,
		RunOnStart:  true,
		Fn: func(ctx context.Context) error {
			_, err := orders.ReconcileTables(ctx)
			return err
		},
	})

	sched.Register(pkgcron.Job{
		Name:        "prune_webhook_deliveries",
		Description: "Delete webhook delivery logs past the retention window",
		Interval:    pruneInterval,
		Fn: func(ctx context.Context) error {
			_, err := webhooks.PruneDeliveries(ctx, time.Duration(retentionDays)*24*time.Hour)
			return err
		},
	})
}
