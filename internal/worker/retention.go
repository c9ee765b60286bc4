package worker

import (
	"context"
	"log"
	"time"

	"github.com/gorhill/cronexpr"

	"github.com/mohammad-safakhou/minutes/config"
)

// RetentionSweeper deletes meeting records older than the configured
// age on a cron schedule.
type RetentionSweeper struct {
	logger *log.Logger
	store  StoreAPI
	cfg    config.WorkerConfig

	now func() time.Time
}

func NewRetentionSweeper(logger *log.Logger, st StoreAPI, cfg config.WorkerConfig) *RetentionSweeper {
	if logger == nil {
		logger = log.New(log.Writer(), "[RETAIN] ", log.LstdFlags)
	}
	return &RetentionSweeper{logger: logger, store: st, cfg: cfg, now: time.Now}
}

// Start blocks, sleeping until each scheduled sweep, until the context
// is cancelled. With no max age configured it returns immediately.
func (r *RetentionSweeper) Start(ctx context.Context) {
	if r.cfg.RetentionMaxAge <= 0 {
		r.logger.Printf("retention disabled (no max age configured)")
		return
	}
	spec := r.cfg.RetentionCron
	if spec == "" {
		spec = "0 3 * * *"
	}
	expr, err := cronexpr.Parse(spec)
	if err != nil {
		r.logger.Printf("invalid retention cron %q, using daily 03:00: %v", spec, err)
		expr = cronexpr.MustParse("0 3 * * *")
	}

	for {
		next := expr.Next(r.now())
		if next.IsZero() {
			r.logger.Printf("retention cron %q yields no future runs, stopping", spec)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(next.Sub(r.now())):
		}
		r.Sweep(ctx)
	}
}

// Sweep deletes records past the retention age once.
func (r *RetentionSweeper) Sweep(ctx context.Context) {
	cutoff := r.now().Add(-r.cfg.RetentionMaxAge)
	n, err := r.store.DeleteRecordsBefore(ctx, cutoff)
	if err != nil {
		r.logger.Printf("sweep failed: %v", err)
		return
	}
	if n > 0 {
		r.logger.Printf("swept %d records older than %s", n, cutoff.Format(time.RFC3339))
	}
}
