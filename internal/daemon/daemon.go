// Package daemon runs sync passes on a cron schedule and serves their status
// over HTTP.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/sirupsen/logrus"

	"github.com/mohammad-safakhou/notesync/internal/logging"
	"github.com/mohammad-safakhou/notesync/internal/metrics"
	"github.com/mohammad-safakhou/notesync/internal/syncer"
	"github.com/mohammad-safakhou/notesync/models"
)

// Runner executes one sync pass.
type Runner interface {
	Run(ctx context.Context) *syncer.Result
}

// History lists journaled runs.
type History interface {
	RecentRuns(ctx context.Context, limit int) ([]models.RunRecord, error)
}

// Options configures a Daemon.
type Options struct {
	Cron          string
	RunOnStart    bool
	ListenAddress string
	Metrics       *metrics.Metrics
	History       History
	// TextfilePath, when set, receives the metrics after every pass.
	TextfilePath string
	Logger       logrus.FieldLogger
	Now          func() time.Time
}

// RunSummary is the JSON view of the last pass.
type RunSummary struct {
	RunID       string           `json:"run_id"`
	State       string           `json:"state"`
	FailedIn    string           `json:"failed_in,omitempty"`
	Error       string           `json:"error,omitempty"`
	Stats       models.SyncStats `json:"stats"`
	SuccessRate float64          `json:"success_rate_percent"`
	TotalFiles  int              `json:"total_files"`
	Watermark   *time.Time       `json:"watermark,omitempty"`
}

// Status is what /status reports.
type Status struct {
	Schedule string      `json:"schedule"`
	Running  bool        `json:"running"`
	Runs     int         `json:"runs"`
	NextRun  *time.Time  `json:"next_run,omitempty"`
	LastRun  *RunSummary `json:"last_run,omitempty"`
}

// Daemon schedules passes and keeps the last result.
type Daemon struct {
	runner   Runner
	expr     *cronexpr.Expression
	opts     Options
	logger   logrus.FieldLogger
	trigger  chan struct{}
	passLock sync.Mutex

	mu     sync.RWMutex
	status Status
}

// New parses the cron expression and returns a Daemon.
func New(runner Runner, opts Options) (*Daemon, error) {
	if runner == nil {
		return nil, errors.New("daemon: runner is required")
	}
	expr, err := cronexpr.Parse(opts.Cron)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", opts.Cron, err)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	return &Daemon{
		runner:  runner,
		expr:    expr,
		opts:    opts,
		logger:  logging.Component(opts.Logger, "daemon"),
		trigger: make(chan struct{}, 1),
		status:  Status{Schedule: opts.Cron},
	}, nil
}

// Run serves HTTP (when a listen address is configured) and runs passes on
// schedule until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	if d.opts.ListenAddress != "" {
		e := d.Echo()
		go func() {
			if err := e.Start(d.opts.ListenAddress); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := e.Shutdown(shutdownCtx); err != nil {
				d.logger.WithError(err).Warn("status server shutdown")
			}
		}()
		d.logger.WithField("addr", d.opts.ListenAddress).Info("status server listening")
	}

	if d.opts.RunOnStart {
		d.RunOnce(ctx)
	}
	for {
		if ctx.Err() != nil {
			return nil
		}
		now := d.opts.Now()
		next := d.expr.Next(now)
		if next.IsZero() {
			return fmt.Errorf("schedule %q has no future activation", d.opts.Cron)
		}
		d.setNext(next)
		d.logger.WithField("next_run", next.Format(time.RFC3339)).Info("waiting for next scheduled sync")

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case err := <-errCh:
			timer.Stop()
			return fmt.Errorf("status server: %w", err)
		case <-d.trigger:
			timer.Stop()
			d.RunOnce(ctx)
		case <-timer.C:
			d.RunOnce(ctx)
		}
	}
}

// RunOnce runs a pass now and records its result. Concurrent calls wait.
func (d *Daemon) RunOnce(ctx context.Context) *syncer.Result {
	d.passLock.Lock()
	defer d.passLock.Unlock()

	d.mu.Lock()
	d.status.Running = true
	d.mu.Unlock()

	res := d.runner.Run(ctx)
	d.opts.Metrics.Observe(res)
	if d.opts.TextfilePath != "" {
		if err := d.opts.Metrics.WriteTextfile(d.opts.TextfilePath); err != nil {
			d.logger.WithError(err).Warn("failed to write metrics textfile")
		}
	}

	d.mu.Lock()
	d.status.Running = false
	d.status.Runs++
	d.status.LastRun = summarize(res)
	d.mu.Unlock()

	if res.Success() {
		d.logger.WithField("run_id", res.RunID).Info("scheduled sync finished")
	} else {
		d.logger.WithError(res.Err).WithField("run_id", res.RunID).Error("scheduled sync failed")
	}
	return res
}

// Trigger asks the loop to run a pass as soon as possible. It reports false
// when a trigger is already pending.
func (d *Daemon) Trigger() bool {
	select {
	case d.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Status returns a snapshot of the scheduler state.
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.status
}

func (d *Daemon) setNext(next time.Time) {
	d.mu.Lock()
	d.status.NextRun = &next
	d.mu.Unlock()
}

func summarize(res *syncer.Result) *RunSummary {
	if res == nil {
		return nil
	}
	s := &RunSummary{
		RunID:       res.RunID,
		State:       res.State.String(),
		Stats:       res.Stats,
		SuccessRate: res.Stats.SuccessRate(),
		TotalFiles:  res.TotalFiles,
	}
	if !res.Success() {
		s.FailedIn = res.FailedIn.String()
		if res.Err != nil {
			s.Error = res.Err.Error()
		}
	}
	if !res.Watermark.IsZero() {
		w := res.Watermark
		s.Watermark = &w
	}
	return s
}
