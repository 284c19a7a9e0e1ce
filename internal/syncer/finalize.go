package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mohammad-safakhou/notesync/models"
)

// finalize advances the watermark to the pass start time and runs
// housekeeping. A dry run leaves the watermark untouched.
func (s *Syncer) finalize(ctx context.Context, p *pass, started time.Time) error {
	if s.dryRun {
		p.log.Info("[dry run] watermark not advanced")
	} else {
		if err := s.deps.Watermark.Save(ctx, started); err != nil {
			return fmt.Errorf("advance watermark: %w", err)
		}
		p.result.Watermark = started
	}

	if removed, err := s.deps.Mapping.CleanupBackups(); err != nil {
		p.log.WithError(err).Warn("backup cleanup failed")
	} else if removed > 0 {
		p.log.WithField("removed", removed).Debug("removed old mapping backups")
	}
	return nil
}

func (s *Syncer) fail(ctx context.Context, p *pass, state State, err error) *Result {
	res := p.result
	res.State = StateFailed
	res.FailedIn = state
	res.Err = err
	res.Stats.Duration = s.now().Sub(res.Stats.StartedAt)
	res.TotalFiles = s.deps.Vault.CountNotes()
	p.log.WithError(err).WithField("phase", state.String()).Error("fatal sync error")
	s.journalFinish(ctx, p)
	return res
}

func (s *Syncer) journalStart(ctx context.Context, p *pass) {
	if s.deps.Journal == nil {
		return
	}
	run := models.RunRecord{
		ID:     p.result.RunID,
		Status: models.RunRunning,
		DryRun: s.dryRun,
		Stats:  p.result.Stats,
	}
	if err := s.deps.Journal.StartRun(ctx, run); err != nil {
		p.log.WithError(err).Warn("failed to journal run start")
	}
}

func (s *Syncer) journalDocument(ctx context.Context, p *pass, rec models.DocumentRecord) {
	if s.deps.Journal == nil {
		return
	}
	rec.RunID = p.result.RunID
	rec.RecordedAt = s.now()
	if err := s.deps.Journal.RecordDocument(ctx, rec); err != nil {
		p.log.WithError(err).Warn("failed to journal document")
	}
}

func (s *Syncer) journalFinish(ctx context.Context, p *pass) {
	if s.deps.Journal == nil {
		return
	}
	if err := s.deps.Journal.FinishRun(context.WithoutCancel(ctx), p.result.Record(s.now())); err != nil {
		p.log.WithError(err).Warn("failed to journal run result")
	}
}

func (s *Syncer) logCompletion(p *pass) {
	st := p.result.Stats
	p.log.WithFields(logrus.Fields{
		"created":      st.Created,
		"updated":      st.Updated,
		"skipped":      st.Skipped,
		"failed":       st.Failed,
		"success_rate": fmt.Sprintf("%.1f%%", st.SuccessRate()),
		"duration":     st.Duration.Round(10 * time.Millisecond).String(),
		"total_files":  p.result.TotalFiles,
	}).Info("sync complete")
}
