package syncer

import (
	"fmt"
	"time"

	"github.com/mohammad-safakhou/notesync/models"
)

// State is a phase of a sync pass.
type State int

const (
	StateInit State = iota
	StateFetching
	StateProcessing
	StateFinalizing
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateFetching:
		return "fetching"
	case StateProcessing:
		return "processing"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Result is the terminal outcome of a pass: Done with full statistics, or
// Failed with the error that stopped it.
type Result struct {
	RunID string
	State State
	// FailedIn is the phase that failed; only meaningful when State is StateFailed.
	FailedIn   State
	Err        error
	Stats      models.SyncStats
	Since      time.Time
	Watermark  time.Time
	TotalFiles int
	DryRun     bool
	// NextSyncAfter is set on success when at least one document was processed.
	NextSyncAfter time.Time
}

// Success reports whether the pass reached StateDone.
func (r *Result) Success() bool { return r != nil && r.State == StateDone }

// Record converts the result into its journal entry.
func (r *Result) Record(finishedAt time.Time) models.RunRecord {
	rec := models.RunRecord{
		ID:         r.RunID,
		Status:     models.RunSucceeded,
		Since:      r.Since,
		FinishedAt: finishedAt,
		DryRun:     r.DryRun,
		Stats:      r.Stats,
	}
	if !r.Success() {
		rec.Status = models.RunFailed
		if r.Err != nil {
			rec.Error = r.Err.Error()
		}
	}
	return rec
}
