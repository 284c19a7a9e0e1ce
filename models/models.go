package models

import (
	"errors"
	"math"
	"strings"
	"time"
)

// ErrDocumentNotMapped is returned when a document has no group mapping entry.
var ErrDocumentNotMapped = errors.New("document not mapped to a group")

// Document is a note/meeting record as returned by the remote documents endpoint.
// CreatedAtRaw/UpdatedAtRaw keep the exact wire strings so notes render them verbatim.
type Document struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	CreatedAtRaw string `json:"created_at"`
	UpdatedAtRaw string `json:"updated_at"`
}

// CreatedAt parses the creation timestamp. ok is false when absent or unparsable.
func (d Document) CreatedAt() (time.Time, bool) { return ParseTimestamp(d.CreatedAtRaw) }

// UpdatedAt parses the update timestamp. ok is false when absent or unparsable.
func (d Document) UpdatedAt() (time.Time, bool) { return ParseTimestamp(d.UpdatedAtRaw) }

// DisplayTitle returns the title or fallback when the title is blank.
func (d Document) DisplayTitle(fallback string) string {
	if t := strings.TrimSpace(d.Title); t != "" {
		return d.Title
	}
	return fallback
}

// MeetingDate returns the YYYY-MM-DD date of creation, falling back to the
// first ten characters of the raw value when it does not parse.
func (d Document) MeetingDate() string {
	if d.CreatedAtRaw == "" {
		return ""
	}
	if t, ok := d.CreatedAt(); ok {
		return t.Format("2006-01-02")
	}
	if len(d.CreatedAtRaw) >= 10 {
		return d.CreatedAtRaw[:10]
	}
	return ""
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp parses ISO-8601 timestamps as produced by the remote service
// and by older watermark files. Values without a zone are read as local time.
func ParseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Audio source channels tagged on transcript turns.
const (
	SourceMicrophone = "microphone"
	SourceSystem     = "system"
)

// TranscriptTurn is one utterance in speaking order.
type TranscriptTurn struct {
	ID             string `json:"id,omitempty"`
	Source         string `json:"source"`
	Text           string `json:"text"`
	StartTimestamp string `json:"start_timestamp,omitempty"`
	EndTimestamp   string `json:"end_timestamp,omitempty"`
}

// Group is a named collection of documents (a meeting series).
type Group struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Documents []GroupDocument `json:"documents"`
}

// GroupDocument is the document stub embedded in a group listing.
type GroupDocument struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// MappingEntry is the persisted group information for one document.
type MappingEntry struct {
	GroupID       string `json:"document_list_id"`
	GroupName     string `json:"document_list_name"`
	DocumentTitle string `json:"document_title"`
}

// GroupMapping maps document id to its group.
type GroupMapping map[string]MappingEntry

// Participant is one suggested participant in a group roster.
type Participant struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// DisplayName returns the name, the email, or "Unknown".
func (p Participant) DisplayName() string {
	if n := strings.TrimSpace(p.Name); n != "" {
		return n
	}
	if e := strings.TrimSpace(p.Email); e != "" {
		return e
	}
	return "Unknown"
}

// Rosters maps group id to its suggested participants.
type Rosters map[string][]Participant

// SyncStats are the counters of one sync pass. Processed counts every
// document attempted, Failed the subset that did not make it to the vault.
type SyncStats struct {
	StartedAt          time.Time     `json:"started_at"`
	Duration           time.Duration `json:"duration"`
	Processed          int           `json:"documents_processed"`
	Created            int           `json:"documents_created"`
	Updated            int           `json:"documents_updated"`
	Skipped            int           `json:"documents_skipped"`
	Failed             int           `json:"documents_failed"`
	TranscriptsFetched int           `json:"transcripts_fetched"`
	TranscriptsFailed  int           `json:"transcripts_failed"`
}

// SuccessRate is (processed-failed)/processed as a percentage rounded to one
// decimal, or 0 when nothing was processed.
func (s SyncStats) SuccessRate() float64 {
	if s.Processed == 0 {
		return 0
	}
	rate := float64(s.Processed-s.Failed) / float64(s.Processed) * 100
	return math.Round(rate*10) / 10
}

// Run statuses recorded in the journal.
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// RunRecord is the journal entry for one sync pass.
type RunRecord struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"`
	Since      time.Time `json:"since"`
	FinishedAt time.Time `json:"finished_at"`
	Error      string    `json:"error,omitempty"`
	DryRun     bool      `json:"dry_run"`
	Stats      SyncStats `json:"stats"`
}

// DocumentRecord is the journal entry for one processed document.
type DocumentRecord struct {
	RunID       string    `json:"run_id"`
	DocumentID  string    `json:"document_id"`
	Title       string    `json:"title"`
	Filename    string    `json:"filename,omitempty"`
	Outcome     string    `json:"outcome"`
	ContentHash string    `json:"content_hash,omitempty"`
	Error       string    `json:"error,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// IndexedNote is the searchable view of a written note.
type IndexedNote struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Date         string   `json:"date"`
	Group        string   `json:"group"`
	Participants []string `json:"participants"`
	Transcript   string   `json:"transcript"`
	Path         string   `json:"path"`
}
