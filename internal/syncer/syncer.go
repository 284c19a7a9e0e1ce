// Package syncer drives one incremental pass: load rosters and the group
// mapping, fetch documents newer than the watermark, write a note per
// document and finally advance the watermark.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mohammad-safakhou/notesync/config"
	"github.com/mohammad-safakhou/notesync/internal/clock"
	"github.com/mohammad-safakhou/notesync/internal/attribution"
	"github.com/mohammad-safakhou/notesync/internal/logging"
	"github.com/mohammad-safakhou/notesync/internal/roster"
	"github.com/mohammad-safakhou/notesync/internal/vault"
	"github.com/mohammad-safakhou/notesync/internal/watermark"
	"github.com/mohammad-safakhou/notesync/models"
)

// DocumentSource is the remote side of a pass.
type DocumentSource interface {
	FetchSince(ctx context.Context, since time.Time) ([]models.Document, error)
	FetchTranscript(ctx context.Context, documentID string) ([]models.TranscriptTurn, error)
}

// GroupCache resolves documents to their group.
type GroupCache interface {
	Load(ctx context.Context) error
	Resolve(documentID string) (groupName, groupID string)
	CleanupBackups() (int, error)
}

// NoteWriter renders and stores notes.
type NoteWriter interface {
	Render(n vault.Note) vault.Rendered
	Save(content, filename string) (vault.Outcome, error)
	Path(filename string) string
	CountNotes() int
}

// Recorder journals runs and per-document outcomes.
type Recorder interface {
	StartRun(ctx context.Context, run models.RunRecord) error
	RecordDocument(ctx context.Context, rec models.DocumentRecord) error
	FinishRun(ctx context.Context, run models.RunRecord) error
}

// Indexer makes written notes searchable.
type Indexer interface {
	IndexNote(note models.IndexedNote) error
}

// Locker guards a pass against concurrent runs.
type Locker interface {
	TryLock(ctx context.Context) error
	Unlock(ctx context.Context) error
}

// Dependencies are the collaborators of a pass. Journal, Index and Lock are optional.
type Dependencies struct {
	Documents DocumentSource
	Mapping   GroupCache
	Rosters   roster.Loader
	Watermark watermark.Store
	Vault     NoteWriter
	Journal   Recorder
	Index     Indexer
	Lock      Locker
}

// Options tunes a pass.
type Options struct {
	FallbackParticipants []string
	DocumentDelay        time.Duration
	Policy               config.ErrorPolicy
	DryRun               bool
	Logger               logrus.FieldLogger
	Now                  func() time.Time
	Sleep                func(ctx context.Context, d time.Duration) error
	NewRunID             func() string
}

// Syncer runs sync passes.
type Syncer struct {
	deps     Dependencies
	fallback []string
	delay    time.Duration
	policy   config.ErrorPolicy
	dryRun   bool
	logger   logrus.FieldLogger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	newRunID func() string
}

// New checks the required dependencies and returns a Syncer.
func New(deps Dependencies, opts Options) (*Syncer, error) {
	switch {
	case deps.Documents == nil:
		return nil, errors.New("syncer: document source is required")
	case deps.Mapping == nil:
		return nil, errors.New("syncer: group mapping is required")
	case deps.Rosters == nil:
		return nil, errors.New("syncer: roster loader is required")
	case deps.Watermark == nil:
		return nil, errors.New("syncer: watermark store is required")
	case deps.Vault == nil:
		return nil, errors.New("syncer: note writer is required")
	}
	if opts.Policy == nil {
		opts.Policy = config.ContinueAll()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = clock.Sleep
	}
	if opts.NewRunID == nil {
		opts.NewRunID = uuid.NewString
	}
	return &Syncer{
		deps:     deps,
		fallback: opts.FallbackParticipants,
		delay:    opts.DocumentDelay,
		policy:   opts.Policy,
		dryRun:   opts.DryRun,
		logger:   logging.Component(opts.Logger, "sync"),
		now:      opts.Now,
		sleep:    opts.Sleep,
		newRunID: opts.NewRunID,
	}, nil
}

// pass carries the mutable state of one Run.
type pass struct {
	result    *Result
	log       logrus.FieldLogger
	directory *roster.Directory
}

// Run executes one full pass. It never returns a partial result: the outcome
// is either StateDone or StateFailed with the triggering error.
func (s *Syncer) Run(ctx context.Context) *Result {
	started := s.now()
	res := &Result{RunID: s.newRunID(), State: StateInit, DryRun: s.dryRun}
	res.Stats.StartedAt = started
	p := &pass{result: res, log: s.logger.WithField("run_id", res.RunID)}
	p.log.Info("starting sync")

	if s.deps.Lock != nil {
		if err := s.deps.Lock.TryLock(ctx); err != nil {
			return s.fail(ctx, p, StateInit, fmt.Errorf("acquire sync lock: %w", err))
		}
		defer func() {
			if err := s.deps.Lock.Unlock(context.WithoutCancel(ctx)); err != nil {
				p.log.WithError(err).Warn("failed to release sync lock")
			}
		}()
	}

	s.journalStart(ctx, p)

	if err := s.initialize(ctx, p); err != nil {
		return s.fail(ctx, p, StateInit, err)
	}

	res.State = StateFetching
	docs, err := s.fetch(ctx, p)
	if err != nil {
		return s.fail(ctx, p, StateFetching, err)
	}

	res.State = StateProcessing
	if err := s.process(ctx, p, docs); err != nil {
		return s.fail(ctx, p, StateProcessing, err)
	}

	res.State = StateFinalizing
	if err := s.finalize(ctx, p, started); err != nil {
		return s.fail(ctx, p, StateFinalizing, err)
	}

	res.State = StateDone
	res.Stats.Duration = s.now().Sub(started)
	res.TotalFiles = s.deps.Vault.CountNotes()
	if res.Stats.Processed > 0 {
		res.NextSyncAfter = s.now()
	}
	s.journalFinish(ctx, p)
	s.logCompletion(p)
	return res
}

func (s *Syncer) initialize(ctx context.Context, p *pass) error {
	p.log.Debug("initializing sync components")
	rosters, err := s.deps.Rosters.Load(ctx)
	if err != nil {
		return fmt.Errorf("load participant rosters: %w", err)
	}
	p.directory = roster.NewDirectory(rosters, s.fallback)
	if err := s.deps.Mapping.Load(ctx); err != nil {
		return fmt.Errorf("load document mapping: %w", err)
	}
	return nil
}

func (s *Syncer) fetch(ctx context.Context, p *pass) ([]models.Document, error) {
	since, err := s.deps.Watermark.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("read watermark: %w", err)
	}
	p.result.Since = since
	p.log.WithField("last_sync", since.Format("2006-01-02 15:04")).Info("fetching documents since last sync")

	docs, err := s.deps.Documents.FetchSince(ctx, since)
	if err != nil {
		if ctx.Err() != nil || !s.policy.ShouldContinue(config.CategoryDocument) {
			return nil, fmt.Errorf("fetch documents: %w", err)
		}
		p.log.WithError(err).Error("failed to fetch documents")
		return nil, nil
	}
	p.log.WithField("count", len(docs)).Info("found documents to sync")
	return docs, nil
}

func (s *Syncer) process(ctx context.Context, p *pass, docs []models.Document) error {
	stats := &p.result.Stats
	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Processed++
		log := p.log.WithFields(logrus.Fields{"document": doc.ID, "index": fmt.Sprintf("%d/%d", i+1, len(docs))})
		log.WithField("title", doc.DisplayTitle("Untitled")).Info("processing document")

		if err := s.processDocument(ctx, p, log, doc); err != nil {
			stats.Failed++
			log.WithError(err).Error("error processing document")
			var terr *transcriptError
			if ctx.Err() != nil || errors.As(err, &terr) || !s.policy.ShouldContinue(config.CategoryDocument) {
				return fmt.Errorf("document %s: %w", doc.ID, err)
			}
		}

		if i < len(docs)-1 {
			if err := s.sleep(ctx, s.delay); err != nil {
				return err
			}
		}
	}
	return nil
}

// transcriptError marks a transcript failure under an abort policy.
type transcriptError struct{ err error }

func (e *transcriptError) Error() string { return "fetch transcript: " + e.err.Error() }
func (e *transcriptError) Unwrap() error { return e.err }

func (s *Syncer) processDocument(ctx context.Context, p *pass, log logrus.FieldLogger, doc models.Document) error {
	stats := &p.result.Stats
	groupName, groupID := s.deps.Mapping.Resolve(doc.ID)
	participants := p.directory.Participants(groupID)
	if !p.directory.IsFallback(participants) {
		log.WithField("participants", strings.Join(participants, ", ")).Info("resolved participants")
	}

	transcript, err := s.transcript(ctx, p, log, doc.ID, participants)
	if err != nil {
		s.journalDocument(ctx, p, models.DocumentRecord{DocumentID: doc.ID, Title: doc.Title, Outcome: "failed", Error: err.Error()})
		return err
	}

	rendered := s.deps.Vault.Render(vault.Note{
		Document:     doc,
		Participants: participants,
		GroupName:    groupName,
		GroupID:      groupID,
		Transcript:   transcript,
	})
	if err := vault.Validate(rendered.Content); err != nil {
		log.WithError(err).Warn("invalid note content generated")
	}

	outcome, err := s.deps.Vault.Save(rendered.Content, rendered.Filename)
	if err != nil {
		s.journalDocument(ctx, p, models.DocumentRecord{DocumentID: doc.ID, Title: rendered.Title, Filename: rendered.Filename, Outcome: "failed", Error: err.Error()})
		return err
	}
	switch outcome {
	case vault.Created:
		stats.Created++
	case vault.Updated:
		stats.Updated++
	default:
		stats.Skipped++
	}
	log.WithFields(logrus.Fields{"file": rendered.Filename, "outcome": outcome.String()}).Info("saved note")

	s.journalDocument(ctx, p, models.DocumentRecord{
		DocumentID:  doc.ID,
		Title:       rendered.Title,
		Filename:    rendered.Filename,
		Outcome:     outcome.String(),
		ContentHash: vault.Hash([]byte(rendered.Content)),
	})
	if s.deps.Index != nil && !s.dryRun && outcome != vault.Skipped {
		note := models.IndexedNote{
			ID:           doc.ID,
			Title:        rendered.Title,
			Date:         rendered.Date,
			Group:        groupName,
			Participants: participants,
			Path:         s.deps.Vault.Path(rendered.Filename),
		}
		if transcript != nil {
			note.Transcript = transcript.Text
		}
		if err := s.deps.Index.IndexNote(note); err != nil {
			log.WithError(err).Warn("failed to index note")
		}
	}
	return nil
}

// transcript fetches and attributes a transcript. A missing or unreadable
// transcript counts as a transcript failure but is not an error unless the
// policy aborts on transcript errors.
func (s *Syncer) transcript(ctx context.Context, p *pass, log logrus.FieldLogger, documentID string, participants []string) (*attribution.Result, error) {
	stats := &p.result.Stats
	turns, err := s.deps.Documents.FetchTranscript(ctx, documentID)
	if err != nil {
		stats.TranscriptsFailed++
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !s.policy.ShouldContinue(config.CategoryTranscript) {
			return nil, &transcriptError{err: err}
		}
		log.WithError(err).Warn("transcript error")
		return nil, nil
	}
	result := attribution.Attribute(turns, participants)
	if result == nil || result.Text == "" {
		stats.TranscriptsFailed++
		log.Debug("no readable transcript content")
		return nil, nil
	}
	stats.TranscriptsFetched++
	log.WithField("chars", len(result.Text)).Debug("attributed transcript")
	return result, nil
}
