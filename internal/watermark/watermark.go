// Package watermark persists the "last synced" timestamp.
package watermark

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mohammad-safakhou/notesync/internal/logging"
	"github.com/mohammad-safakhou/notesync/models"
)

// Store reads and advances the sync watermark.
type Store interface {
	Load(ctx context.Context) (time.Time, error)
	Save(ctx context.Context, t time.Time) error
}

// FileStore keeps the watermark as a single ISO-8601 line in a file.
type FileStore struct {
	path     string
	lookback time.Duration
	now      func() time.Time
	logger   logrus.FieldLogger
}

// NewFileStore returns a FileStore. When the file is absent or unreadable the
// watermark defaults to now minus lookback.
func NewFileStore(path string, lookback time.Duration, logger logrus.FieldLogger) *FileStore {
	return &FileStore{path: path, lookback: lookback, now: time.Now, logger: logging.Component(logger, "watermark")}
}

// WithClock replaces the clock used for the default watermark.
func (s *FileStore) WithClock(now func() time.Time) *FileStore {
	s.now = now
	return s
}

// Load returns the persisted watermark or the lookback default.
func (s *FileStore) Load(ctx context.Context) (time.Time, error) {
	raw, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return s.fallback(), nil
	case err != nil:
		s.logger.WithError(err).Warn("could not read watermark file, using lookback window")
		return s.fallback(), nil
	}
	t, ok := models.ParseTimestamp(strings.TrimSpace(string(raw)))
	if !ok {
		s.logger.WithField("value", strings.TrimSpace(string(raw))).Warn("unparsable watermark, using lookback window")
		return s.fallback(), nil
	}
	return t, nil
}

// Save atomically replaces the watermark file with t.
func (s *FileStore) Save(ctx context.Context, t time.Time) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create watermark directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".last_sync-*")
	if err != nil {
		return fmt.Errorf("write watermark: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(t.Format(time.RFC3339Nano)); err != nil {
		tmp.Close()
		return fmt.Errorf("write watermark: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write watermark: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("write watermark: %w", err)
	}
	return nil
}

func (s *FileStore) fallback() time.Time {
	return s.now().Add(-s.lookback)
}
