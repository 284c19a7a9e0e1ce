package lock

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mohammad-safakhou/notesync/internal/logging"
)

// FileLock is held while its lock file exists. A lock file older than ttl is
// considered abandoned and taken over.
type FileLock struct {
	path   string
	ttl    time.Duration
	logger logrus.FieldLogger
	now    func() time.Time

	mu   sync.Mutex
	held bool
}

// NewFileLock returns a lock backed by path.
func NewFileLock(path string, ttl time.Duration, logger logrus.FieldLogger) *FileLock {
	return &FileLock{path: path, ttl: ttl, logger: logging.Component(logger, "lock"), now: time.Now}
}

func (l *FileLock) TryLock(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return ErrLocked
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			_, werr := fmt.Fprintf(f, "%d %d\n", os.Getpid(), l.now().Unix())
			cerr := f.Close()
			if werr != nil || cerr != nil {
				os.Remove(l.path)
				return errors.Join(werr, cerr)
			}
			l.held = true
			return nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return err
		}
		if !l.stale() {
			return ErrLocked
		}
		l.logger.WithField("path", l.path).Warn("removing abandoned lock file")
		if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return ErrLocked
}

// stale reports whether the current lock file outlived the ttl.
func (l *FileLock) stale() bool {
	if l.ttl <= 0 {
		return false
	}
	raw, err := os.ReadFile(l.path)
	if err != nil {
		return false
	}
	fields := strings.Fields(string(raw))
	if len(fields) < 2 {
		info, err := os.Stat(l.path)
		return err == nil && l.now().Sub(info.ModTime()) > l.ttl
	}
	ts, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return false
	}
	return l.now().Sub(time.Unix(ts, 0)) > l.ttl
}

func (l *FileLock) Unlock(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return nil
	}
	l.held = false
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
