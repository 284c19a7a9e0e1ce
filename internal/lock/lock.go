// Package lock provides the mutual exclusion around a sync pass.
package lock

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/mohammad-safakhou/notesync/config"
)

// ErrLocked is returned by TryLock when another process holds the lock.
var ErrLocked = errors.New("another sync is already running")

// Locker is a non-blocking exclusive lock.
type Locker interface {
	TryLock(ctx context.Context) error
	Unlock(ctx context.Context) error
}

// Noop never blocks.
type Noop struct{}

func (Noop) TryLock(context.Context) error { return nil }
func (Noop) Unlock(context.Context) error  { return nil }

// New builds the configured lock backend. Close releases backend resources.
func New(ctx context.Context, cfg config.LockConfig, path string, logger logrus.FieldLogger) (Locker, func() error, error) {
	switch cfg.Backend {
	case "", "file":
		return NewFileLock(path, cfg.TTL, logger), func() error { return nil }, nil
	case "redis":
		client, err := Conn(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis lock: %w", err)
		}
		return NewRedisLock(client, cfg.Redis.Key, cfg.TTL, logger), client.Close, nil
	case "none":
		return Noop{}, func() error { return nil }, nil
	}
	return nil, nil, fmt.Errorf("unknown lock backend %q", cfg.Backend)
}
