package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/mohammad-safakhou/notesync/config"
	"github.com/mohammad-safakhou/notesync/internal/logging"
)

// Conn opens and pings a redis client.
func Conn(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		DialTimeout: cfg.Timeout,
		Password:    cfg.Password,
		DB:          cfg.DB,
	})
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		client.Close()
		return nil, err
	}
	if pong != "PONG" {
		client.Close()
		return nil, fmt.Errorf("expected PONG, got %s", pong)
	}
	return client, nil
}

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLock is a SetNX lock with an expiry, shared by every host using the
// same redis and key.
type RedisLock struct {
	rdb    *redis.Client
	key    string
	ttl    time.Duration
	token  string
	logger logrus.FieldLogger
}

// NewRedisLock returns a lock on key.
func NewRedisLock(rdb *redis.Client, key string, ttl time.Duration, logger logrus.FieldLogger) *RedisLock {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisLock{rdb: rdb, key: key, ttl: ttl, logger: logging.Component(logger, "lock")}
}

func (l *RedisLock) TryLock(ctx context.Context) error {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrLocked
	}
	l.token = token
	return nil
}

func (l *RedisLock) Unlock(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	n, err := releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Int()
	l.token = ""
	if err != nil {
		return err
	}
	if n == 0 {
		l.logger.WithField("key", l.key).Warn("lock expired before release")
	}
	return nil
}
