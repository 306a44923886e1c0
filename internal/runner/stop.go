package runner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	xerrors "EcoBot-Chain/internal/errors"
)

// stopValue is the marker content that requests a stop.
const stopValue = "1"

// StopSignal reports whether an operator asked the agents to stop. It is
// polled at cycle boundaries only and never auto-clears.
type StopSignal interface {
	StopRequested(ctx context.Context) (bool, error)
}

// Never is a StopSignal that never fires.
type Never struct{}

// StopRequested implements StopSignal.
func (Never) StopRequested(context.Context) (bool, error) { return false, nil }

// FileMarker is a kill switch backed by a file shared by every agent on
// the host. A missing file means run.
type FileMarker struct {
	Path string
}

// StopRequested implements StopSignal.
func (m FileMarker) StopRequested(context.Context) (bool, error) {
	content, err := os.ReadFile(m.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("读取停止标记失败: %w", err)
	}
	return strings.TrimSpace(string(content)) == stopValue, nil
}

// Set writes the stop value, for operators and tests.
func (m FileMarker) Set() error {
	return os.WriteFile(m.Path, []byte(stopValue), 0o644)
}

// RedisMarkerConfig holds the Redis connection for the shared marker.
type RedisMarkerConfig struct {
	Address  string
	Password string
	DB       int
	Key      string
	Timeout  time.Duration
}

// RedisMarker is a kill switch shared by agents on different hosts.
type RedisMarker struct {
	client  redis.Cmdable
	key     string
	timeout time.Duration
	closer  func() error
}

// NewRedisMarker connects to Redis and verifies the connection.
func NewRedisMarker(ctx context.Context, cfg RedisMarkerConfig) (*RedisMarker, error) {
	if cfg.Address == "" {
		return nil, xerrors.New(xerrors.CodeConfigurationMissing, "Redis address 不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 Redis 失败")
	}
	marker := newRedisMarker(client, cfg.Key, cfg.Timeout)
	marker.closer = client.Close
	return marker, nil
}

func newRedisMarker(client redis.Cmdable, key string, timeout time.Duration) *RedisMarker {
	if key == "" {
		key = "ecobot:kill_switch"
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &RedisMarker{client: client, key: key, timeout: timeout}
}

// StopRequested implements StopSignal.
func (m *RedisMarker) StopRequested(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	value, err := m.client.Get(ctx, m.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("读取 Redis 停止标记失败: %w", err)
	}
	return strings.TrimSpace(value) == stopValue, nil
}

// Set stores the stop value.
func (m *RedisMarker) Set(ctx context.Context) error {
	return m.client.Set(ctx, m.key, stopValue, 0).Err()
}

// Close releases the Redis client.
func (m *RedisMarker) Close() error {
	if m.closer == nil {
		return nil
	}
	return m.closer()
}

// AnyOf fires as soon as one of the signals fires. Errors from individual
// signals are returned only when no signal fired.
type AnyOf []StopSignal

// StopRequested implements StopSignal.
func (a AnyOf) StopRequested(ctx context.Context) (bool, error) {
	var errs []error
	for _, s := range a {
		stopped, err := s.StopRequested(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if stopped {
			return true, nil
		}
	}
	return false, errors.Join(errs...)
}
