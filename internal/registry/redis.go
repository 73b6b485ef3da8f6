package registry

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	keyPrefix = "brainstorm:index:"
	setKey    = "brainstorm:indexes"
)

// Redis keeps one hash per collection plus a set of all handles.
type Redis struct {
	rdb    *redis.Client
	logger *zap.Logger
}

var _ Registry = (*Redis)(nil)

// NewRedis connects to redisURL and checks the connection.
func NewRedis(redisURL string, logger *zap.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Redis{rdb: rdb, logger: logger}, nil
}

func (r *Redis) Record(ctx context.Context, e Entry) error {
	_, err := r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, keyPrefix+e.Handle, map[string]interface{}{
			"session_id": e.SessionID,
			"type":       e.Type,
			"created_at": e.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		p.SAdd(ctx, setKey, e.Handle)
		return nil
	})
	if err != nil {
		return fmt.Errorf("record %s: %w", e.Handle, err)
	}
	r.logger.Debug("index recorded", zap.String("collection", e.Handle), zap.String("session", e.SessionID))
	return nil
}

func (r *Redis) Remove(ctx context.Context, handle string) error {
	_, err := r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, keyPrefix+handle)
		p.SRem(ctx, setKey, handle)
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove %s: %w", handle, err)
	}
	return nil
}

func (r *Redis) List(ctx context.Context) ([]Entry, error) {
	handles, err := r.rdb.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list indexes: %w", err)
	}
	sort.Strings(handles)

	cmds := make([]*redis.MapStringStringCmd, len(handles))
	_, err = r.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, h := range handles {
			cmds[i] = p.HGetAll(ctx, keyPrefix+h)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list indexes: %w", err)
	}

	entries := make([]Entry, 0, len(handles))
	for i, h := range handles {
		fields := cmds[i].Val()
		created, _ := time.Parse(time.RFC3339Nano, fields["created_at"])
		entries = append(entries, Entry{
			Handle:    h,
			SessionID: fields["session_id"],
			Type:      fields["type"],
			CreatedAt: created,
		})
	}
	return entries, nil
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	return r.rdb.Close()
}
