package storage

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Backends accepted by Open.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendTable  = "table"
)

// Options selects and configures a KV backend.
type Options struct {
	Backend          string
	Dir              string
	RedisURL         string
	KeyPrefix        string
	ConnectionString string
	Table            string
	Partition        string
}

// Open connects the configured backend, creating the Azure table when needed. The returned
// func releases its connections.
func Open(ctx context.Context, opts Options) (KV, func(), error) {
	noop := func() {}
	switch opts.Backend {
	case BackendMemory:
		return NewMemoryKV(), noop, nil
	case BackendFile:
		kv, err := NewFileKV(opts.Dir)
		if err != nil {
			return nil, noop, err
		}
		return kv, noop, nil
	case BackendRedis:
		rc := redis.NewClient(ParseRedisOptions(opts.RedisURL))
		if err := rc.Ping(ctx).Err(); err != nil {
			_ = rc.Close()
			return nil, noop, fmt.Errorf("redis ping: %w", err)
		}
		return NewRedisKV(rc, opts.KeyPrefix), func() { _ = rc.Close() }, nil
	case BackendTable:
		kv, err := NewTableKV(ctx, opts.ConnectionString, opts.Table, opts.Partition)
		if err != nil {
			return nil, noop, err
		}
		return kv, noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}
