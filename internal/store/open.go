package store

import (
	"context"
	"fmt"
)

// Options selects and configures a snapshot backend.
type Options struct {
	Backend    string
	SQLitePath string
	FileDir    string
	Redis      RedisConfig
}

// Open creates the repository named by opts.Backend.
func Open(ctx context.Context, opts Options) (Repository, error) {
	switch opts.Backend {
	case "", BackendSQLite:
		return NewSQLite(opts.SQLitePath)
	case BackendFile:
		return NewFileStore(opts.FileDir)
	case BackendRedis:
		return NewRedisStore(ctx, opts.Redis)
	default:
		return nil, fmt.Errorf("unknown snapshot backend %q", opts.Backend)
	}
}
