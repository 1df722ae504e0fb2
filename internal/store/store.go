// Package store persists finished run results so they can be listed and
// inspected after the process exits.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"batchd/pkg/types"
)

// ErrNotFound is returned by Load when no result exists for the run id.
var ErrNotFound = errors.New("store: run not found")

// Store saves and retrieves run results keyed by run id.
type Store interface {
	Save(ctx context.Context, res types.RunResult) error
	Load(ctx context.Context, runID string) (types.RunResult, error)
	// List returns the ids of stored runs.
	List(ctx context.Context) ([]string, error)
	Close() error
}

// Backends accepted by Open.
const (
	BackendNone  = "none"
	BackendFile  = "file"
	BackendRedis = "redis"
)

// Options selects and configures a backend.
type Options struct {
	Backend   string
	Dir       string
	RedisAddr string
	TTL       time.Duration
}

// Open builds the backend named by opts.Backend. An empty backend means none.
func Open(opts Options) (Store, error) {
	switch opts.Backend {
	case "", BackendNone:
		return Discard{}, nil
	case BackendFile:
		return NewFile(opts.Dir), nil
	case BackendRedis:
		if opts.RedisAddr == "" {
			return nil, errors.New("store: redis backend requires an address")
		}
		return NewRedis(opts.RedisAddr, WithTTL(opts.TTL)), nil
	default:
		return nil, fmt.Errorf("store: unknown backend %q", opts.Backend)
	}
}

// Discard drops every result.
type Discard struct{}

func (Discard) Save(context.Context, types.RunResult) error { return nil }

func (Discard) Load(context.Context, string) (types.RunResult, error) {
	return types.RunResult{}, ErrNotFound
}

func (Discard) List(context.Context) ([]string, error) { return nil, nil }

func (Discard) Close() error { return nil }

func validID(id string) error {
	if id == "" {
		return errors.New("store: run id cannot be empty")
	}
	return nil
}
