// Package formstate mirrors the raw values typed into each marketplace form
// so they can be restored later. Computed prices are never stored.
package formstate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"marketplace-pricing/decision/marketplace"
)

// Store persists one form per marketplace.
type Store interface {
	// Save replaces the stored form of k. Unknown fields are dropped.
	Save(ctx context.Context, k marketplace.Kind, form marketplace.Form) error
	// Load returns the stored form of k, or an empty form.
	Load(ctx context.Context, k marketplace.Kind) (marketplace.Form, error)
	Ping(ctx context.Context) error
	Close() error
}

// Key is the versioned storage key of a marketplace form.
func Key(k marketplace.Kind) string {
	return fmt.Sprintf("calc_%s_v1", k)
}

// Backends
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// ErrUnknownBackend is returned by Open for an unsupported backend name.
var ErrUnknownBackend = errors.New("unknown form state backend")

// Options selects and configures a backend.
type Options struct {
	Backend string
	TTL     time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	PostgresDSN string
}

// Open creates the configured store.
func Open(ctx context.Context, opts Options, logger zerolog.Logger) (Store, error) {
	switch opts.Backend {
	case "", BackendMemory:
		return NewMemory(), nil
	case BackendRedis:
		return NewRedis(ctx, opts.RedisAddr, opts.RedisPassword, opts.RedisDB, opts.TTL, logger)
	case BackendPostgres:
		return NewPostgres(ctx, opts.PostgresDSN, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}

func clean(k marketplace.Kind, form marketplace.Form) marketplace.Form {
	return marketplace.Filter(k, form)
}

// ApplyShared writes a shared field into the stored form of every marketplace
// and returns the updated forms.
func ApplyShared(ctx context.Context, s Store, field, value string) (map[marketplace.Kind]marketplace.Form, error) {
	forms := make(map[marketplace.Kind]marketplace.Form, len(marketplace.Kinds()))
	for _, k := range marketplace.Kinds() {
		form, err := s.Load(ctx, k)
		if err != nil {
			return nil, err
		}
		forms[k] = form
	}

	if err := marketplace.ApplyShared(forms, field, value); err != nil {
		return nil, err
	}

	for k, form := range forms {
		if err := s.Save(ctx, k, form); err != nil {
			return nil, err
		}
	}
	return forms, nil
}
