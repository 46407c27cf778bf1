// Package store remembers every quest record that has ever been seen.
package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"questwatch/internal/quest"
	"strings"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("questwatch/internal/store")

var (
	// ErrUnavailable wraps every connection, read or write failure of a backend.
	ErrUnavailable = errors.New("store unavailable")
	// ErrNotFound is returned by Get when no record has the requested id.
	ErrNotFound = errors.New("quest not found")
)

// Store is an append-only set of quest records keyed by id.
//
// note: fault injection point
type Store interface {
	// Exists reports whether a record with id has been inserted before.
	Exists(ctx context.Context, id string) (bool, error)
	// Insert writes a record that the caller knows to be absent.
	Insert(ctx context.Context, record quest.Record) error
	// InsertIfAbsent writes record unless its id is already stored. The check
	// and the write are a single atomic operation on every backend.
	InsertIfAbsent(ctx context.Context, record quest.Record) (inserted bool, err error)
	// Get returns the stored record with id or ErrNotFound.
	Get(ctx context.Context, id string) (quest.Record, error)
	// List returns every stored record ordered by id.
	List(ctx context.Context) ([]quest.Record, error)
	Close() error
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}

// Open connects to the backend named by the scheme of connString:
//
//	mongodb://, mongodb+srv://   MongoDB
//	postgres://, postgresql://   PostgreSQL
//	redis://, rediss://          Redis
//	libsql://, https://, http:// remote libsql (http for a local sqld)
//	sqlite:<path>, file:<path>   local sqlite file (a bare path works too)
//	memory:                      in-process, forgotten on exit
func Open(ctx context.Context, connString string) (Store, error) {
	connString = strings.TrimSpace(connString)
	if connString == "" {
		return nil, unavailable("open", fmt.Errorf("no connection string configured"))
	}

	scheme := ""
	if u, err := url.Parse(connString); err == nil {
		scheme = strings.ToLower(u.Scheme)
	}

	switch scheme {
	case "mongodb", "mongodb+srv":
		return OpenMongo(ctx, connString, MongoOptions{})
	case "postgres", "postgresql":
		return OpenPostgres(ctx, connString)
	case "redis", "rediss":
		return OpenRedis(ctx, connString, "")
	case "libsql", "https", "http":
		return OpenLibsql(ctx, connString)
	case "memory":
		return NewMemory(), nil
	case "sqlite":
		return OpenSQLite(ctx, strings.TrimPrefix(strings.TrimPrefix(connString, "sqlite:"), "//"))
	case "file":
		return OpenSQLite(ctx, strings.TrimPrefix(connString, "file:"))
	case "":
		return OpenSQLite(ctx, connString)
	}
	return nil, unavailable("open", fmt.Errorf("unsupported store scheme %q", scheme))
}
