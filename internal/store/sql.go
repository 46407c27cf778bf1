package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"questwatch/internal/quest"

	_ "embed"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

// SQL stores records in a "quests" table through database/sql. It serves both
// the local sqlite driver and remote libsql databases, which share a dialect.
type SQL struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the sqlite file at path.
func OpenSQLite(ctx context.Context, path string) (*SQL, error) {
	if path == "" {
		return nil, unavailable("open", fmt.Errorf("a sqlite path was not specified"))
	}

	if path != ":memory:" {
		_, statErr := os.Stat(path)
		if os.IsNotExist(statErr) {
			f, err := os.Create(path)
			if err != nil {
				return nil, unavailable("open", err)
			}
			f.Close()
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, unavailable("open", err)
	}
	// sqlite only tolerates a single writer, WAL lets readers proceed
	// alongside it.
	db.SetMaxOpenConns(1)
	if path != ":memory:" {
		_, err = db.ExecContext(ctx, "PRAGMA journal_mode=WAL")
		if err != nil {
			db.Close()
			return nil, unavailable("open", err)
		}
	}
	return NewSQL(ctx, db)
}

// OpenLibsql connects to a remote libsql server. An auth token may be passed
// as the authToken query parameter of connString.
func OpenLibsql(ctx context.Context, connString string) (*SQL, error) {
	u, err := url.Parse(connString)
	if err != nil {
		return nil, unavailable("open", err)
	}
	if token := os.Getenv("LIBSQL_AUTH_TOKEN"); token != "" && u.Query().Get("authToken") == "" {
		values := u.Query()
		values.Set("authToken", token)
		u.RawQuery = values.Encode()
	}

	db, err := sql.Open("libsql", u.String())
	if err != nil {
		return nil, unavailable("open", err)
	}
	return NewSQL(ctx, db)
}

// NewSQL wraps an open database and makes sure the schema exists.
func NewSQL(ctx context.Context, db *sql.DB) (*SQL, error) {
	_, err := db.ExecContext(ctx, Schema)
	if err != nil {
		db.Close()
		return nil, unavailable("create schema", err)
	}
	return &SQL{db: db}, nil
}

func (s *SQL) Exists(ctx context.Context, id string) (bool, error) {
	ctx, span := tracer.Start(ctx, "sql:Exists")
	defer span.End()
	span.SetAttributes(attribute.String("id", id))

	var found int
	err := s.db.QueryRowContext(ctx, "select 1 from quests where id = ?", id).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to query quest")
		return false, unavailable("exists", err)
	}
	return true, nil
}

func (s *SQL) Insert(ctx context.Context, record quest.Record) error {
	ctx, span := tracer.Start(ctx, "sql:Insert")
	defer span.End()
	span.SetAttributes(attribute.String("id", record.ID))

	_, err := s.db.ExecContext(
		ctx,
		"insert into quests (id, title, href) values (?, ?, ?)",
		record.ID, record.Title, record.Href,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to insert quest")
		return unavailable("insert", err)
	}
	return nil
}

func (s *SQL) InsertIfAbsent(ctx context.Context, record quest.Record) (bool, error) {
	ctx, span := tracer.Start(ctx, "sql:InsertIfAbsent")
	defer span.End()
	span.SetAttributes(attribute.String("id", record.ID))

	res, err := s.db.ExecContext(
		ctx,
		"insert into quests (id, title, href) values (?, ?, ?) on conflict (id) do nothing",
		record.ID, record.Title, record.Href,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to insert quest")
		return false, unavailable("insert", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read affected rows")
		return false, unavailable("insert", err)
	}
	return n == 1, nil
}

func (s *SQL) Get(ctx context.Context, id string) (quest.Record, error) {
	ctx, span := tracer.Start(ctx, "sql:Get")
	defer span.End()

	var r quest.Record
	err := s.db.QueryRowContext(ctx, "select id, title, href from quests where id = ?", id).
		Scan(&r.ID, &r.Title, &r.Href)
	if errors.Is(err, sql.ErrNoRows) {
		return quest.Record{}, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to query quest")
		return quest.Record{}, unavailable("get", err)
	}
	return r, nil
}

func (s *SQL) List(ctx context.Context) ([]quest.Record, error) {
	ctx, span := tracer.Start(ctx, "sql:List")
	defer span.End()

	rows, err := s.db.QueryContext(ctx, "select id, title, href from quests order by id")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list quests")
		return nil, unavailable("list", err)
	}
	defer rows.Close()

	out := []quest.Record{}
	for rows.Next() {
		var r quest.Record
		if err := rows.Scan(&r.ID, &r.Title, &r.Href); err != nil {
			return nil, unavailable("list", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list", err)
	}
	return out, nil
}

func (s *SQL) Close() error {
	return s.db.Close()
}
