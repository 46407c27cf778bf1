package store

import (
	"context"
	"errors"
	"questwatch/internal/quest"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const postgresSchema = `create table if not exists quests (
	id text primary key,
	title text not null,
	href text not null
)`

// Postgres stores records in a "quests" table of a PostgreSQL database.
type Postgres struct {
	pool *pgxpool.Pool
}

func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, unavailable("parse dsn", err)
	}
	// a poll cycle touches the store sequentially, pool_max_conns in the dsn
	// still wins when set
	if !strings.Contains(dsn, "pool_max_conns") {
		cfg.MaxConns = 2
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, unavailable("connect", err)
	}
	_, err = pool.Exec(ctx, postgresSchema)
	if err != nil {
		pool.Close()
		return nil, unavailable("create schema", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Exists(ctx context.Context, id string) (bool, error) {
	ctx, span := tracer.Start(ctx, "postgres:Exists")
	defer span.End()
	span.SetAttributes(attribute.String("id", id))

	var exists bool
	err := p.pool.QueryRow(ctx, "select exists(select 1 from quests where id = $1)", id).Scan(&exists)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to query quest")
		return false, unavailable("exists", err)
	}
	return exists, nil
}

func (p *Postgres) Insert(ctx context.Context, record quest.Record) error {
	ctx, span := tracer.Start(ctx, "postgres:Insert")
	defer span.End()
	span.SetAttributes(attribute.String("id", record.ID))

	_, err := p.pool.Exec(
		ctx,
		"insert into quests (id, title, href) values ($1, $2, $3)",
		record.ID, record.Title, record.Href,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to insert quest")
		return unavailable("insert", err)
	}
	return nil
}

func (p *Postgres) InsertIfAbsent(ctx context.Context, record quest.Record) (bool, error) {
	ctx, span := tracer.Start(ctx, "postgres:InsertIfAbsent")
	defer span.End()
	span.SetAttributes(attribute.String("id", record.ID))

	tag, err := p.pool.Exec(
		ctx,
		"insert into quests (id, title, href) values ($1, $2, $3) on conflict (id) do nothing",
		record.ID, record.Title, record.Href,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to insert quest")
		return false, unavailable("insert", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (p *Postgres) Get(ctx context.Context, id string) (quest.Record, error) {
	ctx, span := tracer.Start(ctx, "postgres:Get")
	defer span.End()

	var r quest.Record
	err := p.pool.QueryRow(ctx, "select id, title, href from quests where id = $1", id).
		Scan(&r.ID, &r.Title, &r.Href)
	if errors.Is(err, pgx.ErrNoRows) {
		return quest.Record{}, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to query quest")
		return quest.Record{}, unavailable("get", err)
	}
	return r, nil
}

func (p *Postgres) List(ctx context.Context) ([]quest.Record, error) {
	ctx, span := tracer.Start(ctx, "postgres:List")
	defer span.End()

	rows, err := p.pool.Query(ctx, "select id, title, href from quests order by id")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list quests")
		return nil, unavailable("list", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (quest.Record, error) {
		var r quest.Record
		err := row.Scan(&r.ID, &r.Title, &r.Href)
		return r, err
	})
	if err != nil {
		return nil, unavailable("list", err)
	}
	return out, nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
