package store

import (
	"context"
	"encoding/json"
	"errors"
	"questwatch/internal/quest"
	"sort"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const defaultRedisPrefix = "questwatch:quest:"

// Redis stores each record as a JSON string under <prefix><id>.
type Redis struct {
	rdb    *redis.Client
	prefix string
}

func OpenRedis(ctx context.Context, connString, prefix string) (*Redis, error) {
	opt, err := redis.ParseURL(connString)
	if err != nil {
		return nil, unavailable("parse url", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, unavailable("connect", err)
	}
	return NewRedis(rdb, prefix), nil
}

func NewRedis(rdb *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &Redis{rdb: rdb, prefix: prefix}
}

func (r *Redis) key(id string) string {
	return r.prefix + id
}

func (r *Redis) Exists(ctx context.Context, id string) (bool, error) {
	ctx, span := tracer.Start(ctx, "redis:Exists")
	defer span.End()
	span.SetAttributes(attribute.String("id", id))

	n, err := r.rdb.Exists(ctx, r.key(id)).Result()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to query quest")
		return false, unavailable("exists", err)
	}
	return n == 1, nil
}

func (r *Redis) Insert(ctx context.Context, record quest.Record) error {
	ctx, span := tracer.Start(ctx, "redis:Insert")
	defer span.End()
	span.SetAttributes(attribute.String("id", record.ID))

	data, err := json.Marshal(record)
	if err != nil {
		return unavailable("insert", err)
	}
	err = r.rdb.Set(ctx, r.key(record.ID), data, 0).Err()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to insert quest")
		return unavailable("insert", err)
	}
	return nil
}

func (r *Redis) InsertIfAbsent(ctx context.Context, record quest.Record) (bool, error) {
	ctx, span := tracer.Start(ctx, "redis:InsertIfAbsent")
	defer span.End()
	span.SetAttributes(attribute.String("id", record.ID))

	data, err := json.Marshal(record)
	if err != nil {
		return false, unavailable("insert", err)
	}
	inserted, err := r.rdb.SetNX(ctx, r.key(record.ID), data, 0).Result()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to insert quest")
		return false, unavailable("insert", err)
	}
	return inserted, nil
}

func (r *Redis) Get(ctx context.Context, id string) (quest.Record, error) {
	ctx, span := tracer.Start(ctx, "redis:Get")
	defer span.End()

	data, err := r.rdb.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return quest.Record{}, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to query quest")
		return quest.Record{}, unavailable("get", err)
	}
	var out quest.Record
	if err := json.Unmarshal(data, &out); err != nil {
		return quest.Record{}, unavailable("get", err)
	}
	return out, nil
}

func (r *Redis) List(ctx context.Context) ([]quest.Record, error) {
	ctx, span := tracer.Start(ctx, "redis:List")
	defer span.End()

	var keys []string
	iter := r.rdb.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to scan quests")
		return nil, unavailable("list", err)
	}

	out := []quest.Record{}
	if len(keys) == 0 {
		return out, nil
	}
	values, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read quests")
		return nil, unavailable("list", err)
	}
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var rec quest.Record
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			span.RecordError(err)
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
