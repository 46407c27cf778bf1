package store

import (
	"context"
	"errors"
	"questwatch/internal/quest"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type MongoOptions struct {
	// Database defaults to "questsDB".
	Database string
	// Collection defaults to "quests".
	Collection string
}

type mongoQuest struct {
	ID    string `bson:"id"`
	Title string `bson:"title"`
	Href  string `bson:"href"`
}

func (m mongoQuest) record() quest.Record {
	return quest.Record{ID: m.ID, Title: m.Title, Href: m.Href}
}

// Mongo stores one document per record with a unique index on "id".
type Mongo struct {
	client *mongo.Client
	coll   *mongo.Collection
}

func OpenMongo(ctx context.Context, uri string, opts MongoOptions) (*Mongo, error) {
	if opts.Database == "" {
		opts.Database = "questsDB"
	}
	if opts.Collection == "" {
		opts.Collection = "quests"
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, unavailable("connect", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, unavailable("connect", err)
	}

	coll := client.Database(opts.Database).Collection(opts.Collection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		client.Disconnect(ctx)
		return nil, unavailable("create index", err)
	}
	return &Mongo{client: client, coll: coll}, nil
}

func (m *Mongo) Exists(ctx context.Context, id string) (bool, error) {
	ctx, span := tracer.Start(ctx, "mongo:Exists")
	defer span.End()
	span.SetAttributes(attribute.String("id", id))

	n, err := m.coll.CountDocuments(ctx, bson.M{"id": id}, options.Count().SetLimit(1))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to query quest")
		return false, unavailable("exists", err)
	}
	return n > 0, nil
}

func (m *Mongo) Insert(ctx context.Context, record quest.Record) error {
	ctx, span := tracer.Start(ctx, "mongo:Insert")
	defer span.End()
	span.SetAttributes(attribute.String("id", record.ID))

	_, err := m.coll.InsertOne(ctx, mongoQuest(record))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to insert quest")
		return unavailable("insert", err)
	}
	return nil
}

func (m *Mongo) InsertIfAbsent(ctx context.Context, record quest.Record) (bool, error) {
	ctx, span := tracer.Start(ctx, "mongo:InsertIfAbsent")
	defer span.End()
	span.SetAttributes(attribute.String("id", record.ID))

	res, err := m.coll.UpdateOne(
		ctx,
		bson.M{"id": record.ID},
		bson.M{"$setOnInsert": mongoQuest(record)},
		options.Update().SetUpsert(true),
	)
	// two concurrent upserts can both miss the filter, the unique index turns
	// the loser into a duplicate key error
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to insert quest")
		return false, unavailable("insert", err)
	}
	return res.UpsertedCount == 1, nil
}

func (m *Mongo) Get(ctx context.Context, id string) (quest.Record, error) {
	ctx, span := tracer.Start(ctx, "mongo:Get")
	defer span.End()

	var doc mongoQuest
	err := m.coll.FindOne(ctx, bson.M{"id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return quest.Record{}, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to query quest")
		return quest.Record{}, unavailable("get", err)
	}
	return doc.record(), nil
}

func (m *Mongo) List(ctx context.Context) ([]quest.Record, error) {
	ctx, span := tracer.Start(ctx, "mongo:List")
	defer span.End()

	cursor, err := m.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "id", Value: 1}}))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list quests")
		return nil, unavailable("list", err)
	}
	var docs []mongoQuest
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, unavailable("list", err)
	}

	out := make([]quest.Record, len(docs))
	for i, d := range docs {
		out[i] = d.record()
	}
	return out, nil
}

func (m *Mongo) Close() error {
	return m.client.Disconnect(context.Background())
}
