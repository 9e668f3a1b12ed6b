package audit

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"vaxtrax/pkg/domain"
)

const (
	DefaultMongoDatabase   = "vaxtrax"
	DefaultMongoCollection = "scans"
)

// Collection is the subset of *mongo.Collection the sink uses.
type Collection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
}

type scanDocument struct {
	BatchNo     string    `bson:"batch_no"`
	Temperature float64   `bson:"temperature"`
	Status      string    `bson:"status"`
	Location    string    `bson:"location"`
	Stage       string    `bson:"stage"`
	Timestamp   time.Time `bson:"timestamp"`
	Action      string    `bson:"action"`
}

func toDocument(e domain.HistoryEntry) scanDocument {
	return scanDocument{
		BatchNo:     e.BatchNo,
		Temperature: e.Temperature,
		Status:      string(e.Status),
		Location:    e.Location,
		Stage:       string(e.Stage),
		Timestamp:   e.Timestamp.UTC(),
		Action:      e.Action,
	}
}

func (d scanDocument) entry() domain.HistoryEntry {
	return domain.HistoryEntry{
		BatchNo:     d.BatchNo,
		Temperature: d.Temperature,
		Status:      domain.Status(d.Status),
		Location:    d.Location,
		Stage:       domain.Stage(d.Stage),
		Timestamp:   d.Timestamp.UTC(),
		Action:      d.Action,
	}
}

// MongoSink writes one document per history entry.
type MongoSink struct {
	coll Collection
}

// NewMongoSink wraps an existing collection.
func NewMongoSink(coll Collection) *MongoSink { return &MongoSink{coll: coll} }

// ConnectMongo dials uri, pings the server and returns a sink on
// database.collection together with a disconnect func.
func ConnectMongo(ctx context.Context, uri, database, collection string) (*MongoSink, func(context.Context) error, error) {
	if uri == "" {
		return nil, nil, fmt.Errorf("mongo uri required")
	}
	if database == "" {
		database = DefaultMongoDatabase
	}
	if collection == "" {
		collection = DefaultMongoCollection
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, fmt.Errorf("ping mongo: %w", err)
	}
	return NewMongoSink(client.Database(database).Collection(collection)), client.Disconnect, nil
}

// Append implements Sink.
func (m *MongoSink) Append(ctx context.Context, entry domain.HistoryEntry) error {
	if _, err := m.coll.InsertOne(ctx, toDocument(entry)); err != nil {
		return fmt.Errorf("insert scan %s: %w", entry.BatchNo, err)
	}
	return nil
}

// Scans implements Reader in timestamp order.
func (m *MongoSink) Scans(ctx context.Context, batchNo string) ([]domain.HistoryEntry, error) {
	opts := options.Find().
		SetProjection(bson.M{"_id": 0}).
		SetSort(bson.D{{Key: "timestamp", Value: 1}})
	cur, err := m.coll.Find(ctx, bson.M{"batch_no": batchNo}, opts)
	if err != nil {
		return nil, fmt.Errorf("find scans %s: %w", batchNo, err)
	}
	var docs []scanDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode scans %s: %w", batchNo, err)
	}
	out := make([]domain.HistoryEntry, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.entry())
	}
	return out, nil
}
