// Package history persists one document per finished or in-flight recording.
// It is a write-only audit trail: the recorder never reads it back, so the
// manager's in-memory session state stays the single source of truth.
package history

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Reasons a recording ended.
const (
	ReasonStopped = "stopped" // operator or shutdown driven
	ReasonExited  = "exited"  // encoder terminated on its own
)

// Record is the stored shape of one recording.
type Record struct {
	RoomID     string     `bson:"room_id"`
	OutputPath string     `bson:"output_path"`
	StartedAt  time.Time  `bson:"started_at"`
	EndedAt    *time.Time `bson:"ended_at,omitempty"`
	ExitCode   *int       `bson:"exit_code,omitempty"`
	Reason     string     `bson:"reason,omitempty"`
}

// Store receives recording lifecycle notifications.
type Store interface {
	RecordStart(ctx context.Context, roomID, outputPath string, startedAt time.Time) error
	RecordEnd(ctx context.Context, roomID, outputPath string, endedAt time.Time, exitCode int, reason string) error
	Close(ctx context.Context) error
}

// NopStore discards everything. Used when no database is configured.
type NopStore struct{}

func (NopStore) RecordStart(context.Context, string, string, time.Time) error {
	return nil
}

func (NopStore) RecordEnd(context.Context, string, string, time.Time, int, string) error {
	return nil
}

func (NopStore) Close(context.Context) error { return nil }

// MongoStore keeps recording history in a MongoDB collection.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoStore connects to the given URI and pings the primary before
// returning, so a misconfigured database fails at startup rather than on the
// first recording.
func NewMongoStore(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	opts := options.Client().ApplyURI(uri).SetServerAPIOptions(serverAPI)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, errors.Wrap(err, "connect to mongodb")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.Wrap(err, "ping mongodb")
	}

	return &MongoStore{
		client: client,
		coll:   client.Database(dbName).Collection("recordings"),
	}, nil
}

func (s *MongoStore) RecordStart(ctx context.Context, roomID, outputPath string, startedAt time.Time) error {
	_, err := s.coll.InsertOne(ctx, Record{
		RoomID:     roomID,
		OutputPath: outputPath,
		StartedAt:  startedAt,
	})
	if err != nil {
		return errors.Wrapf(err, "insert recording for room %s", roomID)
	}
	return nil
}

func (s *MongoStore) RecordEnd(ctx context.Context, roomID, outputPath string, endedAt time.Time, exitCode int, reason string) error {
	update := bson.M{
		"$set": bson.M{
			"ended_at":  endedAt,
			"exit_code": exitCode,
			"reason":    reason,
		},
	}
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"room_id": roomID, "output_path": outputPath},
		update)
	if err != nil {
		return errors.Wrapf(err, "finalize recording for room %s", roomID)
	}
	return nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
