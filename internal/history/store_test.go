package history

import (
	"context"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

func TestNopStore(t *testing.T) {
	ctx := context.Background()
	var s Store = NopStore{}

	if err := s.RecordStart(ctx, "1", "out.flv", time.Now()); err != nil {
		t.Errorf("RecordStart() error = %v", err)
	}
	if err := s.RecordEnd(ctx, "1", "out.flv", time.Now(), 0, ReasonStopped); err != nil {
		t.Errorf("RecordEnd() error = %v", err)
	}
	if err := s.Close(ctx); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

// Exercises the real store against a live database, the same way the rest of
// the deployment uses it. Skipped unless DB_URI points somewhere.
func TestMongoStore(t *testing.T) {
	uri := os.Getenv("DB_URI")
	if uri == "" {
		t.Skip("DB_URI not set; skipping live database test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := NewMongoStore(ctx, uri, "test_liverec_history")
	if err != nil {
		t.Fatalf("NewMongoStore() error = %v", err)
	}
	defer func() {
		_ = store.coll.Database().Drop(ctx)
		_ = store.Close(ctx)
	}()

	startedAt := time.Now().UTC().Truncate(time.Millisecond)
	outputPath := "recordings/live_9999_test.flv"

	if err := store.RecordStart(ctx, "9999", outputPath, startedAt); err != nil {
		t.Fatalf("RecordStart() error = %v", err)
	}

	var rec Record
	err = store.coll.FindOne(ctx, bson.M{"room_id": "9999", "output_path": outputPath}).Decode(&rec)
	if err != nil {
		t.Fatalf("inserted record not found: %v", err)
	}
	if rec.EndedAt != nil || rec.Reason != "" {
		t.Errorf("fresh record should have no end fields: %+v", rec)
	}

	endedAt := startedAt.Add(90 * time.Second)
	if err := store.RecordEnd(ctx, "9999", outputPath, endedAt, 0, ReasonExited); err != nil {
		t.Fatalf("RecordEnd() error = %v", err)
	}

	err = store.coll.FindOne(ctx, bson.M{"room_id": "9999", "output_path": outputPath}).Decode(&rec)
	if err != nil {
		t.Fatalf("finalized record not found: %v", err)
	}
	if rec.EndedAt == nil {
		t.Fatal("EndedAt should be set after RecordEnd")
	}
	if rec.Reason != ReasonExited {
		t.Errorf("Reason = %q, want %q", rec.Reason, ReasonExited)
	}
	if rec.ExitCode == nil || *rec.ExitCode != 0 {
		t.Errorf("ExitCode = %v, want 0", rec.ExitCode)
	}

	t.Logf("recorded and finalized history document for room 9999")
}
