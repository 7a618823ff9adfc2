package control

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/stmtc233/BilibiliLiveRecorder/internal/bilibili"
)

type resolverFunc func(ctx context.Context, roomID string) (*bilibili.Stream, error)

func (f resolverFunc) Resolve(ctx context.Context, roomID string) (*bilibili.Stream, error) {
	return f(ctx, roomID)
}

type fakeRecorder struct {
	mu        sync.Mutex
	recording map[string]bool
	starts    []string
	startErr  error
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{recording: make(map[string]bool)}
}

func (r *fakeRecorder) IsRecording(roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording[roomID]
}

func (r *fakeRecorder) Start(roomID, streamURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startErr != nil {
		return r.startErr
	}
	r.starts = append(r.starts, roomID)
	r.recording[roomID] = true
	return nil
}

func (r *fakeRecorder) ActiveRooms() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	rooms := make([]string, 0, len(r.recording))
	for roomID := range r.recording {
		rooms = append(rooms, roomID)
	}
	return rooms
}

func (r *fakeRecorder) startedRooms() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.starts...)
}

func liveResolver(liveRooms map[string]bool) resolverFunc {
	return func(ctx context.Context, roomID string) (*bilibili.Stream, error) {
		if liveRooms[roomID] {
			return &bilibili.Stream{URL: "http://cdn.example.com/" + roomID, Quality: "原画"}, nil
		}
		return nil, errors.Wrapf(bilibili.ErrNotLive, "room %s", roomID)
	}
}

func TestLoop_TickStartsLiveRooms(t *testing.T) {
	rec := newFakeRecorder()
	loop := NewLoop(liveResolver(map[string]bool{"a": true, "c": true}), rec,
		[]string{"a", "b", "c"}, time.Minute, time.Minute)

	if failed := loop.tick(context.Background()); failed {
		t.Error("tick() should not report failure for offline rooms")
	}

	started := rec.startedRooms()
	if len(started) != 2 {
		t.Fatalf("started %v, want rooms a and c", started)
	}
	for _, roomID := range started {
		if roomID != "a" && roomID != "c" {
			t.Errorf("unexpected start for room %q", roomID)
		}
	}
}

func TestLoop_TickSkipsRecordingRooms(t *testing.T) {
	rec := newFakeRecorder()
	rec.recording["a"] = true

	resolved := 0
	resolver := resolverFunc(func(ctx context.Context, roomID string) (*bilibili.Stream, error) {
		resolved++
		return nil, errors.Wrap(bilibili.ErrNotLive, roomID)
	})

	loop := NewLoop(resolver, rec, []string{"a", "b"}, time.Minute, time.Minute)
	loop.tick(context.Background())

	if resolved != 1 {
		t.Errorf("resolver called %d times, want 1 (room a is busy)", resolved)
	}
}

func TestLoop_TickReportsResolutionFailure(t *testing.T) {
	rec := newFakeRecorder()
	resolver := resolverFunc(func(ctx context.Context, roomID string) (*bilibili.Stream, error) {
		return nil, errors.New("connection refused")
	})

	loop := NewLoop(resolver, rec, []string{"a"}, time.Minute, time.Minute)
	if failed := loop.tick(context.Background()); !failed {
		t.Error("tick() should report failure for a real resolver error")
	}
	if len(rec.startedRooms()) != 0 {
		t.Error("no recording should start after a resolver error")
	}
}

func TestLoop_StartErrorsAreNotFatal(t *testing.T) {
	rec := newFakeRecorder()
	rec.startErr = errors.New("spawn failed")

	loop := NewLoop(liveResolver(map[string]bool{"a": true, "b": true}), rec,
		[]string{"a", "b"}, time.Minute, time.Minute)

	// Must visit both rooms despite the first Start failing.
	loop.tick(context.Background())
	if len(rec.startedRooms()) != 0 {
		t.Error("failed Starts must not be counted as started")
	}
}

func TestLoop_RunStopsPromptlyOnCancel(t *testing.T) {
	rec := newFakeRecorder()
	loop := NewLoop(liveResolver(nil), rec, []string{"a"}, time.Hour, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	// Let the first tick fire, then cancel mid-wait. The hour-long interval
	// must not delay shutdown.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("Run() did not return promptly after cancellation")
	}
}

func TestLoop_RunRecordsLiveRoom(t *testing.T) {
	rec := newFakeRecorder()
	loop := NewLoop(liveResolver(map[string]bool{"a": true}), rec,
		[]string{"a"}, 10*time.Millisecond, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	loop.Run(ctx)

	started := rec.startedRooms()
	if len(started) != 1 || started[0] != "a" {
		t.Errorf("started = %v, want exactly one start of room a", started)
	}
}
