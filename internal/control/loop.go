// Package control drives the check-resolve-record cycle across all
// configured rooms.
package control

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/stmtc233/BilibiliLiveRecorder/internal/bilibili"
)

// Resolver reports whether a room is live and where its stream can be read.
type Resolver interface {
	Resolve(ctx context.Context, roomID string) (*bilibili.Stream, error)
}

// Recorder is the session-manager surface the loop needs.
type Recorder interface {
	IsRecording(roomID string) bool
	Start(roomID, streamURL string) error
	ActiveRooms() []string
}

// Loop polls every idle room each tick and starts a recording when the
// resolver reports it live. A room is idle exactly when it has no session;
// the loop never tracks state of its own.
type Loop struct {
	resolver      Resolver
	recorder      Recorder
	rooms         []string
	checkInterval time.Duration
	retryDelay    time.Duration
}

func NewLoop(resolver Resolver, recorder Recorder, rooms []string, checkInterval, retryDelay time.Duration) *Loop {
	return &Loop{
		resolver:      resolver,
		recorder:      recorder,
		rooms:         rooms,
		checkInterval: checkInterval,
		retryDelay:    retryDelay,
	}
}

// Run ticks until ctx is cancelled. The first tick fires immediately. A tick
// that saw a resolution failure schedules the next one after the retry delay
// instead of the regular check interval. No per-room error ever stops the
// loop.
func (l *Loop) Run(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		wait := l.checkInterval
		if l.tick(ctx) {
			wait = l.retryDelay
		}
		timer.Reset(wait)
	}
}

// tick checks every idle room once and reports whether any resolution failed
// with a real error (as opposed to the room simply being offline).
func (l *Loop) tick(ctx context.Context) bool {
	failed := false

	for _, roomID := range l.rooms {
		if ctx.Err() != nil {
			return failed
		}
		if l.recorder.IsRecording(roomID) {
			continue
		}

		stream, err := l.resolver.Resolve(ctx, roomID)
		if err != nil {
			if errors.Is(err, bilibili.ErrNotLive) {
				log.Printf("room %s: not live", roomID)
			} else {
				log.Printf("room %s: resolve failed: %v", roomID, err)
				failed = true
			}
			continue
		}

		log.Printf("room %s: live at quality %s, starting recording", roomID, stream.Quality)
		if err := l.recorder.Start(roomID, stream.URL); err != nil {
			log.Printf("room %s: start failed: %v", roomID, err)
		}
	}

	if active := l.recorder.ActiveRooms(); len(active) > 0 {
		log.Printf("currently recording: %s", strings.Join(active, ", "))
	}
	return failed
}
