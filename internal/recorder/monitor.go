package recorder

import (
	"context"
	"log"
	"time"

	"github.com/stmtc233/BilibiliLiveRecorder/internal/history"
)

// Monitor sweeps the session table for encoder processes that exited on
// their own and reclaims their slots. Without it a dead process would keep
// occupying its room forever, since the control loop only looks at table
// membership.
type Monitor struct {
	table    *SessionTable
	store    history.Store
	interval time.Duration
}

func NewMonitor(table *SessionTable, store history.Store, interval time.Duration) *Monitor {
	return &Monitor{
		table:    table,
		store:    store,
		interval: interval,
	}
}

// Run sweeps the table every interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Sweep reaps every session whose process has exited. Exit detection never
// blocks, and the identity check on eviction guarantees a session started
// for the same room after our snapshot is left alone.
func (m *Monitor) Sweep() {
	for _, roomID := range m.table.Keys() {
		s, ok := m.table.Get(roomID)
		if !ok || !s.Exited() {
			continue
		}
		if !m.table.Evict(roomID, s) {
			continue
		}

		log.Printf("room %s: encoder exited on its own (exit code %d) after %s",
			roomID, s.ExitCode(), time.Since(s.StartTime).Round(time.Second))

		ctx, cancel := context.WithTimeout(context.Background(), historyWriteTimeout)
		if err := m.store.RecordEnd(ctx, s.RoomID, s.OutputPath, time.Now(), s.ExitCode(), history.ReasonExited); err != nil {
			log.Printf("room %s: history write failed: %v", roomID, err)
		}
		cancel()

		probeRecording(s)
	}
}
