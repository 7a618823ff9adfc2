package recorder

import (
	"context"
	"fmt"
	"io"
	"log"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/stmtc233/BilibiliLiveRecorder/internal/flvprobe"
	"github.com/stmtc233/BilibiliLiveRecorder/internal/history"
)

var (
	// ErrAlreadyRecording means another session holds the room's slot.
	ErrAlreadyRecording = errors.New("room is already recording")
	// ErrNotRecording means no session existed for the room at removal time.
	ErrNotRecording = errors.New("room is not recording")

	errNoProcess = errors.New("no encoder process attached")
)

const historyWriteTimeout = 5 * time.Second

// CommandBuilder produces a ready-to-start encoder command. The command must
// not have been started.
type CommandBuilder interface {
	RecordCommand(streamURL, outputPath string) *exec.Cmd
}

// SessionInfo is the externally visible view of one active session.
type SessionInfo struct {
	RoomID          string    `json:"room_id"`
	OutputPath      string    `json:"output_path"`
	Pid             int       `json:"pid"`
	StartedAt       time.Time `json:"started_at"`
	DurationSeconds float64   `json:"duration_seconds"`
}

// Manager starts and stops recording sessions against the shared SessionTable.
type Manager struct {
	table     *SessionTable
	builder   CommandBuilder
	store     history.Store
	outputDir string
	stopGrace time.Duration
	seq       atomic.Uint64
}

// NewManager wires a manager around the given table. stopGrace bounds how
// long Stop waits for the encoder to exit voluntarily.
func NewManager(table *SessionTable, builder CommandBuilder, store history.Store, outputDir string, stopGrace time.Duration) *Manager {
	return &Manager{
		table:     table,
		builder:   builder,
		store:     store,
		outputDir: outputDir,
		stopGrace: stopGrace,
	}
}

// Start reserves the room's table slot, spawns the encoder against streamURL
// and attaches the process to the session. The reservation happens before the
// spawn so that two concurrent Starts for one room cannot both launch a
// process; the loser gets ErrAlreadyRecording. A failed spawn rolls the
// reservation back. Start returns as soon as the process is running.
func (m *Manager) Start(roomID, streamURL string) error {
	now := time.Now()
	s := newSession(roomID, m.outputPath(roomID, now), now)

	if !m.table.TryInsert(roomID, s) {
		return ErrAlreadyRecording
	}

	cmd := m.builder.RecordCommand(streamURL, s.OutputPath)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		m.table.Evict(roomID, s)
		return errors.Wrapf(err, "open stderr pipe for room %s", roomID)
	}

	if err := cmd.Start(); err != nil {
		m.table.Evict(roomID, s)
		return errors.Wrapf(err, "spawn encoder for room %s", roomID)
	}
	s.attach(cmd)

	// Drain the encoder's stderr until it closes. Without a reader the pipe
	// buffer fills and the encoder stalls on writes.
	drained := make(chan struct{})
	go func() {
		_, _ = io.Copy(io.Discard, stderr)
		close(drained)
	}()

	// Reap the process once stderr is exhausted and publish its exit code.
	go func() {
		<-drained
		err := cmd.Wait()
		s.finish(exitStatus(cmd, err))
	}()

	if !m.table.Confirm(roomID, s) {
		// The reservation was removed while the encoder was spawning
		// (a Stop racing this Start). Shut the orphan down.
		m.terminate(s)
		return errors.Errorf("room %s: session removed during spawn", roomID)
	}

	log.Printf("room %s: recording started (pid %d) -> %s", roomID, s.Pid(), s.OutputPath)
	m.recordStart(s)
	return nil
}

// Stop removes the room's session, asks the encoder to finish gracefully and
// escalates to a kill after the grace period. It returns the recording's
// wall-clock duration. Stopping a room that is not recording returns
// ErrNotRecording; concurrent Stops for one room are safe because only one
// of them wins the Remove.
func (m *Manager) Stop(roomID string) (time.Duration, error) {
	s, ok := m.table.Remove(roomID)
	if !ok {
		return 0, ErrNotRecording
	}

	log.Printf("room %s: stopping recording (pid %d)", roomID, s.Pid())
	m.terminate(s)

	duration := time.Since(s.StartTime)
	log.Printf("room %s: recording stopped after %s (exit code %d)", roomID, duration.Round(time.Second), s.ExitCode())
	m.recordEnd(s, history.ReasonStopped)
	probeRecording(s)
	return duration, nil
}

// terminate interrupts the session's process and waits for it to exit,
// killing it once the grace period elapses. Both waits are bounded so Stop
// returns in finite time even for a session whose process never attached.
func (m *Manager) terminate(s *Session) {
	if err := s.Interrupt(); err != nil && !s.Exited() {
		log.Printf("room %s: interrupt failed: %v", s.RoomID, err)
	}

	select {
	case <-s.Done():
		return
	case <-time.After(m.stopGrace):
	}

	log.Printf("room %s: grace period elapsed, killing encoder", s.RoomID)
	if err := s.Kill(); err != nil && !s.Exited() {
		log.Printf("room %s: kill failed: %v", s.RoomID, err)
	}

	select {
	case <-s.Done():
	case <-time.After(m.stopGrace):
		log.Printf("room %s: encoder did not exit after kill", s.RoomID)
	}
}

// StopAll stops every active session. One room's failure does not prevent
// stopping the others.
func (m *Manager) StopAll() {
	for _, roomID := range m.table.Keys() {
		if _, err := m.Stop(roomID); err != nil && err != ErrNotRecording {
			log.Printf("room %s: stop failed: %v", roomID, err)
		}
	}
}

// IsRecording reports whether the room currently holds a session.
func (m *Manager) IsRecording(roomID string) bool {
	_, ok := m.table.Get(roomID)
	return ok
}

// ActiveRooms returns the rooms currently recording.
func (m *Manager) ActiveRooms() []string {
	return m.table.Keys()
}

// Sessions returns a point-in-time view of all active sessions.
func (m *Manager) Sessions() []SessionInfo {
	keys := m.table.Keys()
	infos := make([]SessionInfo, 0, len(keys))
	for _, roomID := range keys {
		s, ok := m.table.Get(roomID)
		if !ok {
			continue
		}
		infos = append(infos, SessionInfo{
			RoomID:          s.RoomID,
			OutputPath:      s.OutputPath,
			Pid:             s.Pid(),
			StartedAt:       s.StartTime,
			DurationSeconds: time.Since(s.StartTime).Seconds(),
		})
	}
	return infos
}

// outputPath derives the destination file from room id, start timestamp and
// a process-wide counter. The counter keeps paths distinct when a room
// restarts within the same second.
func (m *Manager) outputPath(roomID string, now time.Time) string {
	name := fmt.Sprintf("live_%s_%s_%03d.flv", roomID, now.Format("20060102_150405"), m.seq.Add(1))
	return filepath.Join(m.outputDir, name)
}

func (m *Manager) recordStart(s *Session) {
	ctx, cancel := context.WithTimeout(context.Background(), historyWriteTimeout)
	defer cancel()
	if err := m.store.RecordStart(ctx, s.RoomID, s.OutputPath, s.StartTime); err != nil {
		log.Printf("room %s: history write failed: %v", s.RoomID, err)
	}
}

func (m *Manager) recordEnd(s *Session, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), historyWriteTimeout)
	defer cancel()
	if err := m.store.RecordEnd(ctx, s.RoomID, s.OutputPath, time.Now(), s.ExitCode(), reason); err != nil {
		log.Printf("room %s: history write failed: %v", s.RoomID, err)
	}
}

// probeRecording logs what actually landed on disk for a finished session.
func probeRecording(s *Session) {
	info, err := flvprobe.Probe(s.OutputPath)
	if err != nil {
		log.Printf("room %s: probe of %s failed: %v", s.RoomID, s.OutputPath, err)
		return
	}
	log.Printf("room %s: recorded %s of media (%d tags: %d video, %d audio)",
		s.RoomID, info.Duration.Round(time.Second), info.TagCount, info.VideoTags, info.AudioTags)
}

// exitStatus extracts the encoder's exit code after Wait has returned.
func exitStatus(cmd *exec.Cmd, err error) int {
	if err == nil {
		return cmd.ProcessState.ExitCode()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
