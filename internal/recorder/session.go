package recorder

import (
	"os"
	"os/exec"
	"sync"
	"time"
)

// Session binds one room to its running encoder process and output file.
// A Session is owned by the SessionTable; nothing else retains a reference
// to it past a single operation.
type Session struct {
	RoomID     string
	OutputPath string
	StartTime  time.Time

	// mu guards cmd and exitCode. The process handle is attached after the
	// table reservation succeeds, so a Session can briefly exist without one.
	mu       sync.Mutex
	cmd      *exec.Cmd
	exitCode int

	// done is closed by the waiter goroutine once cmd.Wait has returned and
	// exitCode is committed. Checking it with a non-blocking select is how
	// callers poll for exit without waiting.
	done chan struct{}
}

func newSession(roomID, outputPath string, startTime time.Time) *Session {
	return &Session{
		RoomID:     roomID,
		OutputPath: outputPath,
		StartTime:  startTime,
		exitCode:   -1,
		done:       make(chan struct{}),
	}
}

// attach stores the started process handle.
func (s *Session) attach(cmd *exec.Cmd) {
	s.mu.Lock()
	s.cmd = cmd
	s.mu.Unlock()
}

// finish commits the exit code and releases everyone blocked on Done.
// Called exactly once, by the waiter goroutine.
func (s *Session) finish(code int) {
	s.mu.Lock()
	s.exitCode = code
	s.mu.Unlock()
	close(s.done)
}

// Done is closed once the encoder process has exited and been reaped.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Exited reports whether the process has exited, without blocking.
func (s *Session) Exited() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// ExitCode returns the process exit code. Only meaningful after Done.
func (s *Session) ExitCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitCode
}

// Pid returns the process id, or 0 if no process is attached yet.
func (s *Session) Pid() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// Interrupt asks the encoder to finish up by sending it an interrupt signal,
// which ffmpeg treats as a request to finalize the output file.
func (s *Session) Interrupt() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil || s.cmd.Process == nil {
		return errNoProcess
	}
	return s.cmd.Process.Signal(os.Interrupt)
}

// Kill terminates the encoder process immediately.
func (s *Session) Kill() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil || s.cmd.Process == nil {
		return errNoProcess
	}
	return s.cmd.Process.Kill()
}

// SessionTable is the single source of truth for which rooms are recording.
// Every read and mutation happens under one mutex, and no method blocks on
// process I/O while holding it.
type SessionTable struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewSessionTable() *SessionTable {
	return &SessionTable{
		sessions: make(map[string]*Session),
	}
}

// TryInsert reserves the room's slot. It returns false without overwriting
// if a session already occupies the slot.
func (t *SessionTable) TryInsert(roomID string, s *Session) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.sessions[roomID]; exists {
		return false
	}
	t.sessions[roomID] = s
	return true
}

// Remove deletes and returns the room's session, if any.
func (t *SessionTable) Remove(roomID string) (*Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[roomID]
	if ok {
		delete(t.sessions, roomID)
	}
	return s, ok
}

// Evict removes the room's entry only if it is still the given session.
// The monitor uses this so it never reaps a session that replaced the one
// it observed earlier in the same sweep.
func (t *SessionTable) Evict(roomID string, s *Session) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.sessions[roomID]; ok && cur == s {
		delete(t.sessions, roomID)
		return true
	}
	return false
}

// Confirm reports whether the room's entry is still the given session.
// Start uses this to re-assert its reservation after the spawn completes.
func (t *SessionTable) Confirm(roomID string, s *Session) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, ok := t.sessions[roomID]
	return ok && cur == s
}

// Get returns the room's session, if any.
func (t *SessionTable) Get(roomID string) (*Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[roomID]
	return s, ok
}

// Keys returns a snapshot of the currently-recording room ids.
func (t *SessionTable) Keys() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	keys := make([]string, 0, len(t.sessions))
	for roomID := range t.sessions {
		keys = append(keys, roomID)
	}
	return keys
}

// Len returns the number of active sessions.
func (t *SessionTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}
