package recorder

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pkg/errors"
)

// Encoder wraps the ffmpeg binary used to copy live streams to disk.
type Encoder struct {
	path string
}

// NewEncoder resolves the ffmpeg binary. An explicit path wins; otherwise a
// copy sitting next to the executable is preferred over the one on $PATH,
// and if neither exists the bare command name is returned so the spawn error
// surfaces at Start time instead of here.
func NewEncoder(explicitPath string) *Encoder {
	if explicitPath != "" {
		return &Encoder{path: explicitPath}
	}
	return &Encoder{path: findFFmpeg()}
}

func findFFmpeg() string {
	name := "ffmpeg"
	if runtime.GOOS == "windows" {
		name = "ffmpeg.exe"
	}

	if exe, err := os.Executable(); err == nil {
		local := filepath.Join(filepath.Dir(exe), name)
		if info, err := os.Stat(local); err == nil && !info.IsDir() {
			return local
		}
	}

	if path, err := exec.LookPath("ffmpeg"); err == nil {
		return path
	}

	return "ffmpeg"
}

// Path returns the resolved ffmpeg location.
func (e *Encoder) Path() string {
	return e.path
}

// Version returns the first line of `ffmpeg -version`.
func (e *Encoder) Version() (string, error) {
	out, err := exec.Command(e.path, "-version").Output()
	if err != nil {
		return "", errors.Wrapf(err, "ffmpeg not available at %q", e.path)
	}
	line, _, _ := strings.Cut(string(out), "\n")
	if !strings.Contains(line, "ffmpeg version") {
		return "", errors.Errorf("unexpected ffmpeg version output: %q", line)
	}
	return strings.TrimSpace(line), nil
}

// RecordCommand builds the stream-copy invocation: read the live stream with
// reconnect tolerance, copy it without re-encoding into an FLV container at
// outputPath, overwriting any existing file. The command is not started.
func (e *Encoder) RecordCommand(streamURL, outputPath string) *exec.Cmd {
	args := recordArgs(streamURL, outputPath)
	cmd := exec.Command(e.path, args...)
	// Encoder progress goes to stderr; stdout carries nothing useful.
	cmd.Stdout = nil
	return cmd
}

func recordArgs(streamURL, outputPath string) []string {
	return []string{
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "30",
		"-i", streamURL,
		"-c", "copy",
		"-f", "flv",
		"-y",
		outputPath,
	}
}
