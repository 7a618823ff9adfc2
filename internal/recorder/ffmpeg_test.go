package recorder

import (
	"reflect"
	"strings"
	"testing"
)

func TestRecordArgs(t *testing.T) {
	got := recordArgs("https://cdn.example.com/live.flv", "/tmp/out.flv")
	want := []string{
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "30",
		"-i", "https://cdn.example.com/live.flv",
		"-c", "copy",
		"-f", "flv",
		"-y",
		"/tmp/out.flv",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("recordArgs() = %v, want %v", got, want)
	}
}

func TestRecordCommand(t *testing.T) {
	e := NewEncoder("/opt/ffmpeg/bin/ffmpeg")
	cmd := e.RecordCommand("https://cdn.example.com/live.flv", "/tmp/out.flv")

	if cmd.Path != "/opt/ffmpeg/bin/ffmpeg" && cmd.Args[0] != "/opt/ffmpeg/bin/ffmpeg" {
		t.Errorf("command binary = %q, want the explicit path", cmd.Args[0])
	}
	if cmd.Process != nil {
		t.Error("RecordCommand() must not start the process")
	}
	if cmd.Stdout != nil {
		t.Error("encoder stdout should be discarded")
	}

	joined := strings.Join(cmd.Args, " ")
	for _, fragment := range []string{"-c copy", "-f flv", "-y", "-reconnect 1"} {
		if !strings.Contains(joined, fragment) {
			t.Errorf("command %q missing %q", joined, fragment)
		}
	}
}

func TestEncoder_ExplicitPathWins(t *testing.T) {
	e := NewEncoder("/custom/ffmpeg")
	if e.Path() != "/custom/ffmpeg" {
		t.Errorf("Path() = %q, want /custom/ffmpeg", e.Path())
	}
}

func TestEncoder_VersionFailsForMissingBinary(t *testing.T) {
	e := NewEncoder("/nonexistent/ffmpeg-binary")
	if _, err := e.Version(); err == nil {
		t.Error("Version() should fail for a missing binary")
	}
}
