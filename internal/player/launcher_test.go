package player_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bitplane/yt-mpv/internal/config"
	"github.com/bitplane/yt-mpv/internal/logging"
	"github.com/bitplane/yt-mpv/internal/player"
	"github.com/bitplane/yt-mpv/internal/testsupport"
	"github.com/bitplane/yt-mpv/internal/uri"
)

func TestArgsIncludeStartOffsetAndURL(t *testing.T) {
	launcher := player.New(config.Player{Binary: "mpv", Args: []string{"--force-window"}}, logging.NewNop())
	got := launcher.Args("https://example.com/v", 90*time.Second)
	want := []string{"--force-window", "--start=90", "https://example.com/v"}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Fatalf("args = %q, want %q", got, want)
	}
	if got := launcher.Args("https://example.com/v", 0); len(got) != 2 {
		t.Fatalf("expected no start flag without offset, got %q", got)
	}
}

func TestExtraArgsFollowConfiguredArgs(t *testing.T) {
	launcher := player.New(config.Player{Binary: "mpv", Args: []string{"--force-window"}}, logging.NewNop(),
		player.WithExtraArgs("--volume=50", " ", "--mute=yes"),
	)
	got := launcher.Args("https://example.com/v", 0)
	want := []string{"--force-window", "--volume=50", "--mute=yes", "https://example.com/v"}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Fatalf("args = %q, want %q", got, want)
	}
}

func TestLaunchReportsMissingPlayer(t *testing.T) {
	launcher := player.New(config.Player{Binary: "definitely-not-a-player"}, logging.NewNop())
	_, err := launcher.Launch(context.Background(), "https://example.com/v", uri.PlaybackOptions{})
	var launchErr *player.LaunchError
	if !errors.As(err, &launchErr) {
		t.Fatalf("expected LaunchError, got %v", err)
	}
	if launchErr.Kind != player.PlayerNotFound {
		t.Fatalf("expected PlayerNotFound, got %s", launchErr.Kind)
	}
}

func TestLaunchReportsSpawnFailure(t *testing.T) {
	dir := t.TempDir()
	notExecutable := filepath.Join(dir, "mpv")
	if err := os.WriteFile(notExecutable, []byte("not a program"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	launcher := player.New(config.Player{Binary: "mpv"}, logging.NewNop(),
		player.WithLookPath(func(string) (string, error) { return notExecutable, nil }),
	)
	_, err := launcher.Launch(context.Background(), "https://example.com/v", uri.PlaybackOptions{})
	var launchErr *player.LaunchError
	if !errors.As(err, &launchErr) || launchErr.Kind != player.SpawnFailed {
		t.Fatalf("expected SpawnFailed, got %v", err)
	}
}

func TestLaunchStartsDetachedPlayer(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	base := testsupport.BaseDir(cfg)
	record := filepath.Join(base, "args.txt")
	testsupport.WriteStub(t, base, "mpv", "#!/bin/sh\nprintf '%s\\n' \"$@\" > '"+record+"'\n")

	launcher := player.New(config.Player{Binary: "mpv", Args: []string{"--no-terminal"}}, logging.NewNop())
	proc, err := launcher.Launch(context.Background(), "https://example.com/v", uri.PlaybackOptions{Start: 5 * time.Second})
	if err != nil {
		t.Fatalf("Launch failed: %v", err)
	}
	if proc.PID <= 0 {
		t.Fatalf("expected a pid, got %d", proc.PID)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		data, err := os.ReadFile(record)
		if err == nil && strings.Count(string(data), "\n") == 3 {
			want := "--no-terminal\n--start=5\nhttps://example.com/v\n"
			if string(data) != want {
				t.Fatalf("player received %q, want %q", data, want)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("player stub never recorded its arguments (last read err: %v)", err)
		}
		time.Sleep(20 * time.Millisecond)
	}
}
