package deps

import (
	"os"
	"path/filepath"
	"testing"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := writeScript(t, binDir, "present", "#!/bin/sh\nexit 0\n")
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Unset", Command: "  "},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}

	if !results[0].Available {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[0].Path != present {
		t.Fatalf("expected resolved path %q, got %q", present, results[0].Path)
	}
	if results[0].Detail != "" {
		t.Fatalf("unexpected detail for available dependency: %s", results[0].Detail)
	}

	if results[1].Available {
		t.Fatalf("expected missing binary to be unavailable")
	}
	if results[1].Detail == "" {
		t.Fatalf("expected detail message for missing binary")
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}

	if results[2].Available || results[2].Detail != "command not configured" {
		t.Fatalf("expected unconfigured command to fail, got %#v", results[2])
	}
}

func TestCheckBinariesProbesVersion(t *testing.T) {
	binDir := t.TempDir()
	mpv := writeScript(t, binDir, "mpv", "#!/bin/sh\necho\necho 'mpv 0.38.0 Copyright © 2000-2024 mpv/MPlayer/mplayer2 projects'\necho 'built on ...'\n")

	results := CheckBinaries([]Requirement{{Name: "mpv", Command: mpv, VersionArgs: []string{"--version"}}})
	if got := results[0].Version; got != "mpv 0.38.0 Copyright © 2000-2024 mpv/MPlayer/mplayer2 projects" {
		t.Fatalf("unexpected version %q", got)
	}
}

func TestProbeVersionFailure(t *testing.T) {
	binDir := t.TempDir()
	broken := writeScript(t, binDir, "broken", "#!/bin/sh\nexit 3\n")
	if got := ProbeVersion(broken, "--version"); got != "" {
		t.Fatalf("expected empty version, got %q", got)
	}
}

func TestMissingIgnoresOptional(t *testing.T) {
	statuses := []Status{
		{Name: "mpv", Available: true},
		{Name: "yt-dlp", Available: false},
		{Name: "notify-send", Available: false, Optional: true},
	}
	missing := Missing(statuses)
	if len(missing) != 1 || missing[0].Name != "yt-dlp" {
		t.Fatalf("unexpected missing set %#v", missing)
	}
}
