package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/bitplane/yt-mpv/internal/ledger"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

var statusKinds = map[statusKind]struct {
	label  string
	colors text.Colors
}{
	statusInfo:  {label: "INFO"},
	statusOK:    {label: "OK", colors: text.Colors{text.FgGreen}},
	statusWarn:  {label: "WARN", colors: text.Colors{text.FgYellow}},
	statusError: {label: "ERROR", colors: text.Colors{text.FgRed}},
}

const doctorLabelWidth = 20

var titleCaser = cases.Title(language.English)

// statusLabel renders a ledger status for people, e.g. "In Progress".
func statusLabel(status ledger.Status) string {
	return titleCaser.String(strings.ReplaceAll(string(status), "_", " "))
}

// renderStatusLine formats one doctor line: "  Label:   [OK] detail".
func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	style := statusKinds[kind]
	badge := "[" + style.label + "]"
	if message != "" {
		badge += " " + message
	}
	line := fmt.Sprintf("  %-*s %s", doctorLabelWidth, label+":", badge)
	if colorize && len(style.colors) > 0 {
		return style.colors.Sprint(line)
	}
	return line
}

func renderSectionHeader(title string, colorize bool) []string {
	line := "== " + strings.TrimSpace(title) + " =="
	if colorize {
		line = text.Colors{text.FgBlue, text.Bold}.Sprint(line)
	}
	return []string{line}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
