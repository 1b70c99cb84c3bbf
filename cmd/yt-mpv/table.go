package main

import (
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/bitplane/yt-mpv/internal/ledger"
)

const lastErrorWidth = 60

// renderRecords draws ledger records as a rounded table, newest first as
// returned by the store.
func renderRecords(records []ledger.Record, colorize bool, now time.Time) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.Style().Format.Header = text.FormatDefault
	tw.AppendHeader(table.Row{"URL", "Status", "Attempts", "Remote ID", "Updated", "Last Error"})

	for _, record := range records {
		tw.AppendRow(table.Row{
			string(record.URL),
			colorStatus(record.Status, colorize),
			strconv.Itoa(record.Attempts),
			record.RemoteID,
			humanize.RelTime(record.UpdatedAt, now, "ago", "from now"),
			record.LastError,
		})
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Attempts", Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Name: "Last Error", WidthMax: lastErrorWidth, WidthMaxEnforcer: text.Trim},
	})
	return tw.Render()
}

func colorStatus(status ledger.Status, colorize bool) string {
	label := statusLabel(status)
	if !colorize {
		return label
	}
	switch status {
	case ledger.StatusSucceeded:
		return text.FgGreen.Sprint(label)
	case ledger.StatusInProgress:
		return text.FgYellow.Sprint(label)
	case ledger.StatusFailed:
		return text.FgRed.Sprint(label)
	default:
		return label
	}
}
