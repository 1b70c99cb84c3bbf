package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bitplane/yt-mpv/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var online bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check dependencies, directories, credentials and the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			problems := 0

			var lines []string
			lines = append(lines, renderSectionHeader("Configuration", colorize)...)
			configPath := ctx.configPath
			if configPath == "" {
				configPath = "(defaults)"
			}
			lines = append(lines, renderStatusLine("Config file", statusInfo, configPath, colorize))
			lines = append(lines, renderStatusLine("Archive backend", statusInfo, cfg.Archive.Backend, colorize))
			lines = append(lines, renderStatusLine("Ledger driver", statusInfo, cfg.Ledger.Driver, colorize))

			lines = append(lines, "")
			lines = append(lines, renderSectionHeader("Dependencies", colorize)...)
			for _, dep := range preflight.CheckSystemDeps(cfg) {
				kind := statusOK
				detail := dep.Path
				if dep.Version != "" {
					detail = fmt.Sprintf("%s (%s)", dep.Path, dep.Version)
				}
				if !dep.Available {
					detail = dep.Detail
					kind = statusError
					if dep.Optional {
						kind = statusWarn
					} else {
						problems++
					}
				}
				lines = append(lines, renderStatusLine(dep.Name, kind, detail, colorize))
			}

			lines = append(lines, "")
			lines = append(lines, renderSectionHeader("Checks", colorize)...)
			for _, check := range preflight.RunAll(cmd.Context(), cfg, online) {
				kind := statusOK
				if !check.Passed {
					kind = statusError
					problems++
				}
				lines = append(lines, renderStatusLine(check.Name, kind, check.Detail, colorize))
			}

			fmt.Fprintln(out, strings.Join(lines, "\n"))
			if problems > 0 {
				return withExitCode(exitNegative, fmt.Errorf("doctor found %d problem(s)", problems))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&online, "online", false, "Also check that the archive service is reachable")
	return cmd
}
