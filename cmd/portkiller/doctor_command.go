package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"portkiller/internal/deps"
	"portkiller/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check paths, external tools, and the remote classifier",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			var creds preflight.CredentialSource
			if !offline {
				creds = ctx.credentials()
			}
			results := preflight.RunAll(cmd.Context(), cfg, creds)

			failures := 0
			fmt.Fprintln(out, renderSectionHeader("Storage", colorize))
			for _, result := range results {
				kind := statusOK
				if !result.Passed {
					kind = statusError
					failures++
				}
				fmt.Fprintln(out, renderStatusLine(result.Name, kind, result.Detail, colorize))
			}
			if !cfg.Learning.Enabled {
				fmt.Fprintln(out, renderStatusLine("Remote learning", statusInfo, "disabled", colorize))
			} else if offline {
				fmt.Fprintln(out, renderStatusLine("Remote learning", statusInfo, "skipped (--offline)", colorize))
			}

			fmt.Fprintln(out)
			fmt.Fprintln(out, renderSectionHeader("Tools ("+runtime.GOOS+")", colorize))
			statuses := preflight.CheckSystemDeps(cfg)
			for _, status := range statuses {
				fmt.Fprintln(out, renderStatusLine(status.Name, dependencyKind(status), dependencyDetail(status), colorize))
			}
			missing := deps.MissingRequired(statuses)

			if failures > 0 || len(missing) > 0 {
				return fmt.Errorf("doctor found %d failed check(s) and %d missing required tool(s)", failures, len(missing))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Skip the credential and ICA reachability checks")
	return cmd
}

func dependencyKind(status deps.Status) statusKind {
	switch {
	case status.Available:
		return statusOK
	case status.Optional:
		return statusWarn
	default:
		return statusError
	}
}

func dependencyDetail(status deps.Status) string {
	if status.Available {
		return status.Path
	}
	if status.Description != "" {
		return status.Detail + " (" + status.Description + ")"
	}
	return status.Detail
}
