package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent classification attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := ctx.openJournal(cmd.Context())
			if err != nil {
				return err
			}
			defer j.Close()

			records, err := j.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, records)
			}

			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No classifications recorded")
				return nil
			}

			rows := make([][]string, 0, len(records))
			for _, rec := range records {
				port := "-"
				if rec.Port != 0 {
					port = fmt.Sprintf("%d", rec.Port)
				}
				rows = append(rows, []string{
					humanize.Time(rec.CreatedAt),
					rec.Command,
					port,
					rec.DisplayName,
					rec.Category,
					rec.Source,
					formatConfidence(rec.Confidence),
					valueOrDash(rec.Error),
				})
			}
			fmt.Fprintln(out, renderTable([]column{
				col("When"), col("Command"), numCol("Port"), wideCol("Name", 40),
				col("Category"), col("Source"), numCol("Conf"), col("Error"),
			}, rows))

			counts, err := j.CountBySource(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Totals: %s\n", formatCounts(counts))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of rows to show")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print JSON")
	return cmd
}

func formatCounts(counts map[string]int) string {
	if len(counts) == 0 {
		return "none"
	}
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s %s", humanize.Comma(int64(counts[key])), key))
	}
	return strings.Join(parts, ", ")
}
