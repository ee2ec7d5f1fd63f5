package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"portkiller/internal/fileutil"
	"portkiller/internal/knowledge"
)

func newKnowledgeCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "knowledge",
		Aliases: []string{"kb"},
		Short:   "Inspect and maintain the knowledge file",
	}
	cmd.AddCommand(newKnowledgeListCommand(ctx))
	cmd.AddCommand(newKnowledgeShowCommand(ctx))
	cmd.AddCommand(newKnowledgeStatsCommand(ctx))
	cmd.AddCommand(newKnowledgeExportCommand(ctx))
	cmd.AddCommand(newKnowledgeCleanupCommand(ctx))
	cmd.AddCommand(newKnowledgeForgetCommand(ctx))
	return cmd
}

func newKnowledgeListCommand(ctx *commandContext) *cobra.Command {
	var pending bool
	var source string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List known processes (or pending fingerprints)",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			store, err := ctx.openStore(logger)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if pending {
				items := store.Pending()
				if jsonOut {
					return writeJSON(cmd, items)
				}
				if len(items) == 0 {
					fmt.Fprintln(out, "No pending fingerprints")
					return nil
				}
				rows := make([][]string, 0, len(items))
				for _, p := range items {
					rows = append(rows, []string{
						shortKey(p.Fingerprint.HashKey()),
						p.Fingerprint.String(),
						fmt.Sprintf("%d", p.Sightings),
						relativeTime(p.FirstSeen),
						relativeTime(p.LastSeen),
					})
				}
				fmt.Fprintln(out, renderTable([]column{
					col("Key"), wideCol("Fingerprint", 60), numCol("Seen"), col("First"), col("Last"),
				}, rows))
				return nil
			}

			var filter knowledge.Provenance
			if strings.TrimSpace(source) != "" {
				filter, err = knowledge.ParseProvenance(source)
				if err != nil {
					return err
				}
			}
			entries := store.Entries()
			if filter != "" {
				kept := entries[:0]
				for _, e := range entries {
					if e.Source == filter {
						kept = append(kept, e)
					}
				}
				entries = kept
			}
			if jsonOut {
				return writeJSON(cmd, entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "No entries")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{
					shortKey(e.HashKey()),
					e.DisplayName,
					string(e.Category),
					e.Fingerprint.Command,
					formatPort(e.Fingerprint.DefaultPort),
					string(e.Source),
					formatConfidence(e.Confidence),
				})
			}
			fmt.Fprintln(out, renderTable([]column{
				col("Key"), wideCol("Name", 40), col("Category"), wideCol("Command", 30),
				numCol("Port"), col("Source"), numCol("Conf"),
			}, rows))
			return nil
		},
	}

	cmd.Flags().BoolVar(&pending, "pending", false, "List pending fingerprints instead of entries")
	cmd.Flags().StringVar(&source, "source", "", "Only show entries from this source (builtin, apilearned, heuristic)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print JSON")
	return cmd
}

func newKnowledgeShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "show KEY",
		Short: "Show one entry or pending fingerprint by key or key prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			store, err := ctx.openStore(logger)
			if err != nil {
				return err
			}
			key, err := store.ResolveKey(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if entry, ok := store.EntryByKey(key); ok {
				if jsonOut {
					return writeJSON(cmd, entry)
				}
				writeEntryDetails(out, entry)
				return nil
			}
			p, ok := store.PendingByKey(key)
			if !ok {
				return fmt.Errorf("%w: %s", knowledge.ErrKeyNotFound, key)
			}
			if jsonOut {
				return writeJSON(cmd, p)
			}
			fmt.Fprintln(out, "Pending fingerprint")
			fmt.Fprintf(out, "Fingerprint: %s\n", p.Fingerprint)
			fmt.Fprintf(out, "Key:         %s\n", key)
			fmt.Fprintf(out, "Sightings:   %d\n", p.Sightings)
			fmt.Fprintf(out, "First seen:  %s\n", relativeTime(p.FirstSeen))
			fmt.Fprintf(out, "Last seen:   %s\n", relativeTime(p.LastSeen))
			fmt.Fprintf(out, "Project:     %s\n", valueOrDash(p.Context.ProjectName))
			fmt.Fprintf(out, "Container:   %s\n", valueOrDash(p.Context.ContainerName))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print JSON")
	return cmd
}

func newKnowledgeStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize the knowledge file",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			store, err := ctx.openStore(logger)
			if err != nil {
				return err
			}
			stats := store.Stats()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "File:    %s\n", store.Path())
			fmt.Fprintf(out, "Version: %d\n", stats.Version)
			fmt.Fprintf(out, "Entries: %d\n", stats.Entries)
			fmt.Fprintf(out, "Pending: %d\n", stats.Pending)

			rows := make([][]string, 0, len(stats.BySource)+len(stats.ByCategory))
			for _, src := range []knowledge.Provenance{knowledge.ProvenanceBuiltin, knowledge.ProvenanceAPILearned, knowledge.ProvenanceHeuristic} {
				rows = append(rows, []string{"source", string(src), fmt.Sprintf("%d", stats.BySource[src])})
			}
			categories := make([]string, 0, len(stats.ByCategory))
			for cat := range stats.ByCategory {
				categories = append(categories, string(cat))
			}
			sort.Strings(categories)
			for _, cat := range categories {
				rows = append(rows, []string{"category", cat, fmt.Sprintf("%d", stats.ByCategory[knowledge.Category(cat)])})
			}
			fmt.Fprintln(out, renderTable([]column{col("Group"), col("Value"), numCol("Count")}, rows))
			return nil
		},
	}
}

func newKnowledgeExportCommand(ctx *commandContext) *cobra.Command {
	var format string
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the knowledge base as JSON or YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			store, err := ctx.openStore(logger)
			if err != nil {
				return err
			}
			data, err := encodeKnowledge(store.Snapshot(), format)
			if err != nil {
				return err
			}
			if strings.TrimSpace(output) == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := fileutil.WriteAtomic(output, data, 0o600, 0o755); err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d entries to %s\n", len(store.Entries()), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format (json or yaml)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file instead of stdout")
	return cmd
}

// encodeKnowledge renders kb in the requested format. YAML goes through the
// JSON form so field names match the knowledge file.
func encodeKnowledge(kb knowledge.KnowledgeBase, format string) ([]byte, error) {
	data, err := json.MarshalIndent(kb, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode knowledge: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		return append(data, '\n'), nil
	case "yaml", "yml":
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return nil, fmt.Errorf("encode knowledge: %w", err)
		}
		out, err := yaml.Marshal(generic)
		if err != nil {
			return nil, fmt.Errorf("encode knowledge as yaml: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported export format %q (want json or yaml)", format)
	}
}

func newKnowledgeCleanupCommand(ctx *commandContext) *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Drop pending fingerprints not seen recently",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			age := maxAge
			if age <= 0 {
				age = ctx.configValue().StalePendingAge()
			}
			var removed int
			err = ctx.withLockedStore(logger, func(store *knowledge.Store) error {
				removed = store.CleanupStalePending(age)
				if removed == 0 {
					return nil
				}
				return store.Save()
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d stale pending fingerprint(s) older than %s\n", removed, age)
			return nil
		},
	}
	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "Pending age limit (default from stale_pending_hours)")
	return cmd
}

func newKnowledgeForgetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "forget KEY",
		Short: "Remove an entry or pending fingerprint so it is learned again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			var key string
			err = ctx.withLockedStore(logger, func(store *knowledge.Store) error {
				resolved, err := store.ResolveKey(args[0])
				if err != nil {
					return err
				}
				key = resolved
				if !store.Forget(key) {
					return fmt.Errorf("%w: %s", knowledge.ErrKeyNotFound, key)
				}
				return store.Save()
			})
			if errors.Is(err, knowledge.ErrAmbiguousKey) {
				return fmt.Errorf("%w (use more characters)", err)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Forgot %s\n", key)
			return nil
		},
	}
}
