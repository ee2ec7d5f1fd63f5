package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"portkiller/internal/journal"
	"portkiller/internal/knowledge"
	"portkiller/internal/learning"
	"portkiller/internal/logging"
	"portkiller/internal/services"
)

type classifyOptions struct {
	command   string
	port      uint16
	project   string
	projectID string
	container string
	prefix    string
	pid       uint32
	noRemote  bool
	fresh     bool
	save      bool
	jsonOut   bool
}

func (o classifyOptions) fingerprint() knowledge.Fingerprint {
	fp := knowledge.NewFingerprint(o.command)
	if o.port != 0 {
		fp = fp.WithPort(o.port)
	}
	if o.projectID != "" {
		fp = fp.WithProjectHash(o.projectID)
	}
	if o.prefix != "" {
		fp = fp.WithContainerPrefix(o.prefix)
	}
	return fp
}

func (o classifyOptions) context() knowledge.AnalysisContext {
	return knowledge.AnalysisContext{
		Command:         o.command,
		Port:            o.port,
		ProjectName:     o.project,
		ContainerName:   o.container,
		ContainerPrefix: o.prefix,
		PID:             o.pid,
	}
}

type classifyOutput struct {
	Known bool                     `json:"known"`
	Entry knowledge.KnowledgeEntry `json:"entry"`
	Error string                   `json:"remote_error,omitempty"`
}

func newClassifyCommand(ctx *commandContext) *cobra.Command {
	var opts classifyOptions

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify a single process now",
		Long: `Looks the process up in the knowledge file and, when it is unknown (or
--fresh is given), classifies it immediately without waiting for more
sightings. The result is journaled; --save also stores it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.command = strings.TrimSpace(opts.command)
			if opts.command == "" {
				return fmt.Errorf("--command is required")
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			fp := opts.fingerprint()

			store, err := ctx.openStore(logger)
			if err != nil {
				return err
			}
			if entry, ok := store.Lookup(fp); ok && !opts.fresh {
				return printClassification(cmd, classifyOutput{Known: true, Entry: entry}, opts.jsonOut)
			}

			actx := opts.context()
			ctx.enricher(logger).Enrich(cmd.Context(), &actx)

			worker := learning.NewWorker(ctx.classifier(logger, opts.noRemote), learning.WithWorkerLogger(logger))
			res := worker.Classify(cmd.Context(), learning.Request{Fingerprint: fp, Context: actx})

			var entry knowledge.KnowledgeEntry
			if opts.save {
				err := ctx.withLockedStore(logger, func(locked *knowledge.Store) error {
					entry = locked.StoreResult(fp, res.Response, res.Source)
					return locked.Save()
				})
				if err != nil {
					return fmt.Errorf("save result: %w", err)
				}
			} else {
				entry = knowledge.NewMemory().StoreResult(fp, res.Response, res.Source)
			}

			recordClassification(cmd, ctx, res, entry)

			output := classifyOutput{Entry: entry}
			if res.RemoteErr != nil {
				output.Error = res.RemoteErr.Error()
			}
			return printClassification(cmd, output, opts.jsonOut)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.command, "command", "", "Process command name (required)")
	flags.Uint16Var(&opts.port, "port", 0, "Listening port")
	flags.StringVar(&opts.project, "project", "", "Project name")
	flags.StringVar(&opts.projectID, "project-hash", "", "Project hash used in the fingerprint")
	flags.StringVar(&opts.container, "container", "", "Docker container name")
	flags.StringVar(&opts.prefix, "prefix", "", "Container name prefix (compose project)")
	flags.Uint32Var(&opts.pid, "pid", 0, "Process id to probe for more context")
	flags.BoolVar(&opts.noRemote, "no-remote", false, "Use heuristics only")
	flags.BoolVar(&opts.fresh, "fresh", false, "Classify even when the process is already known")
	flags.BoolVar(&opts.save, "save", false, "Store the result in the knowledge file")
	flags.BoolVar(&opts.jsonOut, "json", false, "Print JSON")
	return cmd
}

func recordClassification(cmd *cobra.Command, ctx *commandContext, res learning.Result, entry knowledge.KnowledgeEntry) {
	logger, _ := ctx.ensureLogger()
	j, err := ctx.openJournal(cmd.Context())
	if err != nil {
		logging.WarnWithContext(logger, "history unavailable", "journal_open_failed",
			logging.String(logging.FieldImpact, "classification not recorded in history"),
			logging.Error(err))
		return
	}
	defer j.Close()

	rec := journal.Record{
		SessionID:   ctx.sessionID,
		HashKey:     entry.HashKey(),
		Command:     entry.Fingerprint.Command,
		DisplayName: entry.DisplayName,
		Category:    string(entry.Category),
		Source:      string(entry.Source),
		Confidence:  entry.Confidence,
		Error:       services.FailureKind(res.RemoteErr),
		Duration:    res.Duration,
	}
	if entry.Fingerprint.DefaultPort != nil {
		rec.Port = *entry.Fingerprint.DefaultPort
	}
	if _, err := j.Record(cmd.Context(), rec); err != nil {
		logging.WarnWithContext(logger, "failed to journal classification", "journal_write_failed",
			logging.String(logging.FieldImpact, "classification not recorded in history"),
			logging.Error(err))
	}
}

func printClassification(cmd *cobra.Command, output classifyOutput, jsonOut bool) error {
	if jsonOut {
		return writeJSON(cmd, output)
	}
	out := cmd.OutOrStdout()
	if output.Known {
		fmt.Fprintln(out, "Known process")
	}
	writeEntryDetails(out, output.Entry)
	if output.Error != "" {
		fmt.Fprintf(out, "Remote error: %s\n", output.Error)
	}
	return nil
}
