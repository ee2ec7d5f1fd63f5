package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"portkiller/internal/deps"
	"portkiller/internal/knowledge"
	"portkiller/internal/learning"
	"portkiller/internal/logging"
	"portkiller/internal/preflight"
)

const maxSightingLine = 1 << 20

// sightingLine is one line of learn input.
type sightingLine struct {
	Fingerprint *knowledge.Fingerprint    `json:"fingerprint"`
	Context     knowledge.AnalysisContext `json:"context"`
}

// fingerprint returns the explicit fingerprint, or one derived from the
// context's command, port and container prefix.
func (l sightingLine) fingerprint() knowledge.Fingerprint {
	if l.Fingerprint != nil && l.Fingerprint.Command != "" {
		return *l.Fingerprint
	}
	fp := knowledge.NewFingerprint(l.Context.Command)
	if l.Context.Port != 0 {
		fp = fp.WithPort(l.Context.Port)
	}
	if l.Context.ContainerPrefix != "" {
		fp = fp.WithContainerPrefix(l.Context.ContainerPrefix)
	}
	return fp
}

type learnStats struct {
	lines    atomic.Int64
	skipped  atomic.Int64
	promoted atomic.Int64
	learned  atomic.Int64
}

func newLearnCommand(ctx *commandContext) *cobra.Command {
	var inputPath string
	var metricsAddr string
	var noRemote bool
	var noEnrich bool

	cmd := &cobra.Command{
		Use:   "learn",
		Short: "Record process sightings and learn the ones seen often enough",
		Long: `Reads JSON lines of the form {"fingerprint":{...},"context":{...}} from
stdin (or --input) and records each sighting. Fingerprints that reach
learning.min_sightings are classified and written to the knowledge file.
On end of input the command waits for queued classifications to finish.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.Learning.Enabled {
				return errors.New("learning is disabled (set learning.enabled = true)")
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			var input io.ReadCloser = os.Stdin
			if strings.TrimSpace(inputPath) != "" && inputPath != "-" {
				f, err := os.Open(inputPath)
				if err != nil {
					return fmt.Errorf("open input: %w", err)
				}
				input = f
			} else if cmd.InOrStdin() != os.Stdin {
				input = io.NopCloser(cmd.InOrStdin())
			}
			defer input.Close()

			warnMissingProbes(logger, ctx)

			return ctx.withLockedStore(logger, func(store *knowledge.Store) error {
				return runLearn(cmd, ctx, logger, store, input, metricsAddr, noRemote, noEnrich)
			})
		},
	}

	cmd.Flags().StringVarP(&inputPath, "input", "i", "", "Read sightings from FILE instead of stdin")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on ADDR (e.g. 127.0.0.1:9464)")
	cmd.Flags().BoolVar(&noRemote, "no-remote", false, "Use heuristics only; never call the remote classifier")
	cmd.Flags().BoolVar(&noEnrich, "no-enrich", false, "Do not probe processes or containers for extra context")
	return cmd
}

func runLearn(cmd *cobra.Command, ctx *commandContext, logger *slog.Logger, store *knowledge.Store, input io.ReadCloser, metricsAddr string, noRemote, noEnrich bool) error {
	cfg := ctx.configValue()
	out := cmd.OutOrStdout()

	j, err := ctx.openJournal(cmd.Context())
	if err != nil {
		return err
	}
	defer j.Close()

	metrics := learning.NewMetrics()
	stats := &learnStats{}

	worker := learning.NewWorker(ctx.classifier(logger, noRemote),
		learning.WithRateLimit(cfg.RateLimit()),
		learning.WithWorkerLogger(logger),
		learning.WithWorkerMetrics(metrics))

	opts := []learning.CoordinatorOption{
		learning.WithPolicy(ctx.policy()),
		learning.WithRecorder(j, ctx.sessionID),
		learning.WithMetrics(metrics),
		learning.WithLogger(logger),
		learning.WithResultHook(func(res learning.Result, entry knowledge.KnowledgeEntry) {
			stats.learned.Add(1)
			fmt.Fprintf(out, "learned %s: %s (%s, %s, confidence %s)\n",
				entry.Fingerprint, entry.DisplayName, entry.Category, entry.Source, formatConfidence(entry.Confidence))
		}),
	}
	if !noEnrich {
		opts = append(opts, learning.WithEnricher(ctx.enricher(logger)))
	}
	coord := learning.NewCoordinator(store, worker, opts...)

	if removed, err := coord.Cleanup(cfg.StalePendingAge()); err != nil {
		logging.WarnWithContext(logger, "stale pending cleanup failed", "pending_cleanup_failed",
			logging.String(logging.FieldImpact, "stale pending entries remain until the next run"),
			logging.Error(err))
	} else if removed > 0 {
		fmt.Fprintf(out, "removed %d stale pending fingerprints\n", removed)
	}

	runCtx, stop := context.WithCancel(cmd.Context())
	defer stop()
	g, gctx := errgroup.WithContext(runCtx)

	// Unblocks a reader waiting on input once the run is over or interrupted.
	context.AfterFunc(gctx, func() { _ = input.Close() })

	g.Go(func() error {
		defer stop()
		return coord.Run(gctx)
	})
	g.Go(func() error {
		defer coord.Close()
		return readSightings(gctx, input, coord, logger, stats)
	})

	if addr := strings.TrimSpace(metricsAddr); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			logger.Info("serving metrics", logging.String("addr", addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	runErr := g.Wait()
	interrupted := cmd.Context().Err() != nil

	// Pending sighting counts only reach disk here unless something was learned.
	if err := store.Save(); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("save knowledge: %w", err))
	}

	fmt.Fprintf(out, "sightings: %d, skipped: %d, promoted: %d, learned: %d\n",
		stats.lines.Load()-stats.skipped.Load(), stats.skipped.Load(), stats.promoted.Load(), stats.learned.Load())
	if interrupted {
		fmt.Fprintf(out, "interrupted; %d queued classifications were abandoned\n", coord.InFlight())
		return nil
	}
	return runErr
}

func readSightings(ctx context.Context, input io.Reader, coord *learning.Coordinator, logger *slog.Logger, stats *learnStats) error {
	scanner := bufio.NewScanner(input)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSightingLine)

	lineNo := 0
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		lineNo++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		stats.lines.Add(1)

		var line sightingLine
		if err := json.Unmarshal([]byte(raw), &line); err != nil {
			stats.skipped.Add(1)
			logging.WarnWithContext(logger, "skipping malformed sighting", "sighting_decode_failed",
				logging.Int("line", lineNo),
				logging.String(logging.FieldErrorHint, `expected {"fingerprint":{...},"context":{...}}`),
				logging.Error(err))
			continue
		}
		fp := line.fingerprint()
		if strings.TrimSpace(fp.Command) == "" {
			stats.skipped.Add(1)
			logging.WarnWithContext(logger, "skipping sighting without command", "sighting_invalid",
				logging.Int("line", lineNo))
			continue
		}
		if line.Context.Command == "" {
			line.Context.Command = fp.Command
		}

		outcome, err := coord.Observe(ctx, fp, line.Context)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		if outcome == knowledge.OutcomePromoted {
			stats.promoted.Add(1)
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("read sightings: %w", err)
	}
	return nil
}

func warnMissingProbes(logger *slog.Logger, ctx *commandContext) {
	statuses := preflight.CheckSystemDeps(ctx.configValue())
	for _, name := range deps.MissingRequired(statuses) {
		logging.WarnWithContext(logger, "required command not found", "dependency_missing",
			logging.String("command", name),
			logging.String(logging.FieldErrorHint, "install it or run `portkiller doctor` for details"),
			logging.String(logging.FieldImpact, "context enrichment or remote classification may be skipped"))
	}
}
