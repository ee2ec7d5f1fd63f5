package learning

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"portkiller/internal/journal"
	"portkiller/internal/knowledge"
	"portkiller/internal/logging"
	"portkiller/internal/services"
)

// ErrClosed is returned by Observe once the coordinator stopped accepting work.
var ErrClosed = errors.New("coordinator closed")

// Enricher adds detail to a context before it is classified.
type Enricher interface {
	Enrich(ctx context.Context, actx *knowledge.AnalysisContext)
}

// Recorder stores classification history.
type Recorder interface {
	Record(ctx context.Context, rec journal.Record) (int64, error)
}

// Coordinator owns the knowledge store on behalf of the learning pipeline.
// Sightings come in through Observe, promoted fingerprints go to the worker,
// and results are applied back to the store by a single goroutine.
type Coordinator struct {
	store     *knowledge.Store
	worker    *Worker
	policy    knowledge.Policy
	enricher  Enricher
	recorder  Recorder
	sessionID string
	metrics   *Metrics
	logger    *slog.Logger
	onResult  func(Result, knowledge.KnowledgeEntry)

	requests chan Request
	results  chan Result

	// mu guards inflight and orders sighting updates against stored results.
	mu       sync.Mutex
	inflight map[string]struct{}

	// sendMu is held for reading while sending on requests and for writing
	// while closing it.
	sendMu sync.RWMutex
	closed bool
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithPolicy sets the promotion policy.
func WithPolicy(p knowledge.Policy) CoordinatorOption {
	return func(c *Coordinator) { c.policy = p }
}

// WithEnricher enriches promoted contexts before they reach the worker.
func WithEnricher(e Enricher) CoordinatorOption {
	return func(c *Coordinator) { c.enricher = e }
}

// WithRecorder journals every applied result under sessionID.
func WithRecorder(r Recorder, sessionID string) CoordinatorOption {
	return func(c *Coordinator) {
		c.recorder = r
		c.sessionID = sessionID
	}
}

// WithMetrics records pipeline activity in m.
func WithMetrics(m *Metrics) CoordinatorOption {
	return func(c *Coordinator) { c.metrics = m }
}

// WithLogger sets the coordinator logger.
func WithLogger(logger *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logging.NewComponentLogger(logger, "learning")
		}
	}
}

// WithResultHook is called after each result is stored.
func WithResultHook(fn func(Result, knowledge.KnowledgeEntry)) CoordinatorOption {
	return func(c *Coordinator) { c.onResult = fn }
}

// NewCoordinator wires store and worker together. Call Run to start
// processing and Close once no more sightings will arrive.
func NewCoordinator(store *knowledge.Store, worker *Worker, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		store:    store,
		worker:   worker,
		policy:   knowledge.DefaultPolicy(),
		logger:   logging.NewComponentLogger(logging.NewNop(), "learning"),
		inflight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	buffer := c.policy.MaxPending
	if buffer <= 0 {
		buffer = 1
	}
	c.requests = make(chan Request, buffer)
	c.results = make(chan Result, buffer)
	c.metrics.setPending(c.store.Stats().Pending)
	return c
}

// Run processes requests until Close is called and all queued work has been
// applied, or until ctx is cancelled. Results already produced are still
// applied after cancellation.
func (c *Coordinator) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := c.worker.Run(gctx, c.requests, c.results)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		applyCtx := context.WithoutCancel(ctx)
		for res := range c.results {
			c.apply(applyCtx, res)
		}
		return nil
	})
	return g.Wait()
}

// Close stops accepting sightings. Run returns once queued work drains.
func (c *Coordinator) Close() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.requests)
}

// Observe records one sighting. When the fingerprint is promoted and not
// already queued, its context is enriched and handed to the worker.
func (c *Coordinator) Observe(ctx context.Context, fp knowledge.Fingerprint, actx knowledge.AnalysisContext) (knowledge.SightingOutcome, error) {
	key := fp.HashKey()

	// The sighting and the in-flight claim share c.mu with apply, so a result
	// landing in between can never leave a known fingerprint queued again.
	c.mu.Lock()
	promoted, outcome := c.store.RecordSightingOutcome(fp, actx, c.policy)
	_, busy := c.inflight[key]
	if outcome == knowledge.OutcomePromoted && !busy {
		c.inflight[key] = struct{}{}
	}
	c.mu.Unlock()

	c.metrics.observeSighting(outcome)
	logger := c.logger.With(logging.Args(logging.ProcessAttrs(key, fp.Command)...)...)

	switch outcome {
	case knowledge.OutcomeDropped:
		logging.WarnWithContext(logger, "pending map full; sighting dropped", "pending_capacity",
			logging.String(logging.FieldErrorHint, "raise learning.max_pending or run knowledge cleanup"),
			logging.String(logging.FieldImpact, "process will not be learned until space frees up"))
		return outcome, nil
	case knowledge.OutcomeTracked:
		c.metrics.setPending(c.store.Stats().Pending)
		logger.Debug("tracking new fingerprint")
		return outcome, nil
	case knowledge.OutcomePromoted:
	default:
		return outcome, nil
	}

	if busy {
		c.metrics.observeDuplicate()
		logger.Debug("classification already queued")
		return outcome, nil
	}

	if c.enricher != nil {
		c.enricher.Enrich(logging.WithFingerprint(ctx, key, fp.Command), &promoted)
	}

	logger.Info("fingerprint promoted for classification",
		logging.Args(logging.DecisionAttrs("promotion", "queued", "min_sightings reached")...)...)

	if err := c.enqueue(ctx, Request{Fingerprint: fp, Context: promoted}); err != nil {
		c.release(key)
		return outcome, err
	}
	return outcome, nil
}

func (c *Coordinator) enqueue(ctx context.Context, req Request) error {
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.requests <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) release(key string) {
	c.mu.Lock()
	delete(c.inflight, key)
	c.mu.Unlock()
}

// InFlight reports how many fingerprints are queued or being classified.
func (c *Coordinator) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}

func (c *Coordinator) apply(ctx context.Context, res Result) {
	key := res.Fingerprint.HashKey()
	c.mu.Lock()
	entry := c.store.StoreResult(res.Fingerprint, res.Response, res.Source)
	delete(c.inflight, key)
	c.mu.Unlock()
	c.metrics.observeResult(res)

	logger := c.logger.With(logging.Args(logging.ProcessAttrs(key, res.Fingerprint.Command)...)...)

	if err := c.store.Save(); err != nil {
		logging.WarnWithContext(logger, "failed to save knowledge base", "knowledge_save_failed",
			logging.String(logging.FieldErrorHint, "check permissions on the knowledge file directory"),
			logging.String(logging.FieldImpact, "learned entry kept in memory only"),
			logging.Error(err))
	}

	if c.recorder != nil {
		rec := journal.Record{
			SessionID:   c.sessionID,
			HashKey:     key,
			Command:     res.Fingerprint.Command,
			DisplayName: entry.DisplayName,
			Category:    string(entry.Category),
			Source:      string(entry.Source),
			Confidence:  entry.Confidence,
			Error:       services.FailureKind(res.RemoteErr),
			Duration:    res.Duration,
		}
		if res.Fingerprint.DefaultPort != nil {
			rec.Port = *res.Fingerprint.DefaultPort
		}
		if _, err := c.recorder.Record(ctx, rec); err != nil {
			logging.WarnWithContext(logger, "failed to journal classification", "journal_write_failed",
				logging.String(logging.FieldImpact, "history will be missing this entry"),
				logging.Error(err))
		}
	}

	c.metrics.setPending(c.store.Stats().Pending)
	attrs := logging.ClassificationAttrs(entry.DisplayName, string(entry.Category), string(entry.Source), entry.Confidence)
	logger.Info("learned process", logging.Args(append(attrs, logging.Duration("duration", res.Duration))...)...)

	if c.onResult != nil {
		c.onResult(res, entry)
	}
}

// Cleanup removes pending fingerprints not seen within maxAge and saves the
// store when anything was removed.
func (c *Coordinator) Cleanup(maxAge time.Duration) (int, error) {
	removed := c.store.CleanupStalePending(maxAge)
	c.metrics.setPending(c.store.Stats().Pending)
	if removed == 0 {
		return 0, nil
	}
	c.logger.Info("removed stale pending fingerprints", logging.Int("removed", removed))
	if err := c.store.Save(); err != nil {
		return removed, err
	}
	return removed, nil
}
