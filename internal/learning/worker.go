package learning

import (
	"context"
	"log/slog"
	"time"

	"portkiller/internal/knowledge"
	"portkiller/internal/logging"
	"portkiller/internal/services"
)

// Classifier is a remote classifier such as the ICA client.
type Classifier interface {
	IsAvailable(ctx context.Context) bool
	Analyze(ctx context.Context, actx knowledge.AnalysisContext) (knowledge.AnalysisResponse, error)
}

// Request asks the worker to classify one promoted fingerprint.
type Request struct {
	Fingerprint knowledge.Fingerprint
	Context     knowledge.AnalysisContext
}

// Result is the worker's answer for one Request. RemoteErr is set when the
// remote classifier failed and the heuristic answer was used instead.
type Result struct {
	Fingerprint knowledge.Fingerprint
	Context     knowledge.AnalysisContext
	Response    knowledge.AnalysisResponse
	Source      knowledge.Provenance
	RemoteErr   error
	Duration    time.Duration
}

// Worker classifies requests one at a time, spacing consecutive calls by at
// least the configured rate limit.
type Worker struct {
	classifier Classifier
	rateLimit  time.Duration
	logger     *slog.Logger
	metrics    *Metrics
	now        func() time.Time
	wait       func(ctx context.Context, d time.Duration) error
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithRateLimit sets the minimum gap between the end of one classification
// and the start of the next.
func WithRateLimit(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d >= 0 {
			w.rateLimit = d
		}
	}
}

// WithWorkerLogger sets the worker logger.
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logging.NewComponentLogger(logger, "learning-worker")
		}
	}
}

// WithWorkerMetrics records remote failures in m.
func WithWorkerMetrics(m *Metrics) WorkerOption {
	return func(w *Worker) {
		w.metrics = m
	}
}

// WithWorkerClock overrides the clock and the wait function (for tests).
func WithWorkerClock(now func() time.Time, wait func(ctx context.Context, d time.Duration) error) WorkerOption {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
		if wait != nil {
			w.wait = wait
		}
	}
}

// NewWorker builds a worker. A nil classifier means every request is
// answered by the heuristic fallback.
func NewWorker(classifier Classifier, opts ...WorkerOption) *Worker {
	w := &Worker{
		classifier: classifier,
		rateLimit:  5 * time.Second,
		logger:     logging.NewComponentLogger(logging.NewNop(), "learning-worker"),
		now:        time.Now,
		wait:       waitContext,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Spawn starts w on its own goroutine and returns the request and result
// channels. Closing the request channel or cancelling ctx stops the worker,
// which then closes the result channel.
func Spawn(ctx context.Context, w *Worker, buffer int) (chan<- Request, <-chan Result) {
	if buffer < 0 {
		buffer = 0
	}
	requests := make(chan Request, buffer)
	results := make(chan Result, buffer)
	go func() {
		_ = w.Run(ctx, requests, results)
	}()
	return requests, results
}

// Run drains requests until the channel is closed or ctx is done, then closes
// results. It returns ctx.Err() when stopped by cancellation.
func (w *Worker) Run(ctx context.Context, requests <-chan Request, results chan<- Result) error {
	defer close(results)

	var lastDone time.Time
	for {
		var req Request
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req, ok = <-requests:
			if !ok {
				w.logger.Debug("request channel closed; worker exiting")
				return nil
			}
		}

		if !lastDone.IsZero() && w.rateLimit > 0 {
			if remaining := w.rateLimit - w.now().Sub(lastDone); remaining > 0 {
				if err := w.wait(ctx, remaining); err != nil {
					return err
				}
			}
		}

		res := w.classify(ctx, req)
		lastDone = w.now()

		select {
		case results <- res:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Classify answers a single request without rate limiting.
func (w *Worker) Classify(ctx context.Context, req Request) Result {
	return w.classify(ctx, req)
}

func (w *Worker) classify(ctx context.Context, req Request) Result {
	start := w.now()
	res := Result{Fingerprint: req.Fingerprint, Context: req.Context}
	ctx = logging.WithFingerprint(ctx, req.Fingerprint.HashKey(), req.Context.Command)
	logger := logging.WithContext(ctx, w.logger)

	if w.classifier != nil && w.classifier.IsAvailable(ctx) {
		resp, err := w.classifier.Analyze(ctx, req.Context)
		if err == nil {
			res.Response = resp
			res.Source = knowledge.ProvenanceAPILearned
			res.Duration = w.now().Sub(start)
			logger.Info("remote classification",
				logging.Args(logging.ClassificationAttrs(resp.DisplayName, string(resp.Category), string(res.Source), resp.Confidence)...)...)
			return res
		}
		res.RemoteErr = err
		kind := services.FailureKind(err)
		w.metrics.observeRemoteFailure(kind)
		logging.WarnWithContext(logger, "remote classification failed; using heuristic", "remote_classification_failed",
			logging.String(logging.FieldErrorHint, "check ica_url and the ICA service key"),
			logging.String(logging.FieldImpact, "fingerprint learned with heuristic confidence"),
			logging.String("failure_kind", kind),
			logging.Error(err))
	} else {
		logger.Debug("remote classifier unavailable; using heuristic")
	}

	res.Response = knowledge.Fallback(req.Context)
	res.Source = knowledge.ProvenanceHeuristic
	res.Duration = w.now().Sub(start)
	return res
}

func waitContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
