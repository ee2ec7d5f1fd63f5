package learning

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"portkiller/internal/journal"
	"portkiller/internal/knowledge"
)

type fakeRecorder struct {
	mu      sync.Mutex
	records []journal.Record
}

func (r *fakeRecorder) Record(_ context.Context, rec journal.Record) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return int64(len(r.records)), nil
}

func (r *fakeRecorder) Records() []journal.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]journal.Record(nil), r.records...)
}

type fakeEnricher struct{}

func (fakeEnricher) Enrich(_ context.Context, actx *knowledge.AnalysisContext) {
	actx.WorkingDirectory = "/srv/shop"
}

func runCoordinator(t *testing.T, c *Coordinator) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()
	return done
}

func waitDone(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("coordinator did not finish")
	}
}

func TestCoordinatorLearnsAfterMinSightings(t *testing.T) {
	store := knowledge.NewMemory()
	recorder := &fakeRecorder{}
	metrics := NewMetrics()
	classifier := &fakeClassifier{available: true, resp: remoteAnswer()}
	var hooked []knowledge.KnowledgeEntry

	c := NewCoordinator(store, NewWorker(classifier, WithRateLimit(0)),
		WithPolicy(knowledge.Policy{MinSightings: 2, MaxPending: 10}),
		WithEnricher(fakeEnricher{}),
		WithRecorder(recorder, "session-1"),
		WithMetrics(metrics),
		WithResultHook(func(_ Result, e knowledge.KnowledgeEntry) { hooked = append(hooked, e) }),
	)
	done := runCoordinator(t, c)

	fp := knowledge.NewFingerprint("node").WithPort(4000).WithProjectHash("shop")
	actx := knowledge.AnalysisContext{Command: "node", Port: 4000, ProjectName: "shop"}
	ctx := context.Background()

	outcome, err := c.Observe(ctx, fp, actx)
	if err != nil || outcome != knowledge.OutcomeTracked {
		t.Fatalf("first sighting: %v %v", outcome, err)
	}
	outcome, err = c.Observe(ctx, fp, actx)
	if err != nil || outcome != knowledge.OutcomePromoted {
		t.Fatalf("second sighting: %v %v", outcome, err)
	}
	c.Close()
	waitDone(t, done)

	entry, ok := store.Lookup(fp)
	if !ok {
		t.Fatal("expected learned entry")
	}
	if entry.Source != knowledge.ProvenanceAPILearned || entry.DisplayName != "Shop API" {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if _, pending := store.PendingByKey(fp.HashKey()); pending {
		t.Fatal("pending entry should be removed once learned")
	}
	if c.InFlight() != 0 {
		t.Fatalf("in-flight = %d", c.InFlight())
	}

	recs := recorder.Records()
	if len(recs) != 1 {
		t.Fatalf("expected 1 journal record, got %d", len(recs))
	}
	if recs[0].SessionID != "session-1" || recs[0].Port != 4000 || recs[0].Source != "apilearned" || recs[0].Error != "" {
		t.Fatalf("unexpected journal record %+v", recs[0])
	}
	if len(hooked) != 1 {
		t.Fatalf("result hook calls = %d", len(hooked))
	}

	srv := httptest.NewServer(metrics.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	for _, want := range []string{
		"portkiller_learning_promotions_total 1",
		`portkiller_learning_classifications_total{source="apilearned"} 1`,
		`portkiller_learning_sightings_total{outcome="tracked"} 1`,
		"portkiller_learning_pending_entries 0",
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
}

func TestCoordinatorDeduplicatesInFlight(t *testing.T) {
	store := knowledge.NewMemory()
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	classifier := &fakeClassifier{available: true, resp: remoteAnswer(), before: func() {
		started <- struct{}{}
		<-release
	}}
	metrics := NewMetrics()
	c := NewCoordinator(store, NewWorker(classifier, WithRateLimit(0)),
		WithPolicy(knowledge.Policy{MinSightings: 2, MaxPending: 10}),
		WithMetrics(metrics))
	done := runCoordinator(t, c)

	fp := knowledge.NewFingerprint("python")
	actx := knowledge.AnalysisContext{Command: "python"}
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := c.Observe(ctx, fp, actx); err != nil {
			t.Fatalf("Observe: %v", err)
		}
	}
	<-started

	outcome, err := c.Observe(ctx, fp, actx)
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if outcome != knowledge.OutcomePromoted {
		t.Fatalf("third sighting outcome = %v", outcome)
	}
	if c.InFlight() != 1 {
		t.Fatalf("in-flight = %d, want 1", c.InFlight())
	}

	close(release)
	c.Close()
	waitDone(t, done)

	if classifier.Calls() != 1 {
		t.Fatalf("classifier calls = %d, want 1", classifier.Calls())
	}
}

func TestCoordinatorConcurrentSightingsLearnOnce(t *testing.T) {
	const (
		goroutines = 8
		perRoutine = 25
	)
	for round := 0; round < 50; round++ {
		store := knowledge.NewMemory()
		classifier := &fakeClassifier{available: true, resp: remoteAnswer()}
		c := NewCoordinator(store, NewWorker(classifier, WithRateLimit(0)),
			WithPolicy(knowledge.Policy{MinSightings: 2, MaxPending: 10}))
		done := runCoordinator(t, c)

		fp := knowledge.NewFingerprint("puma").WithPort(3000)
		actx := knowledge.AnalysisContext{Command: "puma", Port: 3000}
		var wg sync.WaitGroup
		for g := 0; g < goroutines; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < perRoutine; i++ {
					if _, err := c.Observe(context.Background(), fp, actx); err != nil {
						t.Errorf("Observe: %v", err)
						return
					}
				}
			}()
		}
		wg.Wait()
		c.Close()
		waitDone(t, done)

		if calls := classifier.Calls(); calls != 1 {
			t.Fatalf("round %d: classifier calls = %d, want 1", round, calls)
		}
		entry, ok := store.Lookup(fp)
		if !ok {
			t.Fatalf("round %d: fingerprint not learned", round)
		}
		// A second stored result would restart the count at 1.
		if entry.Sightings != goroutines*perRoutine {
			t.Fatalf("round %d: sightings = %d, want %d", round, entry.Sightings, goroutines*perRoutine)
		}
	}
}

func TestCoordinatorFallbackRecordsFailureKind(t *testing.T) {
	store := knowledge.NewMemory()
	recorder := &fakeRecorder{}
	classifier := &fakeClassifier{available: true, err: errors.New("boom")}
	c := NewCoordinator(store, NewWorker(classifier, WithRateLimit(0)),
		WithPolicy(knowledge.Policy{MinSightings: 1, MaxPending: 10}),
		WithRecorder(recorder, "s"))
	done := runCoordinator(t, c)

	fp := knowledge.NewFingerprint("mystery")
	for i := 0; i < 2; i++ {
		if _, err := c.Observe(context.Background(), fp, knowledge.AnalysisContext{Command: "mystery"}); err != nil {
			t.Fatalf("Observe: %v", err)
		}
	}
	c.Close()
	waitDone(t, done)

	entry, ok := store.Lookup(fp)
	if !ok || entry.Source != knowledge.ProvenanceHeuristic {
		t.Fatalf("expected heuristic entry, got %+v ok=%v", entry, ok)
	}
	recs := recorder.Records()
	if len(recs) != 1 || recs[0].Error != "other" {
		t.Fatalf("unexpected records %+v", recs)
	}
}

func TestCoordinatorObserveAfterClose(t *testing.T) {
	store := knowledge.NewMemory()
	c := NewCoordinator(store, NewWorker(nil),
		WithPolicy(knowledge.Policy{MinSightings: 1, MaxPending: 10}))
	c.Close()
	c.Close()

	fp := knowledge.NewFingerprint("deno")
	ctx := context.Background()
	if _, err := c.Observe(ctx, fp, knowledge.AnalysisContext{Command: "deno"}); err != nil {
		t.Fatalf("tracking should not need the worker: %v", err)
	}
	if _, err := c.Observe(ctx, fp, knowledge.AnalysisContext{Command: "deno"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if c.InFlight() != 0 {
		t.Fatal("failed enqueue should release the in-flight slot")
	}
}

func TestCoordinatorDropsAtCapacity(t *testing.T) {
	store := knowledge.NewMemory()
	metrics := NewMetrics()
	c := NewCoordinator(store, NewWorker(nil),
		WithPolicy(knowledge.Policy{MinSightings: 2, MaxPending: 1}),
		WithMetrics(metrics))
	ctx := context.Background()
	if _, err := c.Observe(ctx, knowledge.NewFingerprint("one"), knowledge.AnalysisContext{Command: "one"}); err != nil {
		t.Fatal(err)
	}
	outcome, err := c.Observe(ctx, knowledge.NewFingerprint("two"), knowledge.AnalysisContext{Command: "two"})
	if err != nil || outcome != knowledge.OutcomeDropped {
		t.Fatalf("outcome = %v err = %v", outcome, err)
	}
}

func TestCoordinatorCleanup(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := knowledge.NewMemory(knowledge.WithClock(clock))
	c := NewCoordinator(store, NewWorker(nil), WithPolicy(knowledge.Policy{MinSightings: 3, MaxPending: 10}))

	if _, err := c.Observe(context.Background(), knowledge.NewFingerprint("old"), knowledge.AnalysisContext{Command: "old"}); err != nil {
		t.Fatal(err)
	}
	now = now.Add(200 * time.Hour)

	removed, err := c.Cleanup(168 * time.Hour)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if store.Stats().Pending != 0 {
		t.Fatal("pending should be empty")
	}
}
