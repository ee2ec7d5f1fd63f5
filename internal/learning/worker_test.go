package learning

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"portkiller/internal/knowledge"
	"portkiller/internal/services"
)

type fakeClock struct {
	mu    sync.Mutex
	t     time.Time
	waits []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Wait(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.waits = append(c.waits, d)
	c.t = c.t.Add(d)
	c.mu.Unlock()
	return ctx.Err()
}

func (c *fakeClock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.waits...)
}

type fakeClassifier struct {
	mu        sync.Mutex
	available bool
	resp      knowledge.AnalysisResponse
	err       error
	calls     int
	before    func()
}

func (f *fakeClassifier) IsAvailable(context.Context) bool { return f.available }

func (f *fakeClassifier) Analyze(_ context.Context, _ knowledge.AnalysisContext) (knowledge.AnalysisResponse, error) {
	f.mu.Lock()
	f.calls++
	before := f.before
	f.mu.Unlock()
	if before != nil {
		before()
	}
	return f.resp, f.err
}

func (f *fakeClassifier) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func remoteAnswer() knowledge.AnalysisResponse {
	return knowledge.AnalysisResponse{
		DisplayName: "Shop API",
		Description: "Backend for the shop.",
		Category:    knowledge.CategoryBackend,
		Confidence:  0.9,
	}
}

func request(command string) Request {
	return Request{
		Fingerprint: knowledge.NewFingerprint(command),
		Context:     knowledge.AnalysisContext{Command: command},
	}
}

func TestWorkerClassifyPaths(t *testing.T) {
	tests := []struct {
		name       string
		classifier Classifier
		wantSource knowledge.Provenance
		wantErr    bool
		wantCalls  int
	}{
		{name: "no classifier", classifier: nil, wantSource: knowledge.ProvenanceHeuristic},
		{name: "unavailable", classifier: &fakeClassifier{available: false, resp: remoteAnswer()}, wantSource: knowledge.ProvenanceHeuristic},
		{name: "remote success", classifier: &fakeClassifier{available: true, resp: remoteAnswer()}, wantSource: knowledge.ProvenanceAPILearned, wantCalls: 1},
		{
			name:       "remote failure",
			classifier: &fakeClassifier{available: true, err: services.Wrap(services.ErrTimeout, "ica", "chat", "request failed", errors.New("deadline"))},
			wantSource: knowledge.ProvenanceHeuristic,
			wantErr:    true,
			wantCalls:  1,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := NewWorker(tc.classifier)
			res := w.Classify(context.Background(), request("vite"))
			if res.Source != tc.wantSource {
				t.Fatalf("source = %q, want %q", res.Source, tc.wantSource)
			}
			if (res.RemoteErr != nil) != tc.wantErr {
				t.Fatalf("remote err = %v", res.RemoteErr)
			}
			if tc.wantSource == knowledge.ProvenanceHeuristic {
				if res.Response.Confidence != knowledge.FallbackConfidence {
					t.Fatalf("fallback confidence = %v", res.Response.Confidence)
				}
				if res.Response.Category != knowledge.CategoryFrontend {
					t.Fatalf("fallback category = %q", res.Response.Category)
				}
			}
			if fc, ok := tc.classifier.(*fakeClassifier); ok && fc.Calls() != tc.wantCalls {
				t.Fatalf("analyze calls = %d, want %d", fc.Calls(), tc.wantCalls)
			}
		})
	}
}

func TestWorkerRateLimitFromEndOfPreviousCall(t *testing.T) {
	clock := newFakeClock()
	classifier := &fakeClassifier{available: true, resp: remoteAnswer(), before: func() { clock.Advance(time.Second) }}
	w := NewWorker(classifier,
		WithRateLimit(5*time.Second),
		WithWorkerClock(clock.Now, clock.Wait))

	requests := make(chan Request, 3)
	results := make(chan Result, 3)
	for _, cmd := range []string{"a", "b", "c"} {
		requests <- request(cmd)
	}
	close(requests)

	if err := w.Run(context.Background(), requests, results); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var got []Result
	for res := range results {
		got = append(got, res)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 results, got %d", len(got))
	}
	waits := clock.Waits()
	if len(waits) != 2 {
		t.Fatalf("first call should not wait; waits = %v", waits)
	}
	for _, d := range waits {
		if d != 5*time.Second {
			t.Fatalf("wait = %v, want 5s measured from end of previous call", d)
		}
	}
	if got[0].Duration != time.Second {
		t.Fatalf("duration = %v", got[0].Duration)
	}
}

func TestWorkerSkipsWaitWhenGapAlreadyElapsed(t *testing.T) {
	clock := newFakeClock()
	w := NewWorker(nil, WithRateLimit(2*time.Second), WithWorkerClock(clock.Now, clock.Wait))
	requests := make(chan Request)
	results := make(chan Result)
	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background(), requests, results) }()

	requests <- request("a")
	<-results
	clock.Advance(3 * time.Second)
	requests <- request("b")
	<-results
	close(requests)

	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if waits := clock.Waits(); len(waits) != 0 {
		t.Fatalf("unexpected waits %v", waits)
	}
	if _, ok := <-results; ok {
		t.Fatal("results should be closed")
	}
}

func TestWorkerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	_, results := Spawn(ctx, NewWorker(nil), 0)
	cancel()

	select {
	case _, ok := <-results:
		if ok {
			t.Fatal("expected closed result channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

func TestSpawnClosesResultsWhenInputCloses(t *testing.T) {
	requests, results := Spawn(context.Background(), NewWorker(nil, WithRateLimit(0)), 1)
	requests <- request("redis-server")
	close(requests)

	res, ok := <-results
	if !ok {
		t.Fatal("expected one result")
	}
	if res.Response.Category != knowledge.CategoryDatabase {
		t.Fatalf("category = %q", res.Response.Category)
	}
	if _, ok := <-results; ok {
		t.Fatal("results should be closed after input closes")
	}
}
