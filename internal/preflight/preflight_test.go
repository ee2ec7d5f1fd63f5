package preflight

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"portkiller/internal/config"
)

type stubCreds struct{ err error }

func (s stubCreds) Credential(context.Context) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "key", nil
}

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckCreatableDirectory(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "a", "b")
	result := CheckCreatableDirectory("test", missing)
	if !result.Passed || !strings.Contains(result.Detail, "will be created") {
		t.Fatalf("expected creatable dir to pass, got %+v", result)
	}
}

func TestCheckKnowledgeFile(t *testing.T) {
	dir := t.TempDir()
	missing := CheckKnowledgeFile(filepath.Join(dir, "none.json"))
	if !missing.Passed {
		t.Fatalf("missing file should pass: %s", missing.Detail)
	}

	good := filepath.Join(dir, "good.json")
	if err := os.WriteFile(good, []byte(`{"version":1,"entries":{},"pending_analysis":{}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if r := CheckKnowledgeFile(good); !r.Passed || !strings.Contains(r.Detail, "v1, 0 entries, 0 pending") {
		t.Fatalf("unexpected result %+v", r)
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("{"), 0o600); err != nil {
		t.Fatal(err)
	}
	if r := CheckKnowledgeFile(bad); r.Passed {
		t.Fatal("malformed file should fail")
	}
}

func TestCheckICA(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	if r := CheckICA(context.Background(), srv.URL); !r.Passed {
		t.Fatalf("any non-5xx answer should pass, got %s", r.Detail)
	}
	if r := CheckICA(context.Background(), ""); r.Passed {
		t.Fatal("expected failure for missing URL")
	}
}

func TestCheckICA_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if r := CheckICA(context.Background(), srv.URL); r.Passed {
		t.Fatal("expected failure for 502")
	}
}

func TestCheckCredential(t *testing.T) {
	if r := CheckCredential(context.Background(), stubCreds{}); !r.Passed {
		t.Fatalf("expected pass, got %s", r.Detail)
	}
	if r := CheckCredential(context.Background(), stubCreds{err: errors.New("setec down")}); r.Passed || !strings.Contains(r.Detail, "setec down") {
		t.Fatalf("unexpected result %+v", r)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil, nil); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_LocalOnly(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.KnowledgeFile = filepath.Join(dir, "knowledge.json")
	cfg.Paths.HistoryDB = filepath.Join(dir, "state", "history.db")
	cfg.Paths.LogDir = filepath.Join(dir, "logs")
	cfg.Learning.Enabled = false

	results := RunAll(context.Background(), &cfg, stubCreds{})
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	for _, r := range results {
		if !r.Passed {
			t.Errorf("check %q failed: %s", r.Name, r.Detail)
		}
	}
}

func TestRunAll_IncludesICAWhenLearning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.KnowledgeFile = filepath.Join(dir, "knowledge.json")
	cfg.Paths.HistoryDB = ""
	cfg.Paths.LogDir = ""
	cfg.Learning.Enabled = true
	cfg.Learning.ICAURL = srv.URL

	results := RunAll(context.Background(), &cfg, stubCreds{})
	names := make(map[string]bool)
	for _, r := range results {
		names[r.Name] = r.Passed
	}
	if passed, ok := names["ICA"]; !ok || !passed {
		t.Fatalf("expected passing ICA check, got %v", names)
	}
	if passed, ok := names["ICA service key"]; !ok || !passed {
		t.Fatalf("expected passing credential check, got %v", names)
	}
}

func TestCheckSystemDepsSetecOptionalWithEnvKey(t *testing.T) {
	t.Setenv(config.ServiceKeyEnv, "from-env")
	cfg := config.Default()
	for _, s := range CheckSystemDeps(&cfg) {
		if s.Name == "setec" && !s.Optional {
			t.Fatal("setec should be optional when the key is in the environment")
		}
	}
}
