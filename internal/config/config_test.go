package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"portkiller/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("PORTKILLER_ICA_URL", "")
	t.Setenv("PORTKILLER_SETEC_URL", "")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}
	if want := filepath.Join(tempHome, ".config", "portkiller", "config.toml"); resolved != want {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, want)
	}
	if want := filepath.Join(tempHome, ".portkiller-knowledge.json"); cfg.Paths.KnowledgeFile != want {
		t.Fatalf("unexpected knowledge file: got %q want %q", cfg.Paths.KnowledgeFile, want)
	}
	if want := filepath.Join(tempHome, ".local", "share", "portkiller", "history.db"); cfg.Paths.HistoryDB != want {
		t.Fatalf("unexpected history db: got %q want %q", cfg.Paths.HistoryDB, want)
	}
	if !cfg.Learning.Enabled {
		t.Fatal("expected learning enabled by default")
	}
	if cfg.MinSightings() != 2 || cfg.Learning.MaxPending != 20 {
		t.Fatalf("unexpected learning defaults: %+v", cfg.Learning)
	}
	if cfg.RateLimit() != 5*time.Second {
		t.Fatalf("unexpected rate limit: %s", cfg.RateLimit())
	}
	if cfg.RequestTimeout() != 30*time.Second {
		t.Fatalf("unexpected request timeout: %s", cfg.RequestTimeout())
	}
	if cfg.StalePendingAge() != 168*time.Hour {
		t.Fatalf("unexpected stale age: %s", cfg.StalePendingAge())
	}
	if cfg.Learning.ServiceName != "portkiller" || cfg.Learning.SecretName != "ica/service-key" {
		t.Fatalf("unexpected credential defaults: %+v", cfg.Learning)
	}
	if cfg.LockPath() != cfg.Paths.KnowledgeFile+".lock" {
		t.Fatalf("unexpected lock path %q", cfg.LockPath())
	}
}

func TestLoadEnvOverridesURLs(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("PORTKILLER_ICA_URL", " http://127.0.0.1:9000/ ")
	t.Setenv("PORTKILLER_SETEC_URL", "http://setec.local")

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Learning.ICAURL != "http://127.0.0.1:9000" {
		t.Fatalf("expected ICA URL from env, got %q", cfg.Learning.ICAURL)
	}
	if cfg.Learning.SetecURL != "http://setec.local" {
		t.Fatalf("expected setec URL from env, got %q", cfg.Learning.SetecURL)
	}
}

func TestLoadCustomFile(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("PORTKILLER_ICA_URL", "")

	path := filepath.Join(t.TempDir(), "config.toml")
	content := strings.Join([]string{
		"[paths]",
		`knowledge_file = "~/kb.json"`,
		`log_dir = ""`,
		"[learning]",
		"min_sightings = 3",
		"max_pending = 5",
		"rate_limit_secs = 0",
		"[logging]",
		`format = "JSON"`,
		`level = "DEBUG"`,
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected existing config at %q, got %q exists=%v", path, resolved, exists)
	}
	if cfg.Paths.KnowledgeFile != filepath.Join(tempHome, "kb.json") {
		t.Fatalf("unexpected knowledge file %q", cfg.Paths.KnowledgeFile)
	}
	if cfg.Paths.LogDir != "" {
		t.Fatalf("expected empty log dir, got %q", cfg.Paths.LogDir)
	}
	if cfg.MinSightings() != 3 || cfg.Learning.MaxPending != 5 || cfg.RateLimit() != 0 {
		t.Fatalf("unexpected learning config %+v", cfg.Learning)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging config %+v", cfg.Logging)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("PORTKILLER_ICA_URL", "")
	t.Setenv("PORTKILLER_SETEC_URL", "")

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "min sightings", content: "[learning]\nmin_sightings = 0\n", want: "min_sightings"},
		{name: "negative pending", content: "[learning]\nmax_pending = -1\n", want: "max_pending"},
		{name: "bad url", content: "[learning]\nica_url = \"ftp://example\"\n", want: "ica_url"},
		{name: "bad level", content: "[logging]\nlevel = \"loud\"\n", want: "logging.level"},
		{name: "unknown key", content: "[learning]\nbogus = 1\n", want: "parse config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			_, _, _, err := config.Load(path)
			if err == nil {
				t.Fatalf("expected error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestSampleConfigMatchesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var sample config.Config
	if err := toml.Unmarshal(data, &sample); err != nil {
		t.Fatalf("parse sample: %v", err)
	}
	if sample != config.Default() {
		t.Fatalf("sample config drifted from defaults:\n got %+v\nwant %+v", sample, config.Default())
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	cfg := config.Default()
	data, err := config.Encode(&cfg)
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	if !strings.Contains(string(data), "knowledge_file") {
		t.Fatalf("expected knowledge_file in encoded config, got %s", data)
	}
	if _, err := config.Encode(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}
