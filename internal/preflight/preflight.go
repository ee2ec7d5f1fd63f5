package preflight

import (
	"context"
	"path/filepath"

	"portkiller/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// Remote classifier checks only run when learning is enabled and creds is
// non-nil.
func RunAll(ctx context.Context, cfg *config.Config, creds CredentialSource) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	// Knowledge file and history database are created on first use, so
	// the nearest existing parent must be writable.
	results = append(results, CheckCreatableDirectory("Knowledge directory", filepath.Dir(cfg.Paths.KnowledgeFile)))
	results = append(results, CheckKnowledgeFile(cfg.Paths.KnowledgeFile))
	if cfg.Paths.HistoryDB != "" {
		results = append(results, CheckCreatableDirectory("History directory", filepath.Dir(cfg.Paths.HistoryDB)))
	}
	if cfg.Paths.LogDir != "" {
		results = append(results, CheckCreatableDirectory("Log directory", cfg.Paths.LogDir))
	}

	if cfg.Learning.Enabled && creds != nil {
		results = append(results, CheckCredential(ctx, creds))
		results = append(results, CheckICA(ctx, cfg.Learning.ICAURL))
	}

	return results
}
