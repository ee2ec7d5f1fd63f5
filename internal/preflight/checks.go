package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"portkiller/internal/config"
	"portkiller/internal/deps"
	"portkiller/internal/knowledge"
)

// CredentialSource yields the ICA service key.
type CredentialSource interface {
	Credential(ctx context.Context) (string, error)
}

// CheckCredential verifies that the ICA service key can be obtained.
func CheckCredential(ctx context.Context, creds CredentialSource) Result {
	const name = "ICA service key"

	checkCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if _, err := creds.Credential(checkCtx); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("unavailable (%v)", err)}
	}
	return Result{Name: name, Passed: true, Detail: "available"}
}

// CheckICA verifies that the ICA host answers HTTP. It does not send a
// classification request.
func CheckICA(ctx context.Context, baseURL string) Result {
	const name = "ICA"

	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing url"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, base+"/", nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("reachability check failed (%v)", err)}
	}
	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: summarizeNetError(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return Result{Name: name, Detail: fmt.Sprintf("server error (%d)", resp.StatusCode)}
	}
	return Result{Name: name, Passed: true, Detail: "Reachable"}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckCreatableDirectory passes when path is an accessible directory, or
// when it does not exist yet but its nearest existing ancestor is writable.
func CheckCreatableDirectory(name, path string) Result {
	if _, err := os.Stat(path); err == nil || !os.IsNotExist(err) {
		return CheckDirectoryAccess(name, path)
	}
	ancestor := filepath.Dir(path)
	for {
		if _, err := os.Stat(ancestor); err == nil {
			break
		}
		parent := filepath.Dir(ancestor)
		if parent == ancestor {
			break
		}
		ancestor = parent
	}
	if err := unix.Access(ancestor, unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: cannot create under %s: %v)", path, ancestor, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (will be created)", path)}
}

// CheckKnowledgeFile reports whether the knowledge file parses and what it
// holds. A missing file passes; it is seeded on first use.
func CheckKnowledgeFile(path string) Result {
	const name = "Knowledge file"

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (not created yet)", path)}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	kb, err := knowledge.Decode(data)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (v%d, %d entries, %d pending)",
		path, kb.Version, len(kb.Entries), len(kb.PendingAnalysis))}
}

// CheckSystemDeps evaluates the external commands used by the enricher and
// the credential provider.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	needSetec := cfg != nil && cfg.Learning.Enabled && os.Getenv(config.ServiceKeyEnv) == ""
	return deps.CheckBinaries(deps.ProbeRequirements("setec", needSetec), runtime.GOOS)
}

func summarizeNetError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "reachability check timed out (ICA unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "reachability check timed out (ICA unreachable)"
	}
	return err.Error()
}
