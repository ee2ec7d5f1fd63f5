package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// ErrCredentialUnavailable means no provider could produce a credential.
// Callers treat it as "remote classification unavailable", not as a failure.
var ErrCredentialUnavailable = errors.New("credential unavailable")

// Provider yields a credential.
type Provider interface {
	Credential(ctx context.Context) (string, error)
}

// EnvProvider reads the credential from an environment variable.
type EnvProvider struct {
	Variable string
}

// Credential implements Provider.
func (p EnvProvider) Credential(context.Context) (string, error) {
	value, ok := os.LookupEnv(p.Variable)
	if !ok || strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("%w: %s not set", ErrCredentialUnavailable, p.Variable)
	}
	return strings.TrimSpace(value), nil
}

// CommandRunner executes a command and returns its stdout.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// SetecProvider fetches the credential with `setec -s <server> get <secret>`.
type SetecProvider struct {
	Binary    string
	ServerURL string
	Secret    string
	Run       CommandRunner
}

// Credential implements Provider.
func (p SetecProvider) Credential(ctx context.Context) (string, error) {
	binary := p.Binary
	if binary == "" {
		binary = "setec"
	}
	run := p.Run
	if run == nil {
		run = execRunner
	}
	out, err := run(ctx, binary, "-s", p.ServerURL, "get", p.Secret)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return "", fmt.Errorf("%w: setec get %s: %s", ErrCredentialUnavailable, p.Secret, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("%w: setec get %s: %v", ErrCredentialUnavailable, p.Secret, err)
	}
	value := strings.TrimSpace(string(out))
	if value == "" {
		return "", fmt.Errorf("%w: setec returned an empty value for %s", ErrCredentialUnavailable, p.Secret)
	}
	return value, nil
}

// Chain tries each provider in order and returns the first credential.
type Chain []Provider

// Credential implements Provider.
func (c Chain) Credential(ctx context.Context) (string, error) {
	var errs []error
	for _, p := range c {
		value, err := p.Credential(ctx)
		if err == nil {
			return value, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return "", ErrCredentialUnavailable
	}
	return "", errors.Join(errs...)
}

const fetchTimeout = 15 * time.Second

// Cached resolves its provider at most once. Every caller, including
// concurrent ones, sees the first result, success or failure.
type Cached struct {
	fetch func() (string, error)
}

// NewCached wraps p. The fetch runs on its own bounded context so a caller
// cancelling early cannot poison the cached result.
func NewCached(p Provider) *Cached {
	return &Cached{
		fetch: sync.OnceValues(func() (string, error) {
			ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
			defer cancel()
			return p.Credential(ctx)
		}),
	}
}

// Credential implements Provider.
func (c *Cached) Credential(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return c.fetch()
}
