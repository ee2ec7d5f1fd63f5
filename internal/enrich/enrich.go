package enrich

import (
	"context"
	"encoding/json"
	"log/slog"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"

	"portkiller/internal/knowledge"
	"portkiller/internal/logging"
	"portkiller/internal/textutil"
)

const (
	defaultProbeTimeout = 3 * time.Second
	imageDescriptionMax = 100
)

// Runner executes an external command and returns its stdout.
type Runner interface {
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Output implements Runner.
func (ExecRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Enricher fills in AnalysisContext fields by probing the running system.
type Enricher struct {
	runner      Runner
	logger      *slog.Logger
	timeout     time.Duration
	appMetadata bool
}

// Option configures an Enricher.
type Option func(*Enricher)

// WithRunner replaces the command runner.
func WithRunner(r Runner) Option {
	return func(e *Enricher) {
		if r != nil {
			e.runner = r
		}
	}
}

// WithLogger sets the enricher logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Enricher) {
		if logger != nil {
			e.logger = logging.NewComponentLogger(logger, "enrich")
		}
	}
}

// WithProbeTimeout bounds each external command.
func WithProbeTimeout(d time.Duration) Option {
	return func(e *Enricher) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithAppMetadata toggles Spotlight lookups for .app bundles. It defaults to
// on for darwin only.
func WithAppMetadata(enabled bool) Option {
	return func(e *Enricher) {
		e.appMetadata = enabled
	}
}

// New constructs an Enricher.
func New(opts ...Option) *Enricher {
	e := &Enricher{
		runner:      ExecRunner{},
		logger:      logging.NewComponentLogger(logging.NewNop(), "enrich"),
		timeout:     defaultProbeTimeout,
		appMetadata: runtime.GOOS == "darwin",
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enrich probes the process and container described by actx. Fields that are
// already set are left alone and probe failures leave fields empty.
func (e *Enricher) Enrich(ctx context.Context, actx *knowledge.AnalysisContext) {
	if e == nil || actx == nil {
		return
	}
	if actx.PID != 0 {
		e.enrichProcess(ctx, actx)
	}
	if actx.ContainerName != "" {
		e.enrichContainer(ctx, actx)
	}
}

func (e *Enricher) enrichProcess(ctx context.Context, actx *knowledge.AnalysisContext) {
	pid := strconv.FormatUint(uint64(actx.PID), 10)

	if out, ok := e.run(ctx, "ps", "-p", pid, "-o", "command=", "-ww"); ok {
		full := strings.TrimSpace(string(out))
		if full != "" {
			setIfEmpty(&actx.FullCommand, full)
			setIfEmpty(&actx.ExecutablePath, ExecutablePath(full))
		}
	}

	if actx.WorkingDirectory == "" {
		if out, ok := e.run(ctx, "lsof", "-p", pid, "-Fn"); ok {
			actx.WorkingDirectory = ParseLsofCwd(string(out))
		}
	}

	if e.appMetadata && actx.MacOSAppName == "" {
		if bundle := AppBundlePath(actx.ExecutablePath); bundle != "" {
			e.enrichApp(ctx, actx, bundle)
		}
	}
}

func (e *Enricher) enrichApp(ctx context.Context, actx *knowledge.AnalysisContext, bundle string) {
	out, ok := e.run(ctx, "mdls",
		"-name", "kMDItemDisplayName",
		"-name", "kMDItemKind",
		"-name", "kMDItemCFBundleIdentifier",
		bundle)
	if !ok {
		return
	}
	meta := ParseMdls(string(out))
	setIfEmpty(&actx.MacOSAppName, meta["kMDItemDisplayName"])
	setIfEmpty(&actx.MacOSAppKind, meta["kMDItemKind"])
}

func (e *Enricher) enrichContainer(ctx context.Context, actx *knowledge.AnalysisContext) {
	name := actx.ContainerName
	if out, ok := e.run(ctx, "docker", "inspect", name, "--format", "{{json .Config.Labels}}"); ok {
		labels := ParseDockerLabels(out)
		setIfEmpty(&actx.DockerService, labels.Service)
		setIfEmpty(&actx.DockerProject, labels.Project)
		setIfEmpty(&actx.DockerImage, labels.Image)
	}
	if out, ok := e.run(ctx, "docker", "inspect", name, "--format", "{{.Config.WorkingDir}}|{{.Config.Cmd}}"); ok {
		workdir, cmd := ParseDockerConfig(string(out))
		setIfEmpty(&actx.DockerWorkdir, workdir)
		setIfEmpty(&actx.DockerCmd, cmd)
	}
}

func (e *Enricher) run(ctx context.Context, name string, args ...string) ([]byte, bool) {
	probeCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	out, err := e.runner.Output(probeCtx, name, args...)
	if err != nil {
		logging.WithContext(ctx, e.logger).Debug("probe failed",
			logging.String("probe", name),
			logging.Error(err))
		return nil, false
	}
	return out, true
}

func setIfEmpty(dst *string, value string) {
	if *dst == "" {
		*dst = value
	}
}

// ExecutablePath derives the executable from a full command line: a quoted
// first token, or a first token containing a path separator.
func ExecutablePath(full string) string {
	full = strings.TrimSpace(full)
	if strings.HasPrefix(full, `"`) {
		if end := strings.Index(full[1:], `"`); end >= 0 {
			return full[1 : end+1]
		}
		return ""
	}
	fields := strings.Fields(full)
	if len(fields) == 0 || !strings.Contains(fields[0], "/") {
		return ""
	}
	return fields[0]
}

// AppBundlePath returns the enclosing .app bundle of path, if any.
func AppBundlePath(path string) string {
	if idx := strings.Index(path, ".app/"); idx >= 0 {
		return path[:idx+4]
	}
	if strings.HasSuffix(path, ".app") {
		return path
	}
	return ""
}

// ParseLsofCwd finds the cwd entry in `lsof -Fn` field output.
func ParseLsofCwd(out string) string {
	lines := strings.Split(out, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) != "fcwd" {
			continue
		}
		for _, next := range lines[i+1:] {
			next = strings.TrimSpace(next)
			if strings.HasPrefix(next, "n") {
				return next[1:]
			}
			if strings.HasPrefix(next, "f") {
				break
			}
		}
	}
	return ""
}

// ParseMdls parses `key = "value"` lines, skipping (null) values.
func ParseMdls(out string) map[string]string {
	values := make(map[string]string)
	for _, line := range strings.Split(out, "\n") {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "(null)" {
			continue
		}
		values[key] = strings.Trim(value, `"`)
	}
	return values
}

// ContainerLabels holds the compose and image labels of a container.
type ContainerLabels struct {
	Service string
	Project string
	Image   string
}

// ParseDockerLabels decodes `docker inspect --format '{{json .Config.Labels}}'`.
func ParseDockerLabels(out []byte) ContainerLabels {
	var labels map[string]string
	if err := json.Unmarshal(out, &labels); err != nil || labels == nil {
		return ContainerLabels{}
	}
	result := ContainerLabels{
		Service: labels["com.docker.compose.service"],
		Project: labels["com.docker.compose.project"],
	}
	if title := labels["org.opencontainers.image.title"]; title != "" {
		result.Image = title
	} else if desc := labels["org.opencontainers.image.description"]; desc != "" {
		result.Image = textutil.Truncate(desc, imageDescriptionMax)
	}
	return result
}

// ParseDockerConfig splits `WorkingDir|Cmd` output. An empty command or "[]"
// yields no command; otherwise the surrounding brackets are removed.
func ParseDockerConfig(out string) (workdir, cmd string) {
	parts := strings.SplitN(strings.TrimSpace(out), "|", 2)
	if len(parts) != 2 {
		return "", ""
	}
	workdir = strings.TrimSpace(parts[0])
	rawCmd := strings.TrimSpace(parts[1])
	if rawCmd != "" && rawCmd != "[]" {
		cmd = strings.TrimSuffix(strings.TrimPrefix(rawCmd, "["), "]")
	}
	return workdir, cmd
}
