package deps

import (
	"fmt"
	"os/exec"
	"slices"
	"strings"
)

// Requirement defines an external command portkiller shells out to.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	// Platforms limits the requirement to the listed GOOS values. Empty means
	// every platform.
	Platforms []string
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Path        string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// AppliesTo reports whether the requirement is relevant on goos.
func (r Requirement) AppliesTo(goos string) bool {
	return len(r.Platforms) == 0 || slices.Contains(r.Platforms, goos)
}

// CheckBinaries evaluates the requirements that apply to goos and reports
// availability.
func CheckBinaries(requirements []Requirement, goos string) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		if !req.AppliesTo(goos) {
			continue
		}
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		path, err := exec.LookPath(cmd)
		if err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Path = path
		status.Available = true
		results = append(results, status)
	}
	return results
}

// MissingRequired returns the names of unavailable, non-optional dependencies.
func MissingRequired(statuses []Status) []string {
	var missing []string
	for _, s := range statuses {
		if !s.Available && !s.Optional {
			missing = append(missing, s.Name)
		}
	}
	return missing
}
