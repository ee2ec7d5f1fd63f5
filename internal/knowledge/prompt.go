package knowledge

import (
	"strconv"
	"strings"

	"portkiller/internal/textutil"
)

const fullCommandLimit = 200

// Prompt renders the context as "Label: value" lines in a fixed order.
// Unknown fields are skipped and the full command line is bounded.
func (c AnalysisContext) Prompt() string {
	lines := []string{"Command: " + c.Command}
	add := func(label, value string) {
		if value != "" {
			lines = append(lines, label+": "+value)
		}
	}

	if c.Port != 0 {
		add("Port", strconv.FormatUint(uint64(c.Port), 10))
	}
	add("Executable", c.ExecutablePath)
	if c.FullCommand != "" {
		add("Full command", textutil.Truncate(c.FullCommand, fullCommandLimit))
	}
	add("Working directory", c.WorkingDirectory)
	add("Project", c.ProjectName)
	add("macOS App Name", c.MacOSAppName)
	add("macOS App Kind", c.MacOSAppKind)
	add("Docker container", c.ContainerName)
	add("Docker compose service", c.DockerService)
	add("Docker compose project", c.DockerProject)
	add("Docker image", c.DockerImage)
	add("Container workdir", c.DockerWorkdir)
	add("Container command", c.DockerCmd)
	add("Container prefix", c.ContainerPrefix)

	return strings.Join(lines, "\n")
}
