package knowledge

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Category is the closed set of process groupings shown to users.
type Category string

const (
	CategoryFrontend       Category = "frontend"
	CategoryBackend        Category = "backend"
	CategoryDatabase       Category = "database"
	CategoryCache          Category = "cache"
	CategoryProxy          Category = "proxy"
	CategoryDevTool        Category = "dev_tool"
	CategoryInfrastructure Category = "infrastructure"
	CategoryUnknown        Category = "unknown"
)

// Categories lists every valid category in display order.
var Categories = []Category{
	CategoryFrontend,
	CategoryBackend,
	CategoryDatabase,
	CategoryCache,
	CategoryProxy,
	CategoryDevTool,
	CategoryInfrastructure,
	CategoryUnknown,
}

// ParseCategory maps a wire value onto a Category. "devtool" is accepted for
// files written before the underscore spelling was adopted.
func ParseCategory(value string) (Category, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "devtool" {
		return CategoryDevTool, nil
	}
	for _, c := range Categories {
		if string(c) == normalized {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", value)
}

// UnmarshalJSON rejects values outside the enumeration.
func (c *Category) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("category: %w", err)
	}
	parsed, err := ParseCategory(raw)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Provenance records how an entry was obtained.
type Provenance string

const (
	ProvenanceBuiltin    Provenance = "builtin"
	ProvenanceAPILearned Provenance = "apilearned"
	ProvenanceHeuristic  Provenance = "heuristic"
)

// ParseProvenance maps a wire value onto a Provenance.
func ParseProvenance(value string) (Provenance, error) {
	switch p := Provenance(strings.ToLower(strings.TrimSpace(value))); p {
	case ProvenanceBuiltin, ProvenanceAPILearned, ProvenanceHeuristic:
		return p, nil
	default:
		return "", fmt.Errorf("unknown source %q", value)
	}
}

// UnmarshalJSON rejects values outside the enumeration.
func (p *Provenance) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("source: %w", err)
	}
	parsed, err := ParseProvenance(raw)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// KnowledgeEntry is what is known about one fingerprint.
type KnowledgeEntry struct {
	Fingerprint Fingerprint `json:"fingerprint"`
	DisplayName string      `json:"display_name"`
	Description string      `json:"description"`
	Category    Category    `json:"category"`
	GroupID     *string     `json:"group_id"`
	Confidence  float64     `json:"confidence"`
	Source      Provenance  `json:"source"`
	Sightings   uint32      `json:"sightings"`
	UpdatedAt   int64       `json:"updated_at"`
}

// HashKey returns the key the entry is stored under.
func (e KnowledgeEntry) HashKey() string {
	return e.Fingerprint.HashKey()
}

// PendingEntry tracks an unknown fingerprint until it is classified.
type PendingEntry struct {
	Fingerprint Fingerprint     `json:"fingerprint"`
	Sightings   uint32          `json:"sightings"`
	FirstSeen   int64           `json:"first_seen"`
	LastSeen    int64           `json:"last_seen"`
	Context     AnalysisContext `json:"context"`
}

// KnowledgeBase is the persisted aggregate.
type KnowledgeBase struct {
	Version         uint32                    `json:"version"`
	Entries         map[string]KnowledgeEntry `json:"entries"`
	PendingAnalysis map[string]PendingEntry   `json:"pending_analysis"`
}

func newKnowledgeBase(version uint32) KnowledgeBase {
	return KnowledgeBase{
		Version:         version,
		Entries:         make(map[string]KnowledgeEntry),
		PendingAnalysis: make(map[string]PendingEntry),
	}
}

// AnalysisContext carries everything known about one process instance. Only
// Command is required; empty strings and zero numbers mean "not known".
type AnalysisContext struct {
	Command          string `json:"command"`
	Port             uint16 `json:"port,omitempty"`
	ProjectName      string `json:"project_name,omitempty"`
	ContainerName    string `json:"container_name,omitempty"`
	ContainerPrefix  string `json:"container_prefix,omitempty"`
	ExecutablePath   string `json:"executable_path,omitempty"`
	WorkingDirectory string `json:"working_directory,omitempty"`
	FullCommand      string `json:"full_command,omitempty"`
	MacOSAppName     string `json:"macos_app_name,omitempty"`
	MacOSAppKind     string `json:"macos_app_kind,omitempty"`
	DockerService    string `json:"docker_service,omitempty"`
	DockerProject    string `json:"docker_project,omitempty"`
	DockerImage      string `json:"docker_image,omitempty"`
	DockerWorkdir    string `json:"docker_workdir,omitempty"`
	DockerCmd        string `json:"docker_cmd,omitempty"`
	PID              uint32 `json:"pid,omitempty"`
}

// AnalysisResponse is a classification produced by either classifier.
type AnalysisResponse struct {
	DisplayName string   `json:"display_name"`
	Description string   `json:"description"`
	Category    Category `json:"category"`
	GroupHint   *string  `json:"group_hint"`
	Confidence  float64  `json:"confidence"`
}
