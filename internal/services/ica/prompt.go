package ica

import (
	"strings"

	"portkiller/internal/knowledge"
)

const promptHeader = "Analyze this development process and return ONLY valid JSON (no markdown, no explanation):"

const promptInstructions = `Return a JSON object with these exact fields:
{
  "display_name": "Human-friendly name for this process (e.g., 'DSS Backend API', 'Vite Dev Server')",
  "description": "Brief description of what this process does (1-2 sentences)",
  "category": "One of: frontend, backend, database, cache, proxy, dev_tool, infrastructure, unknown",
  "group_hint": "Optional group name if this seems related to a stack (e.g., 'DSS Stack'), or null",
  "confidence": 0.0-1.0 representing how confident you are in this analysis
}

Focus on identifying:
- What the service does
- Whether it's part of a larger application stack
- The appropriate category

Return ONLY the JSON object, nothing else.`

// BuildPrompt wraps the rendered context in the classification instructions.
func BuildPrompt(actx knowledge.AnalysisContext) string {
	var b strings.Builder
	b.WriteString(promptHeader)
	b.WriteString("\n\n")
	b.WriteString(actx.Prompt())
	b.WriteString("\n\n")
	b.WriteString(promptInstructions)
	return b.String()
}
