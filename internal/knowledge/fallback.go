package knowledge

import (
	"strings"

	"portkiller/internal/textutil"
)

// FallbackConfidence is the fixed confidence of heuristic classifications.
const FallbackConfidence = 0.5

type keywordRule struct {
	keywords []string
	category Category
}

// Rules are checked in order; the first substring hit wins.
var nameRules = []keywordRule{
	{[]string{"postgres", "mysql", "mongo", "db", "database"}, CategoryDatabase},
	{[]string{"redis", "memcache", "cache"}, CategoryCache},
	{[]string{"nginx", "proxy", "gateway", "lb", "loadbalancer"}, CategoryProxy},
	{[]string{"frontend", "web", "ui", "client", "app"}, CategoryFrontend},
	{[]string{"api", "backend", "server", "service"}, CategoryBackend},
	{[]string{"worker", "queue", "scheduler", "cron"}, CategoryInfrastructure},
}

var commandRules = []keywordRule{
	{[]string{"postgres", "mysql", "mongo", "redis"}, CategoryDatabase},
	{[]string{"vite", "webpack", "parcel", "next", "remix"}, CategoryFrontend},
	{[]string{"node", "python", "ruby", "go", "java", "php", "bun", "deno"}, CategoryBackend},
	{[]string{"nginx", "caddy", "httpd"}, CategoryProxy},
	{[]string{"docker", "orbstack"}, CategoryInfrastructure},
}

// Fallback classifies ctx from its own fields without any I/O. It always
// succeeds.
func Fallback(ctx AnalysisContext) AnalysisResponse {
	name, category, description := describe(ctx)
	resp := AnalysisResponse{
		DisplayName: name,
		Description: description,
		Category:    category,
		Confidence:  FallbackConfidence,
	}
	if ctx.ContainerPrefix != "" {
		hint := ctx.ContainerPrefix
		resp.GroupHint = &hint
	}
	return resp
}

func describe(ctx AnalysisContext) (string, Category, string) {
	if ctx.ContainerPrefix != "" && ctx.ContainerName != "" {
		prefix := ctx.ContainerPrefix
		service := strings.TrimPrefix(ctx.ContainerName, prefix+"_")
		prefixName := textutil.CapitalizeWords(prefix)
		return prefixName + " " + textutil.CapitalizeWords(service),
			InferCategoryFromName(service),
			prefixName + " " + service + " service"
	}

	if ctx.ContainerName != "" {
		return textutil.CapitalizeWords(ctx.ContainerName),
			InferCategoryFromName(ctx.ContainerName),
			"Docker container: " + ctx.ContainerName
	}

	if ctx.ProjectName != "" {
		return textutil.CapitalizeWords(ctx.ProjectName) + " (" + ctx.Command + ")",
			InferCategoryFromCommand(ctx.Command),
			ctx.Command + " running in project " + ctx.ProjectName
	}

	return textutil.CapitalizeWords(ctx.Command),
		InferCategoryFromCommand(ctx.Command),
		ctx.Command + " process"
}

// InferCategoryFromName guesses a category from a container or service name.
func InferCategoryFromName(name string) Category {
	return matchRules(nameRules, name)
}

// InferCategoryFromCommand guesses a category from a process command.
func InferCategoryFromCommand(command string) Category {
	return matchRules(commandRules, command)
}

func matchRules(rules []keywordRule, value string) Category {
	lower := strings.ToLower(value)
	for _, rule := range rules {
		for _, keyword := range rule.keywords {
			if strings.Contains(lower, keyword) {
				return rule.category
			}
		}
	}
	return CategoryUnknown
}
