package knowledge

import (
	"strings"
	"testing"
)

func TestPromptFieldOrder(t *testing.T) {
	ctx := AnalysisContext{
		Command:          "node",
		Port:             3000,
		ExecutablePath:   "/usr/local/bin/node",
		FullCommand:      "node server.js",
		WorkingDirectory: "/src/shop",
		ProjectName:      "shop",
		MacOSAppName:     "Shop",
		MacOSAppKind:     "Application",
		ContainerName:    "shop_web",
		DockerService:    "web",
		DockerProject:    "shop",
		DockerImage:      "Shop Web",
		DockerWorkdir:    "/app",
		DockerCmd:        "npm start",
		ContainerPrefix:  "shop",
	}
	want := strings.Join([]string{
		"Command: node",
		"Port: 3000",
		"Executable: /usr/local/bin/node",
		"Full command: node server.js",
		"Working directory: /src/shop",
		"Project: shop",
		"macOS App Name: Shop",
		"macOS App Kind: Application",
		"Docker container: shop_web",
		"Docker compose service: web",
		"Docker compose project: shop",
		"Docker image: Shop Web",
		"Container workdir: /app",
		"Container command: npm start",
		"Container prefix: shop",
	}, "\n")
	if got := ctx.Prompt(); got != want {
		t.Fatalf("unexpected prompt:\n%s\nwant:\n%s", got, want)
	}
}

func TestPromptSkipsUnknownAndTruncates(t *testing.T) {
	ctx := AnalysisContext{Command: "java", FullCommand: strings.Repeat("x", 250)}
	lines := strings.Split(ctx.Prompt(), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected two lines, got %q", lines)
	}
	want := "Full command: " + strings.Repeat("x", 200) + "..."
	if lines[1] != want {
		t.Fatalf("unexpected truncated line %q", lines[1])
	}
}
