package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"portkiller/internal/knowledge"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 20
	statusIndent     = "  "
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := statusKindLabel(kind)
	if message != "" {
		statusText = fmt.Sprintf("[%s] %s", statusText, message)
	} else {
		statusText = fmt.Sprintf("[%s]", statusText)
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	if colorize {
		return ansiBlue + line + ansiReset
	}
	return line
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func relativeTime(unix int64) string {
	if unix <= 0 {
		return "-"
	}
	return humanize.Time(time.Unix(unix, 0))
}

func formatConfidence(value float64) string {
	return strconv.FormatFloat(value, 'f', 2, 64)
}

func formatPort(port *uint16) string {
	if port == nil {
		return "-"
	}
	return strconv.Itoa(int(*port))
}

func shortKey(key string) string {
	if len(key) > 10 {
		return key[:10]
	}
	return key
}

func valueOrDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func writeEntryDetails(out io.Writer, entry knowledge.KnowledgeEntry) {
	group := "-"
	if entry.GroupID != nil && *entry.GroupID != "" {
		group = *entry.GroupID
	}
	fmt.Fprintf(out, "Name:        %s\n", entry.DisplayName)
	fmt.Fprintf(out, "Category:    %s\n", entry.Category)
	fmt.Fprintf(out, "Description: %s\n", valueOrDash(entry.Description))
	fmt.Fprintf(out, "Group:       %s\n", group)
	fmt.Fprintf(out, "Confidence:  %s\n", formatConfidence(entry.Confidence))
	fmt.Fprintf(out, "Source:      %s\n", entry.Source)
	fmt.Fprintf(out, "Fingerprint: %s\n", entry.Fingerprint)
	fmt.Fprintf(out, "Key:         %s\n", entry.HashKey())
	fmt.Fprintf(out, "Sightings:   %d\n", entry.Sightings)
	fmt.Fprintf(out, "Updated:     %s\n", relativeTime(entry.UpdatedAt))
}
