// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of carwatch.
//
// carwatch is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeremyhahn/carwatch/pkg/differ"
	"github.com/jeremyhahn/carwatch/pkg/monitor"
	"github.com/jeremyhahn/carwatch/pkg/report"
	"github.com/jeremyhahn/carwatch/pkg/snapshot"
)

// OutputFormat defines the output format type.
type OutputFormat string

const (
	FormatText  OutputFormat = "text"
	FormatJSON  OutputFormat = "json"
	FormatTable OutputFormat = "table"
	FormatYAML  OutputFormat = "yaml"
)

// ParseOutputFormat validates an output-format setting.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case FormatText, FormatJSON, FormatTable, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedOutputFormat, s)
	}
}

// OperationResult holds the result of an operation.
type OperationResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// FormatOperationResult formats an operation result in the specified format.
func FormatOperationResult(result *OperationResult, format OutputFormat) string {
	switch format {
	case FormatJSON:
		return formatJSON(result)
	case FormatYAML:
		return formatYAML(result)
	case FormatTable:
		return formatResultTable(result)
	default:
		return formatResultText(result)
	}
}

// FormatError formats an error message in the specified format.
func FormatError(err error, format OutputFormat) string {
	result := &OperationResult{
		Success: false,
		Error:   err.Error(),
	}
	return FormatOperationResult(result, format)
}

func formatResultText(result *OperationResult) string {
	if result.Success {
		if result.Message != "" {
			return result.Message + "\n"
		}
		return "Operation completed successfully\n"
	}
	return fmt.Sprintf("Error: %s\n", result.Error)
}

func formatResultTable(result *OperationResult) string {
	status, text := "SUCCESS", result.Message
	if !result.Success {
		status, text = "FAILED", result.Error
	}
	output := "┌────────────────────────────────────────────────────────┐\n"
	output += "│ Operation Result                                       │\n"
	output += "├────────────────────────────────────────────────────────┤\n"
	output += fmt.Sprintf("│ Status: %-46s │\n", status)
	if text != "" {
		for _, line := range wrapText(text, 54) {
			output += fmt.Sprintf("│ %-54s │\n", line)
		}
	}
	output += "└────────────────────────────────────────────────────────┘\n"
	return output
}

func formatJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("{\"error\": \"failed to marshal JSON: %s\"}\n", err)
	}
	return string(data) + "\n"
}

// formatYAML renders v through its JSON encoding so field names match the
// json output.
func formatYAML(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("error: failed to marshal YAML: %s\n", err)
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return fmt.Sprintf("error: failed to marshal YAML: %s\n", err)
	}
	blockStyle(&node)
	out, err := yaml.Marshal(&node)
	if err != nil {
		return fmt.Sprintf("error: failed to marshal YAML: %s\n", err)
	}
	return string(out)
}

// blockStyle clears the flow and quoting styles a JSON document parses with.
func blockStyle(node *yaml.Node) {
	node.Style = 0
	for _, child := range node.Content {
		blockStyle(child)
	}
}

// FormatSnapshotList formats stored snapshots, most recent first.
func FormatSnapshotList(infos []snapshot.Info, format OutputFormat) string {
	switch format {
	case FormatJSON:
		return formatJSON(map[string]any{"count": len(infos), "snapshots": infos})
	case FormatYAML:
		return formatYAML(map[string]any{"count": len(infos), "snapshots": infos})
	case FormatTable:
		return formatListTable(infos)
	default:
		return formatListText(infos)
	}
}

func formatListText(infos []snapshot.Info) string {
	if len(infos) == 0 {
		return "No snapshots found\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d snapshot(s):\n\n", len(infos))
	for _, info := range infos {
		fmt.Fprintf(&b, "%s\n", info.ID)
		fmt.Fprintf(&b, "  Created: %s\n", info.CreatedAt.Format(time.RFC3339))
		fmt.Fprintf(&b, "  Size: %s\n", formatSize(info.Size))
	}
	return b.String()
}

func formatListTable(infos []snapshot.Info) string {
	if len(infos) == 0 {
		return "No snapshots found\n"
	}
	var b strings.Builder
	b.WriteString("┌────────────────────────────────────┬──────────────┬──────────────────────┐\n")
	b.WriteString("│ Snapshot                           │ Size         │ Created              │\n")
	b.WriteString("├────────────────────────────────────┼──────────────┼──────────────────────┤\n")
	for _, info := range infos {
		fmt.Fprintf(&b, "│ %-34s │ %-12s │ %-20s │\n",
			truncate(info.ID, 34), formatSize(info.Size), info.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	b.WriteString("└────────────────────────────────────┴──────────────┴──────────────────────┘\n")
	fmt.Fprintf(&b, "Total: %d snapshot(s)\n", len(infos))
	return b.String()
}

// DiffView is the structured form of a comparison between two snapshots.
type DiffView struct {
	From    string           `json:"from,omitempty"`
	To      string           `json:"to"`
	Changes differ.Changeset `json:"changes"`
}

// FormatDiff formats the changes between from and to. Text output is the
// plain-text change message stamped with at.
func FormatDiff(view DiffView, at time.Time, format OutputFormat) string {
	switch format {
	case FormatJSON:
		return formatJSON(view)
	case FormatYAML:
		return formatYAML(view)
	case FormatTable:
		return formatDiffTable(view)
	default:
		return report.PlainText(report.Format(view.Changes, at)) + "\n"
	}
}

func formatDiffTable(view DiffView) string {
	cs := view.Changes
	if cs.IsEmpty() {
		return report.NoChanges + "\n"
	}
	var b strings.Builder
	b.WriteString("┌──────────┬──────────────────────────────────────┬──────────┬──────────┐\n")
	b.WriteString("│ Change   │ Make / Model                         │ Before   │ After    │\n")
	b.WriteString("├──────────┼──────────────────────────────────────┼──────────┼──────────┤\n")
	row := func(kind, name, before, after string) {
		fmt.Fprintf(&b, "│ %-8s │ %-36s │ %-8s │ %-8s │\n", kind, truncate(name, 36), before, after)
	}
	for _, e := range cs.Added {
		row("added", e.Key().String(), "", fmt.Sprint(e.Trimlines))
	}
	for _, m := range cs.Modified {
		row("modified", m.Key.String(), fmt.Sprint(m.Before), fmt.Sprint(m.After))
	}
	for _, e := range cs.Removed {
		row("removed", e.Key().String(), fmt.Sprint(e.Trimlines), "")
	}
	b.WriteString("└──────────┴──────────────────────────────────────┴──────────┴──────────┘\n")
	fmt.Fprintf(&b, "Total: %d change(s)\n", cs.Len())
	return b.String()
}

// FormatCycleResult summarizes a completed cycle. The change message itself
// is printed by the monitor in text mode.
func FormatCycleResult(result *monitor.CycleResult, format OutputFormat) string {
	switch format {
	case FormatJSON:
		return formatJSON(result)
	case FormatYAML:
		return formatYAML(result)
	}

	var message string
	switch {
	case result.PreviousCorrupt:
		message = fmt.Sprintf("Saved %s (%d groups); previous snapshot unreadable, nothing to compare", result.SnapshotID, result.Entries)
	case result.FirstRun:
		message = fmt.Sprintf("Saved %s (%d groups); first snapshot, nothing to compare", result.SnapshotID, result.Entries)
	default:
		message = fmt.Sprintf("Saved %s (%d groups); %d change(s) since %s", result.SnapshotID, result.Entries, result.Changes.Len(), result.PreviousID)
		if result.NotifyError != "" {
			message += "; notification failed: " + result.NotifyError
		}
	}
	return FormatOperationResult(&OperationResult{Success: true, Message: message}, format)
}

// formatSize formats a byte size into a human-readable string.
func formatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(size)/float64(div), "KMGTPE"[exp])
}

// wrapText wraps text to fit within maxWidth characters.
func wrapText(text string, maxWidth int) []string {
	if len(text) <= maxWidth {
		return []string{text}
	}

	if !strings.Contains(text, " ") {
		var lines []string
		for len(text) > maxWidth {
			lines = append(lines, text[:maxWidth])
			text = text[maxWidth:]
		}
		if len(text) > 0 {
			lines = append(lines, text)
		}
		return lines
	}

	var lines []string
	var currentLine string
	for _, word := range strings.Fields(text) {
		switch {
		case currentLine == "":
			currentLine = word
		case len(currentLine)+1+len(word) <= maxWidth:
			currentLine += " " + word
		default:
			lines = append(lines, currentLine)
			currentLine = word
		}
	}
	if currentLine != "" {
		lines = append(lines, currentLine)
	}
	return lines
}
