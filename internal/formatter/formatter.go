// package formatter renders cleanup instances, their history and counter operations as plain text, CSV, Markdown or JSON
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/desertthunder/spc/internal/models"
	"github.com/desertthunder/spc/internal/shared"
)

// Format names an output format.
type Format string

const (
	Text     Format = "text"
	CSV      Format = "csv"
	Markdown Format = "markdown"
	JSON     Format = "json"
)

// ParseFormat validates a format name. The empty string means [Text].
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case "":
		return Text, nil
	case Text, CSV, Markdown, JSON:
		return f, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q (text, csv, markdown, json)", shared.ErrInvalidArgument, s)
	}
}

// Ext returns the file extension for f.
func (f Format) Ext() string {
	switch f {
	case CSV:
		return "csv"
	case Markdown:
		return "md"
	case JSON:
		return "json"
	default:
		return "txt"
	}
}

func wakeAt(cp *models.Checkpoint) string {
	if cp.WakeAt == nil {
		return ""
	}
	return cp.WakeAt.UTC().Format(time.RFC3339)
}

func outcome(cp *models.Checkpoint) string {
	if cp.Error != "" {
		return cp.Error
	}
	return cp.LastResult
}

// InstancesToCSV converts checkpoints to CSV with columns: ID, Generation, Status, Phase, Playlist, State,
// Contributors, Attempt, WakeAt, LastResult, Error. Contributors are joined with ";".
func InstancesToCSV(checkpoints []*models.Checkpoint) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Generation", "Status", "Phase", "Playlist", "State", "Contributors", "Attempt", "WakeAt", "LastResult", "Error"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, cp := range checkpoints {
		record := []string{
			cp.InstanceID,
			strconv.Itoa(cp.Generation),
			string(cp.Status),
			string(cp.Phase),
			cp.Input.PlaylistID,
			cp.Input.State,
			strings.Join(cp.Input.Contributors, ";"),
			strconv.Itoa(cp.Attempt),
			wakeAt(cp),
			cp.LastResult,
			cp.Error,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// InstancesToText converts checkpoints to an aligned plain text table.
func InstancesToText(checkpoints []*models.Checkpoint) ([]byte, error) {
	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "ID\tGEN\tSTATUS\tPHASE\tPLAYLIST\tWAKE AT\tRESULT")
	for _, cp := range checkpoints {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			cp.InstanceID, cp.Generation, cp.Status, cp.Phase, cp.Input.PlaylistID, wakeAt(cp), outcome(cp))
	}

	if err := tw.Flush(); err != nil {
		return nil, fmt.Errorf("failed to flush table: %w", err)
	}
	fmt.Fprintf(&buf, "\n%d instance(s)\n", len(checkpoints))
	return buf.Bytes(), nil
}

// InstancesToMarkdown converts checkpoints to a Markdown table.
func InstancesToMarkdown(checkpoints []*models.Checkpoint) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("# Cleanup Instances\n\n")
	buf.WriteString(fmt.Sprintf("**Instances**: %d\n\n", len(checkpoints)))
	buf.WriteString("| ID | Generation | Status | Phase | Playlist | Contributors | Result |\n")
	buf.WriteString("|----|-----------:|--------|-------|----------|--------------|--------|\n")

	for _, cp := range checkpoints {
		buf.WriteString(fmt.Sprintf("| %s | %d | %s | %s | %s | %s | %s |\n",
			cp.InstanceID, cp.Generation, cp.Status, cp.Phase, cp.Input.PlaylistID,
			strings.Join(cp.Input.Contributors, ", "), escapePipes(outcome(cp))))
	}

	return buf.Bytes(), nil
}

func escapePipes(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// Instances renders checkpoints in format f.
func Instances(checkpoints []*models.Checkpoint, f Format) ([]byte, error) {
	switch f {
	case CSV:
		return InstancesToCSV(checkpoints)
	case Markdown:
		return InstancesToMarkdown(checkpoints)
	case JSON:
		if checkpoints == nil {
			checkpoints = []*models.Checkpoint{}
		}
		return shared.MarshalJSON(checkpoints, true)
	default:
		return InstancesToText(checkpoints)
	}
}

// HistoryToText converts history events to an aligned plain text table.
func HistoryToText(events []models.HistoryEvent) ([]byte, error) {
	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "SEQ\tTIME\tGEN\tKIND\tPHASE\tDETAIL")
	for _, ev := range events {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t%s\n",
			ev.Sequence, ev.CreatedAt.UTC().Format(time.RFC3339), ev.Generation, ev.Kind, ev.Phase, ev.Detail)
	}

	if err := tw.Flush(); err != nil {
		return nil, fmt.Errorf("failed to flush table: %w", err)
	}
	return buf.Bytes(), nil
}

// CounterHistoryToText converts counter operations to an aligned plain text table.
func CounterHistoryToText(mutations []models.CounterMutation) ([]byte, error) {
	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "TIME\tOP\tAMOUNT\tVALUE")
	for _, m := range mutations {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", m.CreatedAt.UTC().Format(time.RFC3339), m.Op, m.Amount, m.Value)
	}

	if err := tw.Flush(); err != nil {
		return nil, fmt.Errorf("failed to flush table: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteInstancesExport writes checkpoints in format f to path.
//
// Defaults to instances.{ext} as the filename.
func WriteInstancesExport(checkpoints []*models.Checkpoint, f Format, path string) (string, error) {
	if path == "" {
		path = "instances." + f.Ext()
	}

	data, err := Instances(checkpoints, f)
	if err != nil {
		return "", fmt.Errorf("failed to generate %s: %w", f, err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s file: %w", f, err)
	}

	return path, nil
}
