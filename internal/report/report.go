// Package report renders run audit records as Markdown files and a JSON
// summary for scripting.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"wikiloom/internal/config"
	"wikiloom/internal/store"
)

// Summary is the machine-readable view of one run.
type Summary struct {
	RunID       int64          `json:"run_id"`
	UUID        string         `json:"uuid"`
	Mode        string         `json:"mode"`
	TargetLangs string         `json:"target_langs"`
	Status      string         `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  *time.Time     `json:"finished_at,omitempty"`
	Counts      map[string]int `json:"counts"`
	Failures    []Failure      `json:"failures,omitempty"`
}

// Failure is one failed item in the summary.
type Failure struct {
	Kind    string `json:"kind"`
	Page    string `json:"page,omitempty"`
	Lang    string `json:"lang,omitempty"`
	Message string `json:"message,omitempty"`
}

// LastRun builds the summary of the most recent run.
func LastRun(ctx context.Context, s *store.Store) (*Summary, error) {
	run, err := s.LastRun(ctx)
	if err != nil {
		return nil, err
	}
	return buildSummary(ctx, s, run)
}

func buildSummary(ctx context.Context, s *store.Store, run *store.Run) (*Summary, error) {
	counts, err := s.RunStatusCounts(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	failed, err := s.RunItems(ctx, run.ID, store.RunItemFilter{Status: "failed"})
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		RunID:       run.ID,
		UUID:        run.UUID,
		Mode:        run.Mode,
		TargetLangs: run.TargetLangs,
		Status:      string(run.Status),
		StartedAt:   run.StartedAt,
		FinishedAt:  run.FinishedAt,
		Counts:      counts,
	}
	for _, item := range failed {
		failure := Failure{Kind: item.Kind}
		if item.PageTitle != nil {
			failure.Page = *item.PageTitle
		}
		if item.Lang != nil {
			failure.Lang = *item.Lang
		}
		if item.Message != nil {
			failure.Message = *item.Message
		}
		summary.Failures = append(summary.Failures, failure)
	}
	return summary, nil
}

// WriteMarkdown renders the run report under the configured report
// directory and returns the file path.
func WriteMarkdown(ctx context.Context, s *store.Store, cfg *config.Config, run *store.Run) (string, error) {
	summary, err := buildSummary(ctx, s, run)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(cfg.Paths.ReportDir, 0o755); err != nil {
		return "", fmt.Errorf("ensure report directory: %w", err)
	}
	path := filepath.Join(cfg.Paths.ReportDir,
		fmt.Sprintf("run-%d-%s.md", run.ID, run.StartedAt.UTC().Format("20060102-150405")))

	if err := os.WriteFile(path, []byte(renderMarkdown(summary)), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

// WriteJSON renders the run summary as indented JSON.
func WriteJSON(summary *Summary) ([]byte, error) {
	return json.MarshalIndent(summary, "", "  ")
}

func renderMarkdown(summary *Summary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Run %d (%s)\n\n", summary.RunID, summary.UUID)
	fmt.Fprintf(&b, "- Mode: %s\n", summary.Mode)
	if summary.TargetLangs != "" {
		fmt.Fprintf(&b, "- Targets: %s\n", summary.TargetLangs)
	}
	fmt.Fprintf(&b, "- Status: %s\n", summary.Status)
	fmt.Fprintf(&b, "- Started: %s\n", summary.StartedAt.UTC().Format(time.RFC3339))
	if summary.FinishedAt != nil {
		fmt.Fprintf(&b, "- Finished: %s\n", summary.FinishedAt.UTC().Format(time.RFC3339))
	}

	b.WriteString("\n## Totals\n\n")
	if len(summary.Counts) == 0 {
		b.WriteString("No items recorded.\n")
	} else {
		statuses := make([]string, 0, len(summary.Counts))
		for status := range summary.Counts {
			statuses = append(statuses, status)
		}
		sort.Strings(statuses)
		b.WriteString("| Status | Count |\n|---|---|\n")
		for _, status := range statuses {
			fmt.Fprintf(&b, "| %s | %d |\n", status, summary.Counts[status])
		}
	}

	if len(summary.Failures) > 0 {
		b.WriteString("\n## Failures\n\n")
		b.WriteString("| Kind | Page | Lang | Message |\n|---|---|---|---|\n")
		for _, failure := range summary.Failures {
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
				failure.Kind, failure.Page, failure.Lang, escapePipes(failure.Message))
		}
	}
	return b.String()
}

func escapePipes(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
