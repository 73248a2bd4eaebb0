package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/3leaps/rqlens/internal/config"
	"github.com/3leaps/rqlens/pkg/output"
)

// renderer writes one command's results in the configured format.
type renderer struct {
	command string
	format  output.Format
	out     io.Writer
	jsonl   *output.JSONLWriter
	started time.Time
}

func newRenderer(cmd *cobra.Command, cfg *config.Config) (*renderer, error) {
	format, err := output.ParseFormat(cfg.Output.Format)
	if err != nil {
		return nil, exitError(foundry.ExitInvalidArgument, "invalid output format", err)
	}
	r := &renderer{
		command: cmd.CommandPath(),
		format:  format,
		out:     cmd.OutOrStdout(),
		started: time.Now(),
	}
	if format == output.FormatJSONL {
		r.jsonl = output.NewJSONLWriter(r.out, uuid.NewString(), cfg.Redis.KeyPrefix)
	}
	return r, nil
}

func (r *renderer) document(v any) error {
	return output.WriteDocument(r.out, r.format, v)
}

func (r *renderer) table() *tabwriter.Writer {
	return tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
}

func (r *renderer) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(r.out, format, args...)
}

// finish closes a JSONL stream with its summary record.
func (r *renderer) finish(ctx context.Context) error {
	if r.jsonl == nil {
		return nil
	}
	defer func() { _ = r.jsonl.Close() }()
	return r.jsonl.WriteSummary(ctx, r.jsonl.Summary(r.command, r.started))
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

// formatRelativeTime formats a time as relative to now.
func formatRelativeTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	d := time.Since(*t)
	switch {
	case d < 0:
		return t.UTC().Format("2006-01-02 15:04:05")
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.UTC().Format("2006-01-02")
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
