// Package render provides terminal output formatting for execution
// results, status snapshots and metrics.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/joss/flowctl/internal/orchestrator"
)

// Renderer handles output formatting.
type Renderer struct {
	pretty bool
}

// New creates a new renderer. Pretty mode adds color and rules; plain
// mode emits grep-friendly lines.
func New(pretty bool) *Renderer {
	return &Renderer{pretty: pretty}
}

// Result formats a terminal execution result with its step table.
func (r *Renderer) Result(res *orchestrator.ExecutionResult) string {
	var sb strings.Builder

	if r.pretty {
		fmt.Fprintf(&sb, "%s %s\n", color.CyanString("Execution"), res.ExecutionID)
		sb.WriteString(strings.Repeat("─", 60) + "\n")
		fmt.Fprintf(&sb, "  Plan:     %s\n", res.PlanID)
		fmt.Fprintf(&sb, "  Status:   %s\n", r.statusString(res.Status))
		fmt.Fprintf(&sb, "  Steps:    %d completed, %d failed, %d skipped of %d\n",
			res.CompletedSteps, res.FailedSteps, res.SkippedSteps, res.TotalSteps)
		fmt.Fprintf(&sb, "  Duration: %s", FormatDuration(res.Duration))
		if res.TotalRetries > 0 {
			fmt.Fprintf(&sb, "  (%d retries)", res.TotalRetries)
		}
		sb.WriteString("\n")
		if res.ErrorSummary != "" {
			fmt.Fprintf(&sb, "  Error:    %s\n", color.RedString(res.ErrorSummary))
		}
		sb.WriteString("\n")
	} else {
		fmt.Fprintf(&sb, "execution=%s plan=%s status=%s steps=%d/%d duration=%s\n",
			res.ExecutionID, res.PlanID, res.Status,
			res.CompletedSteps, res.TotalSteps, FormatDuration(res.Duration))
		if res.ErrorSummary != "" {
			fmt.Fprintf(&sb, "error: %s\n", res.ErrorSummary)
		}
	}

	for _, rec := range res.Records {
		r.formatStep(&sb, rec)
	}

	return sb.String()
}

func (r *Renderer) formatStep(sb *strings.Builder, rec orchestrator.StepRecord) {
	mark := r.stepMark(rec.Status)

	durStr := ""
	if !rec.StartedAt.IsZero() && !rec.FinishedAt.IsZero() {
		durStr = " (" + FormatDuration(rec.FinishedAt.Sub(rec.StartedAt)) + ")"
	}
	retryStr := ""
	if rec.Attempts > 1 {
		retryStr = fmt.Sprintf(" [%d attempts]", rec.Attempts)
	}

	if r.pretty {
		fmt.Fprintf(sb, "  %s %s%s%s\n", mark, rec.StepID, durStr, retryStr)
		if rec.LastError != "" && rec.Status == orchestrator.StepFailed {
			fmt.Fprintf(sb, "      %s\n", color.RedString(rec.LastError))
		}
	} else {
		fmt.Fprintf(sb, "  step=%s status=%s attempts=%d%s\n", rec.StepID, rec.Status, rec.Attempts, durStr)
		if rec.LastError != "" && rec.Status == orchestrator.StepFailed {
			fmt.Fprintf(sb, "    error: %s\n", rec.LastError)
		}
	}
}

func (r *Renderer) stepMark(s orchestrator.StepStatus) string {
	if !r.pretty {
		return "-"
	}
	switch s {
	case orchestrator.StepCompleted:
		return color.GreenString("✓")
	case orchestrator.StepFailed:
		return color.RedString("✗")
	case orchestrator.StepSkipped:
		return color.HiBlackString("○")
	default:
		return color.YellowString("…")
	}
}

func (r *Renderer) statusString(s orchestrator.ExecutionStatus) string {
	if !r.pretty {
		return string(s)
	}
	switch s {
	case orchestrator.ExecutionCompleted:
		return color.GreenString(string(s))
	case orchestrator.ExecutionFailed:
		return color.RedString(string(s))
	case orchestrator.ExecutionEmergencyStopped:
		return color.RedString(string(s))
	case orchestrator.ExecutionCancelled:
		return color.YellowString(string(s))
	default:
		return string(s)
	}
}

// History formats a list of past executions, newest first.
func (r *Renderer) History(results []*orchestrator.ExecutionResult) string {
	if len(results) == 0 {
		return "No executions recorded\n"
	}

	var sb strings.Builder
	if r.pretty {
		sb.WriteString(color.CyanString("Execution History\n"))
		sb.WriteString(strings.Repeat("─", 60) + "\n")
	}

	for _, res := range results {
		timeStr := res.FinishedAt.Format("2006-01-02 15:04:05")
		if r.pretty {
			fmt.Fprintf(&sb, "%s %s %s  %s  %d/%d steps  %s\n",
				r.stepMarkForExecution(res.Status), color.HiBlackString(timeStr),
				res.ExecutionID, r.statusString(res.Status),
				res.CompletedSteps, res.TotalSteps, FormatDuration(res.Duration))
		} else {
			fmt.Fprintf(&sb, "[%s] %s %s %d/%d %s\n", timeStr, res.ExecutionID,
				res.Status, res.CompletedSteps, res.TotalSteps, FormatDuration(res.Duration))
		}
	}
	return sb.String()
}

func (r *Renderer) stepMarkForExecution(s orchestrator.ExecutionStatus) string {
	switch s {
	case orchestrator.ExecutionCompleted:
		return color.GreenString("✓")
	case orchestrator.ExecutionCancelled:
		return color.YellowString("−")
	default:
		return color.RedString("✗")
	}
}

// Progress formats a live snapshot as a one-line status.
func (r *Renderer) Progress(snap orchestrator.Snapshot) string {
	done := snap.Completed + snap.Failed + snap.Skipped
	line := fmt.Sprintf("[%d/%d] %s", done, snap.Total, snap.Status)
	if len(snap.Running) > 0 {
		line += " running: " + strings.Join(snap.Running, ", ")
	}
	return line
}

// Metrics formats the engine's performance counters.
func (r *Renderer) Metrics(sum orchestrator.PerformanceSummary) string {
	var sb strings.Builder

	if r.pretty {
		sb.WriteString(color.CyanString("Performance\n"))
		sb.WriteString(strings.Repeat("─", 40) + "\n")
		fmt.Fprintf(&sb, "  Executions:  %d\n", sum.Executions)
		fmt.Fprintf(&sb, "    completed: %s\n", color.GreenString("%d", sum.Completed))
		fmt.Fprintf(&sb, "    failed:    %s\n", color.RedString("%d", sum.Failed))
		fmt.Fprintf(&sb, "    cancelled: %d\n", sum.Cancelled)
		fmt.Fprintf(&sb, "    stopped:   %d\n", sum.EmergencyStopped)
		fmt.Fprintf(&sb, "  Blocked:     %d\n", sum.Blocked)
		fmt.Fprintf(&sb, "  Steps run:   %d (%d retries, %d failures)\n",
			sum.StepsRun, sum.StepRetries, sum.StepFailures)
		fmt.Fprintf(&sb, "  Avg run:     %.0fms\n", sum.AvgDurationMs)
	} else {
		fmt.Fprintf(&sb, "executions=%d completed=%d failed=%d cancelled=%d stopped=%d blocked=%d steps=%d retries=%d avg_ms=%.0f\n",
			sum.Executions, sum.Completed, sum.Failed, sum.Cancelled,
			sum.EmergencyStopped, sum.Blocked, sum.StepsRun, sum.StepRetries,
			sum.AvgDurationMs)
	}
	return sb.String()
}

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
