// Package output renders load run progress and summaries on the console.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/wesleyorama2/colstorm/internal/runner"
)

const ruleWidth = 56

// RunInfo describes a run for the console header.
type RunInfo struct {
	Driver  string
	Target  string
	Mode    string
	Workers int
	Repeat  int
}

// ConsoleConfig contains configuration for Console.
type ConsoleConfig struct {
	// Out receives progress and summaries. Defaults to os.Stdout.
	Out io.Writer
	// Err receives error and warning lines. Defaults to os.Stderr.
	Err io.Writer
	// Quiet suppresses everything except the final verdict and errors.
	Quiet bool
	// NoColor disables colors even on a terminal.
	NoColor bool
	// ForceColors enables colors even when Out is not a terminal.
	ForceColors bool
}

// Console is the process-wide output sink. A single mutex serializes every
// write so lines from concurrent workers never interleave.
//
// Console implements runner.Sink.
type Console struct {
	mu      sync.Mutex
	out     io.Writer
	err     io.Writer
	quiet   bool
	noColor bool
	colors  *ColorScheme
}

// NewConsole creates a console writer.
func NewConsole(config ConsoleConfig) *Console {
	if config.Out == nil {
		config.Out = os.Stdout
	}
	if config.Err == nil {
		config.Err = os.Stderr
	}

	useColors := !config.NoColor &&
		(config.ForceColors || (isTerminal(config.Out) && supportsColors()))

	colors := NoColorScheme()
	if useColors {
		colors = DefaultColorScheme()
	}

	return &Console{
		out:     config.Out,
		err:     config.Err,
		quiet:   config.Quiet,
		noColor: !useColors,
		colors:  colors,
	}
}

// Header prints the run banner.
func (c *Console) Header(info RunInfo) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	rule := c.colors.Rule.Sprint(strings.Repeat("━", ruleWidth))
	c.writeln(rule)
	c.writeln(c.colors.Title.Sprintf("colstorm - %s mode", info.Mode))
	c.writeln(rule)
	c.writeln(fmt.Sprintf("Target:   %s (%s)", info.Target, c.colors.Highlight.Sprint(info.Driver)))
	c.writeln(fmt.Sprintf("Workers:  %s", c.colors.Value.Sprint(info.Workers)))
	c.writeln(fmt.Sprintf("Repeat:   %s per worker", c.colors.Value.Sprint(formatNumber(int64(info.Repeat)))))
	c.writeln("")
}

// Progress reports a successful execution. Index is 0-based; the line shows
// the 1-based execution number.
func (c *Console) Progress(worker, index, repeat int) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.writeln(fmt.Sprintf("%s execution %d/%d %s",
		c.workerTag(worker), index+1, repeat, c.colors.Success.Sprint("ok")))
}

// ExecFailed reports a failed execution.
func (c *Console) ExecFailed(worker, index int, err error) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.err, "%s execution %d %s: %v\n",
		c.workerTag(worker), index+1, c.colors.Error.Sprint("failed"), err)
}

// WorkerDone reports a finished worker.
func (c *Console) WorkerDone(result runner.WorkerResult) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	status := c.colors.Success.Sprint("done")
	switch {
	case result.Cancelled:
		status = c.colors.Warn.Sprint("cancelled")
	case result.Failed > 0:
		status = c.colors.Warn.Sprint("done with errors")
	}

	c.writeln(fmt.Sprintf("%s %s: %d/%d executed, %d succeeded, %d failed in %s",
		c.workerTag(result.WorkerID), status,
		result.Attempted, result.Planned, result.Succeeded, result.Failed,
		formatDuration(result.Duration)))
}

// PrintSummary prints the final run summary.
func (c *Console) PrintSummary(result *runner.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.quiet {
		if result.Passed {
			c.writeln(c.colors.Success.Sprint("PASSED"))
		} else {
			c.writeln(c.colors.Error.Sprint("FAILED"))
		}
		return
	}

	rule := c.colors.Rule.Sprint(strings.Repeat("━", ruleWidth))
	status := c.colors.Success.Sprint("Completed ✓")
	switch {
	case result.Interrupted:
		status = c.colors.Warn.Sprint("Interrupted ⚠")
	case !result.Passed:
		status = c.colors.Error.Sprint("Failed ✗")
	}

	c.writeln("")
	c.writeln(rule)
	c.writeln(fmt.Sprintf("%s - %s", c.colors.Title.Sprintf("%s run", result.Mode), status))
	c.writeln(rule)
	c.writeln("")

	c.writeln(fmt.Sprintf("Duration:      %s", c.colors.Value.Sprint(formatDuration(result.Duration))))
	c.writeln(fmt.Sprintf("Executions:    %s", c.colors.Value.Sprint(formatNumber(result.Attempted))))
	c.writeln(fmt.Sprintf("Failed:        %s", c.failureColor(result).Sprint(formatNumber(result.Failed))))
	if m := result.Metrics; m != nil {
		c.writeln(fmt.Sprintf("Error Rate:    %s", c.failureColor(result).Sprint(formatPercent(m.ErrorRate))))
		c.writeln(fmt.Sprintf("Throughput:    %s", c.colors.Value.Sprintf("%.1f exec/s", m.Throughput)))
	}
	c.writeln("")

	if m := result.Metrics; m != nil && m.Latency.Count > 0 {
		c.writeln(c.colors.Title.Sprint("Latency Distribution:"))
		c.writeln(fmt.Sprintf("  Min:       %s", c.colors.Latency.Sprint(formatDurationShort(m.Latency.Min))))
		c.writeln(fmt.Sprintf("  Avg:       %s", c.colors.Latency.Sprint(formatDurationShort(m.Latency.Mean))))
		c.writeln(fmt.Sprintf("  P50:       %s", c.colors.Latency.Sprint(formatDurationShort(m.Latency.P50))))
		c.writeln(fmt.Sprintf("  P90:       %s", c.colors.Latency.Sprint(formatDurationShort(m.Latency.P90))))
		c.writeln(fmt.Sprintf("  P95:       %s", c.colors.Latency.Sprint(formatDurationShort(m.Latency.P95))))
		c.writeln(fmt.Sprintf("  P99:       %s", c.colors.Latency.Sprint(formatDurationShort(m.Latency.P99))))
		c.writeln(fmt.Sprintf("  Max:       %s", c.colors.Latency.Sprint(formatDurationShort(m.Latency.Max))))
		c.writeln("")
	}

	if len(result.Workers) > 0 {
		c.writeln(c.colors.Title.Sprint("Workers:"))
		c.writeln(c.renderWorkerTable(result))
		c.writeln("")
	}

	ps := result.PoolStats
	c.writeln(fmt.Sprintf("Pool:          size %d, idle %d, in use %d, acquisitions %d, waits %d",
		ps.Size, ps.Idle, ps.InUse, ps.Acquired, ps.WaitCount))
	if p := result.Pacing; p != nil {
		c.writeln(fmt.Sprintf("Pacing:        %s exec/s target, %s waited",
			c.colors.Value.Sprintf("%g", p.Rate), formatDuration(p.Waited)))
	}
	c.writeln("")

	if len(result.Thresholds) > 0 {
		c.writeln(c.colors.Title.Sprint("Thresholds:"))
		for _, t := range result.Thresholds {
			mark := SuccessIcon(c.noColor)
			if !t.Passed {
				mark = ErrorIcon(c.noColor)
			}
			line := fmt.Sprintf("  %s %s %s", mark, t.Metric, t.Expression)
			if t.Value != "" {
				line += fmt.Sprintf(" (actual: %s)", t.Value)
			}
			if !t.Passed && t.Message != "" {
				line += " - " + t.Message
			}
			c.writeln(line)
		}
		c.writeln("")
	}
}

func (c *Console) renderWorkerTable(result *runner.Result) string {
	latency := make(map[int]string, len(result.WorkerLatency))
	for _, wl := range result.WorkerLatency {
		latency[wl.WorkerID] = formatDurationShort(wl.Latency.P95)
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Worker", "Session", "Executed", "Succeeded", "Failed", "P95", "Duration", "First Error"})
	for _, wr := range result.Workers {
		p95, ok := latency[wr.WorkerID]
		if !ok {
			p95 = "-"
		}
		t.AppendRow(table.Row{
			wr.WorkerID,
			wr.SessionID,
			fmt.Sprintf("%d/%d", wr.Attempted, wr.Planned),
			wr.Succeeded,
			wr.Failed,
			p95,
			formatDuration(wr.Duration),
			truncate(wr.FirstError, 60),
		})
	}
	return t.Render()
}

// Errorf prints an error line to the error writer.
func (c *Console) Errorf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.err, "%s %s\n", c.colors.Error.Sprint("Error:"), fmt.Sprintf(format, args...))
}

// Warnf prints a warning line to the error writer.
func (c *Console) Warnf(format string, args ...any) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.err, "%s %s\n", WarningIcon(c.noColor), fmt.Sprintf(format, args...))
}

// Printf prints an informational line unless the console is quiet.
func (c *Console) Printf(format string, args ...any) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, format, args...)
}

func (c *Console) workerTag(id int) string {
	return c.colors.Worker.Sprintf("[worker %d]", id)
}

func (c *Console) failureColor(result *runner.Result) *color.Color {
	if result.Failed == 0 {
		return c.colors.Success
	}
	if result.Metrics != nil && result.Metrics.ErrorRate < 0.05 {
		return c.colors.Warn
	}
	return c.colors.Error
}

// writeln writes to the output with a newline. Callers hold c.mu.
func (c *Console) writeln(s string) {
	fmt.Fprintln(c.out, s)
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}

var _ runner.Sink = (*Console)(nil)
