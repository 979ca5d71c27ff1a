package executor

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Template placeholders understood by [Expand].
const (
	PlaceholderLabel       = "{label}"
	PlaceholderScores      = "{scores}"
	PlaceholderProbability = "{probability}"
)

// Expand substitutes the accepted label, its probability and the full
// "label=score" list into tmpl. Scores are paired with labels by index;
// scores without a label are named by their index.
func Expand(tmpl, label string, probability float64, labels []string, scores []float32) string {
	return strings.NewReplacer(
		PlaceholderLabel, label,
		PlaceholderScores, FormatScores(labels, scores),
		PlaceholderProbability, strconv.FormatFloat(probability, 'f', 6, 64),
	).Replace(tmpl)
}

// FormatScores renders scores as space-separated "label=score" pairs.
func FormatScores(labels []string, scores []float32) string {
	var b strings.Builder
	for i, s := range scores {
		if i > 0 {
			b.WriteByte(' ')
		}
		name := strconv.Itoa(i)
		if i < len(labels) && labels[i] != "" {
			name = labels[i]
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(strconv.FormatFloat(float64(s), 'f', 6, 32))
	}
	return b.String()
}

// CommandRunner builds tasks that run a shell command line.
type CommandRunner struct {
	// Shell is the interpreter invoked as `Shell -c <command>`. Default: /bin/sh.
	Shell string

	// Timeout bounds a single run. Zero means no limit.
	Timeout time.Duration
}

// Task returns a [Task] that runs cmdline. The command's output is logged at
// debug level and otherwise discarded.
func (r CommandRunner) Task(cmdline string) Task {
	shell := r.Shell
	if shell == "" {
		shell = "/bin/sh"
	}
	timeout := r.Timeout
	return func() error {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		start := time.Now()
		cmd := exec.CommandContext(ctx, shell, "-c", cmdline)
		// Children of the shell may keep the output pipe open after it is killed.
		cmd.WaitDelay = time.Second
		out, err := cmd.CombinedOutput()
		slog.Debug("command finished",
			"command", cmdline,
			"duration", time.Since(start),
			"output", strings.TrimSpace(string(out)),
			"err", err,
		)
		if err != nil {
			return fmt.Errorf("executor: run %q: %w", cmdline, err)
		}
		return nil
	}
}
