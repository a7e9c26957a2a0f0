package capture

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/0xmhha/quota-monitor/pkg/logger"
	"github.com/0xmhha/quota-monitor/pkg/poller"
)

// CommandSource builds a poller.PollFunc that runs a shell command
// expected to print the /usage screen on stdout and parses the result.
//
// The command runs under the poll context, so the poller's per-attempt
// timeout kills hung invocations.
func CommandSource(command string, log logger.Logger) (poller.PollFunc, error) {
	if command == "" {
		return nil, ErrEmptyCommand
	}

	parser := NewParser(log)

	return func(ctx context.Context) (poller.Result, error) {
		cmd := exec.CommandContext(ctx, "sh", "-c", command) // #nosec G204

		out, err := cmd.Output()
		if err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok && len(exitErr.Stderr) > 0 {
				return poller.Result{}, fmt.Errorf("capture command failed: %w: %s",
					err, truncate(string(exitErr.Stderr), 200))
			}
			return poller.Result{}, fmt.Errorf("capture command failed: %w", err)
		}

		return parser.Parse(string(out), time.Now())
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
