// internal/convert/exec.go
package convert

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

var commandContext = exec.CommandContext

// Runner executes an external program and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs name as a child process.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := commandContext(ctx, name, args...) //nolint:gosec
	return cmd.CombinedOutput()
}

func run(ctx context.Context, runner Runner, timeout time.Duration, name string, args ...string) error {
	if runner == nil {
		runner = ExecRunner
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if output, err := runner(ctx, name, args...); err != nil {
		msg := strings.TrimSpace(string(output))
		if msg == "" {
			return fmt.Errorf("%s: %w", filepath.Base(name), err)
		}
		return fmt.Errorf("%s: %w: %s", filepath.Base(name), err, msg)
	}
	return nil
}

// replaceFile renames src over dst, removing src if the rename fails.
func replaceFile(src, dst string) error {
	if err := os.Rename(src, dst); err != nil {
		_ = os.Remove(src)
		return fmt.Errorf("move %s into place: %w", filepath.Base(src), err)
	}
	return nil
}
