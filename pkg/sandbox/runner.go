package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
)

// Command describes one generator run.
type Command struct {
	Path   string   // executable
	Args   []string // arguments after Path
	Dir    string   // working directory of the child
	Output string   // file receiving stdout; stderr is discarded
	// Handoff lists paths whose ownership moves to the unprivileged account
	// before the child starts.
	Handoff []string
}

// Runner executes a Command and waits for it. Any non-zero or abnormal exit
// is an error.
type Runner interface {
	Run(ctx context.Context, c Command) error
}

// DirectRunner runs commands with the privileges of the current process.
type DirectRunner struct{}

// Run implements Runner.
func (DirectRunner) Run(ctx context.Context, c Command) error {
	cmd, out, err := prepare(ctx, c)
	if err != nil {
		return err
	}
	defer out.Close()
	return wait(cmd, c.Path)
}

// UnprivilegedRunner drops to User when the process runs as root and falls
// back to DirectRunner behavior otherwise.
type UnprivilegedRunner struct {
	User   string
	logger *slog.Logger
}

// NewUnprivilegedRunner creates an UnprivilegedRunner; an empty user means "nobody".
func NewUnprivilegedRunner(user string, logger *slog.Logger) *UnprivilegedRunner {
	if user == "" {
		user = "nobody"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UnprivilegedRunner{User: user, logger: logger}
}

func prepare(ctx context.Context, c Command) (*exec.Cmd, *os.File, error) {
	out, err := os.OpenFile(c.Output, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open output %s: %w", c.Output, err)
	}
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Dir = c.Dir
	cmd.Stdout = out
	cmd.Stderr = nil
	return cmd, out, nil
}

func wait(cmd *exec.Cmd, path string) error {
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("generator %s failed: %w", path, err)
	}
	return nil
}
