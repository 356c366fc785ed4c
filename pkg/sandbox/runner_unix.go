//go:build unix

package sandbox

import (
	"context"
	"fmt"
	"os/user"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"
)

// Run implements Runner.
func (r *UnprivilegedRunner) Run(ctx context.Context, c Command) error {
	if unix.Geteuid() != 0 {
		return DirectRunner{}.Run(ctx, c)
	}

	uid, gid, err := lookup(r.User)
	if err != nil {
		return err
	}

	cmd, out, err := prepare(ctx, c)
	if err != nil {
		return err
	}
	defer out.Close()

	for _, p := range append(c.Handoff, c.Output) {
		if err := unix.Chown(p, uid, gid); err != nil {
			return fmt.Errorf("failed to hand %s to %s: %w", p, r.User, err)
		}
	}

	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
		Credential: &syscall.Credential{
			Uid:    uint32(uid),
			Gid:    uint32(gid),
			Groups: []uint32{},
		},
	}
	// Kill the whole group so helpers the generator forked die with it.
	cmd.Cancel = func() error {
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
	r.logger.Debug("running generator unprivileged", "path", c.Path, "user", r.User)
	return wait(cmd, c.Path)
}

func lookup(name string) (int, int, error) {
	u, err := user.Lookup(name)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to look up user %s: %w", name, err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid uid %q for %s: %w", u.Uid, name, err)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid gid %q for %s: %w", u.Gid, name, err)
	}
	return uid, gid, nil
}
