//go:build !unix

package sandbox

import "context"

// Run implements Runner. There is no privilege drop on this platform.
func (r *UnprivilegedRunner) Run(ctx context.Context, c Command) error {
	return DirectRunner{}.Run(ctx, c)
}
