package reportformat

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vulnforge/reportformats/pkg/assetstore"
	"github.com/vulnforge/reportformats/pkg/sandbox"
)

// generate runs the generate entry point of record on xmlPath and returns the
// new output file in workDir. The child runs in the format's directory.
func (m *Manager) generate(ctx context.Context, record *ReportFormatRecord, predefined bool, xmlPath, manifest, workDir string) (output string, err error) {
	dir := m.dirOf(record, predefined)
	script := filepath.Join(dir, assetstore.GeneratorName)
	info, err := os.Stat(script)
	if err != nil || !info.Mode().IsRegular() || info.Mode().Perm()&0o111 == 0 {
		m.logger.Warn("report format generator missing or not executable", "uuid", record.UUID, "path", script)
		return "", ErrNoGenerator
	}

	pattern := record.UUID + "-*"
	if record.Extension != "" {
		pattern += "." + record.Extension
	}
	out, err := os.CreateTemp(workDir, pattern)
	if err != nil {
		return "", fmt.Errorf("create output file: %w", err)
	}
	output = out.Name()
	out.Close()

	if m.generatorTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.generatorTimeout)
		defer cancel()
	}

	start := time.Now()
	err = m.runner.Run(ctx, sandbox.Command{
		Path:    script,
		Args:    []string{xmlPath, manifest},
		Dir:     dir,
		Output:  output,
		Handoff: []string{workDir, xmlPath},
	})
	observeGenerate(start, err)
	if err != nil {
		m.logger.Warn("report format generator failed", "uuid", record.UUID, "error", err)
		if rerr := os.Remove(output); rerr != nil {
			m.logger.Warn("failed to remove generator output", "path", output, "error", rerr)
		}
		return "", ErrGenerate
	}
	return output, nil
}
