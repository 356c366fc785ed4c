package signature

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
)

// Trust classifies a payload against its detached signature.
type Trust int

// Values match the persisted trust column.
const (
	TrustYes     Trust = 1
	TrustNo      Trust = 2
	TrustUnknown Trust = 3
)

func (t Trust) String() string {
	switch t {
	case TrustYes:
		return "yes"
	case TrustNo:
		return "no"
	default:
		return "unknown"
	}
}

// Verifier checks a payload against a detached signature.
//
// Verification problems degrade to TrustNo or TrustUnknown. An error is only
// returned when the check could not be attempted at all.
type Verifier interface {
	Verify(ctx context.Context, payload, sig []byte) (Trust, error)
}

// GPGVVerifier runs an external gpgv binary against a fixed keyring.
type GPGVVerifier struct {
	Program string // path or name of gpgv
	Home    string // keyring home; the keyring is Home/pubring.gpg
	TempDir string // where payload and signature are staged; empty means os.TempDir()
	logger  *slog.Logger
}

// NewGPGVVerifier creates a GPGVVerifier.
func NewGPGVVerifier(program, home string, logger *slog.Logger) *GPGVVerifier {
	if program == "" {
		program = "gpgv"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GPGVVerifier{Program: program, Home: home, logger: logger}
}

// Verify stages payload and sig in private temp files and runs gpgv on them.
// Exit 0 is TrustYes, exit 1 is TrustNo, any other exit is TrustUnknown.
func (v *GPGVVerifier) Verify(ctx context.Context, payload, sig []byte) (Trust, error) {
	tmp := v.TempDir
	if tmp == "" {
		tmp = os.TempDir()
	}

	dataFile, err := writeTemp(tmp, "rfmgr-verify-data-*", payload)
	if err != nil {
		return TrustUnknown, err
	}
	defer os.Remove(dataFile)

	sigFile, err := writeTemp(tmp, "rfmgr-verify-sig-*", sig)
	if err != nil {
		return TrustUnknown, err
	}
	defer os.Remove(sigFile)

	cmd := exec.CommandContext(ctx, v.Program,
		"--homedir", v.Home,
		"--quiet",
		"--keyring", filepath.Join(v.Home, "pubring.gpg"),
		"--",
		sigFile,
		dataFile,
	)
	cmd.Dir = tmp

	err = cmd.Run()
	if err == nil {
		return TrustYes, nil
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return TrustUnknown, fmt.Errorf("failed to run %s: %w", v.Program, err)
	}

	switch exitErr.ExitCode() {
	case 1:
		return TrustNo, nil
	default:
		v.logger.Warn("signature verifier failed", "program", v.Program, "exitCode", exitErr.ExitCode())
		return TrustUnknown, nil
	}
}

func writeTemp(dir, pattern string, content []byte) (string, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	name := f.Name()
	if _, err := f.Write(content); err != nil {
		f.Close()
		os.Remove(name)
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	return name, nil
}
