package signature

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/vulnforge/reportformats/pkg/assetstore"
)

// Locator finds signatures for report formats in the feed tree and in the
// private signature-link tree.
type Locator struct {
	layout assetstore.Layout
}

// NewLocator creates a Locator over layout.
func NewLocator(layout assetstore.Layout) *Locator {
	return &Locator{layout: layout}
}

// Found is a discovered signature.
type Found struct {
	Signature []byte
	// SignedUUID is the UUID the signature was produced for. It differs from
	// the looked-up UUID when the format was re-minted after a collision.
	SignedUUID string
}

// Find looks up <uuid>.asc in the feed tree first, then in the private link
// tree. It returns nil when neither exists.
func (l *Locator) Find(formatUUID string) (*Found, error) {
	feedPath := l.layout.FeedSignature(formatUUID)
	sig, err := os.ReadFile(feedPath)
	if err == nil {
		return &Found{Signature: sig, SignedUUID: formatUUID}, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read feed signature %s: %w", feedPath, err)
	}

	linkPath := l.layout.SignatureLink(formatUUID)
	resolved, err := filepath.EvalSymlinks(linkPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve signature link %s: %w", linkPath, err)
	}

	sig, err = os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to read signature %s: %w", resolved, err)
	}
	base := filepath.Base(resolved)
	return &Found{
		Signature:  sig,
		SignedUUID: strings.TrimSuffix(base, filepath.Ext(base)),
	}, nil
}

// Link makes the private link for newUUID point at the signature of oldUUID,
// so a re-minted format still verifies against the signature of the UUID it
// was signed under.
func (l *Locator) Link(newUUID, oldUUID string) error {
	target := l.linkTarget(oldUUID)

	if err := os.MkdirAll(l.layout.SignatureLinkDir(), assetstore.DirMode); err != nil {
		return fmt.Errorf("failed to create signature link dir: %w", err)
	}
	link := l.layout.SignatureLink(newUUID)
	if err := os.Remove(link); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to replace signature link %s: %w", link, err)
	}
	if err := os.Symlink(target, link); err != nil {
		return fmt.Errorf("failed to create signature link %s: %w", link, err)
	}
	return nil
}

// Unlink removes the private link for formatUUID if there is one.
func (l *Locator) Unlink(formatUUID string) error {
	err := os.Remove(l.layout.SignatureLink(formatUUID))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (l *Locator) linkTarget(oldUUID string) string {
	feedPath := l.layout.FeedSignature(oldUUID)
	if resolved, err := filepath.EvalSymlinks(feedPath); err == nil {
		return resolved
	}
	if target, err := os.Readlink(l.layout.SignatureLink(oldUUID)); err == nil {
		return target
	}
	return feedPath
}
