package assetstore

import (
	"path/filepath"
	"strconv"
)

// Layout resolves the on-disk locations of report format assets. Feed
// consumers depend on these paths, so they must not change shape.
//
//	<state>/report_formats/<owner-uuid>/<format-uuid>/
//	<state>/report_formats_trash/<trash-row-id>/
//	<predefined>/<format-uuid>/
//	<state>/signatures/report_formats/<uuid>.asc
//	<feed-signatures>/<uuid>.asc
type Layout struct {
	StateDir         string
	PredefinedDir    string
	FeedSignatureDir string
}

// NewLayout returns a Layout rooted at the given directories.
func NewLayout(stateDir, predefinedDir, feedSignatureDir string) Layout {
	return Layout{
		StateDir:         stateDir,
		PredefinedDir:    predefinedDir,
		FeedSignatureDir: feedSignatureDir,
	}
}

// UsersRoot is the parent of every per-owner directory.
func (l Layout) UsersRoot() string {
	return filepath.Join(l.StateDir, "report_formats")
}

// OwnerRoot is the directory holding all formats of one owner.
func (l Layout) OwnerRoot(owner string) string {
	return filepath.Join(l.UsersRoot(), owner)
}

// UserDir is the asset directory of a user-owned format.
func (l Layout) UserDir(owner, formatUUID string) string {
	return filepath.Join(l.OwnerRoot(owner), formatUUID)
}

// TrashRoot is the parent of all trashed asset directories.
func (l Layout) TrashRoot() string {
	return filepath.Join(l.StateDir, "report_formats_trash")
}

// TrashDir is keyed by the trash row id, not by UUID.
func (l Layout) TrashDir(trashID uint64) string {
	return filepath.Join(l.TrashRoot(), strconv.FormatUint(trashID, 10))
}

// PredefinedFormatDir is the feed-supplied directory for a format.
func (l Layout) PredefinedFormatDir(formatUUID string) string {
	return filepath.Join(l.PredefinedDir, formatUUID)
}

// FormatDir picks the predefined or the owner location.
func (l Layout) FormatDir(owner string, formatUUID string, predefined bool) string {
	if predefined || owner == "" {
		return l.PredefinedFormatDir(formatUUID)
	}
	return l.UserDir(owner, formatUUID)
}

// SignatureLinkDir holds private signature links created on UUID collisions.
func (l Layout) SignatureLinkDir() string {
	return filepath.Join(l.StateDir, "signatures", "report_formats")
}

// SignatureLink is the private link path for a format UUID.
func (l Layout) SignatureLink(formatUUID string) string {
	return filepath.Join(l.SignatureLinkDir(), formatUUID+".asc")
}

// FeedSignature is the feed-supplied signature path for a format UUID.
func (l Layout) FeedSignature(formatUUID string) string {
	return filepath.Join(l.FeedSignatureDir, formatUUID+".asc")
}
