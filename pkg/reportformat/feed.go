package reportformat

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"gorm.io/gorm"

	"github.com/vulnforge/reportformats/pkg/acl"
	"github.com/vulnforge/reportformats/pkg/assetstore"
	"github.com/vulnforge/reportformats/pkg/audit"
	"github.com/vulnforge/reportformats/pkg/authz"
	"github.com/vulnforge/reportformats/pkg/signature"
)

// SyncReport summarises one feed reconciliation.
type SyncReport struct {
	Created     int `json:"created"`
	Updated     int `json:"updated"`
	Unchanged   int `json:"unchanged"`
	Removed     int `json:"removed"`
	KeptInUse   int `json:"keptInUse"`
	Invalid     int `json:"invalid"`
	TrashPurged int `json:"trashPurged"`
	DirsPruned  int `json:"dirsPruned"`
}

// shadow is the state of one predefined format before reconciliation.
type shadow struct {
	record ReportFormatRecord
	params map[string]ParamRecord
}

// SyncFeed reconciles the predefined formats in the repository with the
// directories under the predefined root. It needs a system session or one
// that can do everything.
func (m *Manager) SyncFeed(ctx context.Context) (report *SyncReport, err error) {
	defer func() {
		result := "success"
		if err != nil {
			result = "failure"
		}
		feedSyncTotal.WithLabelValues(result).Inc()
	}()

	s, err := m.session(ctx)
	if err != nil {
		return nil, err
	}
	if !s.System && !m.authz.CanEverything(ctx, s) {
		return nil, ErrPermissionDenied
	}

	report = &SyncReport{}
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		store := NewStore(tx)
		grants := acl.NewStore(tx)

		if err := m.repairTrash(store, grants, report); err != nil {
			return err
		}

		shadows, err := snapshot(store)
		if err != nil {
			return err
		}

		entries, err := os.ReadDir(m.layout.PredefinedDir)
		if err != nil {
			return fmt.Errorf("read predefined report formats: %w", err)
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			formatUUID := e.Name()
			prev := shadows[formatUUID]
			delete(shadows, formatUUID)

			d, err := LoadDescriptor(filepath.Join(m.layout.PredefinedFormatDir(formatUUID), DescriptorFile))
			if err != nil {
				// The directory is still there, so the row stays as it is.
				m.logger.Warn("skipping predefined report format", "uuid", formatUUID, "error", err)
				report.Invalid++
				continue
			}
			if err := m.upsertPredefined(store, grants, formatUUID, d, prev, report); err != nil {
				return err
			}
		}

		for formatUUID, sh := range shadows {
			inUse, err := store.InUseAnywhere(formatUUID)
			if err != nil {
				return err
			}
			if inUse {
				m.logger.Warn("keeping removed predefined report format that is in use by an alert",
					"uuid", formatUUID, "name", sh.record.Name)
				report.KeptInUse++
				continue
			}
			if err := grants.SetOrphans(authz.ResourceReportFormat, sh.record.ID, acl.LocationTable); err != nil {
				return err
			}
			if err := store.SetPredefined(sh.record.ID, false); err != nil {
				return err
			}
			if err := store.Delete(sh.record.ID); err != nil {
				return err
			}
			report.Removed++
		}
		return nil
	})
	if err != nil {
		m.logger.Error("report format feed sync failed", "error", err)
		return nil, err
	}

	pruned, err := m.pruneTrashDirs(ctx)
	if err != nil {
		m.logger.Warn("failed to prune report format trash directories", "error", err)
	}
	report.DirsPruned = pruned

	m.logger.Info("report format feed synced",
		"created", report.Created, "updated", report.Updated, "unchanged", report.Unchanged,
		"removed", report.Removed, "kept_in_use", report.KeptInUse, "invalid", report.Invalid)
	m.recordEvent(ctx, s, "sync_report_formats", "", audit.Metadata{
		"created": report.Created, "updated": report.Updated, "removed": report.Removed,
	})
	return report, nil
}

// repairTrash deletes every trash row when the trash root is gone.
func (m *Manager) repairTrash(store *Store, grants *acl.Store, report *SyncReport) error {
	root := m.layout.TrashRoot()
	_, err := os.Lstat(root)
	if err == nil {
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat trash root: %w", err)
	}

	ids, err := store.AllTrashIDs()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := store.DeleteTrash(id); err != nil {
			return err
		}
	}
	if err := grants.DeleteLocation(authz.ResourceReportFormat, acl.LocationTrash); err != nil {
		return err
	}
	if len(ids) > 0 {
		m.logger.Warn("report format trash directory was missing, removed all trashed report formats", "count", len(ids))
	}
	report.TrashPurged = len(ids)
	if err := os.MkdirAll(root, assetstore.DirMode); err != nil {
		return fmt.Errorf("create trash root: %w", err)
	}
	return nil
}

func snapshot(store *Store) (map[string]*shadow, error) {
	records, err := store.ListPredefined()
	if err != nil {
		return nil, err
	}
	out := make(map[string]*shadow, len(records))
	for _, r := range records {
		params, err := store.paramRecords(r.ID)
		if err != nil {
			return nil, err
		}
		sh := &shadow{record: r, params: make(map[string]ParamRecord, len(params))}
		for _, p := range params {
			sh.params[p.Name] = p
		}
		out[r.UUID] = sh
	}
	return out, nil
}

// upsertPredefined writes d as the predefined format formatUUID. prev is the
// pre-sync state, nil when the format was not predefined before.
func (m *Manager) upsertPredefined(store *Store, grants *acl.Store, formatUUID string, d *Descriptor, prev *shadow, report *SyncReport) error {
	now := m.now().Unix()
	columns := map[string]any{
		"owner":        nil,
		"name":         d.Name,
		"summary":      d.Summary,
		"description":  d.Description,
		"extension":    d.Extension,
		"content_type": d.ContentType,
		"signature":    "",
		"trust":        int(signature.TrustYes),
		"trust_time":   now,
		"flags":        FlagActive,
	}

	record, err := store.Get(formatUUID)
	if err != nil {
		return err
	}
	created := record == nil
	changed := false
	if created {
		record = &ReportFormatRecord{
			UUID:             formatUUID,
			Name:             d.Name,
			Summary:          d.Summary,
			Description:      d.Description,
			Extension:        d.Extension,
			ContentType:      d.ContentType,
			Trust:            int(signature.TrustYes),
			TrustTime:        now,
			Flags:            FlagActive,
			CreationTime:     now,
			ModificationTime: now,
		}
		if err := store.Create(record); err != nil {
			return err
		}
	} else {
		if prev == nil || recordChanged(&prev.record, d) {
			changed = true
		}
		if err := store.Update(record.ID, columns); err != nil {
			return err
		}
	}

	for _, role := range authz.BuiltinRoleUUIDs() {
		if err := grants.AddRolePermission(authz.ActionGetReportFormats, authz.ResourceReportFormat, record.ID, formatUUID, role); err != nil {
			return err
		}
	}
	if err := store.SetPredefined(record.ID, true); err != nil {
		return err
	}

	existing, err := store.paramRecords(record.ID)
	if err != nil {
		return err
	}
	stale := make(map[string]ParamRecord, len(existing))
	for _, p := range existing {
		stale[p.Name] = p
	}
	for _, p := range d.Params {
		current, ok := stale[p.Name]
		if !ok {
			if err := store.CreateParam(record.ID, p); err != nil {
				return err
			}
			changed = true
			continue
		}
		delete(stale, p.Name)
		before := current
		if prev != nil {
			if snap, ok := prev.params[p.Name]; ok {
				before = snap
			}
		}
		if paramChanged(&before, p) {
			changed = true
		}
		if err := store.UpdateParam(current.ID, p); err != nil {
			return err
		}
	}
	for _, p := range stale {
		if err := store.DeleteParam(p.ID); err != nil {
			return err
		}
		changed = true
	}

	switch {
	case created:
		report.Created++
	case changed:
		report.Updated++
		return store.Update(record.ID, map[string]any{"modification_time": now})
	default:
		report.Unchanged++
	}
	return nil
}

func recordChanged(prev *ReportFormatRecord, d *Descriptor) bool {
	return prev.Owner != nil ||
		prev.Name != d.Name ||
		prev.Summary != d.Summary ||
		prev.Description != d.Description ||
		prev.Extension != d.Extension ||
		prev.ContentType != d.ContentType ||
		prev.Trust != int(signature.TrustYes) ||
		prev.Flags != FlagActive
}

// paramChanged compares the tracked columns. Options are not tracked.
func paramChanged(prev *ParamRecord, p Param) bool {
	return prev.Type != int(p.Type) ||
		prev.Value != p.Value ||
		prev.TypeMin != encodeMin(p.Min) ||
		prev.TypeMax != encodeMax(p.Max) ||
		prev.Fallback != p.Fallback
}

// pruneTrashDirs removes numeric trash directories that have no trash row.
func (m *Manager) pruneTrashDirs(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(m.layout.TrashRoot())
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	ids, err := NewStore(m.db.WithContext(ctx)).AllTrashIDs()
	if err != nil {
		return 0, err
	}
	known := make(map[uint64]bool, len(ids))
	for _, id := range ids {
		known[id] = true
	}

	pruned := 0
	for _, e := range entries {
		id, err := strconv.ParseUint(e.Name(), 10, 64)
		if err != nil || known[id] {
			continue
		}
		if err := assetstore.RemoveTree(filepath.Join(m.layout.TrashRoot(), e.Name())); err != nil {
			return pruned, err
		}
		pruned++
	}
	return pruned, nil
}
