package reportformat

import (
	"context"

	"gorm.io/gorm"

	"github.com/vulnforge/reportformats/pkg/acl"
	"github.com/vulnforge/reportformats/pkg/assetstore"
	"github.com/vulnforge/reportformats/pkg/audit"
	"github.com/vulnforge/reportformats/pkg/authz"
)

// Restore moves the trashed format trashUUID back under its original UUID.
func (m *Manager) Restore(ctx context.Context, trashUUID string) (rf *ReportFormat, err error) {
	defer func() { observeOperation(OpRestore, err) }()

	s, err := m.session(ctx)
	if err != nil {
		return nil, err
	}

	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if !m.authz.May(ctx, s, authz.ActionRestore) {
			return ErrPermissionDenied
		}
		store := NewStore(tx)
		trash, err := store.GetTrash(trashUUID)
		if err != nil {
			return err
		}
		if trash == nil || !m.ownsTrash(ctx, s, trash.Owner) {
			return ErrNotFound
		}
		if trash.OriginalUUID == nil || *trash.OriginalUUID == "" {
			m.logger.Error("trashed report format has no original uuid", "trash_uuid", trash.UUID, "trash_id", trash.ID)
			return ErrCorruptTrash
		}

		taken, err := store.NameTaken(trash.Owner, trash.Name, 0)
		if err != nil {
			return err
		}
		if taken {
			return ErrNameConflict
		}
		active, err := store.Get(*trash.OriginalUUID)
		if err != nil {
			return err
		}
		if active != nil {
			return ErrUUIDConflict
		}

		record, err := store.RestoreFromTrash(trash)
		if err != nil {
			return err
		}
		if err := acl.NewStore(tx).SetLocations(authz.ResourceReportFormat, trash.ID, record.ID, acl.LocationTrash, acl.LocationTable); err != nil {
			return err
		}

		src := m.layout.TrashDir(trash.ID)
		if assetstore.Exists(src) {
			if err := assetstore.MoveTree(src, m.dirOf(record, false)); err != nil {
				return err
			}
		} else {
			m.logger.Warn("trash directory missing on restore", "uuid", record.UUID, "dir", src)
		}

		rf = record.view()
		rf.Params, err = store.Params(record.ID)
		return err
	})
	if err != nil {
		if KindOf(err) == KindInternal {
			m.logger.Error("failed to restore report format", "uuid", trashUUID, "error", err)
		}
		return nil, err
	}

	m.recordEvent(ctx, s, authz.ActionRestore, rf.UUID, audit.Metadata{"trash_uuid": trashUUID})
	return rf, nil
}
