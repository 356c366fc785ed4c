package reportformat

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vulnforge/reportformats/pkg/acl"
	"github.com/vulnforge/reportformats/pkg/assetstore"
	"github.com/vulnforge/reportformats/pkg/audit"
	"github.com/vulnforge/reportformats/pkg/authz"
)

// Delete moves an active format to the trash. With ultimate it removes the
// format for good instead, whether it is active or already trashed.
// Soft-deleting a trashed format succeeds without change.
func (m *Manager) Delete(ctx context.Context, formatUUID string, ultimate bool) (err error) {
	defer func() { observeOperation(OpDelete, err) }()

	s, err := m.session(ctx)
	if err != nil {
		return err
	}

	var (
		event   string
		removed string
		trashed purged
	)
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if !m.authz.May(ctx, s, authz.ActionDeleteReportFormat) {
			return ErrPermissionDenied
		}
		store := NewStore(tx)
		grants := acl.NewStore(tx)

		record, err := store.Get(formatUUID)
		if err != nil {
			return err
		}
		if record == nil {
			trash, err := store.GetTrash(formatUUID)
			if err != nil {
				return err
			}
			if trash == nil || !m.ownsTrash(ctx, s, trash.Owner) {
				return ErrNotFound
			}
			if !ultimate {
				return nil
			}
			event = "delete_trashed_report_format"
			trashed, err = m.purgeTrash(store, grants, trash, true)
			return err
		}

		ok, err := m.mayAccess(ctx, s, record.Owner, record.UUID, authz.ActionDeleteReportFormat)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		predefined, err := isPredefined(store, record)
		if err != nil {
			return err
		}
		if predefined {
			return ErrPredefined
		}
		inUse, err := store.InUse(record.UUID)
		if err != nil {
			return err
		}
		if inUse {
			return ErrInUse
		}

		dir := m.dirOf(record, false)
		if ultimate {
			if err := grants.SetOrphans(authz.ResourceReportFormat, record.ID, acl.LocationTable); err != nil {
				return err
			}
			if err := store.Delete(record.ID); err != nil {
				return err
			}
			event = "delete_report_format_ultimate"
			removed = dir
			return nil
		}

		trash, err := store.MoveToTrash(record, uuid.NewString())
		if err != nil {
			return err
		}
		if err := grants.SetLocations(authz.ResourceReportFormat, record.ID, trash.ID, acl.LocationTable, acl.LocationTrash); err != nil {
			return err
		}
		event = authz.ActionDeleteReportFormat
		if !assetstore.Exists(dir) {
			m.logger.Warn("report format directory missing on trash", "uuid", record.UUID, "dir", dir)
			return nil
		}
		return assetstore.MoveTree(dir, m.layout.TrashDir(trash.ID))
	})
	if err != nil {
		if KindOf(err) == KindInternal {
			m.logger.Error("failed to delete report format", "uuid", formatUUID, "error", err)
		}
		return err
	}

	if trashed.dir != "" {
		m.removePurged(trashed)
	}
	if removed != "" {
		m.removeQuietly(removed)
		if err := m.locator.Unlink(formatUUID); err != nil {
			m.logger.Warn("failed to remove signature link", "uuid", formatUUID, "error", err)
		}
	}
	if event != "" {
		m.recordEvent(ctx, s, event, formatUUID, audit.Metadata{"ultimate": ultimate})
	}
	return nil
}

// purged is what a purged trash entry leaves on disk. It is removed only
// after the transaction commits.
type purged struct {
	dir  string
	link string // original uuid whose private signature link goes too
}

// purgeTrash deletes a trashed format's rows and orphans its grants.
func (m *Manager) purgeTrash(store *Store, grants *acl.Store, trash *TrashRecord, checkUse bool) (purged, error) {
	original := ownerString(trash.OriginalUUID)
	if checkUse && original != "" {
		inUse, err := store.InUseByTrash(original)
		if err != nil {
			return purged{}, err
		}
		if inUse {
			return purged{}, ErrInUse
		}
	}
	if err := grants.SetOrphans(authz.ResourceReportFormat, trash.ID, acl.LocationTrash); err != nil {
		return purged{}, err
	}
	if err := store.DeleteTrash(trash.ID); err != nil {
		return purged{}, err
	}
	return purged{dir: m.layout.TrashDir(trash.ID), link: original}, nil
}

func (m *Manager) removePurged(p purged) {
	if p.dir != "" {
		m.removeQuietly(p.dir)
	}
	if p.link == "" {
		return
	}
	if err := m.locator.Unlink(p.link); err != nil {
		m.logger.Warn("failed to remove signature link", "uuid", p.link, "error", err)
	}
}
