package reportformat

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/vulnforge/reportformats/pkg/acl"
	"github.com/vulnforge/reportformats/pkg/assetstore"
	"github.com/vulnforge/reportformats/pkg/audit"
	"github.com/vulnforge/reportformats/pkg/authz"
)

// EmptyTrash removes every trashed format of the caller for good. It returns
// the number of formats removed.
func (m *Manager) EmptyTrash(ctx context.Context) (int, error) {
	s, err := m.session(ctx)
	if err != nil {
		return 0, err
	}

	var removed []purged
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if !m.authz.May(ctx, s, authz.ActionEmptyTrash) {
			return ErrPermissionDenied
		}
		store := NewStore(tx)
		grants := acl.NewStore(tx)
		trashed, err := store.ListTrash(&s.UserUUID)
		if err != nil {
			return err
		}
		for i := range trashed {
			// Trashed alerts go with the rest of the trash.
			p, err := m.purgeTrash(store, grants, &trashed[i], false)
			if err != nil {
				return err
			}
			removed = append(removed, p)
		}
		return nil
	})
	if err != nil {
		if KindOf(err) == KindInternal {
			m.logger.Error("failed to empty report format trash", "user", s.UserUUID, "error", err)
		}
		return 0, err
	}

	for _, p := range removed {
		m.removePurged(p)
	}
	if len(removed) > 0 {
		m.recordEvent(ctx, s, authz.ActionEmptyTrash, "", audit.Metadata{"count": len(removed)})
	}
	return len(removed), nil
}

// InheritFormats hands every active and trashed format of user from to user
// to, renaming where to already uses a name. Only sessions that can do
// everything may call it.
func (m *Manager) InheritFormats(ctx context.Context, from, to string) error {
	s, err := m.session(ctx)
	if err != nil {
		return err
	}
	if !m.authz.CanEverything(ctx, s) {
		return ErrPermissionDenied
	}
	if from == "" || to == "" || from == to {
		return fmt.Errorf("inherit report formats: invalid users %q and %q", from, to)
	}

	type move struct{ src, dst string }
	var moves []move
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		store := NewStore(tx)
		records, err := store.ListByOwner(from)
		if err != nil {
			return err
		}
		for _, record := range records {
			name, err := store.UniqueName(&to, record.Name)
			if err != nil {
				return err
			}
			if err := store.Update(record.ID, map[string]any{"owner": to, "name": name}); err != nil {
				return err
			}
			moves = append(moves, move{m.layout.UserDir(from, record.UUID), m.layout.UserDir(to, record.UUID)})
		}
		if err := tx.Model(&TrashRecord{}).Where("owner = ?", from).Update("owner", to).Error; err != nil {
			return fmt.Errorf("inherit trashed report formats: %w", err)
		}
		for _, mv := range moves {
			if !assetstore.Exists(mv.src) {
				continue
			}
			if err := assetstore.MoveTree(mv.src, mv.dst); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		m.logger.Error("failed to inherit report formats", "from", from, "to", to, "error", err)
		return err
	}

	m.removeQuietly(m.layout.OwnerRoot(from))
	m.recordEvent(ctx, s, "inherit_report_formats", "", audit.Metadata{"from": from, "to": to, "count": len(moves)})
	return nil
}

// DeleteUserFormats removes every active and trashed format of user. It
// fails with ErrInUse while an alert still references one of them.
func (m *Manager) DeleteUserFormats(ctx context.Context, user string) error {
	s, err := m.session(ctx)
	if err != nil {
		return err
	}
	if !m.authz.CanEverything(ctx, s) {
		return ErrPermissionDenied
	}
	if user == "" {
		return fmt.Errorf("delete report formats: user is required")
	}

	var (
		removed []purged
		links   []string
	)
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		store := NewStore(tx)
		grants := acl.NewStore(tx)

		records, err := store.ListByOwner(user)
		if err != nil {
			return err
		}
		for _, record := range records {
			inUse, err := store.InUse(record.UUID)
			if err != nil {
				return err
			}
			if inUse {
				return ErrInUse
			}
			if err := grants.SetOrphans(authz.ResourceReportFormat, record.ID, acl.LocationTable); err != nil {
				return err
			}
			if err := store.SetPredefined(record.ID, false); err != nil {
				return err
			}
			if err := store.Delete(record.ID); err != nil {
				return err
			}
			links = append(links, record.UUID)
		}

		trashed, err := store.ListTrash(&user)
		if err != nil {
			return err
		}
		for i := range trashed {
			p, err := m.purgeTrash(store, grants, &trashed[i], true)
			if err != nil {
				return err
			}
			removed = append(removed, p)
		}
		return nil
	})
	if err != nil {
		if KindOf(err) == KindInternal {
			m.logger.Error("failed to delete report formats of user", "user", user, "error", err)
		}
		return err
	}

	for _, p := range removed {
		m.removePurged(p)
	}
	for _, id := range links {
		m.removePurged(purged{link: id})
	}
	m.removeQuietly(m.layout.OwnerRoot(user))
	m.recordEvent(ctx, s, "delete_user_report_formats", "", audit.Metadata{"user": user})
	return nil
}
