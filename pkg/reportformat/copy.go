package reportformat

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vulnforge/reportformats/pkg/assetstore"
	"github.com/vulnforge/reportformats/pkg/audit"
	"github.com/vulnforge/reportformats/pkg/authz"
	"github.com/vulnforge/reportformats/pkg/signature"
)

// Copy clones the format sourceUUID for the caller. An empty name yields
// "<source name> Clone N"; an explicit name must be free.
func (m *Manager) Copy(ctx context.Context, sourceUUID, name string) (rf *ReportFormat, err error) {
	defer func() { observeOperation(OpCopy, err) }()

	s, err := m.session(ctx)
	if err != nil {
		return nil, err
	}

	var dst string
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if !m.authz.May(ctx, s, authz.ActionCreateReportFormat) {
			return ErrPermissionDenied
		}
		store := NewStore(tx)
		src, err := m.find(ctx, store, s, sourceUUID, authz.ActionGetReportFormats)
		if err != nil {
			return err
		}
		predefined, err := isPredefined(store, src)
		if err != nil {
			return err
		}

		owner := &s.UserUUID
		if name != "" {
			taken, err := store.NameTaken(owner, name, 0)
			if err != nil {
				return err
			}
			if taken {
				return ErrExists
			}
		} else if name, err = cloneName(store, owner, src.Name); err != nil {
			return err
		}

		now := m.now().Unix()
		record := &ReportFormatRecord{
			UUID:             uuid.NewString(),
			Owner:            owner,
			Name:             name,
			Extension:        src.Extension,
			ContentType:      src.ContentType,
			Summary:          src.Summary,
			Description:      src.Description,
			Signature:        src.Signature,
			Trust:            src.Trust,
			TrustTime:        src.TrustTime,
			Flags:            src.Flags,
			CreationTime:     now,
			ModificationTime: now,
		}
		if predefined {
			record.Trust = int(signature.TrustYes)
			record.TrustTime = now
		}
		if err := store.Create(record); err != nil {
			return err
		}

		params, err := store.Params(src.ID)
		if err != nil {
			return err
		}
		for _, p := range params {
			if err := store.CreateParam(record.ID, p); err != nil {
				return err
			}
		}

		dst = m.layout.UserDir(s.UserUUID, record.UUID)
		if err := assetstore.CopyTree(m.dirOf(src, predefined), dst); err != nil {
			return err
		}
		// MkdirAll applies the umask to intermediate directories.
		for _, dir := range []string{m.layout.UsersRoot(), m.layout.OwnerRoot(s.UserUUID), dst} {
			if err := os.Chmod(dir, assetstore.DirMode); err != nil {
				return fmt.Errorf("chmod %s: %w", dir, err)
			}
		}

		rf = record.view()
		rf.Params = params
		return nil
	})
	if err != nil {
		if dst != "" {
			m.removeQuietly(dst)
		}
		if KindOf(err) == KindInternal {
			m.logger.Error("failed to copy report format", "uuid", sourceUUID, "error", err)
		}
		return nil, err
	}

	m.recordEvent(ctx, s, "copy_report_format", rf.UUID, audit.Metadata{"source": sourceUUID, "name": rf.Name})
	return rf, nil
}

func cloneName(store *Store, owner *string, base string) (string, error) {
	for i := 1; ; i++ {
		candidate := base + " Clone " + strconv.Itoa(i)
		taken, err := store.NameTaken(owner, candidate, 0)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
}
