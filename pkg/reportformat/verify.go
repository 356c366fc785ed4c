package reportformat

import (
	"context"

	"gorm.io/gorm"

	"github.com/vulnforge/reportformats/pkg/assetstore"
	"github.com/vulnforge/reportformats/pkg/audit"
	"github.com/vulnforge/reportformats/pkg/authz"
	"github.com/vulnforge/reportformats/pkg/signature"
)

// Verify recomputes the trust of an active format from its stored metadata
// and the files on disk.
func (m *Manager) Verify(ctx context.Context, formatUUID string) (trust signature.Trust, err error) {
	defer func() { observeOperation(OpVerify, err) }()

	s, err := m.session(ctx)
	if err != nil {
		return signature.TrustUnknown, err
	}

	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if !m.authz.May(ctx, s, authz.ActionVerifyReportFormat) {
			return ErrPermissionDenied
		}
		store := NewStore(tx)
		record, err := m.find(ctx, store, s, formatUUID, authz.ActionVerifyReportFormat)
		if err != nil {
			return err
		}
		trust, err = m.verifyRecord(ctx, store, record)
		if err != nil {
			return err
		}
		now := m.now().Unix()
		return store.Update(record.ID, map[string]any{
			"trust":             int(trust),
			"trust_time":        now,
			"modification_time": now,
		})
	})
	if err != nil {
		if KindOf(err) == KindInternal {
			m.logger.Error("failed to verify report format", "uuid", formatUUID, "error", err)
		}
		return signature.TrustUnknown, err
	}

	m.recordEvent(ctx, s, authz.ActionVerifyReportFormat, formatUUID, audit.Metadata{"trust": trust.String()})
	return trust, nil
}

// verifyRecord checks the stored format against the feed signature, or the
// stored one when the feed has none.
func (m *Manager) verifyRecord(ctx context.Context, store *Store, record *ReportFormatRecord) (signature.Trust, error) {
	found, err := m.locator.Find(record.UUID)
	if err != nil {
		m.logger.Warn("failed to look up feed signature", "uuid", record.UUID, "error", err)
		found = nil
	}

	var sig []byte
	signedUUID := record.UUID
	switch {
	case found != nil:
		sig = found.Signature
		signedUUID = found.SignedUUID
	case record.Signature != "":
		sig = []byte(record.Signature)
	default:
		trustTotal.WithLabelValues(signature.TrustUnknown.String()).Inc()
		return signature.TrustUnknown, nil
	}

	predefined, err := isPredefined(store, record)
	if err != nil {
		return signature.TrustUnknown, err
	}
	files, err := assetstore.ListFiles(m.dirOf(record, predefined))
	if err != nil {
		return signature.TrustUnknown, err
	}
	params, err := store.Params(record.ID)
	if err != nil {
		return signature.TrustUnknown, err
	}

	canonical := Canonicalize(Identity{
		UUID:        signedUUID,
		Extension:   record.Extension,
		ContentType: record.ContentType,
		Global:      predefined,
	}, files, params)
	return m.verify(ctx, record.UUID, canonical, sig), nil
}
