package reportformat

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vulnforge/reportformats/pkg/acl"
	"github.com/vulnforge/reportformats/pkg/assetstore"
	"github.com/vulnforge/reportformats/pkg/audit"
	"github.com/vulnforge/reportformats/pkg/authz"
	"github.com/vulnforge/reportformats/pkg/signature"
)

// CreateInput describes a new or imported report format.
type CreateInput struct {
	// UUID is the identity of an imported format. Empty mints a new one.
	UUID        string
	Name        string
	Summary     string
	Description string
	Extension   string
	ContentType string
	// Signature is a detached signature over the canonical form. A feed or
	// linked signature for UUID takes precedence.
	Signature string
	Files     []assetstore.File
	Params    []ParamInput
	Active    bool
	// Global creates an owner-less predefined format; it needs a session
	// that can do everything.
	Global bool
}

// Create stores a new report format and writes its files.
func (m *Manager) Create(ctx context.Context, in CreateInput) (rf *ReportFormat, err error) {
	defer func() { observeOperation(OpCreate, err) }()

	s, err := m.session(ctx)
	if err != nil {
		return nil, err
	}

	var (
		dir    string
		linked string
	)
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if !m.authz.May(ctx, s, authz.ActionCreateReportFormat) {
			return ErrPermissionDenied
		}
		if in.Global && !m.authz.CanEverything(ctx, s) {
			return ErrPermissionDenied
		}

		params, err := buildParams(in.Params)
		if err != nil {
			return err
		}
		for _, f := range in.Files {
			if err := assetstore.ValidateFileName(f.Name); err != nil {
				if errors.Is(err, assetstore.ErrEmptyFileName) {
					return ErrEmptyFileName
				}
				return ErrInvalidFileName
			}
		}

		store := NewStore(tx)
		formatUUID := in.UUID
		if formatUUID == "" {
			formatUUID = uuid.NewString()
		}

		trust, sig := m.trustOfInput(ctx, formatUUID, in, params)

		taken, err := store.UUIDTaken(formatUUID)
		if err != nil {
			return err
		}
		if taken {
			fresh := uuid.NewString()
			if err := m.locator.Link(fresh, formatUUID); err != nil {
				return err
			}
			linked = fresh
			formatUUID = fresh
		}

		var owner *string
		if !in.Global {
			owner = &s.UserUUID
		}
		name, err := store.UniqueName(owner, in.Name)
		if err != nil {
			return err
		}

		now := m.now().Unix()
		record := &ReportFormatRecord{
			UUID:             formatUUID,
			Owner:            owner,
			Name:             name,
			Extension:        in.Extension,
			ContentType:      in.ContentType,
			Summary:          in.Summary,
			Description:      in.Description,
			Signature:        sig,
			Trust:            int(trust),
			TrustTime:        now,
			CreationTime:     now,
			ModificationTime: now,
		}
		if in.Active {
			record.Flags = FlagActive
		}
		if err := store.Create(record); err != nil {
			return err
		}
		for _, p := range params {
			if err := store.CreateParam(record.ID, p); err != nil {
				return err
			}
		}
		if in.Global {
			if err := store.SetPredefined(record.ID, true); err != nil {
				return err
			}
			grants := acl.NewStore(tx)
			for _, role := range authz.BuiltinRoleUUIDs() {
				if err := grants.AddRolePermission(authz.ActionGetReportFormats, authz.ResourceReportFormat, record.ID, record.UUID, role); err != nil {
					return err
				}
			}
		}

		dir = m.layout.FormatDir(ownerString(owner), formatUUID, in.Global)
		if err := assetstore.WriteFiles(dir, in.Files); err != nil {
			return fmt.Errorf("write report format files: %w", err)
		}

		rf = record.view()
		rf.Predefined = in.Global
		rf.Params = params
		return nil
	})
	if err != nil {
		if dir != "" {
			m.removeQuietly(dir)
		}
		if linked != "" {
			if uerr := m.locator.Unlink(linked); uerr != nil {
				m.logger.Warn("failed to remove signature link", "uuid", linked, "error", uerr)
			}
		}
		if KindOf(err) == KindInternal {
			m.logger.Error("failed to create report format", "name", in.Name, "error", err)
		}
		return nil, err
	}

	m.recordEvent(ctx, s, authz.ActionCreateReportFormat, rf.UUID, audit.Metadata{"name": rf.Name, "trust": rf.TrustName})
	return rf, nil
}

// trustOfInput verifies the signature that applies to a not yet stored
// format. A feed or linked signature wins over the supplied one. It returns
// the trust state and the signature to store.
func (m *Manager) trustOfInput(ctx context.Context, formatUUID string, in CreateInput, params []Param) (signature.Trust, string) {
	found, err := m.locator.Find(formatUUID)
	if err != nil {
		m.logger.Warn("failed to look up feed signature", "uuid", formatUUID, "error", err)
		found = nil
	}

	var sig []byte
	signedUUID := formatUUID
	switch {
	case found != nil:
		sig = found.Signature
		signedUUID = found.SignedUUID
	case in.Signature != "":
		sig = []byte(in.Signature)
	default:
		trustTotal.WithLabelValues(signature.TrustUnknown.String()).Inc()
		return signature.TrustUnknown, ""
	}

	// The signer saw the type names as written in the input.
	signed := make([]Param, len(params))
	for i, p := range params {
		p.TypeName = in.Params[i].Type
		signed[i] = p
	}
	canonical := Canonicalize(Identity{
		UUID:        signedUUID,
		Extension:   in.Extension,
		ContentType: in.ContentType,
		Global:      in.Global,
	}, in.Files, signed)
	trust := m.verify(ctx, formatUUID, canonical, sig)
	return trust, in.Signature
}

// verify checks sig over payload. Verifier failures degrade to Unknown.
func (m *Manager) verify(ctx context.Context, formatUUID string, payload, sig []byte) signature.Trust {
	trust := signature.TrustUnknown
	if m.verifier != nil {
		t, err := m.verifier.Verify(ctx, payload, sig)
		if err != nil {
			m.logger.Warn("signature verification failed", "uuid", formatUUID, "error", err)
		} else {
			trust = t
		}
	}
	trustTotal.WithLabelValues(trust.String()).Inc()
	return trust
}
