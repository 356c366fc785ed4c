package reportformat

import (
	"context"

	"gorm.io/gorm"

	"github.com/vulnforge/reportformats/pkg/audit"
	"github.com/vulnforge/reportformats/pkg/authz"
)

// ModifyInput lists the fields to change; nil fields are left alone. At most
// one parameter value is set per call.
type ModifyInput struct {
	Name       *string
	Summary    *string
	Active     *bool
	Predefined *string // "0" or "1"
	ParamName  string
	ParamValue *string
}

// Modify updates an active format. Predefined formats are only modifiable by
// a system session.
func (m *Manager) Modify(ctx context.Context, formatUUID string, in ModifyInput) (err error) {
	defer func() { observeOperation(OpModify, err) }()

	if formatUUID == "" {
		return ErrIDRequired
	}
	s, err := m.session(ctx)
	if err != nil {
		return err
	}

	changed := map[string]any{}
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if !m.authz.May(ctx, s, authz.ActionModifyReportFormat) {
			return ErrPermissionDenied
		}
		store := NewStore(tx)
		record, err := m.find(ctx, store, s, formatUUID, authz.ActionModifyReportFormat)
		if err != nil {
			return err
		}
		predefined, err := store.IsPredefined(record.ID)
		if err != nil {
			return err
		}
		if (predefined || record.Owner == nil) && !s.System {
			return ErrPermissionDenied
		}

		columns := map[string]any{}
		if in.Name != nil && *in.Name != record.Name {
			taken, err := store.NameTaken(record.Owner, *in.Name, record.ID)
			if err != nil {
				return err
			}
			if taken {
				return ErrExists
			}
			columns["name"] = *in.Name
		}
		if in.Summary != nil {
			columns["summary"] = *in.Summary
		}
		if in.Active != nil {
			flags := record.Flags &^ FlagActive
			if *in.Active {
				flags |= FlagActive
			}
			columns["flags"] = flags
		}
		if in.Predefined != nil {
			var flag bool
			switch *in.Predefined {
			case "0":
			case "1":
				flag = true
			default:
				return ErrPredefinedFlag
			}
			if !s.System && !m.authz.CanEverything(ctx, s) {
				return ErrPermissionDenied
			}
			if err := store.SetPredefined(record.ID, flag); err != nil {
				return err
			}
			changed["predefined"] = flag
		}
		if in.ParamName != "" && in.ParamValue != nil {
			p, err := store.Param(record.ID, in.ParamName)
			if err != nil {
				return err
			}
			if p == nil {
				return ErrParamNotFound
			}
			options, err := store.options(p.ID)
			if err != nil {
				return err
			}
			if !ValidateValue(paramFromRecord(p, options), *in.ParamValue) {
				return ErrParamValueInvalid
			}
			if err := store.SetParamValue(p.ID, *in.ParamValue); err != nil {
				return err
			}
			changed["param"] = in.ParamName
		}

		for k, v := range columns {
			changed[k] = v
		}
		if len(changed) == 0 {
			return nil
		}
		columns["modification_time"] = m.now().Unix()
		return store.Update(record.ID, columns)
	})
	if err != nil {
		if KindOf(err) == KindInternal {
			m.logger.Error("failed to modify report format", "uuid", formatUUID, "error", err)
		}
		return err
	}

	if len(changed) > 0 {
		m.recordEvent(ctx, s, authz.ActionModifyReportFormat, formatUUID, audit.Metadata(changed))
	}
	return nil
}
