package reportformat

import (
	"context"

	"github.com/vulnforge/reportformats/pkg/authz"
)

// Get returns the active format formatUUID with its params, or the caller's
// trashed format with that trash UUID.
func (m *Manager) Get(ctx context.Context, formatUUID string) (*ReportFormat, error) {
	s, err := m.session(ctx)
	if err != nil {
		return nil, err
	}
	if !m.authz.May(ctx, s, authz.ActionGetReportFormats) {
		return nil, ErrPermissionDenied
	}

	store := NewStore(m.db.WithContext(ctx))
	record, err := store.Get(formatUUID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		trash, err := store.GetTrash(formatUUID)
		if err != nil {
			return nil, err
		}
		if trash == nil || !m.ownsTrash(ctx, s, trash.Owner) {
			return nil, ErrNotFound
		}
		rf := trash.view()
		if rf.Params, err = store.TrashParams(trash.ID); err != nil {
			return nil, err
		}
		return rf, nil
	}

	ok, err := m.mayAccess(ctx, s, record.Owner, record.UUID, authz.ActionGetReportFormats)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return m.describe(store, record)
}

func (m *Manager) describe(store *Store, record *ReportFormatRecord) (*ReportFormat, error) {
	rf := record.view()
	var err error
	if rf.Predefined, err = isPredefined(store, record); err != nil {
		return nil, err
	}
	if rf.InUse, err = store.InUse(record.UUID); err != nil {
		return nil, err
	}
	if rf.Params, err = store.Params(record.ID); err != nil {
		return nil, err
	}
	return rf, nil
}

// ListResult is one page of formats.
type ListResult struct {
	Items         []*ReportFormat `json:"items"`
	NextPageToken string          `json:"nextPageToken,omitempty"`
	TotalSize     int             `json:"totalSize"`
}

// List returns the caller's formats and the predefined ones, by name.
func (m *Manager) List(ctx context.Context, pageSize int, pageToken string) (*ListResult, error) {
	s, err := m.session(ctx)
	if err != nil {
		return nil, err
	}
	if !m.authz.May(ctx, s, authz.ActionGetReportFormats) {
		return nil, ErrPermissionDenied
	}

	store := NewStore(m.db.WithContext(ctx))
	var owner *string
	if s.UserUUID != "" {
		owner = &s.UserUUID
	}
	records, next, total, err := store.List(owner, pageSize, pageToken)
	if err != nil {
		return nil, err
	}
	result := &ListResult{Items: make([]*ReportFormat, 0, len(records)), NextPageToken: next, TotalSize: total}
	for i := range records {
		rf, err := m.describe(store, &records[i])
		if err != nil {
			return nil, err
		}
		result.Items = append(result.Items, rf)
	}
	return result, nil
}

// ListTrash returns the caller's trashed formats.
func (m *Manager) ListTrash(ctx context.Context) ([]*ReportFormat, error) {
	s, err := m.session(ctx)
	if err != nil {
		return nil, err
	}
	if !m.authz.May(ctx, s, authz.ActionGetReportFormats) {
		return nil, ErrPermissionDenied
	}

	store := NewStore(m.db.WithContext(ctx))
	records, err := store.ListTrash(&s.UserUUID)
	if err != nil {
		return nil, err
	}
	out := make([]*ReportFormat, 0, len(records))
	for i := range records {
		out = append(out, records[i].view())
	}
	return out, nil
}

// ListParams returns the params of an active format.
func (m *Manager) ListParams(ctx context.Context, formatUUID string) ([]Param, error) {
	s, err := m.session(ctx)
	if err != nil {
		return nil, err
	}
	if !m.authz.May(ctx, s, authz.ActionGetReportFormats) {
		return nil, ErrPermissionDenied
	}
	store := NewStore(m.db.WithContext(ctx))
	record, err := m.find(ctx, store, s, formatUUID, authz.ActionGetReportFormats)
	if err != nil {
		return nil, err
	}
	return store.Params(record.ID)
}

// FindByName returns the caller's format called name, else a predefined one.
func (m *Manager) FindByName(ctx context.Context, name string) (*ReportFormat, error) {
	s, err := m.session(ctx)
	if err != nil {
		return nil, err
	}
	if !m.authz.May(ctx, s, authz.ActionGetReportFormats) {
		return nil, ErrPermissionDenied
	}
	store := NewStore(m.db.WithContext(ctx))
	var owner *string
	if s.UserUUID != "" {
		owner = &s.UserUUID
	}
	record, err := store.FindByName(owner, name)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrNotFound
	}
	return m.describe(store, record)
}
