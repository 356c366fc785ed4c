package reportformat

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"

	"gorm.io/gorm"

	"github.com/vulnforge/reportformats/pkg/signature"
)

const predefinedResourceType = "report_format"

// Store is the metadata repository for report formats. Bind it to a
// transaction with NewStore(tx) for lifecycle operations.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the report format tables.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(
		&ReportFormatRecord{},
		&TrashRecord{},
		&ParamRecord{},
		&TrashParamRecord{},
		&ParamOptionRecord{},
		&TrashParamOptionRecord{},
		&PredefinedRecord{},
		&AlertMethodDataRecord{},
		&TrashAlertMethodDataRecord{},
	)
}

func trustOf(v int) signature.Trust {
	switch t := signature.Trust(v); t {
	case signature.TrustYes, signature.TrustNo:
		return t
	default:
		return signature.TrustUnknown
	}
}

// Get returns the active format with uuid, or nil if it does not exist.
func (s *Store) Get(uuid string) (*ReportFormatRecord, error) {
	var record ReportFormatRecord
	err := s.db.Where("uuid = ?", uuid).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get report format: %w", err)
	}
	return &record, nil
}

// GetByID returns the active format with row id, or nil.
func (s *Store) GetByID(id uint64) (*ReportFormatRecord, error) {
	var record ReportFormatRecord
	err := s.db.Where("id = ?", id).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get report format: %w", err)
	}
	return &record, nil
}

// GetTrash returns the trashed format with trash uuid, or nil.
func (s *Store) GetTrash(uuid string) (*TrashRecord, error) {
	var record TrashRecord
	err := s.db.Where("uuid = ?", uuid).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get trashed report format: %w", err)
	}
	return &record, nil
}

// UUIDTaken reports whether uuid names any active or trashed format.
func (s *Store) UUIDTaken(uuid string) (bool, error) {
	var n int64
	if err := s.db.Model(&ReportFormatRecord{}).Where("uuid = ?", uuid).Count(&n).Error; err != nil {
		return false, fmt.Errorf("check report format uuid: %w", err)
	}
	if n > 0 {
		return true, nil
	}
	if err := s.db.Model(&TrashRecord{}).Where("original_uuid = ?", uuid).Count(&n).Error; err != nil {
		return false, fmt.Errorf("check trashed report format uuid: %w", err)
	}
	return n > 0, nil
}

func whereOwner(q *gorm.DB, owner *string) *gorm.DB {
	if owner == nil {
		return q.Where("owner IS NULL")
	}
	return q.Where("owner = ?", *owner)
}

// NameTaken reports whether owner has an active format called name, other
// than the one with row id exclude.
func (s *Store) NameTaken(owner *string, name string, exclude uint64) (bool, error) {
	var n int64
	q := whereOwner(s.db.Model(&ReportFormatRecord{}), owner).Where("name = ?", name)
	if exclude != 0 {
		q = q.Where("id <> ?", exclude)
	}
	if err := q.Count(&n).Error; err != nil {
		return false, fmt.Errorf("check report format name: %w", err)
	}
	return n > 0, nil
}

// UniqueName returns base, or base with the smallest numeric suffix from 2
// that is free for owner.
func (s *Store) UniqueName(owner *string, base string) (string, error) {
	candidate := base
	for i := 2; ; i++ {
		taken, err := s.NameTaken(owner, candidate, 0)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = base + " " + strconv.Itoa(i)
	}
}

// FindByName returns owner's format called name, falling back to a
// predefined one.
func (s *Store) FindByName(owner *string, name string) (*ReportFormatRecord, error) {
	var records []ReportFormatRecord
	q := s.db.Where("name = ?", name)
	if owner != nil {
		q = q.Where("owner = ? OR owner IS NULL", *owner)
	} else {
		q = q.Where("owner IS NULL")
	}
	if err := q.Order("owner IS NULL, id").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("find report format by name: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// Create inserts record and fills in its id.
func (s *Store) Create(record *ReportFormatRecord) error {
	if err := s.db.Create(record).Error; err != nil {
		return fmt.Errorf("create report format: %w", err)
	}
	return nil
}

// Update writes the given columns of the format with row id.
func (s *Store) Update(id uint64, columns map[string]any) error {
	if err := s.db.Model(&ReportFormatRecord{}).Where("id = ?", id).Updates(columns).Error; err != nil {
		return fmt.Errorf("update report format: %w", err)
	}
	return nil
}

// Delete removes the format with row id together with its params and options.
func (s *Store) Delete(id uint64) error {
	if err := s.deleteParams(id); err != nil {
		return err
	}
	if err := s.db.Where("id = ?", id).Delete(&ReportFormatRecord{}).Error; err != nil {
		return fmt.Errorf("delete report format: %w", err)
	}
	return nil
}

// List returns active formats visible to owner: its own plus predefined ones.
// pageToken is an opaque offset.
func (s *Store) List(owner *string, pageSize int, pageToken string) ([]ReportFormatRecord, string, int, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset, err := decodePageToken(pageToken)
	if err != nil {
		return nil, "", 0, err
	}

	base := s.db.Model(&ReportFormatRecord{})
	if owner != nil {
		base = base.Where("owner = ? OR owner IS NULL", *owner)
	} else {
		base = base.Where("owner IS NULL")
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, "", 0, fmt.Errorf("count report formats: %w", err)
	}

	var records []ReportFormatRecord
	if err := base.Order("name, id").Offset(offset).Limit(pageSize + 1).Find(&records).Error; err != nil {
		return nil, "", 0, fmt.Errorf("list report formats: %w", err)
	}

	var next string
	if len(records) > pageSize {
		records = records[:pageSize]
		next = encodePageToken(offset + pageSize)
	}
	return records, next, int(total), nil
}

// ListTrash returns owner's trashed formats.
func (s *Store) ListTrash(owner *string) ([]TrashRecord, error) {
	var records []TrashRecord
	if err := whereOwner(s.db, owner).Order("name, id").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list trashed report formats: %w", err)
	}
	return records, nil
}

// ListPredefined returns every owner-less active format.
func (s *Store) ListPredefined() ([]ReportFormatRecord, error) {
	var records []ReportFormatRecord
	if err := s.db.Where("owner IS NULL").Order("id").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list predefined report formats: %w", err)
	}
	return records, nil
}

// ListByOwner returns every active format of owner.
func (s *Store) ListByOwner(owner string) ([]ReportFormatRecord, error) {
	var records []ReportFormatRecord
	if err := s.db.Where("owner = ?", owner).Order("id").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list report formats of owner: %w", err)
	}
	return records, nil
}

func encodePageToken(offset int) string {
	return base64.StdEncoding.EncodeToString([]byte(strconv.Itoa(offset)))
}

func decodePageToken(token string) (int, error) {
	if token == "" {
		return 0, nil
	}
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return 0, ErrInvalidPageToken
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil || n < 0 {
		return 0, ErrInvalidPageToken
	}
	return n, nil
}

// Params returns the parameters of format id ordered by name, options
// included.
func (s *Store) Params(id uint64) ([]Param, error) {
	records, err := s.paramRecords(id)
	if err != nil {
		return nil, err
	}
	params := make([]Param, 0, len(records))
	for i := range records {
		options, err := s.options(records[i].ID)
		if err != nil {
			return nil, err
		}
		params = append(params, paramFromRecord(&records[i], options))
	}
	return params, nil
}

func (s *Store) paramRecords(id uint64) ([]ParamRecord, error) {
	var records []ParamRecord
	if err := s.db.Where("report_format = ?", id).Order("id").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list report format params: %w", err)
	}
	return records, nil
}

// Param returns parameter name of format id, or nil.
func (s *Store) Param(id uint64, name string) (*ParamRecord, error) {
	var record ParamRecord
	err := s.db.Where("report_format = ? AND name = ?", id, name).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get report format param: %w", err)
	}
	return &record, nil
}

func (s *Store) options(paramID uint64) ([]string, error) {
	var values []string
	if err := s.db.Model(&ParamOptionRecord{}).Where("report_format_param = ?", paramID).Order("id").Pluck("value", &values).Error; err != nil {
		return nil, fmt.Errorf("list param options: %w", err)
	}
	return values, nil
}

// CreateParam inserts p for format id.
func (s *Store) CreateParam(id uint64, p Param) error {
	record := ParamRecord{
		ReportFormat: id,
		Name:         p.Name,
		Type:         int(p.Type),
		Value:        p.Value,
		TypeMin:      encodeMin(p.Min),
		TypeMax:      encodeMax(p.Max),
		Fallback:     p.Fallback,
	}
	if err := s.db.Create(&record).Error; err != nil {
		return fmt.Errorf("create report format param: %w", err)
	}
	return s.createOptions(record.ID, p.Options)
}

func (s *Store) createOptions(paramID uint64, options []string) error {
	for _, v := range options {
		if err := s.db.Create(&ParamOptionRecord{ReportFormatParam: paramID, Value: v}).Error; err != nil {
			return fmt.Errorf("create param option: %w", err)
		}
	}
	return nil
}

// UpdateParam rewrites the definition of parameter paramID and replaces its
// options.
func (s *Store) UpdateParam(paramID uint64, p Param) error {
	err := s.db.Model(&ParamRecord{}).Where("id = ?", paramID).Updates(map[string]any{
		"type":     int(p.Type),
		"value":    p.Value,
		"type_min": encodeMin(p.Min),
		"type_max": encodeMax(p.Max),
		"fallback": p.Fallback,
	}).Error
	if err != nil {
		return fmt.Errorf("update report format param: %w", err)
	}
	if err := s.db.Where("report_format_param = ?", paramID).Delete(&ParamOptionRecord{}).Error; err != nil {
		return fmt.Errorf("delete param options: %w", err)
	}
	return s.createOptions(paramID, p.Options)
}

// SetParamValue sets the current value of parameter paramID.
func (s *Store) SetParamValue(paramID uint64, value string) error {
	if err := s.db.Model(&ParamRecord{}).Where("id = ?", paramID).Update("value", value).Error; err != nil {
		return fmt.Errorf("set report format param value: %w", err)
	}
	return nil
}

// DeleteParam removes one parameter and its options.
func (s *Store) DeleteParam(paramID uint64) error {
	if err := s.db.Where("report_format_param = ?", paramID).Delete(&ParamOptionRecord{}).Error; err != nil {
		return fmt.Errorf("delete param options: %w", err)
	}
	if err := s.db.Where("id = ?", paramID).Delete(&ParamRecord{}).Error; err != nil {
		return fmt.Errorf("delete report format param: %w", err)
	}
	return nil
}

func (s *Store) deleteParams(id uint64) error {
	sub := s.db.Model(&ParamRecord{}).Select("id").Where("report_format = ?", id)
	if err := s.db.Where("report_format_param IN (?)", sub).Delete(&ParamOptionRecord{}).Error; err != nil {
		return fmt.Errorf("delete param options: %w", err)
	}
	if err := s.db.Where("report_format = ?", id).Delete(&ParamRecord{}).Error; err != nil {
		return fmt.Errorf("delete report format params: %w", err)
	}
	return nil
}

// IsPredefined reports whether format id carries the predefined marker.
func (s *Store) IsPredefined(id uint64) (bool, error) {
	var n int64
	err := s.db.Model(&PredefinedRecord{}).
		Where("resource_type = ? AND resource = ?", predefinedResourceType, id).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("check predefined marker: %w", err)
	}
	return n > 0, nil
}

// SetPredefined adds or removes the predefined marker of format id.
func (s *Store) SetPredefined(id uint64, predefined bool) error {
	q := s.db.Where("resource_type = ? AND resource = ?", predefinedResourceType, id)
	if err := q.Delete(&PredefinedRecord{}).Error; err != nil {
		return fmt.Errorf("clear predefined marker: %w", err)
	}
	if !predefined {
		return nil
	}
	if err := s.db.Create(&PredefinedRecord{ResourceType: predefinedResourceType, Resource: id}).Error; err != nil {
		return fmt.Errorf("set predefined marker: %w", err)
	}
	return nil
}

// InUse reports whether a live alert references uuid.
func (s *Store) InUse(uuid string) (bool, error) {
	var n int64
	err := s.db.Model(&AlertMethodDataRecord{}).
		Where("name IN ? AND data = ?", reportFormatAlertData, uuid).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("check alert usage: %w", err)
	}
	return n > 0, nil
}

// InUseByTrash reports whether a trashed alert references uuid.
func (s *Store) InUseByTrash(uuid string) (bool, error) {
	var n int64
	err := s.db.Model(&TrashAlertMethodDataRecord{}).
		Where("name IN ? AND data = ?", reportFormatAlertData, uuid).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("check trashed alert usage: %w", err)
	}
	return n > 0, nil
}

// InUseAnywhere reports whether any live or trashed alert references uuid.
func (s *Store) InUseAnywhere(uuid string) (bool, error) {
	used, err := s.InUse(uuid)
	if err != nil || used {
		return used, err
	}
	return s.InUseByTrash(uuid)
}
