package reportformat

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// MoveToTrash clones record with its params and options into the trash
// tables under trashUUID and deletes the originals. The new trash row is
// returned.
func (s *Store) MoveToTrash(record *ReportFormatRecord, trashUUID string) (*TrashRecord, error) {
	original := record.UUID
	trash := &TrashRecord{
		UUID:             trashUUID,
		OriginalUUID:     &original,
		Owner:            record.Owner,
		Name:             record.Name,
		Extension:        record.Extension,
		ContentType:      record.ContentType,
		Summary:          record.Summary,
		Description:      record.Description,
		Signature:        record.Signature,
		Trust:            record.Trust,
		TrustTime:        record.TrustTime,
		Flags:            record.Flags,
		CreationTime:     record.CreationTime,
		ModificationTime: record.ModificationTime,
	}
	if err := s.db.Create(trash).Error; err != nil {
		return nil, fmt.Errorf("create trashed report format: %w", err)
	}

	params, err := s.paramRecords(record.ID)
	if err != nil {
		return nil, err
	}
	for _, p := range params {
		tp := TrashParamRecord{
			ReportFormat: trash.ID,
			Name:         p.Name,
			Type:         p.Type,
			Value:        p.Value,
			TypeMin:      p.TypeMin,
			TypeMax:      p.TypeMax,
			TypeRegex:    p.TypeRegex,
			Fallback:     p.Fallback,
		}
		if err := s.db.Create(&tp).Error; err != nil {
			return nil, fmt.Errorf("create trashed param: %w", err)
		}
		options, err := s.options(p.ID)
		if err != nil {
			return nil, err
		}
		for _, v := range options {
			if err := s.db.Create(&TrashParamOptionRecord{ReportFormatParam: tp.ID, Value: v}).Error; err != nil {
				return nil, fmt.Errorf("create trashed param option: %w", err)
			}
		}
	}

	if err := s.SetPredefined(record.ID, false); err != nil {
		return nil, err
	}
	if err := s.Delete(record.ID); err != nil {
		return nil, err
	}
	return trash, nil
}

// RestoreFromTrash re-inserts trash under its original UUID with params and
// options, and deletes the trash rows. The caller checks for conflicts first.
func (s *Store) RestoreFromTrash(trash *TrashRecord) (*ReportFormatRecord, error) {
	if trash.OriginalUUID == nil || *trash.OriginalUUID == "" {
		return nil, ErrCorruptTrash
	}
	record := &ReportFormatRecord{
		UUID:             *trash.OriginalUUID,
		Owner:            trash.Owner,
		Name:             trash.Name,
		Extension:        trash.Extension,
		ContentType:      trash.ContentType,
		Summary:          trash.Summary,
		Description:      trash.Description,
		Signature:        trash.Signature,
		Trust:            trash.Trust,
		TrustTime:        trash.TrustTime,
		Flags:            trash.Flags,
		CreationTime:     trash.CreationTime,
		ModificationTime: trash.ModificationTime,
	}
	if err := s.db.Create(record).Error; err != nil {
		return nil, fmt.Errorf("restore report format: %w", err)
	}

	params, err := s.trashParamRecords(trash.ID)
	if err != nil {
		return nil, err
	}
	for _, tp := range params {
		p := ParamRecord{
			ReportFormat: record.ID,
			Name:         tp.Name,
			Type:         tp.Type,
			Value:        tp.Value,
			TypeMin:      tp.TypeMin,
			TypeMax:      tp.TypeMax,
			TypeRegex:    tp.TypeRegex,
			Fallback:     tp.Fallback,
		}
		if err := s.db.Create(&p).Error; err != nil {
			return nil, fmt.Errorf("restore param: %w", err)
		}
		options, err := s.trashOptions(tp.ID)
		if err != nil {
			return nil, err
		}
		if err := s.createOptions(p.ID, options); err != nil {
			return nil, err
		}
	}

	if err := s.DeleteTrash(trash.ID); err != nil {
		return nil, err
	}
	return record, nil
}

// GetTrashByID returns the trash row with row id, or nil.
func (s *Store) GetTrashByID(id uint64) (*TrashRecord, error) {
	var record TrashRecord
	err := s.db.Where("id = ?", id).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get trashed report format: %w", err)
	}
	return &record, nil
}

// TrashParams returns the params of trashed format id ordered by name.
func (s *Store) TrashParams(id uint64) ([]Param, error) {
	records, err := s.trashParamRecords(id)
	if err != nil {
		return nil, err
	}
	params := make([]Param, 0, len(records))
	for i := range records {
		options, err := s.trashOptions(records[i].ID)
		if err != nil {
			return nil, err
		}
		r := ParamRecord(records[i])
		params = append(params, paramFromRecord(&r, options))
	}
	return params, nil
}

func (s *Store) trashParamRecords(id uint64) ([]TrashParamRecord, error) {
	var records []TrashParamRecord
	if err := s.db.Where("report_format = ?", id).Order("id").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list trashed params: %w", err)
	}
	return records, nil
}

func (s *Store) trashOptions(paramID uint64) ([]string, error) {
	var values []string
	if err := s.db.Model(&TrashParamOptionRecord{}).Where("report_format_param = ?", paramID).Order("id").Pluck("value", &values).Error; err != nil {
		return nil, fmt.Errorf("list trashed param options: %w", err)
	}
	return values, nil
}

// DeleteTrash removes trashed format id with its params and options.
func (s *Store) DeleteTrash(id uint64) error {
	sub := s.db.Model(&TrashParamRecord{}).Select("id").Where("report_format = ?", id)
	if err := s.db.Where("report_format_param IN (?)", sub).Delete(&TrashParamOptionRecord{}).Error; err != nil {
		return fmt.Errorf("delete trashed param options: %w", err)
	}
	if err := s.db.Where("report_format = ?", id).Delete(&TrashParamRecord{}).Error; err != nil {
		return fmt.Errorf("delete trashed params: %w", err)
	}
	if err := s.db.Where("id = ?", id).Delete(&TrashRecord{}).Error; err != nil {
		return fmt.Errorf("delete trashed report format: %w", err)
	}
	return nil
}

// AllTrashIDs returns the row id of every trashed format.
func (s *Store) AllTrashIDs() ([]uint64, error) {
	var ids []uint64
	if err := s.db.Model(&TrashRecord{}).Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list trash ids: %w", err)
	}
	return ids, nil
}
