// Package acl stores explicit permission grants and tag attachments, and
// relocates them when a resource moves between its table and the trash.
package acl

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Resource locations.
const (
	LocationTable = 0
	LocationTrash = 1
)

// Subject types.
const (
	SubjectUser  = "user"
	SubjectRole  = "role"
	SubjectGroup = "group"
)

// PermissionRecord grants action on a resource to a subject. Resource is 0
// when the resource has gone (orphaned grant).
type PermissionRecord struct {
	ID               uint64 `gorm:"primaryKey;autoIncrement;column:id"`
	UUID             string `gorm:"column:uuid;type:varchar(36);uniqueIndex;not null"`
	Name             string `gorm:"column:name;type:varchar(255);index:idx_perm_resource,priority:4;not null"`
	ResourceType     string `gorm:"column:resource_type;type:varchar(64);index:idx_perm_resource,priority:1"`
	Resource         uint64 `gorm:"column:resource;index:idx_perm_resource,priority:2"`
	ResourceUUID     string `gorm:"column:resource_uuid;type:varchar(36);index"`
	ResourceLocation int    `gorm:"column:resource_location;index:idx_perm_resource,priority:3"`
	SubjectType      string `gorm:"column:subject_type;type:varchar(16)"`
	Subject          string `gorm:"column:subject;type:varchar(36);index"`
	CreationTime     int64  `gorm:"column:creation_time"`
	ModificationTime int64  `gorm:"column:modification_time"`
}

// TableName returns the GORM table name.
func (PermissionRecord) TableName() string { return "permissions" }

// TagResourceRecord attaches a tag to a resource.
type TagResourceRecord struct {
	ID               uint64 `gorm:"primaryKey;autoIncrement;column:id"`
	Tag              string `gorm:"column:tag;type:varchar(36);index;not null"`
	ResourceType     string `gorm:"column:resource_type;type:varchar(64);index:idx_tag_resource,priority:1"`
	Resource         uint64 `gorm:"column:resource;index:idx_tag_resource,priority:2"`
	ResourceUUID     string `gorm:"column:resource_uuid;type:varchar(36)"`
	ResourceLocation int    `gorm:"column:resource_location;index:idx_tag_resource,priority:3"`
}

// TableName returns the GORM table name.
func (TagResourceRecord) TableName() string { return "tag_resources" }

// Store provides grant and tag operations. Bind it to a transaction with
// NewStore(tx) when relocating.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the permission and tag tables.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&PermissionRecord{}, &TagResourceRecord{})
}

// Grant records that subject may perform action on the resource.
func (s *Store) Grant(action, resourceType string, resourceID uint64, resourceUUID, subjectType, subject string) error {
	now := time.Now().Unix()
	record := PermissionRecord{
		UUID:             uuid.NewString(),
		Name:             action,
		ResourceType:     resourceType,
		Resource:         resourceID,
		ResourceUUID:     resourceUUID,
		ResourceLocation: LocationTable,
		SubjectType:      subjectType,
		Subject:          subject,
		CreationTime:     now,
		ModificationTime: now,
	}
	if err := s.db.Create(&record).Error; err != nil {
		return fmt.Errorf("create permission: %w", err)
	}
	return nil
}

// AddRolePermission grants action on the resource to a role unless that
// grant already exists.
func (s *Store) AddRolePermission(action, resourceType string, resourceID uint64, resourceUUID, roleUUID string) error {
	var n int64
	err := s.db.Model(&PermissionRecord{}).
		Where("name = ? AND resource_type = ? AND resource_uuid = ? AND resource_location = ? AND subject_type = ? AND subject = ?",
			action, resourceType, resourceUUID, LocationTable, SubjectRole, roleUUID).
		Count(&n).Error
	if err != nil {
		return fmt.Errorf("check role permission: %w", err)
	}
	if n > 0 {
		// Keep the row id current; it changes when a resource is re-created.
		return s.db.Model(&PermissionRecord{}).
			Where("name = ? AND resource_type = ? AND resource_uuid = ? AND subject_type = ? AND subject = ?",
				action, resourceType, resourceUUID, SubjectRole, roleUUID).
			Update("resource", resourceID).Error
	}
	return s.Grant(action, resourceType, resourceID, resourceUUID, SubjectRole, roleUUID)
}

// HasGrant reports whether any of subjects holds action on the live resource.
func (s *Store) HasGrant(ctx context.Context, resourceType, resourceUUID string, subjects []string, action string) (bool, error) {
	if len(subjects) == 0 {
		return false, nil
	}
	var n int64
	err := s.db.WithContext(ctx).Model(&PermissionRecord{}).
		Where("resource_type = ? AND resource_uuid = ? AND resource_location = ? AND resource <> 0", resourceType, resourceUUID, LocationTable).
		Where("name = ? AND subject IN ?", action, subjects).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("check grant: %w", err)
	}
	return n > 0, nil
}

// SetLocations moves grants and tags of a resource from (oldID, from) to
// (newID, to), e.g. when it is trashed or restored.
func (s *Store) SetLocations(resourceType string, oldID, newID uint64, from, to int) error {
	cols := map[string]any{"resource": newID, "resource_location": to}
	err := s.db.Model(&PermissionRecord{}).
		Where("resource_type = ? AND resource = ? AND resource_location = ?", resourceType, oldID, from).
		Updates(cols).Error
	if err != nil {
		return fmt.Errorf("relocate permissions: %w", err)
	}
	err = s.db.Model(&TagResourceRecord{}).
		Where("resource_type = ? AND resource = ? AND resource_location = ?", resourceType, oldID, from).
		Updates(cols).Error
	if err != nil {
		return fmt.Errorf("relocate tags: %w", err)
	}
	return nil
}

// SetOrphans detaches grants from a resource that is being removed for good
// and drops its tag attachments.
func (s *Store) SetOrphans(resourceType string, id uint64, location int) error {
	err := s.db.Model(&PermissionRecord{}).
		Where("resource_type = ? AND resource = ? AND resource_location = ?", resourceType, id, location).
		Update("resource", 0).Error
	if err != nil {
		return fmt.Errorf("orphan permissions: %w", err)
	}
	return s.RemoveTags(resourceType, id, location)
}

// RemoveTags drops every tag attachment of a resource.
func (s *Store) RemoveTags(resourceType string, id uint64, location int) error {
	err := s.db.Where("resource_type = ? AND resource = ? AND resource_location = ?", resourceType, id, location).
		Delete(&TagResourceRecord{}).Error
	if err != nil {
		return fmt.Errorf("remove tags: %w", err)
	}
	return nil
}

// DeleteLocation deletes every grant and tag of resourceType at location.
func (s *Store) DeleteLocation(resourceType string, location int) error {
	if err := s.db.Where("resource_type = ? AND resource_location = ?", resourceType, location).Delete(&PermissionRecord{}).Error; err != nil {
		return fmt.Errorf("delete permissions: %w", err)
	}
	if err := s.db.Where("resource_type = ? AND resource_location = ?", resourceType, location).Delete(&TagResourceRecord{}).Error; err != nil {
		return fmt.Errorf("delete tags: %w", err)
	}
	return nil
}

// AttachTag attaches tagUUID to a live resource.
func (s *Store) AttachTag(tagUUID, resourceType string, resourceID uint64, resourceUUID string) error {
	record := TagResourceRecord{
		Tag:              tagUUID,
		ResourceType:     resourceType,
		Resource:         resourceID,
		ResourceUUID:     resourceUUID,
		ResourceLocation: LocationTable,
	}
	if err := s.db.Create(&record).Error; err != nil {
		return fmt.Errorf("attach tag: %w", err)
	}
	return nil
}

// Permissions returns the grants attached to a resource at location.
func (s *Store) Permissions(resourceType string, id uint64, location int) ([]PermissionRecord, error) {
	var records []PermissionRecord
	err := s.db.Where("resource_type = ? AND resource = ? AND resource_location = ?", resourceType, id, location).
		Order("id").Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	return records, nil
}

// Tags returns the tag attachments of a resource at location.
func (s *Store) Tags(resourceType string, id uint64, location int) ([]TagResourceRecord, error) {
	var records []TagResourceRecord
	err := s.db.Where("resource_type = ? AND resource = ? AND resource_location = ?", resourceType, id, location).
		Order("id").Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return records, nil
}
