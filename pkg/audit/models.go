package audit

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Metadata is a free-form map stored as JSON text.
type Metadata map[string]any

// Scan implements the sql.Scanner interface for Metadata.
func (m *Metadata) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case string:
		bytes = []byte(v)
	case []byte:
		bytes = v
	default:
		return fmt.Errorf("unsupported type for Metadata: %T", value)
	}
	return json.Unmarshal(bytes, m)
}

// Value implements the driver.Valuer interface for Metadata.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Event types.
const (
	EventLifecycle = "lifecycle"
	EventRequest   = "request"
)

// Outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeDenied  = "denied"
)

// EventRecord is an immutable audit log entry.
type EventRecord struct {
	ID           string    `gorm:"primaryKey;column:id;type:varchar(36)"`
	EventType    string    `gorm:"column:event_type;index:idx_audit_type_time,priority:1;not null"`
	Actor        string    `gorm:"column:actor;index:idx_audit_actor_time,priority:1;not null"`
	ResourceType string    `gorm:"column:resource_type"`
	ResourceUUID string    `gorm:"column:resource_uuid;index:idx_audit_resource_time,priority:1"`
	Action       string    `gorm:"column:action"`
	Outcome      string    `gorm:"column:outcome;not null"`
	Reason       string    `gorm:"column:reason"`
	RequestID    string    `gorm:"column:request_id;index"`
	StatusCode   int       `gorm:"column:status_code"`
	Metadata     Metadata  `gorm:"column:metadata;type:text"`
	CreatedAt    time.Time `gorm:"column:created_at;index:idx_audit_type_time,priority:2;index:idx_audit_actor_time,priority:2;index:idx_audit_resource_time,priority:2;autoCreateTime"`
}

// TableName returns the GORM table name.
func (EventRecord) TableName() string { return "audit_events" }
