package reportformat

// Timestamps are unix seconds.

// ReportFormatRecord is an active report format.
type ReportFormatRecord struct {
	ID               uint64  `gorm:"primaryKey;autoIncrement;column:id"`
	UUID             string  `gorm:"column:uuid;type:varchar(36);uniqueIndex;not null"`
	Owner            *string `gorm:"column:owner;type:varchar(36);index"`
	Name             string  `gorm:"column:name;type:varchar(255);index;not null"`
	Extension        string  `gorm:"column:extension;type:varchar(64)"`
	ContentType      string  `gorm:"column:content_type;type:varchar(255)"`
	Summary          string  `gorm:"column:summary;type:text"`
	Description      string  `gorm:"column:description;type:text"`
	Signature        string  `gorm:"column:signature;type:text"`
	Trust            int     `gorm:"column:trust;not null"`
	TrustTime        int64   `gorm:"column:trust_time"`
	Flags            int     `gorm:"column:flags;not null;default:0"`
	CreationTime     int64   `gorm:"column:creation_time"`
	ModificationTime int64   `gorm:"column:modification_time"`
}

// TableName returns the GORM table name.
func (ReportFormatRecord) TableName() string { return "report_formats" }

// TrashRecord is a soft-deleted report format. UUID is the trash UUID;
// OriginalUUID is the UUID the format is restored under.
type TrashRecord struct {
	ID               uint64  `gorm:"primaryKey;autoIncrement;column:id"`
	UUID             string  `gorm:"column:uuid;type:varchar(36);uniqueIndex;not null"`
	OriginalUUID     *string `gorm:"column:original_uuid;type:varchar(36);index"`
	Owner            *string `gorm:"column:owner;type:varchar(36);index"`
	Name             string  `gorm:"column:name;type:varchar(255);not null"`
	Extension        string  `gorm:"column:extension;type:varchar(64)"`
	ContentType      string  `gorm:"column:content_type;type:varchar(255)"`
	Summary          string  `gorm:"column:summary;type:text"`
	Description      string  `gorm:"column:description;type:text"`
	Signature        string  `gorm:"column:signature;type:text"`
	Trust            int     `gorm:"column:trust;not null"`
	TrustTime        int64   `gorm:"column:trust_time"`
	Flags            int     `gorm:"column:flags;not null;default:0"`
	CreationTime     int64   `gorm:"column:creation_time"`
	ModificationTime int64   `gorm:"column:modification_time"`
}

// TableName returns the GORM table name.
func (TrashRecord) TableName() string { return "report_formats_trash" }

// ParamRecord is a parameter of an active format. TypeMin and TypeMax hold
// storage sentinels when unset; convert through paramFromRecord.
type ParamRecord struct {
	ID           uint64 `gorm:"primaryKey;autoIncrement;column:id"`
	ReportFormat uint64 `gorm:"column:report_format;uniqueIndex:idx_rf_param_name,priority:1;not null"`
	Name         string `gorm:"column:name;type:varchar(255);uniqueIndex:idx_rf_param_name,priority:2;not null"`
	Type         int    `gorm:"column:type;not null"`
	Value        string `gorm:"column:value;type:text"`
	TypeMin      int64  `gorm:"column:type_min"`
	TypeMax      int64  `gorm:"column:type_max"`
	TypeRegex    string `gorm:"column:type_regex;type:text"`
	Fallback     string `gorm:"column:fallback;type:text"`
}

// TableName returns the GORM table name.
func (ParamRecord) TableName() string { return "report_format_params" }

// TrashParamRecord is a parameter of a trashed format.
type TrashParamRecord struct {
	ID           uint64 `gorm:"primaryKey;autoIncrement;column:id"`
	ReportFormat uint64 `gorm:"column:report_format;uniqueIndex:idx_rf_trash_param_name,priority:1;not null"`
	Name         string `gorm:"column:name;type:varchar(255);uniqueIndex:idx_rf_trash_param_name,priority:2;not null"`
	Type         int    `gorm:"column:type;not null"`
	Value        string `gorm:"column:value;type:text"`
	TypeMin      int64  `gorm:"column:type_min"`
	TypeMax      int64  `gorm:"column:type_max"`
	TypeRegex    string `gorm:"column:type_regex;type:text"`
	Fallback     string `gorm:"column:fallback;type:text"`
}

// TableName returns the GORM table name.
func (TrashParamRecord) TableName() string { return "report_format_params_trash" }

// ParamOptionRecord is one selection option, ordered by ID.
type ParamOptionRecord struct {
	ID                uint64 `gorm:"primaryKey;autoIncrement;column:id"`
	ReportFormatParam uint64 `gorm:"column:report_format_param;index;not null"`
	Value             string `gorm:"column:value;type:text"`
}

// TableName returns the GORM table name.
func (ParamOptionRecord) TableName() string { return "report_format_param_options" }

// TrashParamOptionRecord is one selection option of a trashed parameter.
type TrashParamOptionRecord struct {
	ID                uint64 `gorm:"primaryKey;autoIncrement;column:id"`
	ReportFormatParam uint64 `gorm:"column:report_format_param;index;not null"`
	Value             string `gorm:"column:value;type:text"`
}

// TableName returns the GORM table name.
func (TrashParamOptionRecord) TableName() string { return "report_format_param_options_trash" }

// PredefinedRecord marks a resource as feed-supplied.
type PredefinedRecord struct {
	ID           uint64 `gorm:"primaryKey;autoIncrement;column:id"`
	ResourceType string `gorm:"column:resource_type;type:varchar(64);uniqueIndex:idx_predefined_resource,priority:1;not null"`
	Resource     uint64 `gorm:"column:resource;uniqueIndex:idx_predefined_resource,priority:2;not null"`
}

// TableName returns the GORM table name.
func (PredefinedRecord) TableName() string { return "resources_predefined" }

// AlertMethodDataRecord is a configuration value of an alert method. A
// report format is in use when one of the reportFormatAlertData names holds
// its UUID.
type AlertMethodDataRecord struct {
	ID    uint64 `gorm:"primaryKey;autoIncrement;column:id"`
	Alert uint64 `gorm:"column:alert;index;not null"`
	Name  string `gorm:"column:name;type:varchar(255);index;not null"`
	Data  string `gorm:"column:data;type:text"`
}

// TableName returns the GORM table name.
func (AlertMethodDataRecord) TableName() string { return "alert_method_data" }

// TrashAlertMethodDataRecord is the alert method data of a trashed alert.
type TrashAlertMethodDataRecord struct {
	ID    uint64 `gorm:"primaryKey;autoIncrement;column:id"`
	Alert uint64 `gorm:"column:alert;index;not null"`
	Name  string `gorm:"column:name;type:varchar(255);index;not null"`
	Data  string `gorm:"column:data;type:text"`
}

// TableName returns the GORM table name.
func (TrashAlertMethodDataRecord) TableName() string { return "alert_method_data_trash" }

var reportFormatAlertData = []string{
	"notice_attach_format",
	"notice_report_format",
	"scp_report_format",
	"send_report_format",
	"smb_report_format",
	"verinice_server_report_format",
}

func (r *ReportFormatRecord) active() bool { return r.Flags&FlagActive != 0 }

func ownerString(owner *string) string {
	if owner == nil {
		return ""
	}
	return *owner
}

func stringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func paramFromRecord(r *ParamRecord, options []string) Param {
	t := ParamType(r.Type)
	p := Param{
		Name:     r.Name,
		Type:     t,
		TypeName: t.String(),
		Value:    r.Value,
		Fallback: r.Fallback,
		Min:      decodeMin(r.TypeMin),
		Max:      decodeMax(r.TypeMax),
		Options:  options,
	}
	p.MinText = p.Min.String()
	p.MaxText = p.Max.String()
	return p
}

func (r *ReportFormatRecord) view() *ReportFormat {
	return &ReportFormat{
		ID:               r.ID,
		UUID:             r.UUID,
		Owner:            ownerString(r.Owner),
		Name:             r.Name,
		Summary:          r.Summary,
		Description:      r.Description,
		Extension:        r.Extension,
		ContentType:      r.ContentType,
		Signature:        r.Signature,
		Trust:            trustOf(r.Trust),
		TrustName:        trustOf(r.Trust).String(),
		TrustTime:        r.TrustTime,
		Active:           r.active(),
		CreationTime:     r.CreationTime,
		ModificationTime: r.ModificationTime,
	}
}

func (r *TrashRecord) view() *ReportFormat {
	return &ReportFormat{
		ID:               r.ID,
		UUID:             r.UUID,
		OriginalUUID:     ownerString(r.OriginalUUID),
		Owner:            ownerString(r.Owner),
		Name:             r.Name,
		Summary:          r.Summary,
		Description:      r.Description,
		Extension:        r.Extension,
		ContentType:      r.ContentType,
		Signature:        r.Signature,
		Trust:            trustOf(r.Trust),
		TrustName:        trustOf(r.Trust).String(),
		TrustTime:        r.TrustTime,
		Active:           r.Flags&FlagActive != 0,
		Trashed:          true,
		CreationTime:     r.CreationTime,
		ModificationTime: r.ModificationTime,
	}
}
