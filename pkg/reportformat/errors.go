package reportformat

import "errors"

// Kind groups errors for callers that only need the broad category.
type Kind int

const (
	KindInternal Kind = iota
	KindPermission
	KindNotFound
	KindValidation
	KindConflict
	KindInUse
)

func (k Kind) String() string {
	switch k {
	case KindPermission:
		return "permission"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindInUse:
		return "in_use"
	default:
		return "internal"
	}
}

// Error is a closed-set result of a lifecycle operation.
type Error struct {
	Kind   Kind
	Reason string
}

func (e *Error) Error() string { return e.Reason }

func newError(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

var (
	ErrPermissionDenied = newError(KindPermission, "permission denied")
	ErrNotFound         = newError(KindNotFound, "report format not found")
	ErrIDRequired       = newError(KindValidation, "report format id is required")
	ErrExists           = newError(KindConflict, "report format exists already")
	ErrInvalidPageToken = newError(KindValidation, "invalid page token")

	ErrEmptyFileName        = newError(KindValidation, "file name is empty")
	ErrInvalidFileName      = newError(KindValidation, "file name must not contain a path")
	ErrParamValueInvalid    = newError(KindValidation, "parameter value validation failed")
	ErrParamFallbackInvalid = newError(KindValidation, "parameter default validation failed")
	ErrParamFallbackMissing = newError(KindValidation, "parameter default missing")
	ErrParamBoundOutOfRange = newError(KindValidation, "parameter min or max out of range")
	ErrParamTypeMissing     = newError(KindValidation, "parameter type missing")
	ErrParamDuplicate       = newError(KindValidation, "duplicate parameter name")
	ErrParamTypeUnknown     = newError(KindValidation, "unknown parameter type")
	ErrParamNotFound        = newError(KindNotFound, "parameter not found")
	ErrPredefinedFlag       = newError(KindValidation, "predefined flag must be 0 or 1")

	ErrInUse        = newError(KindInUse, "report format is in use by an alert")
	ErrPredefined   = newError(KindConflict, "report format is predefined")
	ErrNameConflict = newError(KindConflict, "a report format with this name exists already")
	ErrUUIDConflict = newError(KindConflict, "a report format with this id exists already")

	ErrRecursion   = newError(KindValidation, "report format depends on itself")
	ErrInactive    = newError(KindValidation, "report format is not active")
	ErrNoGenerator = newError(KindInternal, "report format has no executable generator")
	ErrGenerate    = newError(KindInternal, "report format generator failed")

	ErrCorruptTrash = newError(KindInternal, "trashed report format has no original id")
)

// KindOf returns the kind of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Operation names a lifecycle operation for result-code mapping.
type Operation string

const (
	OpCreate  Operation = "create"
	OpCopy    Operation = "copy"
	OpModify  Operation = "modify"
	OpDelete  Operation = "delete"
	OpRestore Operation = "restore"
	OpVerify  Operation = "verify"
)

var resultCodes = map[Operation]map[*Error]int{
	OpCreate: {
		ErrExists:               1,
		ErrEmptyFileName:        2,
		ErrInvalidFileName:      2,
		ErrParamValueInvalid:    3,
		ErrParamFallbackInvalid: 4,
		ErrParamFallbackMissing: 5,
		ErrParamBoundOutOfRange: 6,
		ErrParamTypeMissing:     7,
		ErrParamDuplicate:       8,
		ErrParamTypeUnknown:     9,
		ErrPermissionDenied:     99,
	},
	OpCopy: {
		ErrExists:           1,
		ErrNotFound:         2,
		ErrPermissionDenied: 99,
	},
	OpModify: {
		ErrNotFound:          1,
		ErrIDRequired:        2,
		ErrParamNotFound:     3,
		ErrParamValueInvalid: 4,
		ErrPredefinedFlag:    5,
		ErrExists:            6,
		ErrPermissionDenied:  99,
	},
	OpDelete: {
		ErrInUse:            1,
		ErrNotFound:         2,
		ErrPredefined:       3,
		ErrPermissionDenied: 99,
	},
	OpRestore: {
		ErrNotFound:     2,
		ErrNameConflict: 3,
		ErrUUIDConflict: 4,
	},
	OpVerify: {
		ErrNotFound:         1,
		ErrPermissionDenied: 99,
	},
}

// CodeOf maps err to the numeric result code of op: 0 for nil, -1 for
// anything outside the operation's closed set.
func CodeOf(op Operation, err error) int {
	if err == nil {
		return 0
	}
	var e *Error
	if !errors.As(err, &e) {
		return -1
	}
	if code, ok := resultCodes[op][e]; ok {
		return code
	}
	return -1
}
