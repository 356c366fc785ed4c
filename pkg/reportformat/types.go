package reportformat

import (
	"math"
	"strconv"
	"strings"

	"github.com/vulnforge/reportformats/pkg/signature"
)

// ParamType is the declared type of a report format parameter. Values match
// the persisted type column.
type ParamType int

const (
	ParamBoolean          ParamType = 0
	ParamInteger          ParamType = 1
	ParamSelection        ParamType = 2
	ParamString           ParamType = 3
	ParamText             ParamType = 4
	ParamReportFormatList ParamType = 5
	ParamError            ParamType = 100
)

var paramTypeNames = map[ParamType]string{
	ParamBoolean:          "boolean",
	ParamInteger:          "integer",
	ParamSelection:        "selection",
	ParamString:           "string",
	ParamText:             "text",
	ParamReportFormatList: "report_format_list",
}

func (t ParamType) String() string {
	if name, ok := paramTypeNames[t]; ok {
		return name
	}
	return "error"
}

// ParseParamType maps a type name to a ParamType; unknown names yield ParamError.
func ParseParamType(name string) ParamType {
	for t, n := range paramTypeNames {
		if strings.EqualFold(n, name) {
			return t
		}
	}
	return ParamError
}

// Bound is an optional inclusive parameter limit.
type Bound struct {
	value int64
	set   bool
}

// NoBound is the unset limit.
var NoBound = Bound{}

// BoundAt returns a set limit at v.
func BoundAt(v int64) Bound { return Bound{value: v, set: true} }

// Get returns the limit and whether it is set.
func (b Bound) Get() (int64, bool) { return b.value, b.set }

// IsSet reports whether the limit is set.
func (b Bound) IsSet() bool { return b.set }

func (b Bound) String() string {
	if !b.set {
		return ""
	}
	return strconv.FormatInt(b.value, 10)
}

// Storage encodes an unset min as math.MinInt64 and an unset max as
// math.MaxInt64. Nothing outside this file should see the sentinels.
const (
	minSentinel int64 = math.MinInt64
	maxSentinel int64 = math.MaxInt64
)

func encodeMin(b Bound) int64 {
	if !b.set {
		return minSentinel
	}
	return b.value
}

func encodeMax(b Bound) int64 {
	if !b.set {
		return maxSentinel
	}
	return b.value
}

func decodeMin(v int64) Bound {
	if v == minSentinel {
		return NoBound
	}
	return BoundAt(v)
}

func decodeMax(v int64) Bound {
	if v == maxSentinel {
		return NoBound
	}
	return BoundAt(v)
}

// parseBound reads a min or max supplied by a caller or the feed. Empty means
// unset. A value that does not parse, or equals either sentinel, is rejected.
func parseBound(s string) (Bound, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return NoBound, nil
	}
	v, err := strconv.ParseInt(s, 0, 64)
	if err != nil || v == minSentinel || v == maxSentinel {
		return NoBound, ErrParamBoundOutOfRange
	}
	return BoundAt(v), nil
}

// Param is a report format parameter definition with its current value.
type Param struct {
	Name     string    `json:"name"`
	Type     ParamType `json:"-"`
	TypeName string    `json:"type"`
	Value    string    `json:"value"`
	Fallback string    `json:"default"`
	Min      Bound     `json:"-"`
	Max      Bound     `json:"-"`
	MinText  string    `json:"min,omitempty"`
	MaxText  string    `json:"max,omitempty"`
	Options  []string  `json:"options,omitempty"`
}

// ParamInput is an unvalidated parameter definition.
type ParamInput struct {
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	Value    string   `json:"value"`
	Fallback *string  `json:"default"`
	Min      string   `json:"min,omitempty"`
	Max      string   `json:"max,omitempty"`
	Options  []string `json:"options,omitempty"`
}

// ReportFormat is the caller-facing view of an active or trashed format.
type ReportFormat struct {
	ID               uint64          `json:"-"`
	UUID             string          `json:"id"`
	OriginalUUID     string          `json:"originalId,omitempty"`
	Owner            string          `json:"owner,omitempty"`
	Name             string          `json:"name"`
	Summary          string          `json:"summary"`
	Description      string          `json:"description"`
	Extension        string          `json:"extension"`
	ContentType      string          `json:"contentType"`
	Signature        string          `json:"signature,omitempty"`
	Trust            signature.Trust `json:"-"`
	TrustName        string          `json:"trust"`
	TrustTime        int64           `json:"trustTime"`
	Active           bool            `json:"active"`
	Predefined       bool            `json:"predefined"`
	InUse            bool            `json:"inUse"`
	Trashed          bool            `json:"trashed"`
	CreationTime     int64           `json:"creationTime"`
	ModificationTime int64           `json:"modificationTime"`
	Params           []Param         `json:"params,omitempty"`
}

// FlagActive marks a format as usable for report generation.
const FlagActive = 1
