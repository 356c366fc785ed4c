package reportformat

import (
	"math"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateValue(t *testing.T) {
	integer := Param{Type: ParamInteger, Min: BoundAt(1), Max: BoundAt(10)}
	unbounded := Param{Type: ParamInteger}
	str := Param{Type: ParamString, Min: BoundAt(2), Max: BoundAt(4)}
	selection := Param{Type: ParamSelection, Options: []string{"A", "B"}}
	list := Param{Type: ParamReportFormatList}

	tests := []struct {
		name  string
		param Param
		value string
		want  bool
	}{
		{"integer in range", integer, "5", true},
		{"integer at min", integer, "1", true},
		{"integer at max", integer, "10", true},
		{"integer below min", integer, "0", false},
		{"integer above max", integer, "11", false},
		{"integer hex", integer, "0x0a", true},
		{"integer garbage", integer, "ten", false},
		{"integer unbounded large", unbounded, strconv.FormatInt(math.MaxInt64-1, 10), true},
		{"string within length", str, "abc", true},
		{"string too short", str, "a", false},
		{"string too long", str, "abcde", false},
		{"selection exact", selection, "B", true},
		{"selection case differs", selection, "b", false},
		{"selection not an option", selection, "C", false},
		{"list empty", list, "", true},
		{"list ids", list, "a-1,b_2,c3", true},
		{"list trailing comma", list, "a,", false},
		{"list space", list, "a, b", false},
		{"boolean anything", Param{Type: ParamBoolean}, "maybe", true},
		{"unknown type", Param{Type: ParamError}, "x", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidateValue(tt.param, tt.value))
		})
	}
}

func TestBuildParams_Errors(t *testing.T) {
	fallback := strPtr("1")
	tests := []struct {
		name   string
		inputs []ParamInput
		want   error
	}{
		{"type missing", []ParamInput{{Name: "a", Value: "1", Fallback: fallback}}, ErrParamTypeMissing},
		{"type unknown", []ParamInput{{Name: "a", Type: "float", Value: "1", Fallback: fallback}}, ErrParamTypeUnknown},
		{"duplicate", []ParamInput{
			{Name: "a", Type: "integer", Value: "1", Fallback: fallback},
			{Name: "a", Type: "integer", Value: "1", Fallback: fallback},
		}, ErrParamDuplicate},
		{"fallback missing", []ParamInput{{Name: "a", Type: "integer", Value: "1"}}, ErrParamFallbackMissing},
		{"min out of range", []ParamInput{{Name: "a", Type: "integer", Value: "1", Fallback: fallback, Min: "x"}}, ErrParamBoundOutOfRange},
		{"max is sentinel", []ParamInput{{Name: "a", Type: "integer", Value: "1", Fallback: fallback,
			Max: strconv.FormatInt(math.MaxInt64, 10)}}, ErrParamBoundOutOfRange},
		{"min is sentinel", []ParamInput{{Name: "a", Type: "integer", Value: "1", Fallback: fallback,
			Min: strconv.FormatInt(math.MinInt64, 10)}}, ErrParamBoundOutOfRange},
		{"value invalid", []ParamInput{{Name: "a", Type: "integer", Value: "50", Fallback: fallback, Max: "10"}}, ErrParamValueInvalid},
		{"fallback invalid", []ParamInput{{Name: "a", Type: "integer", Value: "5", Fallback: strPtr("50"), Max: "10"}}, ErrParamFallbackInvalid},
		{"selection value not an option", []ParamInput{{Name: "a", Type: "selection", Value: "C", Fallback: strPtr("A"),
			Options: []string{"A", "B"}}}, ErrParamValueInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildParams(tt.inputs)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestBuildParams_CheckOrder(t *testing.T) {
	// An unknown type is reported before the missing fallback of the same param.
	_, err := buildParams([]ParamInput{{Name: "a", Type: "float"}})
	assert.ErrorIs(t, err, ErrParamTypeUnknown)

	// A missing fallback is reported before bad bounds.
	_, err = buildParams([]ParamInput{{Name: "a", Type: "integer", Min: "x"}})
	assert.ErrorIs(t, err, ErrParamFallbackMissing)
}

func TestBuildParams_KeepsInputOrderAndOptions(t *testing.T) {
	params, err := buildParams([]ParamInput{
		{Name: "z", Type: "selection", Value: "B", Fallback: strPtr("A"), Options: []string{"B", "A"}},
		{Name: "a", Type: "Integer", Value: "3", Fallback: strPtr("3"), Min: "-5"},
	})
	require.NoError(t, err)
	require.Len(t, params, 2)

	assert.Equal(t, "z", params[0].Name)
	assert.Equal(t, []string{"B", "A"}, params[0].Options)
	assert.Equal(t, ParamInteger, params[1].Type)
	assert.Equal(t, "integer", params[1].TypeName)
	lo, ok := params[1].Min.Get()
	assert.True(t, ok)
	assert.Equal(t, int64(-5), lo)
	assert.False(t, params[1].Max.IsSet())
	assert.Equal(t, "-5", params[1].MinText)
	assert.Empty(t, params[1].MaxText)
}

func TestBoundStorageRoundTrip(t *testing.T) {
	assert.Equal(t, NoBound, decodeMin(encodeMin(NoBound)))
	assert.Equal(t, NoBound, decodeMax(encodeMax(NoBound)))
	assert.Equal(t, BoundAt(-3), decodeMin(encodeMin(BoundAt(-3))))
	assert.Equal(t, BoundAt(0), decodeMax(encodeMax(BoundAt(0))))
}

func TestParseParamType(t *testing.T) {
	for _, name := range []string{"boolean", "integer", "selection", "string", "text", "report_format_list"} {
		assert.Equal(t, name, ParseParamType(name).String())
	}
	assert.Equal(t, ParamError, ParseParamType("float"))
	assert.Equal(t, "error", ParamError.String())
}
