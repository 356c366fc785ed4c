package reportformat

import (
	"regexp"
	"strconv"

	mapset "github.com/deckarep/golang-set/v2"
)

var reportFormatListPattern = regexp.MustCompile(`^(?:[[:alnum:]_-]+)?(?:,[[:alnum:]_-]+)*$`)

// ValidateValue checks value against the type, bounds and options of p.
func ValidateValue(p Param, value string) bool {
	switch p.Type {
	case ParamInteger:
		n, err := strconv.ParseInt(value, 0, 64)
		if err != nil {
			return false
		}
		if lo, ok := p.Min.Get(); ok && n < lo {
			return false
		}
		if hi, ok := p.Max.Get(); ok && n > hi {
			return false
		}
		return true
	case ParamString, ParamText:
		n := int64(len(value))
		if lo, ok := p.Min.Get(); ok && n < lo {
			return false
		}
		if hi, ok := p.Max.Get(); ok && n > hi {
			return false
		}
		return true
	case ParamSelection:
		for _, o := range p.Options {
			if o == value {
				return true
			}
		}
		return false
	case ParamReportFormatList:
		return reportFormatListPattern.MatchString(value)
	case ParamBoolean:
		return true
	default:
		return false
	}
}

// buildParams validates raw definitions and returns them in input order.
// Checks run per parameter in the order: type present, type known, unique
// name, fallback present, bounds, value, fallback.
func buildParams(inputs []ParamInput) ([]Param, error) {
	seen := mapset.NewThreadUnsafeSet[string]()
	params := make([]Param, 0, len(inputs))

	for _, in := range inputs {
		if in.Type == "" {
			return nil, ErrParamTypeMissing
		}
		t := ParseParamType(in.Type)
		if t == ParamError {
			return nil, ErrParamTypeUnknown
		}
		if !seen.Add(in.Name) {
			return nil, ErrParamDuplicate
		}
		if in.Fallback == nil {
			return nil, ErrParamFallbackMissing
		}

		lo, err := parseBound(in.Min)
		if err != nil {
			return nil, err
		}
		hi, err := parseBound(in.Max)
		if err != nil {
			return nil, err
		}

		p := Param{
			Name:     in.Name,
			Type:     t,
			TypeName: t.String(),
			Value:    in.Value,
			Fallback: *in.Fallback,
			Min:      lo,
			Max:      hi,
			MinText:  lo.String(),
			MaxText:  hi.String(),
			Options:  append([]string(nil), in.Options...),
		}
		if !ValidateValue(p, p.Value) {
			return nil, ErrParamValueInvalid
		}
		if !ValidateValue(p, p.Fallback) {
			return nil, ErrParamFallbackInvalid
		}
		params = append(params, p)
	}
	return params, nil
}
