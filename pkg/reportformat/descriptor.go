package reportformat

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// DescriptorFile is the name of the descriptor in a predefined format directory.
const DescriptorFile = "report_format.xml"

// Descriptor is the parsed content of a feed descriptor.
type Descriptor struct {
	Name        string
	Summary     string
	Description string
	Extension   string
	ContentType string
	Params      []Param
}

type xmlDescriptor struct {
	XMLName     xml.Name   `xml:"report_format"`
	Name        *string    `xml:"name"`
	Summary     *string    `xml:"summary"`
	Description *string    `xml:"description"`
	Extension   *string    `xml:"extension"`
	ContentType *string    `xml:"content_type"`
	Params      []xmlParam `xml:"param"`
}

type xmlParam struct {
	Name    *string   `xml:"name"`
	Default *string   `xml:"default"`
	Type    *xmlType  `xml:"type"`
	Value   *xmlValue `xml:"value"`
}

type xmlType struct {
	Name    string      `xml:",chardata"`
	Min     *string     `xml:"min"`
	Max     *string     `xml:"max"`
	Options *xmlOptions `xml:"options"`
}

type xmlOptions struct {
	Option []string `xml:"option"`
}

type xmlValue struct {
	Text         string `xml:",chardata"`
	ReportFormat *struct {
		ID *string `xml:"id,attr"`
	} `xml:"report_format"`
}

var errDescriptor = errors.New("invalid report format descriptor")

func descriptorError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errDescriptor, fmt.Sprintf(format, args...))
}

// LoadDescriptor reads and parses the descriptor at path.
func LoadDescriptor(path string) (*Descriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	d, err := ParseDescriptor(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// ParseDescriptor parses a feed descriptor. Every top-level field and, per
// param, name, default, type and value are required.
func ParseDescriptor(r io.Reader) (*Descriptor, error) {
	var raw xmlDescriptor
	if err := xml.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", errDescriptor, err)
	}

	d := &Descriptor{}
	for _, field := range []struct {
		name string
		src  *string
		dst  *string
	}{
		{"name", raw.Name, &d.Name},
		{"summary", raw.Summary, &d.Summary},
		{"description", raw.Description, &d.Description},
		{"extension", raw.Extension, &d.Extension},
		{"content_type", raw.ContentType, &d.ContentType},
	} {
		if field.src == nil {
			return nil, descriptorError("missing %s", field.name)
		}
		*field.dst = strings.TrimSpace(*field.src)
	}

	for i, rp := range raw.Params {
		p, err := rp.param()
		if err != nil {
			return nil, fmt.Errorf("param %d: %w", i+1, err)
		}
		d.Params = append(d.Params, p)
	}
	return d, nil
}

func (rp xmlParam) param() (Param, error) {
	if rp.Name == nil {
		return Param{}, descriptorError("param missing name")
	}
	name := strings.TrimSpace(*rp.Name)
	if rp.Default == nil {
		return Param{}, descriptorError("param %q missing default", name)
	}
	if rp.Type == nil {
		return Param{}, descriptorError("param %q missing type", name)
	}
	t := ParseParamType(strings.TrimSpace(rp.Type.Name))
	if t == ParamError {
		return Param{}, descriptorError("param %q has unknown type %q", name, strings.TrimSpace(rp.Type.Name))
	}
	if rp.Value == nil {
		return Param{}, descriptorError("param %q missing value", name)
	}

	p := Param{
		Name:     name,
		Type:     t,
		TypeName: t.String(),
		Fallback: strings.TrimSpace(*rp.Default),
	}

	if t == ParamReportFormatList {
		if rp.Value.ReportFormat == nil || rp.Value.ReportFormat.ID == nil {
			return Param{}, descriptorError("param %q missing report format id", name)
		}
		p.Value = strings.TrimSpace(*rp.Value.ReportFormat.ID)
		return p, nil
	}

	var err error
	if rp.Type.Min != nil {
		if p.Min, err = parseBound(*rp.Type.Min); err != nil {
			return Param{}, descriptorError("param %q has invalid min", name)
		}
	}
	if rp.Type.Max != nil {
		if p.Max, err = parseBound(*rp.Type.Max); err != nil {
			return Param{}, descriptorError("param %q has invalid max", name)
		}
	}
	p.MinText = p.Min.String()
	p.MaxText = p.Max.String()
	if t == ParamSelection {
		if rp.Type.Options == nil {
			return Param{}, descriptorError("selection param %q missing options", name)
		}
		p.Options = append([]string(nil), rp.Type.Options.Option...)
	}
	p.Value = strings.TrimSpace(rp.Value.Text)
	return p, nil
}
