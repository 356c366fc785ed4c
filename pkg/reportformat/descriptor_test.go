package reportformat

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDescriptor = `<report_format id="a994b278-1f62-11e1-96ac-406186ea4fc5">
  <name> CSV Results </name>
  <summary>CSV table of results</summary>
  <description>
    One row per result.
  </description>
  <extension>csv</extension>
  <content_type>text/csv</content_type>
  <param>
    <name>Rows</name>
    <type>integer<min>1</min><max>0x64</max></type>
    <default>10</default>
    <value>20</value>
  </param>
  <param>
    <name>Style</name>
    <type>selection<options><option>plain</option><option>fancy</option></options></type>
    <default>plain</default>
    <value>fancy</value>
  </param>
  <param>
    <name>Attach</name>
    <type>report_format_list</type>
    <default></default>
    <value><report_format id=" dep-1 "/></value>
  </param>
</report_format>`

func TestParseDescriptor(t *testing.T) {
	d, err := ParseDescriptor(strings.NewReader(sampleDescriptor))
	require.NoError(t, err)

	assert.Equal(t, "CSV Results", d.Name)
	assert.Equal(t, "CSV table of results", d.Summary)
	assert.Equal(t, "One row per result.", d.Description)
	assert.Equal(t, "csv", d.Extension)
	assert.Equal(t, "text/csv", d.ContentType)
	require.Len(t, d.Params, 3)

	rows := d.Params[0]
	assert.Equal(t, ParamInteger, rows.Type)
	assert.Equal(t, "20", rows.Value)
	assert.Equal(t, "10", rows.Fallback)
	assert.Equal(t, BoundAt(1), rows.Min)
	assert.Equal(t, BoundAt(100), rows.Max)

	style := d.Params[1]
	assert.Equal(t, ParamSelection, style.Type)
	assert.Equal(t, []string{"plain", "fancy"}, style.Options)
	assert.Equal(t, "fancy", style.Value)

	attach := d.Params[2]
	assert.Equal(t, ParamReportFormatList, attach.Type)
	assert.Equal(t, "dep-1", attach.Value)
	assert.Equal(t, "", attach.Fallback)
}

func TestParseDescriptor_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not xml", "<report_format>"},
		{"missing name", `<report_format><summary/><description/><extension/><content_type/></report_format>`},
		{"missing content type", `<report_format><name>a</name><summary/><description/><extension/></report_format>`},
		{"param missing default", `<report_format><name>a</name><summary/><description/><extension/><content_type/>
			<param><name>p</name><type>string</type><value>v</value></param></report_format>`},
		{"param unknown type", `<report_format><name>a</name><summary/><description/><extension/><content_type/>
			<param><name>p</name><type>float</type><default>1</default><value>1</value></param></report_format>`},
		{"param missing value", `<report_format><name>a</name><summary/><description/><extension/><content_type/>
			<param><name>p</name><type>string</type><default>1</default></param></report_format>`},
		{"list without id", `<report_format><name>a</name><summary/><description/><extension/><content_type/>
			<param><name>p</name><type>report_format_list</type><default/><value>x</value></param></report_format>`},
		{"selection without options", `<report_format><name>a</name><summary/><description/><extension/><content_type/>
			<param><name>p</name><type>selection</type><default>a</default><value>a</value></param></report_format>`},
		{"bad bound", `<report_format><name>a</name><summary/><description/><extension/><content_type/>
			<param><name>p</name><type>integer<min>low</min></type><default>1</default><value>1</value></param></report_format>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDescriptor(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, errDescriptor), "error %v should wrap errDescriptor", err)
		})
	}
}

func TestLoadDescriptor(t *testing.T) {
	path := filepath.Join(t.TempDir(), DescriptorFile)
	require.NoError(t, os.WriteFile(path, []byte(sampleDescriptor), 0o644))

	d, err := LoadDescriptor(path)
	require.NoError(t, err)
	assert.Equal(t, "CSV Results", d.Name)

	_, err = LoadDescriptor(filepath.Join(t.TempDir(), "missing.xml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
