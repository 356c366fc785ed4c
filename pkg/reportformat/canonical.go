package reportformat

import (
	"bytes"
	"encoding/base64"
	"sort"
	"strconv"

	"github.com/vulnforge/reportformats/pkg/assetstore"
)

// Identity is the part of a format that is signed besides files and params.
type Identity struct {
	UUID        string
	Extension   string
	ContentType string
	Global      bool
}

// Canonicalize builds the byte string a report format signature covers:
//
//	uuid extension content_type global(0|1)
//	per file, by bytewise name: name base64(content)
//	per param, in stored order: name type [min] [max] regex fallback options...
//	"\n"
//
// Every inclusion rule is part of the signing contract with the feed.
func Canonicalize(id Identity, files []assetstore.File, params []Param) []byte {
	var buf bytes.Buffer

	buf.WriteString(id.UUID)
	buf.WriteString(id.Extension)
	buf.WriteString(id.ContentType)
	if id.Global {
		buf.WriteByte('1')
	} else {
		buf.WriteByte('0')
	}

	sortedFiles := append([]assetstore.File(nil), files...)
	sort.SliceStable(sortedFiles, func(i, j int) bool { return sortedFiles[i].Name < sortedFiles[j].Name })
	for _, f := range sortedFiles {
		buf.WriteString(f.Name)
		buf.WriteString(base64.StdEncoding.EncodeToString(f.Content))
	}

	for _, p := range params {
		buf.WriteString(p.Name)
		if p.TypeName != "" {
			buf.WriteString(p.TypeName)
		} else {
			buf.WriteString(p.Type.String())
		}
		if v, ok := p.Min.Get(); ok {
			buf.WriteString(strconv.FormatInt(v, 10))
		}
		if v, ok := p.Max.Get(); ok {
			buf.WriteString(strconv.FormatInt(v, 10))
		}
		// type_regex is always empty.
		buf.WriteString(p.Fallback)
		for _, o := range p.Options {
			buf.WriteString(o)
		}
	}

	buf.WriteByte('\n')
	return buf.Bytes()
}
