package reportformat

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/vulnforge/reportformats/pkg/authz"
)

type manifestFile struct {
	XMLName     xml.Name `xml:"file"`
	ID          string   `xml:"id,attr"`
	ContentType string   `xml:"content_type,attr"`
	Name        string   `xml:"report_format_name,attr"`
	Path        string   `xml:",chardata"`
}

type manifest struct {
	XMLName xml.Name       `xml:"files"`
	BaseDir string         `xml:"basedir"`
	Files   []manifestFile `xml:"file"`
}

type paramDump struct {
	XMLName xml.Name       `xml:"report_format"`
	Params  []paramDumpRow `xml:"param"`
}

type paramDumpRow struct {
	Name  string `xml:"name"`
	Value string `xml:"value"`
}

// generated is one produced file with the format that produced it.
type generated struct {
	path   string
	record *ReportFormatRecord
}

// Render generates formatUUID's output for the report whose opening part is
// in reportStart. The document is completed with the format's params and the
// closing report tag. The returned file lives in workDir and belongs to the
// caller.
func (m *Manager) Render(ctx context.Context, formatUUID, reportStart, workDir string) (string, error) {
	s, err := m.session(ctx)
	if err != nil {
		return "", err
	}
	if !m.authz.May(ctx, s, authz.ActionGetReportFormats) {
		return "", ErrPermissionDenied
	}
	g, err := m.apply(ctx, s, formatUUID, reportStart, workDir, mapset.NewThreadUnsafeSet[string]())
	if err != nil {
		return "", err
	}
	return g.path, nil
}

// apply generates formatUUID after generating each dependency it names in a
// report_format_list param. chain holds the formats being generated further
// up; it is never modified. A failing dependency is logged and left out.
func (m *Manager) apply(ctx context.Context, s *authz.Session, formatUUID, reportStart, workDir string, chain mapset.Set[string]) (*generated, error) {
	if chain.Contains(formatUUID) {
		return nil, ErrRecursion
	}

	store := NewStore(m.db.WithContext(ctx))
	record, err := m.find(ctx, store, s, formatUUID, authz.ActionGetReportFormats)
	if err != nil {
		return nil, err
	}
	if !record.active() {
		return nil, ErrInactive
	}
	predefined, err := isPredefined(store, record)
	if err != nil {
		return nil, err
	}
	params, err := store.Params(record.ID)
	if err != nil {
		return nil, err
	}

	chain = chain.Clone()
	chain.Add(formatUUID)

	var files []manifestFile
	for _, dep := range dependencies(params) {
		subDir, err := os.MkdirTemp(workDir, "subreport-")
		if err != nil {
			return nil, fmt.Errorf("create subreport dir: %w", err)
		}
		defer m.removeQuietly(subDir)

		g, err := m.apply(ctx, s, dep, reportStart, subDir, chain)
		if err != nil {
			m.logger.Info("skipping subreport", "format", formatUUID, "dependency", dep, "reason", err)
			continue
		}
		files = append(files, manifestFile{
			ID:          dep,
			ContentType: g.record.ContentType,
			Name:        g.record.Name,
			Path:        g.path,
		})
	}

	man, err := xml.Marshal(manifest{BaseDir: workDir, Files: files})
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}

	xmlPath, err := completeReport(reportStart, workDir, man, params)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := os.Remove(xmlPath); err != nil {
			m.logger.Warn("failed to remove report document", "path", xmlPath, "error", err)
		}
	}()

	output, err := m.generate(ctx, record, predefined, xmlPath, string(man), workDir)
	if err != nil {
		return nil, err
	}
	return &generated{path: output, record: record}, nil
}

// dependencies lists the distinct format ids named by report_format_list
// params, in order of appearance.
func dependencies(params []Param) []string {
	seen := mapset.NewThreadUnsafeSet[string]()
	var ids []string
	for _, p := range params {
		if p.Type != ParamReportFormatList {
			continue
		}
		for _, id := range strings.Split(p.Value, ",") {
			id = strings.TrimSpace(id)
			if id != "" && seen.Add(id) {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// completeReport copies the report start into a new file in workDir and
// appends the manifest, the param dump and the closing report tag.
func completeReport(reportStart, workDir string, man []byte, params []Param) (path string, err error) {
	in, err := os.Open(reportStart)
	if err != nil {
		return "", fmt.Errorf("open report: %w", err)
	}
	defer in.Close()

	out, err := os.CreateTemp(workDir, "report-*.xml")
	if err != nil {
		return "", fmt.Errorf("create report document: %w", err)
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close report document: %w", cerr)
		}
		if err != nil {
			os.Remove(out.Name())
		}
	}()

	if _, err := io.Copy(out, in); err != nil {
		return "", fmt.Errorf("copy report: %w", err)
	}

	dump := paramDump{Params: make([]paramDumpRow, 0, len(params))}
	for _, p := range params {
		dump.Params = append(dump.Params, paramDumpRow{Name: p.Name, Value: p.Value})
	}
	tail, err := xml.Marshal(dump)
	if err != nil {
		return "", fmt.Errorf("encode params: %w", err)
	}

	for _, chunk := range [][]byte{man, tail, []byte("</report>")} {
		if _, err := out.Write(chunk); err != nil {
			return "", fmt.Errorf("write report document: %w", err)
		}
	}
	return out.Name(), nil
}
