package audit

import (
	"strings"

	"github.com/vulnforge/reportformats/pkg/authz"
)

// resourceFromPath returns the report format id segment of an API path, or "".
//
//	/api/report_formats/v1/report_formats/{id}/...  -> id
//	/api/report_formats/v1/trash/{id}/restore       -> id
func resourceFromPath(path string) string {
	rest := strings.TrimPrefix(strings.TrimRight(path, "/"), authz.APIPrefix+"/")
	if rest == path {
		return ""
	}
	parts := strings.Split(rest, "/")
	if len(parts) < 2 {
		return ""
	}
	switch parts[0] {
	case "report_formats", "trash":
		return parts[1]
	}
	return ""
}
