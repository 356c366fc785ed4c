package authz

import (
	"net/http"
	"strings"
)

// APIPrefix is the mount point of the report format API.
const APIPrefix = "/api/report_formats/v1"

// MapRequest maps an HTTP method and URL path to the action an Authorizer
// must allow. It returns "" when no known route matches; callers deny those.
func MapRequest(method, path string) string {
	path = strings.TrimRight(path, "/")
	if !strings.HasPrefix(path, APIPrefix+"/") {
		return ""
	}
	segments := strings.Split(strings.TrimPrefix(path, APIPrefix+"/"), "/")

	switch segments[0] {
	case "report_formats":
		return mapReportFormatRoute(method, segments[1:])
	case "trash":
		return mapTrashRoute(method, segments[1:])
	}
	return ""
}

func mapReportFormatRoute(method string, rest []string) string {
	switch len(rest) {
	case 0:
		switch method {
		case http.MethodGet:
			return ActionGetReportFormats
		case http.MethodPost:
			return ActionCreateReportFormat
		}
	case 1:
		switch method {
		case http.MethodGet:
			return ActionGetReportFormats
		case http.MethodPatch:
			return ActionModifyReportFormat
		case http.MethodDelete:
			return ActionDeleteReportFormat
		}
	case 2:
		switch {
		case method == http.MethodGet && rest[1] == "params":
			return ActionGetReportFormats
		case method == http.MethodPost && rest[1] == "clone":
			return ActionCreateReportFormat
		case method == http.MethodPost && rest[1] == "verify":
			return ActionVerifyReportFormat
		case method == http.MethodPost && rest[1] == "render":
			return ActionGetReportFormats
		}
	}
	return ""
}

func mapTrashRoute(method string, rest []string) string {
	switch {
	case len(rest) == 0 && method == http.MethodGet:
		return ActionGetReportFormats
	case len(rest) == 0 && method == http.MethodDelete:
		return ActionEmptyTrash
	case len(rest) == 1 && method == http.MethodDelete:
		return ActionDeleteReportFormat
	case len(rest) == 2 && method == http.MethodPost && rest[1] == "restore":
		return ActionRestore
	}
	return ""
}
