package authz

import (
	"net/http"
	"testing"
)

func TestMapRequest(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		want   string
	}{
		{"list formats", http.MethodGet, APIPrefix + "/report_formats", ActionGetReportFormats},
		{"create format", http.MethodPost, APIPrefix + "/report_formats", ActionCreateReportFormat},
		{"get format", http.MethodGet, APIPrefix + "/report_formats/abc", ActionGetReportFormats},
		{"modify format", http.MethodPatch, APIPrefix + "/report_formats/abc", ActionModifyReportFormat},
		{"delete format", http.MethodDelete, APIPrefix + "/report_formats/abc", ActionDeleteReportFormat},
		{"list params", http.MethodGet, APIPrefix + "/report_formats/abc/params", ActionGetReportFormats},
		{"clone", http.MethodPost, APIPrefix + "/report_formats/abc/clone", ActionCreateReportFormat},
		{"verify", http.MethodPost, APIPrefix + "/report_formats/abc/verify", ActionVerifyReportFormat},
		{"render", http.MethodPost, APIPrefix + "/report_formats/abc/render", ActionGetReportFormats},
		{"list trash", http.MethodGet, APIPrefix + "/trash", ActionGetReportFormats},
		{"empty trash", http.MethodDelete, APIPrefix + "/trash", ActionEmptyTrash},
		{"delete from trash", http.MethodDelete, APIPrefix + "/trash/abc", ActionDeleteReportFormat},
		{"restore", http.MethodPost, APIPrefix + "/trash/abc/restore", ActionRestore},
		{"trailing slash", http.MethodGet, APIPrefix + "/report_formats/", ActionGetReportFormats},
		{"unknown sub-resource", http.MethodPost, APIPrefix + "/report_formats/abc/launch", ""},
		{"wrong method", http.MethodPut, APIPrefix + "/report_formats/abc", ""},
		{"other api", http.MethodGet, "/api/other/v1/things", ""},
		{"prefix only", http.MethodGet, APIPrefix, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MapRequest(tt.method, tt.path); got != tt.want {
				t.Errorf("MapRequest(%s, %s) = %q, want %q", tt.method, tt.path, got, tt.want)
			}
		})
	}
}
