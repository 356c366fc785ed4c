package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vulnforge/reportformats/pkg/acl"
	"github.com/vulnforge/reportformats/pkg/assetstore"
	"github.com/vulnforge/reportformats/pkg/audit"
	"github.com/vulnforge/reportformats/pkg/authz"
	"github.com/vulnforge/reportformats/pkg/cache"
	"github.com/vulnforge/reportformats/pkg/jobs"
	"github.com/vulnforge/reportformats/pkg/reportformat"
	"github.com/vulnforge/reportformats/pkg/sandbox"
	"github.com/vulnforge/reportformats/pkg/signature"
)

type testServer struct {
	t       *testing.T
	handler http.Handler
	db      *gorm.DB
	manager *reportformat.Manager
	cache   *cache.ResponseCache
	ping    error
}

type caller struct {
	user string
	role string
}

var (
	alice    = caller{user: "user-alice", role: authz.RoleUser}
	olga     = caller{user: "user-olga", role: authz.RoleObserver}
	admin    = caller{user: "user-root", role: authz.RoleAdmin}
	nobody   = caller{}
	generate = "#!/bin/sh\ncat \"$1\"\n"
)

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	root := t.TempDir()

	db, err := gorm.Open(sqlite.Open(filepath.Join(root, "api.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	layout := assetstore.NewLayout(
		filepath.Join(root, "state"),
		filepath.Join(root, "predefined"),
		filepath.Join(root, "feed-signatures"),
	)
	require.NoError(t, os.MkdirAll(layout.PredefinedDir, 0o755))

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	authorizer := authz.NewRoleAuthorizer(acl.NewStore(db), nil)

	auditStore := audit.NewStore(db)
	require.NoError(t, auditStore.AutoMigrate())
	auditCfg := audit.DefaultConfig()

	jobStore := jobs.NewJobStore(db)
	require.NoError(t, jobStore.AutoMigrate())

	m := reportformat.NewManager(db, reportformat.Options{
		Layout:     layout,
		Verifier:   signature.NewKeyringVerifier(filepath.Join(root, "gnupg"), quiet),
		Authorizer: authorizer,
		Runner:     sandbox.DirectRunner{},
		Recorder:   audit.NewStoreRecorder(auditStore, quiet),
		Logger:     quiet,
	})
	require.NoError(t, m.AutoMigrate())

	ts := &testServer{t: t, db: db, manager: m}
	ts.cache = cache.NewResponseCache(cache.DefaultCacheConfig())
	ts.handler = NewRouter(Options{
		Formats:        m,
		Authorizer:     authorizer,
		AuditStore:     auditStore,
		AuditConfig:    &auditCfg,
		JobStore:       jobStore,
		Cache:          ts.cache,
		AllowedOrigins: []string{"https://ui.example"},
		Ping:           func(context.Context) error { return ts.ping },
		Logger:         quiet,
	})
	return ts
}

func (ts *testServer) do(c caller, method, path string, body any) *httptest.ResponseRecorder {
	ts.t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(ts.t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if c.user != "" {
		req.Header.Set("X-Remote-User", c.user)
		req.Header.Set("X-Remote-Role", c.role)
	}
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), rr.Body.String())
	return v
}

func formatsPath(rest string) string {
	return authz.APIPrefix + "/report_formats" + rest
}

func trashPath(rest string) string {
	return authz.APIPrefix + "/trash" + rest
}

func fallback(s string) *string { return &s }

func newFormatBody(name string) createRequest {
	return createRequest{
		Name:        name,
		Summary:     "summary of " + name,
		Extension:   "txt",
		ContentType: "text/plain",
		Active:      true,
		Files: []fileRequest{
			{Name: assetstore.GeneratorName, Content: []byte(generate)},
			{Name: "template.xsl", Content: []byte("<xsl/>")},
		},
		Params: []reportformat.ParamInput{
			{Name: "Rows", Type: "integer", Value: "10", Fallback: fallback("10"), Min: "1", Max: "100"},
		},
	}
}

func (ts *testServer) createFormat(c caller, name string) *reportformat.ReportFormat {
	ts.t.Helper()
	rr := ts.do(c, http.MethodPost, formatsPath(""), newFormatBody(name))
	require.Equal(ts.t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[*reportformat.ReportFormat](ts.t, rr)
}
