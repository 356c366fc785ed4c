package reportformat

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vulnforge/reportformats/pkg/acl"
	"github.com/vulnforge/reportformats/pkg/assetstore"
	"github.com/vulnforge/reportformats/pkg/audit"
	"github.com/vulnforge/reportformats/pkg/authz"
	"github.com/vulnforge/reportformats/pkg/sandbox"
	"github.com/vulnforge/reportformats/pkg/signature"
)

// fakeGPGV classifies by the signature file content: GOOD* verifies, BAD*
// is rejected, anything else is an unusable signature.
const fakeGPGV = "#!/bin/sh\nshift 6\ncase \"$(cat \"$1\")\" in GOOD*) exit 0;; BAD*) exit 1;; esac\nexit 2\n"

type testEnv struct {
	t       *testing.T
	db      *gorm.DB
	layout  assetstore.Layout
	m       *Manager
	clock   *fakeClock
	events  *captureRecorder
	alice   *authz.Session
	bob     *authz.Session
	watcher *authz.Session
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type captureRecorder struct {
	mu      sync.Mutex
	actions []string
}

func (r *captureRecorder) Record(_ context.Context, _, action, _ string, _ audit.Metadata) {
	r.mu.Lock()
	r.actions = append(r.actions, action)
	r.mu.Unlock()
}

func (r *captureRecorder) Actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.actions...)
}

func writeExecutable(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()

	db, err := gorm.Open(sqlite.Open(filepath.Join(root, "rf.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	layout := assetstore.NewLayout(
		filepath.Join(root, "state"),
		filepath.Join(root, "predefined"),
		filepath.Join(root, "feed-signatures"),
	)
	require.NoError(t, os.MkdirAll(layout.PredefinedDir, 0o755))
	require.NoError(t, os.MkdirAll(layout.FeedSignatureDir, 0o755))

	gpgv := filepath.Join(root, "bin", "gpgv")
	writeExecutable(t, gpgv, fakeGPGV)
	verifier := signature.NewGPGVVerifier(gpgv, filepath.Join(root, "gnupg"), nil)
	verifier.TempDir = t.TempDir()

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	events := &captureRecorder{}
	m := NewManager(db, Options{
		Layout:     layout,
		Verifier:   verifier,
		Authorizer: authz.NewRoleAuthorizer(acl.NewStore(db), nil),
		Runner:     sandbox.DirectRunner{},
		Recorder:   events,
		Logger:     quiet,
	})
	require.NoError(t, m.AutoMigrate())

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m.now = clock.Now

	return &testEnv{
		t:       t,
		db:      db,
		layout:  layout,
		m:       m,
		clock:   clock,
		events:  events,
		alice:   &authz.Session{UserUUID: "user-alice", Name: "alice", Roles: []string{authz.RoleUser}},
		bob:     &authz.Session{UserUUID: "user-bob", Name: "bob", Roles: []string{authz.RoleUser}},
		watcher: &authz.Session{UserUUID: "user-olga", Name: "olga", Roles: []string{authz.RoleObserver}},
	}
}

func as(s *authz.Session) context.Context {
	return authz.WithSession(context.Background(), s)
}

func system() context.Context {
	return as(authz.SystemSession())
}

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }

// simpleInput returns a valid active format with one integer param and a
// generator that copies the report document to stdout.
func simpleInput(name string) CreateInput {
	return CreateInput{
		Name:        name,
		Summary:     "summary of " + name,
		Description: "description of " + name,
		Extension:   "txt",
		ContentType: "text/plain",
		Files: []assetstore.File{
			{Name: assetstore.GeneratorName, Content: []byte("#!/bin/sh\ncat \"$1\"\n")},
			{Name: "template.xsl", Content: []byte("<xsl/>")},
		},
		Params: []ParamInput{
			{Name: "Rows", Type: "integer", Value: "10", Fallback: strPtr("10"), Min: "1", Max: "100"},
		},
		Active: true,
	}
}

func (e *testEnv) create(s *authz.Session, in CreateInput) *ReportFormat {
	e.t.Helper()
	rf, err := e.m.Create(as(s), in)
	require.NoError(e.t, err)
	return rf
}

// useInAlert makes formatUUID referenced by a live alert.
func (e *testEnv) useInAlert(formatUUID string) {
	e.t.Helper()
	require.NoError(e.t, e.db.Create(&AlertMethodDataRecord{Alert: 1, Name: "notice_report_format", Data: formatUUID}).Error)
}

func (e *testEnv) record(formatUUID string) *ReportFormatRecord {
	e.t.Helper()
	r, err := NewStore(e.db).Get(formatUUID)
	require.NoError(e.t, err)
	return r
}
