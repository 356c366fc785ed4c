package reportformat

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulnforge/reportformats/pkg/acl"
	"github.com/vulnforge/reportformats/pkg/assetstore"
	"github.com/vulnforge/reportformats/pkg/authz"
)

func (e *testEnv) trashOf(s *authz.Session) []*ReportFormat {
	e.t.Helper()
	trashed, err := e.m.ListTrash(as(s))
	require.NoError(e.t, err)
	return trashed
}

func TestDelete_InUseChangesNothing(t *testing.T) {
	env := newTestEnv(t)
	rf := env.create(env.alice, simpleInput("Busy"))
	env.useInAlert(rf.UUID)

	err := env.m.Delete(as(env.alice), rf.UUID, false)
	require.ErrorIs(t, err, ErrInUse)
	assert.Equal(t, 1, CodeOf(OpDelete, err))

	err = env.m.Delete(as(env.alice), rf.UUID, true)
	require.ErrorIs(t, err, ErrInUse)

	assert.NotNil(t, env.record(rf.UUID))
	assert.Empty(t, env.trashOf(env.alice))
	assert.True(t, assetstore.Exists(env.layout.UserDir("user-alice", rf.UUID)))
}

func TestDelete_TrashAndRestoreRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	in := simpleInput("Roundtrip")
	in.Params = append(in.Params, ParamInput{
		Name: "Style", Type: "selection", Value: "b", Fallback: strPtr("a"), Options: []string{"a", "b"},
	})
	rf := env.create(env.alice, in)
	rec := env.record(rf.UUID)
	grants := acl.NewStore(env.db)
	require.NoError(t, grants.Grant(authz.ActionGetReportFormats, authz.ResourceReportFormat, rec.ID, rf.UUID, acl.SubjectUser, "user-bob"))
	require.NoError(t, grants.AttachTag("tag-1", authz.ResourceReportFormat, rec.ID, rf.UUID))

	_, err := env.m.Get(as(env.bob), rf.UUID)
	require.NoError(t, err, "bob holds a grant")

	require.NoError(t, env.m.Delete(as(env.alice), rf.UUID, false))

	assert.Nil(t, env.record(rf.UUID))
	assert.False(t, assetstore.Exists(env.layout.UserDir("user-alice", rf.UUID)))
	_, err = env.m.Get(as(env.bob), rf.UUID)
	assert.ErrorIs(t, err, ErrNotFound)

	trashed := env.trashOf(env.alice)
	require.Len(t, trashed, 1)
	trash := trashed[0]
	assert.Equal(t, rf.UUID, trash.OriginalUUID)
	assert.NotEqual(t, rf.UUID, trash.UUID)
	assert.True(t, trash.Trashed)
	assert.True(t, assetstore.Exists(filepath.Join(env.layout.TrashDir(trash.ID), assetstore.GeneratorName)))

	fromTrash, err := env.m.Get(as(env.alice), trash.UUID)
	require.NoError(t, err)
	require.Len(t, fromTrash.Params, 2)

	restored, err := env.m.Restore(as(env.alice), trash.UUID)
	require.NoError(t, err)

	assert.Equal(t, rf.UUID, restored.UUID)
	assert.Equal(t, rf.Name, restored.Name)
	assert.Equal(t, rf.CreationTime, restored.CreationTime)
	require.Len(t, restored.Params, 2)
	assert.Equal(t, "Rows", restored.Params[0].Name)
	assert.Equal(t, "Style", restored.Params[1].Name)
	assert.Equal(t, []string{"a", "b"}, restored.Params[1].Options)
	assert.Equal(t, "b", restored.Params[1].Value)

	content, err := os.ReadFile(filepath.Join(env.layout.UserDir("user-alice", rf.UUID), "template.xsl"))
	require.NoError(t, err)
	assert.Equal(t, "<xsl/>", string(content))
	assert.False(t, assetstore.Exists(env.layout.TrashDir(trash.ID)))
	assert.Empty(t, env.trashOf(env.alice))

	_, err = env.m.Get(as(env.bob), rf.UUID)
	assert.NoError(t, err, "grant follows the format back")
	tags, err := grants.Tags(authz.ResourceReportFormat, env.record(rf.UUID).ID, acl.LocationTable)
	require.NoError(t, err)
	assert.Len(t, tags, 1)
}

func TestDelete_Ultimate(t *testing.T) {
	env := newTestEnv(t)
	rf := env.create(env.alice, simpleInput("Gone"))

	require.NoError(t, env.m.Delete(as(env.alice), rf.UUID, true))

	assert.Nil(t, env.record(rf.UUID))
	assert.Empty(t, env.trashOf(env.alice))
	assert.False(t, assetstore.Exists(env.layout.UserDir("user-alice", rf.UUID)))
	var params int64
	require.NoError(t, env.db.Model(&ParamRecord{}).Count(&params).Error)
	assert.Zero(t, params)
}

func TestDelete_Trashed(t *testing.T) {
	env := newTestEnv(t)
	rf := env.create(env.alice, simpleInput("Twice"))
	require.NoError(t, env.m.Delete(as(env.alice), rf.UUID, false))
	trash := env.trashOf(env.alice)[0]

	// Trashing again is a no-op.
	require.NoError(t, env.m.Delete(as(env.alice), trash.UUID, false))
	require.Len(t, env.trashOf(env.alice), 1)

	// Another user cannot see it.
	assert.ErrorIs(t, env.m.Delete(as(env.bob), trash.UUID, true), ErrNotFound)

	require.NoError(t, env.m.Delete(as(env.alice), trash.UUID, true))
	assert.Empty(t, env.trashOf(env.alice))
	assert.False(t, assetstore.Exists(env.layout.TrashDir(trash.ID)))
}

func TestDelete_Errors(t *testing.T) {
	env := newTestEnv(t)
	in := simpleInput("Shared")
	in.Global = true
	shared := env.create(authz.SystemSession(), in)
	mine := env.create(env.alice, simpleInput("Mine"))

	err := env.m.Delete(system(), shared.UUID, false)
	require.ErrorIs(t, err, ErrPredefined)
	assert.Equal(t, 3, CodeOf(OpDelete, err))

	err = env.m.Delete(as(env.alice), "missing", false)
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 2, CodeOf(OpDelete, err))

	assert.ErrorIs(t, env.m.Delete(as(env.bob), mine.UUID, false), ErrNotFound)
	assert.ErrorIs(t, env.m.Delete(as(env.watcher), mine.UUID, false), ErrPermissionDenied)
}

func TestRestore_Conflicts(t *testing.T) {
	t.Run("name", func(t *testing.T) {
		env := newTestEnv(t)
		rf := env.create(env.alice, simpleInput("Clash"))
		require.NoError(t, env.m.Delete(as(env.alice), rf.UUID, false))
		env.create(env.alice, simpleInput("Clash"))
		trash := env.trashOf(env.alice)[0]

		_, err := env.m.Restore(as(env.alice), trash.UUID)
		require.ErrorIs(t, err, ErrNameConflict)
		assert.Equal(t, 3, CodeOf(OpRestore, err))
		assert.Len(t, env.trashOf(env.alice), 1)
		assert.True(t, assetstore.Exists(env.layout.TrashDir(trash.ID)))
	})

	t.Run("uuid", func(t *testing.T) {
		env := newTestEnv(t)
		rf := env.create(env.alice, simpleInput("Original"))
		require.NoError(t, env.m.Delete(as(env.alice), rf.UUID, false))

		in := simpleInput("Impostor")
		in.UUID = rf.UUID
		env.create(env.alice, in)
		trash := env.trashOf(env.alice)[0]

		_, err := env.m.Restore(as(env.alice), trash.UUID)
		require.ErrorIs(t, err, ErrUUIDConflict)
		assert.Equal(t, 4, CodeOf(OpRestore, err))
		assert.Equal(t, "Impostor", env.record(rf.UUID).Name)
	})

	t.Run("not found", func(t *testing.T) {
		env := newTestEnv(t)
		rf := env.create(env.alice, simpleInput("Someone's"))
		require.NoError(t, env.m.Delete(as(env.alice), rf.UUID, false))
		trash := env.trashOf(env.alice)[0]

		_, err := env.m.Restore(as(env.bob), trash.UUID)
		require.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, 2, CodeOf(OpRestore, err))
	})

	t.Run("corrupt", func(t *testing.T) {
		env := newTestEnv(t)
		rf := env.create(env.alice, simpleInput("Broken"))
		require.NoError(t, env.m.Delete(as(env.alice), rf.UUID, false))
		trash := env.trashOf(env.alice)[0]
		require.NoError(t, env.db.Model(&TrashRecord{}).Where("id = ?", trash.ID).Update("original_uuid", nil).Error)

		_, err := env.m.Restore(as(env.alice), trash.UUID)
		require.ErrorIs(t, err, ErrCorruptTrash)
		assert.Equal(t, -1, CodeOf(OpRestore, err))
	})
}
