package reportformat

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulnforge/reportformats/pkg/assetstore"
	"github.com/vulnforge/reportformats/pkg/authz"
	"github.com/vulnforge/reportformats/pkg/signature"
)

func TestEmptyTrash(t *testing.T) {
	env := newTestEnv(t)
	for _, name := range []string{"One", "Two"} {
		rf := env.create(env.alice, simpleInput(name))
		require.NoError(t, env.m.Delete(as(env.alice), rf.UUID, false))
	}
	bobs := env.create(env.bob, simpleInput("Bob's"))
	require.NoError(t, env.m.Delete(as(env.bob), bobs.UUID, false))
	kept := env.create(env.alice, simpleInput("Kept"))

	trashed := env.trashOf(env.alice)
	require.Len(t, trashed, 2)

	n, err := env.m.EmptyTrash(as(env.alice))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Empty(t, env.trashOf(env.alice))
	for _, tr := range trashed {
		assert.False(t, assetstore.Exists(env.layout.TrashDir(tr.ID)))
	}
	assert.Len(t, env.trashOf(env.bob), 1)
	assert.NotNil(t, env.record(kept.UUID))

	n, err = env.m.EmptyTrash(as(env.alice))
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = env.m.EmptyTrash(as(env.watcher))
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestInheritFormats(t *testing.T) {
	env := newTestEnv(t)
	mine := env.create(env.alice, simpleInput("Report"))
	trashed := env.create(env.alice, simpleInput("Old"))
	require.NoError(t, env.m.Delete(as(env.alice), trashed.UUID, false))
	env.create(env.bob, simpleInput("Report"))

	require.ErrorIs(t, env.m.InheritFormats(as(env.alice), "user-alice", "user-bob"), ErrPermissionDenied)
	require.NoError(t, env.m.InheritFormats(system(), "user-alice", "user-bob"))

	rec := env.record(mine.UUID)
	assert.Equal(t, "user-bob", ownerString(rec.Owner))
	assert.Equal(t, "Report 2", rec.Name)
	assert.True(t, assetstore.Exists(env.layout.UserDir("user-bob", mine.UUID)))
	assert.False(t, assetstore.Exists(env.layout.OwnerRoot("user-alice")))
	assert.Len(t, env.trashOf(env.bob), 1)
	assert.Empty(t, env.trashOf(env.alice))
}

func TestDeleteUserFormats(t *testing.T) {
	env := newTestEnv(t)
	busy := env.create(env.alice, simpleInput("Busy"))
	trashed := env.create(env.alice, simpleInput("Old"))
	require.NoError(t, env.m.Delete(as(env.alice), trashed.UUID, false))
	env.useInAlert(busy.UUID)

	require.ErrorIs(t, env.m.DeleteUserFormats(system(), "user-alice"), ErrInUse)
	assert.NotNil(t, env.record(busy.UUID))
	assert.Len(t, env.trashOf(env.alice), 1)

	require.NoError(t, env.db.Where("data = ?", busy.UUID).Delete(&AlertMethodDataRecord{}).Error)
	require.NoError(t, env.m.DeleteUserFormats(system(), "user-alice"))

	assert.Nil(t, env.record(busy.UUID))
	assert.Empty(t, env.trashOf(env.alice))
	assert.False(t, assetstore.Exists(env.layout.OwnerRoot("user-alice")))

	admin := &authz.Session{UserUUID: "user-root", Roles: []string{authz.RoleAdmin}}
	assert.NoError(t, env.m.DeleteUserFormats(as(admin), "user-nobody"))
	assert.ErrorIs(t, env.m.DeleteUserFormats(as(env.bob), "user-alice"), ErrPermissionDenied)
}

func TestDeleteUserFormats_SignatureLinkSurvivesRollback(t *testing.T) {
	env := newTestEnv(t)
	env.m.verifier = &recordingVerifier{trust: signature.TrustYes}

	const id = "5e3b0f39-7a61-4a8e-9c0c-2e1d3e6f7a02"
	require.NoError(t, os.WriteFile(env.layout.FeedSignature(id), []byte("sig"), 0o644))
	in := simpleInput("Alpha")
	in.UUID = id
	env.create(env.bob, in)
	linked := env.create(env.alice, in)
	require.NotEqual(t, id, linked.UUID)
	link := env.layout.SignatureLink(linked.UUID)
	_, err := os.Lstat(link)
	require.NoError(t, err)

	busy := env.create(env.alice, simpleInput("Zulu"))
	require.NoError(t, env.m.Delete(as(env.alice), linked.UUID, false))
	require.NoError(t, env.m.Delete(as(env.alice), busy.UUID, false))
	require.NoError(t, env.db.Create(&TrashAlertMethodDataRecord{Alert: 1, Name: "notice_report_format", Data: busy.UUID}).Error)

	// Alpha is purged before Zulu fails the transaction.
	require.ErrorIs(t, env.m.DeleteUserFormats(system(), "user-alice"), ErrInUse)
	assert.Len(t, env.trashOf(env.alice), 2)
	_, err = os.Lstat(link)
	assert.NoError(t, err, "link kept while the trash entry is kept")

	require.NoError(t, env.db.Where("data = ?", busy.UUID).Delete(&TrashAlertMethodDataRecord{}).Error)
	n, err := env.m.EmptyTrash(as(env.alice))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, err = os.Lstat(link)
	assert.True(t, os.IsNotExist(err))
}
