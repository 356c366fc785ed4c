package reportformat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestList_Pagination(t *testing.T) {
	env := newTestEnv(t)
	for _, name := range []string{"Charlie", "Alpha", "Bravo"} {
		env.create(env.alice, simpleInput(name))
	}
	env.create(env.bob, simpleInput("Zulu"))

	page, err := env.m.List(as(env.alice), 2, "")
	require.NoError(t, err)
	assert.Equal(t, 3, page.TotalSize)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "Alpha", page.Items[0].Name)
	assert.Equal(t, "Bravo", page.Items[1].Name)
	require.NotEmpty(t, page.NextPageToken)

	page, err = env.m.List(as(env.alice), 2, page.NextPageToken)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Charlie", page.Items[0].Name)
	assert.Empty(t, page.NextPageToken)

	_, err = env.m.List(as(env.alice), 2, "%%%")
	assert.Error(t, err)
}

func TestList_ObserverSeesPredefined(t *testing.T) {
	env := newTestEnv(t)
	writePredefined(t, env.layout.PredefinedDir, "pre-1", "CSV", "10")
	env.sync()
	env.create(env.alice, simpleInput("Private"))

	page, err := env.m.List(as(env.watcher), 0, "")
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "pre-1", page.Items[0].UUID)
	assert.True(t, page.Items[0].Predefined)

	page, err = env.m.List(as(env.alice), 0, "")
	require.NoError(t, err)
	assert.Equal(t, 2, page.TotalSize)
}

func TestFindByName_PrefersOwnFormat(t *testing.T) {
	env := newTestEnv(t)
	writePredefined(t, env.layout.PredefinedDir, "pre-1", "Shared", "10")
	env.sync()
	mine := env.create(env.alice, simpleInput("Shared"))

	rf, err := env.m.FindByName(as(env.alice), "Shared")
	require.NoError(t, err)
	assert.Equal(t, mine.UUID, rf.UUID)

	rf, err = env.m.FindByName(as(env.bob), "Shared")
	require.NoError(t, err)
	assert.Equal(t, "pre-1", rf.UUID)

	_, err = env.m.FindByName(as(env.bob), "Nothing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGet_InUseAndTrash(t *testing.T) {
	env := newTestEnv(t)
	busy := env.create(env.alice, simpleInput("Busy"))
	env.useInAlert(busy.UUID)

	rf, err := env.m.Get(as(env.alice), busy.UUID)
	require.NoError(t, err)
	assert.True(t, rf.InUse)

	gone := env.create(env.alice, simpleInput("Gone"))
	require.NoError(t, env.m.Delete(as(env.alice), gone.UUID, false))
	trashed := env.trashOf(env.alice)
	require.Len(t, trashed, 1)

	rf, err = env.m.Get(as(env.alice), trashed[0].UUID)
	require.NoError(t, err)
	assert.Equal(t, "Gone", rf.Name)
	require.Len(t, rf.Params, 1)

	_, err = env.m.ListParams(as(env.alice), trashed[0].UUID)
	assert.ErrorIs(t, err, ErrNotFound)
}
