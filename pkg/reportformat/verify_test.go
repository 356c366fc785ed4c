package reportformat

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulnforge/reportformats/pkg/signature"
)

func TestVerify_StoredSignature(t *testing.T) {
	env := newTestEnv(t)
	in := simpleInput("Signed")
	in.Signature = "GOOD"
	rf := env.create(env.alice, in)
	require.Equal(t, signature.TrustYes, rf.Trust)

	require.NoError(t, env.db.Model(&ReportFormatRecord{}).Where("uuid = ?", rf.UUID).Update("signature", "BAD").Error)
	env.clock.Advance(time.Hour)

	trust, err := env.m.Verify(as(env.alice), rf.UUID)
	require.NoError(t, err)
	assert.Equal(t, signature.TrustNo, trust)

	rec := env.record(rf.UUID)
	assert.Equal(t, int(signature.TrustNo), rec.Trust)
	assert.Equal(t, env.clock.Now().Unix(), rec.TrustTime)
	assert.Equal(t, env.clock.Now().Unix(), rec.ModificationTime)
}

func TestVerify_FeedSignatureFirst(t *testing.T) {
	env := newTestEnv(t)
	in := simpleInput("Signed")
	in.Signature = "BAD"
	rf := env.create(env.alice, in)
	require.Equal(t, signature.TrustNo, rf.Trust)

	require.NoError(t, os.WriteFile(env.layout.FeedSignature(rf.UUID), []byte("GOOD"), 0o644))
	trust, err := env.m.Verify(as(env.alice), rf.UUID)
	require.NoError(t, err)
	assert.Equal(t, signature.TrustYes, trust)
}

func TestVerify_CoversFilesOnDisk(t *testing.T) {
	env := newTestEnv(t)
	verifier := &recordingVerifier{trust: signature.TrustYes}
	env.m.verifier = verifier
	in := simpleInput("Tracked")
	in.Signature = "sig"
	rf := env.create(env.alice, in)
	atCreate := verifier.last()

	_, err := env.m.Verify(as(env.alice), rf.UUID)
	require.NoError(t, err)
	assert.Equal(t, atCreate, verifier.last(), "same files give the same canonical form")

	require.NoError(t, os.WriteFile(env.layout.UserDir("user-alice", rf.UUID)+"/template.xsl", []byte("<tampered/>"), 0o644))
	_, err = env.m.Verify(as(env.alice), rf.UUID)
	require.NoError(t, err)
	assert.NotEqual(t, atCreate, verifier.last())
}

func TestVerify_Errors(t *testing.T) {
	env := newTestEnv(t)
	rf := env.create(env.alice, simpleInput("Mine"))

	_, err := env.m.Verify(as(env.alice), "missing")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, CodeOf(OpVerify, err))

	_, err = env.m.Verify(as(env.watcher), rf.UUID)
	require.ErrorIs(t, err, ErrPermissionDenied)
	assert.Equal(t, 99, CodeOf(OpVerify, err))

	trust, err := env.m.Verify(as(env.alice), rf.UUID)
	require.NoError(t, err)
	assert.Equal(t, signature.TrustUnknown, trust)
}
