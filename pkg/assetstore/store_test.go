package assetstore

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayout_Paths(t *testing.T) {
	l := NewLayout("/var/lib/rf", "/usr/share/rf", "/feed/sigs")

	assert.Equal(t, "/var/lib/rf/report_formats/u1/f1", l.UserDir("u1", "f1"))
	assert.Equal(t, "/var/lib/rf/report_formats_trash/42", l.TrashDir(42))
	assert.Equal(t, "/usr/share/rf/f1", l.PredefinedFormatDir("f1"))
	assert.Equal(t, "/usr/share/rf/f1", l.FormatDir("", "f1", false))
	assert.Equal(t, "/usr/share/rf/f1", l.FormatDir("u1", "f1", true))
	assert.Equal(t, "/var/lib/rf/report_formats/u1/f1", l.FormatDir("u1", "f1", false))
	assert.Equal(t, "/var/lib/rf/signatures/report_formats/f1.asc", l.SignatureLink("f1"))
	assert.Equal(t, "/feed/sigs/f1.asc", l.FeedSignature("f1"))
}

func TestWriteFiles_Modes(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "owner", "fmt")

	err := WriteFiles(dir, []File{
		{Name: "generate", Content: []byte("#!/bin/sh\n")},
		{Name: "template.xsl", Content: []byte("<xsl/>")},
	})
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.Equal(t, DirMode, info.Mode().Perm())

	gen, err := os.Stat(filepath.Join(dir, "generate"))
	require.NoError(t, err)
	assert.Equal(t, GeneratorMode, gen.Mode().Perm())

	tmpl, err := os.Stat(filepath.Join(dir, "template.xsl"))
	require.NoError(t, err)
	assert.Equal(t, FileMode, tmpl.Mode().Perm())
}

func TestWriteFiles_RejectsBadNames(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		wantErr error
	}{
		{"empty", "", ErrEmptyFileName},
		{"separator", "../escape", ErrInvalidFileName},
		{"dotdot", "..", ErrInvalidFileName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "fmt")
			err := WriteFiles(dir, []File{{Name: "generate"}, {Name: tt.file}})
			require.ErrorIs(t, err, tt.wantErr)
			assert.False(t, Exists(dir), "nothing should be written")
		})
	}
}

func TestWriteFiles_ReplacesExisting(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "fmt")
	require.NoError(t, WriteFiles(dir, []File{{Name: "old", Content: []byte("x")}}))
	require.NoError(t, WriteFiles(dir, []File{{Name: "new", Content: []byte("y")}}))

	files, err := ListFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "new", files[0].Name)
}

func TestListFiles_SortedBytewise(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "fmt")
	require.NoError(t, WriteFiles(dir, []File{
		{Name: "b", Content: []byte("2")},
		{Name: "B", Content: []byte("1")},
		{Name: "a", Content: []byte("3")},
	}))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), DirMode))

	files, err := ListFiles(dir)
	require.NoError(t, err)
	var names []string
	for _, f := range files {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"B", "a", "b"}, names)
}

func TestCopyTree(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	dst := filepath.Join(root, "a", "b", "dst")
	require.NoError(t, WriteFiles(src, []File{
		{Name: "generate", Content: []byte("#!/bin/sh\n")},
		{Name: "data", Content: []byte("payload")},
	}))

	require.NoError(t, CopyTree(src, dst))

	got, err := ListFiles(dst)
	require.NoError(t, err)
	want, err := ListFiles(src)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	gen, err := os.Stat(filepath.Join(dst, "generate"))
	require.NoError(t, err)
	assert.Equal(t, GeneratorMode, gen.Mode().Perm())
}

func TestMoveTree_Rename(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	dst := filepath.Join(root, "trash", "7")
	require.NoError(t, WriteFiles(src, []File{{Name: "generate", Content: []byte("x")}}))

	require.NoError(t, MoveTree(src, dst))
	assert.False(t, Exists(src))
	assert.True(t, Exists(filepath.Join(dst, "generate")))
}

func TestMoveTree_CrossDevice(t *testing.T) {
	orig := rename
	rename = func(oldpath, newpath string) error {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: syscall.EXDEV}
	}
	t.Cleanup(func() { rename = orig })

	root := t.TempDir()
	src := filepath.Join(root, "src")
	dst := filepath.Join(root, "dst")
	require.NoError(t, WriteFiles(src, []File{
		{Name: "generate", Content: []byte("#!/bin/sh\n")},
		{Name: "data", Content: []byte("payload")},
	}))
	require.NoError(t, os.MkdirAll(filepath.Join(src, "nested"), DirMode))
	require.NoError(t, os.WriteFile(filepath.Join(src, "nested", "x"), []byte("n"), FileMode))

	require.NoError(t, MoveTree(src, dst))
	assert.False(t, Exists(src))

	content, err := os.ReadFile(filepath.Join(dst, "nested", "x"))
	require.NoError(t, err)
	assert.Equal(t, "n", string(content))

	gen, err := os.Stat(filepath.Join(dst, "generate"))
	require.NoError(t, err)
	assert.Equal(t, GeneratorMode, gen.Mode().Perm())
}

func TestMoveTree_OtherErrorKeepsSource(t *testing.T) {
	orig := rename
	rename = func(oldpath, newpath string) error {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: syscall.EACCES}
	}
	t.Cleanup(func() { rename = orig })

	root := t.TempDir()
	src := filepath.Join(root, "src")
	require.NoError(t, WriteFiles(src, []File{{Name: "generate"}}))

	err := MoveTree(src, filepath.Join(root, "dst"))
	require.Error(t, err)
	assert.True(t, Exists(src))
}

func TestRemoveTree_Missing(t *testing.T) {
	require.NoError(t, RemoveTree(filepath.Join(t.TempDir(), "absent")))
}
