package assetstore

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
)

const (
	// DirMode is applied to every asset directory.
	DirMode os.FileMode = 0o755
	// GeneratorMode is applied to the "generate" entry point.
	GeneratorMode os.FileMode = 0o755
	// FileMode is applied to every other asset file.
	FileMode os.FileMode = 0o644

	// GeneratorName is the entry point every format directory carries.
	GeneratorName = "generate"
)

// ErrEmptyFileName is returned when a file entry has no name.
var ErrEmptyFileName = errors.New("asset file name is empty")

// ErrInvalidFileName is returned when a file name would escape its directory.
var ErrInvalidFileName = errors.New("asset file name is invalid")

// rename is swapped in tests to simulate cross-device moves.
var rename = os.Rename

// File is one named asset of a report format.
type File struct {
	Name    string
	Content []byte
}

// ValidateFileName rejects names that are empty or would leave the format directory.
func ValidateFileName(name string) error {
	if name == "" {
		return ErrEmptyFileName
	}
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidFileName, name)
	}
	return nil
}

// WriteFiles creates dir (replacing anything already there) and writes files into it.
func WriteFiles(dir string, files []File) error {
	for _, f := range files {
		if err := ValidateFileName(f.Name); err != nil {
			return err
		}
	}

	if err := RemoveTree(dir); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, DirMode); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	// MkdirAll is subject to umask.
	if err := os.Chmod(dir, DirMode); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", dir, err)
	}

	for _, f := range files {
		path := filepath.Join(dir, f.Name)
		mode := FileMode
		if f.Name == GeneratorName {
			mode = GeneratorMode
		}
		if err := os.WriteFile(path, f.Content, mode); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		if err := os.Chmod(path, mode); err != nil {
			return fmt.Errorf("failed to chmod %s: %w", path, err)
		}
	}
	return nil
}

// ListFiles reads the regular files directly inside dir, sorted bytewise by name.
func ListFiles(dir string) ([]File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var files []File
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", e.Name(), err)
		}
		files = append(files, File{Name: e.Name(), Content: content})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// RemoveTree recursively removes dir. A missing dir is not an error.
func RemoveTree(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove %s: %w", dir, err)
	}
	return nil
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// CopyTree copies src into dst, replacing dst.
func CopyTree(src, dst string) error {
	if err := RemoveTree(dst); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), DirMode); err != nil {
		return fmt.Errorf("failed to create parent of %s: %w", dst, err)
	}

	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		switch {
		case d.IsDir():
			if err := os.MkdirAll(target, DirMode); err != nil {
				return err
			}
			return os.Chmod(target, DirMode)
		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		default:
			return copyFile(path, target)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	return nil
}

// MoveTree moves src to dst, replacing dst. When a rename crosses devices the
// entries are copied one by one and src is removed only after all of them
// have been moved.
func MoveTree(src, dst string) error {
	if err := RemoveTree(dst); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), DirMode); err != nil {
		return fmt.Errorf("failed to create parent of %s: %w", dst, err)
	}

	err := rename(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return fmt.Errorf("failed to move %s to %s: %w", src, dst, err)
	}

	if err := moveEntries(src, dst); err != nil {
		return fmt.Errorf("failed to move %s to %s across devices: %w", src, dst, err)
	}
	return RemoveTree(src)
}

func moveEntries(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dst, info.Mode().Perm()); err != nil {
		return err
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, e := range entries {
		from := filepath.Join(src, e.Name())
		to := filepath.Join(dst, e.Name())
		if e.IsDir() {
			if err := moveEntries(from, to); err != nil {
				return err
			}
			continue
		}
		if err := copyFile(from, to); err != nil {
			return err
		}
		if err := os.Remove(from); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chmod(dst, info.Mode().Perm())
}
