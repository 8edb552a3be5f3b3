// Package fsutil provides the file operations the consistency engine needs,
// rooted at a project directory. Paths are relative to the root and use
// forward slashes, the same form in which they are recorded in the indices.
package fsutil

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/natefinch/atomic"
)

// ErrCollision is returned when a move or copy would replace an existing file.
var ErrCollision = errors.New("destination already exists")

const (
	dirPerms  = 0755
	filePerms = 0644
)

// FS is the file abstraction consumed by the engine.
type FS interface {
	// Root returns the absolute project root.
	Root() string
	// Abs converts a root-relative path to an absolute one.
	Abs(rel string) string
	Exists(rel string) bool
	Stat(rel string) (fs.FileInfo, error)
	ReadFile(rel string) ([]byte, error)
	// WriteFile replaces rel atomically, creating parent directories.
	WriteFile(rel string, data []byte) error
	// Hash returns the hex SHA-256 digest and byte size of rel.
	Hash(rel string) (string, int64, error)
	MkdirAll(rel string) error
	// Move renames src to dst, creating dst's directory. It never replaces
	// an existing dst; that case returns ErrCollision.
	Move(src, dst string) error
	// Copy copies a single file. It returns ErrCollision if dst exists.
	Copy(src, dst string) error
	Remove(rel string) error
	RemoveAll(rel string) error
	ReadDir(rel string) ([]fs.DirEntry, error)
}

// OS implements FS on the local filesystem.
type OS struct {
	root string
}

// New returns an OS filesystem rooted at root.
func New(root string) *OS {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return &OS{root: root}
}

func (o *OS) Root() string { return o.root }

func (o *OS) Abs(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(o.root, filepath.FromSlash(rel))
}

func (o *OS) Exists(rel string) bool {
	_, err := os.Stat(o.Abs(rel))
	return err == nil
}

func (o *OS) Stat(rel string) (fs.FileInfo, error) {
	return os.Stat(o.Abs(rel))
}

func (o *OS) ReadFile(rel string) ([]byte, error) {
	return os.ReadFile(o.Abs(rel))
}

func (o *OS) WriteFile(rel string, data []byte) error {
	p := o.Abs(rel)
	if err := os.MkdirAll(filepath.Dir(p), dirPerms); err != nil {
		return err
	}
	if err := atomic.WriteFile(p, bytes.NewReader(data)); err != nil {
		return err
	}
	// atomic.WriteFile leaves the temp file's 0600 mode on new files.
	return os.Chmod(p, filePerms)
}

func (o *OS) Hash(rel string) (string, int64, error) {
	return HashFile(o.Abs(rel))
}

func (o *OS) MkdirAll(rel string) error {
	return os.MkdirAll(o.Abs(rel), dirPerms)
}

func (o *OS) Move(src, dst string) error {
	from, to := o.Abs(src), o.Abs(dst)
	if from == to {
		return nil
	}
	if _, err := os.Lstat(to); err == nil {
		return fmt.Errorf("move %s to %s: %w", src, dst, ErrCollision)
	}
	if err := os.MkdirAll(filepath.Dir(to), dirPerms); err != nil {
		return err
	}
	err := os.Rename(from, to)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return err
	}
	if err := copyFile(from, to); err != nil {
		return err
	}
	return os.Remove(from)
}

func (o *OS) Copy(src, dst string) error {
	to := o.Abs(dst)
	if _, err := os.Lstat(to); err == nil {
		return fmt.Errorf("copy %s to %s: %w", src, dst, ErrCollision)
	}
	if err := os.MkdirAll(filepath.Dir(to), dirPerms); err != nil {
		return err
	}
	return copyFile(o.Abs(src), to)
}

func (o *OS) Remove(rel string) error {
	return os.Remove(o.Abs(rel))
}

func (o *OS) RemoveAll(rel string) error {
	return os.RemoveAll(o.Abs(rel))
}

func (o *OS) ReadDir(rel string) ([]fs.DirEntry, error) {
	return os.ReadDir(o.Abs(rel))
}

// HashFile streams path through SHA-256.
func HashFile(p string) (string, int64, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// HashBytes returns the hex SHA-256 digest of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// CopyTree copies every regular file under src into dst, keeping relative
// paths. Files already present at the destination are left alone, so a
// repeated call copies nothing. It returns the number of files copied.
func CopyTree(fsys FS, src, dst string) (int, error) {
	copied := 0
	err := filepath.WalkDir(fsys.Abs(src), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(fsys.Abs(src), p)
		if err != nil {
			return err
		}
		target := path.Join(dst, filepath.ToSlash(rel))
		if fsys.Exists(target) {
			return nil
		}
		if err := fsys.Copy(path.Join(src, filepath.ToSlash(rel)), target); err != nil {
			return err
		}
		copied++
		return nil
	})
	return copied, err
}

// Clean normalizes a recorded path to the slash-separated relative form.
func Clean(rel string) string {
	rel = filepath.ToSlash(rel)
	rel = strings.TrimPrefix(rel, "./")
	return path.Clean(rel)
}

func copyFile(from, to string) error {
	in, err := os.Open(from)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := atomic.WriteFile(to, in); err != nil {
		return err
	}
	return os.Chmod(to, filePerms)
}

var _ FS = (*OS)(nil)
