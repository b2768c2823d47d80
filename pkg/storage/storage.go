// Package storage manages the on-disk layout of the file store: one
// directory per user under a common storage root, each holding that
// user's files as single path segments.
//
// Every entry point validates filenames so that no command can touch a
// path outside the owning user's directory.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Sentinel errors. Session and file workers map these to protocol replies.
var (
	ErrUnsafeName = errors.New("storage: unsafe filename")
	ErrNotFound   = errors.New("storage: file not found")
	ErrExists     = errors.New("storage: file already exists")
)

// MaxFilenameLength is the maximum filename length in bytes.
const MaxFilenameLength = 255

// uploadTempPattern names in-flight upload temp files. The leading dot
// keeps them out of LIST output and usage scans.
const uploadTempPattern = ".upload-*"

// FileInfo describes one stored file.
type FileInfo struct {
	Name string
	Size int64
}

// Store is the filesystem-backed file store rooted at a base directory.
type Store struct {
	root string
}

// New creates the storage root if missing and returns a Store for it.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Store{root: root}, nil
}

// Root returns the storage base directory.
func (s *Store) Root() string {
	return s.root
}

// EnsureUserDir creates the per-user directory if it does not exist.
func (s *Store) EnsureUserDir(username string) error {
	if err := os.MkdirAll(filepath.Join(s.root, username), 0755); err != nil {
		return fmt.Errorf("create user directory: %w", err)
	}
	return nil
}

// ValidateFilename checks that name is a safe single path segment:
// non-empty, at most 255 bytes, no separators, no "..", not a dot
// self-reference, and no control characters.
func ValidateFilename(name string) error {
	if name == "" || len(name) > MaxFilenameLength {
		return ErrUnsafeName
	}
	if name == "." || name == ".." {
		return ErrUnsafeName
	}
	if strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return ErrUnsafeName
	}
	for i := 0; i < len(name); i++ {
		if name[i] < 0x20 || name[i] == 0x7f {
			return ErrUnsafeName
		}
	}
	return nil
}

// resolve returns the absolute path for a user's file after validation.
func (s *Store) resolve(username, filename string) (string, error) {
	if err := ValidateFilename(filename); err != nil {
		return "", err
	}
	return filepath.Join(s.root, username, filename), nil
}

// Stat returns the size of a stored file. ErrNotFound covers both a
// missing file and a non-regular entry of the same name.
func (s *Store) Stat(username, filename string) (int64, error) {
	path, err := s.resolve(username, filename)
	if err != nil {
		return 0, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("stat %s: %w", filename, err)
	}
	if !info.Mode().IsRegular() {
		return 0, ErrNotFound
	}
	return info.Size(), nil
}

// Open opens a stored file for reading and returns its size alongside.
// The caller owns the returned handle.
func (s *Store) Open(username, filename string) (*os.File, int64, error) {
	path, err := s.resolve(username, filename)
	if err != nil {
		return nil, 0, err
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, fmt.Errorf("open %s: %w", filename, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat %s: %w", filename, err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, 0, ErrNotFound
	}
	return f, info.Size(), nil
}

// Delete unlinks a stored file and returns the number of bytes freed.
func (s *Store) Delete(username, filename string) (int64, error) {
	size, err := s.Stat(username, filename)
	if err != nil {
		return 0, err
	}

	path, _ := s.resolve(username, filename)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("delete %s: %w", filename, err)
	}
	return size, nil
}

// List enumerates the user's regular files, skipping dotfiles (which
// include in-flight upload temp files). Order is whatever the directory
// returns.
func (s *Store) List(username string) ([]FileInfo, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, username))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list user directory: %w", err)
	}

	var files []FileInfo
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		files = append(files, FileInfo{Name: entry.Name(), Size: info.Size()})
	}
	return files, nil
}

// Upload is an in-flight upload: bytes stream into a hidden temp file in
// the user's directory and move to the final name only on Commit. An
// abandoned Upload leaves no visible file.
type Upload struct {
	file  *os.File
	final string
}

// BeginUpload validates the target name, refuses an existing target, and
// opens a temp file in the user's directory for the incoming body.
//
// The exists check here and the one in the file worker's pre-check are
// not atomic with the final rename; concurrent uploads of the same name
// by the same user are out of contract.
func (s *Store) BeginUpload(username, filename string) (*Upload, error) {
	final, err := s.resolve(username, filename)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(final); err == nil {
		return nil, ErrExists
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("stat upload target: %w", err)
	}

	if err := s.EnsureUserDir(username); err != nil {
		return nil, err
	}

	f, err := os.CreateTemp(filepath.Join(s.root, username), uploadTempPattern)
	if err != nil {
		return nil, fmt.Errorf("create upload temp file: %w", err)
	}
	return &Upload{file: f, final: final}, nil
}

// Write streams body bytes into the temp file.
func (u *Upload) Write(p []byte) (int, error) {
	return u.file.Write(p)
}

// Commit flushes the temp file and atomically renames it to the final
// path.
func (u *Upload) Commit() error {
	if err := u.file.Sync(); err != nil {
		u.Abort()
		return fmt.Errorf("sync upload: %w", err)
	}
	if err := u.file.Close(); err != nil {
		os.Remove(u.file.Name())
		return fmt.Errorf("close upload: %w", err)
	}
	if err := os.Rename(u.file.Name(), u.final); err != nil {
		os.Remove(u.file.Name())
		return fmt.Errorf("commit upload: %w", err)
	}
	return nil
}

// Abort discards the temp file. Safe to call after a failed Commit.
func (u *Upload) Abort() {
	u.file.Close()
	os.Remove(u.file.Name())
}
