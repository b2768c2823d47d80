package storage

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "storage"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func uploadFile(t *testing.T, s *Store, user, name, content string) {
	t.Helper()
	up, err := s.BeginUpload(user, name)
	if err != nil {
		t.Fatalf("BeginUpload(%s): %v", name, err)
	}
	if _, err := up.Write([]byte(content)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := up.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func TestValidateFilename(t *testing.T) {
	valid := []string{"hello.txt", "a", "file-name_1.bin", ".hidden", "UPPER.TXT"}
	for _, name := range valid {
		if err := ValidateFilename(name); err != nil {
			t.Errorf("ValidateFilename(%q) = %v, want nil", name, err)
		}
	}

	invalid := []string{
		"",
		".",
		"..",
		"../etc/passwd",
		"..secret",
		"a/../b",
		"dir/file",
		"back\\slash",
		"nul\x00byte",
		"tab\there",
		strings.Repeat("a", MaxFilenameLength+1),
	}
	for _, name := range invalid {
		if err := ValidateFilename(name); !errors.Is(err, ErrUnsafeName) {
			t.Errorf("ValidateFilename(%q) = %v, want ErrUnsafeName", name, err)
		}
	}
}

func TestUploadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	uploadFile(t, s, "alice", "hello.txt", "hello world")

	size, err := s.Stat("alice", "hello.txt")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if size != 11 {
		t.Errorf("Stat size = %d, want 11", size)
	}

	f, n, err := s.Open("alice", "hello.txt")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	if n != 11 {
		t.Errorf("Open size = %d, want 11", n)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "hello world" {
		t.Errorf("content = %q", data)
	}
}

func TestUploadRejectsExisting(t *testing.T) {
	s := newTestStore(t)
	uploadFile(t, s, "alice", "f", "v1")

	_, err := s.BeginUpload("alice", "f")
	if !errors.Is(err, ErrExists) {
		t.Errorf("BeginUpload existing = %v, want ErrExists", err)
	}

	// The refused upload must not have touched the original.
	f, _, err := s.Open("alice", "f")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	data, _ := io.ReadAll(f)
	if string(data) != "v1" {
		t.Errorf("content = %q, want v1", data)
	}
}

func TestUploadAbortLeavesNothing(t *testing.T) {
	s := newTestStore(t)

	up, err := s.BeginUpload("alice", "partial")
	if err != nil {
		t.Fatalf("BeginUpload: %v", err)
	}
	if _, err := up.Write([]byte("some bytes")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	up.Abort()

	if _, err := s.Stat("alice", "partial"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Stat after abort = %v, want ErrNotFound", err)
	}

	// No temp litter either.
	entries, err := os.ReadDir(filepath.Join(s.Root(), "alice"))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("user dir not empty after abort: %v", entries)
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	uploadFile(t, s, "alice", "x", "0123456789")

	freed, err := s.Delete("alice", "x")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if freed != 10 {
		t.Errorf("Delete freed = %d, want 10", freed)
	}

	if _, err := s.Delete("alice", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete = %v, want ErrNotFound", err)
	}
}

func TestList(t *testing.T) {
	s := newTestStore(t)
	uploadFile(t, s, "alice", "a", "12345")
	uploadFile(t, s, "alice", "b", "1234567")
	uploadFile(t, s, "alice", ".hidden", "secret")

	// A directory entry must not appear as a file.
	if err := os.Mkdir(filepath.Join(s.Root(), "alice", "subdir"), 0755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}

	files, err := s.List("alice")
	if err != nil {
		t.Fatalf("List: %v", err)
	}

	byName := make(map[string]int64)
	for _, f := range files {
		byName[f.Name] = f.Size
	}
	if len(byName) != 2 {
		t.Fatalf("List returned %d files, want 2: %v", len(byName), files)
	}
	if byName["a"] != 5 || byName["b"] != 7 {
		t.Errorf("List sizes = %v", byName)
	}
}

func TestListUnknownUser(t *testing.T) {
	s := newTestStore(t)
	files, err := s.List("ghost")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("List for unknown user = %v, want empty", files)
	}
}

func TestIsolationBetweenUsers(t *testing.T) {
	s := newTestStore(t)
	uploadFile(t, s, "alice", "f", "alice data")

	if _, err := s.Stat("bob", "f"); !errors.Is(err, ErrNotFound) {
		t.Errorf("bob sees alice's file: %v", err)
	}
}

func TestTraversalRejectedEverywhere(t *testing.T) {
	s := newTestStore(t)

	// Plant a file outside the user's directory to prove it stays
	// unreachable.
	outside := filepath.Join(s.Root(), "victim.txt")
	if err := os.WriteFile(outside, []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	name := "../victim.txt"
	if _, err := s.Stat("alice", name); !errors.Is(err, ErrUnsafeName) {
		t.Errorf("Stat traversal = %v, want ErrUnsafeName", err)
	}
	if _, err := s.Delete("alice", name); !errors.Is(err, ErrUnsafeName) {
		t.Errorf("Delete traversal = %v, want ErrUnsafeName", err)
	}
	if _, _, err := s.Open("alice", name); !errors.Is(err, ErrUnsafeName) {
		t.Errorf("Open traversal = %v, want ErrUnsafeName", err)
	}
	if _, err := s.BeginUpload("alice", name); !errors.Is(err, ErrUnsafeName) {
		t.Errorf("BeginUpload traversal = %v, want ErrUnsafeName", err)
	}

	if _, err := os.Stat(outside); err != nil {
		t.Errorf("outside file was touched: %v", err)
	}
}
