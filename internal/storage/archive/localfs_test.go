// internal/storage/archive/localfs_test.go
package archive

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestLocalFS_WriteRead(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewLocalFS(dir)
	if err != nil {
		t.Fatalf("NewLocalFS: %v", err)
	}

	ctx := context.Background()
	data := []byte("test data")

	if err := fs.Write(ctx, "test/file.txt", data); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := fs.Read(ctx, "test/file.txt")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if string(got) != string(data) {
		t.Errorf("got %q, want %q", got, data)
	}
}

func TestLocalFS_Exists(t *testing.T) {
	dir := t.TempDir()
	fs, _ := NewLocalFS(dir)
	ctx := context.Background()

	exists, _ := fs.Exists(ctx, "nonexistent.txt")
	if exists {
		t.Error("expected false for nonexistent file")
	}

	fs.Write(ctx, "exists.txt", []byte("data"))
	exists, _ = fs.Exists(ctx, "exists.txt")
	if !exists {
		t.Error("expected true for existing file")
	}
}

func TestLocalFS_List(t *testing.T) {
	dir := t.TempDir()
	fs, _ := NewLocalFS(dir)
	ctx := context.Background()

	fs.Write(ctx, "data/2024/01/a.txt", []byte("a"))
	fs.Write(ctx, "data/2024/01/b.txt", []byte("b"))
	fs.Write(ctx, "data/2024/02/c.txt", []byte("c"))

	paths, err := fs.List(ctx, "data/2024/01")
	if err != nil {
		t.Fatalf("List: %v", err)
	}

	want := []string{"data/2024/01/a.txt", "data/2024/01/b.txt"}
	if !reflect.DeepEqual(paths, want) {
		t.Errorf("got %v, want %v", paths, want)
	}

	paths, err = fs.List(ctx, "missing")
	if err != nil || len(paths) != 0 {
		t.Errorf("expected empty list for missing prefix, got %v, %v", paths, err)
	}
}

func TestLocalFS_ReadMissing(t *testing.T) {
	fs, _ := NewLocalFS(t.TempDir())
	if _, err := fs.Read(context.Background(), "nope.json"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLocalFS_RejectsEscapingKeys(t *testing.T) {
	fs, _ := NewLocalFS(t.TempDir())
	ctx := context.Background()
	for _, key := range []string{"../outside.txt", "a/../../outside.txt", "/etc/passwd"} {
		if err := fs.Write(ctx, key, []byte("x")); err == nil {
			t.Errorf("expected error writing %q", key)
		}
	}
}

func TestLocalFS_Overwrite(t *testing.T) {
	fs, _ := NewLocalFS(t.TempDir())
	ctx := context.Background()
	fs.Write(ctx, "run.json", []byte("first"))
	fs.Write(ctx, "run.json", []byte("second"))

	got, err := fs.Read(ctx, "run.json")
	if err != nil || string(got) != "second" {
		t.Errorf("got %q, %v", got, err)
	}
	paths, _ := fs.List(ctx, "")
	if len(paths) != 1 {
		t.Errorf("temp files leaked: %v", paths)
	}
}

func TestLocalFS_Delete(t *testing.T) {
	dir := t.TempDir()
	fs, _ := NewLocalFS(dir)
	ctx := context.Background()

	fs.Write(ctx, "delete.txt", []byte("data"))
	fs.Delete(ctx, "delete.txt")

	exists, _ := fs.Exists(ctx, "delete.txt")
	if exists {
		t.Error("file should be deleted")
	}
}
