package fs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOSFilesystemManager_Resolve(t *testing.T) {
	m := NewOSFilesystemManager()

	t.Run("resolves symlinks to the canonical path", func(t *testing.T) {
		dir := t.TempDir()
		realDir := filepath.Join(dir, "realDir")
		if err := os.Mkdir(realDir, 0755); err != nil {
			t.Fatal(err)
		}
		link := filepath.Join(dir, "link")
		if err := os.Symlink(realDir, link); err != nil {
			t.Fatal(err)
		}

		got, err := m.Resolve(link)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		want, _ := filepath.EvalSymlinks(realDir)
		if got.String() != want || !got.IsDir() {
			t.Errorf("Resolve() = %s (dir=%v), want %s (dir=true)", got, got.IsDir(), want)
		}
	})

	t.Run("missing path", func(t *testing.T) {
		if _, err := m.Resolve(filepath.Join(t.TempDir(), "missing")); err == nil {
			t.Error("Resolve() expected error, got nil")
		}
	})

	t.Run("expands home", func(t *testing.T) {
		home := t.TempDir()
		t.Setenv("HOME", home)
		got, err := m.Resolve("~")
		if err != nil {
			t.Fatalf("Resolve(~) error = %v", err)
		}
		want, _ := filepath.EvalSymlinks(home)
		if got.String() != want {
			t.Errorf("Resolve(~) = %s, want %s", got, want)
		}
	})
}

func TestOSFilesystemManager_ReadDir(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.txt", "a.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(dir, "sub"), filepath.Join(dir, "link")); err != nil {
		t.Fatal(err)
	}

	infos, err := NewOSFilesystemManager().ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}

	var names []string
	for _, info := range infos {
		names = append(names, info.Name())
	}
	want := []string{"a.txt", "b.txt", "link", "sub"}
	if len(names) != len(want) {
		t.Fatalf("ReadDir() names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("ReadDir() names = %v, want %v", names, want)
			break
		}
	}
	if infos[2].IsDir() || infos[2].Mode()&os.ModeSymlink == 0 {
		t.Error("symlink entry should be reported as a symlink, not followed")
	}
}

func TestExpandHome(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	tests := map[string]string{
		"~":        "/home/tester",
		"~/x/y":    "/home/tester/x/y",
		"/abs":     "/abs",
		"rel/~":    "rel/~",
		"~someone": "~someone",
	}
	for in, want := range tests {
		got, err := ExpandHome(in)
		if err != nil {
			t.Fatalf("ExpandHome(%q) error = %v", in, err)
		}
		if got != want {
			t.Errorf("ExpandHome(%q) = %q, want %q", in, got, want)
		}
	}
}
