package remote

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"pushback/internal/pushback"
	"pushback/internal/rsync"
)

func TestLocalRemote_BaseExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		base string
		want bool
	}{
		{"directory", dir, true},
		{"missing", filepath.Join(dir, "nope"), false},
		{"regular file", file, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewLocalRemote("usb", tt.base, nil)
			if err != nil {
				t.Fatalf("NewLocalRemote() error = %v", err)
			}
			got, err := r.BaseExists(context.Background())
			if err != nil {
				t.Fatalf("BaseExists() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("BaseExists() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLocalRemote_ListSiblings(t *testing.T) {
	base := t.TempDir()
	for _, d := range []string{"app_b", "app_a", "other_1"} {
		if err := os.Mkdir(filepath.Join(base, d), 0755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(base, "app_file"), nil, 0644); err != nil {
		t.Fatal(err)
	}

	r, err := NewLocalRemote("usb", base, nil)
	if err != nil {
		t.Fatal(err)
	}

	got, err := r.ListSiblings(context.Background(), "app_")
	if err != nil {
		t.Fatalf("ListSiblings() error = %v", err)
	}
	if !reflect.DeepEqual(got, []string{"app_a", "app_b"}) {
		t.Errorf("ListSiblings(app_) = %q, want [app_a app_b]", got)
	}

	all, _ := r.ListSiblings(context.Background(), "")
	if len(all) != 3 {
		t.Errorf("ListSiblings(\"\") = %q, want 3 directories", all)
	}
}

func TestLocalRemote_Transfer(t *testing.T) {
	base := t.TempDir()
	argsFile := filepath.Join(t.TempDir(), "args")
	bin := filepath.Join(t.TempDir(), "rsync")
	script := "#!/bin/sh\nfor a in \"$@\"; do echo \"$a\" >> " + argsFile + "; done\n"
	if err := os.WriteFile(bin, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}

	r, err := NewLocalRemote("usb", base, &rsync.Runner{Binary: bin})
	if err != nil {
		t.Fatal(err)
	}
	err = r.Transfer(context.Background(), pushback.TransferRequest{
		LocalRoot:        "/home/me/app",
		RemoteDir:        "app_a1b2c3d4",
		Filters:          pushback.FilterPaths{ExcludeFile: "/tmp/ex"},
		DeleteExtraneous: true,
	})
	if err != nil {
		t.Fatalf("Transfer() error = %v", err)
	}

	data, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatal(err)
	}
	args := strings.Split(strings.TrimSpace(string(data)), "\n")
	want := []string{
		"-azP", "--delete", "--safe-links", "--prune-empty-dirs",
		"--exclude-from=/tmp/ex",
		"/home/me/app/", filepath.Join(base, "app_a1b2c3d4") + "/",
	}
	if !reflect.DeepEqual(args, want) {
		t.Errorf("rsync args = %q, want %q", args, want)
	}
}

func TestLocalRemote_Describe(t *testing.T) {
	r, err := NewLocalRemote("usb", "/mnt/usb/", nil)
	if err != nil {
		t.Fatal(err)
	}
	if r.Describe() != "local -> /mnt/usb" {
		t.Errorf("Describe() = %q", r.Describe())
	}
	if r.Location("app_1") != "/mnt/usb/app_1" {
		t.Errorf("Location() = %q", r.Location("app_1"))
	}
	if r.MissingBaseHint() != `mkdir -p "/mnt/usb"` {
		t.Errorf("MissingBaseHint() = %q", r.MissingBaseHint())
	}
}
