package pushback_test

import (
	"testing"

	"pushback/internal/pushback"
)

func TestNewProjectIdentity(t *testing.T) {
	id := pushback.NewProjectIdentity("/home/user/app")

	if id.Name != "app" {
		t.Errorf("Name = %q, want %q", id.Name, "app")
	}
	if id.Fingerprint != "ad5d4cd3" {
		t.Errorf("Fingerprint = %q, want %q", id.Fingerprint, "ad5d4cd3")
	}
	if got := id.BaseName(); got != "app_ad5d4cd3" {
		t.Errorf("BaseName() = %q, want %q", got, "app_ad5d4cd3")
	}
	if got := id.RemoteName("_2025"); got != "app_ad5d4cd3_2025" {
		t.Errorf("RemoteName() = %q, want %q", got, "app_ad5d4cd3_2025")
	}

	t.Run("same name different path differs", func(t *testing.T) {
		other := pushback.NewProjectIdentity("/srv/app")
		if other.Name != id.Name || other.Fingerprint == id.Fingerprint {
			t.Errorf("identities %+v and %+v should share a name only", id, other)
		}
	})

	t.Run("filesystem root falls back to folder", func(t *testing.T) {
		root := pushback.NewProjectIdentity("/")
		if root.Name != "folder" {
			t.Errorf("Name = %q, want %q", root.Name, "folder")
		}
	})
}
