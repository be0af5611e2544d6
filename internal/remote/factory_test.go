package remote

import (
	"context"
	"testing"

	"pushback/internal/config"
)

func TestNewRemoteFromConfig(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")

	tests := []struct {
		name    string
		cfg     config.RemoteConfig
		want    string
		wantErr bool
	}{
		{
			name: "ssh exec",
			cfg:  config.RemoteConfig{Name: "nas", Type: "ssh", User: "me", Host: "nas", Port: 22, Base: "~/pb", Transport: "exec"},
			want: "*remote.SSHRemote",
		},
		{
			name:    "ssh native without credentials",
			cfg:     config.RemoteConfig{Name: "nas", Type: "ssh", User: "me", Host: "nas", Port: 22, Base: "~/pb", Transport: "native"},
			wantErr: true,
		},
		{
			name: "local",
			cfg:  config.RemoteConfig{Name: "usb", Type: "local", Base: t.TempDir()},
			want: "*remote.LocalRemote",
		},
		{
			name:    "local without base",
			cfg:     config.RemoteConfig{Name: "usb", Type: "local"},
			wantErr: true,
		},
		{
			name: "s3",
			cfg:  config.RemoteConfig{Name: "bucket", Type: "s3", Bucket: "b", Region: "eu-central-1", Endpoint: "http://127.0.0.1:9000"},
			want: "*remote.S3Remote",
		},
		{
			name:    "unknown type",
			cfg:     config.RemoteConfig{Name: "x", Type: "ftp"},
			wantErr: true,
		},
	}

	getenv := func(k string) string {
		if k == "PUSHBACK_S3_ACCESS_KEY_ID" || k == "PUSHBACK_S3_SECRET_ACCESS_KEY" {
			return "test"
		}
		return ""
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewRemoteFromConfig(context.Background(), tt.cfg, Options{Getenv: getenv})
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewRemoteFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if r != nil {
					t.Errorf("NewRemoteFromConfig() = %T, want nil on error", r)
				}
				return
			}
			if got := typeName(r); got != tt.want {
				t.Errorf("NewRemoteFromConfig() type = %s, want %s", got, tt.want)
			}
			if r.Name() != tt.cfg.Name {
				t.Errorf("Name() = %q, want %q", r.Name(), tt.cfg.Name)
			}
		})
	}
}

func typeName(v any) string {
	switch v.(type) {
	case *SSHRemote:
		return "*remote.SSHRemote"
	case *LocalRemote:
		return "*remote.LocalRemote"
	case *S3Remote:
		return "*remote.S3Remote"
	default:
		return "unknown"
	}
}
