package config

import (
	"fmt"
	"os"
	"strings"
)

const configTemplate = `# pushback configuration

[options]
large_file_mb = %d
delete_remote = false
global_ignore = %q

# Time-based snapshots
# none = single backup dir; yearly/monthly/weekly/daily/hourly = one dir per period;
# custom = one dir per snapshot_custom_hours window (aligned to UTC)
snapshot_mode = "none"
snapshot_custom_hours = %d

log_dir = %q
# A file path, "memory" or "off"
history_db = %q

[[remote]]
name = "main"
type = "ssh"
user = "your_user"
host = "your.host.example"
port = 22
base = "~/pushback"
default = true

# Additional targets:
#
# [[remote]]
# name = "offsite"
# type = "ssh"
# transport = "native"   # list with the built-in client; rsync still uses ssh
# user = "offsite_user"
# host = "offsite.example.com"
# port = 2222
# base = "/srv/pushback"
# identity_file = "~/.ssh/id_ed25519"
# default = false
#
# [[remote]]
# name = "usb"
# type = "local"
# base = "/mnt/usb/pushback"
#
# [[remote]]
# name = "bucket"
# type = "s3"
# bucket = "my-backups"
# region = "eu-central-1"
# base = "pushback"
# endpoint = ""          # set for S3-compatible stores
`

// InitResult reports which files Init wrote.
type InitResult struct {
	ConfigPath          string
	GlobalIgnorePath    string
	GlobalIgnoreWritten bool
}

// Init writes the template config to path and the global ignore file listing
// defaultExcludes. An existing config is never overwritten unless force is
// set; an existing global ignore file is kept unless force is set.
func Init(path string, defaults *Config, defaultExcludes []string, force bool) (*InitResult, error) {
	if _, err := os.Stat(path); err == nil && !force {
		return nil, configErrorf("refusing to overwrite existing config: %s (use --force to overwrite)", path)
	}

	o := defaults.Options
	content := fmt.Sprintf(configTemplate, o.LargeFileMB, o.GlobalIgnore, o.SnapshotCustomHours, o.LogDir, o.HistoryDB)
	if err := writeFile(path, content); err != nil {
		return nil, fmt.Errorf("initializing config: %w", err)
	}

	result := &InitResult{ConfigPath: path, GlobalIgnorePath: o.GlobalIgnore}
	if _, err := os.Stat(o.GlobalIgnore); err == nil && !force {
		return result, nil
	}
	if err := writeFile(o.GlobalIgnore, strings.Join(defaultExcludes, "\n")+"\n"); err != nil {
		return result, fmt.Errorf("writing global ignore: %w", err)
	}
	result.GlobalIgnoreWritten = true
	return result, nil
}
