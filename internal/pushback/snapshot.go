package pushback

import (
	"fmt"
	"strings"
	"time"
)

// SnapshotMode selects how remote directories are bucketed in time.
type SnapshotMode string

const (
	SnapshotNone    SnapshotMode = "none"
	SnapshotYearly  SnapshotMode = "yearly"
	SnapshotMonthly SnapshotMode = "monthly"
	SnapshotWeekly  SnapshotMode = "weekly"
	SnapshotDaily   SnapshotMode = "daily"
	SnapshotHourly  SnapshotMode = "hourly"
	SnapshotCustom  SnapshotMode = "custom"
)

// SnapshotModes lists every valid mode in display order.
var SnapshotModes = []SnapshotMode{
	SnapshotNone, SnapshotYearly, SnapshotMonthly, SnapshotWeekly,
	SnapshotDaily, SnapshotHourly, SnapshotCustom,
}

// ParseSnapshotMode validates s. Matching is case-insensitive.
func ParseSnapshotMode(s string) (SnapshotMode, error) {
	mode := SnapshotMode(strings.ToLower(strings.TrimSpace(s)))
	for _, m := range SnapshotModes {
		if m == mode {
			return mode, nil
		}
	}
	names := make([]string, len(SnapshotModes))
	for i, m := range SnapshotModes {
		names[i] = string(m)
	}
	return "", fmt.Errorf("invalid snapshot mode %q: must be one of %s", s, strings.Join(names, ", "))
}

// SnapshotSpec is a mode plus the interval used by SnapshotCustom.
type SnapshotSpec struct {
	Mode        SnapshotMode
	CustomHours int
}

// Validate rejects a custom mode without a positive interval.
func (s SnapshotSpec) Validate() error {
	if _, err := ParseSnapshotMode(string(s.Mode)); err != nil {
		return err
	}
	if s.Mode == SnapshotCustom && s.CustomHours <= 0 {
		return fmt.Errorf("snapshot_custom_hours must be a positive integer, got %d", s.CustomHours)
	}
	return nil
}

// TimeSuffix maps now to the canonical bucket token for spec. It is empty for
// SnapshotNone. Calendar modes use now's own location; custom buckets count
// whole hours since the Unix epoch so they are timezone independent.
func TimeSuffix(spec SnapshotSpec, now time.Time) string {
	switch spec.Mode {
	case SnapshotYearly:
		return fmt.Sprintf("_%04d", now.Year())
	case SnapshotMonthly:
		return fmt.Sprintf("_%04d-%02d", now.Year(), int(now.Month()))
	case SnapshotWeekly:
		year, week := now.ISOWeek()
		return fmt.Sprintf("_%04dW%02d", year, week)
	case SnapshotDaily:
		return now.Format("_2006-01-02")
	case SnapshotHourly:
		return now.Format("_2006-01-02H15")
	case SnapshotCustom:
		if spec.CustomHours <= 0 {
			return ""
		}
		hours := now.Unix() / 3600
		return fmt.Sprintf("_I%d", hours/int64(spec.CustomHours))
	default:
		return ""
	}
}
