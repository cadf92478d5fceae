// Package csvlog implements the optional holder-snapshot CSV logger of
// spec.md §6 ("A boolean env LOG_CSV toggles a snapshot CSV under logs/ on
// each holder refresh"), using encoding/csv with the teacher's
// append-mode-file idiom from core/system_health_logging.go.
package csvlog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Entry is one holder-snapshot row.
type Entry struct {
	Voter string
	Alpha float64
	Tao   float64
}

// Logger appends one CSV file per holder refresh under dir, when enabled.
type Logger struct {
	dir     string
	enabled bool
}

// New creates a Logger writing under dir. If enabled is false, WriteSnapshot
// is a no-op, so callers don't need to branch on configuration themselves.
func New(dir string, enabled bool) *Logger {
	return &Logger{dir: dir, enabled: enabled}
}

// WriteSnapshot writes entries to a new file "holders-<unix-ts>.csv" under
// the logger's directory, one row per voter, per spec.md §6.
func (l *Logger) WriteSnapshot(entries []Entry) error {
	if !l.enabled {
		return nil
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(l.dir, fmt.Sprintf("holders-%d.csv", time.Now().Unix()))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"voter", "alpha", "tao"}); err != nil {
		return err
	}
	for _, e := range entries {
		row := []string{e.Voter, fmt.Sprintf("%g", e.Alpha), fmt.Sprintf("%g", e.Tao)}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
