// Package history keeps a local record of enqueued notify runs, so operators
// can see what was replayed and when.
package history

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const MaxHistoryLength = 100

type Entry struct {
	Time  time.Time
	JobID string
	Args  string
}

func (e Entry) String() string {
	return fmt.Sprintf("%s\t%s\t%s", e.Time.UTC().Format(time.RFC3339), e.JobID, e.Args)
}

type History struct {
	path    string
	entries []Entry
}

// New loads the run history stored next to the user's configuration, if it
// exists.
func New() (*History, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return nil, err
	}
	return Load(filepath.Join(dir, "crednotify", "history.txt"))
}

// Load loads the run history from an explicit path.
func Load(path string) (*History, error) {
	h := &History{path: path}
	if err := h.load(); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *History) load() error {
	data, err := os.ReadFile(h.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for line := range strings.SplitSeq(strings.TrimSuffix(string(data), "\n"), "\n") {
		parts := strings.SplitN(line, "\t", 3)
		if len(parts) != 3 {
			continue
		}
		ts, err := time.Parse(time.RFC3339, parts[0])
		if err != nil {
			continue
		}
		h.entries = append(h.entries, Entry{Time: ts, JobID: parts[1], Args: parts[2]})
	}
	return nil
}

// Append records a new run and updates the history file.
func (h *History) Append(jobID, args string) error {
	h.entries = append(h.entries, Entry{Time: time.Now().UTC(), JobID: jobID, Args: args})
	if len(h.entries) > MaxHistoryLength {
		h.entries = h.entries[len(h.entries)-MaxHistoryLength:]
	}

	if err := os.MkdirAll(filepath.Dir(h.path), 0o755); err != nil {
		return err
	}
	var b strings.Builder
	for _, e := range h.entries {
		b.WriteString(e.String())
		b.WriteByte('\n')
	}
	return os.WriteFile(h.path, []byte(b.String()), 0o644)
}

// Entries returns the recorded runs, oldest first.
func (h *History) Entries() []Entry {
	return h.entries
}
