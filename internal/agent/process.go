package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/vesaa/clawwatch/internal/models"
)

// maxLogLine caps the message length of a reported log line.
const maxLogLine = 500

// logKeywords mark a tailed line as worth reporting.
var logKeywords = []string{"error", "exception", "fail", "critical"}

// Watcher probes the watched process and its side files: version and
// running flag from the binary, token deltas from a cumulative counter
// in a JSON state file, and error lines tailed from a log file. Every
// input is optional; unset paths simply contribute nothing.
type Watcher struct {
	binary    string
	stateFile string
	logFile   string

	prevTokens  int64
	tokenseeded bool
	logOffset   int64
}

// NewWatcher creates a Watcher. Empty paths disable their probe.
func NewWatcher(binary, stateFile, logFile string) *Watcher {
	return &Watcher{binary: binary, stateFile: stateFile, logFile: logFile}
}

// Probe runs the binary with --version. A successful run means the
// watched process is installed and answering.
func (w *Watcher) Probe() (running bool, version string) {
	if w.binary == "" {
		return false, ""
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, w.binary, "--version").Output()
	if err != nil {
		return false, ""
	}
	return true, strings.TrimSpace(string(out))
}

// TokenDelta reads the cumulative token counter from the state file and
// returns tokens consumed since the previous read. The first read only
// seeds the baseline; a counter that went backwards (reset) re-seeds
// and reports zero rather than a negative delta.
func (w *Watcher) TokenDelta() int64 {
	if w.stateFile == "" {
		return 0
	}
	total, ok := readTokenTotal(w.stateFile)
	if !ok {
		return 0
	}
	if !w.tokenseeded || total < w.prevTokens {
		w.prevTokens = total
		w.tokenseeded = true
		return 0
	}
	delta := total - w.prevTokens
	w.prevTokens = total
	return delta
}

// readTokenTotal accepts either a flat {"total_tokens": n} document or
// a {"sessions": {...}} map whose entries carry "totalTokens".
func readTokenTotal(path string) (int64, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}

	var flat struct {
		TotalTokens *int64 `json:"total_tokens"`
	}
	if err := json.Unmarshal(data, &flat); err == nil && flat.TotalTokens != nil {
		return *flat.TotalTokens, true
	}

	var doc struct {
		Sessions map[string]struct {
			TotalTokens int64 `json:"totalTokens"`
		} `json:"sessions"`
	}
	if err := json.Unmarshal(data, &doc); err != nil || doc.Sessions == nil {
		return 0, false
	}
	var total int64
	for _, s := range doc.Sessions {
		total += s.TotalTokens
	}
	return total, true
}

// TailLogs reads the watched log file from the last offset and returns
// report entries for lines matching an error keyword. Truncation of the
// file (rotation) resets the offset to the start.
func (w *Watcher) TailLogs() []models.ReportLog {
	if w.logFile == "" {
		return nil
	}
	f, err := os.Open(w.logFile)
	if err != nil {
		return nil
	}
	defer f.Close()

	if info, err := f.Stat(); err != nil || info.Size() < w.logOffset {
		w.logOffset = 0
	}
	if _, err := f.Seek(w.logOffset, 0); err != nil {
		return nil
	}

	var entries []models.ReportLog
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !matchesKeyword(line) {
			continue
		}
		if len(line) > maxLogLine {
			line = line[:maxLogLine]
		}
		now := time.Now()
		entries = append(entries, models.ReportLog{
			Timestamp: &now,
			Level:     "error",
			Message:   line,
			Source:    w.logFile,
		})
	}
	if pos, err := f.Seek(0, 1); err == nil {
		w.logOffset = pos
	}
	return entries
}

func matchesKeyword(line string) bool {
	lower := strings.ToLower(line)
	for _, kw := range logKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
