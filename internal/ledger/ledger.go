// Package ledger maintains the durable record of processed stream URLs.
//
// The on-disk format is a newline-delimited UTF-8 list of URLs with no
// header or checksum. The file is append-only and duplicate lines are
// tolerated; membership checks operate on an in-memory set.
package ledger

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"streamlapse/internal/logging"
)

// Store reads and appends the processed URL log.
type Store struct {
	path   string
	logger *slog.Logger
}

// Set is a point-in-time membership snapshot of the processed log.
type Set map[string]struct{}

// Contains reports snapshot membership.
func (s Set) Contains(url string) bool {
	_, ok := s[strings.TrimSpace(url)]
	return ok
}

// Len returns the number of distinct processed URLs.
func (s Set) Len() int {
	return len(s)
}

// NewStore constructs a ledger over the given log path.
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Store{path: path, logger: logger}
}

// Path returns the log file location.
func (s *Store) Path() string {
	return s.path
}

// Snapshot reads the entire log into a membership set. A missing or
// unreadable log is treated as empty: failing open here means a damaged
// ledger causes reprocessing, never silently skipped work.
func (s *Store) Snapshot() Set {
	set := make(Set)

	file, err := os.Open(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("processed log unreadable; treating as empty",
				logging.String("path", s.path),
				logging.Error(err),
				logging.String(logging.FieldEventType, "ledger_read_failed"),
			)
		}
		return set
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		set[line] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		s.logger.Warn("processed log scan failed; snapshot may be partial",
			logging.String("path", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ledger_read_failed"),
		)
	}
	return set
}

// Contains re-reads the log and reports membership.
func (s *Store) Contains(url string) bool {
	return s.Snapshot().Contains(url)
}

// Add appends one URL to the log. Write failures are logged and swallowed:
// the pipeline proceeds as if the append succeeded, accepting the risk of a
// future duplicate pass over this stream.
func (s *Store) Add(url string) {
	url = strings.TrimSpace(url)
	if url == "" {
		return
	}

	if dir := filepath.Dir(s.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			s.logger.Error("processed log directory create failed; append skipped",
				logging.String("path", s.path),
				logging.Error(err),
				logging.String(logging.FieldEventType, "ledger_append_failed"),
				logging.String(logging.FieldImpact, "stream may be processed again"),
			)
			return
		}
	}

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		s.logger.Error("processed log open failed; append skipped",
			logging.String("path", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ledger_append_failed"),
			logging.String(logging.FieldImpact, "stream may be processed again"),
		)
		return
	}
	defer file.Close()

	if _, err := file.WriteString(url + "\n"); err != nil {
		s.logger.Error("processed log append failed",
			logging.String("path", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ledger_append_failed"),
			logging.String(logging.FieldImpact, "stream may be processed again"),
		)
	}
}
