package quota

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	errs "catlux/pkg/errors"
	"catlux/pkg/logger"
)

// monthLayout is the prefix an event timestamp must carry to count toward a month
const monthLayout = "2006-01"

// Event is one recorded download
type Event struct {
	Timestamp string `json:"timestamp"`
	Filename  string `json:"filename"`
}

// UnmarshalJSON also accepts the older "date" key for the timestamp
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw struct {
		Timestamp string `json:"timestamp"`
		Date      string `json:"date"`
		Filename  string `json:"filename"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Timestamp = raw.Timestamp
	if e.Timestamp == "" {
		e.Timestamp = raw.Date
	}
	e.Filename = raw.Filename
	return nil
}

type document struct {
	Downloads    []Event `json:"downloads"`
	TotalAllTime int     `json:"total_all_time"`
}

// Status is a snapshot of the ledger for display
type Status struct {
	Month        string
	Used         int
	Limit        int
	Remaining    int
	TotalAllTime int
}

// Ledger is the durable monthly download counter. It is safe for use by one
// process at a time; concurrent processes on the same file may race.
type Ledger struct {
	mu     sync.Mutex
	path   string
	limit  int
	doc    document
	now    func() time.Time
	logger logger.Logger
}

// Option configures a Ledger
type Option func(*Ledger)

// WithClock replaces time.Now, mostly for tests that cross month boundaries
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithLogger sets the ledger's logger
func WithLogger(log logger.Logger) Option {
	return func(l *Ledger) { l.logger = log }
}

// Open reads the ledger at path, starting empty when the file does not exist.
// A file that exists but cannot be decoded is an error, never silently reset.
func Open(path string, monthlyLimit int, opts ...Option) (*Ledger, error) {
	if monthlyLimit <= 0 {
		return nil, fmt.Errorf("monthly limit must be positive, got %d", monthlyLimit)
	}

	l := &Ledger{
		path:   path,
		limit:  monthlyLimit,
		now:    time.Now,
		logger: logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}

	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Reload discards in-memory state and reads the file again
func (l *Ledger) Reload() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	doc, err := readDocument(l.path)
	if err != nil {
		return err
	}
	l.doc = doc

	l.logger.DebugWithFields("Download ledger loaded", map[string]interface{}{
		"path":           l.path,
		"events":         len(doc.Downloads),
		"total_all_time": doc.TotalAllTime,
	})
	return nil
}

func readDocument(path string) (document, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return document{}, nil
		}
		return document{}, fmt.Errorf("failed to open download ledger: %w", err)
	}
	defer file.Close()

	var doc document
	if err := json.NewDecoder(file).Decode(&doc); err != nil {
		if err == io.EOF {
			return document{}, nil
		}
		return document{}, fmt.Errorf("download ledger %s is corrupt: %w", path, err)
	}
	return doc, nil
}

// MonthlyLimit returns the configured limit
func (l *Ledger) MonthlyLimit() int {
	return l.limit
}

// Path returns the ledger file location
func (l *Ledger) Path() string {
	return l.path
}

// CurrentMonthCount counts events whose timestamp starts with the current host-local "YYYY-MM"
func (l *Ledger) CurrentMonthCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.countMonth(l.now().Format(monthLayout))
}

func (l *Ledger) countMonth(prefix string) int {
	count := 0
	for _, ev := range l.doc.Downloads {
		if strings.HasPrefix(ev.Timestamp, prefix) {
			count++
		}
	}
	return count
}

// Remaining returns the downloads left this month, clamped to [0, limit]
func (l *Ledger) Remaining() int {
	used := l.CurrentMonthCount()
	if used >= l.limit {
		return 0
	}
	return l.limit - used
}

// TotalAllTime returns the lifetime download counter
func (l *Ledger) TotalAllTime() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.doc.TotalAllTime
}

// Status returns a snapshot for the status command
func (l *Ledger) Status() Status {
	l.mu.Lock()
	month := l.now().Format(monthLayout)
	used := l.countMonth(month)
	total := l.doc.TotalAllTime
	l.mu.Unlock()

	remaining := l.limit - used
	if remaining < 0 {
		remaining = 0
	}
	return Status{
		Month:        month,
		Used:         used,
		Limit:        l.limit,
		Remaining:    remaining,
		TotalAllTime: total,
	}
}

// RecordDownload appends one event and rewrites the file. It never refuses on
// quota; the caller checks Remaining before fetching. On failure the in-memory
// state may be ahead of the file and Reload must be called before trusting it.
func (l *Ledger) RecordDownload(documentID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.doc.Downloads = append(l.doc.Downloads, Event{
		Timestamp: l.now().Format(time.RFC3339),
		Filename:  documentID,
	})
	l.doc.TotalAllTime++

	if err := l.save(); err != nil {
		return &errs.PersistenceError{Path: l.path, DocumentID: documentID, Err: err}
	}
	return nil
}

// Reset clears the history and the lifetime total. The previous file, if any,
// is kept next to the ledger with a .backup suffix.
func (l *Ledger) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.backup(); err != nil {
		return &errs.PersistenceError{Path: l.path, Err: err}
	}

	l.doc = document{}
	if err := l.save(); err != nil {
		return &errs.PersistenceError{Path: l.path, Err: err}
	}

	l.logger.Info("Download ledger reset")
	return nil
}

// save writes the whole document to a temp file and renames it over the ledger
func (l *Ledger) save() error {
	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create ledger directory: %w", err)
	}

	file, err := os.CreateTemp(dir, filepath.Base(l.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary ledger file: %w", err)
	}
	tempPath := file.Name()

	doc := l.doc
	if doc.Downloads == nil {
		doc.Downloads = []Event{}
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode ledger: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync ledger file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close ledger file: %w", err)
	}

	if err := os.Rename(tempPath, l.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace ledger file: %w", err)
	}

	l.logger.DebugWithFields("Download ledger saved", map[string]interface{}{
		"path":           l.path,
		"events":         len(l.doc.Downloads),
		"total_all_time": l.doc.TotalAllTime,
	})
	return nil
}

func (l *Ledger) backup() error {
	src, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open ledger for backup: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(l.path + ".backup")
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to copy ledger to backup: %w", err)
	}
	return nil
}
