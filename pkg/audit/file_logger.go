package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/jonboulle/clockwork"
)

const (
	journalName     = "session-audit.jsonl"
	rotatedPattern  = "session-audit-*.jsonl"
	rotatedStamp    = "20060102T150405.000000000Z"
	defaultMaxSize  = 10 << 20
	defaultMaxFiles = 10
)

// ErrJournalClosed is returned when writing to a closed FileLogger
var ErrJournalClosed = errors.New("audit journal is closed")

// FileLoggerConfig configures the on-disk audit journal
type FileLoggerConfig struct {
	Dir      string
	MaxSize  int64 // bytes before the journal is rotated; 0 uses 10MiB, <0 never rotates
	MaxFiles int   // rotated journals kept; 0 uses 10
	Clock    clockwork.Clock
}

// FileLogger appends audit events to <Dir>/session-audit.jsonl, one JSON object per line.
// A full journal is renamed with a UTC timestamp and the oldest rotated journals beyond
// MaxFiles are removed.
type FileLogger struct {
	cfg FileLoggerConfig

	mu   sync.Mutex
	file *os.File
	size int64
}

// NewFileLogger opens (or creates) the journal under cfg.Dir
func NewFileLogger(cfg FileLoggerConfig) (*FileLogger, error) {
	if cfg.Dir == "" {
		return nil, errors.New("audit journal directory is required")
	}
	if cfg.MaxSize == 0 {
		cfg.MaxSize = defaultMaxSize
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = defaultMaxFiles
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create audit journal directory: %w", err)
	}

	l := &FileLogger{cfg: cfg}
	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *FileLogger) path() string {
	return filepath.Join(l.cfg.Dir, journalName)
}

func (l *FileLogger) open() error {
	f, err := os.OpenFile(l.path(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open audit journal: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to stat audit journal: %w", err)
	}
	l.file, l.size = f, info.Size()
	return nil
}

// rotate must be called with mu held
func (l *FileLogger) rotate() error {
	if err := l.file.Close(); err != nil {
		return err
	}
	l.file = nil

	stamp := l.cfg.Clock.Now().UTC().Format(rotatedStamp)
	if err := os.Rename(l.path(), filepath.Join(l.cfg.Dir, "session-audit-"+stamp+".jsonl")); err != nil {
		return fmt.Errorf("failed to rotate audit journal: %w", err)
	}
	l.prune()
	return l.open()
}

// prune drops the oldest rotated journals. Names sort chronologically.
func (l *FileLogger) prune() {
	rotated, err := filepath.Glob(filepath.Join(l.cfg.Dir, rotatedPattern))
	if err != nil || len(rotated) <= l.cfg.MaxFiles {
		return
	}
	slices.Sort(rotated)
	for _, name := range rotated[:len(rotated)-l.cfg.MaxFiles] {
		_ = os.Remove(name)
	}
}

// Log appends event to the journal, rotating first when the journal is full
func (l *FileLogger) Log(ctx context.Context, event *AuditEvent) error {
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode audit event: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return ErrJournalClosed
	}
	if l.cfg.MaxSize > 0 && l.size > 0 && l.size+int64(len(line)) > l.cfg.MaxSize {
		if err := l.rotate(); err != nil {
			return err
		}
	}
	n, err := l.file.Write(line)
	l.size += int64(n)
	if err != nil {
		return fmt.Errorf("failed to write audit event: %w", err)
	}
	return nil
}

func (l *FileLogger) LogAuthentication(ctx context.Context, eventType EventType, userID, username string, status EventStatus, message string) error {
	return l.Log(ctx, authenticationEvent(eventType, userID, username, status, message))
}

func (l *FileLogger) LogAdminAction(ctx context.Context, eventType EventType, adminUserID, targetUserID, message string) error {
	return l.Log(ctx, adminEvent(eventType, adminUserID, targetUserID, message))
}

// Close flushes and closes the journal. Later writes fail with ErrJournalClosed.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Sync()
	err = errors.Join(err, l.file.Close())
	l.file = nil
	return err
}

// Recent returns the last n events of the current journal, oldest first. n <= 0 returns
// all of them. Lines that do not decode are skipped.
func (l *FileLogger) Recent(n int) ([]*AuditEvent, error) {
	f, err := os.Open(l.path())
	if err != nil {
		return nil, fmt.Errorf("failed to open audit journal: %w", err)
	}
	defer f.Close()

	var events []*AuditEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for scanner.Scan() {
		var event AuditEvent
		if json.Unmarshal(scanner.Bytes(), &event) != nil {
			continue
		}
		events = append(events, &event)
		if n > 0 && len(events) > n {
			events = events[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit journal: %w", err)
	}
	return events, nil
}
