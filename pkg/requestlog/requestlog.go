// Package requestlog buffers per-request log entries and stages them in
// rotated temp files for compressed upload alongside the metrics sync.
// Everything here is best-effort: when bounds are hit, entries and files
// are dropped rather than blocking the request path or growing memory.
package requestlog

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config tunes the request log pipeline. Zero values fall back to the
// defaults below.
type Config struct {
	Enabled           bool  `toml:"enabled"`
	MaxQueueSize      int   `toml:"maxQueueSize"`
	MaxFileSizeBytes  int64 `toml:"maxFileSizeBytes"`
	MaxPendingFiles   int   `toml:"maxPendingFiles"`
	MaxUploadsPerSync int   `toml:"maxUploadsPerSync"`
}

const (
	defaultMaxQueueSize      = 1000
	defaultMaxFileSizeBytes  = 1 << 20
	defaultMaxPendingFiles   = 50
	defaultMaxUploadsPerSync = 10
)

func (c Config) withDefaults() Config {
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = defaultMaxQueueSize
	}
	if c.MaxFileSizeBytes <= 0 {
		c.MaxFileSizeBytes = defaultMaxFileSizeBytes
	}
	if c.MaxPendingFiles <= 0 {
		c.MaxPendingFiles = defaultMaxPendingFiles
	}
	if c.MaxUploadsPerSync <= 0 {
		c.MaxUploadsPerSync = defaultMaxUploadsPerSync
	}
	return c
}

// Entry is one request/response observation in the request log.
type Entry struct {
	Timestamp    time.Time `json:"timestamp"`
	Consumer     string    `json:"consumer,omitempty"`
	Method       string    `json:"method"`
	Path         string    `json:"path"`
	StatusCode   int       `json:"status_code"`
	ResponseTime float64   `json:"response_time_ms"`
	RequestSize  int64     `json:"request_size,omitempty"`
	ResponseSize int64     `json:"response_size,omitempty"`
}

// Logger is the request log pipeline: a bounded in-memory queue drained
// into JSON-lines temp files, rotated by size, uploaded and deleted by
// the sync loop.
type Logger struct {
	cfg Config
	log *zap.SugaredLogger

	mu           sync.Mutex
	queue        []Entry
	dropped      int64
	dir          string
	current      *File
	pending      []*File
	suspendUntil time.Time
}

func NewLogger(cfg Config, logger *zap.SugaredLogger) *Logger {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Logger{cfg: cfg.withDefaults(), log: logger}
}

// Enabled reports whether the pipeline should receive entries.
func (l *Logger) Enabled() bool {
	return l != nil && l.cfg.Enabled
}

// MaxUploadsPerSync is the per-sync cap on file uploads.
func (l *Logger) MaxUploadsPerSync() int {
	return l.cfg.MaxUploadsPerSync
}

// Log enqueues one entry without blocking. Entries are dropped while the
// queue is full or uploads are suspended.
func (l *Logger) Log(entry Entry) {
	if !l.Enabled() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.suspendUntil.IsZero() || len(l.queue) >= l.cfg.MaxQueueSize {
		l.dropped++
		return
	}
	l.queue = append(l.queue, entry)
}

// WriteToFile drains the queue into the current temp file, rotating when
// the file exceeds the size threshold. Called periodically by the sync
// loop, never from the request path.
func (l *Logger) WriteToFile() error {
	if !l.Enabled() {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.queue) == 0 {
		return nil
	}
	entries := l.queue
	l.queue = nil

	if l.current == nil {
		file, err := l.newFileLocked()
		if err != nil {
			return err
		}
		l.current = file
	}
	for _, entry := range entries {
		line, err := json.Marshal(entry)
		if err != nil {
			continue
		}
		if err := l.current.writeLine(line); err != nil {
			return err
		}
	}
	if l.current.size >= l.cfg.MaxFileSizeBytes {
		l.rotateLocked()
	}
	return nil
}

// RotateFile closes the current file and stages it for upload.
func (l *Logger) RotateFile() {
	if !l.Enabled() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rotateLocked()
}

// NextFile pops the oldest staged file, or nil when none are pending.
func (l *Logger) NextFile() *File {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.pending) == 0 {
		return nil
	}
	file := l.pending[0]
	l.pending = l.pending[1:]
	return file
}

// RetryLater puts a file back at the head of the staging queue after a
// failed upload.
func (l *Logger) RetryLater(file *File) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = append([]*File{file}, l.pending...)
	l.enforceBoundsLocked()
}

// Suspend pauses log collection and discards buffered data, honoring a
// hub backpressure signal.
func (l *Logger) Suspend(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.suspendUntil = time.Now().Add(d)
	l.clearLocked()
}

// Maintain performs housekeeping between syncs: lifts an expired
// suspension and enforces the pending file bound.
func (l *Logger) Maintain() {
	if !l.Enabled() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.suspendUntil.IsZero() && time.Now().After(l.suspendUntil) {
		l.suspendUntil = time.Time{}
	}
	if l.dropped > 0 {
		l.log.Debugw("Dropped request log entries", "count", l.dropped)
		l.dropped = 0
	}
	l.enforceBoundsLocked()
}

// Close discards all buffered and staged data and removes the temp dir.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clearLocked()
	if l.dir != "" {
		_ = os.RemoveAll(l.dir)
		l.dir = ""
	}
}

func (l *Logger) rotateLocked() {
	if l.current == nil || l.current.size == 0 {
		return
	}
	l.current.closeWriter()
	l.pending = append(l.pending, l.current)
	l.current = nil
	l.enforceBoundsLocked()
}

func (l *Logger) enforceBoundsLocked() {
	for len(l.pending) > l.cfg.MaxPendingFiles {
		oldest := l.pending[0]
		l.pending = l.pending[1:]
		oldest.Delete()
		l.log.Debugw("Dropped oldest request log file", "uuid", oldest.UUID)
	}
}

func (l *Logger) clearLocked() {
	l.queue = nil
	if l.current != nil {
		l.current.closeWriter()
		l.current.Delete()
		l.current = nil
	}
	for _, file := range l.pending {
		file.Delete()
	}
	l.pending = nil
}

func (l *Logger) newFileLocked() (*File, error) {
	if l.dir == "" {
		dir, err := os.MkdirTemp("", "apimetry-requestlog-")
		if err != nil {
			return nil, err
		}
		l.dir = dir
	}
	return newFile(l.dir)
}
