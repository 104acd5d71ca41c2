// Package log writes the simulation event stream to disk as
// zstd-compressed JSONL, one file per run.
package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"reliefnet/internal/sim/agents"
)

// EventLogger appends one JSON line per simulation event to
// <baseDir>/events/<runID>.jsonl.zst. The file is opened lazily on the
// first event. It implements agents.EventSink; failed writes are counted,
// not propagated, so a full disk never stalls the simulation.
type EventLogger struct {
	baseDir string
	runID   string

	mu     sync.Mutex
	f      *os.File
	enc    *zstd.Encoder
	w      *bufio.Writer
	failed int
}

func NewEventLogger(baseDir, runID string) *EventLogger {
	return &EventLogger{baseDir: baseDir, runID: runID}
}

// entry is the on-disk shape: the event map plus a wall-clock timestamp.
type entry struct {
	TS    time.Time    `json:"ts"`
	Event agents.Event `json:"event"`
}

func (l *EventLogger) Publish(ev agents.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.writeLocked(entry{TS: time.Now().UTC(), Event: ev}); err != nil {
		l.failed++
	}
}

func (l *EventLogger) writeLocked(e entry) error {
	if l.w == nil {
		if err := l.openLocked(); err != nil {
			return err
		}
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := l.w.Write(b); err != nil {
		return err
	}
	return l.w.WriteByte('\n')
}

func (l *EventLogger) openLocked() error {
	path := l.Path()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	l.f = f
	l.enc = enc
	l.w = bufio.NewWriterSize(enc, 128*1024)
	return nil
}

// Failed reports how many events could not be written.
func (l *EventLogger) Failed() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.failed
}

func (l *EventLogger) Path() string {
	return filepath.Join(l.baseDir, "events", fmt.Sprintf("%s.jsonl.zst", l.runID))
}

func (l *EventLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errFlush, errEnc error
	if l.w != nil {
		errFlush = l.w.Flush()
		l.w = nil
	}
	if l.enc != nil {
		errEnc = l.enc.Close()
		l.enc = nil
	}
	if l.f != nil {
		_ = l.f.Close()
		l.f = nil
	}
	if errFlush != nil {
		return errFlush
	}
	return errEnc
}
