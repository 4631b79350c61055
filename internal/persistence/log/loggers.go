package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"chronogrid.ai/internal/protocol"
	"chronogrid.ai/internal/sim/engine"
)

// JSONLZstdWriter appends JSON lines to a single zstd-compressed file,
// flushing after every line so a crash loses at most the current entry.
type JSONLZstdWriter struct {
	path string

	mu  sync.Mutex
	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer
}

func NewJSONLZstdWriter(path string) *JSONLZstdWriter {
	return &JSONLZstdWriter{path: path}
}

func (w *JSONLZstdWriter) Path() string { return w.path }

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.w == nil {
		if err := w.openLocked(); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.enc.Flush()
}

func (w *JSONLZstdWriter) openLocked() error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 64*1024)
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	return err1
}

// JournalLogger writes one JSONL entry per journaled command (compressed).
// It implements engine.Journal.
type JournalLogger struct{ w *JSONLZstdWriter }

// NewJournalLogger creates journals/journal-<UTC timestamp>.jsonl.zst under dataDir.
func NewJournalLogger(dataDir string, now time.Time) *JournalLogger {
	name := fmt.Sprintf("journal-%s.jsonl.zst", now.UTC().Format("20060102-150405"))
	return &JournalLogger{w: NewJSONLZstdWriter(filepath.Join(dataDir, "journals", name))}
}

// NewJournalLoggerAt writes to an explicit path.
func NewJournalLoggerAt(path string) *JournalLogger {
	return &JournalLogger{w: NewJSONLZstdWriter(path)}
}

func (l *JournalLogger) WriteEntry(e engine.JournalEntry) error { return l.w.Write(e) }
func (l *JournalLogger) Close() error                           { return l.w.Close() }
func (l *JournalLogger) Path() string                           { return l.w.Path() }

// ScanJSONL calls fn for every non-empty line of path. Files ending in .zst
// are decompressed.
func ScanJSONL(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return err
		}
		defer dec.Close()
		r = dec
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	n := 0
	for sc.Scan() {
		n++
		line := sc.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 || line[0] == '#' {
			continue
		}
		if err := fn(line); err != nil {
			return fmt.Errorf("%s:%d: %w", filepath.Base(path), n, err)
		}
	}
	return sc.Err()
}

func ReadJournal(path string, fn func(engine.JournalEntry) error) error {
	return ScanJSONL(path, func(line []byte) error {
		var e engine.JournalEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}
		return fn(e)
	})
}

// ReadCommands loads a command script: one schema-validated command per line.
func ReadCommands(path string) ([]protocol.Command, error) {
	var out []protocol.Command
	err := ScanJSONL(path, func(line []byte) error {
		c, err := protocol.DecodeCommand(line)
		if err != nil {
			return err
		}
		out = append(out, c)
		return nil
	})
	return out, err
}
