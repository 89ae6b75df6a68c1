package wal

import (
	"fmt"
	"os"
	"sync"

	"github.com/Andrew-Koulogeorge/Two-Phase-Commit/faults"
)

// Writer is an append-only WAL file guarded by a single process-wide
// mutex (spec §4.2: "Writes go through a single process-wide mutex").
// Fsync is a separate, explicit operation so callers can batch several
// logically-linked Append calls before paying the durability barrier.
type Writer struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// Open opens (creating if necessary) the WAL file at path for appending.
func Open(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("wal: open %s: %w: %v", path, faults.ErrLocalIO, err)
	}
	return &Writer{file: f, path: path}, nil
}

// Append writes a single pre-encoded record line (see EncodeParticipantList
// and friends) followed by a newline. It does not fsync; call Fsync
// explicitly once all logically-linked records for this step are written.
//
// A failure here is an ErrLocalIO on the WAL write path, which spec §7
// treats as fatal: the commit protocol's durability claim is void and the
// caller must refuse to continue.
func (w *Writer) Append(line string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.file.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("wal: append %s: %w: %v", w.path, faults.ErrLocalIO, err)
	}
	return nil
}

// Fsync flushes the WAL file to stable storage. It is the durability
// barrier invariants 3-6 require before any dependent message is sent.
func (w *Writer) Fsync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("wal: fsync %s: %w: %v", w.path, faults.ErrLocalIO, err)
	}
	return nil
}

// Close releases the underlying file handle.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

// Path returns the WAL file's location, used by recovery to stream it back.
func (w *Writer) Path() string { return w.path }
