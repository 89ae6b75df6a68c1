package wal

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Andrew-Koulogeorge/Two-Phase-Commit/faults"
)

// BlobPath returns the deterministic side-file path for a TID's committed
// image blob, rooted at dir (spec §4.2: "<tid>_img.bin").
func BlobPath(dir string, tid uint32) string {
	return filepath.Join(dir, fmt.Sprintf("%d_img.bin", tid))
}

// LogCollage durably writes img to its side-file. It must complete before
// the caller appends the decision record that refers to it (spec §4.2).
func LogCollage(dir string, tid uint32, img []byte) error {
	path := BlobPath(dir, tid)
	if err := os.WriteFile(path, img, 0o644); err != nil {
		return fmt.Errorf("wal: log collage %s: %w: %v", path, faults.ErrLocalIO, err)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("wal: reopen collage %s: %w: %v", path, faults.ErrLocalIO, err)
	}
	defer f.Close()
	if err := f.Sync(); err != nil {
		return fmt.Errorf("wal: fsync collage %s: %w: %v", path, faults.ErrLocalIO, err)
	}
	return nil
}

// PublishArtifact copies the committed image blob to its destination
// filename. Called only after the decision record is durable and only on
// COMMIT (spec invariant 8). Idempotent: re-running it after the
// destination already exists simply overwrites it with the same bytes.
func PublishArtifact(dir string, tid uint32, destination string) error {
	src := BlobPath(dir, tid)
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("wal: publish read %s: %w: %v", src, faults.ErrLocalIO, err)
	}
	if err := os.WriteFile(destination, data, 0o644); err != nil {
		return fmt.Errorf("wal: publish write %s: %w: %v", destination, faults.ErrLocalIO, err)
	}
	return nil
}

// BlobExists reports whether a TID's collage side-file is still on disk,
// used by coordinator recovery to decide whether a commit-recovery can
// restore the destination artifact.
func BlobExists(dir string, tid uint32) bool {
	_, err := os.Stat(BlobPath(dir, tid))
	return err == nil
}

// ReadBlob returns the raw bytes of a TID's collage side-file.
func ReadBlob(dir string, tid uint32) ([]byte, error) {
	data, err := os.ReadFile(BlobPath(dir, tid))
	if err != nil {
		return nil, fmt.Errorf("wal: read blob: %w: %v", faults.ErrLocalIO, err)
	}
	return data, nil
}
