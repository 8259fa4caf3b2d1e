// Package spill lets the pipeline park large intermediate results outside the
// heap between processing stages. It is a memory-management strategy only:
// both strategies round-trip payloads losslessly and the pipeline semantics do
// not depend on which one is active.
package spill

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// DefaultThreshold is the payload size above which Auto spills to disk.
const DefaultThreshold = 50 << 20 // 50 MB

// Handle refers to a stored payload. A handle is single-use: after Load or
// Discard it must not be reused.
type Handle interface {
	// Load decodes the payload into dst, which must be a pointer to the
	// stored type, and releases the underlying resources.
	Load(dst any) error
	// Discard releases the underlying resources without decoding.
	Discard() error
}

// Spiller stores payloads between pipeline stages.
type Spiller interface {
	Store(v any) (Handle, error)
}

// Keep is a Spiller that keeps payloads in memory.
type Keep struct{}

type memHandle struct {
	buf *bytes.Buffer
}

func (Keep) Store(v any) (Handle, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}
	return &memHandle{buf: &buf}, nil
}

func (h *memHandle) Load(dst any) error {
	if h.buf == nil {
		return fmt.Errorf("spill: handle already consumed")
	}
	err := gob.NewDecoder(h.buf).Decode(dst)
	h.buf = nil
	if err != nil {
		return fmt.Errorf("decoding payload: %w", err)
	}
	return nil
}

func (h *memHandle) Discard() error {
	h.buf = nil
	return nil
}

// Disk is a Spiller that writes payloads to scratch files in Dir (the OS temp
// directory when empty). File names combine a timestamp with a random suffix
// so concurrent scans never collide.
type Disk struct {
	Dir string
}

type fileHandle struct {
	path string
}

func scratchName() string {
	return fmt.Sprintf("%d_%s.spill", time.Now().UnixNano(), uuid.NewString())
}

func (d Disk) Store(v any) (Handle, error) {
	dir := d.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, scratchName())

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating scratch file: %w", err)
	}
	if err = gob.NewEncoder(f).Encode(v); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("encoding payload: %w", err)
	}
	if err = f.Close(); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("closing scratch file: %w", err)
	}
	return &fileHandle{path: path}, nil
}

func (h *fileHandle) Load(dst any) error {
	if h.path == "" {
		return fmt.Errorf("spill: handle already consumed")
	}
	f, err := os.Open(h.path)
	if err != nil {
		return fmt.Errorf("opening scratch file: %w", err)
	}
	err = gob.NewDecoder(f).Decode(dst)
	_ = f.Close()
	_ = os.Remove(h.path)
	h.path = ""
	if err != nil {
		return fmt.Errorf("decoding payload: %w", err)
	}
	return nil
}

func (h *fileHandle) Discard() error {
	if h.path == "" {
		return nil
	}
	err := os.Remove(h.path)
	h.path = ""
	return err
}

// Auto spills payloads whose estimated size exceeds Threshold to disk and
// keeps smaller ones in memory.
type Auto struct {
	Disk      Disk
	Threshold int // bytes; DefaultThreshold when zero
}

// Sized payloads report their own in-memory footprint so Auto does not have
// to encode them twice.
type Sized interface {
	SpillSize() int
}

func (a Auto) Store(v any) (Handle, error) {
	threshold := a.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	if s, ok := v.(Sized); ok && s.SpillSize() > threshold {
		return a.Disk.Store(v)
	}
	return Keep{}.Store(v)
}
