package security

import (
	"os"
	"sync/atomic"
)

// StopSwitch is the emergency-stop signal. The scheduler polls it once
// per iteration; activation halts further launches without touching
// steps already in flight.
type StopSwitch interface {
	IsActive() bool
}

// MemorySwitch is an in-process stop switch.
type MemorySwitch struct {
	active atomic.Bool
}

// NewMemorySwitch creates an inactive switch.
func NewMemorySwitch() *MemorySwitch {
	return &MemorySwitch{}
}

// Activate trips the switch.
func (s *MemorySwitch) Activate() {
	s.active.Store(true)
}

// Reset clears the switch.
func (s *MemorySwitch) Reset() {
	s.active.Store(false)
}

// IsActive reports whether the switch is tripped.
func (s *MemorySwitch) IsActive() bool {
	return s.active.Load()
}

// FileSwitch treats the existence of a file as the stop signal, so an
// operator can halt a running CLI from another terminal.
type FileSwitch struct {
	path string
}

// NewFileSwitch creates a switch backed by the given flag file.
func NewFileSwitch(path string) *FileSwitch {
	return &FileSwitch{path: path}
}

// IsActive reports whether the flag file exists.
func (s *FileSwitch) IsActive() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Activate creates the flag file.
func (s *FileSwitch) Activate() error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	return f.Close()
}

// Reset removes the flag file.
func (s *FileSwitch) Reset() error {
	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
