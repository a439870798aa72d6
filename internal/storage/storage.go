// Package storage is the card-backed file layer: it checks that the storage
// root is usable, reads Config.txt and creates per-session log files.
package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/kstaniek/go-can-logger/internal/config"
)

var (
	// ErrMount means the storage root is missing, not a directory or not writable.
	ErrMount = errors.New("storage: mount failed")
	// ErrOpen means the session file could not be created.
	ErrOpen = errors.New("storage: open failed")
)

// SessionLayout is the UTC time layout of session file names.
const SessionLayout = "2006-01-02T15-04-05Z"

// File is the part of a session file the writer needs.
type File interface {
	io.Writer
	Sync() error
}

// Hook points for tests.
var (
	openFile   = func(name string) (File, error) { return os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644) }
	createTemp = os.CreateTemp
)

// Card is a mounted storage root.
type Card struct {
	root string
}

// Mount verifies root is a writable directory.
func Mount(root string) (*Card, error) {
	st, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMount, err)
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrMount, root)
	}
	probe, err := createTemp(root, ".can-logger-*")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMount, err)
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return &Card{root: root}, nil
}

// Root returns the mounted directory.
func (c *Card) Root() string { return c.root }

// ReadConfig returns the raw Config.txt contents. A missing file yields
// config.ErrNotFound.
func (c *Card) ReadConfig() ([]byte, error) {
	b, err := os.ReadFile(filepath.Join(c.root, config.FileName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", config.ErrNotFound, config.FileName)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", config.FileName, err)
	}
	return b, nil
}

// SessionName returns the file name for a session starting at t.
func SessionName(t time.Time) string {
	return t.UTC().Format(SessionLayout) + ".csv"
}

// OpenSession creates (or appends to) the session file for start and returns
// it with its name relative to the root.
func (c *Card) OpenSession(start time.Time) (File, string, error) {
	name := SessionName(start)
	f, err := openFile(filepath.Join(c.root, name))
	if err != nil {
		return nil, name, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	return f, name, nil
}
