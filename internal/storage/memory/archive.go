// Package memory holds run state and snapshots in-memory for
// development, tests, and single-process deployments.
package memory

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Archive stores snapshots in-memory and returns pseudo URIs.
type Archive struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewArchive creates an empty in-memory archive.
func NewArchive() *Archive {
	return &Archive{objects: make(map[string][]byte)}
}

// PutObject persists the content and returns a memory:// URI.
func (a *Archive) PutObject(_ context.Context, path string, _ string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read snapshot data: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.objects[path] = append([]byte(nil), data...)
	return fmt.Sprintf("memory://%s", path), nil
}

// Object returns a copy of a stored snapshot.
func (a *Archive) Object(path string) ([]byte, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	data, ok := a.objects[path]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

// Len reports how many snapshots are stored.
func (a *Archive) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.objects)
}
