package storage

import (
	"context"
	"sync"
)

// Memory is an in-memory Client for tests and local development. It also
// counts calls so garbage-collection behavior can be asserted precisely.
type Memory struct {
	mu    sync.Mutex
	files map[string]struct{}

	HeadCalls   []string
	DeleteCalls []string

	HeadErr   error
	DeleteErr error
}

func NewMemory(filenames ...string) *Memory {
	m := &Memory{files: make(map[string]struct{})}
	for _, name := range filenames {
		m.files[name] = struct{}{}
	}
	return m
}

func (m *Memory) Put(filename string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[filename] = struct{}{}
}

func (m *Memory) Exists(filename string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[filename]
	return ok
}

func (m *Memory) Head(_ context.Context, filename string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.HeadCalls = append(m.HeadCalls, filename)
	if m.HeadErr != nil {
		return false, m.HeadErr
	}
	_, ok := m.files[filename]
	return ok, nil
}

func (m *Memory) Delete(_ context.Context, filename string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteCalls = append(m.DeleteCalls, filename)
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	delete(m.files, filename)
	return nil
}
