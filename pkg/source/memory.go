package source

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pthm/flowscope/pkg/flow"
)

// Memory is an in-process Source.
//
// An optional Fallback is consulted for names that were not registered, so a
// posted document can be analyzed while its sub-workflows still resolve from
// the configured source.
type Memory struct {
	Fallback Source

	mu    sync.RWMutex
	flows map[string]RawMetadata
	calls map[string]int
}

// NewMemory returns an empty Memory source.
func NewMemory() *Memory {
	return &Memory{
		flows: make(map[string]RawMetadata),
		calls: make(map[string]int),
	}
}

// Put registers a definition under name with version 1.
func (m *Memory) Put(name string, format Format, content []byte) {
	m.PutRaw(RawMetadata{
		Name:    name,
		Format:  format,
		Content: content,
		Version: flow.Version{Version: 1},
		Origin:  "memory",
	})
}

// PutRaw registers a fully populated definition.
func (m *Memory) PutRaw(raw RawMetadata) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flows[raw.Name] = raw
}

// Fetch implements Source.
func (m *Memory) Fetch(ctx context.Context, name string) (RawMetadata, error) {
	if err := ctx.Err(); err != nil {
		return RawMetadata{}, err
	}

	m.mu.Lock()
	m.calls[name]++
	raw, ok := m.flows[name]
	m.mu.Unlock()

	if ok {
		raw.Content = append([]byte(nil), raw.Content...)
		return raw, nil
	}
	if m.Fallback != nil {
		return m.Fallback.Fetch(ctx, name)
	}
	return RawMetadata{}, fmt.Errorf("%w: %s", flow.ErrNotFound, name)
}

// Calls returns how many times Fetch was called for name.
func (m *Memory) Calls(name string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[name]
}

// List implements Lister.
func (m *Memory) List(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.flows))
	for n := range m.flows {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, ctx.Err()
}
