// Package directory keeps track of the nodes that are online and the
// methods they expose. Calls never need it, subjects already route by node
// id; it answers "who is out there" for tools and operators.
package directory

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Entry describes one connected node.
type Entry struct {
	NodeID    string    `json:"nodeId"`
	Methods   []string  `json:"methods"`
	Codec     string    `json:"codec"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Directory stores entries keyed by node id.
type Directory interface {
	// Announce creates or replaces the entry of e.NodeID.
	Announce(ctx context.Context, e Entry) error
	// Withdraw removes the entry of nodeID, missing entries are not an error.
	Withdraw(ctx context.Context, nodeID string) error
	// Lookup returns the entry of nodeID.
	Lookup(ctx context.Context, nodeID string) (Entry, bool, error)
	// List returns every entry sorted by node id.
	List(ctx context.Context) ([]Entry, error)
}

// Memory is a Directory living in the process, for tests and simulation.
type Memory struct {
	lock    sync.RWMutex
	entries map[string]Entry
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Entry)}
}

func (m *Memory) Announce(ctx context.Context, e Entry) error {
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = time.Now()
	}
	e.Methods = append([]string(nil), e.Methods...)
	m.lock.Lock()
	m.entries[e.NodeID] = e
	m.lock.Unlock()
	return nil
}

func (m *Memory) Withdraw(ctx context.Context, nodeID string) error {
	m.lock.Lock()
	delete(m.entries, nodeID)
	m.lock.Unlock()
	return nil
}

func (m *Memory) Lookup(ctx context.Context, nodeID string) (Entry, bool, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	e, ok := m.entries[nodeID]
	return e, ok, nil
}

func (m *Memory) List(ctx context.Context) ([]Entry, error) {
	m.lock.RLock()
	rst := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		rst = append(rst, e)
	}
	m.lock.RUnlock()
	sortEntries(rst)
	return rst, nil
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].NodeID < entries[j].NodeID })
}
