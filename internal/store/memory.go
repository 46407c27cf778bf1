package store

import (
	"context"
	"fmt"
	"questwatch/internal/quest"
	"sort"
	"sync"
)

// Memory keeps records in a map. It is used for dry runs and tests.
type Memory struct {
	mu      sync.Mutex
	records map[string]quest.Record
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string]quest.Record)}
}

func (m *Memory) Exists(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.records[id]
	return ok, nil
}

func (m *Memory) Insert(_ context.Context, record quest.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[record.ID]; ok {
		return unavailable("insert", fmt.Errorf("quest %q is already stored", record.ID))
	}
	m.records[record.ID] = record
	return nil
}

func (m *Memory) InsertIfAbsent(_ context.Context, record quest.Record) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[record.ID]; ok {
		return false, nil
	}
	m.records[record.ID] = record
	return true, nil
}

func (m *Memory) Get(_ context.Context, id string) (quest.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[id]
	if !ok {
		return quest.Record{}, ErrNotFound
	}
	return r, nil
}

func (m *Memory) List(_ context.Context) ([]quest.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]quest.Record, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Close() error {
	return nil
}
