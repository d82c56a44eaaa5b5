package annotatorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"annogate/internal/annotation"
	"annogate/pkg/platform/sentinel"
)

// MemoryBackend keeps documents as encoded JSON so callers never share maps
// with the store.
type MemoryBackend struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewMemoryBackend creates an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{docs: make(map[string][]byte)}
}

func (m *MemoryBackend) Get(_ context.Context, id string) (annotation.Annotation, error) {
	m.mu.RLock()
	raw, ok := m.docs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return decodeDoc(raw)
}

func (m *MemoryBackend) Save(_ context.Context, ann annotation.Annotation) error {
	id := ann.ID()
	if id == "" {
		return fmt.Errorf("save annotation: missing id")
	}
	raw, err := json.Marshal(ann)
	if err != nil {
		return fmt.Errorf("encode annotation: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[id] = raw
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(m.docs, id)
	return nil
}

func (m *MemoryBackend) Search(_ context.Context, q Query) ([]annotation.Annotation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]annotation.Annotation, 0, len(m.docs))
	for _, raw := range m.docs {
		doc, err := decodeDoc(raw)
		if err != nil {
			return nil, err
		}
		if q.Clause.Matches(doc) {
			out = append(out, doc)
		}
	}
	sortByUpdated(out)
	return out, nil
}

func (m *MemoryBackend) CreateAll(context.Context) error { return nil }

func (m *MemoryBackend) DropAll(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = make(map[string][]byte)
	return nil
}

func decodeDoc(raw []byte) (annotation.Annotation, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode annotation: %w", err)
	}
	return annotation.New(doc), nil
}
