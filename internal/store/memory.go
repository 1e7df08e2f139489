package store

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemObject is a single stored object in a MemStore.
type MemObject struct {
	Body        []byte
	ContentType string
	Metadata    map[string]string
}

// MemStore is an in-memory ObjectStore used by tests. Safe for concurrent use.
type MemStore struct {
	mu      sync.Mutex
	objects map[string]MemObject
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{objects: make(map[string]MemObject)}
}

func (m *MemStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	body := make([]byte, len(obj.Body))
	copy(body, obj.Body)
	return body, nil
}

func (m *MemStore) Put(ctx context.Context, key string, body []byte, contentType string, metadata map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := MemObject{
		Body:        append([]byte(nil), body...),
		ContentType: contentType,
	}
	if metadata != nil {
		stored.Metadata = make(map[string]string, len(metadata))
		for k, v := range metadata {
			stored.Metadata[k] = v
		}
	}
	m.objects[key] = stored
	return nil
}

func (m *MemStore) List(ctx context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemStore) Head(ctx context.Context, key string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	meta := make(map[string]string, len(obj.Metadata))
	for k, v := range obj.Metadata {
		meta[k] = v
	}
	return meta, nil
}

// Object returns the stored object and whether it exists. Test helper.
func (m *MemStore) Object(key string) (MemObject, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	return obj, ok
}

// Delete removes a key. Test helper.
func (m *MemStore) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
}

// Len returns the number of stored objects. Test helper.
func (m *MemStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
