// Package memory is an in-memory document store for tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cartonhq/carton/pkg/common"
)

type DocumentStore struct {
	mu   sync.RWMutex
	docs map[string]map[string][]byte
}

func New() *DocumentStore {
	return &DocumentStore{docs: make(map[string]map[string][]byte)}
}

func (d *DocumentStore) ReadDocument(_ context.Context, namespace, entityID string) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	body, ok := d.docs[namespace][entityID]
	if !ok {
		return nil, fmt.Errorf("document %s/%s: %w", namespace, entityID, common.ErrNotFound)
	}
	out := make([]byte, len(body))
	copy(out, body)
	return out, nil
}

func (d *DocumentStore) WriteDocument(_ context.Context, namespace, entityID string, body []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.docs[namespace] == nil {
		d.docs[namespace] = make(map[string][]byte)
	}
	stored := make([]byte, len(body))
	copy(stored, body)
	d.docs[namespace][entityID] = stored
	return nil
}

func (d *DocumentStore) DeleteDocument(_ context.Context, namespace, entityID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.docs[namespace], entityID)
	return nil
}

func (d *DocumentStore) DeleteNamespace(_ context.Context, namespace string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.docs, namespace)
	return nil
}

func (d *DocumentStore) ListDocuments(_ context.Context, namespace string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ids := make([]string, 0, len(d.docs[namespace]))
	for id := range d.docs[namespace] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
