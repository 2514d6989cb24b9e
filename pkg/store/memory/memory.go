// Package memory provides an in-memory canonical store used by tests and
// local development. It mirrors the pgx implementation's semantics,
// including manual-edge stickiness and missing-record pruning.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cartonhq/carton/pkg/common"
)

type tripleKey struct {
	source string
	target string
	kind   common.Kind
}

type pairKey struct {
	a string
	b string
}

type partition struct {
	entities      map[string]common.Entity
	relationships map[tripleKey]common.Relationship
	missing       map[string]common.MissingEntity
	pairs         map[pairKey]common.DuplicatePair
	blacklist     map[string]common.BlacklistEntry
}

func newPartition() *partition {
	return &partition{
		entities:      make(map[string]common.Entity),
		relationships: make(map[tripleKey]common.Relationship),
		missing:       make(map[string]common.MissingEntity),
		pairs:         make(map[pairKey]common.DuplicatePair),
		blacklist:     make(map[string]common.BlacklistEntry),
	}
}

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu         sync.RWMutex
	namespaces map[string]common.Namespace
	partitions map[string]*partition
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		namespaces: make(map[string]common.Namespace),
		partitions: make(map[string]*partition),
	}
}

var emptyPartition = newPartition()

// partition returns the namespace partition, creating it. Callers hold the
// write lock.
func (s *Store) partition(namespace string) *partition {
	p, ok := s.partitions[namespace]
	if !ok {
		p = newPartition()
		s.partitions[namespace] = p
	}
	return p
}

// readPartition returns the namespace partition without mutating the map.
// Callers hold at least the read lock.
func (s *Store) readPartition(namespace string) *partition {
	if p, ok := s.partitions[namespace]; ok {
		return p
	}
	return emptyPartition
}

// --- namespaces ---

func (s *Store) EnsureNamespace(_ context.Context, name string) (common.Namespace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns, ok := s.namespaces[name]
	if !ok {
		ns = common.Namespace{Name: name}
		s.namespaces[name] = ns
		s.partitions[name] = newPartition()
	}
	return ns, nil
}

func (s *Store) GetNamespace(_ context.Context, name string) (*common.Namespace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ns, ok := s.namespaces[name]
	if !ok {
		return nil, fmt.Errorf("namespace %s: %w", name, common.ErrNotFound)
	}
	return &ns, nil
}

func (s *Store) ListNamespaces(_ context.Context) ([]common.Namespace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]common.Namespace, 0, len(s.namespaces))
	for _, ns := range s.namespaces {
		out = append(out, ns)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// --- entities ---

func (s *Store) GetEntity(_ context.Context, namespace, id string) (*common.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.readPartition(namespace).entities[id]
	if !ok {
		return nil, fmt.Errorf("entity %s/%s: %w", namespace, id, common.ErrNotFound)
	}
	return &e, nil
}

func (s *Store) ListEntities(_ context.Context, namespace string) ([]common.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p := s.readPartition(namespace)
	out := make([]common.Entity, 0, len(p.entities))
	for _, e := range p.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpsertEntity(_ context.Context, entity common.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.partition(entity.Namespace)
	if existing, ok := p.entities[entity.ID]; ok {
		entity.CreatedAt = existing.CreatedAt
	}
	p.entities[entity.ID] = entity
	return nil
}

func (s *Store) DeleteEntities(_ context.Context, namespace string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.partition(namespace)
	for _, id := range ids {
		delete(p.entities, id)
	}
	return nil
}

// --- relationships ---

func (s *Store) ListRelationships(_ context.Context, namespace string) ([]common.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedRelationships(s.readPartition(namespace).relationships, nil), nil
}

func (s *Store) ListRelationshipsTouching(_ context.Context, namespace string, ids []string) ([]common.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idSet := toSet(ids)
	return sortedRelationships(s.readPartition(namespace).relationships, func(r common.Relationship) bool {
		return idSet[r.SourceID] || idSet[r.TargetID]
	}), nil
}

func (s *Store) UpsertRelationship(_ context.Context, rel common.Relationship) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.partition(rel.Namespace)
	key := tripleKey{rel.SourceID, rel.TargetID, rel.Kind}
	existing, ok := p.relationships[key]
	if ok {
		// Manual edges are sticky: auto upserts never overwrite them.
		if !existing.AutoDiscovered && rel.AutoDiscovered {
			return false, nil
		}
		rel.CreatedAt = existing.CreatedAt
		changed := existing.AutoDiscovered != rel.AutoDiscovered || existing.Strength != rel.Strength
		p.relationships[key] = rel
		return changed, nil
	}
	p.relationships[key] = rel
	return true, nil
}

func (s *Store) DeleteAutoRelationship(_ context.Context, namespace, sourceID, targetID string, kind common.Kind) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.partition(namespace)
	key := tripleKey{sourceID, targetID, kind}
	existing, ok := p.relationships[key]
	if !ok || !existing.AutoDiscovered {
		return false, nil
	}
	delete(p.relationships, key)
	return true, nil
}

func (s *Store) DeleteRelationship(_ context.Context, namespace, sourceID, targetID string, kind common.Kind) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.partition(namespace)
	key := tripleKey{sourceID, targetID, kind}
	if _, ok := p.relationships[key]; !ok {
		return false, nil
	}
	delete(p.relationships, key)
	return true, nil
}

func (s *Store) DeleteRelationshipsTouching(_ context.Context, namespace string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.partition(namespace)
	idSet := toSet(ids)
	for key := range p.relationships {
		if idSet[key.source] || idSet[key.target] {
			delete(p.relationships, key)
		}
	}
	return nil
}

// --- missing entities ---

func (s *Store) ListMissing(_ context.Context, namespace string) ([]common.MissingEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p := s.readPartition(namespace)
	out := make([]common.MissingEntity, 0, len(p.missing))
	for _, m := range p.missing {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MentionCount != out[j].MentionCount {
			return out[i].MentionCount > out[j].MentionCount
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *Store) ReplaceMentions(_ context.Context, namespace, sourceID string, names []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.partition(namespace)
	want := toSet(names)

	// Drop attributions this source no longer makes.
	for name, m := range p.missing {
		if want[name] || !containsString(m.SourceIDs, sourceID) {
			continue
		}
		kept := m.SourceIDs[:0:0]
		for _, src := range m.SourceIDs {
			if src != sourceID {
				kept = append(kept, src)
			}
		}
		if len(kept) == 0 {
			delete(p.missing, name)
			continue
		}
		m.SourceIDs = kept
		m.MentionCount = len(kept)
		p.missing[name] = m
	}

	var recorded int
	for _, name := range names {
		m, ok := p.missing[name]
		if !ok {
			m = common.MissingEntity{
				Namespace:   namespace,
				Name:        name,
				FirstSeenAt: time.Now().UTC(),
			}
		}
		if !containsString(m.SourceIDs, sourceID) {
			m.SourceIDs = append(m.SourceIDs, sourceID)
			recorded++
		}
		m.MentionCount = len(m.SourceIDs)
		p.missing[name] = m
	}
	return recorded, nil
}

func (s *Store) DeleteMissing(_ context.Context, namespace, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.partition(namespace).missing, name)
	return nil
}

func (s *Store) RemoveMissingSources(_ context.Context, namespace string, sourceIDs []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.partition(namespace)
	removed := toSet(sourceIDs)

	var pruned []string
	for name, m := range p.missing {
		kept := m.SourceIDs[:0:0]
		for _, src := range m.SourceIDs {
			if !removed[src] {
				kept = append(kept, src)
			}
		}
		if len(kept) == 0 {
			delete(p.missing, name)
			pruned = append(pruned, name)
			continue
		}
		m.SourceIDs = kept
		m.MentionCount = len(kept)
		p.missing[name] = m
	}
	sort.Strings(pruned)
	return pruned, nil
}

// --- duplicate pairs ---

func (s *Store) ListPairs(_ context.Context, namespace string, status common.PairStatus) ([]common.DuplicatePair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p := s.readPartition(namespace)
	var out []common.DuplicatePair
	for _, pair := range p.pairs {
		if pair.Status == status {
			out = append(out, pair)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		if out[i].EntityA != out[j].EntityA {
			return out[i].EntityA < out[j].EntityA
		}
		return out[i].EntityB < out[j].EntityB
	})
	return out, nil
}

func (s *Store) ListPairsTouching(_ context.Context, namespace string, ids []string) ([]common.DuplicatePair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idSet := toSet(ids)
	var out []common.DuplicatePair
	for _, pair := range s.readPartition(namespace).pairs {
		if idSet[pair.EntityA] || idSet[pair.EntityB] {
			out = append(out, pair)
		}
	}
	return out, nil
}

func (s *Store) UpsertPendingPair(_ context.Context, pair common.DuplicatePair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, b := common.OrderPair(pair.EntityA, pair.EntityB)
	pair.EntityA, pair.EntityB = a, b
	pair.Status = common.PairPending
	p := s.partition(pair.Namespace)
	key := pairKey{a, b}
	if existing, ok := p.pairs[key]; ok {
		if existing.Status != common.PairPending {
			return nil
		}
		existing.Similarity = pair.Similarity
		p.pairs[key] = existing
		return nil
	}
	p.pairs[key] = pair
	return nil
}

func (s *Store) SetPairStatus(_ context.Context, namespace, entityA, entityB string, status common.PairStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, b := common.OrderPair(entityA, entityB)
	p := s.partition(namespace)
	pair, ok := p.pairs[pairKey{a, b}]
	if !ok {
		return fmt.Errorf("pair (%s, %s): %w", a, b, common.ErrNotFound)
	}
	pair.Status = status
	p.pairs[pairKey{a, b}] = pair
	return nil
}

func (s *Store) DeletePairsTouching(_ context.Context, namespace string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idSet := toSet(ids)
	p := s.partition(namespace)
	for key, pair := range p.pairs {
		if idSet[pair.EntityA] || idSet[pair.EntityB] {
			delete(p.pairs, key)
		}
	}
	return nil
}

// --- blacklist ---

func (s *Store) ListBlacklist(_ context.Context, namespace string) ([]common.BlacklistEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p := s.readPartition(namespace)
	out := make([]common.BlacklistEntry, 0, len(p.blacklist))
	for _, e := range p.blacklist {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) AddBlacklist(_ context.Context, entry common.BlacklistEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partition(entry.Namespace).blacklist[entry.Name] = entry
	return nil
}

func (s *Store) RemoveBlacklist(_ context.Context, namespace, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.partition(namespace).blacklist, name)
	return nil
}

// --- helpers ---

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func sortedRelationships(rels map[tripleKey]common.Relationship, keep func(common.Relationship) bool) []common.Relationship {
	var out []common.Relationship
	for _, r := range rels {
		if keep == nil || keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SourceID != out[j].SourceID {
			return out[i].SourceID < out[j].SourceID
		}
		if out[i].TargetID != out[j].TargetID {
			return out[i].TargetID < out[j].TargetID
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}
