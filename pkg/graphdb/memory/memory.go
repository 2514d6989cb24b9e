// Package memory is an in-memory projection backend for tests and local
// runs. It mirrors the Neo4j implementation's semantics, including the
// atomic full replace and undirected traversal for neighborhood queries.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cartonhq/carton/pkg/common"
	"github.com/cartonhq/carton/pkg/graphdb"
)

type edgeKey struct {
	source string
	target string
	kind   common.Kind
}

type projection struct {
	nodes      map[string]graphdb.Node
	edges      map[edgeKey]graphdb.Edge
	snapshotID string
}

func newProjection() *projection {
	return &projection{
		nodes: make(map[string]graphdb.Node),
		edges: make(map[edgeKey]graphdb.Edge),
	}
}

// Backend implements graphdb.GraphBackend in process memory.
type Backend struct {
	mu         sync.RWMutex
	namespaces map[string]*projection
}

func New() *Backend {
	return &Backend{namespaces: make(map[string]*projection)}
}

func (b *Backend) projection(namespace string) *projection {
	p, ok := b.namespaces[namespace]
	if !ok {
		p = newProjection()
		b.namespaces[namespace] = p
	}
	return p
}

func (b *Backend) readProjection(namespace string) (*projection, bool) {
	p, ok := b.namespaces[namespace]
	return p, ok
}

func (b *Backend) UpsertNodes(_ context.Context, namespace string, nodes []graphdb.Node) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.projection(namespace)
	for _, n := range nodes {
		p.nodes[n.ID] = n
	}
	return nil
}

func (b *Backend) DeleteNodes(_ context.Context, namespace string, ids []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.projection(namespace)
	idSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
		delete(p.nodes, id)
	}
	for key := range p.edges {
		if idSet[key.source] || idSet[key.target] {
			delete(p.edges, key)
		}
	}
	return nil
}

func (b *Backend) UpsertEdges(_ context.Context, namespace string, edges []graphdb.Edge) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.projection(namespace)
	for _, e := range edges {
		if !e.Kind.Valid() {
			return fmt.Errorf("relationship kind %q is not declared", e.Kind)
		}
		p.edges[edgeKey{e.SourceID, e.TargetID, e.Kind}] = e
	}
	return nil
}

func (b *Backend) DeleteEdges(_ context.Context, namespace string, edges []graphdb.Edge) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.projection(namespace)
	for _, e := range edges {
		delete(p.edges, edgeKey{e.SourceID, e.TargetID, e.Kind})
	}
	return nil
}

func (b *Backend) ReplaceAll(_ context.Context, namespace string, nodes []graphdb.Node, edges []graphdb.Edge, snapshotID string) error {
	next := newProjection()
	for _, n := range nodes {
		next.nodes[n.ID] = n
	}
	for _, e := range edges {
		if !e.Kind.Valid() {
			return fmt.Errorf("relationship kind %q is not declared", e.Kind)
		}
		next.edges[edgeKey{e.SourceID, e.TargetID, e.Kind}] = e
	}
	next.snapshotID = snapshotID

	b.mu.Lock()
	defer b.mu.Unlock()
	b.namespaces[namespace] = next
	return nil
}

func (b *Backend) Neighborhood(_ context.Context, namespace, rootID string, depth int) (*graphdb.Neighborhood, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.readProjection(namespace)
	if !ok {
		return nil, fmt.Errorf("entity %s/%s: %w", namespace, rootID, common.ErrNotFound)
	}
	if _, ok := p.nodes[rootID]; !ok {
		return nil, fmt.Errorf("entity %s/%s: %w", namespace, rootID, common.ErrNotFound)
	}

	// BFS over edges in both directions, matching the undirected Cypher
	// traversal.
	adjacent := make(map[string][]string)
	for key := range p.edges {
		adjacent[key.source] = append(adjacent[key.source], key.target)
		adjacent[key.target] = append(adjacent[key.target], key.source)
	}

	visited := map[string]bool{rootID: true}
	frontier := []string{rootID}
	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		var next []string
		for _, id := range frontier {
			for _, neighbor := range adjacent[id] {
				if !visited[neighbor] {
					visited[neighbor] = true
					next = append(next, neighbor)
				}
			}
		}
		frontier = next
	}

	out := &graphdb.Neighborhood{RootID: rootID, Depth: depth}
	for id := range visited {
		if n, ok := p.nodes[id]; ok {
			out.Nodes = append(out.Nodes, n)
		}
	}
	sort.Slice(out.Nodes, func(i, j int) bool { return out.Nodes[i].ID < out.Nodes[j].ID })

	for key, e := range p.edges {
		if visited[key.source] && visited[key.target] {
			out.Edges = append(out.Edges, e)
		}
	}
	sort.Slice(out.Edges, func(i, j int) bool {
		if out.Edges[i].SourceID != out.Edges[j].SourceID {
			return out.Edges[i].SourceID < out.Edges[j].SourceID
		}
		if out.Edges[i].TargetID != out.Edges[j].TargetID {
			return out.Edges[i].TargetID < out.Edges[j].TargetID
		}
		return out.Edges[i].Kind < out.Edges[j].Kind
	})
	return out, nil
}

func (b *Backend) Stats(_ context.Context, namespace string) (graphdb.Stats, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.readProjection(namespace)
	if !ok {
		return graphdb.Stats{}, nil
	}
	return graphdb.Stats{
		NodeCount:  len(p.nodes),
		EdgeCount:  len(p.edges),
		SnapshotID: p.snapshotID,
	}, nil
}

func (b *Backend) NodeHashes(_ context.Context, namespace string) (map[string]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	hashes := make(map[string]string)
	if p, ok := b.readProjection(namespace); ok {
		for id, n := range p.nodes {
			hashes[id] = n.ContentHash
		}
	}
	return hashes, nil
}

func (b *Backend) DeleteNamespace(_ context.Context, namespace string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.namespaces, namespace)
	return nil
}
