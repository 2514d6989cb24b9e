// Package projector maintains the graph projection from the canonical
// store. The store is the source of truth; the projection is rebuilt from
// it, patched incrementally after small mutations, and audited for drift.
package projector

import (
	"context"
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/cartonhq/carton/pkg/common"
	"github.com/cartonhq/carton/pkg/graphdb"
	"github.com/cartonhq/carton/pkg/logger"
	"github.com/cartonhq/carton/pkg/store"
)

// Projector derives the graph projection from the canonical store.
type Projector struct {
	store store.Store
	graph graphdb.GraphBackend
}

func New(st store.Store, graph graphdb.GraphBackend) *Projector {
	return &Projector{store: st, graph: graph}
}

// RebuildReport describes a completed full rebuild.
type RebuildReport struct {
	Namespace  string `json:"namespace"`
	SnapshotID string `json:"snapshot_id"`
	Nodes      int    `json:"nodes"`
	Edges      int    `json:"edges"`
}

// Rebuild replaces the whole namespace projection from canonical state. The
// swap is atomic: readers see the previous snapshot until the new one is
// complete.
func (p *Projector) Rebuild(ctx context.Context, namespace string) (RebuildReport, error) {
	entities, err := p.store.ListEntities(ctx, namespace)
	if err != nil {
		return RebuildReport{}, fmt.Errorf("failed to list entities: %w", err)
	}
	rels, err := p.store.ListRelationships(ctx, namespace)
	if err != nil {
		return RebuildReport{}, fmt.Errorf("failed to list relationships: %w", err)
	}

	nodes := make([]graphdb.Node, 0, len(entities))
	for _, e := range entities {
		nodes = append(nodes, graphdb.ProjectNode(e))
	}
	edges := make([]graphdb.Edge, 0, len(rels))
	for _, r := range rels {
		edges = append(edges, graphdb.ProjectEdge(r))
	}

	snapshotID, err := gonanoid.New()
	if err != nil {
		return RebuildReport{}, err
	}

	if err := p.graph.ReplaceAll(ctx, namespace, nodes, edges, snapshotID); err != nil {
		return RebuildReport{}, fmt.Errorf("failed to replace projection: %w", err)
	}

	report := RebuildReport{
		Namespace:  namespace,
		SnapshotID: snapshotID,
		Nodes:      len(nodes),
		Edges:      len(edges),
	}
	logger.Info("[Projector] rebuilt projection",
		"namespace", namespace,
		"snapshot", snapshotID,
		"nodes", report.Nodes,
		"edges", report.Edges,
	)
	return report, nil
}

// UpsertEntities patches the projection after entity upserts.
func (p *Projector) UpsertEntities(ctx context.Context, namespace string, entities []common.Entity) error {
	nodes := make([]graphdb.Node, 0, len(entities))
	for _, e := range entities {
		nodes = append(nodes, graphdb.ProjectNode(e))
	}
	return p.graph.UpsertNodes(ctx, namespace, nodes)
}

// UpsertRelationships patches the projection after edge upserts.
func (p *Projector) UpsertRelationships(ctx context.Context, namespace string, rels []common.Relationship) error {
	edges := make([]graphdb.Edge, 0, len(rels))
	for _, r := range rels {
		edges = append(edges, graphdb.ProjectEdge(r))
	}
	return p.graph.UpsertEdges(ctx, namespace, edges)
}

// RemoveRelationships patches the projection after edge retractions.
func (p *Projector) RemoveRelationships(ctx context.Context, namespace string, rels []common.Relationship) error {
	edges := make([]graphdb.Edge, 0, len(rels))
	for _, r := range rels {
		edges = append(edges, graphdb.ProjectEdge(r))
	}
	return p.graph.DeleteEdges(ctx, namespace, edges)
}

// RemoveEntities detaches and deletes projected nodes.
func (p *Projector) RemoveEntities(ctx context.Context, namespace string, ids []string) error {
	return p.graph.DeleteNodes(ctx, namespace, ids)
}

// Drift describes how the projection diverges from canonical state.
// Reporting only: repairing drift is an explicit Rebuild.
type Drift struct {
	Namespace string `json:"namespace"`
	InSync    bool   `json:"in_sync"`

	// MissingNodes exist canonically but not in the projection.
	MissingNodes []string `json:"missing_nodes,omitempty"`
	// ExtraNodes exist in the projection but not canonically.
	ExtraNodes []string `json:"extra_nodes,omitempty"`
	// StaleNodes exist in both but with different content hashes.
	StaleNodes []string `json:"stale_nodes,omitempty"`

	CanonicalEdges int `json:"canonical_edges"`
	ProjectedEdges int `json:"projected_edges"`
}

// CheckDrift compares the projection against canonical state by node set,
// content hash, and edge count.
func (p *Projector) CheckDrift(ctx context.Context, namespace string) (Drift, error) {
	drift := Drift{Namespace: namespace}

	entities, err := p.store.ListEntities(ctx, namespace)
	if err != nil {
		return drift, fmt.Errorf("failed to list entities: %w", err)
	}
	rels, err := p.store.ListRelationships(ctx, namespace)
	if err != nil {
		return drift, fmt.Errorf("failed to list relationships: %w", err)
	}
	hashes, err := p.graph.NodeHashes(ctx, namespace)
	if err != nil {
		return drift, fmt.Errorf("failed to read projection hashes: %w", err)
	}
	stats, err := p.graph.Stats(ctx, namespace)
	if err != nil {
		return drift, fmt.Errorf("failed to read projection stats: %w", err)
	}

	canonical := make(map[string]string, len(entities))
	for _, e := range entities {
		canonical[e.ID] = e.ContentHash
	}

	for id, hash := range canonical {
		projected, ok := hashes[id]
		switch {
		case !ok:
			drift.MissingNodes = append(drift.MissingNodes, id)
		case projected != hash:
			drift.StaleNodes = append(drift.StaleNodes, id)
		}
	}
	for id := range hashes {
		if _, ok := canonical[id]; !ok {
			drift.ExtraNodes = append(drift.ExtraNodes, id)
		}
	}

	drift.CanonicalEdges = len(rels)
	drift.ProjectedEdges = stats.EdgeCount
	drift.InSync = len(drift.MissingNodes) == 0 &&
		len(drift.ExtraNodes) == 0 &&
		len(drift.StaleNodes) == 0 &&
		drift.CanonicalEdges == drift.ProjectedEdges

	if !drift.InSync {
		logger.Warn("[Projector] projection drift detected",
			"namespace", namespace,
			"missing", len(drift.MissingNodes),
			"extra", len(drift.ExtraNodes),
			"stale", len(drift.StaleNodes),
			"canonical_edges", drift.CanonicalEdges,
			"projected_edges", drift.ProjectedEdges,
		)
	}
	return drift, nil
}
