// Package graphdb defines the graph-projection backend contract. The
// projection is a derived view over the canonical store: nodes labeled by
// namespace, typed directed edges, and a snapshot marker per namespace so a
// rebuild is observable as a single atomic version change.
package graphdb

import (
	"context"

	"github.com/cartonhq/carton/pkg/common"
)

// Node is the projected form of an entity. Only what neighborhood queries
// need is carried into the projection.
type Node struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
	ContentHash string `json:"content_hash"`
}

// Edge is the projected form of a relationship.
type Edge struct {
	SourceID       string      `json:"source_id"`
	TargetID       string      `json:"target_id"`
	Kind           common.Kind `json:"kind"`
	AutoDiscovered bool        `json:"auto_discovered"`
	Strength       float64     `json:"strength"`
}

// Neighborhood is the subgraph reachable from a root within a depth bound.
type Neighborhood struct {
	RootID string `json:"root_id"`
	Depth  int    `json:"depth"`
	Nodes  []Node `json:"nodes"`
	Edges  []Edge `json:"edges"`
}

// Stats summarizes a namespace projection for drift checks.
type Stats struct {
	NodeCount  int    `json:"node_count"`
	EdgeCount  int    `json:"edge_count"`
	SnapshotID string `json:"snapshot_id"`
}

// GraphBackend is the projection surface. Implementations keep namespaces
// fully isolated: no operation may read or write outside the given one.
type GraphBackend interface {
	// UpsertNodes writes or refreshes projected nodes.
	UpsertNodes(ctx context.Context, namespace string, nodes []Node) error
	// DeleteNodes detaches and removes nodes together with every edge
	// touching them.
	DeleteNodes(ctx context.Context, namespace string, ids []string) error
	UpsertEdges(ctx context.Context, namespace string, edges []Edge) error
	DeleteEdges(ctx context.Context, namespace string, edges []Edge) error

	// ReplaceAll atomically replaces the whole namespace projection with the
	// given graph and records snapshotID. Readers see either the old
	// projection or the new one, never a mix.
	ReplaceAll(ctx context.Context, namespace string, nodes []Node, edges []Edge, snapshotID string) error

	// Neighborhood returns the subgraph within depth hops of rootID.
	// Depth is clamped to [1, 3] by callers.
	Neighborhood(ctx context.Context, namespace, rootID string, depth int) (*Neighborhood, error)

	// Stats returns node/edge counts and the current snapshot id.
	Stats(ctx context.Context, namespace string) (Stats, error)
	// NodeHashes returns content hashes by node id, for drift detection.
	NodeHashes(ctx context.Context, namespace string) (map[string]string, error)

	// DeleteNamespace removes the whole namespace projection including its
	// snapshot marker.
	DeleteNamespace(ctx context.Context, namespace string) error
}

// ProjectNode maps a canonical entity to its projected node.
func ProjectNode(e common.Entity) Node {
	return Node{
		ID:          e.ID,
		DisplayName: e.DisplayName,
		Description: e.Description,
		ContentHash: e.ContentHash,
	}
}

// ProjectEdge maps a canonical relationship to its projected edge.
func ProjectEdge(r common.Relationship) Edge {
	return Edge{
		SourceID:       r.SourceID,
		TargetID:       r.TargetID,
		Kind:           r.Kind,
		AutoDiscovered: r.AutoDiscovered,
		Strength:       r.Strength,
	}
}
