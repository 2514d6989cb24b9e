// Package neo4j implements the graph projection on Neo4j. Each namespace
// maps to one node label, relationship kinds map to relationship types, and
// a ProjectionMeta node per namespace carries the snapshot id.
//
// Full rebuilds stage the new graph under a staging label and swap labels
// inside a single write transaction, so readers never observe a half-built
// projection.
package neo4j

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/cartonhq/carton/pkg/common"
	"github.com/cartonhq/carton/pkg/graphdb"
)

// Backend implements graphdb.GraphBackend on a Neo4j driver.
type Backend struct {
	driver neo4j.DriverWithContext
}

// NewDriver connects to Neo4j with basic auth.
func NewDriver(uri, username, password string) (neo4j.DriverWithContext, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	return driver, nil
}

// New wraps a Neo4j driver as a projection backend.
func New(driver neo4j.DriverWithContext) *Backend {
	return &Backend{driver: driver}
}

// Close closes the underlying driver.
func (b *Backend) Close(ctx context.Context) error {
	return b.driver.Close(ctx)
}

// namespaceLabel derives a Cypher-safe label from a namespace name. Labels
// cannot be parameterized, so everything outside [A-Za-z0-9_] is folded to
// an underscore and the label is prefixed to never start with a digit.
func namespaceLabel(namespace string) string {
	var sb strings.Builder
	sb.WriteString("Ns_")
	for _, r := range namespace {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

func stagingLabel(namespace string) string {
	return "Staging_" + namespaceLabel(namespace)
}

func nodeParams(nodes []graphdb.Node) []map[string]any {
	out := make([]map[string]any, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, map[string]any{
			"id":           n.ID,
			"display_name": n.DisplayName,
			"description":  n.Description,
			"content_hash": n.ContentHash,
		})
	}
	return out
}

func edgeParams(edges []graphdb.Edge) (map[common.Kind][]map[string]any, error) {
	byKind := make(map[common.Kind][]map[string]any)
	for _, e := range edges {
		if !e.Kind.Valid() {
			return nil, fmt.Errorf("relationship kind %q is not declared", e.Kind)
		}
		byKind[e.Kind] = append(byKind[e.Kind], map[string]any{
			"source_id":       e.SourceID,
			"target_id":       e.TargetID,
			"auto_discovered": e.AutoDiscovered,
			"strength":        e.Strength,
		})
	}
	return byKind, nil
}

func (b *Backend) UpsertNodes(ctx context.Context, namespace string, nodes []graphdb.Node) error {
	if len(nodes) == 0 {
		return nil
	}
	session := b.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	label := namespaceLabel(namespace)
	query := fmt.Sprintf(`
		UNWIND $nodes AS node
		MERGE (n:%s {id: node.id})
		SET n.display_name = node.display_name,
		    n.description = node.description,
		    n.content_hash = node.content_hash
	`, label)

	_, err := session.Run(ctx, query, map[string]any{"nodes": nodeParams(nodes)})
	if err != nil {
		return fmt.Errorf("failed to upsert projection nodes: %w", err)
	}
	return nil
}

func (b *Backend) DeleteNodes(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	session := b.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := fmt.Sprintf(`
		MATCH (n:%s)
		WHERE n.id IN $ids
		DETACH DELETE n
	`, namespaceLabel(namespace))

	_, err := session.Run(ctx, query, map[string]any{"ids": ids})
	if err != nil {
		return fmt.Errorf("failed to delete projection nodes: %w", err)
	}
	return nil
}

func (b *Backend) UpsertEdges(ctx context.Context, namespace string, edges []graphdb.Edge) error {
	if len(edges) == 0 {
		return nil
	}
	byKind, err := edgeParams(edges)
	if err != nil {
		return err
	}

	session := b.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	label := namespaceLabel(namespace)
	for kind, batch := range byKind {
		query := fmt.Sprintf(`
			UNWIND $edges AS edge
			MATCH (src:%s {id: edge.source_id})
			MATCH (dst:%s {id: edge.target_id})
			MERGE (src)-[r:%s]->(dst)
			SET r.auto_discovered = edge.auto_discovered,
			    r.strength = edge.strength
		`, label, label, kind)
		if _, err := session.Run(ctx, query, map[string]any{"edges": batch}); err != nil {
			return fmt.Errorf("failed to upsert %s edges: %w", kind, err)
		}
	}
	return nil
}

func (b *Backend) DeleteEdges(ctx context.Context, namespace string, edges []graphdb.Edge) error {
	if len(edges) == 0 {
		return nil
	}
	byKind, err := edgeParams(edges)
	if err != nil {
		return err
	}

	session := b.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	label := namespaceLabel(namespace)
	for kind, batch := range byKind {
		query := fmt.Sprintf(`
			UNWIND $edges AS edge
			MATCH (:%s {id: edge.source_id})-[r:%s]->(:%s {id: edge.target_id})
			DELETE r
		`, label, kind, label)
		if _, err := session.Run(ctx, query, map[string]any{"edges": batch}); err != nil {
			return fmt.Errorf("failed to delete %s edges: %w", kind, err)
		}
	}
	return nil
}

func (b *Backend) ReplaceAll(ctx context.Context, namespace string, nodes []graphdb.Node, edges []graphdb.Edge, snapshotID string) error {
	byKind, err := edgeParams(edges)
	if err != nil {
		return err
	}

	session := b.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	label := namespaceLabel(namespace)
	staging := stagingLabel(namespace)

	// Clear any staging leftovers from an earlier failed rebuild.
	if _, err := session.Run(ctx, fmt.Sprintf(`MATCH (n:%s) DETACH DELETE n`, staging), nil); err != nil {
		return fmt.Errorf("failed to clear staging projection: %w", err)
	}

	stageNodes := fmt.Sprintf(`
		UNWIND $nodes AS node
		CREATE (n:%s {
			id: node.id,
			display_name: node.display_name,
			description: node.description,
			content_hash: node.content_hash
		})
	`, staging)
	if _, err := session.Run(ctx, stageNodes, map[string]any{"nodes": nodeParams(nodes)}); err != nil {
		return fmt.Errorf("failed to stage projection nodes: %w", err)
	}

	for kind, batch := range byKind {
		stageEdges := fmt.Sprintf(`
			UNWIND $edges AS edge
			MATCH (src:%s {id: edge.source_id})
			MATCH (dst:%s {id: edge.target_id})
			CREATE (src)-[:%s {auto_discovered: edge.auto_discovered, strength: edge.strength}]->(dst)
		`, staging, staging, kind)
		if _, err := session.Run(ctx, stageEdges, map[string]any{"edges": batch}); err != nil {
			return fmt.Errorf("failed to stage %s edges: %w", kind, err)
		}
	}

	// The swap runs in one transaction: drop the live graph, promote the
	// staged one, record the snapshot. Readers see old or new, never both.
	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, fmt.Sprintf(`MATCH (n:%s) DETACH DELETE n`, label), nil); err != nil {
			return nil, err
		}
		promote := fmt.Sprintf(`MATCH (n:%s) SET n:%s REMOVE n:%s`, staging, label, staging)
		if _, err := tx.Run(ctx, promote, nil); err != nil {
			return nil, err
		}
		meta := `
			MERGE (m:ProjectionMeta {namespace: $namespace})
			SET m.snapshot_id = $snapshotID, m.rebuilt_at = datetime()
		`
		if _, err := tx.Run(ctx, meta, map[string]any{
			"namespace":  namespace,
			"snapshotID": snapshotID,
		}); err != nil {
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("failed to swap projection: %w", err)
	}
	return nil
}

func (b *Backend) Neighborhood(ctx context.Context, namespace, rootID string, depth int) (*graphdb.Neighborhood, error) {
	session := b.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	label := namespaceLabel(namespace)

	// Depth is an integer from a clamped range, never user text.
	query := fmt.Sprintf(`
		MATCH (root:%s {id: $rootID})
		OPTIONAL MATCH path = (root)-[*1..%d]-(other:%s)
		WITH root, collect(path) AS paths
		WITH root,
			reduce(ns = [root], p IN paths | ns + nodes(p)) AS ns,
			reduce(rs = [], p IN paths | rs + relationships(p)) AS rs
		UNWIND ns AS n
		WITH root, collect(DISTINCT n) AS nodes, rs
		UNWIND CASE WHEN size(rs) = 0 THEN [null] ELSE rs END AS r
		WITH root, nodes, collect(DISTINCT r) AS rels
		RETURN
			[n IN nodes | {id: n.id, display_name: n.display_name, description: n.description, content_hash: n.content_hash}] AS nodes,
			[r IN rels WHERE r IS NOT NULL | {source_id: startNode(r).id, target_id: endNode(r).id, kind: type(r), auto_discovered: r.auto_discovered, strength: r.strength}] AS edges
	`, label, depth, label)

	result, err := session.Run(ctx, query, map[string]any{"rootID": rootID})
	if err != nil {
		return nil, fmt.Errorf("failed to query neighborhood: %w", err)
	}

	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return nil, fmt.Errorf("failed to fetch neighborhood record: %w", err)
		}
		return nil, fmt.Errorf("entity %s/%s: %w", namespace, rootID, common.ErrNotFound)
	}
	record := result.Record()

	out := &graphdb.Neighborhood{RootID: rootID, Depth: depth}

	rawNodes, _ := record.Get("nodes")
	if list, ok := rawNodes.([]any); ok {
		for _, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			out.Nodes = append(out.Nodes, graphdb.Node{
				ID:          stringValue(m["id"]),
				DisplayName: stringValue(m["display_name"]),
				Description: stringValue(m["description"]),
				ContentHash: stringValue(m["content_hash"]),
			})
		}
	}

	rawEdges, _ := record.Get("edges")
	if list, ok := rawEdges.([]any); ok {
		for _, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			out.Edges = append(out.Edges, graphdb.Edge{
				SourceID:       stringValue(m["source_id"]),
				TargetID:       stringValue(m["target_id"]),
				Kind:           common.Kind(stringValue(m["kind"])),
				AutoDiscovered: boolValue(m["auto_discovered"]),
				Strength:       floatValue(m["strength"]),
			})
		}
	}

	return out, nil
}

func (b *Backend) Stats(ctx context.Context, namespace string) (graphdb.Stats, error) {
	session := b.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	label := namespaceLabel(namespace)
	query := fmt.Sprintf(`
		OPTIONAL MATCH (n:%s)
		WITH count(n) AS node_count
		OPTIONAL MATCH (:%s)-[r]->(:%s)
		WITH node_count, count(r) AS edge_count
		OPTIONAL MATCH (m:ProjectionMeta {namespace: $namespace})
		RETURN node_count, edge_count, m.snapshot_id AS snapshot_id
	`, label, label, label)

	result, err := session.Run(ctx, query, map[string]any{"namespace": namespace})
	if err != nil {
		return graphdb.Stats{}, fmt.Errorf("failed to query projection stats: %w", err)
	}
	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return graphdb.Stats{}, fmt.Errorf("failed to fetch stats record: %w", err)
		}
		return graphdb.Stats{}, nil
	}
	record := result.Record()

	stats := graphdb.Stats{}
	if v, ok := record.Get("node_count"); ok {
		stats.NodeCount = intValue(v)
	}
	if v, ok := record.Get("edge_count"); ok {
		stats.EdgeCount = intValue(v)
	}
	if v, ok := record.Get("snapshot_id"); ok {
		stats.SnapshotID = stringValue(v)
	}
	return stats, nil
}

func (b *Backend) NodeHashes(ctx context.Context, namespace string) (map[string]string, error) {
	session := b.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := fmt.Sprintf(`MATCH (n:%s) RETURN n.id AS id, n.content_hash AS content_hash`, namespaceLabel(namespace))
	result, err := session.Run(ctx, query, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query node hashes: %w", err)
	}

	hashes := make(map[string]string)
	for result.Next(ctx) {
		record := result.Record()
		id, _ := record.Get("id")
		hash, _ := record.Get("content_hash")
		hashes[stringValue(id)] = stringValue(hash)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate node hashes: %w", err)
	}
	return hashes, nil
}

func (b *Backend) DeleteNamespace(ctx context.Context, namespace string) error {
	session := b.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	drop := fmt.Sprintf(`MATCH (n:%s) DETACH DELETE n`, namespaceLabel(namespace))
	if _, err := session.Run(ctx, drop, nil); err != nil {
		return fmt.Errorf("failed to delete namespace projection: %w", err)
	}
	dropStaging := fmt.Sprintf(`MATCH (n:%s) DETACH DELETE n`, stagingLabel(namespace))
	if _, err := session.Run(ctx, dropStaging, nil); err != nil {
		return fmt.Errorf("failed to delete staging projection: %w", err)
	}
	meta := `MATCH (m:ProjectionMeta {namespace: $namespace}) DELETE m`
	if _, err := session.Run(ctx, meta, map[string]any{"namespace": namespace}); err != nil {
		return fmt.Errorf("failed to delete projection meta: %w", err)
	}
	return nil
}

func stringValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func boolValue(v any) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return false
}

func floatValue(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	}
	return 0
}

func intValue(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	}
	return 0
}
