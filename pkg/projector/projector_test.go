package projector

import (
	"context"
	"sort"
	"testing"

	"github.com/cartonhq/carton/pkg/common"
	graphmem "github.com/cartonhq/carton/pkg/graphdb/memory"
	storemem "github.com/cartonhq/carton/pkg/store/memory"
)

const testNamespace = "test"

func seed(t *testing.T, st *storemem.Store, names ...string) {
	t.Helper()
	ctx := context.Background()
	if _, err := st.EnsureNamespace(ctx, testNamespace); err != nil {
		t.Fatal(err)
	}
	for _, name := range names {
		err := st.UpsertEntity(ctx, common.Entity{
			ID:            common.EntityID(name),
			Namespace:     testNamespace,
			CanonicalName: common.CanonicalName(name),
			DisplayName:   name,
			Description:   "about " + name,
			ContentHash:   common.ContentHash("about " + name),
		})
		if err != nil {
			t.Fatal(err)
		}
	}
}

func seedEdge(t *testing.T, st *storemem.Store, source, target string, kind common.Kind) {
	t.Helper()
	_, err := st.UpsertRelationship(context.Background(), common.Relationship{
		Namespace:      testNamespace,
		SourceID:       source,
		TargetID:       target,
		Kind:           kind,
		AutoDiscovered: true,
		Strength:       1.0,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestRebuildProjectsCanonicalState(t *testing.T) {
	st := storemem.New()
	graph := graphmem.New()
	seed(t, st, "Gateway", "Redis", "Billing")
	seedEdge(t, st, "gateway", "redis", common.KindRelatesTo)
	seedEdge(t, st, "redis", "gateway", common.KindRelatesTo)

	p := New(st, graph)
	report, err := p.Rebuild(context.Background(), testNamespace)
	if err != nil {
		t.Fatal(err)
	}
	if report.Nodes != 3 || report.Edges != 2 {
		t.Errorf("report = %+v, want 3 nodes, 2 edges", report)
	}
	if report.SnapshotID == "" {
		t.Error("rebuild must record a snapshot id")
	}

	stats, err := graph.Stats(context.Background(), testNamespace)
	if err != nil {
		t.Fatal(err)
	}
	if stats.NodeCount != 3 || stats.EdgeCount != 2 {
		t.Errorf("stats = %+v, want 3 nodes, 2 edges", stats)
	}
	if stats.SnapshotID != report.SnapshotID {
		t.Errorf("snapshot mismatch: stats %s, report %s", stats.SnapshotID, report.SnapshotID)
	}
}

func TestRebuildReplacesStaleProjection(t *testing.T) {
	st := storemem.New()
	graph := graphmem.New()
	seed(t, st, "Gateway", "Redis")

	p := New(st, graph)
	ctx := context.Background()
	first, err := p.Rebuild(ctx, testNamespace)
	if err != nil {
		t.Fatal(err)
	}

	// Canonical state moves on; the old projection is now stale.
	if err := st.DeleteEntities(ctx, testNamespace, []string{"redis"}); err != nil {
		t.Fatal(err)
	}
	second, err := p.Rebuild(ctx, testNamespace)
	if err != nil {
		t.Fatal(err)
	}
	if second.SnapshotID == first.SnapshotID {
		t.Error("rebuild reused the previous snapshot id")
	}

	hashes, err := graph.NodeHashes(ctx, testNamespace)
	if err != nil {
		t.Fatal(err)
	}
	if len(hashes) != 1 {
		t.Errorf("projection has %d nodes after rebuild, want 1", len(hashes))
	}
	if _, ok := hashes["redis"]; ok {
		t.Error("removed entity still projected after rebuild")
	}
}

func TestCheckDrift(t *testing.T) {
	st := storemem.New()
	graph := graphmem.New()
	seed(t, st, "Gateway", "Redis")

	p := New(st, graph)
	ctx := context.Background()
	if _, err := p.Rebuild(ctx, testNamespace); err != nil {
		t.Fatal(err)
	}

	drift, err := p.CheckDrift(ctx, testNamespace)
	if err != nil {
		t.Fatal(err)
	}
	if !drift.InSync {
		t.Fatalf("fresh rebuild reported drift: %+v", drift)
	}

	// New canonical entity the projection has not seen.
	seed(t, st, "Billing")
	// Canonical description change the projection has not seen.
	if err := st.UpsertEntity(ctx, common.Entity{
		ID:            "redis",
		Namespace:     testNamespace,
		CanonicalName: "redis",
		DisplayName:   "Redis",
		Description:   "rewritten",
		ContentHash:   common.ContentHash("rewritten"),
	}); err != nil {
		t.Fatal(err)
	}

	drift, err = p.CheckDrift(ctx, testNamespace)
	if err != nil {
		t.Fatal(err)
	}
	if drift.InSync {
		t.Fatal("drift not detected")
	}
	sort.Strings(drift.MissingNodes)
	if len(drift.MissingNodes) != 1 || drift.MissingNodes[0] != "billing" {
		t.Errorf("missing nodes = %v, want [billing]", drift.MissingNodes)
	}
	if len(drift.StaleNodes) != 1 || drift.StaleNodes[0] != "redis" {
		t.Errorf("stale nodes = %v, want [redis]", drift.StaleNodes)
	}
	if len(drift.ExtraNodes) != 0 {
		t.Errorf("extra nodes = %v, want none", drift.ExtraNodes)
	}
}

func TestIncrementalPatches(t *testing.T) {
	st := storemem.New()
	graph := graphmem.New()
	seed(t, st, "Gateway", "Redis")

	p := New(st, graph)
	ctx := context.Background()
	if _, err := p.Rebuild(ctx, testNamespace); err != nil {
		t.Fatal(err)
	}

	seed(t, st, "Billing")
	billing, err := st.GetEntity(ctx, testNamespace, "billing")
	if err != nil {
		t.Fatal(err)
	}
	if err := p.UpsertEntities(ctx, testNamespace, []common.Entity{*billing}); err != nil {
		t.Fatal(err)
	}

	rel := common.Relationship{
		Namespace:      testNamespace,
		SourceID:       "gateway",
		TargetID:       "billing",
		Kind:           common.KindRelatesTo,
		AutoDiscovered: true,
	}
	if _, err := st.UpsertRelationship(ctx, rel); err != nil {
		t.Fatal(err)
	}
	if err := p.UpsertRelationships(ctx, testNamespace, []common.Relationship{rel}); err != nil {
		t.Fatal(err)
	}

	drift, err := p.CheckDrift(ctx, testNamespace)
	if err != nil {
		t.Fatal(err)
	}
	if !drift.InSync {
		t.Errorf("patched projection reports drift: %+v", drift)
	}

	if err := p.RemoveEntities(ctx, testNamespace, []string{"billing"}); err != nil {
		t.Fatal(err)
	}
	hashes, err := graph.NodeHashes(ctx, testNamespace)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := hashes["billing"]; ok {
		t.Error("removed entity still projected")
	}
}
