package ablation

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/cartonhq/carton/pkg/common"
	docmem "github.com/cartonhq/carton/pkg/docstore/memory"
	"github.com/cartonhq/carton/pkg/graphdb"
	graphmem "github.com/cartonhq/carton/pkg/graphdb/memory"
	storemem "github.com/cartonhq/carton/pkg/store/memory"
)

const testNamespace = "test"

type fixture struct {
	store *storemem.Store
	docs  *docmem.DocumentStore
	graph *graphmem.Backend
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: storemem.New(),
		docs:  docmem.New(),
		graph: graphmem.New(),
	}
	if _, err := f.store.EnsureNamespace(context.Background(), testNamespace); err != nil {
		t.Fatal(err)
	}
	return f
}

func (f *fixture) engine(cfg Config) *Engine {
	return New(f.store, f.docs, f.graph, cfg)
}

func (f *fixture) addEntity(t *testing.T, name string) string {
	t.Helper()
	ctx := context.Background()
	id := common.EntityID(name)
	err := f.store.UpsertEntity(ctx, common.Entity{
		ID:            id,
		Namespace:     testNamespace,
		CanonicalName: common.CanonicalName(name),
		DisplayName:   name,
		Description:   "about " + name,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.docs.WriteDocument(ctx, testNamespace, id, []byte("about "+name)); err != nil {
		t.Fatal(err)
	}
	if err := f.graph.UpsertNodes(ctx, testNamespace, []graphdb.Node{{ID: id, DisplayName: name}}); err != nil {
		t.Fatal(err)
	}
	return id
}

func (f *fixture) addEdge(t *testing.T, source, target string, auto bool) {
	t.Helper()
	ctx := context.Background()
	rel := common.Relationship{
		Namespace:      testNamespace,
		SourceID:       source,
		TargetID:       target,
		Kind:           common.KindRelatesTo,
		AutoDiscovered: auto,
		Strength:       1.0,
	}
	if _, err := f.store.UpsertRelationship(ctx, rel); err != nil {
		t.Fatal(err)
	}
	if err := f.graph.UpsertEdges(ctx, testNamespace, []graphdb.Edge{graphdb.ProjectEdge(rel)}); err != nil {
		t.Fatal(err)
	}
}

// chain builds a -> b -> c -> d with an isolated entity on the side.
func (f *fixture) chain(t *testing.T) {
	t.Helper()
	for _, name := range []string{"a", "b", "c", "d", "island"} {
		f.addEntity(t, name)
	}
	f.addEdge(t, "a", "b", true)
	f.addEdge(t, "b", "c", true)
	f.addEdge(t, "c", "d", true)
}

func TestPlanDepthOne(t *testing.T) {
	f := newFixture(t)
	f.chain(t)
	e := f.engine(Config{})

	plan, err := e.Plan(context.Background(), testNamespace, []string{"b"}, false, DryRun)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Status != StatusValidated {
		t.Errorf("status = %s, want VALIDATED", plan.Status)
	}
	if !reflect.DeepEqual(plan.CascadeIDs, []string{"b"}) {
		t.Errorf("cascade = %v, want [b]", plan.CascadeIDs)
	}
	if len(plan.Relationships) != 2 {
		t.Errorf("got %d relationships, want 2 (a-b and b-c)", len(plan.Relationships))
	}
}

func TestPlanCascadeTransitive(t *testing.T) {
	f := newFixture(t)
	f.chain(t)
	// Cycle back to the root must terminate.
	f.addEdge(t, "d", "a", true)
	e := f.engine(Config{})

	plan, err := e.Plan(context.Background(), testNamespace, []string{"b"}, true, DryRun)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(plan.CascadeIDs, []string{"a", "b", "c", "d"}) {
		t.Errorf("cascade = %v, want [a b c d]", plan.CascadeIDs)
	}
	for _, id := range plan.CascadeIDs {
		if id == "island" {
			t.Error("cascade crossed into an unconnected entity")
		}
	}
}

func TestPlanAbsentRootIsNoop(t *testing.T) {
	f := newFixture(t)
	e := f.engine(Config{})

	plan, err := e.Plan(context.Background(), testNamespace, []string{"ghost"}, true, Execute)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Status != StatusValidated || len(plan.CascadeIDs) != 0 {
		t.Fatalf("plan = %+v, want empty validated plan", plan)
	}

	result, err := e.Execute(context.Background(), plan)
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != StatusCommitted {
		t.Errorf("status = %s, want COMMITTED for idempotent no-op", result.Status)
	}
}

func TestPlanBatchRootsUnion(t *testing.T) {
	f := newFixture(t)
	f.chain(t)
	e := f.engine(Config{})

	plan, err := e.Plan(context.Background(), testNamespace, []string{"a", "b", "a"}, false, DryRun)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(plan.CascadeIDs, []string{"a", "b"}) {
		t.Errorf("cascade = %v, want deduplicated [a b]", plan.CascadeIDs)
	}
}

func TestDryRunPurity(t *testing.T) {
	f := newFixture(t)
	f.chain(t)
	ctx := context.Background()
	if _, err := f.store.ReplaceMentions(ctx, testNamespace, "b", []string{"Ghost Service"}); err != nil {
		t.Fatal(err)
	}
	e := f.engine(Config{})

	before := snapshot(t, f)
	plan, err := e.Plan(ctx, testNamespace, []string{"b"}, true, DryRun)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Execute(ctx, plan); err != nil {
		t.Fatal(err)
	}
	after := snapshot(t, f)

	if !reflect.DeepEqual(before, after) {
		t.Error("dry run mutated state")
	}
}

type stateSnapshot struct {
	entities []common.Entity
	rels     []common.Relationship
	missing  []common.MissingEntity
	docs     []string
	hashes   map[string]string
}

func snapshot(t *testing.T, f *fixture) stateSnapshot {
	t.Helper()
	ctx := context.Background()
	entities, err := f.store.ListEntities(ctx, testNamespace)
	if err != nil {
		t.Fatal(err)
	}
	rels, err := f.store.ListRelationships(ctx, testNamespace)
	if err != nil {
		t.Fatal(err)
	}
	missing, err := f.store.ListMissing(ctx, testNamespace)
	if err != nil {
		t.Fatal(err)
	}
	docs, err := f.docs.ListDocuments(ctx, testNamespace)
	if err != nil {
		t.Fatal(err)
	}
	hashes, err := f.graph.NodeHashes(ctx, testNamespace)
	if err != nil {
		t.Fatal(err)
	}
	return stateSnapshot{entities: entities, rels: rels, missing: missing, docs: docs, hashes: hashes}
}

func TestPendingPairBlocksPlan(t *testing.T) {
	f := newFixture(t)
	f.chain(t)
	ctx := context.Background()
	err := f.store.UpsertPendingPair(ctx, common.DuplicatePair{
		Namespace:  testNamespace,
		EntityA:    "b",
		EntityB:    "c",
		Similarity: 0.9,
	})
	if err != nil {
		t.Fatal(err)
	}
	e := f.engine(Config{})

	_, err = e.Plan(ctx, testNamespace, []string{"b"}, false, Execute)
	if !common.IsValidation(err) {
		t.Fatalf("got %v, want validation error for pending pair", err)
	}

	// A resolved pair no longer blocks.
	if err := f.store.SetPairStatus(ctx, testNamespace, "b", "c", common.PairDismissed); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Plan(ctx, testNamespace, []string{"b"}, false, Execute); err != nil {
		t.Errorf("dismissed pair still blocks plan: %v", err)
	}
}

func TestManualEdgeValidation(t *testing.T) {
	f := newFixture(t)
	f.addEntity(t, "keeper")
	f.addEntity(t, "target")
	f.addEdge(t, "keeper", "target", false)

	warn := f.engine(Config{})
	plan, err := warn.Plan(context.Background(), testNamespace, []string{"target"}, false, Execute)
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Warnings) == 0 {
		t.Error("expected a warning for manual edge into cascade")
	}

	block := f.engine(Config{BlockOnManualEdges: true})
	_, err = block.Plan(context.Background(), testNamespace, []string{"target"}, false, Execute)
	if !common.IsValidation(err) {
		t.Errorf("got %v, want validation error when blocking on manual edges", err)
	}
}

func TestExecuteCommitsBothStores(t *testing.T) {
	f := newFixture(t)
	f.chain(t)
	ctx := context.Background()
	// Missing record sourced only from b is pruned; one shared with d survives.
	if _, err := f.store.ReplaceMentions(ctx, testNamespace, "b", []string{"Only B", "Shared"}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.store.ReplaceMentions(ctx, testNamespace, "island", []string{"Shared"}); err != nil {
		t.Fatal(err)
	}
	e := f.engine(Config{})

	plan, err := e.Plan(ctx, testNamespace, []string{"b"}, false, Execute)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(plan.PrunedMissing, []string{"Only B"}) {
		t.Errorf("planned pruning = %v, want [Only B]", plan.PrunedMissing)
	}

	result, err := e.Execute(ctx, plan)
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != StatusCommitted || !result.TextStoreCommitted || !result.ProjectionCommitted {
		t.Fatalf("result = %+v, want fully committed", result)
	}

	if _, err := f.store.GetEntity(ctx, testNamespace, "b"); !errors.Is(err, common.ErrNotFound) {
		t.Error("entity b survived execution")
	}
	rels, err := f.store.ListRelationshipsTouching(ctx, testNamespace, []string{"b"})
	if err != nil {
		t.Fatal(err)
	}
	if len(rels) != 0 {
		t.Errorf("edges touching b survived: %v", rels)
	}
	docs, err := f.docs.ListDocuments(ctx, testNamespace)
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range docs {
		if id == "b" {
			t.Error("document for b survived")
		}
	}
	missing, err := f.store.ListMissing(ctx, testNamespace)
	if err != nil {
		t.Fatal(err)
	}
	if len(missing) != 1 || missing[0].Name != "Shared" {
		t.Errorf("missing after execute = %+v, want only Shared", missing)
	}
	hashes, err := f.graph.NodeHashes(ctx, testNamespace)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := hashes["b"]; ok {
		t.Error("projection node for b survived")
	}
}

func TestCascadeCompleteness(t *testing.T) {
	f := newFixture(t)
	f.chain(t)
	f.addEdge(t, "island", "a", true)
	e := f.engine(Config{})
	ctx := context.Background()

	plan, err := e.Plan(ctx, testNamespace, []string{"b"}, true, Execute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Execute(ctx, plan); err != nil {
		t.Fatal(err)
	}

	rels, err := f.store.ListRelationships(ctx, testNamespace)
	if err != nil {
		t.Fatal(err)
	}
	removed := make(map[string]bool)
	for _, id := range plan.CascadeIDs {
		removed[id] = true
	}
	for _, rel := range rels {
		if removed[rel.SourceID] || removed[rel.TargetID] {
			t.Errorf("edge %v references removed entity", rel.Triple())
		}
	}
}

type failingGraph struct {
	*graphmem.Backend
}

func (f *failingGraph) DeleteNodes(context.Context, string, []string) error {
	return errors.New("projection unavailable")
}

func TestPhaseTwoFailureReportsPartialState(t *testing.T) {
	f := newFixture(t)
	f.chain(t)
	e := New(f.store, f.docs, &failingGraph{f.graph}, Config{})
	ctx := context.Background()

	plan, err := e.Plan(ctx, testNamespace, []string{"b"}, false, Execute)
	if err != nil {
		t.Fatal(err)
	}
	result, err := e.Execute(ctx, plan)
	if err == nil {
		t.Fatal("expected phase-2 failure")
	}
	if !errors.Is(err, common.ErrConsistency) {
		t.Errorf("got %v, want ErrConsistency", err)
	}
	if result.Status != StatusFailed {
		t.Errorf("status = %s, want FAILED", result.Status)
	}
	if !result.TextStoreCommitted || result.ProjectionCommitted {
		t.Errorf("partial state = text:%v projection:%v, want text committed only",
			result.TextStoreCommitted, result.ProjectionCommitted)
	}

	// Text store no longer has b; the projection still does. That is the
	// stale-but-detectable state the phase ordering guarantees.
	if _, err := f.store.GetEntity(ctx, testNamespace, "b"); !errors.Is(err, common.ErrNotFound) {
		t.Error("text store still holds b after committed phase 1")
	}
	hashes, err := f.graph.NodeHashes(ctx, testNamespace)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := hashes["b"]; !ok {
		t.Error("projection lost b even though phase 2 failed")
	}
}

func TestExecuteCanceledBeforeMutation(t *testing.T) {
	f := newFixture(t)
	f.chain(t)
	e := f.engine(Config{})

	plan, err := e.Plan(context.Background(), testNamespace, []string{"b"}, false, Execute)
	if err != nil {
		t.Fatal(err)
	}

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	before := snapshot(t, f)
	result, _ := e.Execute(canceled, plan)
	after := snapshot(t, f)

	if result.Status != StatusRolledBack {
		t.Errorf("status = %s, want ROLLED_BACK", result.Status)
	}
	if !reflect.DeepEqual(before, after) {
		t.Error("canceled execution mutated state")
	}
}
