package synth

import (
	"context"
	"errors"
	"testing"

	"github.com/cartonhq/carton/pkg/common"
	"github.com/cartonhq/carton/pkg/scanner"
	"github.com/cartonhq/carton/pkg/store/memory"
)

const testNamespace = "test"

func seedEntities(t *testing.T, st *memory.Store, names ...string) []common.Entity {
	t.Helper()
	ctx := context.Background()
	if _, err := st.EnsureNamespace(ctx, testNamespace); err != nil {
		t.Fatal(err)
	}
	out := make([]common.Entity, 0, len(names))
	for _, name := range names {
		e := common.Entity{
			ID:            common.EntityID(name),
			Namespace:     testNamespace,
			CanonicalName: common.CanonicalName(name),
			DisplayName:   name,
		}
		if err := st.UpsertEntity(ctx, e); err != nil {
			t.Fatal(err)
		}
		out = append(out, e)
	}
	return out
}

func scanWith(ids ...string) scanner.Result {
	var r scanner.Result
	for _, id := range ids {
		r.Mentions = append(r.Mentions, scanner.Mention{EntityID: id, Confidence: 1.0})
	}
	return r
}

func findRel(t *testing.T, st *memory.Store, source, target string, kind common.Kind) *common.Relationship {
	t.Helper()
	rels, err := st.ListRelationships(context.Background(), testNamespace)
	if err != nil {
		t.Fatal(err)
	}
	for i := range rels {
		if rels[i].SourceID == source && rels[i].TargetID == target && rels[i].Kind == kind {
			return &rels[i]
		}
	}
	return nil
}

func TestSyncEntityAddsEdgeAndInverse(t *testing.T) {
	st := memory.New()
	entities := seedEntities(t, st, "Gateway", "Redis")
	s := New(st)

	sum, err := s.SyncEntity(context.Background(), testNamespace, entities[0], scanWith("redis"))
	if err != nil {
		t.Fatal(err)
	}
	if sum.Added != 2 {
		t.Errorf("added = %d, want 2 (edge plus inverse)", sum.Added)
	}

	forward := findRel(t, st, "gateway", "redis", common.KindRelatesTo)
	inverse := findRel(t, st, "redis", "gateway", common.KindRelatesTo)
	if forward == nil || inverse == nil {
		t.Fatal("expected both edge directions to exist")
	}
	if !forward.AutoDiscovered || !inverse.AutoDiscovered {
		t.Error("synthesized edges must be auto-discovered")
	}
}

func TestSyncEntityIdempotent(t *testing.T) {
	st := memory.New()
	entities := seedEntities(t, st, "Gateway", "Redis")
	s := New(st)
	ctx := context.Background()

	if _, err := s.SyncEntity(ctx, testNamespace, entities[0], scanWith("redis")); err != nil {
		t.Fatal(err)
	}
	sum, err := s.SyncEntity(ctx, testNamespace, entities[0], scanWith("redis"))
	if err != nil {
		t.Fatal(err)
	}
	if sum.Added != 0 || sum.Retracted != 0 {
		t.Errorf("second identical sync changed state: %+v", sum)
	}
}

func TestSyncEntityRetractsStaleAutoEdges(t *testing.T) {
	st := memory.New()
	entities := seedEntities(t, st, "Gateway", "Redis")
	s := New(st)
	ctx := context.Background()

	if _, err := s.SyncEntity(ctx, testNamespace, entities[0], scanWith("redis")); err != nil {
		t.Fatal(err)
	}
	sum, err := s.SyncEntity(ctx, testNamespace, entities[0], scanner.Result{})
	if err != nil {
		t.Fatal(err)
	}
	if sum.Retracted != 2 {
		t.Errorf("retracted = %d, want 2 (edge plus inverse)", sum.Retracted)
	}
	if findRel(t, st, "gateway", "redis", common.KindRelatesTo) != nil {
		t.Error("stale auto edge not retracted")
	}
}

func TestSyncEntityKeepsManualEdges(t *testing.T) {
	st := memory.New()
	entities := seedEntities(t, st, "Gateway", "Redis")
	s := New(st)
	ctx := context.Background()

	if err := s.Assert(ctx, testNamespace, "gateway", "redis", common.KindDependsOn, 1.0); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SyncEntity(ctx, testNamespace, entities[0], scanner.Result{}); err != nil {
		t.Fatal(err)
	}

	if findRel(t, st, "gateway", "redis", common.KindDependsOn) == nil {
		t.Error("manual edge removed by synthesis")
	}
	if findRel(t, st, "redis", "gateway", common.KindDependedOnBy) == nil {
		t.Error("manual inverse edge removed by synthesis")
	}
}

func TestAssertInverseKinds(t *testing.T) {
	st := memory.New()
	seedEntities(t, st, "Dog", "Animal")
	s := New(st)

	if err := s.Assert(context.Background(), testNamespace, "dog", "animal", common.KindIsA, 1.0); err != nil {
		t.Fatal(err)
	}

	forward := findRel(t, st, "dog", "animal", common.KindIsA)
	inverse := findRel(t, st, "animal", "dog", common.KindHasInstances)
	if forward == nil || inverse == nil {
		t.Fatal("expected IS_A and HAS_INSTANCES pair")
	}
	if forward.AutoDiscovered || inverse.AutoDiscovered {
		t.Error("asserted edges must be manual")
	}
}

func TestAssertValidation(t *testing.T) {
	st := memory.New()
	seedEntities(t, st, "Dog")
	s := New(st)
	ctx := context.Background()

	if err := s.Assert(ctx, testNamespace, "dog", "dog", common.KindIsA, 1.0); !common.IsValidation(err) {
		t.Errorf("self edge: got %v, want validation error", err)
	}
	if err := s.Assert(ctx, testNamespace, "dog", "cat", common.KindIsA, 1.0); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("unknown endpoint: got %v, want ErrNotFound", err)
	}
	if err := s.Assert(ctx, testNamespace, "dog", "cat", common.Kind("EATS"), 1.0); !common.IsValidation(err) {
		t.Errorf("unknown kind: got %v, want validation error", err)
	}
}

func TestRetractRemovesBothDirections(t *testing.T) {
	st := memory.New()
	seedEntities(t, st, "Dog", "Animal")
	s := New(st)
	ctx := context.Background()

	if err := s.Assert(ctx, testNamespace, "dog", "animal", common.KindIsA, 1.0); err != nil {
		t.Fatal(err)
	}
	if err := s.Retract(ctx, testNamespace, "dog", "animal", common.KindIsA); err != nil {
		t.Fatal(err)
	}
	if findRel(t, st, "dog", "animal", common.KindIsA) != nil {
		t.Error("forward edge survived retraction")
	}
	if findRel(t, st, "animal", "dog", common.KindHasInstances) != nil {
		t.Error("inverse edge survived retraction")
	}
}

func TestSyncEntityRecordsMissing(t *testing.T) {
	st := memory.New()
	entities := seedEntities(t, st, "Gateway")
	s := New(st)
	ctx := context.Background()

	scan := scanner.Result{Candidates: []string{"Billing Engine"}}
	sum, err := s.SyncEntity(ctx, testNamespace, entities[0], scan)
	if err != nil {
		t.Fatal(err)
	}
	if sum.MissingRecorded != 1 {
		t.Errorf("missing recorded = %d, want 1", sum.MissingRecorded)
	}

	missing, err := st.ListMissing(ctx, testNamespace)
	if err != nil {
		t.Fatal(err)
	}
	if len(missing) != 1 || missing[0].Name != "Billing Engine" {
		t.Fatalf("missing records = %+v", missing)
	}
	if len(missing[0].SourceIDs) != 1 || missing[0].SourceIDs[0] != "gateway" {
		t.Errorf("missing sources = %v, want [gateway]", missing[0].SourceIDs)
	}

	// Replaying the same scan attributes nothing new.
	sum, err = s.SyncEntity(ctx, testNamespace, entities[0], scan)
	if err != nil {
		t.Fatal(err)
	}
	if sum.MissingRecorded != 0 {
		t.Errorf("replay recorded = %d, want 0", sum.MissingRecorded)
	}
	missing, err = st.ListMissing(ctx, testNamespace)
	if err != nil {
		t.Fatal(err)
	}
	if len(missing) != 1 || missing[0].MentionCount != 1 {
		t.Errorf("after replay: %+v, want count 1", missing)
	}

	// A scan without the candidate withdraws the attribution.
	sum, err = s.SyncEntity(ctx, testNamespace, entities[0], scanner.Result{})
	if err != nil {
		t.Fatal(err)
	}
	missing, err = st.ListMissing(ctx, testNamespace)
	if err != nil {
		t.Fatal(err)
	}
	if len(missing) != 0 {
		t.Errorf("withdrawn attribution survived: %+v", missing)
	}
}
