package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cartonhq/carton/pkg/common"
	docmem "github.com/cartonhq/carton/pkg/docstore/memory"
	graphmem "github.com/cartonhq/carton/pkg/graphdb/memory"
	"github.com/cartonhq/carton/pkg/namespace"
	storemem "github.com/cartonhq/carton/pkg/store/memory"
	"github.com/cartonhq/carton/pkg/triage"
)

const testNamespace = "test"

type fixture struct {
	store  *storemem.Store
	docs   *docmem.DocumentStore
	graph  *graphmem.Backend
	locker *namespace.MemLocker
	orch   *Orchestrator
}

func newFixture(policy triage.Policy) *fixture {
	f := &fixture{
		store:  storemem.New(),
		docs:   docmem.New(),
		graph:  graphmem.New(),
		locker: namespace.NewMemLocker(),
	}
	cfg := DefaultConfig()
	cfg.DedupeThreshold = 0.8
	f.orch = New(cfg, f.store, f.docs, f.graph, f.locker, policy)
	return f
}

func TestUpsertEntityLinksAndProjects(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	if _, err := f.orch.UpsertEntity(ctx, testNamespace, "Redis", "In-memory store."); err != nil {
		t.Fatal(err)
	}
	gateway, err := f.orch.UpsertEntity(ctx, testNamespace, "API Gateway", "Routes requests and caches sessions in Redis.")
	if err != nil {
		t.Fatal(err)
	}
	if gateway.ID != "api_gateway" {
		t.Errorf("id = %s, want api_gateway", gateway.ID)
	}

	rels, err := f.orch.ListRelationships(ctx, testNamespace)
	if err != nil {
		t.Fatal(err)
	}
	var forward, inverse bool
	for _, r := range rels {
		if r.SourceID == "api_gateway" && r.TargetID == "redis" && r.Kind == common.KindRelatesTo {
			forward = true
		}
		if r.SourceID == "redis" && r.TargetID == "api_gateway" && r.Kind == common.KindRelatesTo {
			inverse = true
		}
	}
	if !forward || !inverse {
		t.Errorf("auto edges missing: forward=%v inverse=%v rels=%v", forward, inverse, rels)
	}

	body, err := f.docs.ReadDocument(ctx, testNamespace, "api_gateway")
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != "Routes requests and caches sessions in Redis." {
		t.Errorf("document body = %q", body)
	}

	drift, err := f.orch.CheckDrift(ctx, testNamespace)
	if err != nil {
		t.Fatal(err)
	}
	if !drift.InSync {
		t.Errorf("projection drifted after upserts: %+v", drift)
	}
}

func TestUpsertEntityResolvesMissingName(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	if _, err := f.orch.UpsertEntity(ctx, testNamespace, "API Gateway", "Delegates invoices to the Billing Engine."); err != nil {
		t.Fatal(err)
	}

	missing, err := f.orch.ListMissing(ctx, testNamespace)
	if err != nil {
		t.Fatal(err)
	}
	if len(missing) != 1 || missing[0].Name != "Billing Engine" {
		t.Fatalf("missing = %+v, want Billing Engine", missing)
	}

	if _, err := f.orch.UpsertEntity(ctx, testNamespace, "Billing Engine", "Computes invoices."); err != nil {
		t.Fatal(err)
	}

	missing, err = f.orch.ListMissing(ctx, testNamespace)
	if err != nil {
		t.Fatal(err)
	}
	if len(missing) != 0 {
		t.Errorf("missing record survived promotion: %+v", missing)
	}

	rels, err := f.store.ListRelationshipsTouching(ctx, testNamespace, []string{"billing_engine"})
	if err != nil {
		t.Fatal(err)
	}
	var linked bool
	for _, r := range rels {
		if r.SourceID == "api_gateway" && r.TargetID == "billing_engine" {
			linked = true
		}
	}
	if !linked {
		t.Errorf("mentioning entity not re-linked after promotion: %v", rels)
	}
}

func TestSyncNamespaceRetractsStaleEdges(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	if _, err := f.orch.UpsertEntity(ctx, testNamespace, "Redis", "In-memory store."); err != nil {
		t.Fatal(err)
	}
	if _, err := f.orch.UpsertEntity(ctx, testNamespace, "API Gateway", "Caches sessions in Redis."); err != nil {
		t.Fatal(err)
	}
	// Description rewritten: the Redis mention is gone.
	if _, err := f.orch.UpsertEntity(ctx, testNamespace, "API Gateway", "Routes requests to upstream services."); err != nil {
		t.Fatal(err)
	}
	sum, err := f.orch.SyncNamespace(ctx, testNamespace)
	if err != nil {
		t.Fatal(err)
	}

	rels, err := f.orch.ListRelationships(ctx, testNamespace)
	if err != nil {
		t.Fatal(err)
	}
	if len(rels) != 0 {
		t.Errorf("stale edges survived: %v (sync summary %+v)", rels, sum)
	}

	// A second sync is a no-op.
	sum, err = f.orch.SyncNamespace(ctx, testNamespace)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Added != 0 || sum.Retracted != 0 {
		t.Errorf("second sync changed state: %+v", sum)
	}
}

func TestSyncKeepsMentionCountsStable(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	if _, err := f.orch.UpsertEntity(ctx, testNamespace, "API Gateway", "Writes analytics rows into Clickhouse."); err != nil {
		t.Fatal(err)
	}

	missing, err := f.orch.ListMissing(ctx, testNamespace)
	if err != nil {
		t.Fatal(err)
	}
	if len(missing) != 1 || missing[0].Name != "Clickhouse" {
		t.Fatalf("missing = %+v, want Clickhouse", missing)
	}
	if missing[0].MentionCount != 1 {
		t.Errorf("count = %d, want 1", missing[0].MentionCount)
	}
	if missing[0].FirstSeenAt.IsZero() {
		t.Error("FirstSeenAt not stamped on first sight")
	}

	// Replaying unchanged content must not inflate the count.
	for i := 0; i < 2; i++ {
		if _, err := f.orch.SyncNamespace(ctx, testNamespace); err != nil {
			t.Fatal(err)
		}
	}
	missing, err = f.orch.ListMissing(ctx, testNamespace)
	if err != nil {
		t.Fatal(err)
	}
	if len(missing) != 1 || missing[0].MentionCount != 1 {
		t.Errorf("after two no-op syncs: %+v, want count 1", missing)
	}

	// Rewriting the description away drops the attribution and the record.
	if _, err := f.orch.UpsertEntity(ctx, testNamespace, "API Gateway", "Serves requests only."); err != nil {
		t.Fatal(err)
	}
	missing, err = f.orch.ListMissing(ctx, testNamespace)
	if err != nil {
		t.Fatal(err)
	}
	if len(missing) != 0 {
		t.Errorf("stale attribution survived rewrite: %+v", missing)
	}
}

func TestSyncEntityReconcilesOneEntity(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	if _, err := f.orch.UpsertEntity(ctx, testNamespace, "Redis", "In-memory store."); err != nil {
		t.Fatal(err)
	}

	// Written straight to the store, so no linking has happened yet.
	now := time.Now().UTC()
	desc := "Drains jobs and stores progress in Redis."
	err := f.store.UpsertEntity(ctx, common.Entity{
		ID:            "worker",
		Namespace:     testNamespace,
		CanonicalName: "worker",
		DisplayName:   "Worker",
		Description:   desc,
		ContentHash:   common.ContentHash(desc),
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		t.Fatal(err)
	}

	sum, err := f.orch.SyncEntity(ctx, testNamespace, "worker")
	if err != nil {
		t.Fatal(err)
	}
	if sum.Added == 0 {
		t.Fatalf("no edges added: %+v", sum)
	}

	rels, err := f.store.ListRelationshipsTouching(ctx, testNamespace, []string{"worker"})
	if err != nil {
		t.Fatal(err)
	}
	var linked bool
	for _, r := range rels {
		if r.SourceID == "worker" && r.TargetID == "redis" {
			linked = true
		}
	}
	if !linked {
		t.Errorf("worker not linked to redis: %v", rels)
	}

	if _, err := f.orch.SyncEntity(ctx, testNamespace, "ghost"); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown entity, got %v", err)
	}
}

func TestFindDuplicatesRecordsPendingPairs(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	shared := "Validates credentials and issues signed tokens for API access."
	if _, err := f.orch.UpsertEntity(ctx, testNamespace, "Auth Service", shared); err != nil {
		t.Fatal(err)
	}
	if _, err := f.orch.UpsertEntity(ctx, testNamespace, "Auth Services", shared); err != nil {
		t.Fatal(err)
	}

	candidates, err := f.orch.FindDuplicates(ctx, testNamespace)
	if err != nil {
		t.Fatal(err)
	}
	if len(candidates) != 1 {
		t.Fatalf("candidates = %+v, want exactly one", candidates)
	}

	pairs, err := f.orch.ListPairs(ctx, testNamespace, common.PairPending)
	if err != nil {
		t.Fatal(err)
	}
	if len(pairs) != 1 || pairs[0].EntityA != "auth_service" || pairs[0].EntityB != "auth_services" {
		t.Fatalf("pending pairs = %+v", pairs)
	}

	// Dismissed pairs stay resolved across a re-scan.
	if err := f.orch.ResolvePair(ctx, testNamespace, "auth_services", "auth_service", common.PairDismissed); err != nil {
		t.Fatal(err)
	}
	if _, err := f.orch.FindDuplicates(ctx, testNamespace); err != nil {
		t.Fatal(err)
	}
	pairs, err = f.orch.ListPairs(ctx, testNamespace, common.PairPending)
	if err != nil {
		t.Fatal(err)
	}
	if len(pairs) != 0 {
		t.Errorf("dismissed pair reopened: %+v", pairs)
	}
}

func TestPendingPairBlocksAblation(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	shared := "Validates credentials and issues signed tokens for API access."
	if _, err := f.orch.UpsertEntity(ctx, testNamespace, "Auth Service", shared); err != nil {
		t.Fatal(err)
	}
	if _, err := f.orch.UpsertEntity(ctx, testNamespace, "Auth Services", shared); err != nil {
		t.Fatal(err)
	}
	if _, err := f.orch.FindDuplicates(ctx, testNamespace); err != nil {
		t.Fatal(err)
	}

	_, err := f.orch.ExecuteAblation(ctx, testNamespace, []string{"auth_services"}, false)
	if !common.IsValidation(err) {
		t.Fatalf("got %v, want validation error while pair pending", err)
	}

	// Merge the pair, then ablate the loser.
	if err := f.orch.ResolvePair(ctx, testNamespace, "auth_service", "auth_services", common.PairMerged); err != nil {
		t.Fatal(err)
	}
	result, err := f.orch.ExecuteAblation(ctx, testNamespace, []string{"auth_services"}, false)
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != "COMMITTED" {
		t.Errorf("status = %s, want COMMITTED", result.Status)
	}
	if _, err := f.orch.GetEntity(ctx, testNamespace, "auth_services"); !errors.Is(err, common.ErrNotFound) {
		t.Error("merged loser still exists")
	}

	drift, err := f.orch.CheckDrift(ctx, testNamespace)
	if err != nil {
		t.Fatal(err)
	}
	if !drift.InSync {
		t.Errorf("projection drifted after ablation: %+v", drift)
	}
}

func TestQueryNeighborhoodDepthClamp(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	if _, err := f.orch.UpsertEntity(ctx, testNamespace, "Redis", "In-memory store."); err != nil {
		t.Fatal(err)
	}
	if _, err := f.orch.UpsertEntity(ctx, testNamespace, "API Gateway", "Caches sessions in Redis."); err != nil {
		t.Fatal(err)
	}

	hood, err := f.orch.QueryNeighborhood(ctx, testNamespace, "api_gateway", 99)
	if err != nil {
		t.Fatal(err)
	}
	if hood.Depth != 3 {
		t.Errorf("depth = %d, want clamped to 3", hood.Depth)
	}
	if len(hood.Nodes) != 2 {
		t.Errorf("nodes = %d, want 2", len(hood.Nodes))
	}

	if _, err := f.orch.QueryNeighborhood(ctx, testNamespace, "ghost", 1); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("unknown root: got %v, want ErrNotFound", err)
	}
}

func TestMissingSuggestions(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	if _, err := f.orch.UpsertEntity(ctx, testNamespace, "Billing Engine", "Computes invoices."); err != nil {
		t.Fatal(err)
	}
	if _, err := f.orch.UpsertEntity(ctx, testNamespace, "API Gateway", "Talks to the Biling Engines subsystem."); err != nil {
		t.Fatal(err)
	}

	missing, err := f.orch.ListMissing(ctx, testNamespace)
	if err != nil {
		t.Fatal(err)
	}
	if len(missing) == 0 {
		t.Fatal("expected a missing record")
	}
	found := false
	for _, s := range missing[0].Suggestions {
		if s == "billing_engine" {
			found = true
		}
	}
	if !found {
		t.Errorf("suggestions = %v, want billing_engine included", missing[0].Suggestions)
	}
}

func TestBlacklistSuppressesTracking(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	if _, err := f.orch.UpsertEntity(ctx, testNamespace, "API Gateway", "Forwards events to Kafka."); err != nil {
		t.Fatal(err)
	}
	if err := f.orch.Blacklist(ctx, testNamespace, "Kafka", "external product"); err != nil {
		t.Fatal(err)
	}

	missing, err := f.orch.ListMissing(ctx, testNamespace)
	if err != nil {
		t.Fatal(err)
	}
	if len(missing) != 0 {
		t.Errorf("blacklisted name still tracked: %+v", missing)
	}

	// Re-scan must not resurrect it.
	if _, err := f.orch.SyncNamespace(ctx, testNamespace); err != nil {
		t.Fatal(err)
	}
	missing, err = f.orch.ListMissing(ctx, testNamespace)
	if err != nil {
		t.Fatal(err)
	}
	if len(missing) != 0 {
		t.Errorf("blacklisted name resurrected by sync: %+v", missing)
	}
}

func TestPromoteMissingWithRulePolicy(t *testing.T) {
	f := newFixture(triage.NewRulePolicy())
	ctx := context.Background()

	// Three entities mention the same unknown name, one mentions another
	// only once.
	if _, err := f.orch.UpsertEntity(ctx, testNamespace, "API Gateway", "Delegates to the Billing Engine."); err != nil {
		t.Fatal(err)
	}
	if _, err := f.orch.UpsertEntity(ctx, testNamespace, "Reports", "Reads totals from the Billing Engine."); err != nil {
		t.Fatal(err)
	}
	if _, err := f.orch.UpsertEntity(ctx, testNamespace, "Dunning", "Retries charges via the Billing Engine. Uses Sendgrid once."); err != nil {
		t.Fatal(err)
	}

	report, err := f.orch.PromoteMissing(ctx, testNamespace)
	if err != nil {
		t.Fatal(err)
	}
	if report.Promoted != 1 {
		t.Errorf("promoted = %d, want 1 (Billing Engine)", report.Promoted)
	}
	if report.Blacklisted != 1 {
		t.Errorf("blacklisted = %d, want 1 (Sendgrid)", report.Blacklisted)
	}

	if _, err := f.orch.GetEntity(ctx, testNamespace, "billing_engine"); err != nil {
		t.Errorf("promoted entity missing: %v", err)
	}
}

func TestSingleWriterPerNamespace(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	lease, err := f.locker.Acquire(ctx, testNamespace, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	defer lease.Release(ctx)

	if _, err := f.orch.UpsertEntity(ctx, testNamespace, "Redis", "In-memory store."); !errors.Is(err, common.ErrLockHeld) {
		t.Errorf("got %v, want ErrLockHeld while lease taken", err)
	}

	// A different namespace is unaffected.
	if _, err := f.orch.UpsertEntity(ctx, "other", "Redis", "In-memory store."); err != nil {
		t.Errorf("other namespace blocked: %v", err)
	}
}
