// Package orchestrator coordinates the scanning, synthesis, deduplication,
// projection and ablation components behind the public operations. Every
// mutating operation runs under the namespace lease; reads do not take it.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cartonhq/carton/pkg/ablation"
	"github.com/cartonhq/carton/pkg/common"
	"github.com/cartonhq/carton/pkg/dedupe"
	"github.com/cartonhq/carton/pkg/docstore"
	"github.com/cartonhq/carton/pkg/graphdb"
	"github.com/cartonhq/carton/pkg/logger"
	"github.com/cartonhq/carton/pkg/namespace"
	"github.com/cartonhq/carton/pkg/projector"
	"github.com/cartonhq/carton/pkg/scanner"
	"github.com/cartonhq/carton/pkg/store"
	"github.com/cartonhq/carton/pkg/synth"
	"github.com/cartonhq/carton/pkg/triage"
)

// Config tunes the orchestrator.
type Config struct {
	Scanner scanner.Config
	// DedupeThreshold is the minimum similarity reported as a duplicate.
	DedupeThreshold float64
	// LeaseTTL bounds how long a single mutating operation may hold a
	// namespace.
	LeaseTTL time.Duration
	// BlockOnManualEdges makes ablation refuse cascades that manual edges
	// point into, instead of warning.
	BlockOnManualEdges bool
	// ScanParallelism bounds concurrent scans in full-namespace passes.
	ScanParallelism int
	// SuggestionCutoff is the minimum name similarity for a missing-name
	// suggestion.
	SuggestionCutoff float64
}

func DefaultConfig() Config {
	return Config{
		Scanner:          scanner.DefaultConfig(),
		DedupeThreshold:  dedupe.DefaultThreshold,
		LeaseTTL:         5 * time.Minute,
		ScanParallelism:  8,
		SuggestionCutoff: 0.6,
	}
}

// Orchestrator is the single entry point for namespace operations.
type Orchestrator struct {
	cfg    Config
	store  store.Store
	docs   docstore.DocumentStore
	graph  graphdb.GraphBackend
	locker namespace.Locker

	synth     *synth.Synthesizer
	detector  *dedupe.Detector
	projector *projector.Projector
	ablation  *ablation.Engine
	policy    triage.Policy
}

// New wires the component graph. policy may be nil, which disables
// automatic missing-name triage.
func New(cfg Config, st store.Store, docs docstore.DocumentStore, graph graphdb.GraphBackend, locker namespace.Locker, policy triage.Policy) *Orchestrator {
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 5 * time.Minute
	}
	if cfg.ScanParallelism <= 0 {
		cfg.ScanParallelism = 8
	}
	if cfg.SuggestionCutoff <= 0 {
		cfg.SuggestionCutoff = 0.6
	}
	return &Orchestrator{
		cfg:       cfg,
		store:     st,
		docs:      docs,
		graph:     graph,
		locker:    locker,
		synth:     synth.New(st),
		detector:  dedupe.New(cfg.DedupeThreshold),
		projector: projector.New(st, graph),
		ablation:  ablation.New(st, docs, graph, ablation.Config{BlockOnManualEdges: cfg.BlockOnManualEdges}),
		policy:    policy,
	}
}

func (o *Orchestrator) withLease(ctx context.Context, ns string, fn func(ctx context.Context) error) error {
	return namespace.WithLease(ctx, o.locker, ns, o.cfg.LeaseTTL, fn)
}

// EnsureNamespace registers a namespace, idempotently.
func (o *Orchestrator) EnsureNamespace(ctx context.Context, name string) (common.Namespace, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return common.Namespace{}, common.NewValidationError("namespace name is empty", nil)
	}
	return o.store.EnsureNamespace(ctx, name)
}

// ListNamespaces returns every registered namespace.
func (o *Orchestrator) ListNamespaces(ctx context.Context) ([]common.Namespace, error) {
	return o.store.ListNamespaces(ctx)
}

// GetEntity reads one entity.
func (o *Orchestrator) GetEntity(ctx context.Context, ns, id string) (*common.Entity, error) {
	return o.store.GetEntity(ctx, ns, id)
}

// ListEntities reads the entity set of a namespace.
func (o *Orchestrator) ListEntities(ctx context.Context, ns string) ([]common.Entity, error) {
	return o.store.ListEntities(ctx, ns)
}

// ListRelationships reads the edge set of a namespace.
func (o *Orchestrator) ListRelationships(ctx context.Context, ns string) ([]common.Relationship, error) {
	return o.store.ListRelationships(ctx, ns)
}

// UpsertEntity creates or updates an entity from its name and description,
// re-links it against the namespace, and patches the projection. Entities
// that previously recorded the name as missing are re-linked too.
func (o *Orchestrator) UpsertEntity(ctx context.Context, ns, name, description string) (*common.Entity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, common.NewValidationError("entity name is empty", nil)
	}
	id := common.EntityID(name)
	if id == "" {
		return nil, common.NewValidationError(fmt.Sprintf("entity name %q normalizes to nothing", name), nil)
	}

	var result *common.Entity
	err := o.withLease(ctx, ns, func(ctx context.Context) error {
		if _, err := o.store.EnsureNamespace(ctx, ns); err != nil {
			return err
		}

		now := time.Now().UTC()
		entity := common.Entity{
			ID:            id,
			Namespace:     ns,
			CanonicalName: common.CanonicalName(name),
			DisplayName:   name,
			Description:   description,
			ContentHash:   common.ContentHash(description),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if prev, err := o.store.GetEntity(ctx, ns, id); err == nil {
			entity.CreatedAt = prev.CreatedAt
		}

		if err := o.store.UpsertEntity(ctx, entity); err != nil {
			return fmt.Errorf("failed to upsert entity: %w", err)
		}
		if err := o.docs.WriteDocument(ctx, ns, id, []byte(description)); err != nil {
			return fmt.Errorf("failed to write entity document: %w", err)
		}

		// The name is no longer missing. Entities that recorded it get
		// re-linked so their mentions become edges.
		relink, err := o.resolveMissingName(ctx, ns, entity)
		if err != nil {
			return err
		}

		catalog, entities, err := o.buildCatalog(ctx, ns)
		if err != nil {
			return err
		}
		byID := make(map[string]common.Entity, len(entities))
		for _, e := range entities {
			byID[e.ID] = e
		}

		var sum synth.Summary
		targets := append([]string{id}, relink...)
		seen := make(map[string]bool)
		for _, targetID := range targets {
			if seen[targetID] {
				continue
			}
			seen[targetID] = true
			target, ok := byID[targetID]
			if !ok {
				continue
			}
			scan := catalog.Scan(target.ID, target.Description)
			s, err := o.synth.SyncEntity(ctx, ns, target, scan)
			if err != nil {
				return err
			}
			sum.Merge(s)
		}

		if err := o.patchProjection(ctx, ns, []common.Entity{entity}, sum); err != nil {
			return err
		}

		result = &entity
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// resolveMissingName removes missing records satisfied by the new entity
// and returns the ids of entities that should be re-linked.
func (o *Orchestrator) resolveMissingName(ctx context.Context, ns string, entity common.Entity) ([]string, error) {
	missing, err := o.store.ListMissing(ctx, ns)
	if err != nil {
		return nil, fmt.Errorf("failed to list missing records: %w", err)
	}
	var relink []string
	for _, m := range missing {
		if common.EntityID(m.Name) != entity.ID {
			continue
		}
		relink = append(relink, m.SourceIDs...)
		if err := o.store.DeleteMissing(ctx, ns, m.Name); err != nil {
			return nil, fmt.Errorf("failed to delete missing record %q: %w", m.Name, err)
		}
	}
	return relink, nil
}

func (o *Orchestrator) buildCatalog(ctx context.Context, ns string) (*scanner.Catalog, []common.Entity, error) {
	entities, err := o.store.ListEntities(ctx, ns)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list entities: %w", err)
	}
	blacklist, err := o.store.ListBlacklist(ctx, ns)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list blacklist: %w", err)
	}
	return scanner.NewCatalog(o.cfg.Scanner, entities, blacklist), entities, nil
}

func (o *Orchestrator) patchProjection(ctx context.Context, ns string, entities []common.Entity, sum synth.Summary) error {
	if err := o.projector.UpsertEntities(ctx, ns, entities); err != nil {
		return fmt.Errorf("failed to project entities: %w", err)
	}
	if err := o.projector.UpsertRelationships(ctx, ns, sum.AddedEdges); err != nil {
		return fmt.Errorf("failed to project added edges: %w", err)
	}
	if err := o.projector.RemoveRelationships(ctx, ns, sum.RetractedEdges); err != nil {
		return fmt.Errorf("failed to project retracted edges: %w", err)
	}
	return nil
}

// SyncNamespace re-scans every entity description and reconciles the full
// auto-discovered edge set. Scans run in parallel; the resulting mutations
// are applied serially by the lease holder.
func (o *Orchestrator) SyncNamespace(ctx context.Context, ns string) (synth.Summary, error) {
	var sum synth.Summary
	err := o.withLease(ctx, ns, func(ctx context.Context) error {
		catalog, entities, err := o.buildCatalog(ctx, ns)
		if err != nil {
			return err
		}

		scans := make([]scanner.Result, len(entities))
		g, scanCtx := errgroup.WithContext(ctx)
		g.SetLimit(o.cfg.ScanParallelism)
		for i, e := range entities {
			g.Go(func() error {
				if err := scanCtx.Err(); err != nil {
					return err
				}
				scans[i] = catalog.Scan(e.ID, e.Description)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		for i, e := range entities {
			s, err := o.synth.SyncEntity(ctx, ns, e, scans[i])
			if err != nil {
				return err
			}
			sum.Merge(s)
		}

		if err := o.patchProjection(ctx, ns, entities, sum); err != nil {
			return err
		}

		logger.Info("[Orchestrator] namespace synced",
			"namespace", ns,
			"entities", len(entities),
			"added", sum.Added,
			"retracted", sum.Retracted,
			"missing", sum.MissingRecorded,
		)
		return nil
	})
	return sum, err
}

// SyncEntity re-scans one entity description and reconciles its
// auto-discovered outbound edges and missing records.
func (o *Orchestrator) SyncEntity(ctx context.Context, ns, id string) (synth.Summary, error) {
	var sum synth.Summary
	err := o.withLease(ctx, ns, func(ctx context.Context) error {
		entity, err := o.store.GetEntity(ctx, ns, id)
		if err != nil {
			return err
		}
		catalog, _, err := o.buildCatalog(ctx, ns)
		if err != nil {
			return err
		}
		scan := catalog.Scan(entity.ID, entity.Description)
		sum, err = o.synth.SyncEntity(ctx, ns, *entity, scan)
		if err != nil {
			return err
		}
		return o.patchProjection(ctx, ns, []common.Entity{*entity}, sum)
	})
	return sum, err
}

// AssertRelationship records a manual edge (and its inverse) and patches
// the projection.
func (o *Orchestrator) AssertRelationship(ctx context.Context, ns, sourceID, targetID string, kind common.Kind) error {
	return o.withLease(ctx, ns, func(ctx context.Context) error {
		if err := o.synth.Assert(ctx, ns, sourceID, targetID, kind, 1.0); err != nil {
			return err
		}
		rels, err := o.store.ListRelationshipsTouching(ctx, ns, []string{sourceID, targetID})
		if err != nil {
			return err
		}
		return o.projector.UpsertRelationships(ctx, ns, rels)
	})
}

// RetractRelationship removes an edge (and its inverse) from both stores.
func (o *Orchestrator) RetractRelationship(ctx context.Context, ns, sourceID, targetID string, kind common.Kind) error {
	return o.withLease(ctx, ns, func(ctx context.Context) error {
		if err := o.synth.Retract(ctx, ns, sourceID, targetID, kind); err != nil {
			return err
		}
		removed := []common.Relationship{{Namespace: ns, SourceID: sourceID, TargetID: targetID, Kind: kind}}
		if inv, ok := kind.Inverse(); ok {
			removed = append(removed, common.Relationship{Namespace: ns, SourceID: targetID, TargetID: sourceID, Kind: inv})
		}
		return o.projector.RemoveRelationships(ctx, ns, removed)
	})
}

// FindDuplicates scans the namespace for near-duplicate entities and
// records pending pairs. Resolved pairs are never reopened.
func (o *Orchestrator) FindDuplicates(ctx context.Context, ns string) ([]dedupe.Candidate, error) {
	var candidates []dedupe.Candidate
	err := o.withLease(ctx, ns, func(ctx context.Context) error {
		entities, err := o.store.ListEntities(ctx, ns)
		if err != nil {
			return err
		}
		candidates, err = o.detector.FindDuplicates(ctx, entities)
		if err != nil {
			// Partial results from a canceled pass are still recorded.
			logger.Warn("[Orchestrator] duplicate scan interrupted",
				"namespace", ns, "partial", len(candidates), "error", err)
		}
		for _, c := range candidates {
			pairErr := o.store.UpsertPendingPair(ctx, common.DuplicatePair{
				Namespace:  ns,
				EntityA:    c.EntityA,
				EntityB:    c.EntityB,
				Similarity: c.Similarity,
				Status:     common.PairPending,
				CreatedAt:  time.Now().UTC(),
			})
			if pairErr != nil {
				return fmt.Errorf("failed to record pair (%s, %s): %w", c.EntityA, c.EntityB, pairErr)
			}
		}
		return err
	})
	return candidates, err
}

// ListPairs reads duplicate pairs by status.
func (o *Orchestrator) ListPairs(ctx context.Context, ns string, status common.PairStatus) ([]common.DuplicatePair, error) {
	return o.store.ListPairs(ctx, ns, status)
}

// ResolvePair marks a pending pair MERGED or DISMISSED. Merging does not
// delete anything by itself; the loser is removed through ablation.
func (o *Orchestrator) ResolvePair(ctx context.Context, ns, entityA, entityB string, status common.PairStatus) error {
	if status != common.PairMerged && status != common.PairDismissed {
		return common.NewValidationError(fmt.Sprintf("pair resolution %q is not MERGED or DISMISSED", status), nil)
	}
	return o.withLease(ctx, ns, func(ctx context.Context) error {
		return o.store.SetPairStatus(ctx, ns, entityA, entityB, status)
	})
}

// PlanAblation computes and validates the cascade without mutating
// anything.
func (o *Orchestrator) PlanAblation(ctx context.Context, ns string, rootIDs []string, cascade bool) (*ablation.Plan, error) {
	return o.ablation.Plan(ctx, ns, rootIDs, cascade, ablation.DryRun)
}

// ExecuteAblation plans and executes a cascade removal under the namespace
// lease. The plan is computed fresh: plans never survive across calls.
func (o *Orchestrator) ExecuteAblation(ctx context.Context, ns string, rootIDs []string, cascade bool) (*ablation.Result, error) {
	var result *ablation.Result
	err := o.withLease(ctx, ns, func(ctx context.Context) error {
		plan, err := o.ablation.Plan(ctx, ns, rootIDs, cascade, ablation.Execute)
		if err != nil {
			return err
		}
		result, err = o.ablation.Execute(ctx, plan)
		return err
	})
	return result, err
}

// RebuildProjection atomically rebuilds the namespace projection from
// canonical state.
func (o *Orchestrator) RebuildProjection(ctx context.Context, ns string) (projector.RebuildReport, error) {
	var report projector.RebuildReport
	err := o.withLease(ctx, ns, func(ctx context.Context) error {
		var err error
		report, err = o.projector.Rebuild(ctx, ns)
		return err
	})
	return report, err
}

// CheckDrift compares the projection against canonical state. Read-only;
// takes no lease.
func (o *Orchestrator) CheckDrift(ctx context.Context, ns string) (projector.Drift, error) {
	return o.projector.CheckDrift(ctx, ns)
}

// QueryNeighborhood reads the subgraph around an entity. Depth is clamped
// to [1, 3].
func (o *Orchestrator) QueryNeighborhood(ctx context.Context, ns, rootID string, depth int) (*graphdb.Neighborhood, error) {
	if depth < 1 {
		depth = 1
	}
	if depth > 3 {
		depth = 3
	}
	return o.graph.Neighborhood(ctx, ns, rootID, depth)
}

// ListMissing reads missing-name records, each annotated with up to three
// similar existing canonical names.
func (o *Orchestrator) ListMissing(ctx context.Context, ns string) ([]common.MissingEntity, error) {
	missing, err := o.store.ListMissing(ctx, ns)
	if err != nil {
		return nil, err
	}
	entities, err := o.store.ListEntities(ctx, ns)
	if err != nil {
		return nil, err
	}
	for i := range missing {
		missing[i].Suggestions = o.suggestions(missing[i].Name, entities)
	}
	return missing, nil
}

func (o *Orchestrator) suggestions(name string, entities []common.Entity) []string {
	type scored struct {
		name  string
		score float64
	}
	var ranked []scored
	for _, e := range entities {
		score := scanner.Similarity(name, strings.ReplaceAll(e.CanonicalName, "_", " "))
		if score >= o.cfg.SuggestionCutoff {
			ranked = append(ranked, scored{name: e.CanonicalName, score: score})
		}
	}
	for i := 1; i < len(ranked); i++ {
		for j := i; j > 0 && ranked[j].score > ranked[j-1].score; j-- {
			ranked[j], ranked[j-1] = ranked[j-1], ranked[j]
		}
	}
	var out []string
	for i := 0; i < len(ranked) && i < 3; i++ {
		out = append(out, ranked[i].name)
	}
	return out
}

// Blacklist suppresses a name from missing tracking and drops any existing
// record of it.
func (o *Orchestrator) Blacklist(ctx context.Context, ns, name, reason string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return common.NewValidationError("blacklist name is empty", nil)
	}
	return o.withLease(ctx, ns, func(ctx context.Context) error {
		err := o.store.AddBlacklist(ctx, common.BlacklistEntry{
			Namespace: ns,
			Name:      name,
			Reason:    reason,
			AddedAt:   time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		return o.store.DeleteMissing(ctx, ns, name)
	})
}

// Unblacklist removes a suppression.
func (o *Orchestrator) Unblacklist(ctx context.Context, ns, name string) error {
	return o.withLease(ctx, ns, func(ctx context.Context) error {
		return o.store.RemoveBlacklist(ctx, ns, name)
	})
}

// ListBlacklist reads the suppression list.
func (o *Orchestrator) ListBlacklist(ctx context.Context, ns string) ([]common.BlacklistEntry, error) {
	return o.store.ListBlacklist(ctx, ns)
}

// TriageReport summarizes one PromoteMissing pass.
type TriageReport struct {
	Blacklisted int `json:"blacklisted"`
	Promoted    int `json:"promoted"`
	Skipped     int `json:"skipped"`
}

// PromoteMissing runs the triage policy over every missing record and
// applies the outcomes: blacklist suppressions and entity promotions.
// Promotion reuses the regular upsert path so new entities are linked and
// projected immediately.
func (o *Orchestrator) PromoteMissing(ctx context.Context, ns string) (TriageReport, error) {
	var report TriageReport
	if o.policy == nil {
		return report, common.NewValidationError("no triage policy configured", nil)
	}

	missing, err := o.store.ListMissing(ctx, ns)
	if err != nil {
		return report, err
	}

	for _, m := range missing {
		outcome, err := o.policy.Decide(ctx, ns, m)
		if err != nil {
			logger.Warn("[Orchestrator] triage failed for name",
				"namespace", ns, "name", m.Name, "error", err)
			report.Skipped++
			continue
		}

		switch outcome.Decision {
		case triage.DecisionBlacklist:
			if err := o.Blacklist(ctx, ns, m.Name, outcome.Reason); err != nil {
				return report, err
			}
			report.Blacklisted++
		case triage.DecisionSimpleDefine:
			if _, err := o.UpsertEntity(ctx, ns, m.Name, outcome.Description); err != nil {
				return report, err
			}
			report.Promoted++
		case triage.DecisionResearchDefine:
			stub := outcome.Description
			if stub == "" {
				stub = fmt.Sprintf("%s. Definition pending research.", m.Name)
			}
			if _, err := o.UpsertEntity(ctx, ns, m.Name, stub); err != nil {
				return report, err
			}
			report.Promoted++
		}
	}

	logger.Info("[Orchestrator] missing names triaged",
		"namespace", ns,
		"blacklisted", report.Blacklisted,
		"promoted", report.Promoted,
		"skipped", report.Skipped,
	)
	return report, nil
}
