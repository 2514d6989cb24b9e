// Package ablation removes entities and their dependency cascades from both
// the canonical text store and the graph projection. It is the only
// component allowed to delete from both stores, and only inside a validated
// plan.
//
// Execution runs in two ordered phases: text store first, projection second.
// A crash between phases leaves the projection stale (a dead entity that a
// drift check finds and a rebuild heals), never a projection missing an
// entity the text store still claims.
package ablation

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/cartonhq/carton/pkg/common"
	"github.com/cartonhq/carton/pkg/docstore"
	"github.com/cartonhq/carton/pkg/graphdb"
	"github.com/cartonhq/carton/pkg/logger"
	"github.com/cartonhq/carton/pkg/store"
)

// Mode selects whether a plan previews or mutates.
type Mode string

const (
	DryRun  Mode = "DRY_RUN"
	Execute Mode = "EXECUTE"
)

// Status is the plan lifecycle state.
type Status string

const (
	StatusPlanned    Status = "PLANNED"
	StatusValidated  Status = "VALIDATED"
	StatusExecuting  Status = "EXECUTING"
	StatusCommitted  Status = "COMMITTED"
	StatusRolledBack Status = "ROLLED_BACK"
	StatusFailed     Status = "FAILED"
)

// Plan is the computed cascade for one ablation. Plans are ephemeral:
// computed fresh per invocation and never reused, because the graph may
// have changed in between.
type Plan struct {
	Namespace string   `json:"namespace"`
	RootIDs   []string `json:"root_ids"`
	Cascade   bool     `json:"cascade"`
	Mode      Mode     `json:"mode"`
	Status    Status   `json:"status"`

	// CascadeIDs is every entity the plan removes, roots included.
	CascadeIDs []string `json:"cascade_ids"`
	// Relationships is every edge referencing a cascade member.
	Relationships []common.Relationship `json:"relationships"`
	// AffectedFiles lists the backing documents that will be deleted.
	AffectedFiles []string `json:"affected_files"`
	// PrunedMissing lists missing-name records whose source set becomes
	// empty once the cascade is removed.
	PrunedMissing []string `json:"pruned_missing"`
	// Warnings carries non-blocking validation findings.
	Warnings []string `json:"warnings,omitempty"`
}

// Result reports an execution. On failure the partial-completion state is
// recorded explicitly so the caller knows which store committed.
type Result struct {
	Plan                 *Plan  `json:"plan"`
	Status               Status `json:"status"`
	TextStoreCommitted   bool   `json:"text_store_committed"`
	ProjectionCommitted  bool   `json:"projection_committed"`
	EntitiesRemoved      int    `json:"entities_removed"`
	RelationshipsDropped int    `json:"relationships_dropped"`
}

// Config tunes validation behavior.
type Config struct {
	// BlockOnManualEdges turns the manual-edge-into-cascade warning into a
	// validation failure.
	BlockOnManualEdges bool
}

// Engine computes and executes ablation plans.
type Engine struct {
	store store.Store
	docs  docstore.DocumentStore
	graph graphdb.GraphBackend
	cfg   Config
}

func New(st store.Store, docs docstore.DocumentStore, graph graphdb.GraphBackend, cfg Config) *Engine {
	return &Engine{store: st, docs: docs, graph: graph, cfg: cfg}
}

// Plan computes and validates the cascade for the given roots. Absent roots
// are skipped: ablating what does not exist is an idempotent no-op. The
// returned plan is VALIDATED and ready for Execute, or an error carrying
// the conflicting entity ids.
func (e *Engine) Plan(ctx context.Context, namespace string, rootIDs []string, cascade bool, mode Mode) (*Plan, error) {
	plan := &Plan{
		Namespace: namespace,
		RootIDs:   rootIDs,
		Cascade:   cascade,
		Mode:      mode,
		Status:    StatusPlanned,
	}

	roots, err := e.existingRoots(ctx, namespace, rootIDs)
	if err != nil {
		return nil, err
	}
	if len(roots) == 0 {
		plan.Status = StatusValidated
		return plan, nil
	}

	cascadeIDs, err := e.expand(ctx, namespace, roots, cascade)
	if err != nil {
		return nil, err
	}
	plan.CascadeIDs = cascadeIDs

	plan.Relationships, err = e.store.ListRelationshipsTouching(ctx, namespace, cascadeIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list cascade relationships: %w", err)
	}

	for _, id := range cascadeIDs {
		plan.AffectedFiles = append(plan.AffectedFiles, fmt.Sprintf("%s/concepts/%s.md", namespace, id))
	}

	plan.PrunedMissing, err = e.missingPrunedBy(ctx, namespace, cascadeIDs)
	if err != nil {
		return nil, err
	}

	if err := e.validate(ctx, plan); err != nil {
		return nil, err
	}
	plan.Status = StatusValidated
	return plan, nil
}

func (e *Engine) existingRoots(ctx context.Context, namespace string, rootIDs []string) ([]string, error) {
	var roots []string
	seen := make(map[string]bool)
	for _, id := range rootIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		_, err := e.store.GetEntity(ctx, namespace, id)
		if errors.Is(err, common.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to resolve root %s: %w", id, err)
		}
		roots = append(roots, id)
	}
	return roots, nil
}

// expand computes the cascade closure. Without cascade the plan removes the
// roots only; with cascade it follows relationships breadth-first in both
// directions, terminating on cycles via the visited set.
func (e *Engine) expand(ctx context.Context, namespace string, roots []string, cascade bool) ([]string, error) {
	visited := make(map[string]bool)
	for _, id := range roots {
		visited[id] = true
	}
	if cascade {
		frontier := append([]string(nil), roots...)
		for len(frontier) > 0 {
			rels, err := e.store.ListRelationshipsTouching(ctx, namespace, frontier)
			if err != nil {
				return nil, fmt.Errorf("failed to expand cascade: %w", err)
			}
			var next []string
			for _, rel := range rels {
				for _, id := range []string{rel.SourceID, rel.TargetID} {
					if !visited[id] {
						visited[id] = true
						next = append(next, id)
					}
				}
			}
			frontier = next
		}
	}

	out := make([]string, 0, len(visited))
	for id := range visited {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (e *Engine) missingPrunedBy(ctx context.Context, namespace string, cascadeIDs []string) ([]string, error) {
	missing, err := e.store.ListMissing(ctx, namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to list missing records: %w", err)
	}
	removed := make(map[string]bool, len(cascadeIDs))
	for _, id := range cascadeIDs {
		removed[id] = true
	}

	var pruned []string
	for _, m := range missing {
		orphaned := true
		for _, src := range m.SourceIDs {
			if !removed[src] {
				orphaned = false
				break
			}
		}
		if orphaned && len(m.SourceIDs) > 0 {
			pruned = append(pruned, m.Name)
		}
	}
	sort.Strings(pruned)
	return pruned, nil
}

// validate checks the plan for conflicts. A pending duplicate pair touching
// the cascade blocks it: the pair must be resolved or dismissed first.
// Manual edges reaching into the cascade from outside warn by default and
// block when configured to.
func (e *Engine) validate(ctx context.Context, plan *Plan) error {
	inCascade := make(map[string]bool, len(plan.CascadeIDs))
	for _, id := range plan.CascadeIDs {
		inCascade[id] = true
	}

	pairs, err := e.store.ListPairsTouching(ctx, plan.Namespace, plan.CascadeIDs)
	if err != nil {
		return fmt.Errorf("failed to list duplicate pairs: %w", err)
	}
	var conflicted []string
	for _, pair := range pairs {
		if pair.Status != common.PairPending {
			continue
		}
		if inCascade[pair.EntityA] {
			conflicted = append(conflicted, pair.EntityA)
		}
		if inCascade[pair.EntityB] {
			conflicted = append(conflicted, pair.EntityB)
		}
	}
	if len(conflicted) > 0 {
		sort.Strings(conflicted)
		return common.NewValidationError("pending duplicate pairs reference the cascade; resolve or dismiss them first", conflicted)
	}

	var manualTargets []string
	for _, rel := range plan.Relationships {
		if rel.AutoDiscovered {
			continue
		}
		// A manual edge fully inside the cascade disappears with it; only
		// edges crossing the boundary lose an endpoint.
		if inCascade[rel.SourceID] && inCascade[rel.TargetID] {
			continue
		}
		if inCascade[rel.TargetID] {
			manualTargets = append(manualTargets, rel.TargetID)
		} else {
			manualTargets = append(manualTargets, rel.SourceID)
		}
	}
	if len(manualTargets) > 0 {
		sort.Strings(manualTargets)
		if e.cfg.BlockOnManualEdges {
			return common.NewValidationError("manually asserted relationships reference the cascade", manualTargets)
		}
		plan.Warnings = append(plan.Warnings,
			fmt.Sprintf("manually asserted relationships reference removed entities: %v", manualTargets))
	}
	return nil
}

// Execute commits a validated plan. DRY_RUN plans return without touching
// either store.
func (e *Engine) Execute(ctx context.Context, plan *Plan) (*Result, error) {
	result := &Result{Plan: plan, Status: plan.Status}

	if plan.Status != StatusValidated {
		return result, common.NewValidationError(
			fmt.Sprintf("plan in status %s cannot execute; only VALIDATED plans run", plan.Status), nil)
	}
	if plan.Mode == DryRun {
		result.Status = StatusValidated
		return result, nil
	}
	if len(plan.CascadeIDs) == 0 {
		plan.Status = StatusCommitted
		result.Status = StatusCommitted
		return result, nil
	}

	plan.Status = StatusExecuting
	result.Status = StatusExecuting

	// Canceled before any mutation: the plan is discarded with no side
	// effects rather than failed.
	if err := ctx.Err(); err != nil {
		plan.Status = StatusRolledBack
		result.Status = StatusRolledBack
		return result, err
	}

	if err := e.executeTextStore(ctx, plan, result); err != nil {
		plan.Status = StatusFailed
		result.Status = StatusFailed
		return result, err
	}
	result.TextStoreCommitted = true

	if err := e.graph.DeleteNodes(ctx, plan.Namespace, plan.CascadeIDs); err != nil {
		// Phase 2 failed after phase 1 committed: the projection is stale
		// and a drift check will surface the dead entities. No automatic
		// undo of the text-store deletion.
		plan.Status = StatusFailed
		result.Status = StatusFailed
		logger.Error("[Ablation] projection phase failed after text store committed",
			"namespace", plan.Namespace,
			"entities", len(plan.CascadeIDs),
			"error", err,
		)
		return result, fmt.Errorf("projection removal failed after text store committed: %w: %w", common.ErrConsistency, err)
	}
	result.ProjectionCommitted = true

	plan.Status = StatusCommitted
	result.Status = StatusCommitted
	result.EntitiesRemoved = len(plan.CascadeIDs)
	result.RelationshipsDropped = len(plan.Relationships)

	logger.Info("[Ablation] cascade committed",
		"namespace", plan.Namespace,
		"roots", len(plan.RootIDs),
		"entities", result.EntitiesRemoved,
		"relationships", result.RelationshipsDropped,
	)
	return result, nil
}

// executeTextStore is phase 1: documents, relationships, entities, missing
// records, duplicate pairs.
func (e *Engine) executeTextStore(ctx context.Context, plan *Plan, result *Result) error {
	for _, id := range plan.CascadeIDs {
		if err := e.docs.DeleteDocument(ctx, plan.Namespace, id); err != nil {
			return fmt.Errorf("failed to delete document for %s: %w", id, err)
		}
	}
	if err := e.store.DeleteRelationshipsTouching(ctx, plan.Namespace, plan.CascadeIDs); err != nil {
		return fmt.Errorf("failed to delete cascade relationships: %w", err)
	}
	if err := e.store.DeleteEntities(ctx, plan.Namespace, plan.CascadeIDs); err != nil {
		return fmt.Errorf("failed to delete cascade entities: %w", err)
	}
	if _, err := e.store.RemoveMissingSources(ctx, plan.Namespace, plan.CascadeIDs); err != nil {
		return fmt.Errorf("failed to prune missing records: %w", err)
	}
	if err := e.store.DeletePairsTouching(ctx, plan.Namespace, plan.CascadeIDs); err != nil {
		return fmt.Errorf("failed to delete duplicate pairs: %w", err)
	}
	return nil
}
