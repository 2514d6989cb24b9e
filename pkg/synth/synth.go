// Package synth turns scan results into relationship state: it adds
// auto-discovered edges for current mentions, retracts auto edges whose
// supporting mention disappeared, and records missing names. Manual edges
// are never touched by synthesis.
//
// Every synthesized edge comes with its inverse. The caller holds the
// namespace lease, so the forward/inverse pair is never interleaved with
// another writer.
package synth

import (
	"context"
	"fmt"

	"github.com/cartonhq/carton/pkg/common"
	"github.com/cartonhq/carton/pkg/logger"
	"github.com/cartonhq/carton/pkg/scanner"
	"github.com/cartonhq/carton/pkg/store"
)

// Summary reports what one synthesis pass changed. The edge slices carry
// the exact deltas so the projector can patch incrementally instead of
// rebuilding.
type Summary struct {
	Added           int `json:"added"`
	Retracted       int `json:"retracted"`
	MissingRecorded int `json:"missing_recorded"`

	AddedEdges     []common.Relationship `json:"-"`
	RetractedEdges []common.Relationship `json:"-"`
}

// Merge folds another summary into this one.
func (s *Summary) Merge(other Summary) {
	s.Added += other.Added
	s.Retracted += other.Retracted
	s.MissingRecorded += other.MissingRecorded
	s.AddedEdges = append(s.AddedEdges, other.AddedEdges...)
	s.RetractedEdges = append(s.RetractedEdges, other.RetractedEdges...)
}

// Synthesizer reconciles scan results against stored relationships.
type Synthesizer struct {
	store store.Store
}

func New(st store.Store) *Synthesizer {
	return &Synthesizer{store: st}
}

// SyncEntity reconciles the auto-discovered edges of one source entity with
// its latest scan. Re-running with an unchanged scan is a no-op.
func (s *Synthesizer) SyncEntity(ctx context.Context, namespace string, entity common.Entity, scan scanner.Result) (Summary, error) {
	var sum Summary

	desired := make(map[string]float64)
	for _, m := range scan.Mentions {
		if m.Confidence > desired[m.EntityID] {
			desired[m.EntityID] = m.Confidence
		}
	}

	existing, err := s.store.ListRelationshipsTouching(ctx, namespace, []string{entity.ID})
	if err != nil {
		return sum, fmt.Errorf("failed to list relationships for %s: %w", entity.ID, err)
	}

	current := make(map[string]common.Relationship)
	for _, rel := range existing {
		if rel.SourceID == entity.ID && rel.Kind == common.KindRelatesTo && rel.AutoDiscovered {
			current[rel.TargetID] = rel
		}
	}

	for targetID, strength := range desired {
		prev, seen := current[targetID]
		if seen && prev.Strength == strength {
			continue
		}
		added, err := s.upsertWithInverse(ctx, common.Relationship{
			Namespace:      namespace,
			SourceID:       entity.ID,
			TargetID:       targetID,
			Kind:           common.KindRelatesTo,
			AutoDiscovered: true,
			Strength:       strength,
		})
		if err != nil {
			return sum, err
		}
		sum.Added += len(added)
		sum.AddedEdges = append(sum.AddedEdges, added...)
	}

	for targetID := range current {
		if _, still := desired[targetID]; still {
			continue
		}
		retracted, err := s.retractAutoWithInverse(ctx, namespace, entity.ID, targetID, common.KindRelatesTo)
		if err != nil {
			return sum, err
		}
		sum.Retracted += len(retracted)
		sum.RetractedEdges = append(sum.RetractedEdges, retracted...)
	}

	recorded, err := s.store.ReplaceMentions(ctx, namespace, entity.ID, scan.Candidates)
	if err != nil {
		return sum, fmt.Errorf("failed to record missing names for %s: %w", entity.ID, err)
	}
	sum.MissingRecorded += recorded

	if sum.Added > 0 || sum.Retracted > 0 {
		logger.Info("[Synth] reconciled entity",
			"namespace", namespace,
			"entity", entity.ID,
			"added", sum.Added,
			"retracted", sum.Retracted,
		)
	}
	return sum, nil
}

// Assert records a manually asserted relationship together with its inverse.
// Both endpoints must exist and the kind must be declared.
func (s *Synthesizer) Assert(ctx context.Context, namespace, sourceID, targetID string, kind common.Kind, strength float64) error {
	if !kind.Valid() {
		return common.NewValidationError(fmt.Sprintf("relationship kind %q is not declared", kind), nil)
	}
	if sourceID == targetID {
		return common.NewValidationError("relationship endpoints must differ", []string{sourceID})
	}
	for _, id := range []string{sourceID, targetID} {
		if _, err := s.store.GetEntity(ctx, namespace, id); err != nil {
			return fmt.Errorf("failed to resolve endpoint %s: %w", id, err)
		}
	}

	_, err := s.upsertWithInverse(ctx, common.Relationship{
		Namespace: namespace,
		SourceID:  sourceID,
		TargetID:  targetID,
		Kind:      kind,
		Strength:  strength,
	})
	return err
}

// Retract removes a manually asserted relationship and its inverse. Auto
// edges of the same triple are removed too: retracting an assertion means
// the caller wants the edge gone.
func (s *Synthesizer) Retract(ctx context.Context, namespace, sourceID, targetID string, kind common.Kind) error {
	if !kind.Valid() {
		return common.NewValidationError(fmt.Sprintf("relationship kind %q is not declared", kind), nil)
	}
	triples := [][3]string{{sourceID, targetID, string(kind)}}
	if inv, ok := kind.Inverse(); ok {
		triples = append(triples, [3]string{targetID, sourceID, string(inv)})
	}
	for _, tr := range triples {
		if _, err := s.store.DeleteRelationship(ctx, namespace, tr[0], tr[1], common.Kind(tr[2])); err != nil {
			return fmt.Errorf("failed to retract edge %v: %w", tr, err)
		}
	}
	return nil
}

func (s *Synthesizer) upsertWithInverse(ctx context.Context, rel common.Relationship) ([]common.Relationship, error) {
	var added []common.Relationship
	changed, err := s.store.UpsertRelationship(ctx, rel)
	if err != nil {
		return added, fmt.Errorf("failed to upsert edge %s-%s->%s: %w", rel.SourceID, rel.Kind, rel.TargetID, err)
	}
	if changed {
		added = append(added, rel)
	}

	inv, ok := rel.Kind.Inverse()
	if !ok {
		return added, nil
	}
	inverse := common.Relationship{
		Namespace:      rel.Namespace,
		SourceID:       rel.TargetID,
		TargetID:       rel.SourceID,
		Kind:           inv,
		AutoDiscovered: rel.AutoDiscovered,
		Strength:       rel.Strength,
	}
	changed, err = s.store.UpsertRelationship(ctx, inverse)
	if err != nil {
		return added, fmt.Errorf("failed to upsert inverse edge %s-%s->%s: %w", inverse.SourceID, inv, inverse.TargetID, err)
	}
	if changed {
		added = append(added, inverse)
	}
	return added, nil
}

func (s *Synthesizer) retractAutoWithInverse(ctx context.Context, namespace, sourceID, targetID string, kind common.Kind) ([]common.Relationship, error) {
	var retracted []common.Relationship
	removed, err := s.store.DeleteAutoRelationship(ctx, namespace, sourceID, targetID, kind)
	if err != nil {
		return retracted, fmt.Errorf("failed to retract edge %s-%s->%s: %w", sourceID, kind, targetID, err)
	}
	if removed {
		retracted = append(retracted, common.Relationship{
			Namespace: namespace, SourceID: sourceID, TargetID: targetID, Kind: kind, AutoDiscovered: true,
		})
	}

	inv, ok := kind.Inverse()
	if !ok {
		return retracted, nil
	}
	removed, err = s.store.DeleteAutoRelationship(ctx, namespace, targetID, sourceID, inv)
	if err != nil {
		return retracted, fmt.Errorf("failed to retract inverse edge %s-%s->%s: %w", targetID, inv, sourceID, err)
	}
	if removed {
		retracted = append(retracted, common.Relationship{
			Namespace: namespace, SourceID: targetID, TargetID: sourceID, Kind: inv, AutoDiscovered: true,
		})
	}
	return retracted, nil
}
