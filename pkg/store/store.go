// Package store defines the canonical-store contract: the persisted entity,
// relationship, missing-entity, duplicate-pair and blacklist sets, one
// logical partition per namespace. The graph projection is derived from this
// store and never the other way around.
package store

import (
	"context"

	"github.com/cartonhq/carton/pkg/common"
)

// EntityStore persists the canonical entity set.
type EntityStore interface {
	GetEntity(ctx context.Context, namespace, id string) (*common.Entity, error)
	ListEntities(ctx context.Context, namespace string) ([]common.Entity, error)
	UpsertEntity(ctx context.Context, entity common.Entity) error
	DeleteEntities(ctx context.Context, namespace string, ids []string) error
}

// RelationshipStore persists directed edges. Implementations enforce the
// triple uniqueness invariant and manual-edge stickiness: upserting an
// auto-discovered edge over a manual one of the same triple is a no-op,
// while a manual upsert supersedes an auto edge.
type RelationshipStore interface {
	ListRelationships(ctx context.Context, namespace string) ([]common.Relationship, error)
	// ListRelationshipsTouching returns edges where any given id appears as
	// source or target.
	ListRelationshipsTouching(ctx context.Context, namespace string, ids []string) ([]common.Relationship, error)
	// UpsertRelationship inserts or supersedes one edge, returning whether
	// the stored state changed.
	UpsertRelationship(ctx context.Context, rel common.Relationship) (bool, error)
	// DeleteAutoRelationship removes an auto-discovered edge by triple.
	// Manual edges of the same triple are left untouched; returns whether a
	// row was removed.
	DeleteAutoRelationship(ctx context.Context, namespace, sourceID, targetID string, kind common.Kind) (bool, error)
	// DeleteRelationship removes an edge by triple regardless of how it was
	// discovered; returns whether a row was removed.
	DeleteRelationship(ctx context.Context, namespace, sourceID, targetID string, kind common.Kind) (bool, error)
	// DeleteRelationshipsTouching removes every edge referencing any given
	// id, manual or not. Only the ablation engine calls this.
	DeleteRelationshipsTouching(ctx context.Context, namespace string, ids []string) error
}

// MissingStore tracks referenced-but-undefined names.
type MissingStore interface {
	ListMissing(ctx context.Context, namespace string) ([]common.MissingEntity, error)
	// ReplaceMentions reconciles the missing names attributed to one source
	// entity: names gain the source (creating records on first sight), and
	// records the source no longer mentions lose it, pruning records left
	// without any source. The mention count is the size of the source set,
	// so replaying the same scan never inflates it. Returns how many names
	// were newly attributed.
	ReplaceMentions(ctx context.Context, namespace, sourceID string, names []string) (int, error)
	DeleteMissing(ctx context.Context, namespace, name string) error
	// RemoveMissingSources removes the given source ids from every record
	// and deletes records whose source set becomes empty. Returns the names
	// of deleted records.
	RemoveMissingSources(ctx context.Context, namespace string, sourceIDs []string) ([]string, error)
}

// PairStore persists duplicate candidate pairs.
type PairStore interface {
	ListPairs(ctx context.Context, namespace string, status common.PairStatus) ([]common.DuplicatePair, error)
	ListPairsTouching(ctx context.Context, namespace string, ids []string) ([]common.DuplicatePair, error)
	// UpsertPendingPair records a candidate, refreshing the similarity score
	// when the pair is already pending. Resolved pairs are never reopened.
	UpsertPendingPair(ctx context.Context, pair common.DuplicatePair) error
	SetPairStatus(ctx context.Context, namespace, entityA, entityB string, status common.PairStatus) error
	DeletePairsTouching(ctx context.Context, namespace string, ids []string) error
}

// BlacklistStore persists names suppressed from missing-entity tracking.
type BlacklistStore interface {
	ListBlacklist(ctx context.Context, namespace string) ([]common.BlacklistEntry, error)
	AddBlacklist(ctx context.Context, entry common.BlacklistEntry) error
	RemoveBlacklist(ctx context.Context, namespace, name string) error
}

// NamespaceStore manages the partition registry.
type NamespaceStore interface {
	EnsureNamespace(ctx context.Context, name string) (common.Namespace, error)
	GetNamespace(ctx context.Context, name string) (*common.Namespace, error)
	ListNamespaces(ctx context.Context) ([]common.Namespace, error)
}

// Store is the full canonical-store surface.
type Store interface {
	EntityStore
	RelationshipStore
	MissingStore
	PairStore
	BlacklistStore
	NamespaceStore
}
