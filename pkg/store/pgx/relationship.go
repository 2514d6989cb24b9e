package pgx

import (
	"context"

	pgxv5 "github.com/jackc/pgx/v5"

	"github.com/cartonhq/carton/pkg/common"
)

const relationshipColumns = `namespace, source_id, target_id, kind, auto_discovered, strength, created_at`

func collectRelationships(rows pgxv5.Rows) ([]common.Relationship, error) {
	defer rows.Close()
	var rels []common.Relationship
	for rows.Next() {
		var r common.Relationship
		err := rows.Scan(
			&r.Namespace, &r.SourceID, &r.TargetID, &r.Kind,
			&r.AutoDiscovered, &r.Strength, &r.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		rels = append(rels, r)
	}
	return rels, rows.Err()
}

func (s *CanonicalStore) ListRelationships(ctx context.Context, namespace string) ([]common.Relationship, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT `+relationshipColumns+`
		FROM relationships
		WHERE namespace = $1
		ORDER BY source_id, target_id, kind
	`, namespace)
	if err != nil {
		return nil, err
	}
	return collectRelationships(rows)
}

func (s *CanonicalStore) ListRelationshipsTouching(ctx context.Context, namespace string, ids []string) ([]common.Relationship, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.conn.Query(ctx, `
		SELECT `+relationshipColumns+`
		FROM relationships
		WHERE namespace = $1 AND (source_id = ANY($2) OR target_id = ANY($2))
		ORDER BY source_id, target_id, kind
	`, namespace, ids)
	if err != nil {
		return nil, err
	}
	return collectRelationships(rows)
}

// UpsertRelationship enforces manual-edge stickiness in the conflict
// clause: an auto-discovered edge never overwrites a manual one, while a
// manual upsert supersedes an auto edge of the same triple.
func (s *CanonicalStore) UpsertRelationship(ctx context.Context, rel common.Relationship) (bool, error) {
	tag, err := s.conn.Exec(ctx, `
		INSERT INTO relationships (namespace, source_id, target_id, kind, auto_discovered, strength, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (namespace, source_id, target_id, kind) DO UPDATE SET
			auto_discovered = excluded.auto_discovered,
			strength        = excluded.strength
		WHERE relationships.auto_discovered OR NOT excluded.auto_discovered
	`, rel.Namespace, rel.SourceID, rel.TargetID, rel.Kind,
		rel.AutoDiscovered, rel.Strength, rel.CreatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *CanonicalStore) DeleteAutoRelationship(ctx context.Context, namespace, sourceID, targetID string, kind common.Kind) (bool, error) {
	tag, err := s.conn.Exec(ctx, `
		DELETE FROM relationships
		WHERE namespace = $1 AND source_id = $2 AND target_id = $3 AND kind = $4
		  AND auto_discovered
	`, namespace, sourceID, targetID, kind)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *CanonicalStore) DeleteRelationship(ctx context.Context, namespace, sourceID, targetID string, kind common.Kind) (bool, error) {
	tag, err := s.conn.Exec(ctx, `
		DELETE FROM relationships
		WHERE namespace = $1 AND source_id = $2 AND target_id = $3 AND kind = $4
	`, namespace, sourceID, targetID, kind)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *CanonicalStore) DeleteRelationshipsTouching(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.conn.Exec(ctx, `
		DELETE FROM relationships
		WHERE namespace = $1 AND (source_id = ANY($2) OR target_id = ANY($2))
	`, namespace, ids)
	return err
}
