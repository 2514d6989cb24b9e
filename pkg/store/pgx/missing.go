package pgx

import (
	"context"

	"github.com/cartonhq/carton/pkg/common"
)

func (s *CanonicalStore) ListMissing(ctx context.Context, namespace string) ([]common.MissingEntity, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT namespace, name, mention_count, first_seen_at, source_entity_ids
		FROM missing_entities
		WHERE namespace = $1
		ORDER BY mention_count DESC, name
	`, namespace)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []common.MissingEntity
	for rows.Next() {
		var m common.MissingEntity
		if err := rows.Scan(&m.Namespace, &m.Name, &m.MentionCount, &m.FirstSeenAt, &m.SourceIDs); err != nil {
			return nil, err
		}
		records = append(records, m)
	}
	return records, rows.Err()
}

// ReplaceMentions reconciles one source's attributions in a transaction:
// stale attributions are stripped first, then each current name gains the
// source unless it already has it. mention_count always equals the size of
// the source set, so replaying an unchanged scan is a no-op.
func (s *CanonicalStore) ReplaceMentions(ctx context.Context, namespace, sourceID string, names []string) (int, error) {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE missing_entities
		SET source_entity_ids = array_remove(source_entity_ids, $2),
		    mention_count = cardinality(array_remove(source_entity_ids, $2))
		WHERE namespace = $1 AND $2 = ANY(source_entity_ids) AND NOT (name = ANY($3))
	`, namespace, sourceID, names)
	if err != nil {
		return 0, err
	}
	_, err = tx.Exec(ctx, `
		DELETE FROM missing_entities
		WHERE namespace = $1 AND cardinality(source_entity_ids) = 0
	`, namespace)
	if err != nil {
		return 0, err
	}

	var recorded int
	for _, name := range names {
		tag, err := tx.Exec(ctx, `
			INSERT INTO missing_entities (namespace, name, mention_count, first_seen_at, source_entity_ids)
			VALUES ($1, $2, 1, now(), ARRAY[$3])
			ON CONFLICT (namespace, name) DO UPDATE SET
				source_entity_ids = array_append(missing_entities.source_entity_ids, $3),
				mention_count = cardinality(missing_entities.source_entity_ids) + 1
			WHERE NOT $3 = ANY(missing_entities.source_entity_ids)
		`, namespace, name, sourceID)
		if err != nil {
			return recorded, err
		}
		if tag.RowsAffected() > 0 {
			recorded++
		}
	}
	return recorded, tx.Commit(ctx)
}

func (s *CanonicalStore) DeleteMissing(ctx context.Context, namespace, name string) error {
	_, err := s.conn.Exec(ctx, `
		DELETE FROM missing_entities
		WHERE namespace = $1 AND name = $2
	`, namespace, name)
	return err
}

// RemoveMissingSources strips the given source ids from every record, then
// prunes records left without any source so no "missing" reference dangles
// after an ablation.
func (s *CanonicalStore) RemoveMissingSources(ctx context.Context, namespace string, sourceIDs []string) ([]string, error) {
	if len(sourceIDs) == 0 {
		return nil, nil
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE missing_entities
		SET source_entity_ids = (
			SELECT coalesce(array_agg(src), '{}')
			FROM unnest(source_entity_ids) AS src
			WHERE NOT src = ANY($2)
		)
		WHERE namespace = $1 AND source_entity_ids && $2
	`, namespace, sourceIDs)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE missing_entities
		SET mention_count = cardinality(source_entity_ids)
		WHERE namespace = $1 AND mention_count <> cardinality(source_entity_ids)
	`, namespace)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		DELETE FROM missing_entities
		WHERE namespace = $1 AND cardinality(source_entity_ids) = 0
		RETURNING name
	`, namespace)
	if err != nil {
		return nil, err
	}

	var pruned []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, err
		}
		pruned = append(pruned, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return pruned, tx.Commit(ctx)
}
