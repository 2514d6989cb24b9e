package pgx

import (
	"context"

	pgxv5 "github.com/jackc/pgx/v5"

	"github.com/cartonhq/carton/pkg/common"
)

func collectPairs(rows pgxv5.Rows) ([]common.DuplicatePair, error) {
	defer rows.Close()
	var pairs []common.DuplicatePair
	for rows.Next() {
		var p common.DuplicatePair
		if err := rows.Scan(&p.Namespace, &p.EntityA, &p.EntityB, &p.Similarity, &p.Status, &p.CreatedAt); err != nil {
			return nil, err
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

func (s *CanonicalStore) ListPairs(ctx context.Context, namespace string, status common.PairStatus) ([]common.DuplicatePair, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT namespace, entity_a, entity_b, similarity, status, created_at
		FROM duplicate_pairs
		WHERE namespace = $1 AND status = $2
		ORDER BY similarity DESC, entity_a, entity_b
	`, namespace, status)
	if err != nil {
		return nil, err
	}
	return collectPairs(rows)
}

func (s *CanonicalStore) ListPairsTouching(ctx context.Context, namespace string, ids []string) ([]common.DuplicatePair, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.conn.Query(ctx, `
		SELECT namespace, entity_a, entity_b, similarity, status, created_at
		FROM duplicate_pairs
		WHERE namespace = $1 AND (entity_a = ANY($2) OR entity_b = ANY($2))
	`, namespace, ids)
	if err != nil {
		return nil, err
	}
	return collectPairs(rows)
}

func (s *CanonicalStore) UpsertPendingPair(ctx context.Context, pair common.DuplicatePair) error {
	a, b := common.OrderPair(pair.EntityA, pair.EntityB)
	_, err := s.conn.Exec(ctx, `
		INSERT INTO duplicate_pairs (namespace, entity_a, entity_b, similarity, status, created_at)
		VALUES ($1, $2, $3, $4, 'PENDING', $5)
		ON CONFLICT (namespace, entity_a, entity_b) DO UPDATE SET
			similarity = excluded.similarity
		WHERE duplicate_pairs.status = 'PENDING'
	`, pair.Namespace, a, b, pair.Similarity, pair.CreatedAt)
	return err
}

func (s *CanonicalStore) SetPairStatus(ctx context.Context, namespace, entityA, entityB string, status common.PairStatus) error {
	a, b := common.OrderPair(entityA, entityB)
	_, err := s.conn.Exec(ctx, `
		UPDATE duplicate_pairs
		SET status = $4
		WHERE namespace = $1 AND entity_a = $2 AND entity_b = $3
	`, namespace, a, b, status)
	return err
}

func (s *CanonicalStore) DeletePairsTouching(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.conn.Exec(ctx, `
		DELETE FROM duplicate_pairs
		WHERE namespace = $1 AND (entity_a = ANY($2) OR entity_b = ANY($2))
	`, namespace, ids)
	return err
}
