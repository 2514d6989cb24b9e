package pgx

import (
	"context"
	"errors"
	"fmt"

	pgxv5 "github.com/jackc/pgx/v5"

	"github.com/cartonhq/carton/internal/util"
	"github.com/cartonhq/carton/pkg/common"
)

const entityColumns = `id, namespace, canonical_name, display_name, description, content_hash, created_at, updated_at`

func scanEntity(row pgxv5.Row) (*common.Entity, error) {
	var e common.Entity
	err := row.Scan(
		&e.ID, &e.Namespace, &e.CanonicalName, &e.DisplayName,
		&e.Description, &e.ContentHash, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *CanonicalStore) GetEntity(ctx context.Context, namespace, id string) (*common.Entity, error) {
	row := s.conn.QueryRow(ctx, `
		SELECT `+entityColumns+`
		FROM entities
		WHERE namespace = $1 AND id = $2
	`, namespace, id)

	entity, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, pgxv5.ErrNoRows) {
			return nil, fmt.Errorf("entity %s/%s: %w", namespace, id, common.ErrNotFound)
		}
		return nil, err
	}
	return entity, nil
}

func (s *CanonicalStore) ListEntities(ctx context.Context, namespace string) ([]common.Entity, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT `+entityColumns+`
		FROM entities
		WHERE namespace = $1
		ORDER BY id
	`, namespace)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entities []common.Entity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, *entity)
	}
	return entities, rows.Err()
}

func (s *CanonicalStore) UpsertEntity(ctx context.Context, entity common.Entity) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO entities (id, namespace, canonical_name, display_name, description, content_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (namespace, id) DO UPDATE SET
			display_name = excluded.display_name,
			description  = excluded.description,
			content_hash = excluded.content_hash,
			updated_at   = excluded.updated_at
	`, entity.ID, entity.Namespace, entity.CanonicalName,
		util.SanitizePostgresText(entity.DisplayName),
		util.SanitizePostgresText(entity.Description),
		entity.ContentHash, entity.UpdatedAt)
	return err
}

func (s *CanonicalStore) DeleteEntities(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.conn.Exec(ctx, `
		DELETE FROM entities
		WHERE namespace = $1 AND id = ANY($2)
	`, namespace, ids)
	return err
}
