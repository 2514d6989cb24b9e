package pgx

import (
	"context"
	"errors"
	"fmt"

	pgxv5 "github.com/jackc/pgx/v5"

	"github.com/cartonhq/carton/pkg/common"
)

func (s *CanonicalStore) EnsureNamespace(ctx context.Context, name string) (common.Namespace, error) {
	var ns common.Namespace
	err := s.conn.QueryRow(ctx, `
		INSERT INTO namespaces (name, created_at)
		VALUES ($1, now())
		ON CONFLICT (name) DO UPDATE SET name = excluded.name
		RETURNING name, created_at
	`, name).Scan(&ns.Name, &ns.CreatedAt)
	return ns, err
}

func (s *CanonicalStore) GetNamespace(ctx context.Context, name string) (*common.Namespace, error) {
	var ns common.Namespace
	err := s.conn.QueryRow(ctx, `
		SELECT name, created_at FROM namespaces WHERE name = $1
	`, name).Scan(&ns.Name, &ns.CreatedAt)
	if err != nil {
		if errors.Is(err, pgxv5.ErrNoRows) {
			return nil, fmt.Errorf("namespace %s: %w", name, common.ErrNotFound)
		}
		return nil, err
	}
	return &ns, nil
}

func (s *CanonicalStore) ListNamespaces(ctx context.Context) ([]common.Namespace, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT name, created_at FROM namespaces ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var namespaces []common.Namespace
	for rows.Next() {
		var ns common.Namespace
		if err := rows.Scan(&ns.Name, &ns.CreatedAt); err != nil {
			return nil, err
		}
		namespaces = append(namespaces, ns)
	}
	return namespaces, rows.Err()
}
