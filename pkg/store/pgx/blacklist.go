package pgx

import (
	"context"

	"github.com/cartonhq/carton/pkg/common"
)

func (s *CanonicalStore) ListBlacklist(ctx context.Context, namespace string) ([]common.BlacklistEntry, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT namespace, name, reason, added_at
		FROM blacklist
		WHERE namespace = $1
		ORDER BY name
	`, namespace)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []common.BlacklistEntry
	for rows.Next() {
		var e common.BlacklistEntry
		if err := rows.Scan(&e.Namespace, &e.Name, &e.Reason, &e.AddedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *CanonicalStore) AddBlacklist(ctx context.Context, entry common.BlacklistEntry) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO blacklist (namespace, name, reason, added_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (namespace, name) DO UPDATE SET reason = excluded.reason
	`, entry.Namespace, entry.Name, entry.Reason, entry.AddedAt)
	return err
}

func (s *CanonicalStore) RemoveBlacklist(ctx context.Context, namespace, name string) error {
	_, err := s.conn.Exec(ctx, `
		DELETE FROM blacklist
		WHERE namespace = $1 AND name = $2
	`, namespace, name)
	return err
}
