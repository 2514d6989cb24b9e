// Package docstore holds the archived description documents, one markdown
// object per entity. The ablation engine deletes here before touching the
// graph projection so a partial failure never dangles a document behind a
// removed entity.
package docstore

import "context"

// DocumentStore is the archival surface for entity description documents.
type DocumentStore interface {
	ReadDocument(ctx context.Context, namespace, entityID string) ([]byte, error)
	WriteDocument(ctx context.Context, namespace, entityID string, body []byte) error
	DeleteDocument(ctx context.Context, namespace, entityID string) error
	// DeleteNamespace removes every document of the namespace.
	DeleteNamespace(ctx context.Context, namespace string) error
	ListDocuments(ctx context.Context, namespace string) ([]string, error)
}
