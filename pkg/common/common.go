package common

import "time"

// Entity represents a named concept in a namespace. The description text is
// the canonical source for auto-linking: every relationship discovery pass
// starts from it.
//
// The ID is derived from the canonical name and is stable for the lifetime
// of the entity. ContentHash tracks the normalized description so callers
// can skip re-scanning entities whose text has not changed.
type Entity struct {
	ID            string    `json:"id"`
	Namespace     string    `json:"namespace"`
	CanonicalName string    `json:"canonical_name"`
	DisplayName   string    `json:"display_name"`
	Description   string    `json:"description"`
	ContentHash   string    `json:"content_hash"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Relationship is a directed edge between two entities. AutoDiscovered marks
// edges synthesized from description mentions; those may be retracted when
// the supporting mention disappears. Manually asserted edges are sticky and
// survive any number of re-scans.
type Relationship struct {
	Namespace      string    `json:"namespace"`
	SourceID       string    `json:"source_id"`
	TargetID       string    `json:"target_id"`
	Kind           Kind      `json:"kind"`
	AutoDiscovered bool      `json:"auto_discovered"`
	Strength       float64   `json:"strength"`
	CreatedAt      time.Time `json:"created_at"`
}

// Triple returns the identity of the edge. At most one relationship per
// triple exists in a namespace.
func (r Relationship) Triple() [3]string {
	return [3]string{r.SourceID, r.TargetID, string(r.Kind)}
}

// MissingEntity tracks a name that is mentioned by at least one entity
// description but has no entity of its own yet. Records are removed when the
// name is promoted to an entity or blacklisted.
type MissingEntity struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	// MentionCount is the number of distinct entities currently mentioning
	// the name; it always equals len(SourceIDs).
	MentionCount int       `json:"mention_count"`
	FirstSeenAt  time.Time `json:"first_seen_at"`
	SourceIDs    []string  `json:"source_entity_ids"`

	// Suggestions lists up to three similar existing canonical names,
	// filled in when records are listed.
	Suggestions []string `json:"suggestions,omitempty"`
}

// PairStatus is the lifecycle state of a duplicate candidate pair.
type PairStatus string

const (
	PairPending   PairStatus = "PENDING"
	PairMerged    PairStatus = "MERGED"
	PairDismissed PairStatus = "DISMISSED"
)

// DuplicatePair is a symmetric candidate produced by the duplicate detector.
// EntityA always sorts before EntityB so (A,B) and (B,A) collapse to one row.
type DuplicatePair struct {
	Namespace  string     `json:"namespace"`
	EntityA    string     `json:"entity_a"`
	EntityB    string     `json:"entity_b"`
	Similarity float64    `json:"similarity"`
	Status     PairStatus `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
}

// OrderPair normalizes a pair of entity ids so that the smaller id comes
// first. Used everywhere a pair is stored or compared.
func OrderPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// BlacklistEntry suppresses missing-entity tracking for a name.
type BlacklistEntry struct {
	Namespace string    `json:"namespace"`
	Name      string    `json:"name"`
	Reason    string    `json:"reason"`
	AddedAt   time.Time `json:"added_at"`
}

// Namespace is an isolated partition of entities, relationships and
// blacklist entries for one tenant or context.
type Namespace struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
