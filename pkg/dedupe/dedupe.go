// Package dedupe finds likely duplicate entities inside one namespace. The
// score blends description similarity with name similarity; a cheap blocking
// pass keeps the pairwise comparison from touching every pair. Detection is
// symmetric by construction: pairs are ordered before they are reported.
package dedupe

import (
	"context"
	"sort"
	"strings"

	"github.com/cartonhq/carton/pkg/common"
)

const (
	// descriptionWeight and nameWeight blend the two Jaccard scores.
	descriptionWeight = 0.6
	nameWeight        = 0.4

	// blockingThreshold is the minimum name trigram overlap for a pair to
	// be scored when the descriptions share no token.
	blockingThreshold = 0.25

	// DefaultThreshold is the minimum blended score reported as a
	// duplicate candidate.
	DefaultThreshold = 0.85
)

// Candidate is a scored potential duplicate. EntityA sorts before EntityB.
type Candidate struct {
	EntityA    string  `json:"entity_a"`
	EntityB    string  `json:"entity_b"`
	Similarity float64 `json:"similarity"`
}

// Detector scores entity pairs for duplication.
type Detector struct {
	threshold float64
}

// New builds a detector. A non-positive threshold falls back to the default.
func New(threshold float64) *Detector {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Detector{threshold: threshold}
}

type profile struct {
	id       string
	tokens   map[string]bool
	trigrams map[string]bool
}

func buildProfile(e common.Entity) profile {
	p := profile{
		id:       e.ID,
		tokens:   make(map[string]bool),
		trigrams: make(map[string]bool),
	}
	for _, tok := range common.Tokenize(e.Description) {
		p.tokens[tok] = true
	}
	name := strings.ReplaceAll(e.CanonicalName, "_", " ")
	for _, tri := range trigrams(name) {
		p.trigrams[tri] = true
	}
	return p
}

// FindDuplicates scores all blocked pairs and returns candidates at or above
// the threshold, strongest first. When ctx is canceled mid-pass it returns
// the candidates found so far together with the context error, so a long
// pass can be interrupted without losing its work.
func (d *Detector) FindDuplicates(ctx context.Context, entities []common.Entity) ([]Candidate, error) {
	profiles := make([]profile, len(entities))
	for i, e := range entities {
		profiles[i] = buildProfile(e)
	}

	var out []Candidate
	for i := range profiles {
		if err := ctx.Err(); err != nil {
			sortCandidates(out)
			return out, err
		}
		for j := i + 1; j < len(profiles); j++ {
			a, b := profiles[i], profiles[j]
			if !blocked(a, b) {
				continue
			}
			score := blend(a, b)
			if score < d.threshold {
				continue
			}
			ea, eb := common.OrderPair(a.id, b.id)
			out = append(out, Candidate{EntityA: ea, EntityB: eb, Similarity: score})
		}
	}
	sortCandidates(out)
	return out, nil
}

// Score returns the blended similarity of two entities.
func (d *Detector) Score(a, b common.Entity) float64 {
	return blend(buildProfile(a), buildProfile(b))
}

// blocked reports whether a pair is worth scoring: descriptions share a
// token or names share enough trigrams.
func blocked(a, b profile) bool {
	for tok := range a.tokens {
		if b.tokens[tok] {
			return true
		}
	}
	return jaccard(a.trigrams, b.trigrams) >= blockingThreshold
}

func blend(a, b profile) float64 {
	return descriptionWeight*jaccard(a.tokens, b.tokens) + nameWeight*jaccard(a.trigrams, b.trigrams)
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if b[k] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func trigrams(s string) []string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return nil
	}
	// Pad so short names still produce grams.
	padded := "  " + s + " "
	var out []string
	for i := 0; i+3 <= len(padded); i++ {
		out = append(out, padded[i:i+3])
	}
	return out
}

func sortCandidates(out []Candidate) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		if out[i].EntityA != out[j].EntityA {
			return out[i].EntityA < out[j].EntityA
		}
		return out[i].EntityB < out[j].EntityB
	})
}
