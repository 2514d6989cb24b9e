// Package scanner finds mentions of known entities inside description text
// and surfaces names that look like entities but have no record yet. The
// scanner is pure: it holds a compiled catalog and never touches storage, so
// scanning the same text against the same catalog always yields the same
// result.
package scanner

import (
	"sort"
	"strings"

	ahocorasick "github.com/petar-dambovaliev/aho-corasick"

	"github.com/cartonhq/carton/pkg/common"
)

// Mention is one located reference to a known entity.
type Mention struct {
	EntityID   string  `json:"entity_id"`
	Surface    string  `json:"surface"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Fuzzy      bool    `json:"fuzzy"`
	Confidence float64 `json:"confidence"`
}

// Result is the outcome of scanning one text.
type Result struct {
	Mentions []Mention `json:"mentions"`
	// Candidates are names mentioned in the text that match no known
	// entity: capitalized terms, acronyms. Blacklisted names are excluded.
	Candidates []string `json:"candidates"`
}

// Config tunes fuzzy matching.
type Config struct {
	// FuzzyThreshold is the minimum normalized edit similarity for a fuzzy
	// mention of a multi-word name.
	FuzzyThreshold float64
	// FuzzyMinLength is the minimum pattern length considered for fuzzy
	// matching.
	FuzzyMinLength int
	// FuzzyRepeatFloor is how many times a candidate span must occur
	// across the corpus descriptions before it may fuzzy-link. A one-off
	// near-miss stays a candidate instead of becoming an edge.
	FuzzyRepeatFloor int
}

// DefaultConfig mirrors the production tuning.
func DefaultConfig() Config {
	return Config{
		FuzzyThreshold:   0.88,
		FuzzyMinLength:   3,
		FuzzyRepeatFloor: 2,
	}
}

type pattern struct {
	entityID string
	text     string
}

// Catalog is a compiled snapshot of the known entity names of one
// namespace. Build it once per scan pass and reuse it for every entity.
type Catalog struct {
	cfg       Config
	ac        ahocorasick.AhoCorasick
	patterns  []pattern
	multiWord []pattern
	known     map[string]bool
	blacklist map[string]bool
	// spanCount holds corpus frequencies of normalized word windows at the
	// widths of the multi-word patterns. Fuzzy matching consults it.
	spanCount map[string]int
}

// NewCatalog compiles the name automaton for the given entities.
// Each entity contributes its display name, its canonical name with
// underscores spelled as spaces, and a naive plural. Longer names win
// overlaps via leftmost-longest matching.
func NewCatalog(cfg Config, entities []common.Entity, blacklist []common.BlacklistEntry) *Catalog {
	if cfg.FuzzyThreshold <= 0 {
		cfg = DefaultConfig()
	}
	if cfg.FuzzyRepeatFloor <= 0 {
		cfg.FuzzyRepeatFloor = DefaultConfig().FuzzyRepeatFloor
	}

	c := &Catalog{
		cfg:       cfg,
		known:     make(map[string]bool),
		blacklist: make(map[string]bool, len(blacklist)),
	}
	for _, entry := range blacklist {
		c.blacklist[strings.ToLower(entry.Name)] = true
	}

	seen := make(map[string]bool)
	for _, e := range entities {
		for _, v := range nameVariations(e) {
			key := strings.ToLower(v)
			if v == "" || seen[key] {
				continue
			}
			seen[key] = true
			c.known[key] = true
			p := pattern{entityID: e.ID, text: v}
			c.patterns = append(c.patterns, p)
			if strings.Contains(v, " ") {
				c.multiWord = append(c.multiWord, p)
			}
		}
	}

	texts := make([]string, len(c.patterns))
	for i, p := range c.patterns {
		texts[i] = p.text
	}

	builder := ahocorasick.NewAhoCorasickBuilder(ahocorasick.Opts{
		AsciiCaseInsensitive: true,
		MatchOnlyWholeWords:  true,
		MatchKind:            ahocorasick.LeftMostLongestMatch,
	})
	c.ac = builder.Build(texts)

	c.countSpans(entities)

	return c
}

// countSpans tallies every normalized word window of the corpus at the
// widths the multi-word patterns need. Fuzzy matching only accepts spans
// that repeat at least FuzzyRepeatFloor times.
func (c *Catalog) countSpans(entities []common.Entity) {
	c.spanCount = make(map[string]int)
	widths := make(map[int]bool)
	for _, p := range c.multiWord {
		widths[len(strings.Fields(p.text))] = true
	}
	if len(widths) == 0 {
		return
	}
	for _, e := range entities {
		words := splitWords(e.Description)
		for width := range widths {
			for i := 0; i+width <= len(words); i++ {
				c.spanCount[spanKey(words[i:i+width])]++
			}
		}
	}
}

func spanKey(window []wordSpan) string {
	parts := make([]string, len(window))
	for i, w := range window {
		parts[i] = strings.ToLower(w.text)
	}
	return strings.Join(parts, " ")
}

func nameVariations(e common.Entity) []string {
	var out []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	add(e.DisplayName)
	add(strings.ReplaceAll(e.CanonicalName, "_", " "))
	// Naive plural for mid-sentence references. Short names skip it to
	// avoid false hits.
	if len(e.DisplayName) >= 4 && !strings.HasSuffix(e.DisplayName, "s") {
		add(e.DisplayName + "s")
	}
	return out
}

// Scan finds mentions of cataloged entities in text. selfID excludes the
// entity whose own description is being scanned so an entity never links to
// itself. Offsets are byte offsets into text.
func (c *Catalog) Scan(selfID, text string) Result {
	var result Result

	matchedIDs := make(map[string]bool)
	for _, m := range c.ac.FindAll(text) {
		p := c.patterns[m.Pattern()]
		if p.entityID == selfID {
			continue
		}
		matchedIDs[p.entityID] = true
		result.Mentions = append(result.Mentions, Mention{
			EntityID:   p.entityID,
			Surface:    text[m.Start():m.End()],
			Start:      m.Start(),
			End:        m.End(),
			Confidence: 1.0,
		})
	}

	result.Mentions = append(result.Mentions, c.fuzzyMentions(selfID, text, matchedIDs)...)

	sort.Slice(result.Mentions, func(i, j int) bool {
		if result.Mentions[i].Start != result.Mentions[j].Start {
			return result.Mentions[i].Start < result.Mentions[j].Start
		}
		return result.Mentions[i].EntityID < result.Mentions[j].EntityID
	})

	result.Candidates = c.findCandidates(text)
	return result
}

// MentionedIDs returns the distinct entity ids of a scan, sorted.
func MentionedIDs(mentions []Mention) []string {
	set := make(map[string]bool)
	for _, m := range mentions {
		set[m.EntityID] = true
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
