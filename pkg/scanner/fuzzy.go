package scanner

import "strings"

type wordSpan struct {
	text  string
	start int
	end   int
}

// fuzzyMentions catches near-miss spellings of multi-word names. Entities
// the exact pass already matched are skipped, so a fuzzy hit never shadows
// an exact one. A span only qualifies once it repeats FuzzyRepeatFloor
// times across the corpus descriptions.
func (c *Catalog) fuzzyMentions(selfID, text string, matchedIDs map[string]bool) []Mention {
	if len(c.multiWord) == 0 {
		return nil
	}
	words := splitWords(text)
	if len(words) == 0 {
		return nil
	}

	var out []Mention
	for _, p := range c.multiWord {
		if p.entityID == selfID || matchedIDs[p.entityID] {
			continue
		}
		if len(p.text) < c.cfg.FuzzyMinLength {
			continue
		}
		target := strings.ToLower(p.text)
		width := len(strings.Fields(p.text))

		best := Mention{}
		for i := 0; i+width <= len(words); i++ {
			window := words[i : i+width]
			if c.spanCount[spanKey(window)] < c.cfg.FuzzyRepeatFloor {
				continue
			}
			surface := text[window[0].start:window[width-1].end]
			score := similarity(strings.ToLower(surface), target)
			if score >= c.cfg.FuzzyThreshold && score > best.Confidence {
				best = Mention{
					EntityID:   p.entityID,
					Surface:    surface,
					Start:      window[0].start,
					End:        window[width-1].end,
					Fuzzy:      true,
					Confidence: score,
				}
			}
		}
		if best.EntityID != "" {
			out = append(out, best)
			matchedIDs[best.EntityID] = true
		}
	}
	return out
}

func splitWords(text string) []wordSpan {
	var spans []wordSpan
	start := -1
	for i, r := range text {
		isWord := r == '-' || r == '_' || r == '\'' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r > 127
		if isWord {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			spans = append(spans, wordSpan{text: text[start:i], start: start, end: i})
			start = -1
		}
	}
	if start >= 0 {
		spans = append(spans, wordSpan{text: text[start:], start: start, end: len(text)})
	}
	return spans
}

// Similarity is the case-folded normalized edit similarity in [0, 1]. Used
// for fuzzy matching here and for missing-name suggestions elsewhere.
func Similarity(a, b string) float64 {
	return similarity(strings.ToLower(a), strings.ToLower(b))
}

// similarity is the normalized Levenshtein ratio: 1 - distance/maxLen.
func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(levenshtein(a, b))/float64(maxLen)
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, min(curr[j-1]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
