package scanner

import (
	"sort"
	"strings"
	"unicode"
)

// stopWords never become missing-name candidates on their own.
var stopWords = map[string]bool{
	"the": true, "of": true, "and": true, "a": true, "an": true,
	"to": true, "in": true, "on": true, "for": true, "at": true, "by": true,
	"is": true, "it": true, "as": true, "be": true, "was": true,
	"are": true, "been": true, "with": true, "from": true, "into": true,
	"that": true, "this": true, "these": true, "those": true,
	"has": true, "have": true, "had": true, "not": true, "but": true,
	"his": true, "her": true, "its": true, "their": true, "or": true,
	"when": true, "where": true, "which": true, "while": true,
	"he": true, "she": true, "they": true, "we": true, "you": true,
}

// findCandidates extracts names that look like entities but match nothing in
// the catalog: runs of capitalized words and acronyms. A single capitalized
// word at the start of a sentence is ignored since that signals grammar, not
// a name.
func (c *Catalog) findCandidates(text string) []string {
	words := splitWords(text)
	counts := make(map[string]int)
	display := make(map[string]string)

	record := func(name string) {
		key := strings.ToLower(name)
		if stopWords[key] || c.known[key] || c.blacklist[key] {
			return
		}
		counts[key]++
		if _, ok := display[key]; !ok {
			display[key] = name
		}
	}

	i := 0
	for i < len(words) {
		w := words[i]

		if isAcronym(w.text) {
			record(w.text)
			i++
			continue
		}

		if !isCapitalized(w.text) {
			i++
			continue
		}

		// Extend the run of capitalized words.
		j := i
		for j < len(words) && isCapitalized(words[j].text) && !isAcronym(words[j].text) {
			j++
		}
		run := make([]string, 0, j-i)
		for k := i; k < j; k++ {
			run = append(run, words[k].text)
		}

		if len(run) == 1 && sentenceStart(text, w.start) {
			i = j
			continue
		}
		record(strings.Join(run, " "))
		i = j
	}

	out := make([]string, 0, len(counts))
	for key := range counts {
		out = append(out, display[key])
	}
	sort.Slice(out, func(i, j int) bool {
		ci, cj := counts[strings.ToLower(out[i])], counts[strings.ToLower(out[j])]
		if ci != cj {
			return ci > cj
		}
		return out[i] < out[j]
	})
	return out
}

func isCapitalized(word string) bool {
	runes := []rune(word)
	if len(runes) < 2 || !unicode.IsUpper(runes[0]) {
		return false
	}
	for _, r := range runes[1:] {
		if unicode.IsUpper(r) {
			return false
		}
	}
	return true
}

// isAcronym matches all-caps tokens like HTTP or DNS.
func isAcronym(word string) bool {
	if len(word) < 2 || len(word) > 6 {
		return false
	}
	for _, r := range word {
		if !unicode.IsUpper(r) {
			return false
		}
	}
	return true
}

// sentenceStart reports whether the word at offset opens a sentence: it is
// at the start of the text or preceded by terminal punctuation.
func sentenceStart(text string, offset int) bool {
	for i := offset - 1; i >= 0; i-- {
		r := rune(text[i])
		switch {
		case r == ' ' || r == '\t' || r == '"' || r == '\'' || r == '(':
			continue
		case r == '.' || r == '!' || r == '?' || r == '\n' || r == ':' || r == ';':
			return true
		default:
			return false
		}
	}
	return true
}
