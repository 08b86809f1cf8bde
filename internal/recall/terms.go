// ABOUTME: Search term extraction and overlap scoring for memory records

package recall

import (
	"strings"
	"unicode"

	"github.com/2389/muse-gateway/internal/store"
)

const minTermLen = 3

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "you": {}, "your": {}, "are": {}, "was": {},
	"what": {}, "when": {}, "where": {}, "who": {}, "how": {}, "why": {}, "can": {},
	"could": {}, "would": {}, "should": {}, "did": {}, "does": {}, "have": {}, "has": {},
	"about": {}, "with": {}, "that": {}, "this": {}, "these": {}, "those": {}, "from": {},
	"tell": {}, "told": {}, "please": {}, "into": {}, "just": {}, "there": {}, "their": {},
	"them": {}, "then": {}, "than": {}, "any": {}, "all": {}, "out": {}, "our": {},
	"not": {}, "but": {}, "its": {}, "it's": {}, "i'm": {}, "myself": {}, "some": {},
}

// extractTerms lowercases message and returns its distinct content words in order.
func extractTerms(message string) []string {
	fields := strings.FieldsFunc(strings.ToLower(message), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})

	seen := make(map[string]struct{}, len(fields))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, "'")
		if len([]rune(f)) < minTermLen {
			continue
		}
		if _, stop := stopwords[f]; stop {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		terms = append(terms, f)
	}
	return terms
}

// normalizeMessage collapses whitespace and case so equivalent messages share a cache entry.
func normalizeMessage(message string) string {
	return strings.Join(strings.Fields(strings.ToLower(message)), " ")
}

// overlap counts how many terms appear in the record's facts or entities.
// Entity hits count double since entities are the extractor's distilled keys.
func overlap(rec *store.MemoryRecord, terms []string) int {
	score := 0
	for _, term := range terms {
		for _, e := range rec.Entities {
			if strings.Contains(strings.ToLower(e), term) {
				score += 2
				break
			}
		}
		for _, f := range rec.Facts {
			if strings.Contains(strings.ToLower(f), term) {
				score++
				break
			}
		}
	}
	return score
}
