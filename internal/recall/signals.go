// ABOUTME: SignalClassifier decides between the fast and smart memory search paths
// ABOUTME: HeuristicSignals is the local default when no external classifier is configured

package recall

import (
	"context"
	"regexp"
	"unicode/utf8"
)

// SignalClassifier inspects a message and reports whether it warrants the
// deeper smart search. Implementations may call out to a model.
type SignalClassifier interface {
	NeedsDeepSearch(ctx context.Context, message string) (bool, error)
}

// deepSearchLen is the message length at which HeuristicSignals always goes deep.
const deepSearchLen = 160

var recallPattern = regexp.MustCompile(`(?i)\b(remember|recall|last time|earlier|before|previously|told you|mentioned|we talked|history|my (diet|plan|preferences?|goals?))\b`)

// HeuristicSignals goes deep for explicit references to the past and for long messages.
type HeuristicSignals struct{}

// NeedsDeepSearch implements SignalClassifier.
func (HeuristicSignals) NeedsDeepSearch(_ context.Context, message string) (bool, error) {
	if recallPattern.MatchString(message) {
		return true, nil
	}
	return utf8.RuneCountInString(message) >= deepSearchLen, nil
}
