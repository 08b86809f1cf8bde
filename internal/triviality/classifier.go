// ABOUTME: Cheap heuristic deciding whether a message plausibly needs conversational memory.
// ABOUTME: Pure function; rules are evaluated in order and the first match wins.

package triviality

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// greetingMaxLen is the longest trimmed message still treated as a bare greeting.
	greetingMaxLen = 24
	// shortMessageLen is the length under which keyword-free messages are trivial.
	shortMessageLen = 120
)

// Result is the outcome of Classify.
type Result struct {
	Trivial bool
	Reason  Reason
}

// Reason names the rule that decided a Result.
type Reason string

const (
	ReasonEmpty    Reason = "empty"
	ReasonGreeting Reason = "greeting"
	ReasonKeyword  Reason = "keyword"
	ReasonShort    Reason = "short"
	ReasonLong     Reason = "long"
)

var greetingPattern = regexp.MustCompile(`(?i)^(hi|hey|hello|yo|sup|ping|test)\b`)

// keywords mark a message as referencing memory or requesting an action.
var keywords = []string{
	"@",
	"remember",
	"summary",
	"summarize",
	"search",
	"email",
	"gmail",
	"inbox",
	"pinterest",
	"board",
	"pin ",
	"calendar",
	"roast",
	"plan",
	"find",
	"look up",
	"lookup",
}

// Classify reports whether message is trivial. It never fails.
func Classify(message string) Result {
	trimmed := strings.TrimSpace(message)
	length := utf8.RuneCountInString(trimmed)

	if length == 0 {
		return Result{Trivial: true, Reason: ReasonEmpty}
	}

	if length <= greetingMaxLen && greetingPattern.MatchString(trimmed) {
		return Result{Trivial: true, Reason: ReasonGreeting}
	}

	if hasKeyword(strings.ToLower(trimmed)) {
		return Result{Trivial: false, Reason: ReasonKeyword}
	}

	if length < shortMessageLen {
		return Result{Trivial: true, Reason: ReasonShort}
	}

	return Result{Trivial: false, Reason: ReasonLong}
}

func hasKeyword(lower string) bool {
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}
