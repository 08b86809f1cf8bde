// ABOUTME: Tests for the triviality classifier rules and their ordering

package triviality

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	long := strings.Repeat("the weather was nice today and ", 7)[:200]

	tests := []struct {
		name    string
		message string
		trivial bool
		reason  Reason
	}{
		{"empty", "", true, ReasonEmpty},
		{"whitespace only", "  \n\t ", true, ReasonEmpty},
		{"hi", "hi", true, ReasonGreeting},
		{"greeting is case insensitive", "HEY there", true, ReasonGreeting},
		{"ping", "ping", true, ReasonGreeting},
		{"greeting prefix needs word boundary", "history lesson", true, ReasonShort},
		{"greeting wins over keyword when short", "hi, search please", true, ReasonGreeting},
		{"long greeting falls through to keywords", "hello! can you search my email for it", false, ReasonKeyword},
		{"email search", "Can you search my email for the invoice?", false, ReasonKeyword},
		{"memory reference", "Remember what I told you about my diet?", false, ReasonKeyword},
		{"mention marker", "ask @bob", false, ReasonKeyword},
		{"look up", "look up the train times", false, ReasonKeyword},
		{"short without keyword", "thanks, that helps", true, ReasonShort},
		{"short question without keyword", "what time is it?", true, ReasonShort},
		{"long without keyword", long, false, ReasonLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.message)
			assert.Equal(t, tt.trivial, got.Trivial)
			assert.Equal(t, tt.reason, got.Reason)
		})
	}
}

func TestClassify_LengthBoundary(t *testing.T) {
	assert.True(t, Classify(strings.Repeat("a", 119)).Trivial)
	assert.False(t, Classify(strings.Repeat("a", 120)).Trivial)
}
