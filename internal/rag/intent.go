package rag

import (
	"regexp"
	"strings"
)

// Intent classifies what a query is asking for before retrieval runs.
type Intent string

const (
	// IntentQuestion means the query should be answered from document content.
	IntentQuestion Intent = "question"
	// IntentConversational means the query is small talk and retrieval is skipped.
	IntentConversational Intent = "conversational"
)

var greetingExact = map[string]bool{
	"hi": true, "hello": true, "hey": true, "yo": true,
	"thanks": true, "thank you": true, "thx": true,
	"ok": true, "okay": true, "bye": true, "goodbye": true,
	"good morning": true, "good afternoon": true, "good evening": true,
}

var greetingPrefixRe = regexp.MustCompile(`^(hi|hello|hey)\b[\s,!.]*$`)

// DetectIntent is a cheap rule-based classifier. It only needs to catch the
// unambiguous conversational cases; anything with real content falls through
// to question and goes through retrieval.
func DetectIntent(query string) Intent {
	q := strings.ToLower(strings.TrimSpace(query))
	q = strings.Trim(q, "!.?, ")
	if q == "" {
		return IntentConversational
	}
	if greetingExact[q] {
		return IntentConversational
	}
	if greetingPrefixRe.MatchString(q) {
		return IntentConversational
	}
	// Short queries with no letters (emoji, punctuation) are not answerable
	// from documents either.
	if len(q) <= 3 && !strings.ContainsFunc(q, func(r rune) bool {
		return r >= 'a' && r <= 'z' || r >= '0' && r <= '9'
	}) {
		return IntentConversational
	}
	return IntentQuestion
}
