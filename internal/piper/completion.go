package piper

import "strings"

// DefaultSentinel is the phrase Piper prints on stderr once the output file
// has been written.
const DefaultSentinel = "Real-time"

// CompletionMatcher decides whether a diagnostic line signals that the
// artifact is complete.
type CompletionMatcher interface {
	Complete(line string) bool
}

// SentinelMatcher matches any line containing the sentinel substring.
//
// Piper has no structured completion marker, so this is a compatibility shim:
// ordinary chatter containing the phrase ends the wait early.
type SentinelMatcher string

// Complete implements CompletionMatcher.
func (s SentinelMatcher) Complete(line string) bool {
	return s != "" && strings.Contains(line, string(s))
}

// MatcherFunc adapts a function to CompletionMatcher.
type MatcherFunc func(line string) bool

// Complete implements CompletionMatcher.
func (f MatcherFunc) Complete(line string) bool { return f(line) }
