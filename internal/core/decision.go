package core

import "strings"

// GoExpertToken is the control token the model emits to request the expert
// hand-off.
const GoExpertToken = "[GO_EXPERT]"

// SentinelMatch selects how strictly the control token is recognised.
type SentinelMatch int

const (
	// MatchExact requires the whole reply to be the token.  Used by chat,
	// where the word may legitimately appear inside a longer answer.
	MatchExact SentinelMatch = iota
	// MatchContains accepts the token anywhere in the reply.  Used by the
	// initial intake form.
	MatchContains
)

// Decision is the typed reading of a model reply.
type Decision struct {
	HandOff bool
	Content string
}

// Decide parses a model reply into a Decision.
func Decide(output string, match SentinelMatch) Decision {
	out := strings.TrimSpace(output)
	var handOff bool
	switch match {
	case MatchExact:
		handOff = out == GoExpertToken
	case MatchContains:
		handOff = strings.Contains(out, GoExpertToken)
	}
	return Decision{HandOff: handOff, Content: out}
}
