// Package selector implements the Transition Selector (C6): enumerating
// enabled transitions for an event (or the eventless pass) and applying W3C
// Appendix D.2 conflict resolution to produce the optimal transition set
// (spec.md §4.5).
package selector

import "strings"

// MatchesDescriptor reports whether an event named eventName is matched by
// descriptor token per spec.md §4.5: "foo.bar" matches "foo.bar" and any
// "foo.bar.*"; "foo.*" or "foo" matches any "foo.*"; "*" matches any event.
func MatchesDescriptor(descriptor, eventName string) bool {
	if descriptor == "*" {
		return true
	}
	descriptor = strings.TrimSuffix(descriptor, ".*")
	if descriptor == eventName {
		return true
	}
	return strings.HasPrefix(eventName, descriptor+".")
}

// MatchesAny reports whether any of descriptors matches eventName. A nil/
// empty descriptor list means the transition is eventless and never matches
// a real event name (it's only a candidate in the eventless pass).
func MatchesAny(descriptors []string, eventName string) bool {
	for _, d := range descriptors {
		if MatchesDescriptor(d, eventName) {
			return true
		}
	}
	return false
}
