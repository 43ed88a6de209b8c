// Package groups computes membership deltas between two systems. The logic
// is pure: no I/O, no side effects, deterministic for a given input order.
package groups

import "github.com/steveneschrich/dsa-keycloak-authorization-broker/internal/identity"

// Diff returns the changes needed to make target's memberships match
// source's. toAdd holds source groups whose name has no match in target;
// toRemove holds target groups whose name has no match in source.
//
// Matching is by exact group name only — ids are system-local and never
// compared across systems. Output order follows input order.
func Diff(source, target []identity.Group) (toAdd, toRemove []identity.Group) {
	sourceNames := make(map[string]struct{}, len(source))
	for _, g := range source {
		sourceNames[g.Name] = struct{}{}
	}

	targetNames := make(map[string]struct{}, len(target))
	for _, g := range target {
		targetNames[g.Name] = struct{}{}
	}

	for _, g := range source {
		if _, ok := targetNames[g.Name]; !ok {
			toAdd = append(toAdd, g)
		}
	}

	for _, g := range target {
		if _, ok := sourceNames[g.Name]; !ok {
			toRemove = append(toRemove, g)
		}
	}

	return toAdd, toRemove
}
