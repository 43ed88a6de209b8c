// Package identity holds the typed domain model shared by the broker and
// both gateways. Keycloak and the DSA directory each keep their own user
// records; the two sides are correlated by email, never by id, because ids
// are system-local.
package identity

import "time"

// Identity is a human end user as represented in one system.
type Identity struct {
	ID        string `json:"id"`
	Login     string `json:"login"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// Group is a named authorization unit. Groups from different systems are
// considered the same iff their names match exactly (case-sensitive).
type Group struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// IdentityGroups pairs an identity with its group memberships as observed
// in one system at one point in time.
type IdentityGroups struct {
	Identity Identity
	Groups   []Group
}

// Session is an IdP login session scoped to a client application. The
// broker only queries or revokes sessions, it never creates them.
type Session struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// AuthPayload is the token bundle returned by a successful directory login.
type AuthPayload struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
	User    Identity  `json:"user"`
}
