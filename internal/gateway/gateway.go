// Package gateway defines the capability contracts the broker depends on.
// Implementations own all transport concerns (REST paths, headers,
// serialization); the broker sees only typed domain shapes.
package gateway

import (
	"context"
	"errors"

	"github.com/steveneschrich/dsa-keycloak-authorization-broker/internal/identity"
)

var (
	// ErrNotFound reports an absent identity or group. Callers usually
	// log and skip rather than abort.
	ErrNotFound = errors.New("gateway: not found")

	// ErrAuthFailed reports a rejected service-account or user
	// authentication. Fatal to the workflow that triggered it.
	ErrAuthFailed = errors.New("gateway: authentication failed")
)

// IdentityProvider is the capability surface the broker needs from the
// IdP (Keycloak). Authenticate must be called before any other operation.
type IdentityProvider interface {
	// Authenticate logs in the service account and prepares the
	// gateway for admin operations.
	Authenticate(ctx context.Context) error

	// ListIdentitiesWithGroups returns every realm user together with
	// its resolved group memberships.
	ListIdentitiesWithGroups(ctx context.Context) ([]identity.IdentityGroups, error)

	// FindIdentityByUsername returns ErrNotFound when no user matches.
	FindIdentityByUsername(ctx context.Context, username string) (*identity.Identity, error)

	// FindIdentityByEmail returns ErrNotFound when no user matches.
	FindIdentityByEmail(ctx context.Context, email string) (*identity.Identity, error)

	// ListGroups returns the groups the given user belongs to.
	ListGroups(ctx context.Context, userID string) ([]identity.Group, error)

	// IsSessionActive reports whether the named user currently holds
	// the given session against the named client application.
	IsSessionActive(ctx context.Context, clientName, username, sessionID string) (bool, error)

	// DeleteSession revokes an IdP session.
	DeleteSession(ctx context.Context, sessionID string) error
}

// Directory is the capability surface the broker needs from the DSA user
// directory. Authenticate must be called before any other operation.
type Directory interface {
	// Authenticate logs in the service account.
	Authenticate(ctx context.Context) error

	// FindIdentity searches by username or email and returns the first
	// match with its groups resolved, or ErrNotFound.
	FindIdentity(ctx context.Context, text string) (*identity.Identity, []identity.Group, error)

	// CreateIdentity registers a new directory user with the given
	// credential. The new user starts with no group memberships.
	CreateIdentity(ctx context.Context, login, email, firstName, lastName, credential string) (*identity.Identity, error)

	// SetCredential replaces the user's password.
	SetCredential(ctx context.Context, userID, credential string) error

	// GroupByID resolves a group, consulting the process-wide cache
	// before the wire.
	GroupByID(ctx context.Context, groupID string) (*identity.Group, error)

	// GroupsByName performs a fuzzy name search; callers pick the
	// exact match out of the result.
	GroupsByName(ctx context.Context, name string) ([]identity.Group, error)

	// AddMembership places the user in the group at member level,
	// forcing the invitation rather than requiring acceptance.
	AddMembership(ctx context.Context, groupID, userID string) error

	// RemoveMembership takes the user out of the group.
	RemoveMembership(ctx context.Context, groupID, userID string) error

	// Login authenticates as an end user and returns the directory's
	// token payload. Returns ErrAuthFailed on rejection.
	Login(ctx context.Context, login, credential string) (*identity.AuthPayload, error)
}
