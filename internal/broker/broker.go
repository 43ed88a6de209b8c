// Package broker orchestrates the cross-system provisioning and group
// reconciliation workflows between Keycloak and the DSA directory.
package broker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/steveneschrich/dsa-keycloak-authorization-broker/internal/credentials"
	"github.com/steveneschrich/dsa-keycloak-authorization-broker/internal/gateway"
	"github.com/steveneschrich/dsa-keycloak-authorization-broker/internal/groups"
	"github.com/steveneschrich/dsa-keycloak-authorization-broker/internal/identity"
)

// reconcileConcurrency bounds the per-identity fan-out in the bulk sync.
const reconcileConcurrency = 8

// Broker ties the two gateways together. It holds no request state; every
// workflow re-authenticates the service accounts it needs, mirroring the
// stateless design of the service.
type Broker struct {
	idp        gateway.IdentityProvider
	dir        gateway.Directory
	clientName string
	log        *zap.Logger

	// generate is swappable in tests.
	generate func(n int) (string, error)
}

// New creates a broker using the configured Keycloak client application
// name for session checks.
func New(idp gateway.IdentityProvider, dir gateway.Directory, clientName string, log *zap.Logger) *Broker {
	return &Broker{
		idp:        idp,
		dir:        dir,
		clientName: clientName,
		log:        log,
		generate:   credentials.Generate,
	}
}

// ProvisionRequest carries the end-user attributes for an authorization
// call. Login/email/names describe the directory account; the Keycloak
// fields identify the session to validate.
type ProvisionRequest struct {
	Login             string `json:"login"`
	Email             string `json:"email"`
	FirstName         string `json:"firstName"`
	LastName          string `json:"lastName"`
	KeycloakUsername  string `json:"keycloakUsername"`
	KeycloakSessionID string `json:"keycloakSessionId"`
}

// AuthResult is the structured outcome of a workflow. Status mirrors the
// HTTP status the handler should answer with.
type AuthResult struct {
	Status  int                   `json:"status"`
	Message string                `json:"message"`
	Payload *identity.AuthPayload `json:"payload,omitempty"`
}

func unauthorized(message string) *AuthResult {
	return &AuthResult{Status: http.StatusUnauthorized, Message: message}
}

// Report summarizes one bulk reconciliation run.
type Report struct {
	Processed int      `json:"processed"`
	Skipped   []string `json:"skipped,omitempty"`
	Failures  []string `json:"failures,omitempty"`
}

// ReconcileAllUsers syncs group membership for every Keycloak user that
// already exists in the directory. Users absent from the directory are
// skipped; per-identity failures are recorded in the report and never
// abort the rest of the run.
func (b *Broker) ReconcileAllUsers(ctx context.Context) (*Report, error) {
	if err := b.idp.Authenticate(ctx); err != nil {
		return nil, fmt.Errorf("keycloak service auth: %w", err)
	}
	if err := b.dir.Authenticate(ctx); err != nil {
		return nil, fmt.Errorf("directory service auth: %w", err)
	}

	users, err := b.idp.ListIdentitiesWithGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing keycloak users: %w", err)
	}

	report := &Report{}
	var mu sync.Mutex

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(reconcileConcurrency)
	for _, user := range users {
		eg.Go(func() error {
			username := user.Identity.Login
			err := b.reconcileUser(egCtx, user)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, gateway.ErrNotFound):
				b.log.Info("user not present in directory, skipping",
					zap.String("username", username))
				report.Skipped = append(report.Skipped, username)
			case err != nil:
				b.log.Error("reconciliation failed for user",
					zap.String("username", username), zap.Error(err))
				report.Failures = append(report.Failures, username)
			default:
				report.Processed++
			}
			// Errors are captured per identity; returning nil keeps
			// the remaining fan-out alive.
			return nil
		})
	}
	_ = eg.Wait()

	b.log.Info("bulk reconciliation finished",
		zap.Int("processed", report.Processed),
		zap.Int("skipped", len(report.Skipped)),
		zap.Int("failed", len(report.Failures)),
	)
	return report, nil
}

func (b *Broker) reconcileUser(ctx context.Context, user identity.IdentityGroups) error {
	dirUser, dirGroups, err := b.dir.FindIdentity(ctx, user.Identity.Login)
	if err != nil {
		return err
	}
	b.negotiate(ctx, user.Groups, dirUser, dirGroups)
	return nil
}

// AuthorizeAndProvision validates the Keycloak session, creates or
// refreshes the directory account, reconciles its groups against
// Keycloak, and logs the user in to obtain a directory token. An
// inactive session aborts before any directory mutation.
func (b *Broker) AuthorizeAndProvision(ctx context.Context, req ProvisionRequest) (*AuthResult, error) {
	if err := b.idp.Authenticate(ctx); err != nil {
		return unauthorized("Unauthorized: identity provider unavailable"), err
	}
	if err := b.dir.Authenticate(ctx); err != nil {
		return unauthorized("Unauthorized: directory unavailable"), err
	}

	active, err := b.idp.IsSessionActive(ctx, b.clientName, req.KeycloakUsername, req.KeycloakSessionID)
	if err != nil {
		return unauthorized("Unauthorized: session check failed"), err
	}
	if !active {
		return unauthorized("Unauthorized: session is not active"), nil
	}

	credential, err := b.generate(credentials.Length)
	if err != nil {
		return unauthorized("Unauthorized: provisioning failed"), err
	}

	dirUser, dirGroups, err := b.dir.FindIdentity(ctx, req.Login)
	switch {
	case errors.Is(err, gateway.ErrNotFound):
		dirUser, err = b.dir.CreateIdentity(ctx, req.Login, req.Email, req.FirstName, req.LastName, credential)
		if err != nil {
			return unauthorized("Unauthorized: provisioning failed"), err
		}
		dirGroups = nil
		b.log.Info("created directory user", zap.String("login", req.Login))
	case err != nil:
		return unauthorized("Unauthorized: directory lookup failed"), err
	default:
		// Existing users get a fresh credential on every successful
		// authorization; the directory password is never long-lived.
		if err := b.dir.SetCredential(ctx, dirUser.ID, credential); err != nil {
			return unauthorized("Unauthorized: credential rotation failed"), err
		}
	}

	idpUser, err := b.idp.FindIdentityByEmail(ctx, req.Email)
	if err != nil {
		return unauthorized("Unauthorized: identity lookup failed"), err
	}
	idpGroups, err := b.idp.ListGroups(ctx, idpUser.ID)
	if err != nil {
		return unauthorized("Unauthorized: group lookup failed"), err
	}

	b.negotiate(ctx, idpGroups, dirUser, dirGroups)

	payload, err := b.dir.Login(ctx, req.Login, credential)
	if err != nil {
		return unauthorized("Unauthorized: directory login failed"), err
	}

	return &AuthResult{
		Status:  http.StatusOK,
		Message: "Authorized",
		Payload: payload,
	}, nil
}

// negotiate applies the membership delta between the user's Keycloak
// groups and directory groups on the directory side. Failures are
// warnings: each add/remove is independent and the rest of the delta
// still executes.
func (b *Broker) negotiate(ctx context.Context, idpGroups []identity.Group, dirUser *identity.Identity, dirGroups []identity.Group) {
	toAdd, toRemove := groups.Diff(idpGroups, dirGroups)

	for _, grp := range toAdd {
		if err := b.addToGroup(ctx, grp.Name, dirUser.ID); err != nil {
			b.log.Warn("could not add user to directory group",
				zap.String("login", dirUser.Login),
				zap.String("group", grp.Name),
				zap.Error(err),
			)
			continue
		}
		b.log.Debug("added user to directory group",
			zap.String("login", dirUser.Login),
			zap.String("group", grp.Name),
		)
	}

	for _, grp := range toRemove {
		// The group id is the directory's own; no lookup needed.
		if err := b.dir.RemoveMembership(ctx, grp.ID, dirUser.ID); err != nil {
			b.log.Warn("could not remove user from directory group",
				zap.String("login", dirUser.Login),
				zap.String("group", grp.Name),
				zap.Error(err),
			)
			continue
		}
		b.log.Debug("removed user from directory group",
			zap.String("login", dirUser.Login),
			zap.String("group", grp.Name),
		)
	}
}

// addToGroup resolves a Keycloak group name to a directory group and adds
// the membership. The name search is fuzzy, so the exact match is picked
// out of the candidates.
func (b *Broker) addToGroup(ctx context.Context, name, userID string) error {
	candidates, err := b.dir.GroupsByName(ctx, name)
	if err != nil {
		return err
	}
	for _, c := range candidates {
		if c.Name == name {
			return b.dir.AddMembership(ctx, c.ID, userID)
		}
	}
	return fmt.Errorf("%w: directory group %q", gateway.ErrNotFound, name)
}

// CheckSession reports whether the user's Keycloak session is still
// active for the configured client. No mutation happens either way.
func (b *Broker) CheckSession(ctx context.Context, username, sessionID string) (*AuthResult, error) {
	if err := b.idp.Authenticate(ctx); err != nil {
		return unauthorized("Unauthorized: identity provider unavailable"), err
	}

	active, err := b.idp.IsSessionActive(ctx, b.clientName, username, sessionID)
	if err != nil {
		return unauthorized("Unauthorized: session check failed"), err
	}
	if !active {
		return unauthorized("Unauthorized: session is not active"), nil
	}

	return &AuthResult{Status: http.StatusOK, Message: "Session is active"}, nil
}

// TerminateSession revokes a Keycloak session. Failures propagate to the
// caller unchanged.
func (b *Broker) TerminateSession(ctx context.Context, sessionID string) error {
	if err := b.idp.Authenticate(ctx); err != nil {
		return err
	}
	return b.idp.DeleteSession(ctx, sessionID)
}
