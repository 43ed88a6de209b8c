// Package keycloak implements the identity-provider gateway against the
// Keycloak admin REST API. The service account authenticates with a
// resource-owner password grant on the admin-cli client; the resulting
// token source backs every admin call.
package keycloak

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/steveneschrich/dsa-keycloak-authorization-broker/internal/gateway"
	"github.com/steveneschrich/dsa-keycloak-authorization-broker/internal/identity"
)

// adminClientID is the built-in Keycloak client used for admin logins.
const adminClientID = "admin-cli"

// groupFetchConcurrency bounds the fan-out when resolving groups for
// every realm user at once.
const groupFetchConcurrency = 8

// Config carries the connection settings for one realm.
type Config struct {
	BaseURL  string // e.g. https://keycloak.example.org
	Realm    string
	Username string
	Password string
	Timeout  time.Duration
}

// Gateway talks to a single Keycloak realm.
type Gateway struct {
	cfg Config
	log *zap.Logger

	mu         sync.Mutex
	httpClient *http.Client
	clientIDs  map[string]string // client name -> internal id
}

// New creates an unauthenticated gateway. Authenticate must be called
// before any admin operation.
func New(cfg Config, log *zap.Logger) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Gateway{
		cfg:       cfg,
		log:       log,
		clientIDs: make(map[string]string),
	}
}

// Authenticate performs OIDC discovery on the realm issuer and logs the
// service account in with a password grant. The token source refreshes
// itself for the life of the gateway.
func (g *Gateway) Authenticate(ctx context.Context) error {
	issuer := g.cfg.BaseURL + "/realms/" + g.cfg.Realm

	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return fmt.Errorf("keycloak: discovery for %s failed: %w", issuer, err)
	}

	conf := &oauth2.Config{
		ClientID: adminClientID,
		Endpoint: provider.Endpoint(),
	}

	token, err := conf.PasswordCredentialsToken(ctx, g.cfg.Username, g.cfg.Password)
	if err != nil {
		return fmt.Errorf("%w: keycloak service account rejected: %v", gateway.ErrAuthFailed, err)
	}

	source := conf.TokenSource(context.Background(), token)

	g.mu.Lock()
	g.httpClient = oauth2.NewClient(context.Background(), source)
	g.httpClient.Timeout = g.cfg.Timeout
	g.mu.Unlock()

	g.log.Debug("keycloak service account authenticated", zap.String("realm", g.cfg.Realm))
	return nil
}

func (g *Gateway) client() (*http.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.httpClient == nil {
		return nil, fmt.Errorf("%w: keycloak gateway not authenticated", gateway.ErrAuthFailed)
	}
	return g.httpClient, nil
}

func (g *Gateway) adminURL(path string) string {
	return g.cfg.BaseURL + "/admin/realms/" + g.cfg.Realm + path
}

func (g *Gateway) get(ctx context.Context, rawURL string, out any) error {
	client, err := g.client()
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("keycloak: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("keycloak: request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: keycloak returned status %d", gateway.ErrAuthFailed, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return gateway.ErrNotFound
	case resp.StatusCode >= 300:
		return fmt.Errorf("keycloak: unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("keycloak: decode response: %w", err)
	}
	return nil
}

// Wire representations. The admin API returns much more; only the fields
// the broker consumes are decoded.
type kcUser struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

func (u kcUser) toIdentity() identity.Identity {
	return identity.Identity{
		ID:        u.ID,
		Login:     u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}

type kcGroup struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type kcClient struct {
	ID       string `json:"id"`
	ClientID string `json:"clientId"`
}

type kcSession struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// ListIdentitiesWithGroups returns every realm user with resolved group
// memberships. Group fetches fan out with bounded concurrency; a failed
// fetch drops only that user from the result.
func (g *Gateway) ListIdentitiesWithGroups(ctx context.Context) ([]identity.IdentityGroups, error) {
	var users []kcUser
	if err := g.get(ctx, g.adminURL("/users"), &users); err != nil {
		return nil, err
	}

	type slot struct {
		groups []identity.Group
		ok     bool
	}
	slots := make([]slot, len(users))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(groupFetchConcurrency)
	for i, u := range users {
		eg.Go(func() error {
			grps, err := g.ListGroups(egCtx, u.ID)
			if err != nil {
				// Capture per task; never cancel siblings.
				g.log.Warn("failed to resolve groups for user",
					zap.String("username", u.Username),
					zap.Error(err),
				)
				return nil
			}
			slots[i] = slot{groups: grps, ok: true}
			return nil
		})
	}
	_ = eg.Wait()

	out := make([]identity.IdentityGroups, 0, len(users))
	for i, u := range users {
		if !slots[i].ok {
			continue
		}
		out = append(out, identity.IdentityGroups{
			Identity: u.toIdentity(),
			Groups:   slots[i].groups,
		})
	}
	return out, nil
}

func (g *Gateway) findIdentity(ctx context.Context, query string) (*identity.Identity, error) {
	var users []kcUser
	if err := g.get(ctx, g.adminURL("/users?"+query), &users); err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, gateway.ErrNotFound
	}
	id := users[0].toIdentity()
	return &id, nil
}

// FindIdentityByUsername returns gateway.ErrNotFound when no user matches.
func (g *Gateway) FindIdentityByUsername(ctx context.Context, username string) (*identity.Identity, error) {
	return g.findIdentity(ctx, "username="+url.QueryEscape(username))
}

// FindIdentityByEmail returns gateway.ErrNotFound when no user matches.
func (g *Gateway) FindIdentityByEmail(ctx context.Context, email string) (*identity.Identity, error) {
	return g.findIdentity(ctx, "email="+url.QueryEscape(email))
}

// ListGroups returns the groups the given realm user belongs to.
func (g *Gateway) ListGroups(ctx context.Context, userID string) ([]identity.Group, error) {
	var raw []kcGroup
	if err := g.get(ctx, g.adminURL("/users/"+url.PathEscape(userID)+"/groups"), &raw); err != nil {
		return nil, err
	}
	out := make([]identity.Group, 0, len(raw))
	for _, kg := range raw {
		out = append(out, identity.Group{ID: kg.ID, Name: kg.Name})
	}
	return out, nil
}

// resolveClientID maps a client name (clientId in Keycloak terms) to the
// internal uuid the session endpoints key on. Resolutions are cached for
// the gateway lifetime.
func (g *Gateway) resolveClientID(ctx context.Context, clientName string) (string, error) {
	g.mu.Lock()
	if id, ok := g.clientIDs[clientName]; ok {
		g.mu.Unlock()
		return id, nil
	}
	g.mu.Unlock()

	var clients []kcClient
	if err := g.get(ctx, g.adminURL("/clients?clientId="+url.QueryEscape(clientName)), &clients); err != nil {
		return "", err
	}

	for _, c := range clients {
		if c.ClientID == clientName {
			g.mu.Lock()
			g.clientIDs[clientName] = c.ID
			g.mu.Unlock()
			return c.ID, nil
		}
	}
	return "", fmt.Errorf("%w: keycloak client %q", gateway.ErrNotFound, clientName)
}

// IsSessionActive reports whether the named user holds the given session
// against the named client. Both the session id and the username must
// match an active session.
func (g *Gateway) IsSessionActive(ctx context.Context, clientName, username, sessionID string) (bool, error) {
	internalID, err := g.resolveClientID(ctx, clientName)
	if err != nil {
		return false, err
	}

	var sessions []kcSession
	if err := g.get(ctx, g.adminURL("/clients/"+url.PathEscape(internalID)+"/user-sessions"), &sessions); err != nil {
		return false, err
	}

	for _, s := range sessions {
		if s.ID == sessionID {
			return s.Username == username, nil
		}
	}
	return false, nil
}

// DeleteSession revokes a realm session.
func (g *Gateway) DeleteSession(ctx context.Context, sessionID string) error {
	client, err := g.client()
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		g.adminURL("/sessions/"+url.PathEscape(sessionID)), nil)
	if err != nil {
		return fmt.Errorf("keycloak: build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("keycloak: request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return gateway.ErrNotFound
	case resp.StatusCode >= 300:
		return fmt.Errorf("keycloak: unexpected status %d", resp.StatusCode)
	}
	return nil
}
