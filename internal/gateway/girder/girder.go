// Package girder implements the directory gateway against a Girder-based
// DSA instance. Authentication yields a Girder-Token that is attached to
// every subsequent request. Group lookups by id go through an injected
// cache because the same handful of groups is resolved over and over
// during reconciliation.
package girder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/steveneschrich/dsa-keycloak-authorization-broker/internal/cache"
	"github.com/steveneschrich/dsa-keycloak-authorization-broker/internal/gateway"
	"github.com/steveneschrich/dsa-keycloak-authorization-broker/internal/identity"
)

const tokenHeader = "Girder-Token"

// Config carries the connection settings for one directory instance.
type Config struct {
	BaseURL  string // e.g. https://dsa.example.org
	Username string
	Password string
	Timeout  time.Duration
}

// Gateway talks to a single Girder directory.
type Gateway struct {
	cfg        Config
	httpClient *http.Client
	groups     cache.GroupCache
	log        *zap.Logger

	mu    sync.Mutex
	token string
}

// New creates an unauthenticated gateway using the given group cache.
func New(cfg Config, groups cache.GroupCache, log *zap.Logger) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Gateway{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		groups:     groups,
		log:        log,
	}
}

func (g *Gateway) apiURL(path string) string {
	return g.cfg.BaseURL + "/api/v1" + path
}

func (g *Gateway) currentToken() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.token
}

// do issues a request with the service token attached. A non-nil form is
// sent urlencoded; out, when non-nil, receives the decoded JSON body.
func (g *Gateway) do(ctx context.Context, method, rawURL string, form url.Values, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return fmt.Errorf("girder: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if tok := g.currentToken(); tok != "" {
		req.Header.Set(tokenHeader, tok)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("girder: request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: girder returned status %d", gateway.ErrAuthFailed, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return gateway.ErrNotFound
	case resp.StatusCode >= 300:
		return fmt.Errorf("girder: unexpected status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("girder: decode response: %w", err)
	}
	return nil
}

// Wire representations.
type girderUser struct {
	ID        string   `json:"_id"`
	Login     string   `json:"login"`
	Email     string   `json:"email"`
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	Groups    []string `json:"groups"`
}

func (u girderUser) toIdentity() identity.Identity {
	return identity.Identity{
		ID:        u.ID,
		Login:     u.Login,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}

type girderGroup struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

type girderAuth struct {
	AuthToken struct {
		Token   string    `json:"token"`
		Expires time.Time `json:"expires"`
	} `json:"authToken"`
	User girderUser `json:"user"`
}

// login hits the authentication endpoint with Basic credentials. Girder
// issues a token in exchange.
func (g *Gateway) login(ctx context.Context, username, password string) (*girderAuth, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.apiURL("/user/authentication"), nil)
	if err != nil {
		return nil, fmt.Errorf("girder: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(username, password)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("girder: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: girder rejected credentials for %s", gateway.ErrAuthFailed, username)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("girder: unexpected status %d", resp.StatusCode)
	}

	var auth girderAuth
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return nil, fmt.Errorf("girder: decode response: %w", err)
	}
	return &auth, nil
}

// Authenticate logs the service account in and stores its token for
// subsequent requests.
func (g *Gateway) Authenticate(ctx context.Context) error {
	auth, err := g.login(ctx, g.cfg.Username, g.cfg.Password)
	if err != nil {
		return err
	}

	g.mu.Lock()
	g.token = auth.AuthToken.Token
	g.mu.Unlock()

	g.log.Debug("girder service account authenticated")
	return nil
}

// Login authenticates as an end user and returns the directory's token
// payload. The service token is left untouched.
func (g *Gateway) Login(ctx context.Context, login, credential string) (*identity.AuthPayload, error) {
	auth, err := g.login(ctx, login, credential)
	if err != nil {
		return nil, err
	}
	return &identity.AuthPayload{
		Token:   auth.AuthToken.Token,
		Expires: auth.AuthToken.Expires,
		User:    auth.User.toIdentity(),
	}, nil
}

// FindIdentity searches users by username or email and returns the first
// match with its groups resolved through the cache.
func (g *Gateway) FindIdentity(ctx context.Context, text string) (*identity.Identity, []identity.Group, error) {
	q := url.Values{}
	q.Set("text", text)
	q.Set("limit", "50")
	q.Set("sort", "lastName")
	q.Set("sortdir", "1")

	var users []girderUser
	if err := g.do(ctx, http.MethodGet, g.apiURL("/user?"+q.Encode()), nil, &users); err != nil {
		return nil, nil, err
	}
	if len(users) == 0 {
		return nil, nil, gateway.ErrNotFound
	}

	u := users[0]
	resolved := make([]identity.Group, 0, len(u.Groups))
	for _, groupID := range u.Groups {
		grp, err := g.GroupByID(ctx, groupID)
		if err != nil {
			return nil, nil, fmt.Errorf("resolving group %s for user %s: %w", groupID, u.Login, err)
		}
		resolved = append(resolved, *grp)
	}

	id := u.toIdentity()
	return &id, resolved, nil
}

// CreateIdentity registers a new directory user. The directory starts the
// account with no group memberships.
func (g *Gateway) CreateIdentity(ctx context.Context, login, email, firstName, lastName, credential string) (*identity.Identity, error) {
	form := url.Values{}
	form.Set("login", login)
	form.Set("email", email)
	form.Set("firstName", firstName)
	form.Set("lastName", lastName)
	form.Set("password", credential)

	var created girderUser
	if err := g.do(ctx, http.MethodPost, g.apiURL("/user"), form, &created); err != nil {
		return nil, err
	}
	id := created.toIdentity()
	return &id, nil
}

// SetCredential replaces the user's password.
func (g *Gateway) SetCredential(ctx context.Context, userID, credential string) error {
	form := url.Values{}
	form.Set("password", credential)
	return g.do(ctx, http.MethodPut, g.apiURL("/user/"+url.PathEscape(userID)+"/password"), form, nil)
}

// GroupByID resolves a group, consulting the cache first.
func (g *Gateway) GroupByID(ctx context.Context, groupID string) (*identity.Group, error) {
	if cached, ok := g.groups.Get(ctx, groupID); ok {
		return &cached, nil
	}

	var raw girderGroup
	if err := g.do(ctx, http.MethodGet, g.apiURL("/group/"+url.PathEscape(groupID)), nil, &raw); err != nil {
		return nil, err
	}

	grp := identity.Group{ID: raw.ID, Name: raw.Name}
	g.groups.Add(ctx, grp)
	return &grp, nil
}

// GroupsByName performs a fuzzy name search. Callers pick the exact match
// out of the result.
func (g *Gateway) GroupsByName(ctx context.Context, name string) ([]identity.Group, error) {
	q := url.Values{}
	q.Set("text", name)
	q.Set("exact", "false")
	q.Set("limit", "50")
	q.Set("sort", "name")
	q.Set("sortdir", "1")

	var raw []girderGroup
	if err := g.do(ctx, http.MethodGet, g.apiURL("/group?"+q.Encode()), nil, &raw); err != nil {
		return nil, err
	}

	out := make([]identity.Group, 0, len(raw))
	for _, gr := range raw {
		out = append(out, identity.Group{ID: gr.ID, Name: gr.Name})
	}
	return out, nil
}

// AddMembership places the user in the group at member level. force skips
// the invitation-acceptance step.
func (g *Gateway) AddMembership(ctx context.Context, groupID, userID string) error {
	form := url.Values{}
	form.Set("userId", userID)
	form.Set("level", "0")
	form.Set("force", "true")
	return g.do(ctx, http.MethodPost, g.apiURL("/group/"+url.PathEscape(groupID)+"/invitation"), form, nil)
}

// RemoveMembership takes the user out of the group.
func (g *Gateway) RemoveMembership(ctx context.Context, groupID, userID string) error {
	target := g.apiURL("/group/" + url.PathEscape(groupID) + "/member?userId=" + url.QueryEscape(userID))
	return g.do(ctx, http.MethodDelete, target, nil, nil)
}
