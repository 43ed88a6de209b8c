package girder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/steveneschrich/dsa-keycloak-authorization-broker/internal/cache"
	"github.com/steveneschrich/dsa-keycloak-authorization-broker/internal/gateway"
)

func newTestGateway(t *testing.T, handler http.Handler) *Gateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	groupCache, err := cache.NewLRU(0)
	require.NoError(t, err)

	return New(Config{
		BaseURL:  srv.URL,
		Username: "admin",
		Password: "secret",
	}, groupCache, zap.NewNop())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func authResponse(token string) map[string]any {
	return map[string]any{
		"authToken": map[string]any{
			"token":   token,
			"expires": "2026-09-01T00:00:00Z",
		},
		"user": map[string]any{
			"_id":   "u-1",
			"login": "admin",
			"email": "admin@example.org",
		},
	}
}

func TestAuthenticate_SendsBasicCredentialsAndStoresToken(t *testing.T) {
	var sawToken string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/user/authentication", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "admin" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, authResponse("svc-token"))
	})
	mux.HandleFunc("GET /api/v1/user", func(w http.ResponseWriter, r *http.Request) {
		sawToken = r.Header.Get("Girder-Token")
		writeJSON(w, []any{})
	})

	g := newTestGateway(t, mux)
	ctx := context.Background()

	require.NoError(t, g.Authenticate(ctx))

	_, _, err := g.FindIdentity(ctx, "nobody")
	assert.ErrorIs(t, err, gateway.ErrNotFound)
	assert.Equal(t, "svc-token", sawToken)
}

func TestAuthenticate_RejectedCredentials(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/user/authentication", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	g := newTestGateway(t, mux)
	err := g.Authenticate(context.Background())

	assert.ErrorIs(t, err, gateway.ErrAuthFailed)
}

func TestFindIdentity_ResolvesGroupsThroughCache(t *testing.T) {
	var groupHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/user", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "jdoe", r.URL.Query().Get("text"))
		writeJSON(w, []map[string]any{{
			"_id":       "u-7",
			"login":     "jdoe",
			"email":     "jdoe@example.org",
			"firstName": "Jane",
			"lastName":  "Doe",
			"groups":    []string{"g-1"},
		}})
	})
	mux.HandleFunc("GET /api/v1/group/g-1", func(w http.ResponseWriter, r *http.Request) {
		groupHits.Add(1)
		writeJSON(w, map[string]any{"_id": "g-1", "name": "Oncology"})
	})

	g := newTestGateway(t, mux)
	ctx := context.Background()

	user, grps, err := g.FindIdentity(ctx, "jdoe")
	require.NoError(t, err)
	assert.Equal(t, "u-7", user.ID)
	assert.Equal(t, "jdoe", user.Login)
	require.Len(t, grps, 1)
	assert.Equal(t, "Oncology", grps[0].Name)

	// Second lookup comes from the cache, not the wire.
	_, _, err = g.FindIdentity(ctx, "jdoe")
	require.NoError(t, err)
	assert.Equal(t, int32(1), groupHits.Load())
}

func TestCreateIdentity_SendsFormFields(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/user", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "jdoe", r.PostForm.Get("login"))
		assert.Equal(t, "jdoe@example.org", r.PostForm.Get("email"))
		assert.Equal(t, "Jane", r.PostForm.Get("firstName"))
		assert.Equal(t, "Doe", r.PostForm.Get("lastName"))
		assert.Equal(t, "cred123456", r.PostForm.Get("password"))
		writeJSON(w, map[string]any{"_id": "u-7", "login": "jdoe"})
	})

	g := newTestGateway(t, mux)
	created, err := g.CreateIdentity(context.Background(), "jdoe", "jdoe@example.org", "Jane", "Doe", "cred123456")

	require.NoError(t, err)
	assert.Equal(t, "u-7", created.ID)
}

func TestSetCredential(t *testing.T) {
	var gotPassword string
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /api/v1/user/u-7/password", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotPassword = r.PostForm.Get("password")
		writeJSON(w, map[string]any{})
	})

	g := newTestGateway(t, mux)
	err := g.SetCredential(context.Background(), "u-7", "newCred9")

	require.NoError(t, err)
	assert.Equal(t, "newCred9", gotPassword)
}

func TestGroupsByName_FuzzySearchParameters(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/group", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "Oncology", q.Get("text"))
		assert.Equal(t, "false", q.Get("exact"))
		writeJSON(w, []map[string]any{
			{"_id": "g-1", "name": "Oncology"},
			{"_id": "g-2", "name": "Oncology-Archive"},
		})
	})

	g := newTestGateway(t, mux)
	grps, err := g.GroupsByName(context.Background(), "Oncology")

	require.NoError(t, err)
	require.Len(t, grps, 2)
	assert.Equal(t, "Oncology", grps[0].Name)
}

func TestMembershipCalls(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/group/g-1/invitation", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "u-7", r.PostForm.Get("userId"))
		assert.Equal(t, "0", r.PostForm.Get("level"))
		assert.Equal(t, "true", r.PostForm.Get("force"))
		writeJSON(w, map[string]any{})
	})
	mux.HandleFunc("DELETE /api/v1/group/g-1/member", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "u-7", r.URL.Query().Get("userId"))
		writeJSON(w, map[string]any{})
	})

	g := newTestGateway(t, mux)
	ctx := context.Background()

	require.NoError(t, g.AddMembership(ctx, "g-1", "u-7"))
	require.NoError(t, g.RemoveMembership(ctx, "g-1", "u-7"))
}

func TestLogin_ReturnsPayload(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/user/authentication", func(w http.ResponseWriter, r *http.Request) {
		user, pass, _ := r.BasicAuth()
		if user == "jdoe" && pass == "cred123456" {
			writeJSON(w, authResponse("user-token"))
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	})

	g := newTestGateway(t, mux)

	payload, err := g.Login(context.Background(), "jdoe", "cred123456")
	require.NoError(t, err)
	assert.Equal(t, "user-token", payload.Token)

	_, err = g.Login(context.Background(), "jdoe", "wrong")
	assert.ErrorIs(t, err, gateway.ErrAuthFailed)
}

func TestGroupByID_NotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/group/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	g := newTestGateway(t, mux)
	_, err := g.GroupByID(context.Background(), "missing")

	assert.ErrorIs(t, err, gateway.ErrNotFound)
}
