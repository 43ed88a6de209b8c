package broker

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/steveneschrich/dsa-keycloak-authorization-broker/internal/identity"
)

type mockIdentityProvider struct {
	mock.Mock
}

func (m *mockIdentityProvider) Authenticate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockIdentityProvider) ListIdentitiesWithGroups(ctx context.Context) ([]identity.IdentityGroups, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]identity.IdentityGroups), args.Error(1)
}

func (m *mockIdentityProvider) FindIdentityByUsername(ctx context.Context, username string) (*identity.Identity, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.Identity), args.Error(1)
}

func (m *mockIdentityProvider) FindIdentityByEmail(ctx context.Context, email string) (*identity.Identity, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.Identity), args.Error(1)
}

func (m *mockIdentityProvider) ListGroups(ctx context.Context, userID string) ([]identity.Group, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]identity.Group), args.Error(1)
}

func (m *mockIdentityProvider) IsSessionActive(ctx context.Context, clientName, username, sessionID string) (bool, error) {
	args := m.Called(ctx, clientName, username, sessionID)
	return args.Bool(0), args.Error(1)
}

func (m *mockIdentityProvider) DeleteSession(ctx context.Context, sessionID string) error {
	return m.Called(ctx, sessionID).Error(0)
}

type mockDirectory struct {
	mock.Mock
}

func (m *mockDirectory) Authenticate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockDirectory) FindIdentity(ctx context.Context, text string) (*identity.Identity, []identity.Group, error) {
	args := m.Called(ctx, text)
	var id *identity.Identity
	if args.Get(0) != nil {
		id = args.Get(0).(*identity.Identity)
	}
	var grps []identity.Group
	if args.Get(1) != nil {
		grps = args.Get(1).([]identity.Group)
	}
	return id, grps, args.Error(2)
}

func (m *mockDirectory) CreateIdentity(ctx context.Context, login, email, firstName, lastName, credential string) (*identity.Identity, error) {
	args := m.Called(ctx, login, email, firstName, lastName, credential)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.Identity), args.Error(1)
}

func (m *mockDirectory) SetCredential(ctx context.Context, userID, credential string) error {
	return m.Called(ctx, userID, credential).Error(0)
}

func (m *mockDirectory) GroupByID(ctx context.Context, groupID string) (*identity.Group, error) {
	args := m.Called(ctx, groupID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.Group), args.Error(1)
}

func (m *mockDirectory) GroupsByName(ctx context.Context, name string) ([]identity.Group, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]identity.Group), args.Error(1)
}

func (m *mockDirectory) AddMembership(ctx context.Context, groupID, userID string) error {
	return m.Called(ctx, groupID, userID).Error(0)
}

func (m *mockDirectory) RemoveMembership(ctx context.Context, groupID, userID string) error {
	return m.Called(ctx, groupID, userID).Error(0)
}

func (m *mockDirectory) Login(ctx context.Context, login, credential string) (*identity.AuthPayload, error) {
	args := m.Called(ctx, login, credential)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.AuthPayload), args.Error(1)
}
