package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/copilot/internal/domain"
)

const (
	testToken = "cpk_0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	testKeyID = "5f0c7c1e-8a43-4d3e-9b7a-2d1f6e9c0a11"
)

func TestAuthService_CreateAPIKey(t *testing.T) {
	repo := new(MockAPIKeyRepository)
	repo.On("Create", mock.Anything, mock.AnythingOfType("*domain.APIKey")).Return(nil)

	svc := NewAuthService(repo, NewMockUUIDGenerator(testKeyID))
	token, key, err := svc.CreateAPIKey(context.Background(), "gateway", []string{" gateway ", "auditor", "gateway", ""})
	require.NoError(t, err)

	assert.True(t, IsValidAPIToken(token))
	assert.True(t, strings.HasPrefix(token, "cpk_"))
	assert.Equal(t, testKeyID, key.ID)
	assert.Equal(t, hashToken(token), key.KeyHash)
	assert.NotContains(t, key.KeyHash, token)
	assert.Equal(t, []string{"gateway", "auditor"}, key.Roles)
	repo.AssertExpectations(t)
}

func TestAuthService_CreateAPIKey_RequiresName(t *testing.T) {
	svc := NewAuthService(new(MockAPIKeyRepository), nil)
	_, _, err := svc.CreateAPIKey(context.Background(), "", nil)
	assert.Equal(t, domain.ErrCodeValidation, domain.CodeOf(err))
}

func TestAuthService_CreateAPIKeyWithToken(t *testing.T) {
	repo := new(MockAPIKeyRepository)
	repo.On("Create", mock.Anything, mock.MatchedBy(func(k *domain.APIKey) bool {
		return k.KeyHash == hashToken(testToken) && k.Name == "bootstrap"
	})).Return(nil)

	svc := NewAuthService(repo, nil)
	require.NoError(t, svc.CreateAPIKeyWithToken(context.Background(), "bootstrap", testToken, []string{"admin"}))

	err := svc.CreateAPIKeyWithToken(context.Background(), "bootstrap", "cpk_short", nil)
	assert.Equal(t, domain.ErrCodeValidation, domain.CodeOf(err))
	repo.AssertNumberOfCalls(t, "Create", 1)
}

func TestAuthService_ValidateAPIKey(t *testing.T) {
	revokedAt := time.Now()

	tests := []struct {
		name      string
		token     string
		setup     func(repo *MockAPIKeyRepository)
		wantErr   error
		wantRoles []string
	}{
		{
			name:  "valid",
			token: testToken,
			setup: func(repo *MockAPIKeyRepository) {
				repo.On("GetByHash", mock.Anything, hashToken(testToken)).
					Return(&domain.APIKey{ID: "k1", Name: "gw", Roles: []string{"gateway"}}, nil)
				repo.On("Touch", mock.Anything, "k1", mock.Anything).Return(nil)
			},
			wantRoles: []string{"gateway"},
		},
		{
			name:    "malformed",
			token:   "Bearer nope",
			setup:   func(repo *MockAPIKeyRepository) {},
			wantErr: domain.ErrInvalidAPIKey,
		},
		{
			name:  "unknown",
			token: testToken,
			setup: func(repo *MockAPIKeyRepository) {
				repo.On("GetByHash", mock.Anything, mock.Anything).Return(nil, domain.ErrAPIKeyNotFound)
			},
			wantErr: domain.ErrInvalidAPIKey,
		},
		{
			name:  "revoked",
			token: testToken,
			setup: func(repo *MockAPIKeyRepository) {
				repo.On("GetByHash", mock.Anything, mock.Anything).
					Return(&domain.APIKey{ID: "k1", Name: "gw", RevokedAt: &revokedAt}, nil)
			},
			wantErr: domain.ErrAPIKeyRevoked,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockAPIKeyRepository)
			tt.setup(repo)

			principal, err := NewAuthService(repo, nil).ValidateAPIKey(context.Background(), tt.token)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, principal)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "k1", principal.KeyID)
			assert.Equal(t, tt.wantRoles, principal.Roles)
		})
	}
}

func TestAuthService_ValidateAPIKey_StoreError(t *testing.T) {
	repo := new(MockAPIKeyRepository)
	boom := errors.New("db down")
	repo.On("GetByHash", mock.Anything, mock.Anything).Return(nil, boom)

	_, err := NewAuthService(repo, nil).ValidateAPIKey(context.Background(), testToken)
	assert.ErrorIs(t, err, boom)
}

func TestAuthService_CreateAPIKey_RejectsBadRole(t *testing.T) {
	svc := NewAuthService(new(MockAPIKeyRepository), NewMockUUIDGenerator(testKeyID))
	_, _, err := svc.CreateAPIKey(context.Background(), "ops", []string{"teller,auditor"})
	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeValidation, domain.CodeOf(err))
}

func TestAuthService_TouchIsThrottled(t *testing.T) {
	repo := new(MockAPIKeyRepository)
	repo.On("GetByHash", mock.Anything, mock.Anything).
		Return(&domain.APIKey{ID: "k1", Name: "gw"}, nil)
	repo.On("Touch", mock.Anything, "k1", mock.Anything).Return(errors.New("db busy"))

	svc := NewAuthService(repo, nil)
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }

	for i := 0; i < 3; i++ {
		_, err := svc.ValidateAPIKey(context.Background(), testToken)
		require.NoError(t, err, "a failed touch never fails authentication")
	}
	repo.AssertNumberOfCalls(t, "Touch", 1)

	clock = clock.Add(2 * time.Minute)
	_, err := svc.ValidateAPIKey(context.Background(), testToken)
	require.NoError(t, err)
	repo.AssertNumberOfCalls(t, "Touch", 2)
}

func TestAuthService_RevokeAndList(t *testing.T) {
	repo := new(MockAPIKeyRepository)
	repo.On("Revoke", mock.Anything, "k1").Return(nil)
	repo.On("List", mock.Anything).Return([]*domain.APIKey{{ID: "k1"}}, nil)

	svc := NewAuthService(repo, nil)
	require.NoError(t, svc.RevokeAPIKey(context.Background(), "k1"))
	assert.Equal(t, domain.ErrCodeValidation, domain.CodeOf(svc.RevokeAPIKey(context.Background(), "")))

	keys, err := svc.ListAPIKeys(context.Background())
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}

func TestIsValidAPIToken(t *testing.T) {
	assert.True(t, IsValidAPIToken(testToken))
	assert.False(t, IsValidAPIToken("nxai_"+strings.Repeat("a", 64)))
	assert.False(t, IsValidAPIToken("cpk_"+strings.Repeat("g", 64)))
	assert.False(t, IsValidAPIToken("cpk_"+strings.Repeat("a", 63)))
}
