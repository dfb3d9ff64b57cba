package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/phuslu/log"

	"github.com/cloo-solutions/copilot/internal/domain"
)

const (
	apiKeyPrefix   = "cpk_"
	apiTokenBytes  = 32
	apiTokenLength = len(apiKeyPrefix) + 2*apiTokenBytes

	// touchEvery bounds how often one key's last-used time is written.
	touchEvery = time.Minute
)

type APIKeyRepository interface {
	Create(ctx context.Context, key *domain.APIKey) error
	GetByHash(ctx context.Context, hash string) (*domain.APIKey, error)
	List(ctx context.Context) ([]*domain.APIKey, error)
	Revoke(ctx context.Context, id string) error
	Touch(ctx context.Context, id string, at time.Time) error
}

// AuthService issues and checks the cpk_ bearer tokens. Only a SHA-256 of
// each token is stored.
type AuthService struct {
	keys    APIKeyRepository
	uuidGen UUIDGenerator
	now     func() time.Time

	mu      sync.Mutex
	touched map[string]time.Time
}

func NewAuthService(keys APIKeyRepository, uuidGen UUIDGenerator) *AuthService {
	if uuidGen == nil {
		uuidGen = &DefaultUUIDGenerator{}
	}
	return &AuthService{
		keys:    keys,
		uuidGen: uuidGen,
		now:     func() time.Time { return time.Now().UTC() },
		touched: make(map[string]time.Time),
	}
}

// CreateAPIKey stores a new key with roles and returns its token. The token
// is shown once; it cannot be recovered from the store.
func (s *AuthService) CreateAPIKey(ctx context.Context, name string, roles []string) (string, *domain.APIKey, error) {
	token, err := newAPIToken()
	if err != nil {
		return "", nil, domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "failed to generate API key", err)
	}
	key, err := s.store(ctx, name, token, roles)
	if err != nil {
		return "", nil, err
	}
	return token, key, nil
}

// CreateAPIKeyWithToken stores a token chosen by the operator, as the
// INIT_API_KEY bootstrap does.
func (s *AuthService) CreateAPIKeyWithToken(ctx context.Context, name, token string, roles []string) error {
	if !IsValidAPIToken(token) {
		return domain.NewDomainError(domain.ErrCodeValidation, "invalid API key format (expected cpk_<64 hex chars>)")
	}
	_, err := s.store(ctx, name, token, roles)
	return err
}

func (s *AuthService) store(ctx context.Context, name, token string, roles []string) (*domain.APIKey, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "API key name is required")
	}

	key := &domain.APIKey{
		ID:        s.uuidGen.NewString(),
		Name:      name,
		KeyHash:   hashToken(token),
		Roles:     normalizeRoles(roles),
		CreatedAt: s.now(),
	}
	if err := domain.ValidateAPIKey(key); err != nil {
		return nil, err
	}
	if err := s.keys.Create(ctx, key); err != nil {
		return nil, err
	}
	return key, nil
}

// ValidateAPIKey resolves a bearer token to its principal. Unknown and
// malformed tokens are indistinguishable to the caller.
func (s *AuthService) ValidateAPIKey(ctx context.Context, token string) (*domain.Principal, error) {
	if !IsValidAPIToken(token) {
		return nil, domain.ErrInvalidAPIKey
	}

	key, err := s.keys.GetByHash(ctx, hashToken(token))
	switch {
	case errors.Is(err, domain.ErrAPIKeyNotFound):
		return nil, domain.ErrInvalidAPIKey
	case err != nil:
		return nil, err
	case key.IsRevoked():
		return nil, domain.ErrAPIKeyRevoked
	}

	s.touch(ctx, key.ID)
	return key.Principal(), nil
}

// touch records key use at most once per touchEvery. A failed write is
// logged; it never fails the request.
func (s *AuthService) touch(ctx context.Context, id string) {
	now := s.now()
	s.mu.Lock()
	if last, ok := s.touched[id]; ok && now.Sub(last) < touchEvery {
		s.mu.Unlock()
		return
	}
	s.touched[id] = now
	s.mu.Unlock()

	if err := s.keys.Touch(ctx, id, now); err != nil {
		log.Warn().Err(err).Str("key_id", id).Msg("failed to record api key use")
	}
}

func (s *AuthService) RevokeAPIKey(ctx context.Context, keyID string) error {
	if keyID == "" {
		return domain.NewDomainError(domain.ErrCodeValidation, "API key ID is required")
	}
	return s.keys.Revoke(ctx, keyID)
}

func (s *AuthService) ListAPIKeys(ctx context.Context) ([]*domain.APIKey, error) {
	return s.keys.List(ctx)
}

// IsValidAPIToken reports whether token is cpk_ followed by 64 hex digits.
func IsValidAPIToken(token string) bool {
	if len(token) != apiTokenLength || !strings.HasPrefix(token, apiKeyPrefix) {
		return false
	}
	_, err := hex.DecodeString(token[len(apiKeyPrefix):])
	return err == nil
}

func newAPIToken() (string, error) {
	buf := make([]byte, apiTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return apiKeyPrefix + hex.EncodeToString(buf), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// normalizeRoles trims names and drops blanks and repeats, keeping order.
func normalizeRoles(roles []string) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		r = strings.TrimSpace(r)
		if r != "" && !slices.Contains(out, r) {
			out = append(out, r)
		}
	}
	return out
}
