package domain

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
)

// APIKey authenticates a service caller such as the chat gateway. Its roles
// gate operator endpoints like the audit trail; they never widen which
// documents an end user may read.
type APIKey struct {
	ID         string     `validate:"required,uuid"`
	Name       string     `validate:"required,max=128"`
	KeyHash    string     `validate:"required,len=64,hexadecimal"`
	Roles      []string   `validate:"dive,required,max=64,excludesall=0x2C"`
	CreatedAt  time.Time  `validate:"required"`
	RevokedAt  *time.Time
	LastUsedAt *time.Time
}

func (a *APIKey) IsRevoked() bool {
	return a.RevokedAt != nil
}

// Principal returns the identity a request authenticated with this key
// carries.
func (a *APIKey) Principal() *Principal {
	return &Principal{KeyID: a.ID, Name: a.Name, Roles: slices.Clone(a.Roles)}
}

var keyValidate = validator.New(validator.WithRequiredStructEnabled())

// ValidateAPIKey checks a key before it is stored. Role names may not hold
// commas, which the CLI and config use as a separator.
func ValidateAPIKey(a *APIKey) error {
	if a == nil {
		return NewDomainError(ErrCodeValidation, "api key cannot be nil")
	}
	err := keyValidate.Struct(a)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return NewDomainErrorWithCause(ErrCodeValidation,
			fmt.Sprintf("api key %s is invalid (%s)", fe.Namespace(), fe.Tag()), err)
	}
	return NewDomainErrorWithCause(ErrCodeValidation, "invalid api key", err)
}

// Principal is the authenticated API caller attached to a request context.
type Principal struct {
	KeyID string
	Name  string
	Roles []string
}

// HasAnyRole reports whether the principal carries one of roles.
func (p *Principal) HasAnyRole(roles []string) bool {
	if p == nil {
		return false
	}
	return slices.ContainsFunc(p.Roles, func(have string) bool {
		return slices.Contains(roles, have)
	})
}
