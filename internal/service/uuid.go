package service

import "github.com/google/uuid"

// UUIDGenerator mints ids for API keys, traces and audit records. Tests
// swap in a fixed sequence.
type UUIDGenerator interface {
	NewString() string
}

type DefaultUUIDGenerator struct{}

func (*DefaultUUIDGenerator) NewString() string { return uuid.NewString() }
