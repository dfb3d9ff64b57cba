package service

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/cloo-solutions/copilot/internal/domain"
)

type MockAccessRepository struct {
	mock.Mock
}

func (m *MockAccessRepository) AccessibleDocumentIDs(ctx context.Context, access domain.AccessContext) ([]string, error) {
	args := m.Called(ctx, access)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type MockChunkSearcher struct {
	mock.Mock
}

func (m *MockChunkSearcher) NearestChunks(ctx context.Context, documentIDs []string, embedding []float32, model string, limit int) ([]domain.Chunk, error) {
	args := m.Called(ctx, documentIDs, embedding, model, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Chunk), args.Error(1)
}

type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

func (m *MockEmbedder) Model() string {
	return "test-embedding"
}

type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	args := m.Called(ctx, system, user)
	return args.String(0), args.Error(1)
}

func (m *MockGenerator) Name() string  { return "mock" }
func (m *MockGenerator) Model() string { return "mock-model" }

type MockAPIKeyRepository struct {
	mock.Mock
}

func (m *MockAPIKeyRepository) Create(ctx context.Context, key *domain.APIKey) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockAPIKeyRepository) Touch(ctx context.Context, id string, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *MockAPIKeyRepository) GetByHash(ctx context.Context, hash string) (*domain.APIKey, error) {
	args := m.Called(ctx, hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.APIKey), args.Error(1)
}

func (m *MockAPIKeyRepository) List(ctx context.Context) ([]*domain.APIKey, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.APIKey), args.Error(1)
}

func (m *MockAPIKeyRepository) Revoke(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockAuditStore struct {
	mock.Mock
}

func (m *MockAuditStore) List(ctx context.Context, filter domain.AuditFilter) (*domain.AuditPage, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AuditPage), args.Error(1)
}

// MockUUIDGenerator returns the given ids in order, then the nil UUID.
type MockUUIDGenerator struct {
	mu    sync.Mutex
	uuids []string
	index int
}

func NewMockUUIDGenerator(uuids ...string) *MockUUIDGenerator {
	return &MockUUIDGenerator{uuids: uuids}
}

func (m *MockUUIDGenerator) NewString() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.index >= len(m.uuids) {
		return "00000000-0000-0000-0000-000000000000"
	}
	id := m.uuids[m.index]
	m.index++
	return id
}

// recordingSink collects audit records.
type recordingSink struct {
	mu      sync.Mutex
	records []*domain.AuditRecord
	full    bool
}

func (s *recordingSink) Record(rec *domain.AuditRecord) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		return false
	}
	s.records = append(s.records, rec)
	return true
}

func (s *recordingSink) last() *domain.AuditRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.records) == 0 {
		return nil
	}
	return s.records[len(s.records)-1]
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

// testChunk builds an approved chunk of doc on page with the given distance.
func testChunk(id, doc string, page int, distance float64) domain.Chunk {
	return domain.Chunk{
		ID:                id,
		Text:              "Customers may transfer up to 10,000 per day through online banking without branch approval.",
		DocumentID:        doc,
		DocumentTitle:     "Title " + doc,
		DocumentStatus:    domain.DocumentStatusApproved,
		DocumentVersionID: "ver-" + doc,
		DocumentVersion:   "v1",
		SourceURI:         "s3://docs/" + doc + ".pdf",
		PageStart:         intPtr(page),
		PageEnd:           intPtr(page),
		OffsetStart:       intPtr(0),
		OffsetEnd:         intPtr(91),
		Distance:          floatPtr(distance),
	}
}
