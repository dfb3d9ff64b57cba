package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/cloo-solutions/copilot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockEmbeddingAPI is a mock embedding backend
type MockEmbeddingAPI struct {
	mock.Mock
}

func (m *MockEmbeddingAPI) CreateEmbeddings(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

func vector(n int) []float32 {
	v := make([]float32, n)
	for i := range v {
		v[i] = float32(i) * 0.001
	}
	return v
}

func TestClient_GenerateEmbedding_Success(t *testing.T) {
	mockAPI := new(MockEmbeddingAPI)
	client := NewClient(mockAPI, ClientConfig{Model: "m", Dimensions: 8, QueryPrefix: "query: "})

	expected := vector(8)
	mockAPI.On("CreateEmbeddings", mock.Anything, "query: What is the card fee?").Return(expected, nil)

	embedding, err := client.GenerateEmbedding(context.Background(), "What is the card fee?")

	require.NoError(t, err)
	assert.Equal(t, expected, embedding)
	mockAPI.AssertExpectations(t)
}

func TestClient_GenerateEmbedding_EmptyText(t *testing.T) {
	client := NewClient(new(MockEmbeddingAPI), ClientConfig{})

	embedding, err := client.GenerateEmbedding(context.Background(), "")

	assert.Nil(t, embedding)
	assert.Equal(t, ErrEmptyText, err)
}

func TestClient_GenerateEmbedding_RetriesThenSucceeds(t *testing.T) {
	mockAPI := new(MockEmbeddingAPI)
	client := NewClient(mockAPI, ClientConfig{Dimensions: 4, MaxRetries: 2})

	mockAPI.On("CreateEmbeddings", mock.Anything, "q").Return(nil, errors.New("connection reset")).Once()
	mockAPI.On("CreateEmbeddings", mock.Anything, "q").Return(vector(4), nil).Once()

	embedding, err := client.GenerateEmbedding(context.Background(), "q")

	require.NoError(t, err)
	assert.Len(t, embedding, 4)
	mockAPI.AssertNumberOfCalls(t, "CreateEmbeddings", 2)
}

func TestClient_GenerateEmbedding_TransportFailure(t *testing.T) {
	mockAPI := new(MockEmbeddingAPI)
	client := NewClient(mockAPI, ClientConfig{Dimensions: 4, MaxRetries: 1})

	mockAPI.On("CreateEmbeddings", mock.Anything, "q").Return(nil, errors.New("API rate limit exceeded"))

	embedding, err := client.GenerateEmbedding(context.Background(), "q")

	assert.Nil(t, embedding)
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
	assert.Equal(t, domain.ErrCodeTransport, domain.CodeOf(err))
	mockAPI.AssertNumberOfCalls(t, "CreateEmbeddings", 2)
}

func TestClient_GenerateEmbedding_WrongDimensionsIsNotRetried(t *testing.T) {
	mockAPI := new(MockEmbeddingAPI)
	client := NewClient(mockAPI, ClientConfig{Dimensions: 768, MaxRetries: 3})

	mockAPI.On("CreateEmbeddings", mock.Anything, "q").Return(vector(1536), nil)

	_, err := client.GenerateEmbedding(context.Background(), "q")

	assert.ErrorIs(t, err, ErrWrongDimensions)
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
	mockAPI.AssertNumberOfCalls(t, "CreateEmbeddings", 1)
}

func TestNewClient_Defaults(t *testing.T) {
	client := NewClient(new(MockEmbeddingAPI), ClientConfig{Model: "text-embedding-3-small"})

	assert.Equal(t, DefaultEmbeddingDimensions, client.Dimensions())
	assert.Equal(t, "text-embedding-3-small", client.Model())
}
