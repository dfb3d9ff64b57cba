package jobs

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/cloo-solutions/copilot/internal/domain"
)

// MockJobProcessor is a mock implementation of JobProcessor
type MockJobProcessor struct {
	mock.Mock
}

func (m *MockJobProcessor) ProcessJobs(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockAuditWriter is a mock implementation of AuditWriter
type MockAuditWriter struct {
	mock.Mock
}

func (m *MockAuditWriter) CreateBatch(ctx context.Context, recs []*domain.AuditRecord) error {
	args := m.Called(ctx, recs)
	return args.Error(0)
}

// MockAuditArchiver is a mock implementation of AuditArchiver
type MockAuditArchiver struct {
	mock.Mock
}

func (m *MockAuditArchiver) Archive(ctx context.Context, recs []*domain.AuditRecord) (string, error) {
	args := m.Called(ctx, recs)
	return args.String(0), args.Error(1)
}

func queueWith(n int) chan *domain.AuditRecord {
	q := make(chan *domain.AuditRecord, n+1)
	for i := 0; i < n; i++ {
		q <- &domain.AuditRecord{ID: strconv.Itoa(i)}
	}
	return q
}

func batchOf(n int) interface{} {
	return mock.MatchedBy(func(recs []*domain.AuditRecord) bool { return len(recs) == n })
}

// TestWorker_StartStop tests the worker start and stop functionality
func TestWorker_StartStop(t *testing.T) {
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(nil)

	worker := NewWorker("test", mockProcessor, 100*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	time.Sleep(250 * time.Millisecond)

	worker.Stop()
	wg.Wait()

	mockProcessor.AssertCalled(t, "ProcessJobs", mock.Anything)
}

// TestWorker_ContextCancellation tests worker stops on context cancellation
func TestWorker_ContextCancellation(t *testing.T) {
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(nil)

	worker := NewWorker("test", mockProcessor, 100*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	time.Sleep(150 * time.Millisecond)

	cancel()
	wg.Wait()

	mockProcessor.AssertCalled(t, "ProcessJobs", mock.Anything)
}

func TestWorker_ProcessorErrorKeepsRunning(t *testing.T) {
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(errors.New("boom"))

	worker := NewWorker("test", mockProcessor, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	time.Sleep(120 * time.Millisecond)
	worker.Stop()
	wg.Wait()

	assert.GreaterOrEqual(t, len(mockProcessor.Calls), 2)
}

func TestWorker_KickRunsImmediately(t *testing.T) {
	ran := make(chan struct{}, 4)
	proc := processorFunc(func(context.Context) error {
		ran <- struct{}{}
		return nil
	})
	worker := NewWorker("test", proc, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Start(ctx)

	worker.Kick()
	worker.Kick()

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("kick did not trigger a round")
	}
	worker.Stop()
}

func TestWorker_PanicIsContained(t *testing.T) {
	calls := make(chan struct{}, 8)
	proc := processorFunc(func(context.Context) error {
		calls <- struct{}{}
		panic("boom")
	})
	worker := NewWorker("test", proc, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Start(ctx)

	for i := 0; i < 2; i++ {
		select {
		case <-calls:
		case <-time.After(2 * time.Second):
			t.Fatal("worker stopped after a panic")
		}
	}
	worker.Stop()
}

type processorFunc func(context.Context) error

func (f processorFunc) ProcessJobs(ctx context.Context) error { return f(ctx) }

func TestAuditFlusher_EmptyQueue(t *testing.T) {
	store := new(MockAuditWriter)

	flusher := NewAuditFlusher(queueWith(0), store, nil, 10)
	assert.NoError(t, flusher.ProcessJobs(context.Background()))

	store.AssertNotCalled(t, "CreateBatch", mock.Anything, mock.Anything)
}

func TestAuditFlusher_WritesInBatches(t *testing.T) {
	store := new(MockAuditWriter)
	store.On("CreateBatch", mock.Anything, batchOf(2)).Return(nil).Twice()
	store.On("CreateBatch", mock.Anything, batchOf(1)).Return(nil).Once()

	flusher := NewAuditFlusher(queueWith(5), store, nil, 2)
	assert.NoError(t, flusher.ProcessJobs(context.Background()))

	store.AssertExpectations(t)
}

func TestAuditFlusher_ArchivesAfterStore(t *testing.T) {
	store := new(MockAuditWriter)
	archive := new(MockAuditArchiver)
	store.On("CreateBatch", mock.Anything, batchOf(3)).Return(nil)
	archive.On("Archive", mock.Anything, batchOf(3)).Return("audit/key.jsonl", nil)

	flusher := NewAuditFlusher(queueWith(3), store, archive, 10)
	assert.NoError(t, flusher.ProcessJobs(context.Background()))

	store.AssertExpectations(t)
	archive.AssertExpectations(t)
}

func TestAuditFlusher_SwallowsFailures(t *testing.T) {
	store := new(MockAuditWriter)
	archive := new(MockAuditArchiver)
	store.On("CreateBatch", mock.Anything, mock.Anything).Return(errors.New("db down"))
	archive.On("Archive", mock.Anything, mock.Anything).Return("", errors.New("s3 down"))

	queue := queueWith(2)
	flusher := NewAuditFlusher(queue, store, archive, 10)
	assert.NoError(t, flusher.ProcessJobs(context.Background()))

	assert.Empty(t, queue, "failed batches are dropped, not requeued")
	archive.AssertCalled(t, "Archive", mock.Anything, batchOf(2))
}

func TestAuditFlusher_DrainsClosedQueue(t *testing.T) {
	store := new(MockAuditWriter)
	store.On("CreateBatch", mock.Anything, batchOf(2)).Return(nil)

	queue := queueWith(2)
	close(queue)

	flusher := NewAuditFlusher(queue, store, nil, 10)
	assert.NoError(t, flusher.ProcessJobs(context.Background()))
	assert.NoError(t, flusher.ProcessJobs(context.Background()))

	store.AssertNumberOfCalls(t, "CreateBatch", 1)
}
