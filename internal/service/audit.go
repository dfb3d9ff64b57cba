package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/cloo-solutions/copilot/internal/domain"
	"github.com/cloo-solutions/copilot/internal/pagination"
)

// AuditRecorder is a bounded in-memory queue of audit records. Record never
// blocks: when the queue is full the record is dropped and counted.
type AuditRecorder struct {
	mu      sync.RWMutex
	queue   chan *domain.AuditRecord
	closed  bool
	dropped atomic.Int64

	highWater int
	onHigh    func()
}

func NewAuditRecorder(size int) *AuditRecorder {
	if size <= 0 {
		size = 1024
	}
	return &AuditRecorder{queue: make(chan *domain.AuditRecord, size)}
}

// Record enqueues rec and reports whether it was accepted.
func (r *AuditRecorder) Record(rec *domain.AuditRecord) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.dropped.Add(1)
		return false
	}
	select {
	case r.queue <- rec:
		if r.onHigh != nil && len(r.queue) >= r.highWater {
			r.onHigh()
		}
		return true
	default:
		r.dropped.Add(1)
		return false
	}
}

// Queue is drained by the audit flusher.
func (r *AuditRecorder) Queue() <-chan *domain.AuditRecord {
	return r.queue
}

// OnHighWater registers fn to run after any Record that leaves the queue at
// least half full, so a flusher can drain early. fn must not block. Call it
// before the recorder is shared.
func (r *AuditRecorder) OnHighWater(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onHigh = fn
	r.highWater = max(cap(r.queue)/2, 1)
}

// Close stops accepting records. Records already queued stay readable.
func (r *AuditRecorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
}

func (r *AuditRecorder) Dropped() int64 {
	return r.dropped.Load()
}

// AuditStore lists persisted audit records.
type AuditStore interface {
	List(ctx context.Context, filter domain.AuditFilter) (*domain.AuditPage, error)
}

// AuditQuery is a caller's audit listing request.
type AuditQuery struct {
	UserID string
	Cursor string
	Limit  int
}

// AuditService serves the audit trail to operators.
type AuditService struct {
	store     AuditStore
	readRoles []string
}

func NewAuditService(store AuditStore, readRoles []string) *AuditService {
	return &AuditService{store: store, readRoles: readRoles}
}

// List returns one page of records newest first. The principal needs one of
// the configured read roles. A zero limit means the default page size.
func (s *AuditService) List(ctx context.Context, principal *domain.Principal, q AuditQuery) (*domain.AuditPage, error) {
	if principal == nil {
		return nil, domain.ErrInvalidAPIKey
	}
	if !principal.HasAnyRole(s.readRoles) {
		return nil, domain.ErrInsufficientRole
	}

	limit := q.Limit
	if limit == 0 {
		limit = domain.DefaultAuditLimit
	}
	if limit < 1 || limit > domain.MaxAuditLimit {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "limit must be between 1 and 200")
	}

	cursor, err := pagination.DecodeCursor(q.Cursor)
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidCursor) {
			return nil, domain.ErrInvalidCursor
		}
		return nil, err
	}

	return s.store.List(ctx, domain.AuditFilter{
		UserID: q.UserID,
		Cursor: cursor,
		Limit:  limit,
	})
}
