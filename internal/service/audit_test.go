package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/copilot/internal/domain"
	"github.com/cloo-solutions/copilot/internal/pagination"
)

func TestAuditRecorder_DropsWhenFull(t *testing.T) {
	r := NewAuditRecorder(2)

	assert.True(t, r.Record(&domain.AuditRecord{ID: "1"}))
	assert.True(t, r.Record(&domain.AuditRecord{ID: "2"}))

	done := make(chan bool)
	go func() { done <- r.Record(&domain.AuditRecord{ID: "3"}) }()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Record blocked on a full queue")
	}
	assert.Equal(t, int64(1), r.Dropped())
	assert.Len(t, r.Queue(), 2)
}

func TestAuditRecorder_HighWater(t *testing.T) {
	r := NewAuditRecorder(4)
	var fired int
	r.OnHighWater(func() { fired++ })

	r.Record(&domain.AuditRecord{ID: "1"})
	assert.Zero(t, fired)
	r.Record(&domain.AuditRecord{ID: "2"})
	assert.Equal(t, 1, fired)
	r.Record(&domain.AuditRecord{ID: "3"})
	assert.Equal(t, 2, fired)
}

func TestAuditRecorder_Close(t *testing.T) {
	r := NewAuditRecorder(4)
	require.True(t, r.Record(&domain.AuditRecord{ID: "1"}))

	r.Close()
	r.Close()

	assert.False(t, r.Record(&domain.AuditRecord{ID: "2"}))
	assert.Equal(t, int64(1), r.Dropped())

	var ids []string
	for rec := range r.Queue() {
		ids = append(ids, rec.ID)
	}
	assert.Equal(t, []string{"1"}, ids)
}

func TestAuditRecorder_ConcurrentRecordAndClose(t *testing.T) {
	r := NewAuditRecorder(8)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Record(&domain.AuditRecord{})
		}()
	}
	r.Close()
	wg.Wait()

	accepted := 0
	for range r.Queue() {
		accepted++
	}
	assert.Equal(t, int64(50), int64(accepted)+r.Dropped())
}

func TestAuditService_List(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cursor := pagination.EncodeCursor("rec-9", ts)
	auditor := &domain.Principal{KeyID: "k1", Name: "ops", Roles: []string{"auditor"}}

	store := new(MockAuditStore)
	page := &domain.AuditPage{Items: []*domain.AuditRecord{{ID: "rec-8"}}}
	store.On("List", mock.Anything, mock.MatchedBy(func(f domain.AuditFilter) bool {
		return f.UserID == "u-1" && f.Limit == 10 && f.Cursor != nil && f.Cursor.LastID == "rec-9" && f.Cursor.Timestamp.Equal(ts)
	})).Return(page, nil)

	svc := NewAuditService(store, []string{"admin", "auditor"})
	got, err := svc.List(context.Background(), auditor, AuditQuery{UserID: "u-1", Cursor: cursor, Limit: 10})
	require.NoError(t, err)
	assert.Same(t, page, got)
}

func TestAuditService_DefaultLimit(t *testing.T) {
	store := new(MockAuditStore)
	store.On("List", mock.Anything, domain.AuditFilter{Limit: domain.DefaultAuditLimit}).Return(&domain.AuditPage{}, nil)

	svc := NewAuditService(store, []string{"auditor"})
	_, err := svc.List(context.Background(), &domain.Principal{Roles: []string{"auditor"}}, AuditQuery{})
	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestAuditService_Rejections(t *testing.T) {
	auditor := &domain.Principal{Roles: []string{"auditor"}}

	tests := []struct {
		name      string
		principal *domain.Principal
		query     AuditQuery
		wantErr   error
		wantCode  string
	}{
		{"no principal", nil, AuditQuery{}, domain.ErrInvalidAPIKey, domain.ErrCodeUnauthorized},
		{"missing role", &domain.Principal{Roles: []string{"gateway"}}, AuditQuery{}, domain.ErrInsufficientRole, domain.ErrCodeForbidden},
		{"limit too high", auditor, AuditQuery{Limit: 201}, nil, domain.ErrCodeValidation},
		{"negative limit", auditor, AuditQuery{Limit: -1}, nil, domain.ErrCodeValidation},
		{"bad cursor", auditor, AuditQuery{Cursor: "%%%"}, domain.ErrInvalidCursor, domain.ErrCodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(MockAuditStore)
			svc := NewAuditService(store, []string{"auditor"})

			_, err := svc.List(context.Background(), tt.principal, tt.query)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Equal(t, tt.wantCode, domain.CodeOf(err))
			store.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
		})
	}
}

func TestAuditService_MaxLimitAllowed(t *testing.T) {
	store := new(MockAuditStore)
	store.On("List", mock.Anything, domain.AuditFilter{Limit: domain.MaxAuditLimit}).Return(&domain.AuditPage{}, nil)

	svc := NewAuditService(store, []string{"auditor"})
	_, err := svc.List(context.Background(), &domain.Principal{Roles: []string{"auditor"}}, AuditQuery{Limit: 200})
	assert.NoError(t, err)
}
