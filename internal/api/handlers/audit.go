package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/cloo-solutions/copilot/internal/api"
	"github.com/cloo-solutions/copilot/internal/api/middleware"
	"github.com/cloo-solutions/copilot/internal/domain"
	"github.com/cloo-solutions/copilot/internal/pagination"
	"github.com/cloo-solutions/copilot/internal/service"
)

type AuditService interface {
	List(ctx context.Context, principal *domain.Principal, q service.AuditQuery) (*domain.AuditPage, error)
}

type AuditHandler struct {
	svc AuditService
}

func NewAuditHandler(svc AuditService) *AuditHandler {
	return &AuditHandler{svc: svc}
}

// List handles GET /audit?limit=&user_id=&cursor=.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	q := service.AuditQuery{
		UserID: r.URL.Query().Get("user_id"),
		Cursor: r.URL.Query().Get("cursor"),
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			api.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		q.Limit = limit
	}

	page, err := h.svc.List(r.Context(), middleware.GetPrincipal(r.Context()), q)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	items := page.Items
	if items == nil {
		items = []*domain.AuditRecord{}
	}
	api.JSON(w, http.StatusOK, pagination.PageResult[*domain.AuditRecord]{
		Items:   items,
		Cursor:  page.NextCursor,
		HasMore: page.HasMore,
	})
}
