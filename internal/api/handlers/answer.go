package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/cloo-solutions/copilot/internal/api"
	"github.com/cloo-solutions/copilot/internal/api/middleware"
	"github.com/cloo-solutions/copilot/internal/service"
)

// Response headers carrying pipeline metadata.
const (
	HeaderTraceID           = "X-Trace-Id"
	HeaderRetrievedChunkIDs = "X-Retrieved-Chunk-Ids"
)

type AnswerService interface {
	Answer(ctx context.Context, req service.AnswerRequest) (*service.AnswerResult, error)
}

type AnswerHandler struct {
	svc AnswerService
}

func NewAnswerHandler(svc AnswerService) *AnswerHandler {
	return &AnswerHandler{svc: svc}
}

// Answer handles POST /rag/answer. The body is the answer payload itself;
// refusals are 200 responses like any other answer.
func (h *AnswerHandler) Answer(w http.ResponseWriter, r *http.Request) {
	var req service.AnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		if errors.Is(err, io.EOF) {
			api.Error(w, http.StatusBadRequest, "request body is required")
			return
		}
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.RequestID = middleware.GetRequestID(r.Context())

	res, err := h.svc.Answer(r.Context(), req)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	if res.Refused() {
		middleware.SetRefusalReason(r.Context(), res.RefusalReason)
	}
	w.Header().Set(HeaderTraceID, res.TraceID)
	w.Header().Set(HeaderRetrievedChunkIDs, strings.Join(res.RetrievedChunkIDs, ","))
	api.JSON(w, http.StatusOK, res.Payload)
}
