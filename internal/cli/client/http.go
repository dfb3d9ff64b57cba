package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/cloo-solutions/copilot/internal/domain"
	"github.com/cloo-solutions/copilot/internal/pagination"
)

const (
	envAPIKey = "COPILOT_API_KEY"
	envAPIURL = "COPILOT_API_URL"

	defaultAPIURL = "http://localhost:8080"

	headerTraceID           = "X-Trace-Id"
	headerRetrievedChunkIDs = "X-Retrieved-Chunk-Ids"
)

type APIClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewAPIClientWithCmd builds a client from the --api-key and --api-url
// flags of cmd, when present, falling back as ResolveCredentials does.
func NewAPIClientWithCmd(cmd *cobra.Command) (*APIClient, error) {
	var flagKey, flagURL string
	if cmd != nil {
		flagKey, _ = cmd.Flags().GetString("api-key")
		flagURL, _ = cmd.Flags().GetString("api-url")
	}

	creds, err := ResolveCredentials(flagKey, flagURL)
	if err != nil {
		return nil, err
	}
	if creds.APIKey == "" {
		return nil, fmt.Errorf("%s not set (run 'copilot auth login' or set environment variable)", envAPIKey)
	}
	return NewAPIClientWithConfig(creds.APIKey, creds.APIURL), nil
}

// NewAPIClientFromEnv loads .env and builds a client from the environment
// and the global config.
func NewAPIClientFromEnv(cmd *cobra.Command) (*APIClient, error) {
	_ = godotenv.Load()
	return NewAPIClientWithCmd(cmd)
}

// NewAPIClientWithConfig creates an APIClient with explicit config.
func NewAPIClientWithConfig(apiKey, baseURL string) *APIClient {
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			// Generation can be slow; the server bounds every stage itself.
			Timeout: 2 * time.Minute,
		},
	}
}

// APIError represents an error from the API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("API error (%d %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// AskRequest is the body of POST /rag/answer.
type AskRequest struct {
	Question string               `json:"question"`
	Language string               `json:"language,omitempty"`
	TopK     *int                 `json:"top_k,omitempty"`
	User     AskUser              `json:"user"`
	History  []domain.HistoryTurn `json:"history,omitempty"`
}

type AskUser struct {
	ID         string         `json:"id,omitempty"`
	RoleNames  []string       `json:"role_names"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// AskResponse is an answer plus the pipeline metadata from the headers.
type AskResponse struct {
	Payload           domain.AnswerPayload
	TraceID           string
	RetrievedChunkIDs []string
}

// Ask posts a question to the answer endpoint.
func (c *APIClient) Ask(ctx context.Context, req AskRequest) (*AskResponse, error) {
	var payload domain.AnswerPayload
	header, err := c.do(ctx, http.MethodPost, "/rag/answer", req, &payload)
	if err != nil {
		return nil, err
	}

	res := &AskResponse{Payload: payload, TraceID: header.Get(headerTraceID)}
	if ids := header.Get(headerRetrievedChunkIDs); ids != "" {
		res.RetrievedChunkIDs = strings.Split(ids, ",")
	}
	return res, nil
}

// AuditParams filters an audit listing. Zero values are omitted.
type AuditParams struct {
	UserID string
	Cursor string
	Limit  int
}

// ListAudit fetches one page of the audit trail.
func (c *APIClient) ListAudit(ctx context.Context, params AuditParams) (*pagination.PageResult[*domain.AuditRecord], error) {
	q := url.Values{}
	if params.UserID != "" {
		q.Set("user_id", params.UserID)
	}
	if params.Cursor != "" {
		q.Set("cursor", params.Cursor)
	}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}

	path := "/audit"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var page pagination.PageResult[*domain.AuditRecord]
	if _, err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *APIClient) do(ctx context.Context, method, path string, body, out any) (http.Header, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
		var errBody struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.Unmarshal(respBody, &errBody) == nil && errBody.Error != "" {
			apiErr.Message = errBody.Error
			apiErr.Code = errBody.Code
		}
		return nil, apiErr
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return resp.Header, nil
}
