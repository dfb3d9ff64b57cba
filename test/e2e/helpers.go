//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/copilot/internal/api/handlers"
	"github.com/cloo-solutions/copilot/internal/domain"
	"github.com/cloo-solutions/copilot/internal/jobs"
	"github.com/cloo-solutions/copilot/internal/llm"
	"github.com/cloo-solutions/copilot/internal/repository"
	"github.com/cloo-solutions/copilot/internal/server"
	"github.com/cloo-solutions/copilot/internal/service"
	"github.com/cloo-solutions/copilot/internal/storage"
	"github.com/cloo-solutions/copilot/internal/testutil"
)

const embeddingModel = "e2e-embedding"

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T            *testing.T
	Ctx          context.Context
	PostgresC    *testutil.PostgresContainer
	RustFSC      *testutil.RustFSContainer
	Pool         *pgxpool.Pool
	S3Client     *storage.S3Client
	ServerURL    string
	ServerCloser func()
	BinaryDir    string

	Auth     *service.AuthService
	Model    *llm.Static
	Embedder *fixedEmbedder
	Recorder *service.AuditRecorder
	Flusher  *jobs.AuditFlusher
	Archive  *recordingArchive

	HTTPClient *http.Client
}

// SetupE2EEnv starts Postgres and RustFS, migrates and serves the full
// router with a static model and a fixed query vector.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	s3C := testutil.NewRustFSContainer(ctx, t)
	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        s3C.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     testutil.S3AccessKey,
		SecretAccessKey: testutil.S3SecretKey,
		Bucket:          "test-audit",
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create S3 client: %v", err)
	}
	if err := s3Client.EnsureBucket(ctx); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	env := &E2ETestEnv{
		T:          t,
		Ctx:        ctx,
		PostgresC:  pgC,
		RustFSC:    s3C,
		Pool:       pool,
		S3Client:   s3Client,
		Model:      &llm.Static{},
		Embedder:   &fixedEmbedder{vector: testutil.Axis(0)},
		Recorder:   service.NewAuditRecorder(64),
		Archive:    &recordingArchive{inner: storage.NewAuditArchive(s3Client, "audit")},
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}
	env.ServerURL, env.ServerCloser = env.startServer(port)

	return env
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.ServerCloser != nil {
		e.ServerCloser()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.RustFSC != nil {
		e.RustFSC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
	if e.BinaryDir != "" {
		os.RemoveAll(e.BinaryDir)
	}
}

func (e *E2ETestEnv) startServer(port int) (string, func()) {
	apiKeyRepo := repository.NewAPIKeyRepository(e.Pool)
	auditRepo := repository.NewAuditRepository(e.Pool)

	e.Auth = service.NewAuthService(apiKeyRepo, &service.DefaultUUIDGenerator{})
	e.Flusher = jobs.NewAuditFlusher(e.Recorder.Queue(), auditRepo, e.Archive, jobs.DefaultAuditBatchSize)

	answerer := service.NewAnswerer(service.AnswererDeps{
		Access:       service.NewAccessResolver(repository.NewAccessRepository(e.Pool)),
		Retriever:    service.NewRetriever(e.Embedder, repository.NewChunkRepository(e.Pool), 20, 5*time.Second),
		Prompts:      service.NewPromptBuilder(service.DefaultHistoryTurns, 0, nil),
		Generator:    e.Model,
		Guardrail:    service.NewGuardrail(service.CitationPolicyStrict),
		Audit:        e.Recorder,
		DefaultTopK:  5,
		QueryTimeout: 20 * time.Second,
	})

	router := server.NewRouter(server.RouterConfig{
		AuthValidator: e.Auth,
		AnswerHandler: handlers.NewAnswerHandler(answerer),
		AuditHandler:  handlers.NewAuditHandler(service.NewAuditService(auditRepo, []string{"auditor"})),
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			e.T.Logf("server error: %v", err)
		}
	}()

	serverURL := fmt.Sprintf("http://localhost:%d", port)
	waitForServer(e.T, serverURL, 10*time.Second)

	return serverURL, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

// CreateKey issues an API key with the given roles and returns its token.
func (e *E2ETestEnv) CreateKey(name string, roles ...string) string {
	token, _, err := e.Auth.CreateAPIKey(e.Ctx, name, roles)
	if err != nil {
		e.T.Fatalf("failed to create API key: %v", err)
	}
	return token
}

// SeedPolicy stores one approved document readable by role with a chunk
// close to the fixed query vector, and returns it.
func (e *E2ETestEnv) SeedPolicy(title, role, text string, page int) *testutil.SeededDocument {
	doc, err := testutil.SeedDocument(e.Ctx, e.Pool, testutil.DocumentFixture{
		Title:     title,
		Roles:     []string{role},
		SourceURI: "s3://policies/" + title + ".pdf",
		Chunks: []testutil.ChunkFixture{{
			Text:        text,
			PageStart:   testutil.IntPtr(page),
			PageEnd:     testutil.IntPtr(page),
			OffsetStart: testutil.IntPtr(0),
			OffsetEnd:   testutil.IntPtr(len(text)),
			Model:       embeddingModel,
			Embedding:   testutil.Toward(0, 1, 0.1),
		}},
	})
	if err != nil {
		e.T.Fatalf("failed to seed document: %v", err)
	}
	return doc
}

// ModelCites makes the static model answer with one citation of docID.
func (e *E2ETestEnv) ModelCites(answer, docID string, page int, quote string) {
	body, _ := json.Marshal(map[string]any{
		"answer": answer,
		"citations": []map[string]any{{
			"doc_id":      docID,
			"page_number": page,
			"quote":       quote,
		}},
	})
	e.Model.Response = string(body)
}

// FlushAudit writes every queued audit record.
func (e *E2ETestEnv) FlushAudit() {
	if err := e.Flusher.ProcessJobs(e.Ctx); err != nil {
		e.T.Fatalf("audit flush failed: %v", err)
	}
}

// BuildBinaries builds the copilot and copilotd binaries
func (e *E2ETestEnv) BuildBinaries() {
	tmpDir, err := os.MkdirTemp("", "copilot-e2e-*")
	if err != nil {
		e.T.Fatalf("failed to create temp dir: %v", err)
	}
	e.BinaryDir = tmpDir

	for _, name := range []string{"copilot", "copilotd"} {
		cmd := exec.Command("go", "build", "-o", filepath.Join(tmpDir, name), "./cmd/"+name)
		cmd.Dir = "../.."
		if out, err := cmd.CombinedOutput(); err != nil {
			e.T.Fatalf("failed to build %s: %v\n%s", name, err, out)
		}
	}
}

// RunCopilot runs the copilot CLI against the test server.
func (e *E2ETestEnv) RunCopilot(token string, args ...string) (string, error) {
	cmd := exec.Command(filepath.Join(e.BinaryDir, "copilot"), args...)
	cmd.Dir = e.T.TempDir()
	cmd.Env = append(os.Environ(),
		"COPILOT_API_KEY="+token,
		"COPILOT_API_URL="+e.ServerURL,
		"HOME="+cmd.Dir,
		"XDG_CONFIG_HOME="+cmd.Dir,
	)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// APIResponse is a raw HTTP response.
type APIResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the body into v.
func (r *APIResponse) Decode(v any) error {
	return json.Unmarshal(r.Body, v)
}

// Get performs a GET request
func (e *E2ETestEnv) Get(path, token string) (*APIResponse, error) {
	return e.doRequest(http.MethodGet, path, nil, token)
}

// Post performs a POST request with a JSON body
func (e *E2ETestEnv) Post(path string, body any, token string) (*APIResponse, error) {
	return e.doRequest(http.MethodPost, path, body, token)
}

func (e *E2ETestEnv) doRequest(method, path string, body any, token string) (*APIResponse, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(e.Ctx, method, e.ServerURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &APIResponse{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// fixedEmbedder returns the same query vector for every question.
type fixedEmbedder struct {
	vector []float32
}

func (f *fixedEmbedder) GenerateEmbedding(context.Context, string) ([]float32, error) {
	return f.vector, nil
}

func (f *fixedEmbedder) Model() string { return embeddingModel }

// recordingArchive archives through S3 and remembers the object keys.
type recordingArchive struct {
	inner *storage.AuditArchive
	mu    sync.Mutex
	keys  []string
}

func (a *recordingArchive) Archive(ctx context.Context, recs []*domain.AuditRecord) (string, error) {
	key, err := a.inner.Archive(ctx, recs)
	if err == nil && key != "" {
		a.mu.Lock()
		a.keys = append(a.keys, key)
		a.mu.Unlock()
	}
	return key, err
}

func (a *recordingArchive) Keys() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.keys...)
}

func waitForServer(t *testing.T, url string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server did not start within %v", timeout)
}

func getFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
