// Package testutil starts throwaway Postgres and S3 containers and seeds
// them for integration and end-to-end tests.
package testutil

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cloo-solutions/copilot/internal/database"
)

const (
	pgvectorImage = "pgvector/pgvector:0.8.1-pg18"
	rustfsImage   = "rustfs/rustfs:latest"

	pgCredential = "copilot"

	// S3AccessKey and S3SecretKey are the RustFS root credentials.
	S3AccessKey = "rustfsadmin"
	S3SecretKey = "rustfsadmin"
)

// container is a started testcontainer and its mapped address.
type container struct {
	Container testcontainers.Container
	Host      string
	Port      string
}

// Terminate stops and removes the container.
func (c *container) Terminate(ctx context.Context) error {
	return testcontainers.TerminateContainer(c.Container)
}

func (c *container) addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

func startContainer(ctx context.Context, t *testing.T, req testcontainers.ContainerRequest, port string) container {
	t.Helper()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start %s: %v", req.Image, err)
	}

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("host of %s: %v", req.Image, err)
	}
	mapped, err := c.MappedPort(ctx, nat.Port(port))
	if err != nil {
		t.Fatalf("port %s of %s: %v", port, req.Image, err)
	}
	return container{Container: c, Host: host, Port: mapped.Port()}
}

// PostgresContainer is a pgvector-enabled Postgres.
type PostgresContainer struct {
	container
	Database string
}

// NewPostgresContainer starts Postgres with the pgvector extension available.
func NewPostgresContainer(ctx context.Context, t *testing.T) *PostgresContainer {
	t.Helper()
	c := startContainer(ctx, t, testcontainers.ContainerRequest{
		Image:        pgvectorImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     pgCredential,
			"POSTGRES_PASSWORD": pgCredential,
			"POSTGRES_DB":       pgCredential,
		},
		// The entrypoint restarts the server once after init.
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		).WithStartupTimeout(time.Minute),
	}, "5432")
	return &PostgresContainer{container: c, Database: pgCredential}
}

// ConnectionString returns a DSN for the container.
func (pc *PostgresContainer) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable", pgCredential, pgCredential, pc.addr(), pc.Database)
}

// RustFSContainer is an S3-compatible object store.
type RustFSContainer struct {
	container
}

// NewRustFSContainer starts RustFS with the S3AccessKey credentials.
func NewRustFSContainer(ctx context.Context, t *testing.T) *RustFSContainer {
	t.Helper()
	c := startContainer(ctx, t, testcontainers.ContainerRequest{
		Image:        rustfsImage,
		ExposedPorts: []string{"9000/tcp"},
		Env: map[string]string{
			"RUSTFS_ACCESS_KEY": S3AccessKey,
			"RUSTFS_SECRET_KEY": S3SecretKey,
		},
		WaitingFor: wait.ForListeningPort("9000/tcp").WithStartupTimeout(30 * time.Second),
	}, "9000")
	return &RustFSContainer{container: c}
}

// Endpoint returns the S3 endpoint URL.
func (rc *RustFSContainer) Endpoint() string {
	return "http://" + rc.addr()
}

// NewTestPool migrates the container's database with the same migrator the
// server uses and returns a pool on it. The pool is closed on test cleanup.
func NewTestPool(ctx context.Context, t *testing.T, pc *PostgresContainer, migrationsDir string) *pgxpool.Pool {
	t.Helper()

	dir, err := filepath.Abs(migrationsDir)
	if err != nil {
		t.Fatalf("resolve migrations dir: %v", err)
	}

	pool, err := database.NewPool(ctx, database.Config{
		URL:          pc.ConnectionString(),
		MaxConns:     4,
		PingAttempts: 8,
	})
	if err != nil {
		t.Fatalf("connect to test database: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := database.Migrate(pc.ConnectionString(), "file://"+filepath.ToSlash(dir)); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	return pool
}
