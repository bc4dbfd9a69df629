// Package testutil starts throwaway database containers for integration tests.
// Tests using it are skipped when Docker is unavailable.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startContainer starts req or skips t when no container runtime is usable.
// Provider discovery panics instead of erroring when Docker is missing.
func startContainer(t *testing.T, ctx context.Context, name string, req tc.ContainerRequest) tc.Container {
	t.Helper()
	tc.SkipIfProviderIsNotHealthy(t)
	c, err := runGuarded(func() (tc.Container, error) {
		return tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	})
	if err != nil {
		t.Skipf("skipping %s container test: %v", name, err)
	}
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })
	return c
}

func runGuarded(start func() (tc.Container, error)) (c tc.Container, err error) {
	defer func() {
		if r := recover(); r != nil {
			c, err = nil, fmt.Errorf("container provider unavailable: %v", r)
		}
	}()
	return start()
}

// MongoURI starts a single-node MongoDB and returns its connection string.
func MongoURI(t *testing.T) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	req := tc.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("27017/tcp"),
			wait.ForLog("Waiting for connections"),
		),
	}
	c := startContainer(t, ctx, "MongoDB", req)

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := c.MappedPort(ctx, "27017/tcp")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}
	return fmt.Sprintf("mongodb://%s:%s/", host, port.Port())
}

// PostgresDSN starts PostgreSQL and returns a pgx-compatible DSN.
func PostgresDSN(t *testing.T) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	req := tc.ContainerRequest{
		Image:        "postgres:16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "docmigrate_test",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("5432/tcp"),
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		),
	}
	c := startContainer(t, ctx, "Postgres", req)

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}
	return fmt.Sprintf("postgres://test:test@%s:%s/docmigrate_test?sslmode=disable", host, port.Port())
}
