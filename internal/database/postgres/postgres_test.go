//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/kozaktomas/facegate/internal/config"
	"github.com/kozaktomas/facegate/internal/database"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}
	if container == nil {
		t.Skip("Docker not available, skipping integration test")
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dbURL := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	cfg := &config.DatabaseConfig{
		URL:          dbURL,
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := NewPool(cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create pool: %v", err)
	}

	// Run migrations
	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}

	return pool, cleanup
}

func TestMigrate_Idempotent(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	if err := pool.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}

	version, err := pool.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if version != 1 {
		t.Errorf("expected schema version 1, got %d", version)
	}
}

func TestSamples(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Insert", func(t *testing.T) {
		samples := []database.Sample{
			{UserID: 7, UserName: "Kim", Data: []byte{1}, CapturedAt: base.Add(time.Minute)},
			{UserID: 7, UserName: "Park", Data: []byte{2}, CapturedAt: base},
			{UserID: 8, UserName: "", Data: []byte{3}},
		}
		for _, s := range samples {
			id, err := pool.InsertSample(ctx, s)
			if err != nil {
				t.Fatalf("Failed to insert sample: %v", err)
			}
			if id <= 0 {
				t.Errorf("Expected positive id, got %d", id)
			}
		}
	})

	t.Run("Count", func(t *testing.T) {
		count, err := pool.Count(ctx)
		if err != nil {
			t.Fatalf("Failed to count: %v", err)
		}
		if count != 3 {
			t.Errorf("Expected 3, got %d", count)
		}
	})

	t.Run("ListIdentities", func(t *testing.T) {
		identities, err := pool.ListIdentities(ctx)
		if err != nil {
			t.Fatalf("Failed to list identities: %v", err)
		}
		if len(identities) != 3 {
			t.Fatalf("Expected 3 identities, got %d", len(identities))
		}
		if identities[0].UserName != "Kim" || identities[1].UserName != "Park" || identities[2].UserID != 8 {
			t.Errorf("Unexpected order: %+v", identities)
		}
	})

	t.Run("EachSampleOldestFirst", func(t *testing.T) {
		var order []byte
		err := pool.EachSample(ctx, func(s database.Sample) error {
			order = append(order, s.Data[0])
			return nil
		})
		if err != nil {
			t.Fatalf("Failed to scan samples: %v", err)
		}
		if len(order) != 3 || order[0] != 2 || order[1] != 1 || order[2] != 3 {
			t.Errorf("Expected order [2 1 3], got %v", order)
		}
	})
}
