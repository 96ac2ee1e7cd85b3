//go:build integration

package main

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/liamcoop/classifier/internal/config"
)

// startPostgres creates a PostgreSQL testcontainer and returns its URL.
func startPostgres(t *testing.T) string {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_PASSWORD": "password",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	postgres, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() { postgres.Terminate(ctx) })

	host, err := postgres.Host(ctx)
	require.NoError(t, err)
	port, err := postgres.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://postgres:password@%s:%s/testdb?sslmode=disable", host, port.Port())
}

// TestEndToEnd_ClassifyAndRestart tests the complete workflow:
// 1. Migrate and start against PostgreSQL
// 2. Create rules
// 3. Classify a record
// 4. Restart and read the same result back by hash
func TestEndToEnd_ClassifyAndRestart(t *testing.T) {
	cfg := config.Default()
	cfg.RateLimit.RPS = 0
	cfg.Database.URL = startPostgres(t)

	var first *app
	require.Eventually(t, func() bool {
		a, err := newApp(context.Background(), cfg)
		if err != nil {
			return false
		}
		first = a
		return true
	}, 30*time.Second, time.Second, "database never became reachable")

	t.Log("Step 1: Creating rules...")
	seedRules(t, first.server)

	t.Log("Step 2: Classifying...")
	issued := classify(t, first.server, "/api/v1/classify", `{"priority":"LOW","type":"CREATE_NEW"}`)
	assert.Equal(t, "B", issued.Classification)
	require.NotNil(t, issued.MatchedRuleID)
	assert.Equal(t, "rule-2", *issued.MatchedRuleID)
	first.Close()

	t.Log("Step 3: Restarting...")
	second := newTestApp(t, cfg)
	defer second.Close()

	again := classify(t, second.server, "/api/v1/classify", `{"type":"CREATE_NEW","priority":"LOW"}`)
	assert.True(t, again.Cached)
	assert.Equal(t, issued.Hash, again.Hash)

	rec := doRequest(t, second.server, http.MethodGet, "/api/v1/classify/results/"+issued.Hash, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
