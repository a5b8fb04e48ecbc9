//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/colinvwood/taxa-barplot/internal/config"
	"github.com/colinvwood/taxa-barplot/internal/testutil"
	pkgerrors "github.com/colinvwood/taxa-barplot/pkg/errors"
)

func startPostgres(t *testing.T) config.DatabaseConfig {
	t.Helper()
	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "taxabar",
			"POSTGRES_PASSWORD": "taxabar",
			"POSTGRES_DB":       "taxabar",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(ctx) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return config.DatabaseConfig{
		Host:     host,
		Port:     port.Int(),
		User:     "taxabar",
		Password: "taxabar",
		DBName:   "taxabar",
	}
}

func TestIntegration_DatasetRoundTrip(t *testing.T) {
	cfg := startPostgres(t)
	log := testutil.NewMockLogger()
	ctx := context.Background()

	var conn *Connection
	var err error
	for i := 0; i < 10; i++ {
		conn, err = NewConnection(ctx, cfg, log)
		if err == nil {
			break
		}
		time.Sleep(time.Second)
	}
	require.NoError(t, err, fmt.Sprintf("postgres at %s:%d", cfg.Host, cfg.Port))
	defer conn.Close()

	require.NoError(t, RunMigrations(conn.DB(), log))
	version, dirty, err := MigrationStatus(conn.DB())
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	repo := NewDatasetRepository(conn, log)
	d := testutil.NewFixtureDataset()
	require.NoError(t, repo.Save(ctx, d))
	d.Name = "Renamed"
	require.NoError(t, repo.Save(ctx, d))

	got, err := repo.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, d.Samples, got.Samples)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 3, list[0].SampleCount)

	require.NoError(t, repo.Delete(ctx, d.ID))
	_, err = repo.Get(ctx, d.ID)
	assert.True(t, pkgerrors.IsNotFound(err))

	require.NoError(t, RollbackMigration(conn.DB(), 1))
}
