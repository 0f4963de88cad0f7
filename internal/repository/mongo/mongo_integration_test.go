//go:build integration

package mongo_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/anonify/anonify/internal/repository"
	"github.com/anonify/anonify/internal/repository/mongo"
	"github.com/anonify/anonify/internal/repository/repotest"
)

func startMongo(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "27017/tcp")
	require.NoError(t, err)
	return fmt.Sprintf("mongodb://%s:%s", host, port.Port())
}

func TestRepositoryContract(t *testing.T) {
	uri := startMongo(t)

	repotest.Run(t, func(t *testing.T) repository.AccountRepository {
		ctx := context.Background()
		repo, err := mongo.Open(ctx, uri, "anonify_"+uuid.NewString()[:8])
		require.NoError(t, err)
		t.Cleanup(func() { _ = repo.Close(context.Background()) })
		return repo
	})
}
