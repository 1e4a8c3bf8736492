package session_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/saatphere/saatphere/internal/auth/session"
	"github.com/saatphere/saatphere/pkg/jwtx"
)

/*
 * Integration tests for the Redis session backend. These spin up a real
 * redis container via testcontainers and are skipped when Docker is not
 * available or when running with -short.
 */

// setupRedisContainer starts a redis container and returns a connected
// backend plus a cleanup function.
func setupRedisContainer(t *testing.T) (*session.Redis, func()) {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor: wait.ForLog("Ready to accept connections").
			WithStartupTimeout(30 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("docker unavailable, skipping redis integration test: %v", err)
	}

	mappedPort, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	addr := fmt.Sprintf("%s:%s", host, mappedPort.Port())

	backend, err := session.NewRedis(ctx, addr, "", 0)
	require.NoError(t, err)

	cleanup := func() {
		_ = backend.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return backend, cleanup
}

func TestRedisSessionRegistry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	backend, cleanup := setupRedisContainer(t)
	defer cleanup()

	ctx := context.Background()

	t.Run("LastWriterWins", func(t *testing.T) {
		require.NoError(t, backend.SetCurrent(ctx, jwtx.KindAccess, 1, "jti-first", time.Minute))
		require.NoError(t, backend.SetCurrent(ctx, jwtx.KindAccess, 1, "jti-second", time.Minute))

		current, err := backend.IsCurrent(ctx, jwtx.KindAccess, 1, "jti-first")
		require.NoError(t, err)
		require.False(t, current)

		current, err = backend.IsCurrent(ctx, jwtx.KindAccess, 1, "jti-second")
		require.NoError(t, err)
		require.True(t, current)
	})

	t.Run("KindsAreIndependent", func(t *testing.T) {
		require.NoError(t, backend.SetCurrent(ctx, jwtx.KindAccess, 2, "jti-access", time.Minute))
		require.NoError(t, backend.SetCurrent(ctx, jwtx.KindRefresh, 2, "jti-refresh", time.Minute))

		current, err := backend.IsCurrent(ctx, jwtx.KindAccess, 2, "jti-access")
		require.NoError(t, err)
		require.True(t, current)

		current, err = backend.IsCurrent(ctx, jwtx.KindRefresh, 2, "jti-refresh")
		require.NoError(t, err)
		require.True(t, current)
	})

	t.Run("AbsentEntryIsNotCurrent", func(t *testing.T) {
		current, err := backend.IsCurrent(ctx, jwtx.KindAccess, 999, "jti-never-set")
		require.NoError(t, err)
		require.False(t, current)
	})

	t.Run("Clear", func(t *testing.T) {
		require.NoError(t, backend.SetCurrent(ctx, jwtx.KindAccess, 3, "jti-cleared", time.Minute))
		require.NoError(t, backend.Clear(ctx, jwtx.KindAccess, 3))

		current, err := backend.IsCurrent(ctx, jwtx.KindAccess, 3, "jti-cleared")
		require.NoError(t, err)
		require.False(t, current)
	})

	t.Run("EntryExpires", func(t *testing.T) {
		require.NoError(t, backend.SetCurrent(ctx, jwtx.KindAccess, 4, "jti-short", 500*time.Millisecond))
		time.Sleep(time.Second)

		current, err := backend.IsCurrent(ctx, jwtx.KindAccess, 4, "jti-short")
		require.NoError(t, err)
		require.False(t, current)
	})
}

func TestRedisRevocationList(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	backend, cleanup := setupRedisContainer(t)
	defer cleanup()

	ctx := context.Background()

	t.Run("RevokeAndCheck", func(t *testing.T) {
		revoked, err := backend.IsRevoked(ctx, "jti-alive")
		require.NoError(t, err)
		require.False(t, revoked)

		require.NoError(t, backend.Revoke(ctx, "jti-dead", time.Minute))

		revoked, err = backend.IsRevoked(ctx, "jti-dead")
		require.NoError(t, err)
		require.True(t, revoked)
	})

	t.Run("ZeroTTLIsNoop", func(t *testing.T) {
		require.NoError(t, backend.Revoke(ctx, "jti-expired-already", 0))

		revoked, err := backend.IsRevoked(ctx, "jti-expired-already")
		require.NoError(t, err)
		require.False(t, revoked)
	})

	t.Run("MarkerExpiresWithTTL", func(t *testing.T) {
		require.NoError(t, backend.Revoke(ctx, "jti-brief", 500*time.Millisecond))
		time.Sleep(time.Second)

		revoked, err := backend.IsRevoked(ctx, "jti-brief")
		require.NoError(t, err)
		require.False(t, revoked)
	})
}

func TestRedisOutageSurfacesErrUnavailable(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor: wait.ForLog("Ready to accept connections").
			WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("docker unavailable, skipping redis integration test: %v", err)
	}

	mappedPort, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)
	host, err := container.Host(ctx)
	require.NoError(t, err)

	backend, err := session.NewRedis(ctx, fmt.Sprintf("%s:%s", host, mappedPort.Port()), "", 0)
	require.NoError(t, err)
	defer backend.Close()

	require.NoError(t, backend.SetCurrent(ctx, jwtx.KindAccess, 1, "jti-before-outage", time.Minute))

	// Kill the backend and verify every operation degrades to ErrUnavailable.
	require.NoError(t, container.Terminate(ctx))

	callCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	_, err = backend.IsCurrent(callCtx, jwtx.KindAccess, 1, "jti-before-outage")
	require.Error(t, err)
	require.True(t, errors.Is(err, session.ErrUnavailable))

	err = backend.SetCurrent(callCtx, jwtx.KindAccess, 1, "jti-after-outage", time.Minute)
	require.Error(t, err)
	require.True(t, errors.Is(err, session.ErrUnavailable))

	_, err = backend.IsRevoked(callCtx, "jti-any")
	require.Error(t, err)
	require.True(t, errors.Is(err, session.ErrUnavailable))

	require.Error(t, backend.Ping(callCtx), "ping should fail after outage")
}
