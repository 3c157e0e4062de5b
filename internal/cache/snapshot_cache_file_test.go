package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"crypto-snapshot/internal/domain"
	"crypto-snapshot/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

func newFileBackedCache(t *testing.T, client *redis.Client, currency string) (*SnapshotCache, *repository.FileSnapshotRepository) {
	t.Helper()
	tracer := noop.NewTracerProvider().Tracer("test")
	repo := repository.NewFileSnapshotRepository(filepath.Join(t.TempDir(), "storage"), tracer)
	return NewSnapshotCache(tracer, client, repo, Namespace(currency, repo.Dir()), time.Hour), repo
}

func sharedRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestSnapshotCacheDeploymentsSharingRedisAreIsolated(t *testing.T) {
	client := sharedRedis(t)
	usd, _ := newFileBackedCache(t, client, "USD")
	eur, _ := newFileBackedCache(t, client, "EUR")
	ctx := context.Background()
	date := time.Date(2026, time.October, 14, 23, 39, 0, 0, time.Local)

	require.NoError(t, usd.Save(ctx, date, record(100)))

	_, found, err := eur.Load(ctx, date)
	require.NoError(t, err)
	assert.False(t, found, "another deployment's record must not leak through the shared cache")

	loaded, found, err := usd.Load(ctx, date)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "USD", loaded.ConvertedIn)
}

func TestSnapshotCacheDeletedFileIsAbsent(t *testing.T) {
	c, repo := newFileBackedCache(t, sharedRedis(t), "USD")
	ctx := context.Background()
	date := time.Date(2026, time.October, 14, 0, 0, 0, 0, time.Local)

	require.NoError(t, c.Save(ctx, date, record(100)))
	require.NoError(t, os.Remove(filepath.Join(repo.Dir(), repository.SnapshotKey(date)+".json")))

	_, found, err := c.Load(ctx, date)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSnapshotCacheCorruptFileIsReported(t *testing.T) {
	c, repo := newFileBackedCache(t, sharedRedis(t), "USD")
	ctx := context.Background()
	date := time.Date(2026, time.October, 14, 0, 0, 0, 0, time.Local)

	require.NoError(t, c.Save(ctx, date, record(100)))
	path := filepath.Join(repo.Dir(), repository.SnapshotKey(date)+".json")
	require.NoError(t, os.WriteFile(path, []byte("{garbage"), 0o644))

	_, found, err := c.Load(ctx, date)
	assert.False(t, found)
	var corrupt *domain.CorruptRecordError
	require.True(t, errors.As(err, &corrupt), "expected CorruptRecordError, got %v", err)
	assert.Equal(t, repository.SnapshotKey(date), corrupt.Key)
}
