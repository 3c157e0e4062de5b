package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"crypto-snapshot/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

type memoryStore struct {
	records    map[string]domain.SnapshotRecord
	versions   map[string]int
	loads      int
	saveErr    error
	loadErr    error
	versionErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		records:  make(map[string]domain.SnapshotRecord),
		versions: make(map[string]int),
	}
}

func (m *memoryStore) put(key string, r domain.SnapshotRecord) {
	m.records[key] = r
	m.versions[key]++
}

func (m *memoryStore) Load(ctx context.Context, date time.Time) (domain.SnapshotRecord, bool, error) {
	m.loads++
	if m.loadErr != nil {
		return domain.SnapshotRecord{}, false, m.loadErr
	}
	r, ok := m.records[domain.DateKey(date)]
	return r, ok, nil
}

func (m *memoryStore) Save(ctx context.Context, date time.Time, record domain.SnapshotRecord) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.put(domain.DateKey(date), record)
	return nil
}

func (m *memoryStore) Version(ctx context.Context, date time.Time) (string, bool, error) {
	if m.versionErr != nil {
		return "", false, m.versionErr
	}
	key := domain.DateKey(date)
	if _, ok := m.records[key]; !ok {
		return "", false, nil
	}
	return fmt.Sprintf("v%d", m.versions[key]), true, nil
}

const testNamespace = "USD:test"

func setupCache(t *testing.T) (*SnapshotCache, *memoryStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := newMemoryStore()
	c := NewSnapshotCache(noop.NewTracerProvider().Tracer("test"), client, store, testNamespace, time.Hour)
	return c, store, mr
}

func record(total float64) domain.SnapshotRecord {
	return domain.SnapshotRecord{
		Timestamp:                  "15/10/2026 00:00:00",
		ConvertedIn:                "USD",
		TopByVolume:                domain.AssetQuote{Name: "Bitcoin", Symbol: "BTC"},
		TopByIncrement:             []domain.RankedAsset{},
		WorstByIncrement:           []domain.RankedAsset{},
		TotalPriceTop20ByMarketCap: total,
	}
}

func TestSnapshotCacheWriteThrough(t *testing.T) {
	c, store, mr := setupCache(t)
	ctx := context.Background()
	date := time.Date(2026, time.October, 15, 0, 0, 0, 0, time.UTC)

	require.NoError(t, c.Save(ctx, date, record(42)))

	assert.Contains(t, store.records, "15_10_2026")
	assert.True(t, mr.Exists("snapshot:USD:test:15_10_2026"))
	assert.Equal(t, time.Hour, mr.TTL("snapshot:USD:test:15_10_2026"))

	loaded, found, err := c.Load(ctx, date)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, record(42), loaded)
	assert.Equal(t, 0, store.loads, "cache hit should not reach the store")
}

func TestSnapshotCacheReadThrough(t *testing.T) {
	c, store, mr := setupCache(t)
	ctx := context.Background()
	date := time.Date(2026, time.October, 14, 0, 0, 0, 0, time.UTC)
	store.put("14_10_2026", record(7))

	loaded, found, err := c.Load(ctx, date)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 7.0, loaded.TotalPriceTop20ByMarketCap)
	assert.True(t, mr.Exists("snapshot:USD:test:14_10_2026"))

	_, _, err = c.Load(ctx, date)
	require.NoError(t, err)
	assert.Equal(t, 1, store.loads)
}

func TestSnapshotCacheMissPassesThrough(t *testing.T) {
	c, _, mr := setupCache(t)

	_, found, err := c.Load(context.Background(), time.Now())
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, mr.Keys())
}

func TestSnapshotCacheDropsUndecodableEntry(t *testing.T) {
	c, store, mr := setupCache(t)
	date := time.Date(2026, time.October, 13, 0, 0, 0, 0, time.UTC)
	require.NoError(t, mr.Set("snapshot:USD:test:13_10_2026", "garbage"))
	store.put("13_10_2026", record(3))

	loaded, found, err := c.Load(context.Background(), date)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 3.0, loaded.TotalPriceTop20ByMarketCap)
	assert.Equal(t, 1, store.loads)
}

func TestSnapshotCacheStoreErrorsPropagate(t *testing.T) {
	c, store, mr := setupCache(t)
	ctx := context.Background()
	date := time.Now()

	store.saveErr = errors.New("disk full")
	assert.Error(t, c.Save(ctx, date, record(1)))
	assert.Empty(t, mr.Keys(), "failed save must not populate the cache")

	store.saveErr = nil
	store.put(domain.DateKey(date), record(1))
	corrupt := &domain.CorruptRecordError{Key: "k", Err: errors.New("bad")}
	store.loadErr = corrupt
	_, _, err := c.Load(ctx, date)
	var target *domain.CorruptRecordError
	assert.True(t, errors.As(err, &target))

	store.versionErr = errors.New("permission denied")
	_, _, err = c.Load(ctx, date)
	assert.ErrorIs(t, err, store.versionErr)
}

func TestSnapshotCacheSurvivesRedisOutage(t *testing.T) {
	c, store, mr := setupCache(t)
	ctx := context.Background()
	date := time.Date(2026, time.October, 12, 0, 0, 0, 0, time.UTC)
	mr.Close()

	require.NoError(t, c.Save(ctx, date, record(9)))
	assert.Contains(t, store.records, "12_10_2026")

	loaded, found, err := c.Load(ctx, date)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 9.0, loaded.TotalPriceTop20ByMarketCap)
}

func TestSnapshotCacheServesStoreVersionNotStaleEntry(t *testing.T) {
	c, store, _ := setupCache(t)
	ctx := context.Background()
	date := time.Date(2026, time.October, 11, 0, 0, 0, 0, time.UTC)

	require.NoError(t, c.Save(ctx, date, record(42)))
	store.put("11_10_2026", record(43))

	loaded, found, err := c.Load(ctx, date)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 43.0, loaded.TotalPriceTop20ByMarketCap)
	assert.Equal(t, 1, store.loads)
}

func TestSnapshotCacheRemovedRecordIsAbsent(t *testing.T) {
	c, store, mr := setupCache(t)
	ctx := context.Background()
	date := time.Date(2026, time.October, 10, 0, 0, 0, 0, time.UTC)

	require.NoError(t, c.Save(ctx, date, record(5)))
	delete(store.records, "10_10_2026")

	_, found, err := c.Load(ctx, date)
	require.NoError(t, err)
	assert.False(t, found)
	assert.False(t, mr.Exists("snapshot:USD:test:10_10_2026"))
}

func TestNamespace(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, Namespace("eur", dir), Namespace("EUR", dir))
	assert.NotEqual(t, Namespace("EUR", dir), Namespace("USD", dir))
	assert.NotEqual(t, Namespace("EUR", dir), Namespace("EUR", t.TempDir()))
	assert.True(t, strings.HasPrefix(Namespace("usd", dir), "USD:"))
}
