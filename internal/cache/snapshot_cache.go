package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"crypto-snapshot/internal/domain"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultSnapshotTTL keeps a snapshot long enough for the next day's run to
// read it back.
const DefaultSnapshotTTL = 48 * time.Hour

// Store is the durable snapshot store the cache sits in front of. Version
// returns a fingerprint that changes whenever the stored record changes, and
// found=false when nothing is stored for date.
type Store interface {
	Load(ctx context.Context, date time.Time) (domain.SnapshotRecord, bool, error)
	Save(ctx context.Context, date time.Time, record domain.SnapshotRecord) error
	Version(ctx context.Context, date time.Time) (version string, found bool, err error)
}

type RedisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Namespace scopes cache keys to one conversion currency and one storage
// directory, so deployments sharing a Redis never read each other's records.
func Namespace(currency, storageDir string) string {
	dir, err := filepath.Abs(storageDir)
	if err != nil {
		dir = filepath.Clean(storageDir)
	}
	sum := sha256.Sum256([]byte(dir))
	return strings.ToUpper(currency) + ":" + hex.EncodeToString(sum[:6])
}

type cacheEntry struct {
	Version string                `json:"version"`
	Record  domain.SnapshotRecord `json:"record"`
}

// SnapshotCache is a read-through, write-through Redis cache over a Store.
// The wrapped store stays authoritative: a cached record is only served while
// its version matches the store's, and Redis errors are logged and skipped.
type SnapshotCache struct {
	tracer    trace.Tracer
	redis     RedisClient
	next      Store
	namespace string
	ttl       time.Duration
	logger    *log.Logger
}

func NewSnapshotCache(tracer trace.Tracer, redisClient RedisClient, next Store, namespace string, ttl time.Duration) *SnapshotCache {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &SnapshotCache{
		tracer:    tracer,
		redis:     redisClient,
		next:      next,
		namespace: namespace,
		ttl:       ttl,
		logger:    log.Default().WithPrefix("snapshot-cache"),
	}
}

func (c *SnapshotCache) key(date time.Time) string {
	return "snapshot:" + c.namespace + ":" + domain.DateKey(date)
}

func (c *SnapshotCache) Load(ctx context.Context, date time.Time) (domain.SnapshotRecord, bool, error) {
	ctx, span := c.tracer.Start(ctx, "snapshot-cache.load")
	defer span.End()

	key := c.key(date)
	version, found, err := c.next.Version(ctx, date)
	if err != nil {
		return domain.SnapshotRecord{}, false, err
	}
	if !found {
		span.SetAttributes(attribute.Bool("cache.hit", false))
		c.drop(ctx, key)
		return domain.SnapshotRecord{}, false, nil
	}

	if entry, ok := c.get(ctx, key); ok && entry.Version == version {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return entry.Record, true, nil
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	record, found, err := c.next.Load(ctx, date)
	if err != nil || !found {
		c.drop(ctx, key)
		return record, found, err
	}
	c.set(ctx, key, cacheEntry{Version: version, Record: record})
	return record, true, nil
}

func (c *SnapshotCache) Save(ctx context.Context, date time.Time, record domain.SnapshotRecord) error {
	ctx, span := c.tracer.Start(ctx, "snapshot-cache.save")
	defer span.End()

	key := c.key(date)
	if err := c.next.Save(ctx, date, record); err != nil {
		c.drop(ctx, key)
		return err
	}

	version, found, err := c.next.Version(ctx, date)
	if err != nil || !found {
		c.logger.Warn("cannot version saved snapshot, not caching", "key", key, "err", err)
		c.drop(ctx, key)
		return nil
	}
	c.set(ctx, key, cacheEntry{Version: version, Record: record})
	return nil
}

func (c *SnapshotCache) get(ctx context.Context, key string) (cacheEntry, bool) {
	data, err := c.redis.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return cacheEntry{}, false
	case err != nil:
		c.logger.Warn("redis read failed", "key", key, "err", err)
		return cacheEntry{}, false
	}

	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil || entry.Version == "" {
		c.logger.Warn("dropping undecodable cache entry", "key", key)
		c.drop(ctx, key)
		return cacheEntry{}, false
	}
	return entry, true
}

func (c *SnapshotCache) set(ctx context.Context, key string, entry cacheEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		c.logger.Warn("encode cache entry", "key", key, "err", err)
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("redis write failed", "key", key, "err", err)
	}
}

func (c *SnapshotCache) drop(ctx context.Context, key string) {
	if err := c.redis.Del(ctx, key).Err(); err != nil {
		c.logger.Warn("redis delete failed", "key", key, "err", err)
	}
}
