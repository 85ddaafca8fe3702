package engine

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/lkirch/sciencesage/rag/interfaces"
	"github.com/mudler/xlog"
	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache keeps embeddings in process memory.
type MemoryCache struct {
	cache *gocache.Cache
}

func NewMemoryCache(defaultTTL time.Duration) *MemoryCache {
	return &MemoryCache{cache: gocache.New(defaultTTL, 2*defaultTTL)}
}

func (m *MemoryCache) Get(ctx context.Context, key string) ([]float32, bool) {
	v, ok := m.cache.Get(key)
	if !ok {
		return nil, false
	}
	embedding, ok := v.([]float32)
	return embedding, ok
}

func (m *MemoryCache) Set(ctx context.Context, key string, embedding []float32, ttl time.Duration) {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	m.cache.Set(key, append([]float32(nil), embedding...), ttl)
}

// RedisCache shares embeddings between processes through Redis.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache connects to Redis and checks the connection.
func NewRedisCache(ctx context.Context, addr, password string, db int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{client: client, prefix: "sciencesage:embedding:"}, nil
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]float32, bool) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			xlog.Warn("Redis embedding cache read failed", "error", err)
		}
		return nil, false
	}
	embedding, err := decodeEmbedding(data)
	if err != nil {
		xlog.Warn("Discarding corrupt cached embedding", "key", key, "error", err)
		return nil, false
	}
	return embedding, true
}

func (r *RedisCache) Set(ctx context.Context, key string, embedding []float32, ttl time.Duration) {
	if err := r.client.Set(ctx, r.prefix+key, encodeEmbedding(embedding), ttl).Err(); err != nil {
		xlog.Warn("Redis embedding cache write failed", "error", err)
	}
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}

func encodeEmbedding(embedding []float32) []byte {
	buf := make([]byte, 4*len(embedding))
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeEmbedding(data []byte) ([]float32, error) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding payload of %d bytes", len(data))
	}
	embedding := make([]float32, len(data)/4)
	for i := range embedding {
		embedding[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return embedding, nil
}

// CachedEmbedder serves repeated texts from a cache. Keys include the model name so that
// switching models never returns stale vectors.
type CachedEmbedder struct {
	interfaces.Embedder
	cache interfaces.EmbeddingCache
	model string
	ttl   time.Duration
}

func NewCachedEmbedder(embedder interfaces.Embedder, cache interfaces.EmbeddingCache, model string, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{
		Embedder: embedder,
		cache:    cache,
		model:    model,
		ttl:      ttl,
	}
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(c.model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)
	if embedding, ok := c.cache.Get(ctx, key); ok {
		return embedding, nil
	}

	embedding, err := c.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(ctx, key, embedding, c.ttl)
	return embedding, nil
}

func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	missing := []string{}
	missingIdx := []int{}
	for i, text := range texts {
		if embedding, ok := c.cache.Get(ctx, c.key(text)); ok {
			embeddings[i] = embedding
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) == 0 {
		return embeddings, nil
	}

	fresh, err := c.Embedder.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, embedding := range fresh {
		embeddings[missingIdx[j]] = embedding
		c.cache.Set(ctx, c.key(missing[j]), embedding, c.ttl)
	}

	return embeddings, nil
}
