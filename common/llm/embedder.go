package llm

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/redis/go-redis/v9"
)

// Embedder is the external embedding collaborator: it turns free text into a
// fixed-dimension vector. The Shared Memory Store calls this on every
// `store`/`upsert_single`/`search`; a failure here is fatal to that one call,
// never to the session.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// EmbedderConfig configures the OpenAI-backed embedder.
type EmbedderConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
}

type openAIEmbedder struct {
	client openai.Client
	model  string
	dims   int
}

// NewEmbedder builds the default Embedder, backed by the OpenAI embeddings
// endpoint (same protocol family as the chat transport).
func NewEmbedder(cfg EmbedderConfig) (Embedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: embedder API key is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "text-embedding-3-small"
	}
	dims := cfg.Dimensions
	if dims == 0 {
		dims = 768
	}

	return &openAIEmbedder{
		client: openai.NewClient(opts...),
		model:  model,
		dims:   dims,
	}, nil
}

func (e *openAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model:          e.model,
		Input:          openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Dimensions:     openai.Int(int64(e.dims)),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embed: no data returned")
	}

	slog.DebugContext(ctx, "embedding computed",
		"model", e.model, "duration_ms", time.Since(start).Milliseconds(), "dims", len(resp.Data[0].Embedding))

	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, f := range resp.Data[0].Embedding {
		vec[i] = float32(f)
	}
	return vec, nil
}

func (e *openAIEmbedder) Dimensions() int {
	return e.dims
}

// cachedEmbedder decorates an Embedder with a Redis-backed content cache so
// repeated memory_store calls with identical content (e.g. a worker
// re-storing a discovery after a supervisor nudge) don't re-pay the embedding
// round trip; the key is a hash of the exact text, so any change to the
// content misses the cache. The cache is best-effort: a Redis outage falls through to the
// wrapped Embedder rather than failing the call.
type cachedEmbedder struct {
	inner   Embedder
	rdb     *redis.Client
	ttl     time.Duration
	keySalt string
}

// NewCachedEmbedder wraps inner with a Redis cache keyed by a hash of the
// input text. Pass a nil rdb to disable caching (it degrades to inner).
// keySalt should identify the embedding model/dimensions so a config change
// can't return a stale-dimension vector from the cache.
func NewCachedEmbedder(inner Embedder, rdb *redis.Client, ttl time.Duration, keySalt string) Embedder {
	if rdb == nil {
		return inner
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &cachedEmbedder{inner: inner, rdb: rdb, ttl: ttl, keySalt: keySalt}
}

func (c *cachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)

	if raw, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var vec []float32
		if jsonErr := json.Unmarshal(raw, &vec); jsonErr == nil {
			return vec, nil
		}
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(vec); err == nil {
		if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			slog.DebugContext(ctx, "embedding cache write failed", "error", err)
		}
	}

	return vec, nil
}

func (c *cachedEmbedder) Dimensions() int {
	return c.inner.Dimensions()
}

func (c *cachedEmbedder) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("embed:%s:%x", c.keySalt, sum)
}
