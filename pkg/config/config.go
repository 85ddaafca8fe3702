package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultTopics are the topic labels the corpus was collected under.
var DefaultTopics = []string{
	"Space exploration",
	"Category:Space missions",
	"Category:Discovery and exploration of the Solar System",
	"Category:Exploration of Mars",
	"Category:Exploration of the Moon",
	"Animals in space",
}

// Config holds the whole application configuration
type Config struct {
	ListenAddress string

	OpenAI    OpenAIConfig
	Embedding EmbeddingConfig
	Index     IndexConfig
	Cache     CacheConfig
	Retrieval RetrievalConfig
	External  ExternalConfig
	Ingest    IngestConfig
	Eval      EvalConfig

	Topics []string
	// Sources are re-ingested every SourceUpdateInterval while serving.
	Sources              []Source
	SourceUpdateInterval time.Duration
}

// Source is a page, sitemap or path and the topics its passages are labelled with.
type Source struct {
	URL    string
	Topics []string
}

type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	ChatModel string
	MaxTokens int
}

// EmbeddingConfig selects the embedding backend: "openai" or "hugot".
type EmbeddingConfig struct {
	Backend       string
	Model         string
	HugotModel    string
	HugotModelDir string
}

// IndexConfig selects the vector index: "chromem" or "postgres".
type IndexConfig struct {
	Backend     string
	Collection  string
	DBPath      string
	DatabaseURL string
}

// CacheConfig selects the embedding cache: "none", "memory" or "redis".
type CacheConfig struct {
	Backend       string
	TTL           time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

type RetrievalConfig struct {
	SearchLimit  int
	TopN         int
	MinScore     float64
	VectorWeight float64
	TopicWeight  float64
	TokenBudget  int
}

type ExternalConfig struct {
	Timeout time.Duration
	Retries int
}

type IngestConfig struct {
	ChunkSize    int
	ChunkOverlap int
	BatchSize    int
}

type EvalConfig struct {
	K       int
	Workers int
}

// Load reads the configuration from the environment, after loading .env if there is one.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		ListenAddress: getEnv("LISTEN_ADDRESS", ":8080"),
		OpenAI: OpenAIConfig{
			APIKey:    getEnv("OPENAI_API_KEY", ""),
			BaseURL:   getEnv("OPENAI_API_BASE_URL", ""),
			ChatModel: getEnv("CHAT_MODEL", "gpt-4o-mini"),
			MaxTokens: getEnvAsInt("MAX_TOKENS", 512),
		},
		Embedding: EmbeddingConfig{
			Backend:       strings.ToLower(getEnv("EMBEDDING_BACKEND", "openai")),
			Model:         getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
			HugotModel:    getEnv("HUGOT_MODEL", "sentence-transformers/all-MiniLM-L6-v2"),
			HugotModelDir: getEnv("HUGOT_MODEL_DIR", "models"),
		},
		Index: IndexConfig{
			Backend:     strings.ToLower(getEnv("INDEX_BACKEND", "chromem")),
			Collection:  getEnv("COLLECTION", "scientific_concepts"),
			DBPath:      getEnv("DB_PATH", "data/chromem"),
			DatabaseURL: getEnv("DATABASE_URL", ""),
		},
		Cache: CacheConfig{
			Backend:       strings.ToLower(getEnv("CACHE_BACKEND", "memory")),
			TTL:           getEnvAsDuration("CACHE_TTL", 24*time.Hour),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvAsInt("REDIS_DB", 0),
		},
		Retrieval: RetrievalConfig{
			SearchLimit:  getEnvAsInt("SEARCH_LIMIT", 20),
			TopN:         getEnvAsInt("TOP_N", 5),
			MinScore:     getEnvAsFloat("MIN_SCORE", 0.2),
			VectorWeight: getEnvAsFloat("RERANK_VECTOR_WEIGHT", 0.8),
			TopicWeight:  getEnvAsFloat("RERANK_TOPIC_WEIGHT", 0.2),
			TokenBudget:  getEnvAsInt("CONTEXT_TOKEN_BUDGET", 3000),
		},
		External: ExternalConfig{
			Timeout: getEnvAsDuration("EXTERNAL_TIMEOUT", 30*time.Second),
			Retries: getEnvAsInt("EXTERNAL_RETRIES", 1),
		},
		Ingest: IngestConfig{
			ChunkSize:    getEnvAsInt("CHUNK_SIZE", 1000),
			ChunkOverlap: getEnvAsInt("CHUNK_OVERLAP", 100),
			BatchSize:    getEnvAsInt("INGEST_BATCH_SIZE", 64),
		},
		Eval: EvalConfig{
			K:       getEnvAsInt("EVAL_K", 5),
			Workers: getEnvAsInt("EVAL_WORKERS", 4),
		},
		Topics:               getEnvAsList("TOPICS", DefaultTopics),
		Sources:              parseSources(getEnvAsList("SOURCES", nil)),
		SourceUpdateInterval: getEnvAsDuration("SOURCE_UPDATE_INTERVAL", 24*time.Hour),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Embedding.Backend {
	case "openai", "hugot":
	default:
		return fmt.Errorf("unknown embedding backend %q", c.Embedding.Backend)
	}

	switch c.Index.Backend {
	case "chromem":
	case "postgres":
		if c.Index.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required by the postgres index")
		}
	default:
		return fmt.Errorf("unknown index backend %q", c.Index.Backend)
	}

	switch c.Cache.Backend {
	case "none", "memory", "redis":
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}

	if c.Retrieval.MinScore < 0 || c.Retrieval.MinScore > 1 {
		return fmt.Errorf("MIN_SCORE must be between 0 and 1, got %v", c.Retrieval.MinScore)
	}
	if c.Retrieval.SearchLimit <= 0 || c.Retrieval.TopN <= 0 || c.Retrieval.TokenBudget <= 0 {
		return fmt.Errorf("SEARCH_LIMIT, TOP_N and CONTEXT_TOKEN_BUDGET must be positive")
	}
	if c.Ingest.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive")
	}
	if len(c.Topics) == 0 {
		return fmt.Errorf("at least one topic is required")
	}
	return nil
}

// parseSources reads entries of the form "url|Topic A;Topic B". An entry without topics
// produces untagged passages.
func parseSources(entries []string) []Source {
	sources := []Source{}
	for _, entry := range entries {
		url, topics, _ := strings.Cut(entry, "|")
		source := Source{URL: strings.TrimSpace(url), Topics: []string{}}
		for _, t := range strings.Split(topics, ";") {
			if t = strings.TrimSpace(t); t != "" {
				source.Topics = append(source.Topics, t)
			}
		}
		if source.URL != "" {
			sources = append(sources, source)
		}
	}
	return sources
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma separated value, dropping empty entries.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return append([]string(nil), defaultValue...)
	}
	values := []string{}
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}
