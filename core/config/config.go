// Package config loads the orchestrator's configuration from environment
// variables (with .env support) into plain structs handed to each component
// at construction time.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/basegraphhq/researchd/common/llm"
	"github.com/basegraphhq/researchd/core/db"
)

// Config holds everything the orchestrator needs at construction time.
type Config struct {
	// Env is the environment name (development, staging, production).
	Env string

	// Port is the HTTP server port for the optional research API surface.
	Port string

	// DB holds the embedded SQLite store configuration.
	DB db.Config

	// Model is the chat-completion transport shared by every agent role.
	// A deployment that wants per-role models can still construct distinct
	// llm.AgentClient values from distinct llm.Config overrides; the
	// orchestrator itself is agnostic to how many distinct clients it holds.
	Model llm.Config

	// Embedder configures the Shared Memory Store's embedding collaborator.
	Embedder llm.EmbedderConfig

	// RedisURL, if set, backs the embedding cache. Empty disables caching.
	RedisURL string

	// AgentDefinitionsPath points at the YAML document describing every
	// agent role, read once at startup.
	AgentDefinitionsPath string

	// Orchestrator holds the tunable pipeline knobs.
	Orchestrator OrchestratorConfig

	// Tools holds the tool executor's registry configuration.
	Tools ToolsConfig
}

// OrchestratorConfig holds every loop bound and threshold the pipeline
// consults.
type OrchestratorConfig struct {
	MinWorkerCount int
	MaxWorkerCount int

	MaxPlanIterations       int
	MaxRefinementIterations int
	MaxDocumentIterations   int
	MaxDebateRounds         int
	MaxToolTurns            int

	SummarisationThreshold         int
	SummarisationThresholdResearch int

	ExportMemories      bool
	ExportDir           string
	EmbeddingDimensions int

	// SupervisorIntervalSeconds is the supervisor's poll period. Exposed
	// as a knob, defaulting to 15s, since every other loop bound in this
	// config is configurable.
	SupervisorIntervalSeconds int
}

// ToolsConfig configures the builtin/HTTP/MCP tool registry.
type ToolsConfig struct {
	// HTTPTools are user-declared HTTP tool templates.
	HTTPTools []HTTPToolConfig
	// MCPServers are stdio-subprocess MCP tool servers to launch at startup.
	MCPServers []MCPServerConfig
	// API keys below are injected once at construction and treated as
	// immutable for the lifetime of the process.
	WebSearchAPIKey string
	// WebSearchEndpoint is the Bing/Serper-compatible search endpoint the
	// web_search tool queries. Required for web_search to function; there
	// is no universal free default to fall back to.
	WebSearchEndpoint string
	NewsAPIKey        string
	// NewsEndpoint overrides the default newsapi.org endpoint.
	NewsEndpoint string
}

// HTTPToolConfig describes one user-declared HTTP tool: a URL template with
// parameter substitution and an optional API key substitution.
type HTTPToolConfig struct {
	Name        string
	Description string
	Method      string
	URLTemplate string
	APIKeyParam string
	APIKey      string
	// Params are the placeholder names in URLTemplate the model must
	// supply; each becomes a required string argument in the tool schema.
	Params []string
}

// MCPServerConfig describes one stdio-subprocess MCP server.
type MCPServerConfig struct {
	Name    string
	Command string
	Args    []string
	Env     map[string]string
}

// Load reads configuration from environment variables, optionally seeded
// from a .env file via godotenv.
func Load() (Config, error) {
	_ = godotenv.Load() // best-effort; missing .env is not an error

	cfg := Config{
		Env:  getEnv("RESEARCHD_ENV", "development"),
		Port: getEnv("PORT", "8080"),
		DB: db.Config{
			Path: getEnv("RESEARCHD_DB_PATH", "researchd.db"),
		},
		Model: llm.Config{
			Provider: llm.Provider(getEnv("RESEARCHD_MODEL_PROVIDER", string(llm.ProviderAnthropic))),
			APIKey:   os.Getenv("RESEARCHD_MODEL_API_KEY"),
			BaseURL:  os.Getenv("RESEARCHD_MODEL_BASE_URL"),
			Model:    os.Getenv("RESEARCHD_MODEL_NAME"),
		},
		Embedder: llm.EmbedderConfig{
			APIKey:     os.Getenv("RESEARCHD_EMBEDDER_API_KEY"),
			BaseURL:    os.Getenv("RESEARCHD_EMBEDDER_BASE_URL"),
			Model:      os.Getenv("RESEARCHD_EMBEDDER_MODEL"),
			Dimensions: getEnvInt("RESEARCHD_EMBEDDING_DIMENSIONS", 768),
		},
		RedisURL:             os.Getenv("RESEARCHD_REDIS_URL"),
		AgentDefinitionsPath: getEnv("RESEARCHD_AGENTS_PATH", "config/agents.yaml"),
		Orchestrator: OrchestratorConfig{
			MinWorkerCount:                 getEnvInt("RESEARCHD_MIN_WORKERS", 3),
			MaxWorkerCount:                 getEnvInt("RESEARCHD_MAX_WORKERS", 10),
			MaxPlanIterations:              getEnvInt("RESEARCHD_MAX_PLAN_ITERATIONS", 3),
			MaxRefinementIterations:        getEnvInt("RESEARCHD_MAX_REFINEMENT_ITERATIONS", 5),
			MaxDocumentIterations:          getEnvInt("RESEARCHD_MAX_DOCUMENT_ITERATIONS", 3),
			MaxDebateRounds:                getEnvInt("RESEARCHD_MAX_DEBATE_ROUNDS", 2),
			MaxToolTurns:                   getEnvInt("RESEARCHD_MAX_TOOL_TURNS", 5),
			SummarisationThreshold:         getEnvInt("RESEARCHD_SUMMARISATION_THRESHOLD", 5000),
			SummarisationThresholdResearch: getEnvInt("RESEARCHD_SUMMARISATION_THRESHOLD_RESEARCH", 10000),
			ExportMemories:                 getEnvBool("RESEARCHD_EXPORT_MEMORIES", false),
			ExportDir:                      getEnv("RESEARCHD_EXPORT_DIR", "exports"),
			EmbeddingDimensions:            getEnvInt("RESEARCHD_EMBEDDING_DIMENSIONS", 768),
			SupervisorIntervalSeconds:      getEnvInt("RESEARCHD_SUPERVISOR_INTERVAL_SECONDS", 15),
		},
		Tools: ToolsConfig{
			WebSearchAPIKey:   os.Getenv("RESEARCHD_WEB_SEARCH_API_KEY"),
			WebSearchEndpoint: os.Getenv("RESEARCHD_WEB_SEARCH_ENDPOINT"),
			NewsAPIKey:        os.Getenv("RESEARCHD_NEWS_API_KEY"),
			NewsEndpoint:      os.Getenv("RESEARCHD_NEWS_ENDPOINT"),
		},
	}

	if cfg.Orchestrator.MinWorkerCount <= 0 || cfg.Orchestrator.MaxWorkerCount < cfg.Orchestrator.MinWorkerCount {
		return Config{}, fmt.Errorf("config: invalid worker bounds (min=%d max=%d)",
			cfg.Orchestrator.MinWorkerCount, cfg.Orchestrator.MaxWorkerCount)
	}

	return cfg, nil
}

// IsProduction returns true if running in production environment.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// IsDevelopment returns true if running in development environment.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}
