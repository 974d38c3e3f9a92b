package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/basegraphhq/researchd/common/id"
	"github.com/basegraphhq/researchd/common/llm"
	"github.com/basegraphhq/researchd/common/logger"
	"github.com/basegraphhq/researchd/core/config"
	"github.com/basegraphhq/researchd/core/db"
	"github.com/basegraphhq/researchd/internal/agentdef"
	"github.com/basegraphhq/researchd/internal/http/handler"
	"github.com/basegraphhq/researchd/internal/http/middleware"
	httprouter "github.com/basegraphhq/researchd/internal/http/router"
	"github.com/basegraphhq/researchd/internal/memory"
	"github.com/basegraphhq/researchd/internal/research"
	"github.com/basegraphhq/researchd/internal/tools"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Setup(cfg)
	slog.InfoContext(ctx, "researchd starting", "env", cfg.Env)

	if err := id.Init(1); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.InfoContext(ctx, "database ready", "path", cfg.DB.Path)

	embedder, err := llm.NewEmbedder(cfg.Embedder)
	if err != nil {
		slog.ErrorContext(ctx, "failed to build embedder", "error", err)
		os.Exit(1)
	}
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
			os.Exit(1)
		}
		redisClient := redis.NewClient(redisOpts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		embedder = llm.NewCachedEmbedder(embedder, redisClient, 24*time.Hour, cfg.Embedder.Model)
		slog.InfoContext(ctx, "embedding cache enabled")
	}

	client, err := llm.NewAgentClient(cfg.Model)
	if err != nil {
		slog.ErrorContext(ctx, "failed to build model client", "error", err)
		os.Exit(1)
	}

	defs, err := agentdef.Load(cfg.AgentDefinitionsPath)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load agent definitions", "error", err)
		os.Exit(1)
	}

	store := memory.NewStore(database, embedder)
	orch := research.New(cfg.Orchestrator, defs, store, client, toolsConfig(cfg.Tools))

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(orch)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// Research runs stream for minutes; no write timeout.
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}
	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func setupRouter(orch *research.Orchestrator) *gin.Engine {
	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1")
	httprouter.ResearchRouter(api, handler.NewResearchHandler(orch))

	return router
}

// toolsConfig maps the loaded tool configuration onto the registry's
// construction types.
func toolsConfig(cfg config.ToolsConfig) tools.Config {
	out := tools.Config{
		Web: tools.WebConfig{
			WebSearchAPIKey:   cfg.WebSearchAPIKey,
			WebSearchEndpoint: cfg.WebSearchEndpoint,
			NewsAPIKey:        cfg.NewsAPIKey,
			NewsEndpoint:      cfg.NewsEndpoint,
		},
	}
	for _, t := range cfg.HTTPTools {
		out.HTTPTools = append(out.HTTPTools, tools.HTTPToolSpec{
			Name:        t.Name,
			Description: t.Description,
			Method:      t.Method,
			URLTemplate: t.URLTemplate,
			APIKeyParam: t.APIKeyParam,
			APIKey:      t.APIKey,
			Params:      t.Params,
		})
	}
	for _, s := range cfg.MCPServers {
		env := make([]string, 0, len(s.Env))
		for k, v := range s.Env {
			env = append(env, k+"="+v)
		}
		out.MCPServers = append(out.MCPServers, tools.MCPServerSpec{
			Name:    s.Name,
			Command: s.Command,
			Args:    s.Args,
			Env:     env,
		})
	}
	return out
}
