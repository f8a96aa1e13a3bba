// Package docuchat assembles the document chat service.
package docuchat

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"github.com/docuchat/docuchat/internal/docuchat/biz"
	"github.com/docuchat/docuchat/internal/docuchat/handler"
	"github.com/docuchat/docuchat/internal/docuchat/router"
	"github.com/docuchat/docuchat/internal/docuchat/store"
	"github.com/docuchat/docuchat/pkg/component/milvus"
	"github.com/docuchat/docuchat/pkg/infra/app"
	"github.com/docuchat/docuchat/pkg/infra/config"
	"github.com/docuchat/docuchat/pkg/llm"

	// Register LLM providers.
	_ "github.com/docuchat/docuchat/pkg/llm/ollama"
	_ "github.com/docuchat/docuchat/pkg/llm/openai"

	cacheopts "github.com/docuchat/docuchat/pkg/options/cache"
	coreopts "github.com/docuchat/docuchat/pkg/options/core"
	httpopts "github.com/docuchat/docuchat/pkg/options/http"
	llmopts "github.com/docuchat/docuchat/pkg/options/llm"
	logopts "github.com/docuchat/docuchat/pkg/options/logger"
	milvusopts "github.com/docuchat/docuchat/pkg/options/milvus"
)

// Name is the name of the service.
const Name = "docuchat"

// Config carries everything needed to assemble the service.
type Config struct {
	HTTPOptions      *httpopts.Options
	LogOptions       *logopts.Options
	MilvusOptions    *milvusopts.Options
	EmbeddingOptions *llmopts.ProviderOptions
	ChatOptions      *llmopts.ProviderOptions
	CoreOptions      *coreopts.Options
	CacheOptions     *cacheopts.Options
	ShutdownTimeout  time.Duration
}

// Server is the assembled HTTP service.
type Server struct {
	httpServer      *http.Server
	service         biz.Service
	watcher         *config.Watcher
	shutdownTimeout time.Duration
	closers         []func()
}

// NewServer assembles the service from the configuration: vector index,
// capability providers, answer cache, chat core and the HTTP surface.
func (cfg *Config) NewServer(ctx context.Context) (*Server, error) {
	if err := cfg.LogOptions.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Infow("starting service", "name", Name, "version", app.GetVersion())

	var closers []func()

	index, indexClose, err := cfg.newIndex(ctx)
	if err != nil {
		return nil, err
	}
	if indexClose != nil {
		closers = append(closers, indexClose)
	}

	redisClient, redisClose := cfg.newRedis(ctx)
	if redisClose != nil {
		closers = append(closers, redisClose)
	}

	embedder, err := llm.NewEmbeddingProvider(cfg.EmbeddingOptions.Provider, cfg.EmbeddingOptions.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding provider: %w", err)
	}
	if redisClient != nil {
		embedder = llm.NewCachedEmbeddingProvider(embedder, redisClient, nil)
	}
	logger.Infow("embedding provider initialized",
		"provider", cfg.EmbeddingOptions.Provider,
		"model", cfg.EmbeddingOptions.Model,
		"cached", redisClient != nil,
	)

	completer, err := llm.NewChatProvider(cfg.ChatOptions.Provider, cfg.ChatOptions.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat provider: %w", err)
	}
	logger.Infow("chat provider initialized",
		"provider", cfg.ChatOptions.Provider,
		"model", cfg.ChatOptions.Model,
	)

	var answerCache *biz.AnswerCache
	if redisClient != nil && cfg.CacheOptions.Enabled {
		answerCache = biz.NewAnswerCache(redisClient, &biz.AnswerCacheConfig{
			Enabled:   true,
			TTL:       cfg.CacheOptions.TTL,
			KeyPrefix: cfg.CacheOptions.KeyPrefix,
		})
	}

	service, err := biz.NewChatService(index, embedder, completer, answerCache, cfg.serviceConfig())
	if err != nil {
		return nil, err
	}
	logger.Infow("chat core initialized",
		"store", cfg.CoreOptions.StoreBackend,
		"cache.enabled", answerCache != nil,
	)

	watcher := cfg.newWatcher(service)

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())
	if cfg.HTTPOptions.MaxUploadBytes > 0 {
		engine.Use(bodyLimit(cfg.HTTPOptions.MaxUploadBytes))
	}
	router.Register(engine, handler.NewChatHandler(service))

	httpServer := &http.Server{
		Addr:         cfg.HTTPOptions.Addr,
		Handler:      engine,
		ReadTimeout:  cfg.HTTPOptions.ReadTimeout,
		WriteTimeout: cfg.HTTPOptions.WriteTimeout,
		IdleTimeout:  cfg.HTTPOptions.IdleTimeout,
	}

	logger.Infow("service ready", "addr", cfg.HTTPOptions.Addr)
	return &Server{
		httpServer:      httpServer,
		service:         service,
		watcher:         watcher,
		shutdownTimeout: cfg.ShutdownTimeout,
		closers:         closers,
	}, nil
}

// newIndex builds the configured vector index backend.
func (cfg *Config) newIndex(_ context.Context) (store.VectorIndex, func(), error) {
	switch cfg.CoreOptions.StoreBackend {
	case coreopts.StoreMilvus:
		client, err := milvus.New(cfg.MilvusOptions)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize milvus: %w", err)
		}
		logger.Infow("milvus index initialized",
			"address", cfg.MilvusOptions.Address,
			"collection", cfg.CoreOptions.Collection,
		)
		return store.NewMilvusIndex(client, cfg.CoreOptions.Collection),
			func() { _ = client.Close(context.Background()) }, nil
	default:
		logger.Info("using in-memory vector index")
		return store.NewMemoryIndex(), nil, nil
	}
}

// newRedis connects to Redis when the cache is enabled. A failed
// connection disables caching instead of failing startup.
func (cfg *Config) newRedis(ctx context.Context) (*goredis.Client, func()) {
	if !cfg.CacheOptions.Enabled {
		logger.Info("cache is disabled")
		return nil, nil
	}

	redisOpts := cfg.CacheOptions.Redis
	client := goredis.NewClient(&goredis.Options{
		Addr:         redisOpts.Addr(),
		Password:     redisOpts.Password,
		DB:           redisOpts.Database,
		MaxRetries:   redisOpts.MaxRetries,
		PoolSize:     redisOpts.PoolSize,
		MinIdleConns: redisOpts.MinIdleConns,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warnw("failed to connect to redis, caching disabled", "error", err.Error())
		_ = client.Close()
		return nil, nil
	}

	logger.Infow("redis cache initialized",
		"addr", redisOpts.Addr(),
		"ttl", cfg.CacheOptions.TTL,
	)
	return client, func() { _ = client.Close() }
}

func (cfg *Config) serviceConfig() *biz.ServiceConfig {
	orchConfig := biz.DefaultOrchestratorConfig()
	orchConfig.MaxHistoryTurns = cfg.CoreOptions.MaxHistoryTurns
	orchConfig.DefaultTimeout = cfg.CoreOptions.ChatTimeout
	if cfg.CoreOptions.PromptTemplate != "" {
		orchConfig.PromptTemplate = cfg.CoreOptions.PromptTemplate
	}

	return &biz.ServiceConfig{
		ChunkerConfig: &biz.ChunkerConfig{
			MaxChunkTokens: cfg.CoreOptions.ChunkMaxTokens,
			OverlapTokens:  cfg.CoreOptions.ChunkOverlapTokens,
		},
		RetrieverConfig: &biz.RetrieverConfig{
			TopK:        cfg.CoreOptions.TopK,
			TokenBudget: cfg.CoreOptions.TokenBudget,
		},
		OrchestratorConfig: orchConfig,
		EmbedWorkers:       cfg.CoreOptions.EmbedWorkers,
		EmbedBatchSize:     cfg.CoreOptions.EmbedBatchSize,
	}
}

// newWatcher subscribes the prompt template to config file changes so
// edits apply without a restart.
func (cfg *Config) newWatcher(service *biz.ChatService) *config.Watcher {
	v := viper.GetViper()
	if v.ConfigFileUsed() == "" {
		return nil
	}

	watcher := config.NewWatcher(v)
	watcher.Subscribe("prompt-template", func(v *viper.Viper) error {
		tpl := v.GetString("core.prompt-template")
		if tpl != "" {
			service.Orchestrator().SetPromptTemplate(tpl)
		}
		return nil
	})
	watcher.Start()
	return watcher
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	if s.watcher != nil {
		s.watcher.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	err := s.httpServer.Shutdown(shutdownCtx)
	if closeErr := s.service.Close(shutdownCtx); err == nil {
		err = closeErr
	}
	for _, closeFn := range s.closers {
		closeFn()
	}
	return err
}

// requestLogger logs one line per request through the global logger.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Infow("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
			"client", c.ClientIP(),
		)
	}
}

// bodyLimit rejects request bodies larger than limit bytes.
func bodyLimit(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}
