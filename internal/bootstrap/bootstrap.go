// Package bootstrap builds the shared runtime of the server and the worker
// from environment variables.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/trailgraph/internal/collect"
	"github.com/OFFIS-RIT/trailgraph/internal/queue"
	"github.com/OFFIS-RIT/trailgraph/internal/storage"
	"github.com/OFFIS-RIT/trailgraph/internal/util"
	"github.com/OFFIS-RIT/trailgraph/pkg/ai"
	oai "github.com/OFFIS-RIT/trailgraph/pkg/ai/ollama"
	gai "github.com/OFFIS-RIT/trailgraph/pkg/ai/openai"
	"github.com/OFFIS-RIT/trailgraph/pkg/briefing"
	"github.com/OFFIS-RIT/trailgraph/pkg/evidence/web"
	"github.com/OFFIS-RIT/trailgraph/pkg/graph"
	"github.com/OFFIS-RIT/trailgraph/pkg/leaselock"
	"github.com/OFFIS-RIT/trailgraph/pkg/logger"
	"github.com/OFFIS-RIT/trailgraph/pkg/score"
	"github.com/OFFIS-RIT/trailgraph/pkg/store"
	"github.com/OFFIS-RIT/trailgraph/pkg/store/memory"
	pgstore "github.com/OFFIS-RIT/trailgraph/pkg/store/pgx"
	redisstore "github.com/OFFIS-RIT/trailgraph/pkg/store/redis"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	AdapterOpenAI = "openai"
	AdapterOllama = "ollama"
	AdapterRules  = "rules"

	StoreMemory = "memory"
	StorePgx    = "pgx"
	StoreRedis  = "redis"
)

// App holds everything a process needs to serve sessions. AIClient is nil
// with the rules adapter; DB and Locker are nil unless sessions live in
// PostgreSQL; S3 is nil when no bucket is configured.
type App struct {
	AIClient       ai.GraphAIClient
	Client         *graph.GraphClient
	Manager        *graph.Manager
	Store          store.SessionStore
	DB             *pgxpool.Pool
	Locker         queue.SessionLocker
	S3             *s3.Client
	Bucket         string
	PublicS3URL    string
	Collectors     *collect.Factory
	CollectTimeout time.Duration
	SessionTTL     time.Duration

	closers []func()
}

// New builds an App from the environment.
func New(ctx context.Context) (*App, error) {
	app := &App{
		Bucket:         util.GetEnv("AWS_BUCKET"),
		PublicS3URL:    util.GetEnv("AWS_PUBLIC_ENDPOINT"),
		CollectTimeout: util.GetEnvDuration("COLLECT_TIMEOUT", 0),
		SessionTTL:     util.GetEnvDuration("SESSION_TTL", 24*time.Hour),
	}

	aiClient, err := NewAIClient()
	if err != nil {
		return nil, err
	}
	app.AIClient = aiClient

	client, err := NewGraphClient(aiClient)
	if err != nil {
		return nil, err
	}
	app.Client = client

	if err := app.openStore(ctx); err != nil {
		app.Close()
		return nil, err
	}
	app.Manager = graph.NewManager(client, app.Store)
	app.closers = append(app.closers, app.Manager.CloseAll)

	if app.Bucket != "" {
		s3Client, err := storage.NewS3Client(ctx)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.S3 = s3Client
	}

	app.Collectors = &collect.Factory{
		Bucket: app.Bucket,
		Web: web.NewCollectorParams{
			BatchSize:       int(util.GetEnvNumeric("WEB_BATCH_SIZE", 5)),
			Parallel:        int(util.GetEnvNumeric("WEB_PARALLEL", 4)),
			PerDomainRate:   util.GetEnvNumeric("WEB_DOMAIN_RATE", 1),
			PerDomainBurst:  int(util.GetEnvNumeric("WEB_DOMAIN_BURST", 2)),
			CacheTTL:        util.GetEnvDuration("WEB_CACHE_TTL", 10*time.Minute),
			MaxExcerptChars: int(util.GetEnvNumeric("WEB_MAX_EXCERPT", 2000)),
		},
	}
	// a nil *s3.Client must not end up in the interface field
	if app.S3 != nil {
		app.Collectors.S3 = app.S3
	}

	logger.Info("[Bootstrap] Runtime ready",
		"ai_adapter", util.GetEnvString("AI_ADAPTER", AdapterRules),
		"session_store", util.GetEnvString("SESSION_STORE", StoreMemory),
		"s3", app.S3 != nil,
	)
	return app, nil
}

// NewAIClient returns the client selected by AI_ADAPTER, or nil for the
// rule based pipeline.
func NewAIClient() (ai.GraphAIClient, error) {
	adapter := util.GetEnvString("AI_ADAPTER", AdapterRules)

	switch adapter {
	case AdapterRules:
		return nil, nil
	case AdapterOllama:
		client, err := oai.NewGraphOllamaClient(oai.NewGraphOllamaClientParams{
			ExtractionModel: util.GetEnv("AI_CHAT_EXTRACT_MODEL"),
			BriefingModel:   util.GetEnv("AI_CHAT_DESCRIBE_MODEL"),

			BaseURL: util.GetEnv("AI_CHAT_URL"),
			ApiKey:  util.GetEnv("AI_CHAT_KEY"),

			MaxConcurrentRequests: int64(util.GetEnvNumeric("AI_PARALLEL_REQ", 15)),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		return client, nil
	case AdapterOpenAI:
		return gai.NewGraphOpenAIClient(gai.NewGraphOpenAIClientParams{
			ExtractionModel: util.GetEnv("AI_CHAT_EXTRACT_MODEL"),
			BriefingModel:   util.GetEnv("AI_CHAT_DESCRIBE_MODEL"),

			ChatURL: util.GetEnv("AI_CHAT_URL"),
			ChatKey: util.GetEnv("AI_CHAT_KEY"),
		}), nil
	}
	return nil, fmt.Errorf("unknown AI adapter %q", adapter)
}

// NewGraphClient configures the pipeline. Without an AI client evidence is
// extracted by rules and briefings are composed deterministically.
func NewGraphClient(aiClient ai.GraphAIClient) (*graph.GraphClient, error) {
	weights := score.DefaultWeights()
	weights.ExtractionMax = util.GetEnvNumeric("SCORE_EXTRACTION_MAX", 0)

	params := graph.NewGraphClientParams{
		Weights:             &weights,
		ParallelExtractions: int(util.GetEnvNumeric("AI_PARALLEL_REQ", 4)),
		MaxRetries:          int(util.GetEnvNumeric("AI_MAX_RETRIES", 3)),
		ExtractTimeout:      util.GetEnvDuration("EXTRACT_TIMEOUT", 0),
	}

	if aiClient != nil {
		extractor, err := graph.NewAIExtractor(graph.NewAIExtractorParams{
			Client:       aiClient,
			TokenEncoder: util.GetEnvString("AI_TOKEN_ENCODER", "o200k_base"),
			MaxTokens:    int(util.GetEnvNumeric("AI_MAX_EXCERPT_TOKENS", 2000)),
			MaxRetries:   params.MaxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create extractor: %w", err)
		}
		synthesizer, err := briefing.NewAI(briefing.NewAIParams{
			Client:     aiClient,
			MaxRetries: params.MaxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create synthesizer: %w", err)
		}
		params.Extractor = extractor
		params.Synthesizer = synthesizer
		if util.GetEnvBool("AI_ALIAS_RESOLUTION", true) {
			params.AliasClient = aiClient
		}
	}

	client, err := graph.NewGraphClient(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create graph client: %w", err)
	}
	return client, nil
}

func (a *App) openStore(ctx context.Context) error {
	kind := util.GetEnvString("SESSION_STORE", StoreMemory)

	switch kind {
	case StoreMemory:
		a.Store = memory.New(a.SessionTTL)
		return nil
	case StorePgx:
		databaseURL := util.GetEnv("DATABASE_URL")
		if err := pgstore.Migrate(databaseURL); err != nil {
			return err
		}
		pool, err := pgxpool.New(ctx, databaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		a.DB = pool
		a.closers = append(a.closers, pool.Close)
		a.Store = pgstore.NewSessionDBStorageWithConnection(pool, pgstore.WithTTL(a.SessionTTL))
		a.Locker = leaselock.New(pool)
		return nil
	case StoreRedis:
		rs, err := redisstore.NewStore(ctx, redisstore.NewStoreParams{
			Addr:     util.GetEnvString("REDIS_ADDR", "localhost:6379"),
			Password: util.GetEnv("REDIS_PASSWORD"),
			DB:       int(util.GetEnvNumeric("REDIS_DB", 0)),
			TTL:      a.SessionTTL,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.Store = rs
		a.closers = append(a.closers, func() { _ = rs.Close() })
		return nil
	}
	return fmt.Errorf("unknown session store %q", kind)
}

// SweepSessions deletes expired sessions from PostgreSQL every interval
// until ctx is done. The memory and redis stores expire entries on their
// own, so it returns immediately for them.
func (a *App) SweepSessions(ctx context.Context, interval time.Duration) {
	pg, ok := a.Store.(*pgstore.SessionDBStorage)
	if !ok || a.SessionTTL <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := pg.Sweep(ctx, time.Now().Add(-a.SessionTTL))
			if err != nil {
				logger.Warn("[Bootstrap] Session sweep failed", "err", err)
				continue
			}
			if n > 0 {
				logger.Info("[Bootstrap] Expired sessions removed", "count", n)
			}
		}
	}
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
