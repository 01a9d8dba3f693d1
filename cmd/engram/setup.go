package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kestrelworks/engram/internal/config"
	"github.com/kestrelworks/engram/internal/graph"
	"github.com/kestrelworks/engram/internal/ingest"
	"github.com/kestrelworks/engram/internal/memory"
	"github.com/kestrelworks/engram/internal/observability"
	"github.com/kestrelworks/engram/internal/providers/llm"
	"github.com/kestrelworks/engram/internal/storage/sqlite"
	"github.com/kestrelworks/engram/internal/transport/mcpserver"
	"github.com/kestrelworks/engram/internal/transport/stream"
	"github.com/kestrelworks/engram/pkg/log"
	"github.com/kestrelworks/engram/pkg/srv"
)

const turnStream = "engram:turns"

func NewServices(ctx context.Context) []srv.Service {
	logger := log.FromCtx(ctx)
	services := make([]srv.Service, 0)

	// init env
	err := initEnv(ctx, config.NewAppConfig(ctx).GetRuntimePath())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init env")
	}

	// 1. Configuration (re-read after .env so file values apply)
	appCfg := config.NewAppConfig(ctx)
	graphCfg := config.NewGraphConfig(ctx)

	// 2. Graph storage
	store, err := graph.NewStore(ctx, graphCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to graph store")
	}
	services = append(services, srv.NewCleanup(func() error {
		return store.Close(context.Background())
	}))
	writer := graph.NewWriter(store)

	// 3. Conflict audit storage
	db, err := sqlite.NewDB(ctx, appCfg.GetDatabasePath())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage")
	}
	services = append(services, srv.NewCleanup(db.Close))
	conflictRepo := sqlite.NewConflictRepo(db)

	// 4. Turn aggregation
	aggregator := ingest.NewAggregator(writer, ingest.NewDefaultRegistry(writer))
	aggregator.SetMetrics(observability.NewIngestMetrics("engram"))
	services = append(services, ingest.NewSweeper(aggregator, appCfg.SweepInterval, appCfg.StaleTurnMaxAge))

	// 5. Relation classifier
	aiProvider, err := llm.NewProvider(ctx, config.NewClassifierConfig(ctx))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize LLM provider")
	}

	// 6. Conflict engine and memory service
	engine := memory.NewEngine(writer, memory.NewGraphSearcher(store), memory.NewLLMClassifier(aiProvider))
	engine.SetMetrics(observability.NewConflictMetrics("engram"))
	engine.SetConfirmTimeout(appCfg.ConfirmTimeout)
	svc := memory.NewService(writer, engine, conflictRepo)
	if appCfg.ScanInterval > 0 {
		services = append(services, memory.NewScanner(svc, appCfg.ScanProject, appCfg.ScanInterval))
	}

	// 7. Transports
	if appCfg.EnableStream {
		consumer := stream.NewConsumer(config.NewStreamConfig(ctx), aggregator)
		aggregator.SetPublisher(consumer.Publisher(turnStream))
		services = append(services, consumer)
	}
	if appCfg.EnableMCPServer {
		mcpSrv := mcpserver.New(svc, aggregator)
		engine.SetConfirmer(mcpSrv.Elicitor())
		services = append(services, mcpSrv)
	}
	if appCfg.MetricsAddr != "" {
		services = append(services, observability.NewMetricsServer(appCfg.MetricsAddr))
	}

	return services
}

func initEnv(ctx context.Context, runtimePath string) error {
	logger := log.FromCtx(ctx)
	envFile := filepath.Join(runtimePath, ".env")

	if _, err := os.Stat(envFile); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := godotenv.Load(envFile); err != nil {
		logger.Warn().Err(err).Str("path", envFile).Msg("failed to load .env file")
		return err
	}

	logger.Debug().Str("path", envFile).Msg("loaded .env file")
	return nil
}
