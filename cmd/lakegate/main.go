package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/pflag"
	"github.com/triage-ai/lakegate/internal/catalog"
	"github.com/triage-ai/lakegate/internal/ledger"
	"github.com/triage-ai/lakegate/internal/orchestrator"
	"github.com/triage-ai/lakegate/internal/policy"
	"github.com/triage-ai/lakegate/internal/retrieval"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	role := pflag.String("role", "", "requester role (required)")
	question := pflag.String("question", "", "free-text question (required)")
	userID := pflag.String("user-id", "demo_user", "requester user id")
	pflag.Parse()

	// Logger
	logger := mustBuildLogger(envOrDefault("LAKEGATE_LOG_LEVEL", "info"))
	defer logger.Sync() //nolint:errcheck // best-effort flush

	if *role == "" || *question == "" {
		pflag.Usage()
		os.Exit(2)
	}

	// Config from env
	rolesPath := envOrDefault("LAKEGATE_ROLES_PATH", "config/roles.yaml")
	postgresDSN := os.Getenv("POSTGRES_DSN")
	clickhouseDSN := envOrDefault("CLICKHOUSE_DSN", "clickhouse://localhost:9000/lakehouse")
	qdrantURL := envOrDefault("QDRANT_URL", "http://localhost:6333")
	qdrantCollection := envOrDefault("QDRANT_COLLECTION", "rag_docs")
	embeddingsURL := envOrDefault("EMBEDDINGS_URL", "http://localhost:8081")
	embeddingsModel := envOrDefault("EMBEDDINGS_MODEL", "all-MiniLM-L6-v2")
	topK := envOrDefaultInt("LAKEGATE_TOP_K", 3)
	overfetch := envOrDefaultInt("LAKEGATE_OVERFETCH", 1)
	runTimeout := envOrDefaultInt("LAKEGATE_RUN_TIMEOUT_S", 60)

	logger.Info("starting lakegate run",
		zap.String("role", *role),
		zap.String("user_id", *userID),
	)

	// Policy — a missing or malformed source is fatal, never fail-open.
	policyStore, err := policy.NewYAMLStore(rolesPath, logger)
	if err != nil {
		logger.Fatal("policy source unusable", zap.Error(err))
	}

	// Audit ledger — Postgres if DSN provided, otherwise log ledger
	var auditLedger ledger.Ledger
	if postgresDSN != "" {
		db, err := sql.Open("pgx", postgresDSN)
		if err != nil {
			logger.Fatal("failed to open postgres", zap.Error(err))
		}
		defer func() { _ = db.Close() }()
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(context.Background()); err != nil {
			logger.Fatal("failed to ping postgres", zap.Error(err))
		}
		auditLedger = ledger.NewPostgresLedger(ledger.PostgresLedgerConfig{
			DB:     db,
			Logger: logger,
		})
		logger.Info("postgres audit ledger connected")
	} else {
		auditLedger = ledger.NewLogLedger(logger)
		logger.Info("no POSTGRES_DSN set, audit records go to the log")
	}

	// Analytics backing store
	chOpts, err := clickhouse.ParseDSN(clickhouseDSN)
	if err != nil {
		logger.Fatal("invalid CLICKHOUSE_DSN", zap.Error(err))
	}
	chDB := clickhouse.OpenDB(chOpts)
	defer func() { _ = chDB.Close() }()
	chDB.SetMaxOpenConns(5)
	chDB.SetMaxIdleConns(2)
	chDB.SetConnMaxLifetime(time.Hour)

	// Tool catalog + executor
	cat, err := catalog.New()
	if err != nil {
		logger.Fatal("catalog failed to compile", zap.Error(err))
	}
	executor := catalog.NewExecutor(catalog.ExecutorConfig{
		Policy:  policyStore,
		Catalog: cat,
		Backend: catalog.NewSQLBackend(chDB),
		Ledger:  auditLedger,
		Logger:  logger,
	})

	// Retrieval gateway
	gateway := retrieval.NewGateway(retrieval.GatewayConfig{
		Embedder:        retrieval.NewOpenAIEmbedder(embeddingsURL, embeddingsModel),
		Searcher:        retrieval.NewQdrantClient(qdrantURL, qdrantCollection),
		OverfetchFactor: overfetch,
		Logger:          logger,
	})

	orch := orchestrator.New(orchestrator.Config{
		Policy:    policyStore,
		Executor:  executor,
		Ledger:    auditLedger,
		Retriever: gateway,
		TopK:      topK,
		Logger:    logger,
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(runTimeout)*time.Second)
	defer cancel()

	report, err := orch.Run(ctx, *userID, *role, *question)
	if err != nil {
		logger.Error("run failed", zap.Error(err))
		fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Print(report.Render())
}

func mustBuildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
