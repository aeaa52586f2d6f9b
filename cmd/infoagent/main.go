package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/infoagent/infoagent/internal/profile"
	"github.com/infoagent/infoagent/plugin/ai"
	"github.com/infoagent/infoagent/plugin/filter"
	"github.com/infoagent/infoagent/server"
	"github.com/infoagent/infoagent/server/ranking"
	"github.com/infoagent/infoagent/server/retrieval"
	apiv1 "github.com/infoagent/infoagent/server/router/api/v1"
	embeddingrunner "github.com/infoagent/infoagent/server/runner/embedding"
	memoryservice "github.com/infoagent/infoagent/server/service/memory"
	"github.com/infoagent/infoagent/store"
	"github.com/infoagent/infoagent/store/db"
)

const version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "infoagent",
	Short: "An AI-powered personal memory store with hybrid search",
	RunE: func(_ *cobra.Command, _ []string) error {
		prof, err := profile.GetProfile(version)
		if err != nil {
			return err
		}
		return run(prof)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("mode", "dev", `mode of the server, can be "prod" or "dev"`)
	flags.String("addr", "", "binding address for the server")
	flags.Int("port", 8230, "binding port for the server")
	flags.String("data", "", "data directory")
	flags.String("driver", "sqlite", `database driver, can be "sqlite" or "postgres"`)
	flags.String("dsn", "", "database source name")
	flags.Bool("ai-enabled", false, "enable AI extraction and semantic search")
	flags.String("ai-provider", "openai", "AI provider (OpenAI-compatible)")
	flags.String("ai-api-key", "", "AI API key")
	flags.String("ai-base-url", "", "AI API base URL")
	flags.String("ai-llm-model", "gpt-4o-mini", "LLM model for extraction and query analysis")
	flags.String("ai-embedding-model", "text-embedding-3-small", "embedding model")
	flags.Int("ai-dimensions", 1536, "embedding vector dimensions")
	flags.Int("ranking-rrf-k", ranking.DefaultRRFK, "RRF damping factor for rank fusion")
	flags.Float64("ranking-threshold", ranking.DefaultThreshold, "minimum fused score to keep a result")

	if err := viper.BindPFlags(flags); err != nil {
		panic(err)
	}
	viper.SetEnvPrefix("infoagent")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func run(prof *profile.Profile) error {
	logger := newLogger(prof)
	slog.SetDefault(logger)

	dbDriver, err := db.NewDBDriver(prof)
	if err != nil {
		return fmt.Errorf("create database driver: %w", err)
	}
	st := store.New(dbDriver, prof)

	var (
		processor        *ai.MemoryProcessor
		analyzer         *ai.QueryAnalyzer
		embeddingService ai.EmbeddingService
		runner           *embeddingrunner.Runner
	)
	if prof.IsAIEnabled() {
		aiConfig := ai.NewConfigFromProfile(prof)
		if err := aiConfig.Validate(); err != nil {
			return fmt.Errorf("validate AI config: %w", err)
		}
		llmService, err := ai.NewLLMService(&aiConfig.LLM)
		if err != nil {
			return fmt.Errorf("create LLM service: %w", err)
		}
		embeddingService, err = ai.NewEmbeddingService(&aiConfig.Embedding)
		if err != nil {
			return fmt.Errorf("create embedding service: %w", err)
		}
		processor = ai.NewMemoryProcessor(llmService, logger)
		analyzer = ai.NewQueryAnalyzer(llmService, logger)
		runner = embeddingrunner.NewRunner(st, embeddingService, logger)
		logger.Info("AI enabled",
			"llm_model", prof.AILLMModel,
			"embedding_model", prof.AIEmbeddingModel,
		)
	} else {
		logger.Info("AI disabled, running with structured search only")
	}

	ranker := ranking.NewRanker(ranking.Config{
		K:         prof.RankingRRFK,
		Threshold: prof.RankingThreshold,
	})
	providers := []retrieval.Provider{retrieval.NewStructuredProvider(st)}
	if embeddingService != nil {
		providers = append(providers, retrieval.NewSemanticProvider(st, embeddingService))
	}
	searcher := retrieval.NewHybridSearcher(providers, ranker, logger)

	filterEngine, err := filter.NewEngine()
	if err != nil {
		return fmt.Errorf("create filter engine: %w", err)
	}

	memoryService := memoryservice.NewService(st, processor, embeddingService, logger)
	searchService := memoryservice.NewSearchService(searcher, analyzer, filterEngine, logger)
	api := apiv1.NewAPIV1Service(prof, memoryService, searchService, logger)

	srv := server.New(prof, st, api, runner, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig.String())
		cancel()
		srv.Shutdown(context.Background())
	}()

	return srv.Start(ctx)
}

func newLogger(prof *profile.Profile) *slog.Logger {
	level := slog.LevelInfo
	if prof.IsDev() {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
