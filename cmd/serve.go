package cmd

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hiresense/hiresense/internal/ai"
	"github.com/hiresense/hiresense/internal/ai/gemini"
	"github.com/hiresense/hiresense/internal/applications"
	"github.com/hiresense/hiresense/internal/authn"
	"github.com/hiresense/hiresense/internal/cache"
	"github.com/hiresense/hiresense/internal/jobsearch"
	"github.com/hiresense/hiresense/internal/logger"
	"github.com/hiresense/hiresense/internal/profile"
	"github.com/hiresense/hiresense/internal/ratelimit"
	"github.com/hiresense/hiresense/internal/secrets"
	"github.com/hiresense/hiresense/internal/server"
	"github.com/hiresense/hiresense/internal/store"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const defaultAddress = ":8080"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the hiresense API server",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}
	if config == nil {
		logger.Fatal("config is required")
	}

	logger.Info("starting hiresense", zap.String("version", version))

	st, err := openStore(config, logger)
	if err != nil {
		logger.Fatal("opening the store", zap.Error(err))
	}
	defer st.Close()

	limiter := ratelimit.New(st, limitsFromConfig(config), logger)

	var matchTTL, listTTL = cache.DefaultMatchScoreTTL, server.DefaultJobListTTL
	if config.Cache != nil {
		if config.Cache.MatchScoreTTL > 0 {
			matchTTL = config.Cache.MatchScoreTTL
		}
		if config.Cache.JobListTTL > 0 {
			listTTL = config.Cache.JobListTTL
		}
	}

	scorer, parser, chatter, err := newAIProvider(ctx, config.AI, logger)
	if err != nil {
		logger.Fatal("building the ai provider", zap.Error(err))
	}

	jobs, err := newJobSearchClient(config.JobSearch, logger)
	if err != nil {
		logger.Fatal("building the job search client", zap.Error(err))
	}

	verifier, err := newVerifier(config.Auth)
	if err != nil {
		logger.Fatal("building the token verifier", zap.Error(err))
	}

	address := defaultAddress
	if config.Server != nil && config.Server.Address != "" {
		address = config.Server.Address
	}

	srv := server.New(server.Deps{
		Logger:       logger,
		Store:        st,
		Limiter:      limiter,
		Matches:      cache.NewMatchScores(st, logger, matchTTL),
		Profiles:     profile.NewService(st),
		Applications: applications.NewService(st),
		Scorer:       scorer,
		Parser:       parser,
		Chatter:      chatter,
		Jobs:         jobs,
		Verifier:     verifier,
		JobListTTL:   listTTL,
	})

	if err := srv.Run(ctx, address); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func openStore(config *Config, logger *zap.Logger) (store.Store, error) {
	if config.Database == nil || config.Database.Driver == "memory" {
		logger.Warn("using the in-memory store; state is lost on restart and not shared between instances")
		return store.NewMemory(), nil
	}

	switch config.Database.Driver {
	case "", "postgres":
		return store.NewPostgres(config.Database.DSN, logger)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", config.Database.Driver)
	}
}

func limitsFromConfig(config *Config) map[ratelimit.Class]ratelimit.Limit {
	if len(config.Limits) == 0 {
		return nil
	}

	limits := ratelimit.DefaultLimits()
	for name, limit := range config.Limits {
		limits[ratelimit.Class(name)] = limit
	}
	return limits
}

func newAIProvider(ctx context.Context, config *AIConfig, logger *zap.Logger) (ai.Scorer, ai.ResumeParser, ai.Chatter, error) {
	if config == nil || config.Gemini == nil {
		return nil, nil, nil, fmt.Errorf("ai.gemini configuration is required")
	}

	provider := strings.TrimSpace(strings.ToLower(config.Provider))
	if provider != "" && provider != "gemini" {
		return nil, nil, nil, fmt.Errorf("unsupported ai provider: %s", config.Provider)
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		Value: config.Gemini.APIKey,
		Env:   "GEMINI_API_KEY",
		File:  config.Gemini.APIKeyFile,
	})
	if err != nil {
		return nil, nil, nil, err
	}

	genLogger := logger.With(
		zap.String("provider", "gemini"),
		zap.String("model", config.Gemini.Model),
	)

	generator, err := gemini.NewGenerator(ctx, apiKey, config.Gemini.Model, config.Gemini.MaxRetries)
	if err != nil {
		return nil, nil, nil, err
	}

	return gemini.NewScorer(generator, genLogger, config.Gemini.MaxLogLength),
		gemini.NewParser(generator, genLogger, config.Gemini.MaxLogLength),
		gemini.NewAssistant(generator, genLogger),
		nil
}

func newJobSearchClient(config *JobSearchConfig, logger *zap.Logger) (*jobsearch.Client, error) {
	if config == nil {
		config = &JobSearchConfig{}
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name:  "job search api key",
		Value: config.APIKey,
		Env:   "RAPIDAPI_KEY",
		File:  config.APIKeyFile,
	})
	if err != nil {
		return nil, err
	}

	return jobsearch.New(apiKey, config.Host, logger), nil
}

func newVerifier(config *AuthConfig) (authn.Verifier, error) {
	if config == nil {
		return nil, fmt.Errorf("auth configuration is required")
	}
	if len(config.StaticTokens) > 0 {
		return authn.NewStaticVerifier(config.StaticTokens), nil
	}
	if config.IntrospectionURL != "" {
		return authn.NewRemoteVerifier(config.IntrospectionURL), nil
	}
	return nil, fmt.Errorf("auth.introspection-url or auth.static-tokens is required")
}
