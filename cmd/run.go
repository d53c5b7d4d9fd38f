package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/knakano/jsonsim/internal/ai"
	"github.com/knakano/jsonsim/internal/batch"
	"github.com/knakano/jsonsim/internal/cache"
	"github.com/knakano/jsonsim/internal/embedding"
	"github.com/knakano/jsonsim/internal/generative"
	"github.com/knakano/jsonsim/internal/logger"
	"github.com/knakano/jsonsim/internal/progress"
	"github.com/knakano/jsonsim/internal/prompt"
	"github.com/knakano/jsonsim/internal/secrets"
	"github.com/knakano/jsonsim/internal/similarity"
	"github.com/knakano/jsonsim/internal/strategy"
	"github.com/knakano/jsonsim/internal/utils"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const progressLogInterval = 5 * time.Second

var runCmd = &cobra.Command{
	Use:   "run <input.jsonl>",
	Short: "Score the similarity of every record pair in a JSONL file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		run(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("method", "m", "", "similarity method: embedding or generative")
	runCmd.Flags().StringP("output", "o", "", "output shape: score (one aggregate object) or file (per-record array)")
	runCmd.Flags().Bool("fallback", false, "fall back to the embedding backend when the generative backend is unavailable")

	viper.BindPFlag("method", runCmd.Flags().Lookup("method"))
	viper.BindPFlag("output", runCmd.Flags().Lookup("output"))
	viper.BindPFlag("fallback", runCmd.Flags().Lookup("fallback"))
}

// run is the main command for the cli.
func run(_ *cobra.Command, inputPath string) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}
	if config == nil {
		config = &Config{}
	}
	applyDefaults(config)

	logger.Info("starting the jsonsim run", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	input, err := os.Open(inputPath)
	if err != nil {
		logger.Fatal("opening input file", zap.Error(err))
	}

	records, err := batch.ReadRecords(input, logger)
	input.Close()
	if err != nil {
		logger.Fatal("reading input records", zap.Error(err))
	}
	if len(records) == 0 {
		logger.Info("exiting", zap.String("reason", "no records found in input"))
		return
	}

	logger.Info("input loaded",
		zap.String("file", inputPath),
		zap.Int("records", len(records)),
	)

	router, cleanup, err := buildRouter(ctx, config, logger)
	if err != nil {
		logger.Fatal("building similarity backends", zap.Error(err))
	}
	defer cleanup()

	scorer := similarity.NewScorer(router)
	tracker := progress.NewTracker()
	runner := batch.NewRunner(scorer, ai.Method(config.Method), tracker, logger)

	done := make(chan struct{})
	go logProgress(ctx, runner, logger, done)

	report, err := runner.Run(ctx, inputPath, records)
	close(done)
	if err != nil {
		logger.Fatal("batch failed", zap.Error(err))
	}

	stats := router.Stats()
	logger.Info("batch finished",
		zap.String("task_id", report.TaskID),
		zap.Int64("computed", stats.Computed),
		zap.Int64("fallbacks", stats.Fallbacks),
		zap.Int64("failures", stats.Failures),
	)

	out, err := batch.Shape(report, config.Output)
	if err != nil {
		logger.Fatal("shaping output", zap.Error(err))
	}

	rendered, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		logger.Fatal("rendering output", zap.Error(err))
	}
	fmt.Println(string(rendered))
}

func applyDefaults(config *Config) {
	config.Method = strings.TrimSpace(strings.ToLower(config.Method))
	if config.Method == "" {
		config.Method = string(ai.MethodEmbedding)
	}
	config.Output = strings.TrimSpace(strings.ToLower(config.Output))
	if config.Output == "" {
		config.Output = batch.OutputScore
	}
}

// logProgress periodically logs the batch task snapshot until the run
// finishes. The task id becomes known only after the runner creates it, so
// the first ticks may find nothing to report.
func logProgress(ctx context.Context, runner *batch.Runner, logger *zap.Logger, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		default:
		}

		if err := utils.WaitFor(ctx, progressLogInterval); err != nil {
			return
		}

		snap, err := runner.Progress()
		if err != nil {
			continue
		}
		fields := []zap.Field{
			zap.Int("current", snap.Current),
			zap.Int("total", snap.Total),
			zap.Float64("percentage", snap.Percentage),
			zap.Duration("elapsed", snap.Elapsed),
			zap.Float64("records_per_second", snap.Speed),
		}
		if snap.EstimatedRemaining != nil {
			fields = append(fields, zap.Duration("estimated_remaining", *snap.EstimatedRemaining))
		}
		logger.Info("batch progress", fields...)
	}
}

// buildRouter assembles the backends the configured method needs. The
// returned cleanup releases the embedding session when one was created.
func buildRouter(ctx context.Context, config *Config, lg *zap.Logger) (*strategy.Router, func(), error) {
	cleanup := func() {}

	method := ai.Method(config.Method)
	fallback := viper.GetBool("fallback") || config.Fallback

	var embeddingBackend ai.Backend
	if method == ai.MethodEmbedding || fallback {
		encoder, err := newEncoder(config.Embedding)
		if err != nil {
			return nil, nil, fmt.Errorf("building embedding encoder: %w", err)
		}
		cleanup = func() {
			if err := encoder.Close(); err != nil {
				lg.Warn("closing embedding encoder", zap.Error(err))
			}
		}
		embeddingBackend = embedding.NewBackend(encoder, lg)
	}

	var generativeBackend ai.Backend
	if method == ai.MethodGenerative {
		backend, err := newGenerativeBackend(ctx, config, lg)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		generativeBackend = backend
	}

	router, err := strategy.New(strategy.Config{
		Method:   method,
		Fallback: fallback,
	}, embeddingBackend, generativeBackend, lg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return router, cleanup, nil
}

func newEncoder(config *EmbeddingConfig) (embedding.Encoder, error) {
	if config == nil {
		return nil, errors.New("embedding configuration is required (set the embedding section)")
	}
	return embedding.NewOnnxEncoder(embedding.OnnxConfig{
		SharedLibrary: config.SharedLibrary,
		ModelPath:     config.ModelPath,
		TokenizerPath: config.TokenizerPath,
		ModelID:       config.ModelID,
		MaxSeqLen:     config.MaxSeqLen,
	})
}

func newGenerativeBackend(ctx context.Context, config *Config, lg *zap.Logger) (ai.Backend, error) {
	cfg := config.Generative
	if cfg == nil {
		return nil, errors.New("generative configuration is required (set the generative section)")
	}

	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider == "" {
		provider = "openai"
	}

	keyFile := strings.TrimSpace(cfg.APIKeyFile)
	if keyFile == "" {
		keyFile = strings.TrimSpace(viper.GetString("generative.api-key-file"))
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name: "generative api key",
		File: keyFile,
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set generative.api-key-file or JSONSIM_API_KEY_FILE)", err)
	}

	var client generative.Client
	switch provider {
	case "openai":
		client, err = generative.NewOpenAIClient(apiKey, cfg.BaseURL, cfg.Model)
	case "gemini":
		client, err = generative.NewGeminiClient(ctx, apiKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unsupported generative provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("building %s client: %w", provider, err)
	}

	template := prompt.Default()
	if cfg.Template != "" {
		template, err = prompt.Load(cfg.Template)
		if err != nil {
			return nil, err
		}
	}

	backendLogger := logger.WithCommonFields(lg, provider, cfg.Model)
	backend := generative.NewBackend(client, template, &generative.Config{
		Timeout:    cfg.Timeout,
		MaxRetries: cfg.MaxRetries,
	}, backendLogger)

	var cacheCfg *cache.Config
	if config.Cache != nil {
		cacheCfg = &cache.Config{
			Size: config.Cache.Size,
			TTL:  config.Cache.TTL,
		}
	}
	return cache.New(backend, backend, cacheCfg, backendLogger), nil
}
