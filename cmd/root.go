package cmd

import (
	"log"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app = "jsonsim"
)

type Config struct {
	Method     string            `mapstructure:"method"`
	Output     string            `mapstructure:"output"`
	Fallback   bool              `mapstructure:"fallback"`
	Embedding  *EmbeddingConfig  `mapstructure:"embedding"`
	Generative *GenerativeConfig `mapstructure:"generative"`
	Cache      *CacheConfig      `mapstructure:"cache"`
}

type EmbeddingConfig struct {
	SharedLibrary string `mapstructure:"shared-library"`
	ModelPath     string `mapstructure:"model-path"`
	TokenizerPath string `mapstructure:"tokenizer-path"`
	ModelID       string `mapstructure:"model-id"`
	MaxSeqLen     int    `mapstructure:"max-seq-len"`
}

type GenerativeConfig struct {
	Provider   string        `mapstructure:"provider"`
	BaseURL    string        `mapstructure:"base-url"`
	Model      string        `mapstructure:"model"`
	APIKeyFile string        `mapstructure:"api-key-file"`
	Template   string        `mapstructure:"template"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max-retries"`
}

type CacheConfig struct {
	Size int           `mapstructure:"size"`
	TTL  time.Duration `mapstructure:"ttl"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "jsonsim is a cli for scoring the structural similarity of JSON record pairs",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	if err := viper.BindEnv("generative.api-key-file", "JSONSIM_API_KEY_FILE"); err != nil {
		log.Fatalf("binding JSONSIM_API_KEY_FILE environment variable: %v", err)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is jsonsim.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	// Config needed only for run command now. If there is no config, we can skip initialization
	if runCmd.CalledAs() == "" {
		return
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app + ".yaml")
	}

	// We can't proceed if the config file parsed with error.
	if err := viper.ReadInConfig(); err != nil {
		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	return config, nil
}
