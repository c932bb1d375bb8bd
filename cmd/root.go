package cmd

import (
	"log"
	"time"

	"github.com/hiresense/hiresense/internal/ratelimit"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app = "hiresense"
)

type Config struct {
	Server    *ServerConfig              `mapstructure:"server"`
	Database  *DatabaseConfig            `mapstructure:"database"`
	Auth      *AuthConfig                `mapstructure:"auth"`
	Cache     *CacheConfig               `mapstructure:"cache"`
	Limits    map[string]ratelimit.Limit `mapstructure:"rate-limits"`
	AI        *AIConfig                  `mapstructure:"ai"`
	JobSearch *JobSearchConfig           `mapstructure:"job-search"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type AuthConfig struct {
	IntrospectionURL string            `mapstructure:"introspection-url"`
	StaticTokens     map[string]string `mapstructure:"static-tokens"`
}

type CacheConfig struct {
	MatchScoreTTL time.Duration `mapstructure:"match-score-ttl"`
	JobListTTL    time.Duration `mapstructure:"job-list-ttl"`
}

type AIConfig struct {
	Provider string        `mapstructure:"provider"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey       string `mapstructure:"api-key"`
	APIKeyFile   string `mapstructure:"api-key-file"`
	Model        string `mapstructure:"model"`
	MaxRetries   int    `mapstructure:"max-retries"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

type JobSearchConfig struct {
	Host       string `mapstructure:"host"`
	APIKey     string `mapstructure:"api-key"`
	APIKeyFile string `mapstructure:"api-key-file"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "hiresense is a job-search tracking service with AI match scoring",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is hiresense.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	// Only serve and invalidate need the config file.
	if serveCmd.CalledAs() == "" && invalidateCmd.CalledAs() == "" {
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
