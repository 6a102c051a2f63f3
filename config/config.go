package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"unibridge-points/models"
)

// Config is everything the process reads from its environment.
type Config struct {
	Port           string   `validate:"required,numeric"`
	DatabaseURL    string   `validate:"required"`
	ServiceToken   string   `validate:"required"`
	AllowedOrigins []string `validate:"min=1"`
	AdminWallets   []string `validate:"dive,eth_addr"`

	LogLevel       string
	LogDevelopment bool

	// Balance indexer (optional; positions can also be pushed)
	IndexerURL          string        `validate:"omitempty,url"`
	IndexerToken        string
	IndexerPollInterval time.Duration `validate:"gt=0"`

	// Transaction status oracle (optional; statuses can also be pushed)
	OracleURL        string        `validate:"omitempty,url"`
	OracleToken      string
	OracleRatePerSec float64       `validate:"gt=0"`
	VerifyInterval   time.Duration `validate:"gt=0"`
	VerifyBatchSize  int           `validate:"gt=0,lte=1000"`

	DailyStakingAt          string `validate:"required"`
	DistributionConcurrency int    `validate:"gt=0,lte=64"`

	ScoringConfigFile string

	R2 R2Config
}

// R2Config locates the bucket used to archive admin exports. Archiving is
// off when Bucket is empty.
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	CDNBaseURL      string
}

// Enabled reports whether exports should be archived.
func (r R2Config) Enabled() bool {
	return r.Bucket != "" && r.AccountID != ""
}

// Load reads an optional .env file, then the environment, and validates.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                    getEnv("PORT", "5200"),
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		ServiceToken:            os.Getenv("SERVICE_TOKEN"),
		AllowedOrigins:          splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		AdminWallets:            splitList(strings.ToLower(os.Getenv("ADMIN_WALLETS"))),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		LogDevelopment:          getEnvAsBool("LOG_DEVELOPMENT", false),
		IndexerURL:              os.Getenv("INDEXER_URL"),
		IndexerToken:            os.Getenv("INDEXER_TOKEN"),
		IndexerPollInterval:     getEnvAsDuration("INDEXER_POLL_INTERVAL", 10*time.Minute),
		OracleURL:               os.Getenv("ORACLE_URL"),
		OracleToken:             os.Getenv("ORACLE_TOKEN"),
		OracleRatePerSec:        getEnvAsFloat("ORACLE_RATE_PER_SEC", 5),
		VerifyInterval:          getEnvAsDuration("VERIFY_INTERVAL", time.Minute),
		VerifyBatchSize:         getEnvAsInt("VERIFY_BATCH_SIZE", 100),
		DailyStakingAt:          getEnv("DAILY_STAKING_AT", "00:05"),
		DistributionConcurrency: getEnvAsInt("DISTRIBUTION_CONCURRENCY", 8),
		ScoringConfigFile:       os.Getenv("SCORING_CONFIG_FILE"),
		R2: R2Config{
			AccountID:       os.Getenv("CLOUDFLARE_ACCOUNT_ID"),
			AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
			AccessKeySecret: os.Getenv("R2_ACCESS_KEY_SECRET"),
			Bucket:          os.Getenv("R2_BUCKET_NAME"),
			CDNBaseURL:      os.Getenv("CDN_BASE_URL"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct tags plus the daily run time format.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	if _, _, err := c.DailyStakingTime(); err != nil {
		return err
	}
	return nil
}

// DailyStakingTime parses DailyStakingAt (HH:MM, UTC).
func (c *Config) DailyStakingTime() (hour, minute uint, err error) {
	t, err := time.Parse("15:04", c.DailyStakingAt)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "DAILY_STAKING_AT %q must be HH:MM", c.DailyStakingAt)
	}
	return uint(t.Hour()), uint(t.Minute()), nil
}

// LoadScoringSeed reads a YAML ScoringConfig document. Fields missing from
// the file keep their default values.
func LoadScoringSeed(path string) (models.ScoringConfig, error) {
	cfg := models.DefaultScoringConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "read scoring config %s", path)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse scoring config %s", path)
	}
	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	val, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultVal
	}
	return val
}

func getEnvAsInt(key string, defaultVal int) int {
	val, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultVal
	}
	return val
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	val, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultVal
	}
	return val
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	val, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultVal
	}
	return val
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
