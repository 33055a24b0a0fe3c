package config

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Product sources selectable with PRODUCT_SOURCE
const (
	ProductSourceAPI     = "api"
	ProductSourceParquet = "parquet"
	ProductSourceMock    = "mock"
)

// Vision providers selectable with VISION_PROVIDER
const (
	VisionProviderAnthropic = "anthropic"
	VisionProviderOpenAI    = "openai"
)

// Config holds all configuration for the carbon footprint server
type Config struct {
	// Product database
	ProductSource string
	OFFBaseURL    string
	OFFUserAgent  string

	// Parquet snapshot config
	ParquetURL   string
	DataDir      string
	ParquetPath  string
	MetadataPath string
	LockFile     string

	// Refresh behavior
	RefreshIntervalHours int
	DisableRemoteCheck   bool
	IgnoreLock           bool

	// Vision model
	VisionProvider  string
	AnthropicAPIKey string
	AnthropicModel  string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OpenAIModel     string

	// Estimation
	EmissionFactorsPath    string
	UpstreamTimeoutSeconds int

	// Server
	Port        string
	Environment string
}

// FileReader abstracts file access so .env loading can be tested
type FileReader interface {
	Open(filename string) (io.ReadCloser, error)
	Stat(filename string) (os.FileInfo, error)
}

type osFileReader struct{}

func (osFileReader) Open(filename string) (io.ReadCloser, error) {
	return os.Open(filename)
}

func (osFileReader) Stat(filename string) (os.FileInfo, error) {
	return os.Stat(filename)
}

// Load reads configuration from a .env file (if present) and environment variables
func Load() *Config {
	return LoadWithFileReader(osFileReader{})
}

// LoadWithFileReader is Load with an injectable file reader
func LoadWithFileReader(reader FileReader) *Config {
	loadEnvFileWithReader(reader)

	dataDir := getEnv("DATA_DIR", "./data")

	return &Config{
		ProductSource:          strings.ToLower(getEnv("PRODUCT_SOURCE", ProductSourceAPI)),
		OFFBaseURL:             strings.TrimRight(getEnv("OFF_BASE_URL", "https://world.openfoodfacts.org"), "/"),
		OFFUserAgent:           getEnv("OFF_USER_AGENT", "carbon-footprint-mcp-server/1.0 (https://github.com/noot-app/carbon-footprint-mcp-server)"),
		ParquetURL:             getEnv("PARQUET_URL", "https://huggingface.co/datasets/openfoodfacts/product-database/resolve/main/food.parquet"),
		DataDir:                dataDir,
		ParquetPath:            getEnv("PARQUET_PATH", filepath.Join(dataDir, "product-database.parquet")),
		MetadataPath:           getEnv("METADATA_PATH", filepath.Join(dataDir, "metadata.json")),
		LockFile:               getEnv("LOCK_FILE", filepath.Join(dataDir, "refresh.lock")),
		RefreshIntervalHours:   getEnvInt("REFRESH_INTERVAL_HOURS", 24),
		DisableRemoteCheck:     getEnvBool("DISABLE_REMOTE_CHECK"),
		IgnoreLock:             getEnvBool("IGNORE_LOCK"),
		VisionProvider:         strings.ToLower(getEnv("VISION_PROVIDER", VisionProviderAnthropic)),
		AnthropicAPIKey:        os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:         getEnv("ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),
		OpenAIAPIKey:           getEnv("OPENAI_API_KEY", os.Getenv("token")),
		OpenAIBaseURL:          os.Getenv("OPENAI_BASE_URL"),
		OpenAIModel:            getEnv("OPENAI_MODEL", "gpt-4o"),
		EmissionFactorsPath:    os.Getenv("EMISSION_FACTORS_PATH"),
		UpstreamTimeoutSeconds: getEnvInt("UPSTREAM_TIMEOUT_SECONDS", 60),
		Port:                   getEnv("PORT", "8080"),
		Environment:            getEnv("ENVIRONMENT", "production"),
	}
}

// RefreshInterval returns the refresh interval as a duration
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalHours) * time.Hour
}

// UpstreamTimeout bounds one model or database round trip
// Zero or negative disables the timeout
func (c *Config) UpstreamTimeout() time.Duration {
	return time.Duration(c.UpstreamTimeoutSeconds) * time.Second
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// loadEnvFileWithReader copies .env entries into the environment
// Variables already set (e.g. on the command line) take precedence
func loadEnvFileWithReader(reader FileReader) {
	if _, err := reader.Stat(".env"); err != nil {
		return
	}

	f, err := reader.Open(".env")
	if err != nil {
		return
	}
	defer f.Close()

	values, err := godotenv.Parse(f)
	if err != nil {
		return
	}

	for key, value := range values {
		if _, exists := os.LookupEnv(key); !exists {
			os.Setenv(key, value)
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string) bool {
	parsed, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && parsed
}
