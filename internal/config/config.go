package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration settings
type Config struct {
	// Deployment mode
	Mode string `yaml:"mode"` // "server", "local"

	// Storage configuration
	Storage StorageConfig `yaml:"storage"`

	// Redis coordination (run locks, run status)
	Redis RedisConfig `yaml:"redis"`

	// LLM provider configuration
	API APIConfig `yaml:"api"`

	// Optional Neo4j graph export
	Neo4j Neo4jConfig `yaml:"neo4j"`

	// Extraction stage settings
	Extraction ExtractionConfig `yaml:"extraction"`

	// Gap analysis thresholds
	Analysis AnalysisConfig `yaml:"analysis"`

	// Prioritization weights
	Priority PriorityConfig `yaml:"priority"`

	// Feedback weight adjustment
	Feedback FeedbackConfig `yaml:"feedback"`
}

type StorageConfig struct {
	Type        string `yaml:"type"` // "postgres", "sqlite", "bolt"
	PostgresDSN string `yaml:"postgres_dsn"`
	LocalPath   string `yaml:"local_path"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
}

type APIConfig struct {
	Provider    string `yaml:"provider"` // "openai", "gemini", ""
	OpenAIKey   string `yaml:"openai_key"`
	OpenAIModel string `yaml:"openai_model"`
	GeminiKey   string `yaml:"gemini_key"`
	GeminiModel string `yaml:"gemini_model"`
	UseKeychain bool   `yaml:"use_keychain"`
}

type Neo4jConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URI      string `yaml:"uri"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

type ExtractionConfig struct {
	Workers           int           `yaml:"workers"`
	MaxAttempts       int           `yaml:"max_attempts"`
	InitialBackoff    time.Duration `yaml:"initial_backoff"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

// AnalysisConfig holds analyzer thresholds. The numeric values follow the
// reference tuning and are configuration, not correctness constraints.
type AnalysisConfig struct {
	ResolutionThreshold    float64       `yaml:"resolution_threshold"`     // fuzzy entity match cutoff
	QuestionDedupThreshold float64       `yaml:"question_dedup_threshold"` // question similarity cutoff
	StalenessWindow        time.Duration `yaml:"staleness_window"`
	MinProcessSteps        int           `yaml:"min_process_steps"`
	TermFrequencyThreshold int           `yaml:"term_frequency_threshold"`
	ConcentrationThreshold float64       `yaml:"concentration_threshold"` // tribal knowledge author share
	BusFactorMinMentions   int           `yaml:"bus_factor_min_mentions"`
	SignalWeight           float64       `yaml:"signal_weight"`  // severity: analyzer risk signal share
	MentionWeight          float64       `yaml:"mention_weight"` // severity: log-scaled mention share
}

type PriorityConfig struct {
	RiskWeight          float64 `yaml:"risk_weight"`
	CriticalityWeight   float64 `yaml:"criticality_weight"`
	AnswerabilityWeight float64 `yaml:"answerability_weight"`
	InterestWeight      float64 `yaml:"interest_weight"`
}

type FeedbackConfig struct {
	AnsweredFactor  float64 `yaml:"answered_factor"`
	SkippedFactor   float64 `yaml:"skipped_factor"`
	DismissedFactor float64 `yaml:"dismissed_factor"`
	MinWeight       float64 `yaml:"min_weight"`
	MaxWeight       float64 `yaml:"max_weight"`
}

// Default returns default configuration
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Mode: "local",
		Storage: StorageConfig{
			Type:      "bolt",
			LocalPath: filepath.Join(homeDir, ".gapscan"),
		},
		API: APIConfig{
			OpenAIModel: "gpt-4o-mini",
			GeminiModel: "gemini-2.0-flash",
		},
		Neo4j: Neo4jConfig{
			Database: "neo4j",
		},
		Extraction: ExtractionConfig{
			Workers:           4,
			MaxAttempts:       3,
			InitialBackoff:    500 * time.Millisecond,
			RequestsPerSecond: 5,
		},
		Analysis: AnalysisConfig{
			ResolutionThreshold:    0.88,
			QuestionDedupThreshold: 0.85,
			StalenessWindow:        180 * 24 * time.Hour,
			MinProcessSteps:        3,
			TermFrequencyThreshold: 3,
			ConcentrationThreshold: 0.8,
			BusFactorMinMentions:   2,
			SignalWeight:           0.7,
			MentionWeight:          0.3,
		},
		Priority: PriorityConfig{
			RiskWeight:          0.40,
			CriticalityWeight:   0.25,
			AnswerabilityWeight: 0.15,
			InterestWeight:      0.20,
		},
		Feedback: FeedbackConfig{
			AnsweredFactor:  1.1,
			SkippedFactor:   0.95,
			DismissedFactor: 0.8,
			MinWeight:       0.5,
			MaxWeight:       2.0,
		},
	}
}

// Load loads configuration from file
func Load(path string) (*Config, error) {
	// Load .env files first (in order of precedence)
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	// Set defaults
	cfg := Default()
	v.SetDefault("mode", cfg.Mode)
	v.SetDefault("storage", cfg.Storage)
	v.SetDefault("redis", cfg.Redis)
	v.SetDefault("neo4j", cfg.Neo4j)
	v.SetDefault("extraction", cfg.Extraction)
	v.SetDefault("analysis", cfg.Analysis)
	v.SetDefault("priority", cfg.Priority)
	v.SetDefault("feedback", cfg.Feedback)

	// Load from environment variables
	v.SetEnvPrefix("GAPSCAN")
	v.AutomaticEnv()

	// Try to find config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".gapscan")
		v.AddConfigPath(".")
		homeDir, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(homeDir, ".gapscan"))
	}

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	// Unmarshal into struct
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Analysis.ResolutionThreshold <= 0 || c.Analysis.ResolutionThreshold > 1 {
		return fmt.Errorf("analysis.resolution_threshold must be in (0, 1], got %v", c.Analysis.ResolutionThreshold)
	}
	if c.Analysis.QuestionDedupThreshold <= 0 || c.Analysis.QuestionDedupThreshold > 1 {
		return fmt.Errorf("analysis.question_dedup_threshold must be in (0, 1], got %v", c.Analysis.QuestionDedupThreshold)
	}
	if c.Feedback.MinWeight <= 0 || c.Feedback.MaxWeight < c.Feedback.MinWeight {
		return fmt.Errorf("feedback weight bounds invalid: [%v, %v]", c.Feedback.MinWeight, c.Feedback.MaxWeight)
	}
	if c.Extraction.Workers < 1 {
		return fmt.Errorf("extraction.workers must be >= 1, got %d", c.Extraction.Workers)
	}
	sum := c.Priority.RiskWeight + c.Priority.CriticalityWeight +
		c.Priority.AnswerabilityWeight + c.Priority.InterestWeight
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("priority weights must sum to 1, got %v", sum)
	}
	return nil
}

// loadEnvFiles loads .env files in order of precedence
func loadEnvFiles() {
	envFiles := []string{
		".env.local", // Local overrides (highest precedence)
		".env",       // Main environment file
	}

	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			godotenv.Load(file)
		}
	}

	homeDir, _ := os.UserHomeDir()
	homeEnvFile := filepath.Join(homeDir, ".gapscan", ".env")
	if _, err := os.Stat(homeEnvFile); err == nil {
		godotenv.Load(homeEnvFile)
	}
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(cfg *Config) {
	// LLM configuration
	// Precedence: 1. Env var (highest) 2. Keychain 3. Config file (lowest)
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.API.OpenAIKey = key
	} else if cfg.API.OpenAIKey == "" {
		km := NewKeyringManager()
		if km.IsAvailable() {
			if keychainKey, err := km.GetOpenAIKey(); err == nil && keychainKey != "" {
				cfg.API.OpenAIKey = keychainKey
			}
		}
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		cfg.API.GeminiKey = key
	} else if cfg.API.GeminiKey == "" {
		km := NewKeyringManager()
		if km.IsAvailable() {
			if keychainKey, err := km.GetGeminiKey(); err == nil && keychainKey != "" {
				cfg.API.GeminiKey = keychainKey
			}
		}
	}
	if provider := os.Getenv("LLM_PROVIDER"); provider != "" {
		cfg.API.Provider = provider
	}
	if model := os.Getenv("OPENAI_MODEL"); model != "" {
		cfg.API.OpenAIModel = model
	}
	if model := os.Getenv("GEMINI_MODEL"); model != "" {
		cfg.API.GeminiModel = model
	}

	// Storage configuration
	if storageType := os.Getenv("STORAGE_TYPE"); storageType != "" {
		cfg.Storage.Type = storageType
	}
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		cfg.Storage.PostgresDSN = dsn
	}
	if path := os.Getenv("LOCAL_DB_PATH"); path != "" {
		cfg.Storage.LocalPath = expandPath(path)
	}

	// Redis configuration
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}

	// Neo4j configuration
	if uri := os.Getenv("NEO4J_URI"); uri != "" {
		cfg.Neo4j.URI = uri
		cfg.Neo4j.Enabled = true
	}
	if user := os.Getenv("NEO4J_USERNAME"); user != "" {
		cfg.Neo4j.Username = user
	}
	if password := os.Getenv("NEO4J_PASSWORD"); password != "" {
		cfg.Neo4j.Password = password
	}

	// Extraction configuration
	if workers := os.Getenv("EXTRACTION_WORKERS"); workers != "" {
		if n, err := strconv.Atoi(workers); err == nil {
			cfg.Extraction.Workers = n
		}
	}

	// Mode configuration
	if mode := os.Getenv("GAPSCAN_MODE"); mode != "" {
		cfg.Mode = mode
	}
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// Save saves configuration to file
func (c *Config) Save(path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	v.Set("mode", c.Mode)
	v.Set("storage", c.Storage)
	v.Set("redis", c.Redis)
	v.Set("api", c.API)
	v.Set("neo4j", c.Neo4j)
	v.Set("extraction", c.Extraction)
	v.Set("analysis", c.Analysis)
	v.Set("priority", c.Priority)
	v.Set("feedback", c.Feedback)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
