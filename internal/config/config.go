package config

import (
	"log"
	"os"
	"strconv"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

type Config struct {
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	Model           string `yaml:"model"`
	MaxTokens       int    `yaml:"max_tokens"`

	DatasetPath         string `yaml:"dataset_path"`
	FilteredDatasetPath string `yaml:"filtered_dataset_path"`
	SystemPromptPath    string `yaml:"system_prompt_path"`

	DBPath          string `yaml:"db_path"`
	ResultsDir      string `yaml:"results_dir"`
	ReportOutputDir string `yaml:"report_output_dir"`

	BatchSize         int    `yaml:"batch_size"`
	MaxBatchRequests  int    `yaml:"max_requests_per_batch"`
	PollSchedule      string `yaml:"poll_schedule"`
	SubmitConcurrency int    `yaml:"submit_concurrency"`
	SubmitsPerMinute  int    `yaml:"submits_per_minute"`

	PositiveLabel string `yaml:"positive_label"`
	NegativeLabel string `yaml:"negative_label"`

	ConfidenceMin       int `yaml:"confidence_min"`
	ConfidenceMax       int `yaml:"confidence_max"`
	ConfidenceLowMax    int `yaml:"confidence_low_max"`
	ConfidenceMediumMax int `yaml:"confidence_medium_max"`

	SlackBotToken  string `yaml:"slack_bot_token"`
	SlackChannelID string `yaml:"slack_channel_id"`
}

func LoadConfig() Config {
	var cfg Config

	// Load from config.yaml if it exists
	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("Error parsing %s: %v", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	// Env vars override YAML values
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.Model, "MODEL")
	envOverrideInt(&cfg.MaxTokens, "MAX_TOKENS")
	envOverride(&cfg.DatasetPath, "DATASET_PATH")
	envOverride(&cfg.FilteredDatasetPath, "FILTERED_DATASET_PATH")
	envOverride(&cfg.SystemPromptPath, "SYSTEM_PROMPT_PATH")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.ResultsDir, "RESULTS_DIR")
	envOverride(&cfg.ReportOutputDir, "REPORT_OUTPUT_DIR")
	envOverrideInt(&cfg.BatchSize, "BATCH_SIZE")
	envOverrideInt(&cfg.MaxBatchRequests, "MAX_REQUESTS_PER_BATCH")
	envOverride(&cfg.PollSchedule, "POLL_SCHEDULE")
	envOverrideInt(&cfg.SubmitConcurrency, "SUBMIT_CONCURRENCY")
	envOverrideInt(&cfg.SubmitsPerMinute, "SUBMITS_PER_MINUTE")
	envOverride(&cfg.PositiveLabel, "POSITIVE_LABEL")
	envOverride(&cfg.NegativeLabel, "NEGATIVE_LABEL")
	envOverrideInt(&cfg.ConfidenceMin, "CONFIDENCE_MIN")
	envOverrideInt(&cfg.ConfidenceMax, "CONFIDENCE_MAX")
	envOverrideInt(&cfg.ConfidenceLowMax, "CONFIDENCE_LOW_MAX")
	envOverrideInt(&cfg.ConfidenceMediumMax, "CONFIDENCE_MEDIUM_MAX")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackChannelID, "SLACK_CHANNEL_ID")

	ApplyDefaults(&cfg)
	validate(cfg)
	return cfg
}

func ApplyDefaults(cfg *Config) {
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-5-20250929"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.FilteredDatasetPath == "" {
		cfg.FilteredDatasetPath = "./company_both_descriptions.csv"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./descbench.db"
	}
	if cfg.ResultsDir == "" {
		cfg.ResultsDir = "./results"
	}
	if cfg.ReportOutputDir == "" {
		cfg.ReportOutputDir = "./reports"
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 5000
	}
	if cfg.MaxBatchRequests == 0 {
		cfg.MaxBatchRequests = 10000
	}
	if cfg.PollSchedule == "" {
		cfg.PollSchedule = "*/5 * * * *"
	}
	if cfg.SubmitConcurrency == 0 {
		cfg.SubmitConcurrency = 1
	}
	if cfg.SubmitsPerMinute == 0 {
		cfg.SubmitsPerMinute = 30
	}
	if cfg.PositiveLabel == "" {
		cfg.PositiveLabel = "ai-native"
	}
	if cfg.NegativeLabel == "" {
		cfg.NegativeLabel = "not-ai-native"
	}
	if cfg.ConfidenceMin == 0 {
		cfg.ConfidenceMin = 1
	}
	if cfg.ConfidenceMax == 0 {
		cfg.ConfidenceMax = 5
	}
	if cfg.ConfidenceLowMax == 0 {
		cfg.ConfidenceLowMax = 2
	}
	if cfg.ConfidenceMediumMax == 0 {
		cfg.ConfidenceMediumMax = 3
	}
}

func validate(cfg Config) {
	if cfg.AnthropicAPIKey == "" {
		log.Fatalf("Required config 'anthropic_api_key' is not set (via config.yaml or env var)")
	}
	if cfg.SystemPromptPath == "" {
		log.Fatalf("Required config 'system_prompt_path' is not set (via config.yaml or env var)")
	}
	if cfg.BatchSize < 1 {
		log.Fatalf("invalid batch_size '%d': must be >= 1", cfg.BatchSize)
	}
	if cfg.MaxBatchRequests < 1 {
		log.Fatalf("invalid max_requests_per_batch '%d': must be >= 1", cfg.MaxBatchRequests)
	}
	if cfg.BatchSize > cfg.MaxBatchRequests {
		log.Fatalf("invalid batch_size '%d': exceeds max_requests_per_batch '%d'", cfg.BatchSize, cfg.MaxBatchRequests)
	}
	if cfg.SubmitConcurrency < 1 {
		log.Fatalf("invalid submit_concurrency '%d': must be >= 1", cfg.SubmitConcurrency)
	}
	if cfg.SubmitsPerMinute < 1 {
		log.Fatalf("invalid submits_per_minute '%d': must be >= 1", cfg.SubmitsPerMinute)
	}
	if cfg.PositiveLabel == cfg.NegativeLabel {
		log.Fatalf("positive_label and negative_label must differ, both are '%s'", cfg.PositiveLabel)
	}
	if cfg.ConfidenceMin > cfg.ConfidenceMax {
		log.Fatalf("invalid confidence scale: min %d > max %d", cfg.ConfidenceMin, cfg.ConfidenceMax)
	}
	if cfg.ConfidenceLowMax < cfg.ConfidenceMin || cfg.ConfidenceLowMax > cfg.ConfidenceMax {
		log.Fatalf("invalid confidence_low_max '%d': outside scale %d..%d", cfg.ConfidenceLowMax, cfg.ConfidenceMin, cfg.ConfidenceMax)
	}
	if cfg.ConfidenceMediumMax < cfg.ConfidenceLowMax || cfg.ConfidenceMediumMax > cfg.ConfidenceMax {
		log.Fatalf("invalid confidence_medium_max '%d': must be between confidence_low_max and confidence_max", cfg.ConfidenceMediumMax)
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(cfg.PollSchedule); err != nil {
		log.Fatalf("invalid poll_schedule '%s': %v", cfg.PollSchedule, err)
	}
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}
