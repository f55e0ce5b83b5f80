package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"mailtriage/internal/classify"
	"mailtriage/internal/domain"
)

const defaultExternalHTTPTimeout = 90 * time.Second
const defaultExternalHTTPTimeoutSeconds = int(defaultExternalHTTPTimeout / time.Second)
const defaultRefreshSchedule = "*/5 * * * *"
const defaultLLMModel = "claude-sonnet-4-5-20250929"

type Config struct {
	DBPath    string `yaml:"db_path"`
	RulesPath string `yaml:"rules_path"`
	InboxDir  string `yaml:"inbox_dir"`

	ClassifierMode     string `yaml:"classifier_mode"`
	ClampPriorityBonus bool   `yaml:"clamp_priority_bonus"`
	RandomParent       string `yaml:"random_parent"`

	SlackBotToken  string `yaml:"slack_bot_token"`
	SlackChannelID string `yaml:"slack_channel_id"`

	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	LLMModel        string `yaml:"llm_model"`

	RefreshSchedule            string `yaml:"refresh_schedule"`
	Timezone                   string `yaml:"timezone"`
	ExternalHTTPTimeoutSeconds int    `yaml:"external_http_timeout_seconds"`

	Mode     classify.Mode  `yaml:"-"` // parsed from ClassifierMode
	Location *time.Location `yaml:"-"` // computed from Timezone
}

// DefaultPath is the config file read when neither --config nor CONFIG_PATH
// names one.
const DefaultPath = "config.yaml"

// Load reads path (or CONFIG_PATH, or config.yaml), applies environment
// overrides and defaults, and validates the result. A missing file is not an
// error.
func Load(path string) (Config, error) {
	var cfg Config

	configPath := DefaultPath
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if path != "" {
		configPath = path
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.RulesPath, "RULES_PATH")
	envOverride(&cfg.InboxDir, "INBOX_DIR")
	envOverride(&cfg.ClassifierMode, "CLASSIFIER_MODE")
	envOverrideBool(&cfg.ClampPriorityBonus, "CLAMP_PRIORITY_BONUS")
	envOverride(&cfg.RandomParent, "RANDOM_PARENT")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackChannelID, "SLACK_CHANNEL_ID")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverride(&cfg.RefreshSchedule, "REFRESH_SCHEDULE")
	envOverride(&cfg.Timezone, "TIMEZONE")
	if err := envOverrideInt(&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS"); err != nil {
		return cfg, err
	}

	if cfg.DBPath == "" {
		cfg.DBPath = "./mailtriage.db"
	}
	if cfg.RandomParent == "" {
		cfg.RandomParent = domain.DefaultParent
	}
	if cfg.LLMModel == "" {
		cfg.LLMModel = defaultLLMModel
	}
	if cfg.RefreshSchedule == "" {
		cfg.RefreshSchedule = defaultRefreshSchedule
	}
	if cfg.ExternalHTTPTimeoutSeconds == 0 {
		cfg.ExternalHTTPTimeoutSeconds = defaultExternalHTTPTimeoutSeconds
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}

	mode, err := classify.ParseMode(cfg.ClassifierMode)
	if err != nil {
		return cfg, fmt.Errorf("invalid classifier_mode: %w", err)
	}
	cfg.Mode = mode
	cfg.ClassifierMode = mode.String()

	if strings.EqualFold(cfg.Timezone, "Local") {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return cfg, fmt.Errorf("invalid timezone '%s': %w", cfg.Timezone, err)
		}
		cfg.Location = loc
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(cfg.RefreshSchedule); err != nil {
		return cfg, fmt.Errorf("invalid refresh_schedule '%s': %w", cfg.RefreshSchedule, err)
	}
	if cfg.ExternalHTTPTimeoutSeconds < 5 {
		return cfg, fmt.Errorf("invalid external_http_timeout_seconds '%d': must be >= 5", cfg.ExternalHTTPTimeoutSeconds)
	}
	if cfg.SlackBotToken != "" && cfg.SlackChannelID == "" {
		return cfg, fmt.Errorf("slack_channel_id is required when slack_bot_token is set")
	}
	return cfg, nil
}

// ClassifierOptions returns the classify options the config selects.
func (c Config) ClassifierOptions() classify.Options {
	return classify.Options{
		Mode:               c.Mode,
		ClampPriorityBonus: c.ClampPriorityBonus,
		DefaultParent:      c.RandomParent,
	}
}

func (c Config) SlackConfigured() bool {
	return c.SlackBotToken != "" && c.SlackChannelID != ""
}

func (c Config) LLMConfigured() bool {
	return c.AnthropicAPIKey != ""
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}

func envOverrideBool(field *bool, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = strings.EqualFold(val, "true") || val == "1"
	}
}
