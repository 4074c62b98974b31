package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the scout pipeline and its surfaces
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug     bool   `mapstructure:"debug"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"` // json or console
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address   string `mapstructure:"address"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// LLMConfig selects the text-generation backend and the model per role.
type LLMConfig struct {
	Provider     string        `mapstructure:"provider"` // gemini or openai
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	FastModel    string        `mapstructure:"fast_model"`    // planner and retrieval roles
	AnalystModel string        `mapstructure:"analyst_model"` // synthesis role
	Timeout      time.Duration `mapstructure:"timeout"`
}

// Validate checks the LLM configuration.
func (c LLMConfig) Validate() error {
	switch c.Provider {
	case "gemini", "openai":
	default:
		return fmt.Errorf("llm.provider must be gemini or openai, got %q", c.Provider)
	}
	if strings.TrimSpace(c.FastModel) == "" || strings.TrimSpace(c.AnalystModel) == "" {
		return fmt.Errorf("llm.fast_model and llm.analyst_model are required")
	}
	return nil
}

// SourcesConfig contains retrieval provider settings
type SourcesConfig struct {
	Timeout   time.Duration   `mapstructure:"timeout"`
	Arxiv     ArxivConfig     `mapstructure:"arxiv"`
	GitHub    GitHubConfig    `mapstructure:"github"`
	WebSearch WebSearchConfig `mapstructure:"web_search"`
}

// ArxivConfig contains paper search settings
type ArxivConfig struct {
	Endpoint string `mapstructure:"endpoint"`
}

// GitHubConfig contains repository search settings
type GitHubConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	Token     string `mapstructure:"token"`
	UserAgent string `mapstructure:"user_agent"`
}

// WebSearchConfig contains web search settings used by the blog branch
type WebSearchConfig struct {
	BraveAPIKey    string       `mapstructure:"brave_api_key"`
	BraveEndpoint  string       `mapstructure:"brave_endpoint"`
	SerperAPIKey   string       `mapstructure:"serper_api_key"`
	SerperEndpoint string       `mapstructure:"serper_endpoint"`
	EnrichSnippets bool         `mapstructure:"enrich_snippets"`
	Domains        DomainPolicy `mapstructure:"domains"`
}

// Enabled reports whether any web search provider is configured.
func (w WebSearchConfig) Enabled() bool {
	return w.BraveAPIKey != "" || w.SerperAPIKey != ""
}

// StorageConfig contains shared-state and run-log persistence settings
type StorageConfig struct {
	State    string         `mapstructure:"state"` // memory or redis
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
	StateTTL time.Duration `mapstructure:"state_ttl"`
}

// Configured reports whether a Redis host has been provided.
func (r RedisConfig) Configured() bool {
	return strings.TrimSpace(r.Host) != ""
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("storage.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

// Addr returns host:port for the Redis client.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// Configured reports whether enough settings are present to build a DSN.
func (p PostgresConfig) Configured() bool {
	return strings.TrimSpace(p.URL) != "" || (strings.TrimSpace(p.Host) != "" && strings.TrimSpace(p.DBName) != "")
}

// DSN builds a libpq connection string.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

// PipelineConfig controls run-level behaviour.
type PipelineConfig struct {
	StrictReport bool   `mapstructure:"strict_report"`
	RunLogFile   string `mapstructure:"run_log_file"`
	IndexPath    string `mapstructure:"index_path"` // empty keeps the report index in memory
}

// TelemetryConfig contains tracing and metrics settings
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// ScheduleConfig lists recurring research queries.
type ScheduleConfig struct {
	Jobs         []ScheduleJob `mapstructure:"jobs"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// ScheduleJob runs Query whenever Cron fires.
type ScheduleJob struct {
	Name  string `mapstructure:"name"`
	Cron  string `mapstructure:"cron"`
	Query string `mapstructure:"query"`
}

// Validate checks schedule entries.
func (s ScheduleConfig) Validate() error {
	seen := make(map[string]struct{}, len(s.Jobs))
	for i, job := range s.Jobs {
		if strings.TrimSpace(job.Name) == "" {
			return fmt.Errorf("schedule.jobs[%d].name required", i)
		}
		if _, dup := seen[job.Name]; dup {
			return fmt.Errorf("schedule.jobs[%d].name %q duplicated", i, job.Name)
		}
		seen[job.Name] = struct{}{}
		if strings.TrimSpace(job.Cron) == "" || strings.TrimSpace(job.Query) == "" {
			return fmt.Errorf("schedule.jobs[%d] requires cron and query", i)
		}
	}
	return nil
}

// Normalize fills values the original deployment read from bare environment
// variables and applies fallbacks for unset fields.
func (c *Config) Normalize() {
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = firstEnv("GEMINI_API_KEY", "GOOGLE_API_KEY", "OPENAI_API_KEY")
	}
	if v := os.Getenv("GEMINI_MODEL_FAST"); v != "" && c.LLM.Provider == "gemini" {
		c.LLM.FastModel = v
	}
	if v := os.Getenv("GEMINI_MODEL_ANALYST"); v != "" && c.LLM.Provider == "gemini" {
		c.LLM.AnalystModel = v
	}
	if c.Sources.GitHub.Token == "" {
		c.Sources.GitHub.Token = os.Getenv("GITHUB_TOKEN")
	}
	if c.Sources.Timeout <= 0 {
		c.Sources.Timeout = 15 * time.Second
	}
	if c.Storage.State == "" {
		c.Storage.State = "memory"
	}
	c.Sources.WebSearch.Domains = c.Sources.WebSearch.Domains.Normalize()
	if c.Schedule.PollInterval <= 0 {
		c.Schedule.PollInterval = time.Minute
	}
}

// Validate checks cross-section invariants.
func (c *Config) Validate() error {
	var errs []error
	if err := c.LLM.Validate(); err != nil {
		errs = append(errs, err)
	}
	switch c.Storage.State {
	case "memory":
	case "redis":
		if err := c.Storage.Redis.Validate(); err != nil {
			errs = append(errs, err)
		}
	default:
		errs = append(errs, fmt.Errorf("storage.state must be memory or redis, got %q", c.Storage.State))
	}
	if err := c.Sources.WebSearch.Domains.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Schedule.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	// every key needs a default so AutomaticEnv overrides reach Unmarshal
	v.SetDefault("general.debug", false)
	v.SetDefault("general.log_level", "info")
	v.SetDefault("general.log_format", "json")
	v.SetDefault("server.address", ":10001")
	v.SetDefault("server.jwt_secret", "")
	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.fast_model", "gemini-2.0-flash")
	v.SetDefault("llm.analyst_model", "gemini-2.5-pro")
	v.SetDefault("llm.timeout", 2*time.Minute)
	v.SetDefault("sources.timeout", 15*time.Second)
	v.SetDefault("sources.arxiv.endpoint", "https://export.arxiv.org/api/query")
	v.SetDefault("sources.github.endpoint", "https://api.github.com/search/repositories")
	v.SetDefault("sources.github.token", "")
	v.SetDefault("sources.github.user_agent", "ai-research-scout")
	v.SetDefault("sources.web_search.brave_api_key", "")
	v.SetDefault("sources.web_search.serper_api_key", "")
	v.SetDefault("sources.web_search.enrich_snippets", false)
	v.SetDefault("sources.web_search.brave_endpoint", "https://api.search.brave.com/res/v1/web/search")
	v.SetDefault("sources.web_search.serper_endpoint", "https://google.serper.dev/search")
	v.SetDefault("storage.state", "memory")
	v.SetDefault("storage.redis.host", "")
	v.SetDefault("storage.redis.port", "6379")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.timeout", 5*time.Second)
	v.SetDefault("storage.redis.state_ttl", 24*time.Hour)
	v.SetDefault("storage.postgres.url", "")
	v.SetDefault("storage.postgres.host", "")
	v.SetDefault("storage.postgres.port", "5432")
	v.SetDefault("storage.postgres.user", "")
	v.SetDefault("storage.postgres.password", "")
	v.SetDefault("storage.postgres.dbname", "")
	v.SetDefault("storage.postgres.sslmode", "disable")
	v.SetDefault("pipeline.strict_report", false)
	v.SetDefault("pipeline.run_log_file", "run_log.jsonl")
	v.SetDefault("pipeline.index_path", "")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "scout")
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("schedule.poll_interval", time.Minute)
}

// LoadConfig loads config from file (optional when path is empty) and SCOUT_* env vars
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("json")   // REQUIRED if the config file does not have the extension in the name
	setDefaults(v)

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		if exe, err := os.Executable(); err == nil {
			exeDir := filepath.Dir(exe)
			v.AddConfigPath(exeDir)                                // bin/
			v.AddConfigPath(filepath.Join(exeDir, ".."))           // repo root
			v.AddConfigPath(filepath.Join(exeDir, "..", "config")) // repo root/config
		}
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("SCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv() // read in environment variables that match (SCOUT_*)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
