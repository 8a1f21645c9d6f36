package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Model     ModelConfig     `mapstructure:"model"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Doubao    DoubaoConfig    `mapstructure:"doubao"`
	Qwen      QwenConfig      `mapstructure:"qwen"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Chat      ChatConfig      `mapstructure:"chat"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Log       LogConfig       `mapstructure:"log"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Client    ClientConfig    `mapstructure:"client"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes"`
}

// ModelConfig selects the hosted provider: openai, doubao, qwen or gemini.
type ModelConfig struct {
	Provider string `mapstructure:"provider"`
}

// OpenAIConfig covers any OpenAI compatible endpoint; the default points at
// OpenRouter.
type OpenAIConfig struct {
	APIKey       string  `mapstructure:"api_key"`
	BaseURL      string  `mapstructure:"base_url"`
	Model        string  `mapstructure:"model"`
	MaxTokens    int     `mapstructure:"max_tokens"`
	Temperature  float32 `mapstructure:"temperature"`
	Referer      string  `mapstructure:"referer"`
	Title        string  `mapstructure:"title"`
	DebugRequest bool    `mapstructure:"debug_request"`
}

type DoubaoConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float32       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type QwenConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	Model        string        `mapstructure:"model"`
	MaxTokens    int           `mapstructure:"max_tokens"`
	Temperature  float32       `mapstructure:"temperature"`
	TopP         float32       `mapstructure:"top_p"`
	Timeout      time.Duration `mapstructure:"timeout"`
	DebugRequest bool          `mapstructure:"debug_request"`
}

type GeminiConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Temperature float32 `mapstructure:"temperature"`
}

type AgentConfig struct {
	// SystemPrompt replaces the built-in interview script when set.
	SystemPrompt string `mapstructure:"system_prompt"`
	// MaxHistoryMessages keeps only the newest turns; 0 forwards everything.
	MaxHistoryMessages int  `mapstructure:"max_history_messages"`
	LogDetail          bool `mapstructure:"log_detail"`
}

type ChatConfig struct {
	Timeout           time.Duration `mapstructure:"timeout"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

// StorageConfig describes where the client keeps the committed selection.
type StorageConfig struct {
	Type    string `mapstructure:"type"`
	DataDir string `mapstructure:"data_dir"`
}

type ClientConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

var cfg *Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.max_header_bytes", 1<<20)

	v.SetDefault("model.provider", "openai")
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("openai.model", "google/gemini-2.0-flash-lite-001")
	v.SetDefault("openai.referer", "http://localhost:8080")
	v.SetDefault("openai.title", "ScanalyticsAI")
	v.SetDefault("doubao.api_key", "")
	v.SetDefault("qwen.api_key", "")
	v.SetDefault("qwen.base_url", "https://dashscope.aliyuncs.com/compatible-mode/v1")
	v.SetDefault("qwen.model", "qwen-plus")
	v.SetDefault("qwen.timeout", 30*time.Second)
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model", "gemini-2.0-flash-lite")

	v.SetDefault("agent.system_prompt", "")
	v.SetDefault("agent.max_history_messages", 0)

	v.SetDefault("chat.timeout", 30*time.Second)
	v.SetDefault("chat.heartbeat_interval", 10*time.Second)

	v.SetDefault("cors.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Accept", "Content-Type"})
	v.SetDefault("cors.max_age", 300)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.requests_per_minute", 30)
	v.SetDefault("rate_limit.burst", 5)

	v.SetDefault("storage.type", "bolt")
	v.SetDefault("storage.data_dir", "./data")

	v.SetDefault("client.base_url", "http://localhost:8080")
	v.SetDefault("client.timeout", 60*time.Second)
}

// Load reads the YAML file at configPath (optional when empty), overlays
// SCANALYTICS_* environment variables and fills provider API keys from their
// conventional variables when the file leaves them blank.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SCANALYTICS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, err
	}

	// The config file wins; environment variables only fill blanks.
	c.OpenAI.APIKey = firstNonEmpty(c.OpenAI.APIKey, os.Getenv("OPENROUTER_API_KEY"), os.Getenv("OPENAI_API_KEY"))
	c.Doubao.APIKey = firstNonEmpty(c.Doubao.APIKey, os.Getenv("ARK_API_KEY"), os.Getenv("DOUBAO_API_KEY"))
	c.Qwen.APIKey = firstNonEmpty(c.Qwen.APIKey, os.Getenv("DASHSCOPE_API_KEY"))
	c.Gemini.APIKey = firstNonEmpty(c.Gemini.APIKey, os.Getenv("GEMINI_API_KEY"))

	cfg = c
	return c, nil
}

// streamSlack is how long a client waits past chat.timeout, so the server's
// timeout answer arrives before the client transport gives up.
const streamSlack = 5 * time.Second

// StreamClientTimeout is the client deadline for one chat stream. It is never
// shorter than the server's chat timeout plus streamSlack; zero disables it.
func (c *Config) StreamClientTimeout() time.Duration {
	if c.Client.Timeout <= 0 {
		return 0
	}
	if floor := c.Chat.Timeout + streamSlack; c.Client.Timeout < floor {
		return floor
	}
	return c.Client.Timeout
}

func Get() *Config {
	return cfg
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
