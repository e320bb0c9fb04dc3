package core

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	ImageProviderInference = "inference"
	ImageProviderOpenAI    = "openai"
)

// Profile is the set of model parameters used for one completion call
type Profile struct {
	Model           string  `yaml:"model"`
	Temperature     float32 `yaml:"temperature"`
	MaxTokens       int     `yaml:"max_tokens"`
	ReasoningEffort string  `yaml:"reasoning_effort"`
}

type Config struct {
	Env            string   `yaml:"env" env:"ENV" env-default:"prod"`
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" env-separator:"," env-default:"http://localhost,https://example.com"`
	SystemPrompt   string   `yaml:"system_prompt" env:"SYSTEM_PROMPT" env-default:"You are an AI assistant that helps users with their needs and questions"`
	Listen         struct {
		BindIP       string        `yaml:"bind_ip" env:"BIND_IP" env-default:""`
		Port         string        `yaml:"port" env:"PORT" env-default:"5500"`
		WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT" env-default:"2m"`
	} `yaml:"listen"`
	Conversation struct {
		TTL             time.Duration `yaml:"ttl" env:"CONVERSATION_TTL" env-default:"24h"`
		CleanupInterval time.Duration `yaml:"cleanup_interval" env:"CONVERSATION_CLEANUP" env-default:"10m"`
		LockFree        bool          `yaml:"lock_free" env:"CONVERSATION_LOCK_FREE" env-default:"false"`
	} `yaml:"conversation"`
	Chat struct {
		ApiKey  string        `yaml:"api_key" env:"XAI_API_KEY" env-default:""`
		BaseURL string        `yaml:"base_url" env:"CHAT_BASE_URL" env-default:""`
		Timeout time.Duration `yaml:"timeout" env:"CHAT_TIMEOUT" env-default:"60s"`
		Default struct {
			Model           string  `yaml:"model" env:"CHAT_MODEL" env-default:"gpt-5"`
			Temperature     float32 `yaml:"temperature" env:"CHAT_TEMPERATURE" env-default:"1"`
			MaxTokens       int     `yaml:"max_tokens" env:"CHAT_MAX_TOKENS" env-default:"2048"`
			ReasoningEffort string  `yaml:"reasoning_effort" env:"CHAT_REASONING_EFFORT" env-default:"low"`
		} `yaml:"default"`
		Reasoning struct {
			Model           string  `yaml:"model" env:"REASONING_MODEL" env-default:"o3-mini"`
			Temperature     float32 `yaml:"temperature" env:"REASONING_TEMPERATURE" env-default:"0"`
			MaxTokens       int     `yaml:"max_tokens" env:"REASONING_MAX_TOKENS" env-default:"0"`
			ReasoningEffort string  `yaml:"reasoning_effort" env:"REASONING_EFFORT" env-default:"low"`
		} `yaml:"reasoning"`
	} `yaml:"chat"`
	Image struct {
		Provider string        `yaml:"provider" env:"IMAGE_PROVIDER" env-default:"inference"`
		ApiKey   string        `yaml:"api_key" env:"HUGGING_FACE_API_KEY" env-default:""`
		URL      string        `yaml:"url" env:"IMAGE_API_URL" env-default:"https://api-inference.huggingface.co/models/black-forest-labs/FLUX.1-dev"`
		BaseURL  string        `yaml:"base_url" env:"IMAGE_BASE_URL" env-default:""`
		Model    string        `yaml:"model" env:"IMAGE_MODEL" env-default:"dall-e-3"`
		Size     string        `yaml:"size" env:"IMAGE_SIZE" env-default:"1024x1024"`
		Timeout  time.Duration `yaml:"timeout" env:"IMAGE_TIMEOUT" env-default:"10s"`
	} `yaml:"image"`
	FTP struct {
		Host      string        `yaml:"host" env:"FTP_HOST" env-default:""`
		Port      string        `yaml:"port" env:"FTP_PORT" env-default:"21"`
		User      string        `yaml:"user" env:"FTP_USER" env-default:""`
		Password  string        `yaml:"password" env:"FTP_PASSWORD" env-default:""`
		Insecure  bool          `yaml:"insecure" env:"FTP_INSECURE" env-default:"false"`
		Dir       string        `yaml:"dir" env:"FTP_DIR" env-default:"/"`
		Timeout   time.Duration `yaml:"timeout" env:"FTP_TIMEOUT" env-default:"30s"`
		PublicURL string        `yaml:"public_url" env:"PUBLIC_BASE_URL" env-default:""`
	} `yaml:"ftp"`
	Telegram struct {
		Enabled  bool   `yaml:"enabled" env:"TELEGRAM_ENABLED" env-default:"false"`
		ApiKey   string `yaml:"api_key" env:"TELEGRAM_API_KEY" env-default:""`
		Username string `yaml:"username" env:"TELEGRAM_USERNAME" env-default:""`
	} `yaml:"telegram"`
	Mongo struct {
		Enabled  bool   `yaml:"enabled" env:"MONGO_ENABLED" env-default:"false"`
		Host     string `yaml:"host" env:"MONGO_HOST" env-default:"127.0.0.1"`
		Port     string `yaml:"port" env:"MONGO_PORT" env-default:"27017"`
		User     string `yaml:"user" env:"MONGO_USER" env-default:"admin"`
		Password string `yaml:"password" env:"MONGO_PASSWORD" env-default:"pass"`
		Database string `yaml:"database" env:"MONGO_DATABASE" env-default:""`
	} `yaml:"mongo"`
}

// DefaultProfile is used for ordinary chat messages
func (c *Config) DefaultProfile() Profile {
	p := c.Chat.Default
	return Profile{Model: p.Model, Temperature: p.Temperature, MaxTokens: p.MaxTokens, ReasoningEffort: p.ReasoningEffort}
}

// ReasoningProfile is used for messages starting with "reason"
func (c *Config) ReasoningProfile() Profile {
	p := c.Chat.Reasoning
	return Profile{Model: p.Model, Temperature: p.Temperature, MaxTokens: p.MaxTokens, ReasoningEffort: p.ReasoningEffort}
}

// Load reads the YAML file at path with environment overrides; when the file
// does not exist only the environment is used
func Load(path string) (*Config, error) {
	conf := &Config{}
	var err error
	if _, statErr := os.Stat(path); path != "" && statErr == nil {
		err = cleanenv.ReadConfig(path, conf)
	} else {
		err = cleanenv.ReadEnv(conf)
	}
	if err != nil {
		desc, _ := cleanenv.GetDescription(conf, nil)
		return nil, fmt.Errorf("config: %s; %s", err, desc)
	}
	if err = conf.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return conf, nil
}

func MustLoad(path string) *Config {
	conf, err := Load(path)
	if err != nil {
		log.Fatal(err)
	}
	return conf
}

// Validate checks the options that can't be recovered from at runtime
func (c *Config) Validate() error {
	var errs []error

	if len(c.AllowedOrigins) == 0 {
		errs = append(errs, errors.New("allowed_origins: at least one origin is required"))
	}
	for _, origin := range c.AllowedOrigins {
		u, err := url.Parse(origin)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("allowed_origins: %q is not an http(s) origin", origin))
		}
	}
	if strings.TrimSpace(c.SystemPrompt) == "" {
		errs = append(errs, errors.New("system_prompt is empty"))
	}
	if c.Chat.ApiKey == "" {
		errs = append(errs, errors.New("chat.api_key is required"))
	}
	if c.Chat.Default.Model == "" || c.Chat.Reasoning.Model == "" {
		errs = append(errs, errors.New("chat: both profiles need a model"))
	}
	switch c.Image.Provider {
	case ImageProviderInference:
		if c.Image.URL == "" {
			errs = append(errs, errors.New("image.url is required for the inference provider"))
		}
	case ImageProviderOpenAI:
	default:
		errs = append(errs, fmt.Errorf("image.provider: unknown provider %q, use %s or %s",
			c.Image.Provider, ImageProviderInference, ImageProviderOpenAI))
	}
	if c.Image.Timeout <= 0 {
		errs = append(errs, errors.New("image.timeout must be positive"))
	}
	if c.FTP.Host == "" {
		errs = append(errs, errors.New("ftp.host is required"))
	}
	if _, err := strconv.Atoi(c.FTP.Port); err != nil {
		errs = append(errs, fmt.Errorf("ftp.port: %q is not a number", c.FTP.Port))
	}
	if u, err := url.Parse(c.FTP.PublicURL); c.FTP.PublicURL == "" || err != nil || u.Host == "" {
		errs = append(errs, errors.New("ftp.public_url must be an absolute URL"))
	}
	if c.Telegram.Enabled && c.Telegram.ApiKey == "" {
		errs = append(errs, errors.New("telegram.api_key is required when telegram is enabled"))
	}
	if c.Mongo.Enabled && c.Mongo.Database == "" {
		errs = append(errs, errors.New("mongo.database is required when mongo is enabled"))
	}

	return errors.Join(errs...)
}
