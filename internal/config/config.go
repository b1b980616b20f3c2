package config

import (
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

type SubmitPolicy string

const (
	SubmitReject SubmitPolicy = "reject"
	SubmitAllow  SubmitPolicy = "allow"
)

type Config struct {
	GeminiAPIKey     string `env:"GEMINI_API_KEY"`
	GeminiBaseURL    string `env:"GEMINI_BASE_URL" envDefault:"https://generativelanguage.googleapis.com"`
	GeminiAPIVersion string `env:"GEMINI_API_VERSION" envDefault:"v1beta"`
	ImageModel       string `env:"GEMINI_IMAGE_MODEL" envDefault:"gemini-3-pro-image-preview"`
	TextModel        string `env:"GEMINI_TEXT_MODEL" envDefault:"gemini-3-flash-preview"`

	DBPath string `env:"COMPOSER_DB" envDefault:"composer.db"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"auto"`
	Debug     bool   `env:"DEBUG"`

	PreferIPv4            bool `env:"PREFER_IPV4" envDefault:"true"`
	HTTPTimeoutSeconds    int  `env:"HTTP_TIMEOUT_SECONDS" envDefault:"180"`
	RequestTimeoutSeconds int  `env:"REQUEST_TIMEOUT_SECONDS" envDefault:"180"`

	SubmitPolicy SubmitPolicy `env:"SUBMIT_POLICY" envDefault:"reject"`

	TelegramToken        string `env:"TELEGRAM_BOT_TOKEN"`
	MaxConcurrent        int    `env:"MAX_CONCURRENT" envDefault:"4"`
	MediaGroupDebounceMS int    `env:"MEDIA_GROUP_DEBOUNCE_MS" envDefault:"1200"`

	WebAddr string `env:"WEB_ADDR" envDefault:"127.0.0.1:8080"`
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over .env entries.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, errors.Wrap(err, "load .env")
	}
	return Parse(nil)
}

// Parse reads configuration from environ, or from the process environment
// when environ is nil.
func Parse(environ map[string]string) (Config, error) {
	var opts env.Options
	if environ != nil {
		opts.Environment = environ
	}

	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, errors.Wrap(err, "parse environment")
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	c.GeminiAPIKey = strings.TrimSpace(c.GeminiAPIKey)
	c.TelegramToken = strings.TrimSpace(c.TelegramToken)
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.Debug {
		c.LogLevel = "debug"
	}

	switch SubmitPolicy(strings.ToLower(strings.TrimSpace(string(c.SubmitPolicy)))) {
	case SubmitAllow:
		c.SubmitPolicy = SubmitAllow
	default:
		c.SubmitPolicy = SubmitReject
	}

	if c.MaxConcurrent < 1 {
		c.MaxConcurrent = 1
	}
	if c.HTTPTimeoutSeconds <= 0 {
		c.HTTPTimeoutSeconds = 180
	}
	if c.RequestTimeoutSeconds <= 0 {
		c.RequestTimeoutSeconds = 180
	}
	if c.MediaGroupDebounceMS <= 0 {
		c.MediaGroupDebounceMS = 1200
	}
}

func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (c Config) MediaGroupDebounce() time.Duration {
	return time.Duration(c.MediaGroupDebounceMS) * time.Millisecond
}

// RequireTelegram validates the settings only the bot needs.
func (c Config) RequireTelegram() error {
	if c.TelegramToken == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is required")
	}
	return nil
}
