package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// PlaceholderAPIKey is the value shipped in sample configs; it counts as no key at all.
const PlaceholderAPIKey = "your_heygen_api_key_here"

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	LogLevel   string        `mapstructure:"log_level"`

	HeyGen   HeyGenConfig   `mapstructure:"heygen"`
	RTC      RTCConfig      `mapstructure:"rtc"`
	Speak    SpeakConfig    `mapstructure:"speak"`
	Teardown TeardownConfig `mapstructure:"teardown"`
	Media    MediaConfig    `mapstructure:"media"`
}

type HeyGenConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	AvatarName     string        `mapstructure:"avatar_name"`
	VoiceID        string        `mapstructure:"voice_id"`
	Quality        string        `mapstructure:"quality"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type RTCConfig struct {
	FallbackICEURLs []string `mapstructure:"fallback_ice_urls"`
}

type SpeakConfig struct {
	RateLimit    int           `mapstructure:"rate_limit"`
	RateInterval time.Duration `mapstructure:"rate_interval"`
}

type TeardownConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// MediaConfig controls what happens to the inbound avatar stream. An empty
// RecordDir disables recording.
type MediaConfig struct {
	RecordDir string `mapstructure:"record_dir"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("log_level", "info")
	v.SetDefault("secret", "change-me")

	v.SetDefault("heygen.api_key", "")
	v.SetDefault("heygen.base_url", "https://api.heygen.com")
	v.SetDefault("heygen.avatar_name", "Katya_ProfessionalLook2_public")
	v.SetDefault("heygen.voice_id", "e0cc82c22f414c95b1f25696c732f058")
	v.SetDefault("heygen.quality", "low")
	v.SetDefault("heygen.request_timeout", "0s")

	v.SetDefault("rtc.fallback_ice_urls", []string{"stun:stun.l.google.com:19302"})

	v.SetDefault("speak.rate_limit", 10)
	v.SetDefault("speak.rate_interval", "10s")

	v.SetDefault("teardown.timeout", "5s")

	v.SetDefault("media.record_dir", "")
}

func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

// LoadFile reads fileName if it exists and layers env overrides and defaults under it.
func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)

	v.SetEnvPrefix("AVATAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("heygen.api_key", "AVATAR_HEYGEN_API_KEY", "HEYGEN_API_KEY"); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("avatar", cfg.HeyGen.AvatarName).
		Str("quality", cfg.HeyGen.Quality).
		Bool("api_key_set", cfg.HasAPIKey()).
		Msg("config ready")
	return &cfg, nil
}

// HasAPIKey reports whether a usable credential is configured.
func (c *Config) HasAPIKey() bool {
	return c.HeyGen.APIKey != "" && c.HeyGen.APIKey != PlaceholderAPIKey
}
