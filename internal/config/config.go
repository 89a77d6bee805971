package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type SpeechConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	APIKey   string `mapstructure:"api_key"`
}

type NativeConfig struct {
	Name       string `mapstructure:"name"`
	Path       string `mapstructure:"path"`
	APIVersion string `mapstructure:"api_version"`
}

type StorageConfig struct {
	Path string `mapstructure:"path"`
}

type Config struct {
	Mode          string        `mapstructure:"mode"`
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	Token         string        `mapstructure:"token"`
	LogLevel      string        `mapstructure:"log_level"`
	ReadLimit     int64         `mapstructure:"read_limit"`
	PingPeriod    time.Duration `mapstructure:"ping_period"`
	TargetEnv     string        `mapstructure:"target_env"`
	Origin        string        `mapstructure:"origin"`
	OptionsURL    string        `mapstructure:"options_url"`
	ContributeURL string        `mapstructure:"contribute_url"`
	RequestRate   int           `mapstructure:"request_rate"`
	Speech        SpeechConfig  `mapstructure:"speech"`
	Native        NativeConfig  `mapstructure:"native"`
	Storage       StorageConfig `mapstructure:"storage"`
}

// Load reads config/config.<CONFIG_ENV>.yaml. HUB_* variables override file
// values, e.g. HUB_SPEECH_API_KEY.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("HUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

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
	if cfg.PingPeriod <= 0 {
		return nil, fmt.Errorf("ping_period must be positive, got %s", cfg.PingPeriod)
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("target_env", cfg.TargetEnv).
		Msg("config ready")
	return &cfg, nil
}

// every key needs a default so AutomaticEnv can override it during Unmarshal
func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("host", "127.0.0.1")
	v.SetDefault("port", 8080)
	v.SetDefault("token", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("target_env", "chrome")
	v.SetDefault("origin", "chrome-extension://buster")
	v.SetDefault("options_url", "http://127.0.0.1:8080/options")
	v.SetDefault("contribute_url", "https://github.com/dessant/buster#contribute")
	v.SetDefault("request_rate", 20)
	v.SetDefault("speech.endpoint", "https://speech.googleapis.com/v1p1beta1/speech:recognize")
	v.SetDefault("speech.api_key", "")
	v.SetDefault("native.name", "org.buster.client")
	v.SetDefault("native.path", "buster-client")
	v.SetDefault("native.api_version", "1")
	v.SetDefault("storage.path", "data/settings.yaml")
}
