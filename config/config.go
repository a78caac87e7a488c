package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultConfigPath is read when CUTOUT_CONFIG is unset.
	DefaultConfigPath = "config.yaml"
	configPathEnv     = "CUTOUT_CONFIG"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Upload     UploadConfig     `mapstructure:"upload"`
	Remover    RemoverConfig    `mapstructure:"remover"`
	Session    SessionConfig    `mapstructure:"session"`
	Background BackgroundConfig `mapstructure:"background"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type UploadConfig struct {
	MaxSize      int64    `mapstructure:"max_size"`
	AllowedTypes []string `mapstructure:"allowed_types"`
}

type RemoverConfig struct {
	Model     string        `mapstructure:"model"`
	APIKeyEnv string        `mapstructure:"api_key_env"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type SessionConfig struct {
	TTL                   time.Duration `mapstructure:"ttl"`
	SweepSpec             string        `mapstructure:"sweep_spec"`
	KeepOriginalOnFailure bool          `mapstructure:"keep_original_on_failure"`
}

type BackgroundConfig struct {
	DownloadTimeout time.Duration `mapstructure:"download_timeout"`
}

// APIKey reads the removal credential from the environment variable named by APIKeyEnv.
func (c RemoverConfig) APIKey() string {
	if c.APIKeyEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(c.APIKeyEnv))
}

// Load 从 YAML 文件加载配置
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// New loads the file named by CUTOUT_CONFIG (or config.yaml) and falls back to
// Default when it cannot be read.
func New() *Config {
	path := os.Getenv(configPathEnv)
	if path == "" {
		path = DefaultConfigPath
	}
	cfg, err := Load(path)
	if err != nil {
		return Default()
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 90*time.Second)

	v.SetDefault("upload.max_size", 10*1024*1024)
	v.SetDefault("upload.allowed_types", []string{"image/png", "image/jpeg", "image/webp"})

	v.SetDefault("remover.model", "gemini-2.5-flash-image")
	v.SetDefault("remover.api_key_env", "API_KEY")
	v.SetDefault("remover.timeout", 60*time.Second)

	v.SetDefault("session.ttl", 30*time.Minute)
	v.SetDefault("session.sweep_spec", "@every 1m")
	v.SetDefault("session.keep_original_on_failure", false)

	v.SetDefault("background.download_timeout", 15*time.Second)
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         ":8080",
			Mode:         "debug",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 90 * time.Second,
		},
		Upload: UploadConfig{
			MaxSize:      10 * 1024 * 1024,
			AllowedTypes: []string{"image/png", "image/jpeg", "image/webp"},
		},
		Remover: RemoverConfig{
			Model:     "gemini-2.5-flash-image",
			APIKeyEnv: "API_KEY",
			Timeout:   60 * time.Second,
		},
		Session: SessionConfig{
			TTL:       30 * time.Minute,
			SweepSpec: "@every 1m",
		},
		Background: BackgroundConfig{
			DownloadTimeout: 15 * time.Second,
		},
	}
}
