package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix              = "INKWELL"
	defaultHTTPAddress     = "0.0.0.0:8080"
	defaultDataDir         = "data"
	defaultStorePrefix     = "inkwell"
	defaultAuthDatabase    = "data/auth.db"
	defaultTokenTTLMinutes = 720
	defaultLogLevel        = "info"
)

// AppConfig captures runtime configuration for the API server and the maintenance commands.
type AppConfig struct {
	HTTPAddress      string
	DataDir          string
	StorePrefix      string
	AuthDatabasePath string
	SigningSecret    string
	TokenTTL         time.Duration
	AllowedOrigins   []string
	LogLevel         string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("data.dir", defaultDataDir)
	configViper.SetDefault("data.store_prefix", defaultStorePrefix)
	configViper.SetDefault("auth.database_path", defaultAuthDatabase)
	configViper.SetDefault("token.ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("http.allowed_origins", "")
	configViper.SetDefault("log.level", defaultLogLevel)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:      configViper.GetString("http.address"),
		DataDir:          configViper.GetString("data.dir"),
		StorePrefix:      configViper.GetString("data.store_prefix"),
		AuthDatabasePath: configViper.GetString("auth.database_path"),
		SigningSecret:    configViper.GetString("auth.signing_secret"),
		TokenTTL:         time.Duration(configViper.GetInt("token.ttl_minutes")) * time.Minute,
		AllowedOrigins:   splitList(configViper.GetString("http.allowed_origins")),
		LogLevel:         configViper.GetString("log.level"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// LoadStorage parses only the settings the offline store commands need.
func LoadStorage(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		DataDir:     configViper.GetString("data.dir"),
		StorePrefix: configViper.GetString("data.store_prefix"),
		LogLevel:    configViper.GetString("log.level"),
	}
	if err := cfg.validateStorage(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.AuthDatabasePath) == "" {
		return fmt.Errorf("auth.database_path is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token.ttl_minutes must be positive")
	}
	return c.validateStorage()
}

func (c AppConfig) validateStorage() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("data.dir is required")
	}
	prefix := strings.TrimSpace(c.StorePrefix)
	if prefix == "" {
		return fmt.Errorf("data.store_prefix is required")
	}
	if strings.ContainsAny(prefix, `/\:`) {
		return fmt.Errorf("data.store_prefix %q cannot contain path separators", prefix)
	}
	return nil
}

func splitList(raw string) []string {
	var values []string
	for _, value := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
