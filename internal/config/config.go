// Package config loads runtime configuration: a .env file for local
// development is loaded into the process environment via
// github.com/joho/godotenv before github.com/spf13/viper binds the
// environment. Environment variables override an optional config file, and
// CLI flag overrides sit on top of both.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix viper requires on every environment variable
// (AXO_HOME, AXO_RELAY_URL, ...).
const EnvPrefix = "AXO"

// Config is the resolved runtime configuration for cmd/axo.
type Config struct {
	Home           string        `mapstructure:"home"`
	RelayURL       string        `mapstructure:"relay_url"`
	Username       string        `mapstructure:"username"`
	Device         string        `mapstructure:"device"`
	StorePassword  string        `mapstructure:"store_password"`
	JWTSecret      string        `mapstructure:"jwt_secret"`
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	LogJSON        bool          `mapstructure:"log_json"`
	SkippedKeyTTL  time.Duration `mapstructure:"skipped_key_ttl"`
	AppRepoSQLite  string        `mapstructure:"app_repo_sqlite"`
	ListenPeerAddr string        `mapstructure:"listen_peer_addr"`
}

func defaultHome() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".axo")
	}
	return ".axo"
}

// Load resolves configuration from, in increasing priority: built-in
// defaults, $AXO_HOME/config.yaml if present, AXO_-prefixed environment
// variables (including those a local .env file supplies: godotenv loads its
// entries into the environment without overriding variables already set),
// then any flags already bound into v by the caller (cmd/axo binds cobra
// flags before calling Load).
func Load(v *viper.Viper) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	_ = godotenv.Load()

	v.SetDefault("home", defaultHome())
	v.SetDefault("relay_url", "http://127.0.0.1:8090")
	v.SetDefault("token_ttl", 5*time.Minute)
	v.SetDefault("skipped_key_ttl", 72*time.Hour)
	v.SetDefault("app_repo_sqlite", filepath.Join(defaultHome(), "apprepo.db"))
	v.SetDefault("listen_peer_addr", "/ip4/0.0.0.0/tcp/0")

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if home := v.GetString("home"); home != "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(home)
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return Config{}, fmt.Errorf("config: read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}
