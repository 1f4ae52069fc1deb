package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config captures the relay runtime parameters.
type Config struct {
	ListenAddr  string     `mapstructure:"listen_addr"`
	MetricsAddr string     `mapstructure:"metrics_addr"`
	DBFile      string     `mapstructure:"db_file"`
	LogLevel    string     `mapstructure:"log_level"`
	Push        PushConfig `mapstructure:"push"`
}

// PushConfig holds the VAPID keys for the offline web push nudge.
// Leaving the keys empty disables push entirely.
type PushConfig struct {
	VAPIDPublicKey  string `mapstructure:"vapid_public_key"`
	VAPIDPrivateKey string `mapstructure:"vapid_private_key"`
	Subscriber      string `mapstructure:"subscriber"`
}

const (
	defaultListenAddr  = ":8080"
	defaultMetricsAddr = "localhost:9090"
	defaultDBFile      = "zvonok.db"
	defaultLogLevel    = "info"
)

// Load reads configuration from the provided file path (if any) and the
// environment. Environment variables are prefixed with ZVONOK_ and can
// override file values.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ZVONOK")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("listen_addr", defaultListenAddr)
	v.SetDefault("metrics_addr", defaultMetricsAddr)
	v.SetDefault("db_file", defaultDBFile)
	v.SetDefault("log_level", defaultLogLevel)
	v.SetDefault("push.vapid_public_key", "")
	v.SetDefault("push.vapid_private_key", "")
	v.SetDefault("push.subscriber", "")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if c.DBFile == "" {
		return fmt.Errorf("db_file is required")
	}
	// Push is all-or-nothing: a lone key is a misconfiguration.
	if (c.Push.VAPIDPublicKey == "") != (c.Push.VAPIDPrivateKey == "") {
		return fmt.Errorf("push requires both vapid_public_key and vapid_private_key")
	}
	return nil
}

// PushEnabled reports whether the offline push nudge is configured.
func (c Config) PushEnabled() bool {
	return c.Push.VAPIDPublicKey != "" && c.Push.VAPIDPrivateKey != ""
}
