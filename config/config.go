// Package config loads the crednotify configuration file.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type WorkerConfiguration struct {
	// Listen is the address the worker service binds to.
	Listen string `json:"listen" mapstructure:"listen"`
	// URL is the address CLI commands use to reach the worker.
	URL string `json:"url" mapstructure:"url"`
	// QueueSize bounds the number of jobs waiting to run.
	QueueSize int `json:"queue_size" mapstructure:"queue_size"`
}

type DatabaseConfiguration struct {
	Path string `json:"path" mapstructure:"path"`
}

type CredentialsConfiguration struct {
	// URL is the base URL of the external credentials service API.
	URL   string `json:"url" mapstructure:"url"`
	Token string `json:"token" mapstructure:"token"`
	// Timeout bounds a single request to the credentials service.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
	// MaxRetries caps the exponential backoff retries per record.
	MaxRetries uint64 `json:"max_retries" mapstructure:"max_retries"`
}

type Configuration struct {
	Worker      WorkerConfiguration      `json:"worker" mapstructure:"worker"`
	Database    DatabaseConfiguration    `json:"database" mapstructure:"database"`
	Credentials CredentialsConfiguration `json:"credentials" mapstructure:"credentials"`
}

// Load reads the configuration file at path, falling back to defaults for
// anything unset. An empty path loads defaults plus CREDNOTIFY_* environment
// overrides only.
func Load(path string) (*Configuration, error) {
	v := viper.New()
	v.SetDefault("worker.listen", "127.0.0.1:8380")
	v.SetDefault("worker.url", "http://127.0.0.1:8380")
	v.SetDefault("worker.queue_size", 16)
	v.SetDefault("database.path", "crednotify.db")
	v.SetDefault("credentials.url", "http://127.0.0.1:8150")
	v.SetDefault("credentials.timeout", 30*time.Second)
	v.SetDefault("credentials.max_retries", 11)

	v.SetEnvPrefix("crednotify")
	// Nested keys like worker.url must map to CREDNOTIFY_WORKER_URL; without
	// the replacer viper would look for a dot inside the env name.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := &Configuration{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
