// Package config loads service settings from an optional YAML file and the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Backend names.
const (
	BackendRemote = "backstage"
	BackendLocal  = "local"
)

type ServerConfig struct {
	Addr     string
	ExitWait time.Duration
}

type GRPCConfig struct {
	Enabled bool
	Addr    string
}

// ArtifactConfig holds object storage defaults for one backend.
type ArtifactConfig struct {
	Bucket            string
	LocalPathTemplate string
	Region            string
	AccessKey         string
	SecretKey         string
	Endpoint          string
	PollInterval      time.Duration
	Timeout           time.Duration
	PresignTTL        time.Duration
}

type RemoteConfig struct {
	Enabled        bool
	BaseURL        string
	AuthToken      string
	RequestTimeout time.Duration
	Artifacts      ArtifactConfig
}

type LocalConfig struct {
	Enabled      bool
	TemplatesDir string
	CatalogFile  string
	OutputDir    string
	Artifacts    ArtifactConfig
}

type DatabaseConfig struct {
	Enabled bool
	Type    string
	DSN     string
}

type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

type JanitorConfig struct {
	Enabled   bool
	Interval  time.Duration
	Retention time.Duration
}

type Config struct {
	Server        ServerConfig
	GRPC          GRPCConfig
	LogLevel      string
	DefaultClient string
	Remote        RemoteConfig
	Local         LocalConfig
	Database      DatabaseConfig
	Kafka         KafkaConfig
	Janitor       JanitorConfig
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.exit_wait_seconds", 5)
	v.SetDefault("grpc.enabled", true)
	v.SetDefault("grpc.addr", ":9090")
	v.SetDefault("log.level", "info")
	v.SetDefault("default_client", BackendRemote)

	v.SetDefault("backstage.enabled", true)
	v.SetDefault("backstage.base_url", "http://localhost:7007/api")
	v.SetDefault("backstage.auth_token", "")
	v.SetDefault("backstage.request_timeout_seconds", 30)

	v.SetDefault("local.enabled", true)
	v.SetDefault("local.templates_dir", "./templates")
	v.SetDefault("local.catalog_file", "./catalog-info.yaml")
	v.SetDefault("local.output_dir", "")

	for _, prefix := range []string{"artifacts", "backstage.artifacts", "local.artifacts"} {
		v.SetDefault(prefix+".bucket", "")
		v.SetDefault(prefix+".local_path_template", "")
		v.SetDefault(prefix+".access_key", "")
		v.SetDefault(prefix+".secret_key", "")
		v.SetDefault(prefix+".endpoint", "")
	}
	v.SetDefault("artifacts.region", "us-east-1")
	v.SetDefault("artifacts.poll_interval_seconds", 5)
	v.SetDefault("artifacts.timeout_seconds", 300)
	v.SetDefault("artifacts.presign_ttl_seconds", 3600)

	v.SetDefault("database.enabled", true)
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "templates.db")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "template_task_events")

	v.SetDefault("janitor.enabled", true)
	v.SetDefault("janitor.interval_seconds", 3600)
	v.SetDefault("janitor.retention_hours", 24)
}

// New returns a viper instance with defaults registered and environment
// overrides enabled (server.addr is read from SERVER_ADDR, and so on).
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional YAML file at path and decodes the result.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}
	return FromViper(v), nil
}

// FromViper decodes an already populated viper instance.
func FromViper(v *viper.Viper) *Config {
	cfg := &Config{
		Server: ServerConfig{
			Addr:     v.GetString("server.addr"),
			ExitWait: seconds(v, "server.exit_wait_seconds"),
		},
		GRPC: GRPCConfig{
			Enabled: v.GetBool("grpc.enabled"),
			Addr:    v.GetString("grpc.addr"),
		},
		LogLevel:      strings.ToLower(v.GetString("log.level")),
		DefaultClient: v.GetString("default_client"),
		Remote: RemoteConfig{
			Enabled:        v.GetBool("backstage.enabled"),
			BaseURL:        strings.TrimRight(v.GetString("backstage.base_url"), "/"),
			AuthToken:      v.GetString("backstage.auth_token"),
			RequestTimeout: seconds(v, "backstage.request_timeout_seconds"),
			Artifacts:      artifacts(v, "backstage.artifacts"),
		},
		Local: LocalConfig{
			Enabled:      v.GetBool("local.enabled"),
			TemplatesDir: v.GetString("local.templates_dir"),
			CatalogFile:  v.GetString("local.catalog_file"),
			OutputDir:    v.GetString("local.output_dir"),
			Artifacts:    artifacts(v, "local.artifacts"),
		},
		Database: DatabaseConfig{
			Enabled: v.GetBool("database.enabled"),
			Type:    v.GetString("database.type"),
			DSN:     v.GetString("database.dsn"),
		},
		Kafka: KafkaConfig{
			Enabled: v.GetBool("kafka.enabled"),
			Brokers: v.GetStringSlice("kafka.brokers"),
			Topic:   v.GetString("kafka.topic"),
		},
		Janitor: JanitorConfig{
			Enabled:   v.GetBool("janitor.enabled"),
			Interval:  seconds(v, "janitor.interval_seconds"),
			Retention: time.Duration(v.GetInt("janitor.retention_hours")) * time.Hour,
		},
	}
	if cfg.Local.OutputDir == "" {
		cfg.Local.OutputDir = cfg.Local.TemplatesDir
	}
	return cfg
}

// artifacts resolves backend-scoped artifact settings, falling back to the
// shared artifacts.* keys for anything left empty.
func artifacts(v *viper.Viper, prefix string) ArtifactConfig {
	str := func(key string) string {
		if s := v.GetString(prefix + "." + key); s != "" {
			return s
		}
		return v.GetString("artifacts." + key)
	}
	dur := func(key string) time.Duration {
		if v.IsSet(prefix+"."+key) && v.GetInt(prefix+"."+key) > 0 {
			return seconds(v, prefix+"."+key)
		}
		return seconds(v, "artifacts."+key)
	}
	return ArtifactConfig{
		Bucket:            str("bucket"),
		LocalPathTemplate: str("local_path_template"),
		Region:            str("region"),
		AccessKey:         str("access_key"),
		SecretKey:         str("secret_key"),
		Endpoint:          str("endpoint"),
		PollInterval:      dur("poll_interval_seconds"),
		Timeout:           dur("timeout_seconds"),
		PresignTTL:        dur("presign_ttl_seconds"),
	}
}

func seconds(v *viper.Viper, key string) time.Duration {
	return time.Duration(v.GetInt(key)) * time.Second
}
