package main

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"vjudge/internal/common/cache"
	"vjudge/internal/common/db"
	"vjudge/internal/common/mq"
	"vjudge/internal/common/storage"
	"vjudge/internal/judge/service"
	"vjudge/pkg/utils/logger"
)

// Config is the judge server configuration.
type Config struct {
	Server  ServerConfig        `yaml:"server"`
	Log     logger.Config       `yaml:"log"`
	MySQL   db.MySQLConfig      `yaml:"mysql"`
	Redis   cache.RedisConfig   `yaml:"redis"`
	Kafka   mq.KafkaConfig      `yaml:"kafka"`
	MinIO   storage.MinIOConfig `yaml:"minio"`
	Sandbox SandboxConfig       `yaml:"sandbox"`
	Judge   service.Config      `yaml:"judge"`
	Data    DataConfig          `yaml:"data"`
}

// ServerConfig identifies this judge server in the worker pool.
type ServerConfig struct {
	Name string `yaml:"name"`
	// ListenAddr is the HTTP bind address for status and health endpoints.
	ListenAddr string `yaml:"listenAddr"`
	// PublicURL is the address registered in the worker pool; other
	// components reach this server through it.
	PublicURL string `yaml:"publicURL"`
	// MaxTasks caps how many submissions this server judges at once.
	MaxTasks int `yaml:"maxTasks"`
	// Remote marks this server as a remote-judge forwarder.
	Remote bool `yaml:"remote"`

	HeartbeatInterval time.Duration `yaml:"heartbeatInterval"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout"`
}

// SandboxConfig points at the sandbox service.
type SandboxConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// DataConfig holds the local cache directories.
type DataConfig struct {
	// TestDataDir holds extracted test-data packs.
	TestDataDir string `yaml:"testDataDir"`
	// AuxDir holds compiled special judges and interactors.
	AuxDir string `yaml:"auxDir"`
}

// LoadConfig reads the YAML config at path and applies defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}
	cfg.setDefaults()
	return cfg, nil
}

func (c *Config) setDefaults() {
	if c.Server.Name == "" {
		c.Server.Name = "judge-server"
	}
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8090"
	}
	if c.Server.PublicURL == "" {
		c.Server.PublicURL = "http://localhost:8090"
	}
	if c.Server.MaxTasks <= 0 {
		c.Server.MaxTasks = 4
	}
	if c.Server.HeartbeatInterval <= 0 {
		c.Server.HeartbeatInterval = 5 * time.Second
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Log.OutputPath == "" {
		c.Log.OutputPath = "stdout"
	}
	if c.MySQL.DSN == "" {
		c.MySQL.DSN = "root:root@tcp(localhost:3306)/vjudge?parseTime=true&loc=Local"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if len(c.Kafka.Brokers) == 0 {
		c.Kafka.Brokers = []string{"localhost:9092"}
	}
	if c.Kafka.ClientID == "" {
		c.Kafka.ClientID = c.Server.Name
	}
	if c.MinIO.Endpoint == "" {
		c.MinIO.Endpoint = "localhost:9000"
	}
	if c.MinIO.Bucket == "" {
		c.MinIO.Bucket = "judge-data"
	}
	if c.Sandbox.URL == "" {
		c.Sandbox.URL = "http://localhost:5050"
	}
	if c.Sandbox.Timeout <= 0 {
		c.Sandbox.Timeout = 60 * time.Second
	}
	if c.Data.TestDataDir == "" {
		c.Data.TestDataDir = "/var/lib/vjudge/testdata"
	}
	if c.Data.AuxDir == "" {
		c.Data.AuxDir = "/var/lib/vjudge/aux"
	}
	c.Judge.SetDefaults()
}
