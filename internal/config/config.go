package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Режимы маршрутизации клиентских сообщений
const (
	RoutingModeGroups = "groups"
	RoutingModeAdmins = "admins"
)

type LogConfig struct {
	Level      string `yaml:"level"`
	Path       string `yaml:"path"`
	ErrorPath  string `yaml:"errorpath"`
	MaxSize    int    `yaml:"maxsize"`
	MaxBackups int    `yaml:"maxbackups"`
	MaxAge     int    `yaml:"maxage"`
	Compress   bool   `yaml:"compress"`
}

type TelegramConfig struct {
	TokenPath string `yaml:"tokenpath"`
}

type StorageConfig struct {
	DataDir string `yaml:"datadir"`
}

// RoutingConfig описывает политику доставки клиентских сообщений.
// Mode выбирает вариант развертывания: "groups" — в назначенные клиенту
// группы, "admins" — в личные чаты всех администраторов.
type RoutingConfig struct {
	Mode            string `yaml:"mode"`
	LinkLimit       int    `yaml:"linklimit"`
	ReplyTimeoutRaw string `yaml:"replytimeout"`

	// ReplyTimeout — разобранное значение ReplyTimeoutRaw
	ReplyTimeout time.Duration `yaml:"-"`
}

// StatusConfig описывает HTTP-сервер состояния справочника
type StatusConfig struct {
	Enabled    bool   `yaml:"enabled"`
	RunAddress string `yaml:"runaddress"`
	APIToken   string `yaml:"apitoken"`
	JWTSecret  string `yaml:"jwtsecret"`
}

// Config представляет структуру конфигурации
type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Storage  StorageConfig  `yaml:"storage"`
	Routing  RoutingConfig  `yaml:"routing"`
	Status   StatusConfig   `yaml:"status"`
	Log      LogConfig      `yaml:"logger"`
}

// LoadConfig загружает конфигурацию из файла YAML. Пустой путь дает
// конфигурацию по умолчанию.
func LoadConfig(filepath string) (*Config, error) {
	config := &Config{}

	if filepath != "" {
		data, err := os.ReadFile(filepath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config data: %w", err)
		}
	}

	config.applyDefaults()

	if config.Routing.Mode != RoutingModeGroups && config.Routing.Mode != RoutingModeAdmins {
		return nil, fmt.Errorf("unknown routing mode %q", config.Routing.Mode)
	}

	if config.Routing.ReplyTimeoutRaw != "" {
		timeout, err := time.ParseDuration(config.Routing.ReplyTimeoutRaw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse replytimeout: %w", err)
		}
		config.Routing.ReplyTimeout = timeout
	}

	return config, nil
}

// applyDefaults заполняет незаданные поля значениями по умолчанию
func (c *Config) applyDefaults() {
	if c.Telegram.TokenPath == "" {
		c.Telegram.TokenPath = "token.txt"
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "data"
	}
	if c.Routing.Mode == "" {
		c.Routing.Mode = RoutingModeGroups
	}
	if c.Routing.LinkLimit <= 0 {
		c.Routing.LinkLimit = 5000
	}
	c.Routing.ReplyTimeout = 5 * time.Minute
	if c.Status.RunAddress == "" {
		c.Status.RunAddress = ":8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Path == "" {
		c.Log.Path = "logs/relaybot.log"
	}
	if c.Log.ErrorPath == "" {
		c.Log.ErrorPath = "logs/relaybot_error.log"
	}
	if c.Log.MaxSize <= 0 {
		c.Log.MaxSize = 10
	}
	if c.Log.MaxBackups <= 0 {
		c.Log.MaxBackups = 3
	}
	if c.Log.MaxAge <= 0 {
		c.Log.MaxAge = 28
	}
}
