package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	DriverRedis = "redis"
	DriverMongo = "mongo"
)

type Config struct {
	LogLevel    string      `yaml:"log-level" env:"LOG_LEVEL" env-default:"info"`
	LogFormat   string      `yaml:"log-format" env:"LOG_FORMAT" env-default:"json"`
	HTTPPort    string      `yaml:"http-port" env:"HTTP_PORT" env-default:"9090"`
	SocketPort  string      `yaml:"socket-port" env:"SOCKET_PORT" env-default:"9091"`
	Store       Store       `yaml:"store"`
	Redis       Redis       `yaml:"redis"`
	Mongo       Mongo       `yaml:"mongo"`
	Matchmaking Matchmaking `yaml:"matchmaking"`
	Session     Session     `yaml:"session"`
	Autoplayer  Autoplayer  `yaml:"autoplayer"`
}

type Store struct {
	Driver string `yaml:"driver" env:"STORE_DRIVER" env-default:"redis"`
}

type Redis struct {
	Host string `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port string `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	DB   int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type Mongo struct {
	URI      string `yaml:"uri" env:"MONGO_URI" env-default:"mongodb://localhost:27017/?replicaSet=rs0"`
	Database string `yaml:"database" env:"MONGO_DATABASE" env-default:"tictactoe"`
}

// Matchmaking bounds the find/join retry loop.
type Matchmaking struct {
	MaxRetries      uint64        `yaml:"max-retries" env:"MATCHMAKING_MAX_RETRIES" env-default:"8"`
	InitialInterval time.Duration `yaml:"initial-interval" env:"MATCHMAKING_INITIAL_INTERVAL" env-default:"50ms"`
	MaxInterval     time.Duration `yaml:"max-interval" env:"MATCHMAKING_MAX_INTERVAL" env-default:"2s"`
	RetryDelay      time.Duration `yaml:"retry-delay" env:"MATCHMAKING_RETRY_DELAY" env-default:"5s"`
	// RescanInterval is how often a session waiting in its own game looks for an older open game.
	RescanInterval  time.Duration `yaml:"rescan-interval" env:"MATCHMAKING_RESCAN_INTERVAL" env-default:"1s"`
}

// Session holds the post-game cleanup window.
type Session struct {
	CleanupDelayMin time.Duration `yaml:"cleanup-delay-min" env:"SESSION_CLEANUP_DELAY_MIN" env-default:"0s"`
	CleanupDelayMax time.Duration `yaml:"cleanup-delay-max" env:"SESSION_CLEANUP_DELAY_MAX" env-default:"5s"`
}

type Autoplayer struct {
	JoinURL   string        `yaml:"join-url" env:"AUTOPLAYER_JOIN_URL" env-default:"http://localhost:9090"`
	MoveDelay time.Duration `yaml:"move-delay" env:"AUTOPLAYER_MOVE_DELAY" env-default:"500ms"`
}

// MustLoad - load all configurations in config.yml file.
func MustLoad(path string) *Config {
	config, err := Load(path)
	if err != nil {
		panic(err)
	}

	return config
}

// Load reads path and applies environment overrides on top of it.
func Load(path string) (*Config, error) {
	config := &Config{}

	if err := cleanenv.ReadConfig(path, config); err != nil {
		return nil, fmt.Errorf("unable to load config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (that *Config) Validate() error {
	switch that.Store.Driver {
	case DriverRedis, DriverMongo:
	default:
		return fmt.Errorf("unknown store driver %q", that.Store.Driver)
	}

	if that.Session.CleanupDelayMax < that.Session.CleanupDelayMin {
		return fmt.Errorf("cleanup-delay-max %s is lower than cleanup-delay-min %s",
			that.Session.CleanupDelayMax, that.Session.CleanupDelayMin)
	}

	return nil
}

func (that *Redis) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", that.Host, that.Port)
}
