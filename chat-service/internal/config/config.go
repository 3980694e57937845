package config

import (
	"fmt"
	"time"

	"github.com/Sumit-1011/CampusXchange/pkg/database"
	pkgconfig "github.com/Sumit-1011/CampusXchange/pkg/config"
	pkglog "github.com/Sumit-1011/CampusXchange/pkg/log"
	"github.com/Sumit-1011/CampusXchange/pkg/pubsub"
)

type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	Database  database.Config
	Mongo     MongoConfig
	Redis     pubsub.RedisConfig
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Cache     CacheConfig
	Message   MessageConfig
	Relay     RelayConfig
	Auth      AuthConfig
	CORS      CORSConfig
	Log       pkglog.Config
}

type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	RequireToken   bool          `mapstructure:"require_token"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

type MongoConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	MaxPoolSize    uint64        `mapstructure:"max_pool_size"`
}

type RateLimitConfig struct {
	Limit  int64
	Window time.Duration
}

type CacheConfig struct {
	RecentSize int           `mapstructure:"recent_size"`
	TTL        time.Duration `mapstructure:"ttl"`
}

type MessageConfig struct {
	MaxLength    int `mapstructure:"max_length"`
	DefaultLimit int `mapstructure:"default_limit"`
	MaxLimit     int `mapstructure:"max_limit"`
}

type RelayConfig struct {
	Fanout string // local, redis
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// UsesMongo reports whether the document store is MongoDB.
func (c *Config) UsesMongo() bool {
	return c.Database.Driver == "" || c.Database.Driver == "mongo"
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 8192)
	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("websocket.require_token", true)
	v.SetDefault("websocket.allowed_origins", []string{})
	v.SetDefault("database.driver", "mongo")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "campusxchange")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.filepath", "campusxchange.db")
	v.SetDefault("database.maxidleconns", 5)
	v.SetDefault("database.maxopenconns", 20)
	v.SetDefault("database.connmaxlifetime", 30)
	v.SetDefault("database.loglevel", "warn")
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "campusxchange")
	v.SetDefault("mongo.connect_timeout", "10s")
	v.SetDefault("mongo.max_pool_size", 50)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")
	v.SetDefault("ratelimit.limit", 5)
	v.SetDefault("ratelimit.window", "60s")
	v.SetDefault("cache.recent_size", 50)
	v.SetDefault("cache.ttl", "1h")
	v.SetDefault("message.max_length", 2000)
	v.SetDefault("message.default_limit", 10)
	v.SetDefault("message.max_limit", 50)
	v.SetDefault("relay.fanout", "local")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "campusxchange")
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("cors.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("log.service_name", "chat-service")

	// Override from environment
	v.BindEnv("server.port", "PORT")
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("mongo.uri", "MONGO_URI")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	v.BindEnv("relay.fanout", "RELAY_FANOUT")
	v.BindEnv("log.level", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Server.ReadTimeout = pkgconfig.Duration(v, "server.read_timeout", 15*time.Second)
	cfg.Server.WriteTimeout = pkgconfig.Duration(v, "server.write_timeout", 15*time.Second)
	cfg.Server.ShutdownTimeout = pkgconfig.Duration(v, "server.shutdown_timeout", 30*time.Second)
	cfg.WebSocket.PingInterval = pkgconfig.Duration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = pkgconfig.Duration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = pkgconfig.Duration(v, "websocket.write_wait", 10*time.Second)
	cfg.Mongo.ConnectTimeout = pkgconfig.Duration(v, "mongo.connect_timeout", 10*time.Second)
	cfg.Redis.ReadTimeout = pkgconfig.Duration(v, "redis.read_timeout", 3*time.Second)
	cfg.Redis.WriteTimeout = pkgconfig.Duration(v, "redis.write_timeout", 3*time.Second)
	cfg.RateLimit.Window = pkgconfig.Duration(v, "ratelimit.window", 60*time.Second)
	cfg.Cache.TTL = pkgconfig.Duration(v, "cache.ttl", time.Hour)
	cfg.Auth.TokenTTL = pkgconfig.Duration(v, "auth.token_ttl", 24*time.Hour)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if !c.UsesMongo() && !database.IsSQL(c.Database.Driver) {
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	switch c.Relay.Fanout {
	case "local", "redis":
	default:
		return fmt.Errorf("unsupported relay fanout: %s", c.Relay.Fanout)
	}
	if c.RateLimit.Limit <= 0 {
		return fmt.Errorf("ratelimit.limit must be positive")
	}
	if c.Message.MaxLimit <= 0 || c.Message.DefaultLimit <= 0 || c.Message.DefaultLimit > c.Message.MaxLimit {
		return fmt.Errorf("invalid message limits: default=%d max=%d", c.Message.DefaultLimit, c.Message.MaxLimit)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	return nil
}
