package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath 默认配置文件路径，可通过 CONFIG_PATH 覆盖
const DefaultPath = "configs/config.yaml"

// 主配置结构
type Config struct {
	App       App       `yaml:"app"`
	Server    Server    `yaml:"server"`
	Log       Log       `yaml:"log"`
	Database  DB        `yaml:"database"`
	Cache     Cache     `yaml:"cache"`
	ShortCode ShortCode `yaml:"shortcode"`
	Store     Store     `yaml:"store"`
	Resolver  Resolver  `yaml:"resolver"`
}

// 应用配置
type App struct {
	Name string `yaml:"name"`
	Mode string `yaml:"mode"`
}

// 服务器配置
type Server struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// 日志配置
type Log struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// 存储后端
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
	DriverRedis  = "redis"
)

// 数据库配置，Driver 为 redis 时使用 Redis 段
type DB struct {
	Driver       string `yaml:"driver"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Name         string `yaml:"name"`
	Charset      string `yaml:"charset"`
	Path         string `yaml:"path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
	Redis        Redis  `yaml:"redis"`
}

// Redis 连接配置
type Redis struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// 缓存类型
const (
	CacheNone  = "none"
	CacheLocal = "local"
	CacheRedis = "redis"
)

// 缓存配置
type Cache struct {
	Kind  string        `yaml:"kind"`
	Size  int           `yaml:"size"`
	TTL   time.Duration `yaml:"ttl"`
	Redis Redis         `yaml:"redis"`
}

// 短码配置
type ShortCode struct {
	Length     int `yaml:"length"`
	MaxRetries int `yaml:"max_retries"`
}

// 存储操作配置
type Store struct {
	Timeout time.Duration `yaml:"timeout"`
}

// 解析配置，Async 开启后缓存命中的计数交给后台 worker
type Resolver struct {
	Async     bool `yaml:"async"`
	Workers   int  `yaml:"workers"`
	QueueSize int  `yaml:"queue_size"`
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		App: App{Name: "shorturl-engine", Mode: "debug"},
		Server: Server{
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: Log{
			Level:      "info",
			File:       "./logs/app.log",
			MaxSize:    10,
			MaxBackups: 5,
			MaxAge:     30,
		},
		Database: DB{
			Driver:       DriverMemory,
			Port:         3306,
			Charset:      "utf8mb4",
			Path:         "./data/shorturl.db",
			MaxOpenConns: 20,
			MaxIdleConns: 10,
			Redis:        Redis{Host: "localhost", Port: 6379, PoolSize: 20},
		},
		Cache: Cache{
			Kind:  CacheLocal,
			Size:  10000,
			TTL:   time.Hour,
			Redis: Redis{Host: "localhost", Port: 6379, PoolSize: 20},
		},
		ShortCode: ShortCode{Length: 6, MaxRetries: 10},
		Store:     Store{Timeout: 3 * time.Second},
		Resolver:  Resolver{Workers: 4, QueueSize: 1024},
	}
}

// Path 返回配置文件路径
func Path() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return DefaultPath
}

// 加载配置，文件中未出现的字段保留默认值
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 检查取值范围
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverMemory, DriverSQLite, DriverMySQL, DriverRedis:
	default:
		return fmt.Errorf("不支持的存储驱动: %q", c.Database.Driver)
	}
	switch c.Cache.Kind {
	case CacheNone, CacheLocal, CacheRedis:
	default:
		return fmt.Errorf("不支持的缓存类型: %q", c.Cache.Kind)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("端口超出范围: %d", c.Server.Port)
	}
	if c.ShortCode.Length < 6 || c.ShortCode.Length > 32 {
		return fmt.Errorf("短码长度必须在 6 到 32 之间: %d", c.ShortCode.Length)
	}
	if c.ShortCode.MaxRetries <= 0 {
		return fmt.Errorf("max_retries 必须为正数: %d", c.ShortCode.MaxRetries)
	}
	if c.Store.Timeout <= 0 {
		return fmt.Errorf("store.timeout 必须为正数: %s", c.Store.Timeout)
	}
	return nil
}

// Addr 返回 host:port
func (r Redis) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
