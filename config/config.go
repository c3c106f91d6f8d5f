package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

var (
	globalConfig Config
	once         sync.Once
)

// Config 扁平化配置结构体
type Config struct {
	// 远端图片服务
	RemoteBaseURL        string        `mapstructure:"remote_base_url"`
	RemoteTimeout        time.Duration `mapstructure:"remote_timeout"`
	RemoteRateLimitRPS   float64       `mapstructure:"remote_rate_limit_rps"`
	RemoteRateLimitBurst int           `mapstructure:"remote_rate_limit_burst"`

	// 水合并发数
	HydrateConcurrency int `mapstructure:"hydrate_concurrency"`

	// 画廊默认范围: all / own / user
	DefaultScope string `mapstructure:"default_scope"`
	DefaultUser  string `mapstructure:"default_user"`

	// 会话持久化: file / bolt / sqlite / postgres / memory
	SessionStoreType string `mapstructure:"session_store_type"`
	SessionFilePath  string `mapstructure:"session_file_path"`
	SessionBoltPath  string `mapstructure:"session_bolt_path"`
	SessionSecret    string `mapstructure:"session_secret"`

	// 数据库配置（session_store_type 为 sqlite / postgres 时使用）
	DBHost            string `mapstructure:"db_host"`
	DBPort            int    `mapstructure:"db_port"`
	DBUsername        string `mapstructure:"db_username"`
	DBPassword        string `mapstructure:"db_password"`
	DBName            string `mapstructure:"db_name"`
	DBFilePath        string `mapstructure:"db_file_path"`
	DBMaxOpenConns    int    `mapstructure:"db_max_open_conns"`
	DBMaxIdleConns    int    `mapstructure:"db_max_idle_conns"`
	DBConnMaxLifetime int    `mapstructure:"db_conn_max_lifetime"`

	// 滤镜变体缓存
	CacheType          string        `mapstructure:"cache_type"`
	CacheMaxCostMB     int64         `mapstructure:"cache_max_cost_mb"`
	CacheVariantTTL    time.Duration `mapstructure:"cache_variant_ttl"`
	CacheRedisAddr     string        `mapstructure:"cache_redis_addr"`
	CacheRedisPassword string        `mapstructure:"cache_redis_password"`
	CacheRedisDB       int           `mapstructure:"cache_redis_db"`

	// 本地视图服务
	ServerHost      string        `mapstructure:"server_host"`
	ServerPort      int           `mapstructure:"server_port"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	RateLimitRPS    float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst  int           `mapstructure:"rate_limit_burst"`
	UploadMaxSizeMB int           `mapstructure:"upload_max_size_mb"`

	// Worker 配置
	WorkerCount int `mapstructure:"worker_count"`
}

// InitConfig Initialize configuration
func InitConfig() {
	once.Do(func() {
		loadConfig()
	})
}

func Get() *Config {
	return &globalConfig
}

// loadConfig Core configuration loading
func loadConfig() {
	setDefaults()

	if path := viper.GetString("config_file_path"); path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigFile(".env")
		viper.SetConfigType("env")
	}

	if err := viper.ReadInConfig(); err != nil {
		fmt.Fprintln(os.Stderr, "Info: config file not found, using defaults and environment variables")
	} else {
		fmt.Fprintf(os.Stderr, "Info: Loaded configuration from %s\n", viper.ConfigFileUsed())
	}

	viper.SetEnvPrefix("gallery")
	viper.AutomaticEnv()
	for _, key := range viper.AllKeys() {
		viper.BindEnv(key)
	}

	if err := viper.Unmarshal(&globalConfig); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: Unable to unmarshal config, %v\n", err)
		os.Exit(1)
	}

	globalConfig.normalize()
}

// setDefaults 设置默认值
func setDefaults() {
	viper.SetDefault("remote_base_url", "http://localhost:8080")
	viper.SetDefault("remote_timeout", "30s")
	viper.SetDefault("remote_rate_limit_rps", 0.0) // 0 表示不限速
	viper.SetDefault("remote_rate_limit_burst", 20)

	viper.SetDefault("hydrate_concurrency", 0)

	viper.SetDefault("default_scope", "all")
	viper.SetDefault("default_user", "")

	viper.SetDefault("session_store_type", "file")
	viper.SetDefault("session_file_path", "./data/session.jwt")
	viper.SetDefault("session_bolt_path", "./data/session.bolt")
	viper.SetDefault("session_secret", "")

	viper.SetDefault("db_host", "localhost")
	viper.SetDefault("db_port", 5432)
	viper.SetDefault("db_username", "postgres")
	viper.SetDefault("db_password", "")
	viper.SetDefault("db_name", "image-gallery")
	viper.SetDefault("db_file_path", "")
	viper.SetDefault("db_max_open_conns", 10)
	viper.SetDefault("db_max_idle_conns", 2)
	viper.SetDefault("db_conn_max_lifetime", 3600)

	viper.SetDefault("cache_type", "memory")
	viper.SetDefault("cache_max_cost_mb", 256)
	viper.SetDefault("cache_variant_ttl", "10m")
	viper.SetDefault("cache_redis_addr", "localhost:6379")
	viper.SetDefault("cache_redis_password", "")
	viper.SetDefault("cache_redis_db", 0)

	viper.SetDefault("server_host", "127.0.0.1")
	viper.SetDefault("server_port", 5173)
	viper.SetDefault("refresh_interval", "0s")
	viper.SetDefault("rate_limit_rps", 30.0)
	viper.SetDefault("rate_limit_burst", 60)
	viper.SetDefault("upload_max_size_mb", 50)

	viper.SetDefault("worker_count", 0) // 0 表示使用默认值
}

// normalize 修正非法配置
func (c *Config) normalize() {
	c.RemoteBaseURL = strings.TrimRight(c.RemoteBaseURL, "/")
	c.SessionStoreType = strings.ToLower(strings.TrimSpace(c.SessionStoreType))
	c.CacheType = strings.ToLower(strings.TrimSpace(c.CacheType))
	c.DefaultScope = strings.ToLower(strings.TrimSpace(c.DefaultScope))

	// HydrateConcurrency: <=0 使用默认值
	if c.HydrateConcurrency <= 0 {
		c.HydrateConcurrency = getCpus() * 2
	}
	if c.RemoteRateLimitBurst <= 0 {
		c.RemoteRateLimitBurst = 1
	}

	// WorkerCount: -1 = 使用 CPU 线程数, 0 = 使用默认值 (max(2, CPU核心数)), >0 = 使用指定值
	switch {
	case c.WorkerCount < 0:
		c.WorkerCount = runtime.GOMAXPROCS(0)
	case c.WorkerCount == 0:
		c.WorkerCount = getCpus()
	}
}

// Addr 返回监听地址，格式为 "host:port"
func (c *Config) Addr() string {
	host := c.ServerHost
	if host == "" {
		host = "127.0.0.1"
	}
	port := c.ServerPort
	if port == 0 {
		port = 5173
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// getCpus 获取默认线程数量
func getCpus() int {
	n := runtime.GOMAXPROCS(0)
	if n < 2 {
		return 2
	}
	return n
}
