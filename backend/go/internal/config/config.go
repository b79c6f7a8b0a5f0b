package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RedisConfig 定义了 Redis 数据库的连接配置。
type RedisConfig struct {
	Address   string `yaml:"address"`   // Redis 服务器地址 (例如: "localhost:6379")
	Password  string `yaml:"password"`  // Redis 密码
	DB        int    `yaml:"db"`        // Redis 数据库编号
	KeyPrefix string `yaml:"keyPrefix"` // 所有键的前缀，默认 "trendline"
	LockTTL   string `yaml:"lockTTL"`   // 实体锁的过期时间，例如 "2m"
}

// MinIOConfig 定义了 MinIO 对象存储的连接配置，用于归档已合并的新闻原文。
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`  // MinIO 服务端点
	AccessKey string `yaml:"accessKey"` // 访问密钥
	SecretKey string `yaml:"secretKey"` // Secret 密钥
	Bucket    string `yaml:"bucket"`    // 默认存储桶名称
	Secure    bool   `yaml:"secure"`    // 是否使用HTTPS
}

// MongoConfig 定义了 MongoDB 数据库的连接配置。
type MongoConfig struct {
	Address    string `yaml:"address"`    // MongoDB 服务器地址
	Username   string `yaml:"username"`   // 用户名
	Password   string `yaml:"password"`   // 密码
	Database   string `yaml:"database"`   // 数据库名称
	Collection string `yaml:"collection"` // 实体集合，默认 "entities"
}

// KafkaConfig 定义了 Kafka 消息队列的连接配置。
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"` // Kafka Broker 地址列表
	Topic   string   `yaml:"topic"`   // 用户活动主题
	GroupID string   `yaml:"groupID"` // 消费者组
}

// StoreConfig 选择共享状态存储的后端。
type StoreConfig struct {
	Backend string `yaml:"backend"` // "memory", "redis" 或 "mongo"
}

// DatabaseConfigs 包含所有数据库的配置。
type DatabaseConfigs struct {
	Store   StoreConfig `yaml:"store"`
	Redis   RedisConfig `yaml:"redis"`
	MinIO   MinIOConfig `yaml:"minio"`
	MongoDB MongoConfig `yaml:"mongodb"`
	Kafka   KafkaConfig `yaml:"kafka"`
}

// AppInfo 对应 'app' 部分，包含应用程序的基本信息。
type AppInfo struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"` // 例如: "development", "production"
	HTTPAddr    string `yaml:"httpAddr"`    // API 监听地址，默认 ":8080"
}

// LoggerConfig 定义了日志记录器的配置。
type LoggerConfig struct {
	Level string `yaml:"level"` // 日志级别 (例如: "info", "debug", "warn", "error")
}

// AppConfig 是整个 YAML 文件的根结构，包含了应用程序的所有配置。
type AppConfig struct {
	App        AppInfo          `yaml:"app"`
	Logger     LoggerConfig     `yaml:"logger"`
	LLM        LLMConfig        `yaml:"llm"`
	Search     SearchConfig     `yaml:"search"`
	Trend      TrendConfig      `yaml:"trend"`
	Databases  DatabaseConfigs  `yaml:"databases"`
	Middleware MiddlewareConfig `yaml:"middleware"`
}

// LLMConfig 包含了不同LLM提供商的配置。
type LLMConfig struct {
	Provider string       `yaml:"provider"` // "openai", "ollama" 或 "gemini"
	Timeout  string       `yaml:"timeout"`  // 单次调用超时，默认 "60s"
	OpenAI   OpenAIConfig `yaml:"openai"`
	Ollama   OllamaConfig `yaml:"ollama"`
	Gemini   GeminiConfig `yaml:"gemini"`
}

// OpenAIConfig 包含了 OpenAI 兼容接口的配置。
type OpenAIConfig struct {
	APIKey  string `yaml:"apiKey"`
	BaseURL string `yaml:"baseURL"`
	Model   string `yaml:"model"`
}

// OllamaConfig 包含了本地 Ollama 服务的配置。
type OllamaConfig struct {
	URL   string `yaml:"url"`
	Model string `yaml:"model"`
}

// GeminiConfig 包含了 Gemini 模型的配置。
type GeminiConfig struct {
	APIKey string `yaml:"apiKey"`
	Model  string `yaml:"model"`
}

// SearchConfig 是外部搜索/抓取服务的配置。
type SearchConfig struct {
	Provider      string `yaml:"provider"`      // "serper" 或 "direct"
	APIKey        string `yaml:"apiKey"`
	NewsURL       string `yaml:"newsURL"`
	ScrapeURL     string `yaml:"scrapeURL"`
	Query         string `yaml:"query"`
	Num           int    `yaml:"num"`
	TimeRange     string `yaml:"timeRange"`     // serper tbs 参数，例如 "qdr:h"
	SearchTimeout string `yaml:"searchTimeout"` // 默认 "15s"
	FetchTimeout  string `yaml:"fetchTimeout"`  // 默认 "20s"
	MediaTimeout  string `yaml:"mediaTimeout"`  // 默认 "5s"
	Concurrency   int    `yaml:"concurrency"`   // 抓取并发数，默认 5
	MediaLimit    int    `yaml:"mediaLimit"`    // 图片校验上限，默认 8
	CacheCapacity int    `yaml:"cacheCapacity"` // 抓取结果缓存容量
	CacheTTL      string `yaml:"cacheTTL"`      // 抓取结果缓存有效期
	UserAgent     string `yaml:"userAgent"`
}

// TrendConfig 是调度循环与合并策略的配置。
type TrendConfig struct {
	FastInterval    string   `yaml:"fastInterval"`    // 轮询间隔，默认 "3s"
	SlowInterval    string   `yaml:"slowInterval"`    // 新闻摄取间隔，默认 "600s"
	Sleep           string   `yaml:"sleep"`           // 每次迭代之间的休眠，默认 "1s"
	MaxSentences    int      `yaml:"maxSentences"`    // 摘要句子上限，默认 5
	RollupThreshold int      `yaml:"rollupThreshold"` // 用户活动汇总阈值，默认 1
	GlobalID        string   `yaml:"globalID"`        // 全局实体 id，默认 "fashion"
	TrackedKinds    []string `yaml:"trackedKinds"`    // 追踪器关注的实体类型
}

// MiddlewareConfig 包含所有中间件的配置。
type MiddlewareConfig struct {
	RateLimiter    RateLimiterConfig    `yaml:"rateLimiter"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
}

// RateLimiterConfig 定义了限流器的配置（令牌桶），TokenBucket 用于出站请求。
type RateLimiterConfig struct {
	Enabled     bool              `yaml:"enabled"`
	TokenBucket TokenBucketConfig `yaml:"tokenBucket"`
	Inbound     TokenBucketConfig `yaml:"inbound"` // 写接口（POST）的入站限流，rate 为 0 时关闭
}

// TokenBucketConfig 定义了令牌桶算法的配置。
type TokenBucketConfig struct {
	Rate     float64 `yaml:"rate"` // 每秒速率
	Capacity int     `yaml:"capacity"`
}

// CircuitBreakerConfig 定义了熔断器的配置。
type CircuitBreakerConfig struct {
	Enabled          bool   `yaml:"enabled"`
	FailureThreshold uint32 `yaml:"failureThreshold"`
	SuccessThreshold uint32 `yaml:"successThreshold"`
	Timeout          string `yaml:"timeout"` // 例如: "30s"
}

// LoadConfig 函数从指定路径加载并解析 YAML 配置文件，随后应用环境变量覆盖和默认值。
func LoadConfig(path string) (*AppConfig, error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("无法读取 YAML 文件 '%s': %w", path, err)
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(yamlFile, &cfg); err != nil {
		return nil, fmt.Errorf("解析 YAML 文件失败: %w", err)
	}
	cfg.ApplyEnv()
	cfg.Defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv 用环境变量覆盖密钥类配置（非空时）。
func (c *AppConfig) ApplyEnv() {
	override := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	override(&c.Search.APIKey, "SERPER_API_KEY")
	override(&c.LLM.OpenAI.APIKey, "OPENAI_API_KEY")
	override(&c.LLM.Gemini.APIKey, "GEMINI_API_KEY")
	override(&c.Databases.Redis.Password, "REDIS_PASSWORD")
}

// Defaults 为未设置的策略参数填充默认值。
func (c *AppConfig) Defaults() {
	setStr := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	setInt := func(dst *int, v int) {
		if *dst <= 0 {
			*dst = v
		}
	}

	setStr(&c.App.Name, "trendline")
	setStr(&c.App.HTTPAddr, ":8080")
	setStr(&c.Logger.Level, "info")

	setStr(&c.LLM.Provider, "openai")
	setStr(&c.LLM.Timeout, "60s")
	setStr(&c.LLM.OpenAI.Model, "gpt-4o")
	setStr(&c.LLM.Ollama.URL, "http://localhost:11434")
	setStr(&c.LLM.Ollama.Model, "llama3")
	setStr(&c.LLM.Gemini.Model, "gemini-1.5-flash")

	setStr(&c.Search.Provider, "serper")
	setStr(&c.Search.NewsURL, "https://google.serper.dev/news")
	setStr(&c.Search.ScrapeURL, "https://scrape.serper.dev")
	setStr(&c.Search.Query, "fashion")
	setInt(&c.Search.Num, 20)
	setStr(&c.Search.TimeRange, "qdr:h")
	setStr(&c.Search.SearchTimeout, "15s")
	setStr(&c.Search.FetchTimeout, "20s")
	setStr(&c.Search.MediaTimeout, "5s")
	setInt(&c.Search.Concurrency, 5)
	setInt(&c.Search.MediaLimit, 8)
	setInt(&c.Search.CacheCapacity, 256)
	setStr(&c.Search.CacheTTL, "30m")
	setStr(&c.Search.UserAgent, "trendline/1.0")

	setStr(&c.Trend.FastInterval, "3s")
	setStr(&c.Trend.SlowInterval, "600s")
	setStr(&c.Trend.Sleep, "1s")
	setInt(&c.Trend.MaxSentences, 5)
	setInt(&c.Trend.RollupThreshold, 1)
	setStr(&c.Trend.GlobalID, "fashion")
	if len(c.Trend.TrackedKinds) == 0 {
		c.Trend.TrackedKinds = []string{"global", "user"}
	}

	setStr(&c.Databases.Store.Backend, "memory")
	setStr(&c.Databases.Redis.KeyPrefix, "trendline")
	setStr(&c.Databases.Redis.LockTTL, "2m")
	setStr(&c.Databases.MongoDB.Database, "trendline")
	setStr(&c.Databases.MongoDB.Collection, "entities")
	setStr(&c.Databases.MinIO.Bucket, "raw-news")
	setStr(&c.Databases.Kafka.Topic, "user-activity")
	setStr(&c.Databases.Kafka.GroupID, "trendline-activity")

	if c.Middleware.CircuitBreaker.FailureThreshold == 0 {
		c.Middleware.CircuitBreaker.FailureThreshold = 5
	}
	if c.Middleware.CircuitBreaker.SuccessThreshold == 0 {
		c.Middleware.CircuitBreaker.SuccessThreshold = 1
	}
	setStr(&c.Middleware.CircuitBreaker.Timeout, "30s")
}

// Validate 检查所有时长字段都能被解析。
func (c *AppConfig) Validate() error {
	fields := map[string]string{
		"llm.timeout":                       c.LLM.Timeout,
		"search.searchTimeout":              c.Search.SearchTimeout,
		"search.fetchTimeout":               c.Search.FetchTimeout,
		"search.mediaTimeout":               c.Search.MediaTimeout,
		"search.cacheTTL":                   c.Search.CacheTTL,
		"trend.fastInterval":                c.Trend.FastInterval,
		"trend.slowInterval":                c.Trend.SlowInterval,
		"trend.sleep":                       c.Trend.Sleep,
		"databases.redis.lockTTL":           c.Databases.Redis.LockTTL,
		"middleware.circuitBreaker.timeout": c.Middleware.CircuitBreaker.Timeout,
	}
	for name, v := range fields {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("配置项 %s 不是合法的时长 %q: %w", name, v, err)
		}
	}
	switch c.Databases.Store.Backend {
	case "memory", "redis", "mongo":
	default:
		return fmt.Errorf("未知的存储后端 %q", c.Databases.Store.Backend)
	}
	return nil
}

// Duration 解析一个已通过 Validate 的时长字符串，解析失败时返回 fallback。
func Duration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
