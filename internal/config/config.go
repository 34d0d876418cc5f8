package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// 接收模式
const (
	SinkModeFlat    = "flat"
	SinkModeIndexed = "indexed"
)

// 默认值
const (
	DefaultLLMBaseURL       = "https://api.groq.com/openai/v1"
	DefaultLLMModel         = "llama-3.3-70b-versatile"
	DefaultLLMTimeout       = "60s"
	DefaultEmbeddingBaseURL = "https://api.openai.com/v1"
	DefaultEmbeddingModel   = "text-embedding-3-small"
	DefaultEmbeddingDims    = 1536
	DefaultArchivePath      = "extracted_resumes.json"
	DefaultCollection       = "resumes2"
	DefaultQdrantEndpoint   = "http://localhost:6333"
	DefaultServerAddress    = ":8080"
	DefaultClaimTTLSeconds  = 600
)

// ErrMissingCredential 缺少必需的LLM API Key
var ErrMissingCredential = errors.New("missing LLM API key: set llm.api_key, GROQ_API_KEY or LLM_API_KEY")

// Config 应用程序配置
type Config struct {
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Sink      SinkConfig      `yaml:"sink"`
	Qdrant    QdrantConfig    `yaml:"qdrant"`
	Tika      TikaConfig      `yaml:"tika"`
	Redis     RedisConfig     `yaml:"redis"`
	MySQL     MySQLConfig     `yaml:"mysql"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	MinIO     MinIOConfig     `yaml:"minio"`
	Staging   StagingConfig   `yaml:"staging"`
	Server    ServerConfig    `yaml:"server"`
	Logger    LoggerConfig    `yaml:"logger"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// LLMConfig OpenAI兼容的聊天模型配置
type LLMConfig struct {
	APIKey      string  `yaml:"api_key" validate:"required"`
	BaseURL     string  `yaml:"base_url" validate:"required,url"`
	Model       string  `yaml:"model" validate:"required"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	Timeout     string  `yaml:"timeout"` // 例如 "60s"
	// QPM 大于0时按每分钟请求数限速，Burst 为令牌桶容量
	QPM   int `yaml:"qpm" validate:"gte=0"`
	Burst int `yaml:"burst" validate:"gte=0"`
}

// EmbeddingConfig 向量化模型配置，仅在 indexed 模式下使用
type EmbeddingConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
}

// SinkConfig 持久化目标配置
type SinkConfig struct {
	Mode        string `yaml:"mode" validate:"oneof=flat indexed"`
	ArchivePath string `yaml:"archive_path"`
}

// QdrantConfig Qdrant向量数据库配置
type QdrantConfig struct {
	Endpoint           string `yaml:"endpoint"`
	Collection         string `yaml:"collection"`
	Dimension          int    `yaml:"dimension"`
	APIKey             string `yaml:"api_key,omitempty"`
	DefaultSearchLimit int    `yaml:"default_search_limit"`
}

// TikaConfig Tika服务器配置，server_url 为空时不启用
type TikaConfig struct {
	ServerURL string `yaml:"server_url"`
	Timeout   int    `yaml:"timeout_seconds"`
}

// RedisConfig Redis配置，address 为空时不启用去重占位
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// 连接池设置
	PoolSize     int `yaml:"pool_size"`
	MinIdleConns int `yaml:"min_idle_conns"`
	// 超时设置
	DialTimeoutSeconds  int `yaml:"dial_timeout_seconds"`
	ReadTimeoutSeconds  int `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int `yaml:"write_timeout_seconds"`
	// 去重占位只覆盖一次写入窗口，进程崩溃留下的占位到期后自动失效
	ClaimTTLSeconds int `yaml:"claim_ttl_seconds" validate:"gte=0"`
}

// MySQLConfig MySQL配置，host 为空时不记录运行审计
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	// 连接池设置
	MaxIdleConns           int `yaml:"max_idle_conns"`
	MaxOpenConns           int `yaml:"max_open_conns"`
	ConnMaxLifetimeMinutes int `yaml:"conn_max_lifetime_minutes"`
	// 超时设置
	ConnectTimeoutSeconds int `yaml:"connect_timeout_seconds"`
	// 日志级别(1-4)
	LogLevel int `yaml:"log_level"`
}

// RabbitMQConfig RabbitMQ配置，url 为空时不发布事件
type RabbitMQConfig struct {
	URL                 string `yaml:"url"`
	ResumeExchange      string `yaml:"resume_exchange"`
	PersistedRoutingKey string `yaml:"persisted_routing_key"`
	// UseOutbox 同时配置了MySQL时，事件先写入发件箱再由中继投递
	UseOutbox         bool `yaml:"use_outbox"`
	OutboxPollSeconds int  `yaml:"outbox_poll_seconds"`
}

// MinIOConfig MinIO配置，endpoint 为空时使用本地临时目录暂存
type MinIOConfig struct {
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"accessKeyID"`
	SecretAccessKey string `yaml:"secretAccessKey"`
	UseSSL          bool   `yaml:"useSSL"`
	StagingBucket   string `yaml:"stagingBucket"`
	Location        string `yaml:"location"`
}

// StagingConfig 原始文件暂存配置
type StagingConfig struct {
	Dir string `yaml:"dir"` // 为空时使用 os.TempDir()
}

// ServerConfig 定义服务器配置
type ServerConfig struct {
	Address       string `yaml:"address"`
	MaxUploadMB   int    `yaml:"max_upload_mb"`
	EnableMetrics bool   `yaml:"enable_metrics"`
}

// LoggerConfig 日志配置
type LoggerConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	TimeFormat   string `yaml:"time_format"`
	ReportCaller bool   `yaml:"report_caller"`
}

// TracingConfig OTLP追踪配置，endpoint 为空时不导出
type TracingConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// LoadConfig 从文件加载配置，合并 .env 与环境变量，填充默认值并校验。
// configPath 为空时在常见位置查找 config.yaml，找不到则只使用默认值和环境变量。
func LoadConfig(configPath string) (*Config, error) {
	// .env 不存在是正常情况
	_ = godotenv.Load()

	cfg := &Config{}
	path, err := resolveConfigPath(configPath)
	if err != nil {
		return nil, err
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func resolveConfigPath(configPath string) (string, error) {
	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return "", fmt.Errorf("配置文件不存在: %s", configPath)
		}
		return configPath, nil
	}

	searchPaths := []string{
		"config.yaml",
		"../config.yaml",
		filepath.Join(os.Getenv("HOME"), ".resume-scanner", "config.yaml"),
	}
	if execPath, err := os.Executable(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(filepath.Dir(execPath), "config.yaml"))
	}
	for _, p := range searchPaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", nil
}

// applyEnvOverrides 从环境变量覆盖配置（如果存在）
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GROQ_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("RESUME_SINK_MODE"); v != "" {
		cfg.Sink.Mode = strings.ToLower(v)
	}
	if v := os.Getenv("RESUME_ARCHIVE_PATH"); v != "" {
		cfg.Sink.ArchivePath = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = DefaultLLMBaseURL
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = DefaultLLMModel
	}
	if cfg.LLM.Timeout == "" {
		cfg.LLM.Timeout = DefaultLLMTimeout
	}

	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = DefaultEmbeddingBaseURL
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = DefaultEmbeddingModel
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = DefaultEmbeddingDims
	}

	if cfg.Sink.Mode == "" {
		cfg.Sink.Mode = SinkModeFlat
	}
	if cfg.Sink.ArchivePath == "" {
		cfg.Sink.ArchivePath = DefaultArchivePath
	}

	if cfg.Qdrant.Endpoint == "" {
		cfg.Qdrant.Endpoint = DefaultQdrantEndpoint
	}
	if cfg.Qdrant.Collection == "" {
		cfg.Qdrant.Collection = DefaultCollection
	}
	if cfg.Qdrant.Dimension == 0 {
		cfg.Qdrant.Dimension = cfg.Embedding.Dimensions
	}
	if cfg.Qdrant.DefaultSearchLimit == 0 {
		cfg.Qdrant.DefaultSearchLimit = 5
	}

	if cfg.Redis.ClaimTTLSeconds == 0 {
		cfg.Redis.ClaimTTLSeconds = DefaultClaimTTLSeconds
	}

	if cfg.Tika.Timeout == 0 {
		cfg.Tika.Timeout = 60
	}

	if cfg.RabbitMQ.ResumeExchange == "" {
		cfg.RabbitMQ.ResumeExchange = "resume.events.exchange"
	}
	if cfg.RabbitMQ.PersistedRoutingKey == "" {
		cfg.RabbitMQ.PersistedRoutingKey = "resume.persisted"
	}
	if cfg.RabbitMQ.OutboxPollSeconds == 0 {
		cfg.RabbitMQ.OutboxPollSeconds = 5
	}
	if cfg.MinIO.StagingBucket == "" {
		cfg.MinIO.StagingBucket = "resume-staging"
	}
	if cfg.MySQL.Port == 0 {
		cfg.MySQL.Port = 3306
	}
	if cfg.MySQL.ConnectTimeoutSeconds == 0 {
		cfg.MySQL.ConnectTimeoutSeconds = 10
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = DefaultServerAddress
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 20
	}

	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.Logger.Format == "" {
		cfg.Logger.Format = "pretty"
	}
	if cfg.Logger.TimeFormat == "" {
		cfg.Logger.TimeFormat = "2006-01-02 15:04:05"
	}

	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "resume-scanner"
	}
	if cfg.Tracing.SampleRatio == 0 {
		cfg.Tracing.SampleRatio = 1
	}
}

// Validate 校验配置。缺少LLM凭据时返回 ErrMissingCredential，调用方应在处理任何请求前终止。
func (c *Config) Validate() error {
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		return ErrMissingCredential
	}

	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s(%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("配置校验失败: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("配置校验失败: %w", err)
	}

	if c.Sink.Mode == SinkModeIndexed {
		if strings.TrimSpace(c.Embedding.APIKey) == "" {
			return fmt.Errorf("indexed 模式需要 embedding.api_key 或 EMBEDDING_API_KEY")
		}
		if c.Qdrant.Dimension != c.Embedding.Dimensions {
			return fmt.Errorf("qdrant.dimension(%d) 与 embedding.dimensions(%d) 不一致", c.Qdrant.Dimension, c.Embedding.Dimensions)
		}
	}
	return nil
}

// LLMTimeout 返回模型调用超时
func (c *Config) LLMTimeout() time.Duration {
	return GetDuration(c.LLM.Timeout, 60*time.Second)
}

// GetDuration utility to parse duration strings from config
func GetDuration(durationStr string, defaultDuration time.Duration) time.Duration {
	if durationStr == "" {
		return defaultDuration
	}
	d, err := time.ParseDuration(durationStr)
	if err != nil {
		return defaultDuration
	}
	return d
}
