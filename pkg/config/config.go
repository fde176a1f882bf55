package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
	"github.com/z-wentao/speechflow/pkg/models"
)

// Config 应用配置
type Config struct {
	Azure         AzureConfig         `yaml:"azure"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	LUIS          LUISConfig          `yaml:"luis"`
	OpenAI        OpenAIConfig        `yaml:"openai"`
	Queue         QueueConfig         `yaml:"queue"`
	Storage       StorageConfig       `yaml:"storage"`
	Server        ServerConfig        `yaml:"server"`
	Worker        WorkerConfig        `yaml:"worker"`
	Log           LogConfig           `yaml:"log"`
}

// AzureConfig Azure Speech 资源配置
type AzureConfig struct {
	SubscriptionKey string `yaml:"subscription_key"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"` // 为空时按 region 生成
	APIVersion      string `yaml:"api_version"`
	Auth            string `yaml:"auth"` // "key" 或 "aad"
	TenantID        string `yaml:"tenant_id"`
	ClientID        string `yaml:"client_id"`
	ClientSecret    string `yaml:"client_secret"`
}

// TranscriptionConfig 批量转录配置
type TranscriptionConfig struct {
	Locale              string           `yaml:"locale"`
	DisplayName         string           `yaml:"display_name"`
	Description         string           `yaml:"description"`
	PollInterval        time.Duration    `yaml:"poll_interval"`
	PollTimeout         time.Duration    `yaml:"poll_timeout"`
	DownloadConcurrency int              `yaml:"download_concurrency"`
	OutputDir           string           `yaml:"output_dir"`
	Properties          PropertiesConfig `yaml:"properties"`
}

// PropertiesConfig mirrors the job property bag sent with each submission.
type PropertiesConfig struct {
	PunctuationMode            string `yaml:"punctuation_mode"`
	ProfanityFilterMode        string `yaml:"profanity_filter_mode"`
	WordLevelTimestampsEnabled bool   `yaml:"word_level_timestamps_enabled"`
	DiarizationEnabled         bool   `yaml:"diarization_enabled"`
	MinSpeakers                int    `yaml:"min_speakers"`
	MaxSpeakers                int    `yaml:"max_speakers"`
	DestinationContainerURL    string `yaml:"destination_container_url"`
	TimeToLive                 string `yaml:"time_to_live"`
}

// LUISConfig 意图识别配置
type LUISConfig struct {
	Endpoint        string `yaml:"endpoint"`
	AppID           string `yaml:"app_id"`
	SubscriptionKey string `yaml:"subscription_key"`
	Staging         bool   `yaml:"staging"`
}

// OpenAIConfig OpenAI 配置
type OpenAIConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// QueueConfig 队列配置
type QueueConfig struct {
	Type       string         `yaml:"type"`
	BufferSize int            `yaml:"buffer_size"`
	RabbitMQ   RabbitMQConfig `yaml:"rabbitmq"`
}

// RabbitMQConfig RabbitMQ 配置
type RabbitMQConfig struct {
	URL       string `yaml:"url"`
	QueueName string `yaml:"queue_name"`
	Prefetch  int    `yaml:"prefetch"`
}

// StorageConfig 存储配置
type StorageConfig struct {
	Type     string         `yaml:"type"` // memory | redis | postgres | hybrid
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// PostgresConfig PostgreSQL 配置
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port int `yaml:"port"`
}

// WorkerConfig Worker 配置
type WorkerConfig struct {
	PoolSize   int           `yaml:"pool_size"` // 同时处理多少个转录任务
	JobTimeout time.Duration `yaml:"job_timeout"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // text | json
	File       string `yaml:"file"`   // 为空时只输出到 stdout
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// LoadConfig 加载配置文件
// envFile is optional; variables it defines override secrets in the YAML.
func LoadConfig(configPath, envFile string) (*Config, error) {
	var config Config

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("加载 .env 文件失败: %w", err)
		}
	}
	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return &config, nil
}

// applyEnv 使用环境变量覆盖敏感配置
func (c *Config) applyEnv() {
	setString(&c.Azure.SubscriptionKey, "AZURE_SPEECH_KEY")
	setString(&c.Azure.Region, "AZURE_SPEECH_REGION")
	setString(&c.Azure.TenantID, "AZURE_TENANT_ID")
	setString(&c.Azure.ClientID, "AZURE_CLIENT_ID")
	setString(&c.Azure.ClientSecret, "AZURE_CLIENT_SECRET")
	setString(&c.Transcription.Properties.DestinationContainerURL, "DESTINATION_CONTAINER_URL")
	setString(&c.LUIS.AppID, "LUIS_APP_ID")
	setString(&c.LUIS.SubscriptionKey, "LUIS_KEY")
	setString(&c.LUIS.Endpoint, "LUIS_ENDPOINT")
	setString(&c.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&c.Queue.RabbitMQ.URL, "RABBITMQ_URL")
	setString(&c.Storage.Redis.Password, "REDIS_PASSWORD")
	setString(&c.Storage.Postgres.DSN, "POSTGRES_DSN")

	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

// Validate 验证配置并填充默认值
func (c *Config) Validate() error {
	if c.Azure.Region == "" && c.Azure.Endpoint == "" {
		return fmt.Errorf("请设置 Azure Speech region 或 endpoint")
	}

	switch c.Azure.Auth {
	case "", "key":
		c.Azure.Auth = "key"
		if c.Azure.SubscriptionKey == "" {
			return fmt.Errorf("请设置有效的 Azure Speech subscription key (AZURE_SPEECH_KEY)")
		}
	case "aad":
	default:
		return fmt.Errorf("不支持的鉴权方式: %s", c.Azure.Auth)
	}

	if c.Transcription.Locale == "" {
		c.Transcription.Locale = "en-US"
	}
	if c.Transcription.DisplayName == "" {
		c.Transcription.DisplayName = "Simple transcription"
	}
	if c.Transcription.PollInterval <= 0 {
		c.Transcription.PollInterval = 5 * time.Second
	}
	if c.Transcription.PollTimeout <= 0 {
		c.Transcription.PollTimeout = 2 * time.Hour
	}
	if c.Transcription.DownloadConcurrency <= 0 {
		c.Transcription.DownloadConcurrency = 3
	}

	if c.Queue.Type == "" {
		c.Queue.Type = "memory"
	}
	if c.Queue.BufferSize <= 0 {
		c.Queue.BufferSize = 100
	}
	if c.Queue.RabbitMQ.QueueName == "" {
		c.Queue.RabbitMQ.QueueName = "speechflow.transcriptions"
	}
	if c.Storage.Type == "" {
		c.Storage.Type = "memory"
	}
	if c.Storage.Redis.TTL <= 0 {
		c.Storage.Redis.TTL = 24 * time.Hour
	}

	if c.Worker.PoolSize <= 0 {
		c.Worker.PoolSize = 2
	}
	if c.Worker.JobTimeout <= 0 {
		c.Worker.JobTimeout = c.Transcription.PollTimeout + 10*time.Minute
	}

	if c.Server.Port <= 0 {
		c.Server.Port = 8080
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = "gpt-4o-mini"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	return nil
}

// TranscriptionProperties builds the property bag for a submission.
func (c *Config) TranscriptionProperties() *models.TranscriptionProperties {
	p := c.Transcription.Properties
	props := &models.TranscriptionProperties{
		PunctuationMode:            p.PunctuationMode,
		ProfanityFilterMode:        p.ProfanityFilterMode,
		WordLevelTimestampsEnabled: p.WordLevelTimestampsEnabled,
		DiarizationEnabled:         p.DiarizationEnabled,
		DestinationContainerURL:    p.DestinationContainerURL,
		TimeToLive:                 p.TimeToLive,
	}
	if p.DiarizationEnabled && p.MaxSpeakers > 0 {
		minSpeakers := p.MinSpeakers
		if minSpeakers <= 0 {
			minSpeakers = 1
		}
		props.Diarization = &models.DiarizationProperties{
			Speakers: models.SpeakerCount{MinCount: minSpeakers, MaxCount: p.MaxSpeakers},
		}
	}
	return props
}

// LUISEndpoint returns the configured endpoint or the regional default.
func (c *Config) LUISEndpoint() string {
	if c.LUIS.Endpoint != "" {
		return c.LUIS.Endpoint
	}
	return fmt.Sprintf("https://%s.api.cognitive.microsoft.com", c.Azure.Region)
}
