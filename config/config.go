package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Retention RetentionConfig `mapstructure:"retention"`
	CORS      CORSConfig      `mapstructure:"cors"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type QueueConfig struct {
	AnalysisQueue string `mapstructure:"analysis_queue"`
	MaxWorkers    int    `mapstructure:"max_workers"`
}

// EngineConfig 批量分析引擎配置
type EngineConfig struct {
	DefaultBatchSize     int    `mapstructure:"default_batch_size"`
	LineRetries          int    `mapstructure:"line_retries"`           // 单行分类失败的行内重试次数
	MaxConsecutiveErrors int    `mapstructure:"max_consecutive_errors"` // 连续失败多少行后判定分类器不可用
	ClassifierModel      string `mapstructure:"classifier_model"`
	ClassifierAPIKey     string `mapstructure:"classifier_api_key"`
	ClassifierTimeout    int    `mapstructure:"classifier_timeout"` // 秒
}

type RetentionConfig struct {
	JobRetentionDays int `mapstructure:"job_retention_days"`
	StaleJobHours    int `mapstructure:"stale_job_hours"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

func Load(configPath string) (*Config, error) {
	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	// 检查 config.local.yaml 是否存在
	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	// 环境变量覆盖
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Queue.AnalysisQueue == "" {
		c.Queue.AnalysisQueue = "log_analysis_jobs"
	}
	if c.Queue.MaxWorkers <= 0 {
		c.Queue.MaxWorkers = 2
	}
	if c.Engine.DefaultBatchSize <= 0 {
		c.Engine.DefaultBatchSize = 25
	}
	if c.Engine.MaxConsecutiveErrors <= 0 {
		c.Engine.MaxConsecutiveErrors = 10
	}
	if c.Engine.ClassifierTimeout <= 0 {
		c.Engine.ClassifierTimeout = 30
	}
	if c.Retention.JobRetentionDays <= 0 {
		c.Retention.JobRetentionDays = 30
	}
	if c.Retention.StaleJobHours <= 0 {
		c.Retention.StaleJobHours = 6
	}
}

// ClassifierTimeoutDuration 分类器单次调用超时
func (c *EngineConfig) ClassifierTimeoutDuration() time.Duration {
	return time.Duration(c.ClassifierTimeout) * time.Second
}
