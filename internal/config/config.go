// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Analysis      AnalysisConfig      `mapstructure:"analysis"`
	Pipeline      PipelineConfig      `mapstructure:"pipeline"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储 JWT 相关的配置。
// 本服务只做 token 校验，签发属于独立的身份服务。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
	// ProbeTimeoutSeconds 是存储可用性探测（ListBuckets）的单次超时。
	ProbeTimeoutSeconds int `mapstructure:"probe_timeout_seconds"`
	// ProbeIntervalSeconds 是探测失败后自动重新探测的间隔。
	ProbeIntervalSeconds int `mapstructure:"probe_interval_seconds"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// AnalysisConfig 存储远程 AI 分析服务相关的配置。
type AnalysisConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// PipelineConfig 存储附件处理管道的调优参数。
// 字段为零值时由 pipeline 包内的默认常量兜底。
type PipelineConfig struct {
	// MaxRetries 是瞬态失败后的最大重试次数（2 表示共 3 次尝试）。
	MaxRetries int `mapstructure:"max_retries"`
	// BackoffMillis 是线性退避的基准间隔，第 k 次重试前等待 k*BackoffMillis 毫秒。
	BackoffMillis int `mapstructure:"backoff_millis"`
	// ProcessTimeoutSeconds 是单次图片处理尝试的硬超时，独立于重试预算。
	ProcessTimeoutSeconds int `mapstructure:"process_timeout_seconds"`
	// StorageWaitDelaySeconds 是存储未就绪时重新进入处理链的固定延迟。
	StorageWaitDelaySeconds int `mapstructure:"storage_wait_delay_seconds"`
	// StorageWaitMax 是等待存储就绪的最大次数，超过后附件直接置为失败。
	StorageWaitMax int `mapstructure:"storage_wait_max"`
	// MaxImageDimension 是下游模型可接受的像素上限（宽或高）。
	MaxImageDimension int `mapstructure:"max_image_dimension"`
	// MaxChatFileSizeMB / MaxSingleFileSizeMB 是两类上传入口的大小上限。
	MaxChatFileSizeMB   int `mapstructure:"max_chat_file_size_mb"`
	MaxSingleFileSizeMB int `mapstructure:"max_single_file_size_mb"`
	// JPEGQuality 是压缩重编码时的质量因子 (1-100)。
	JPEGQuality int `mapstructure:"jpeg_quality"`
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("读取配置文件失败: %w", err))
	}

	if err := viper.Unmarshal(&Conf); err != nil {
		panic(fmt.Errorf("无法将配置解析到结构体中: %w", err))
	}
}
