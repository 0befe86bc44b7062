package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Log       LogConfig `mapstructure:"log"`
	Database  DatabaseConfig
	JWT       JWTConfig
	Tracing   TracingConfig `mapstructure:"tracing"`
	Redis     RedisConfig
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Exam      ExamConfig      `mapstructure:"exam"`
	Review    ReviewConfig    `mapstructure:"review"`
	Practice  PracticeConfig  `mapstructure:"practice"`
	Grading   GradingConfig   `mapstructure:"grading"`
	Events    EventsConfig    `mapstructure:"events"`

	// 运行时标志（非配置文件，通过命令行参数设置）
	ForceMigrate bool `mapstructure:"-"` // 强制执行数据库迁移
	MigrateOnly  bool `mapstructure:"-"` // 仅迁移模式（迁移后退出）
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests" validate:"gte=0"`
	WindowMinutes int `mapstructure:"window_minutes" validate:"gte=0"`
}

type ServerConfig struct {
	Port string `validate:"required"`
	Mode string `validate:"omitempty,oneof=debug release test"`
}

type LogConfig struct {
	Level    string `mapstructure:"level"`
	Filename string `mapstructure:"filename"`
}

type DatabaseConfig struct {
	Driver    string `mapstructure:"driver" validate:"omitempty,oneof=mysql postgres"`
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
	SSLMode   string `mapstructure:"sslmode"`
	LogLevel  string `mapstructure:"log_level"`
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	ExpireTime time.Duration `mapstructure:"expire_hours"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	ServiceName       string `mapstructure:"service_name"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type RedisConfig struct {
	Enabled  bool `mapstructure:"enabled"`
	Host     string
	Port     int
	Password string
	DB       int
	// 题目缓存有效期（秒）
	QuestionTTLSeconds int `mapstructure:"question_ttl_seconds"`
}

// ExamConfig 考试超时扫描配置
type ExamConfig struct {
	TimeoutScanIntervalSeconds int `mapstructure:"timeout_scan_interval_seconds" validate:"gte=0"`
	ScanBatchSize              int `mapstructure:"scan_batch_size" validate:"gte=0"`
}

// ReviewConfig 错题复习配置
type ReviewConfig struct {
	IntervalsDays []int `mapstructure:"intervals_days" validate:"omitempty,dive,gt=0"`
	// 每日复习任务生成时间，格式 HH:MM
	DailyGenerationAt string `mapstructure:"daily_generation_at"`
	BatchSize         int    `mapstructure:"batch_size" validate:"gte=0"`
	MaxAttempts       int    `mapstructure:"max_attempts" validate:"gte=0"`
}

type PracticeConfig struct {
	DefaultCount int `mapstructure:"default_count" validate:"gte=0"`
	MaxCount     int `mapstructure:"max_count" validate:"gte=0"`
}

type GradingConfig struct {
	PassThreshold float64 `mapstructure:"pass_threshold" validate:"gte=0"`
}

// EventsConfig 答题结果事件投递方式：sync（进程内直接调用）、gochannel、kafka
type EventsConfig struct {
	Mode          string   `mapstructure:"mode" validate:"omitempty,oneof=sync gochannel kafka"`
	KafkaBrokers  []string `mapstructure:"kafka_brokers"`
	Topic         string   `mapstructure:"topic"`
	ConsumerGroup string   `mapstructure:"consumer_group"`
}

func (c ExamConfig) ScanInterval() time.Duration {
	if c.TimeoutScanIntervalSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.TimeoutScanIntervalSeconds) * time.Second
}

func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("log.filename", "logs/app.log")
	viper.SetDefault("database.driver", "mysql")
	viper.SetDefault("database.charset", "utf8mb4")
	viper.SetDefault("database.parsetime", true)
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("redis.question_ttl_seconds", 300)
	viper.SetDefault("tracing.service_name", "edu-practice")
	viper.SetDefault("rate_limit.max_requests", 1000)
	viper.SetDefault("rate_limit.window_minutes", 1)
	viper.SetDefault("exam.timeout_scan_interval_seconds", 60)
	viper.SetDefault("exam.scan_batch_size", 200)
	viper.SetDefault("review.intervals_days", []int{1, 2, 4, 7, 15, 30})
	viper.SetDefault("review.daily_generation_at", "00:05")
	viper.SetDefault("review.batch_size", 500)
	viper.SetDefault("review.max_attempts", 3)
	viper.SetDefault("practice.default_count", 10)
	viper.SetDefault("practice.max_count", 100)
	viper.SetDefault("grading.pass_threshold", 0)
	viper.SetDefault("events.mode", "sync")
	viper.SetDefault("events.topic", "submission.outcome")
	viper.SetDefault("events.consumer_group", "review-scheduler")
}

func LoadConfig(path string) (*Config, error) {
	// .env 仅用于本地开发，不存在时忽略
	_ = godotenv.Load()

	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("EDU_PRACTICE")
	viper.AutomaticEnv()
	setDefaults()

	// Database
	viper.BindEnv("database.driver", "DATABASE_DRIVER")
	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.dbname", "DATABASE_NAME")

	// JWT
	viper.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis
	viper.BindEnv("redis.enabled", "REDIS_ENABLED")
	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	viper.BindEnv("server.mode", "SERVER_MODE")

	// Tracing
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	// Events
	viper.BindEnv("events.mode", "EVENTS_MODE")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.JWT.ExpireTime = cfg.JWT.ExpireTime * time.Hour

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	// 生产环境校验 JWT Secret 强度
	if cfg.Server.Mode == "release" && len(cfg.JWT.Secret) < 32 {
		return nil, fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(cfg.JWT.Secret))
	}

	if cfg.Log.Filename != "" {
		if _, err := os.Stat("logs"); os.IsNotExist(err) {
			os.MkdirAll("logs", 0755)
		}
	}

	return &cfg, nil
}

var validate = validator.New()

// Validate 校验配置取值范围
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Review.DailyGenerationAt != "" {
		if _, err := time.Parse("15:04", cfg.Review.DailyGenerationAt); err != nil {
			return fmt.Errorf("invalid config: review.daily_generation_at %q: %w", cfg.Review.DailyGenerationAt, err)
		}
	}
	return nil
}
