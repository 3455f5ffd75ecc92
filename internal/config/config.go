package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// 支持的存储驱动。
const (
	DriverMemory   = "memory"
	DriverBadger   = "badger"
	DriverLocal    = "local"
	DriverPostgres = "postgres"
	DriverS3       = "s3"
)

// Config 聚合服务启动需要的关键配置。
type Config struct {
	HTTPPort           string
	CORSAllowedOrigins []string
	RateLimitRequests  int
	RateLimitWindow    time.Duration
	LogLevel           string
	LogPretty          bool
	// 存储配置
	StorageDriver string // memory / badger / local / postgres / s3
	StorageDir    string // badger 与 local 驱动的数据目录
	DBHost        string
	DBPort        int
	DBUser        string
	DBPassword    string
	DBName        string
	DBSSLMode     string
	DBAutoMigrate bool // postgres 驱动启动时是否自动执行迁移
	S3Endpoint    string // S3/MinIO 端点，不含协议
	S3AccessKey   string
	S3SecretKey   string
	S3Bucket      string
	S3Region      string
	S3UseSSL      bool // 是否使用 HTTPS
	S3PathStyle   bool // 是否使用路径风格访问（MinIO 需要设为 true）
	// 文件目录配置
	FetchConcurrency int   // 列表时并发读取记录的上限
	MaxUploadSize    int64 // 单条记录原始内容的字节上限
	IDSuffixLength   int   // 记录 ID 随机后缀长度，越长碰撞概率越低
	// 传输动画配置
	TickInterval     time.Duration
	MaxIncrement     float64
	MinUploadTime    time.Duration
	MaxProgressTicks int
}

// Load 从 .env（如果存在）与环境变量加载配置，并提供默认值。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("读取 .env 失败: %w", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	corsOrigins := parseList(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"http://localhost:5173"}
	}

	rateLimitRequests, err := parseIntEnv("RATE_LIMIT_REQUESTS", 60)
	if err != nil {
		return nil, err
	}

	rateLimitWindow, err := parseDurationEnv("RATE_LIMIT_WINDOW", time.Minute)
	if err != nil {
		return nil, err
	}

	dbPort, err := parseIntEnv("DB_PORT", 5432)
	if err != nil {
		return nil, err
	}

	fetchConcurrency, err := parseIntEnv("FETCH_CONCURRENCY", 16)
	if err != nil {
		return nil, err
	}

	maxUploadSize, err := parseIntEnv("MAX_UPLOAD_SIZE", 10<<20)
	if err != nil {
		return nil, err
	}

	idSuffixLength, err := parseIntEnv("ID_SUFFIX_LENGTH", 9)
	if err != nil {
		return nil, err
	}

	tickInterval, err := parseDurationEnv("PROGRESS_TICK_INTERVAL", 200*time.Millisecond)
	if err != nil {
		return nil, err
	}

	minUploadTime, err := parseDurationEnv("MIN_UPLOAD_TIME", 1500*time.Millisecond)
	if err != nil {
		return nil, err
	}

	maxIncrement, err := parseFloatEnv("PROGRESS_MAX_INCREMENT", 15)
	if err != nil {
		return nil, err
	}

	maxTicks, err := parseIntEnv("PROGRESS_MAX_TICKS", 1000)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPPort:           port,
		CORSAllowedOrigins: corsOrigins,
		RateLimitRequests:  rateLimitRequests,
		RateLimitWindow:    rateLimitWindow,
		LogLevel:           envOrDefault("LOG_LEVEL", "info"),
		LogPretty:          parseBoolEnv("LOG_PRETTY", false),
		StorageDriver:      strings.ToLower(envOrDefault("STORAGE_DRIVER", DriverMemory)),
		StorageDir:         envOrDefault("STORAGE_DIR", "./data"),
		DBHost:             envOrDefault("DB_HOST", "127.0.0.1"),
		DBPort:             dbPort,
		DBUser:             envOrDefault("DB_USER", "filehub"),
		DBPassword:         envOrDefault("DB_PASSWORD", "filehub"),
		DBName:             envOrDefault("DB_NAME", "filehub"),
		DBSSLMode:          envOrDefault("DB_SSL_MODE", "disable"),
		DBAutoMigrate:      parseBoolEnv("DB_AUTO_MIGRATE", true),
		S3Endpoint:         envOrDefault("S3_ENDPOINT", "localhost:9000"),
		S3AccessKey:        envOrDefault("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:        envOrDefault("S3_SECRET_KEY", "minioadmin"),
		S3Bucket:           envOrDefault("S3_BUCKET", "filehub"),
		S3Region:           envOrDefault("S3_REGION", "us-east-1"),
		S3UseSSL:           parseBoolEnv("S3_USE_SSL", false),
		S3PathStyle:        parseBoolEnv("S3_PATH_STYLE", true),
		FetchConcurrency:   fetchConcurrency,
		MaxUploadSize:      int64(maxUploadSize),
		IDSuffixLength:     idSuffixLength,
		TickInterval:       tickInterval,
		MaxIncrement:       maxIncrement,
		MinUploadTime:      minUploadTime,
		MaxProgressTicks:   maxTicks,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 检查驱动名称，并为需要本地目录的驱动创建目录。
func (c *Config) Validate() error {
	switch c.StorageDriver {
	case DriverMemory, DriverPostgres, DriverS3:
		return nil
	case DriverBadger, DriverLocal:
		if err := ensureDir(c.StorageDir); err != nil {
			return fmt.Errorf("确保存储目录失败: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("未知的存储驱动: %q", c.StorageDriver)
	}
}

func ensureDir(path string) error {
	info, err := os.Stat(path)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("路径 %s 已存在但不是目录", path)
		}
		return nil
	}

	if os.IsNotExist(err) {
		return os.MkdirAll(path, 0o755)
	}

	return err
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}

	items := strings.Split(raw, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("解析 %s 失败: %w", key, err)
	}
	if value <= 0 {
		return defaultValue, nil
	}
	return value, nil
}

func parseFloatEnv(key string, defaultValue float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}

	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("解析 %s 失败: %w", key, err)
	}
	if value <= 0 {
		return defaultValue, nil
	}
	return value, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}

	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("解析 %s 失败: %w", key, err)
	}
	if value <= 0 {
		return defaultValue, nil
	}
	return value, nil
}

func parseBoolEnv(key string, defaultValue bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	lower := strings.ToLower(raw)
	return lower == "true" || lower == "1" || lower == "yes"
}

// PostgresDSN 生成标准 postgres:// 连接串，供数据访问层直接使用。
func (c *Config) PostgresDSN() string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.DBUser, c.DBPassword),
		Host:   fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:   c.DBName,
	}

	q := url.Values{}
	if c.DBSSLMode != "" {
		q.Set("sslmode", c.DBSSLMode)
	}
	u.RawQuery = q.Encode()

	return u.String()
}

func envOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
