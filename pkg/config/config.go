package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"meeting-todos-backend/pkg/database"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

// Identity providers
const (
	IdentityGoogle   = "google"
	IdentityFirebase = "firebase"
)

// Config 应用配置结构；YAML 文件提供默认值，环境变量优先
type Config struct {
	// 环境配置
	Environment string `yaml:"environment"`
	Port        string `yaml:"port"`
	LogLevel    string `yaml:"log_level"`

	// 数据库配置
	DatabaseDriver   string        `yaml:"database_driver"`
	LocalDataDir     string        `yaml:"local_data_dir"`
	PostgresDSN      string        `yaml:"postgres_dsn"`
	MySQLDSN         string        `yaml:"mysql_dsn"`
	SupabaseURL      string        `yaml:"supabase_url"`
	SupabaseKey      string        `yaml:"supabase_service_key"`
	ArangoURL        string        `yaml:"arango_url"`
	ArangoUser       string        `yaml:"arango_user"`
	ArangoPass       string        `yaml:"arango_pass"`
	ArangoDatabase   string        `yaml:"arango_database"`
	DBConnectTimeout time.Duration `yaml:"db_connect_timeout"`

	// Google Cloud / Firebase
	FirebaseProjectID     string `yaml:"firebase_project_id"`
	GoogleCredentialsFile string `yaml:"google_credentials_file"`

	// 身份认证
	IdentityProvider   string        `yaml:"identity_provider"`
	JWTSecret          string        `yaml:"jwt_secret"`
	AccessTokenTTL     time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL    time.Duration `yaml:"refresh_token_ttl"`
	GoogleClientID     string        `yaml:"google_client_id"`
	GoogleClientSecret string        `yaml:"google_client_secret"`
	OAuthRedirectURI   string        `yaml:"oauth_redirect_uri"`

	// 新用户没有组织时自动创建默认组织
	BootstrapOrganisation bool `yaml:"bootstrap_organisation"`

	// HTTP
	AllowedOrigins []string      `yaml:"allowed_origins"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`

	// 调试配置
	Debug bool `yaml:"debug"`
}

// defaults 默认配置
func defaults() *Config {
	return &Config{
		Environment:           "development",
		Port:                  "3000",
		LogLevel:              "info",
		DBConnectTimeout:      30 * time.Second,
		IdentityProvider:      IdentityGoogle,
		JWTSecret:             defaultJWTSecret,
		AccessTokenTTL:        15 * time.Minute,
		RefreshTokenTTL:       7 * 24 * time.Hour,
		BootstrapOrganisation: true,
		AllowedOrigins:        []string{"*"},
		RequestTimeout:        25 * time.Second,
		MaxBodyBytes:          1 << 20,
	}
}

// LoadConfig 加载配置（支持本地和Vercel环境）
func LoadConfig() (*Config, error) {
	env := getEnvWithDefault("ENVIRONMENT", "development")

	// 按优先级加载环境文件；godotenv 不会覆盖已存在的环境变量
	for _, file := range []string{".env." + env + ".local", ".env." + env, ".env.local", ".env"} {
		if _, err := os.Stat(file); err == nil {
			if err := godotenv.Load(file); err != nil {
				return nil, fmt.Errorf("failed to load %s: %w", file, err)
			}
		}
	}

	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	// 生产环境关闭调试
	if cfg.IsProduction() {
		cfg.Debug = false
	}

	return cfg, nil
}

// loadFile 读取 YAML 配置文件
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnv 环境变量覆盖
func (c *Config) applyEnv() {
	c.Environment = getEnvWithDefault("ENVIRONMENT", c.Environment)
	c.Port = getEnvWithDefault("PORT", c.Port)
	c.LogLevel = getEnvWithDefault("LOG_LEVEL", c.LogLevel)

	// Trim whitespace to avoid trailing spaces/newlines from env sources
	c.DatabaseDriver = getEnvWithDefault("DATABASE_DRIVER", c.DatabaseDriver)
	c.LocalDataDir = getEnvWithDefault("LOCAL_DATA_DIR", c.LocalDataDir)
	c.PostgresDSN = getEnvWithDefault("POSTGRES_DSN", c.PostgresDSN)
	c.MySQLDSN = getEnvWithDefault("MYSQL_DSN", c.MySQLDSN)
	c.SupabaseURL = getEnvWithDefault("SUPABASE_URL", c.SupabaseURL)
	c.SupabaseKey = getEnvWithDefault("SUPABASE_SERVICE_KEY", c.SupabaseKey)
	c.ArangoURL = getEnvWithDefault("ARANGO_URL", c.ArangoURL)
	c.ArangoUser = getEnvWithDefault("ARANGO_USER", c.ArangoUser)
	c.ArangoPass = getEnvWithDefault("ARANGO_PASS", c.ArangoPass)
	c.ArangoDatabase = getEnvWithDefault("ARANGO_DATABASE", c.ArangoDatabase)
	c.DBConnectTimeout = getEnvDuration("DB_CONNECT_TIMEOUT", c.DBConnectTimeout)

	c.FirebaseProjectID = getEnvWithDefault("FIREBASE_PROJECT_ID", c.FirebaseProjectID)
	c.GoogleCredentialsFile = getEnvWithDefault("GOOGLE_APPLICATION_CREDENTIALS", c.GoogleCredentialsFile)

	c.IdentityProvider = strings.ToLower(getEnvWithDefault("IDENTITY_PROVIDER", c.IdentityProvider))
	c.JWTSecret = getEnvWithDefault("JWT_SECRET", c.JWTSecret)
	c.AccessTokenTTL = getEnvDuration("ACCESS_TOKEN_TTL", c.AccessTokenTTL)
	c.RefreshTokenTTL = getEnvDuration("REFRESH_TOKEN_TTL", c.RefreshTokenTTL)
	c.GoogleClientID = getEnvWithDefault("GOOGLE_CLIENT_ID", c.GoogleClientID)
	c.GoogleClientSecret = getEnvWithDefault("GOOGLE_CLIENT_SECRET", c.GoogleClientSecret)
	c.OAuthRedirectURI = getEnvWithDefault("OAUTH_REDIRECT_URI", c.OAuthRedirectURI)

	c.BootstrapOrganisation = getEnvBool("BOOTSTRAP_ORGANISATION", c.BootstrapOrganisation)

	// CORS配置
	if origins := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); origins != "" {
		c.AllowedOrigins = nil
		for _, origin := range strings.Split(origins, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				c.AllowedOrigins = append(c.AllowedOrigins, origin)
			}
		}
	}
	c.RequestTimeout = getEnvDuration("REQUEST_TIMEOUT", c.RequestTimeout)
	if v, err := strconv.ParseInt(os.Getenv("MAX_BODY_BYTES"), 10, 64); err == nil && v > 0 {
		c.MaxBodyBytes = v
	}

	c.Debug = getEnvBool("DEBUG", c.Debug)
}

// Cached config (initialized once per cold start)
var (
	cachedConfig *Config
	cachedErr    error
	configOnce   sync.Once
)

// GetCached returns the process-wide cached Config.
// On serverless (Vercel), it initializes once per cold start and
// reuses it across warm invocations, avoiding per-request parsing.
func GetCached() (*Config, error) {
	configOnce.Do(func() {
		cachedConfig, cachedErr = LoadConfig()
	})
	return cachedConfig, cachedErr
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	switch c.IdentityProvider {
	case IdentityGoogle:
		// 验证JWT密钥
		if c.JWTSecret == "" || c.JWTSecret == defaultJWTSecret {
			if c.IsProduction() {
				return fmt.Errorf("JWT_SECRET must be set in production")
			}
		}
		if c.IsProduction() && (c.GoogleClientID == "" || c.GoogleClientSecret == "") {
			return fmt.Errorf("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET must be set in production")
		}
	case IdentityFirebase:
		if c.FirebaseProjectID == "" {
			return fmt.Errorf("FIREBASE_PROJECT_ID is required for the firebase identity provider")
		}
	default:
		return fmt.Errorf("unknown IDENTITY_PROVIDER %q", c.IdentityProvider)
	}

	// 生产环境不允许使用本地存储
	driver := c.Database().ResolveDriver()
	if c.IsProduction() && driver == database.DriverLocal {
		return fmt.Errorf("数据库配置不完整：生产环境请配置 POSTGRES_DSN、MYSQL_DSN、ARANGO_URL、FIRESTORE 或 SUPABASE_URL+SUPABASE_SERVICE_KEY")
	}
	if driver == database.DriverFirestore && c.FirebaseProjectID == "" {
		return fmt.Errorf("FIREBASE_PROJECT_ID is required for the firestore driver")
	}

	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return fmt.Errorf("token TTLs must be positive")
	}
	return nil
}

// Database 数据库连接配置
func (c *Config) Database() database.DatabaseConfig {
	return database.DatabaseConfig{
		Driver:                   c.DatabaseDriver,
		LocalDataDir:             c.LocalDataDir,
		PostgresDSN:              c.PostgresDSN,
		MySQLDSN:                 c.MySQLDSN,
		SupabaseURL:              c.SupabaseURL,
		SupabaseKey:              c.SupabaseKey,
		ArangoURL:                c.ArangoURL,
		ArangoUser:               c.ArangoUser,
		ArangoPass:               c.ArangoPass,
		ArangoDatabase:           c.ArangoDatabase,
		FirestoreProjectID:       c.firestoreProject(),
		FirestoreCredentialsFile: c.GoogleCredentialsFile,
		ConnectTimeout:           c.DBConnectTimeout,
		Debug:                    c.Debug,
	}
}

// firestoreProject 只有显式选择 firestore 驱动时才把 Firebase 项目交给存储层
func (c *Config) firestoreProject() string {
	if strings.EqualFold(c.DatabaseDriver, database.DriverFirestore) {
		return c.FirebaseProjectID
	}
	return ""
}

// IsProduction 检查是否为生产环境
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// IsDevelopment 检查是否为开发环境
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// 辅助函数

// getEnvWithDefault 获取环境变量，如果不存在则使用默认值
func getEnvWithDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool 获取布尔类型的环境变量
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration 获取时长类型的环境变量（"15m"、"25s"）
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
