package config

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
    HTTPAddr      string `yaml:"http_addr"`
    DBHost        string `yaml:"db_host"`
    DBPort        string `yaml:"db_port"`
    DBUser        string `yaml:"db_user"`
    DBPassword    string `yaml:"db_password"`
    DBName        string `yaml:"db_name"`
    DBSSLMode     string `yaml:"db_sslmode"`
    RunMigrations bool   `yaml:"run_migrations"`
    JWTSecret     string `yaml:"jwt_secret"`
    LogLevel      string `yaml:"log_level"`
    LogFormat     string `yaml:"log_format"`

    // Optional backends. Empty means disabled.
    RedisAddr     string `yaml:"redis_addr"`
    MongoURI      string `yaml:"mongo_uri"`
    MongoDatabase string `yaml:"mongo_database"`
    NATSURL       string `yaml:"nats_url"`
}

func defaults() Config {
    return Config{
        HTTPAddr:      ":8000",
        DBHost:        "localhost",
        DBPort:        "5432",
        DBUser:        "user",
        DBPassword:    "password",
        DBName:        "dbname",
        DBSSLMode:     "disable",
        RunMigrations: true,
        JWTSecret:     "secret",
        LogLevel:      "info",
        LogFormat:     "text",
        MongoDatabase: "pongarena",
    }
}

// LoadConfig builds the configuration from defaults, then the YAML file named
// by CONFIG_FILE if set, then environment variables.
func LoadConfig() (*Config, error) {
    cfg := defaults()

    if path, ok := os.LookupEnv("CONFIG_FILE"); ok && path != "" {
        if err := loadFile(path, &cfg); err != nil {
            return nil, err
        }
    }

    cfg.HTTPAddr = getEnv("HTTP_ADDR", cfg.HTTPAddr)
    cfg.DBHost = getEnv("DB_HOST", cfg.DBHost)
    cfg.DBPort = getEnv("DB_PORT", cfg.DBPort)
    cfg.DBUser = getEnv("DB_USER", cfg.DBUser)
    cfg.DBPassword = getEnv("DB_PASSWORD", cfg.DBPassword)
    cfg.DBName = getEnv("DB_NAME", cfg.DBName)
    cfg.DBSSLMode = getEnv("DB_SSLMODE", cfg.DBSSLMode)
    cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
    cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
    cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)
    cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
    cfg.MongoURI = getEnv("MONGO_URI", cfg.MongoURI)
    cfg.MongoDatabase = getEnv("MONGO_DATABASE", cfg.MongoDatabase)
    cfg.NATSURL = getEnv("NATS_URL", cfg.NATSURL)

    migrations, err := strconv.ParseBool(getEnv("RUN_MIGRATIONS", strconv.FormatBool(cfg.RunMigrations)))
    if err != nil {
        return nil, fmt.Errorf("RUN_MIGRATIONS: %w", err)
    }
    cfg.RunMigrations = migrations

    return &cfg, nil
}

func loadFile(path string, cfg *Config) error {
    data, err := os.ReadFile(path)
    if err != nil {
        return fmt.Errorf("read config file: %w", err)
    }
    if err := yaml.Unmarshal(data, cfg); err != nil {
        return fmt.Errorf("parse config file %s: %w", path, err)
    }
    return nil
}

// PostgresDSN is the lib/pq connection string for the configured database.
func (c *Config) PostgresDSN() string {
    return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
        c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

// PostgresURL is the same database in URL form, as golang-migrate expects it.
func (c *Config) PostgresURL() string {
    u := url.URL{
        Scheme:   "postgres",
        User:     url.UserPassword(c.DBUser, c.DBPassword),
        Host:     net.JoinHostPort(c.DBHost, c.DBPort),
        Path:     "/" + c.DBName,
        RawQuery: url.Values{"sslmode": {c.DBSSLMode}}.Encode(),
    }
    return u.String()
}

// getEnv reads an environment variable and returns its value or a default value
func getEnv(key, defaultValue string) string {
    value, exists := os.LookupEnv(key)
    if !exists {
        slog.Debug("environment variable not set, using default", "key", key)
        return defaultValue
    }
    return value
}
