package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`

	Database struct {
		Driver   string `yaml:"driver"` // mysql | postgres
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslmode"`
	} `yaml:"database"`

	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	Scanner struct {
		CLIPath        string `yaml:"cliPath"`
		DataDir        string `yaml:"dataDir"`
		NVDAPIKey      string `yaml:"nvdApiKey"`
		UploadsDir     string `yaml:"uploadsDir"`
		ReportsDir     string `yaml:"reportsDir"`
		MaxUploadMB    int64  `yaml:"maxUploadMB"`
		MaxConcurrent  int    `yaml:"maxConcurrent"`
		TimeoutMinutes int    `yaml:"timeoutMinutes"`
	} `yaml:"scanner"`

	AI struct {
		APIKey string `yaml:"apiKey"`
		Model  string `yaml:"model"`
	} `yaml:"ai"`

	Auth struct {
		JWTSecret       string `yaml:"jwtSecret"`
		TokenTTLMinutes int    `yaml:"tokenTTLMinutes"`
	} `yaml:"auth"`

	CORS struct {
		AllowedOrigins []string `yaml:"allowedOrigins"`
	} `yaml:"cors"`
}

// Load reads config.yaml, then applies environment overrides. A .env file in
// the working directory is picked up first so secrets never have to live in
// the yaml file.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Scanner.CLIPath == "" {
		c.Scanner.CLIPath = "/opt/dependency-check/bin/dependency-check.sh"
	}
	if c.Scanner.UploadsDir == "" {
		c.Scanner.UploadsDir = "./data/uploads"
	}
	if c.Scanner.ReportsDir == "" {
		c.Scanner.ReportsDir = "./data/reports"
	}
	if c.Scanner.MaxUploadMB <= 0 {
		c.Scanner.MaxUploadMB = 500
	}
	if c.Scanner.MaxConcurrent <= 0 {
		c.Scanner.MaxConcurrent = 2
	}
	if c.Scanner.TimeoutMinutes <= 0 {
		c.Scanner.TimeoutMinutes = 30
	}
	if c.AI.Model == "" {
		c.AI.Model = "gpt-4o"
	}
	if c.Auth.TokenTTLMinutes <= 0 {
		c.Auth.TokenTTLMinutes = 60
	}
	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
}

// applyEnv lets deployment environments override secrets and paths without
// touching the yaml file.
func (c *Config) applyEnv() {
	setStr := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setStr(&c.Database.Password, "DB_PASSWORD")
	setStr(&c.Minio.AccessKey, "MINIO_ACCESS_KEY")
	setStr(&c.Minio.SecretKey, "MINIO_SECRET_KEY")
	setStr(&c.AI.APIKey, "AI_API_KEY")
	setStr(&c.Auth.JWTSecret, "JWT_SECRET")
	setStr(&c.Scanner.NVDAPIKey, "NVD_API_KEY")
	setStr(&c.Scanner.CLIPath, "DEPENDENCY_CHECK_PATH")

	if v := os.Getenv("SERVER_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
}

func (c *Config) validate() error {
	if c.Database.Driver != "mysql" && c.Database.Driver != "postgres" {
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwtSecret must be at least 32 characters (set JWT_SECRET)")
	}
	return nil
}

// MySQLDSN builds the DSN for go-sql-driver/mysql.
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// PostgresDSN builds the DSN for lib/pq.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// MaxUploadBytes is the configured upload cap in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return c.Scanner.MaxUploadMB * 1024 * 1024
}
