package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds agent configuration
type Config struct {
	Server    ServerConfig
	Provider  ProviderConfig
	Redis     RedisConfig
	MongoDB   MongoDBConfig
	MinIO     MinIOConfig
	RateLimit RateLimitConfig
	Auth      AuthConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// ProviderConfig points the agent at its Keycloak-compatible auth
// provider. ClientSecret stays empty for public clients.
type ProviderConfig struct {
	URL          string
	Realm        string
	ClientID     string
	ClientSecret string
	RefreshSkew  time.Duration
}

// RedisConfig enables session persistence and token revocation when a
// host is set; with no host the agent keeps sessions in memory only.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// MongoDBConfig enables the user directory when a URI is set.
type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

// MinIOConfig enables the avatar cache when an endpoint is set.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

type RateLimitConfig struct {
	RPS    float64
	Burst  int
	Window time.Duration
}

// AuthConfig selects the facade's trust mode. RequireBearer turns on
// token checks for every API route (remote-UI deployments); the default
// trusts the loopback UI. AllowInsecureToken skips ID-token signature
// verification and is for development only.
type AuthConfig struct {
	RequireBearer      bool
	AllowInsecureToken bool
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env")

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "5801")
	viper.SetDefault("SERVER_HOST", "127.0.0.1")
	viper.SetDefault("SERVER_ENVIRONMENT", "development")
	viper.SetDefault("PROVIDER_REFRESH_SKEW", 30)
	viper.SetDefault("MONGODB_DATABASE", "authbridge")
	viper.SetDefault("MONGODB_TIMEOUT", 10)
	viper.SetDefault("MINIO_BUCKET", "authbridge-avatars")
	viper.SetDefault("RATE_LIMIT_RPS", 5.0)
	viper.SetDefault("RATE_LIMIT_BURST", 10)
	viper.SetDefault("RATE_LIMIT_WINDOW", 1)

	cfg := &Config{
		Server: ServerConfig{
			Port:         viper.GetString("SERVER_PORT"),
			Host:         viper.GetString("SERVER_HOST"),
			Environment:  viper.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Provider: ProviderConfig{
			URL:          getEnvOrPanic("PROVIDER_URL"),
			Realm:        getEnvOrPanic("PROVIDER_REALM"),
			ClientID:     getEnvOrPanic("PROVIDER_CLIENT_ID"),
			ClientSecret: os.Getenv("PROVIDER_CLIENT_SECRET"),
			RefreshSkew:  time.Duration(viper.GetInt("PROVIDER_REFRESH_SKEW")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       0,
		},
		MongoDB: MongoDBConfig{
			URI:      viper.GetString("MONGODB_URI"),
			Database: viper.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(viper.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		MinIO: MinIOConfig{
			Endpoint:  viper.GetString("MINIO_ENDPOINT"),
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			UseSSL:    viper.GetBool("MINIO_USE_SSL"),
			Bucket:    viper.GetString("MINIO_BUCKET"),
		},
		RateLimit: RateLimitConfig{
			RPS:    viper.GetFloat64("RATE_LIMIT_RPS"),
			Burst:  viper.GetInt("RATE_LIMIT_BURST"),
			Window: time.Duration(viper.GetInt("RATE_LIMIT_WINDOW")) * time.Second,
		},
		Auth: AuthConfig{
			RequireBearer:      viper.GetBool("AUTH_REQUIRE_BEARER"),
			AllowInsecureToken: viper.GetBool("ALLOW_INSECURE_TOKEN"),
		},
	}

	// Basic validation
	if cfg.Auth.AllowInsecureToken {
		log.Println("WARNING: ALLOW_INSECURE_TOKEN is set; ID tokens will not be verified")
	}

	return cfg, nil
}

func getEnvOrPanic(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("environment variable %s is required", key)
	}
	return v
}
