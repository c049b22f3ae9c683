package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Env      string // DEV (local; default), TEST, QA, PROD
		Build    string
		Debug    bool
		TestMode bool

		AppName                   string
		SecretKey                 string
		DefaultFromEmail          mail.Address
		FrontendBaseURL           string
		PasswordResetTimeoutDelta time.Duration
		RollbarToken              string
		SendgridAPIKey            string

		Server    ServerConfig
		Database  DatabaseConfig
		Redis     RedisConfig
		AI        AIConfig
		Billing   BillingConfig
		RateLimit RateLimitConfig
	}

	ServerConfig struct {
		Host                      string
		Address                   string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string // postgres | memory
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	// RedisConfig enables the shared rate limiter store when URL is set.
	RedisConfig struct {
		URL string
	}

	AIConfig struct {
		APIKey     string
		Model      string
		MaxTokens  int
		Timeout    time.Duration
		MaxRetries int
	}

	BillingConfig struct {
		PaddleWebhookSecret string
		SignatureTolerance  time.Duration
		GracePeriod         time.Duration
	}

	RateLimitConfig struct {
		Enabled  bool
		Window   time.Duration
		Login    int
		Password int
		Debrief  int
		Forum    int
		Webhook  int
	}
)

func (dc DatabaseConfig) Address() string {
	return net.JoinHostPort(dc.Host, dc.Port)
}

func (c *Config) IsInMemory() bool {
	return c.Database.Engine == "memory"
}

// NewConfig loads the configuration from the environment.
// Variables are prefixed with the current ENV, e.g. PROD_SECRET_KEY.
func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}

	setDefaults(v, env)
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(ProjectRoot(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Env:      env,
		Build:    v.GetString("build"),
		Debug:    v.GetBool("debug"),
		TestMode: v.GetBool("test_mode"),

		AppName:   v.GetString("app_name"),
		SecretKey: v.GetString("secret_key"),
		DefaultFromEmail: mail.Address{
			Name:    v.GetString("default_from_name"),
			Address: v.GetString("default_from_email"),
		},
		FrontendBaseURL:           strings.TrimRight(v.GetString("frontend_base_url"), "/"),
		PasswordResetTimeoutDelta: v.GetDuration("password_reset_timeout_delta"),
		RollbarToken:              v.GetString("rollbar_token"),
		SendgridAPIKey:            v.GetString("sendgrid_api_key"),

		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			Address:                   v.GetString("server.address"),
			DebugHost:                 v.GetString("server.debug_host"),
			ShutdownTimeout:           v.GetDuration("server.shutdown_timeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwt_expiration_delta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwt_refresh_expiration_delta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.admin_user"),
			AdminPassword: v.GetString("database.admin_password"),
			DisableTLS:    v.GetBool("database.disable_tls"),
		},
		Redis: RedisConfig{
			URL: v.GetString("redis.url"),
		},
		AI: AIConfig{
			APIKey:     v.GetString("ai.api_key"),
			Model:      v.GetString("ai.model"),
			MaxTokens:  v.GetInt("ai.max_tokens"),
			Timeout:    v.GetDuration("ai.timeout"),
			MaxRetries: v.GetInt("ai.max_retries"),
		},
		Billing: BillingConfig{
			PaddleWebhookSecret: v.GetString("billing.paddle_webhook_secret"),
			SignatureTolerance:  v.GetDuration("billing.signature_tolerance"),
			GracePeriod:         v.GetDuration("billing.grace_period"),
		},
		RateLimit: RateLimitConfig{
			Enabled:  v.GetBool("rate_limit.enabled"),
			Window:   v.GetDuration("rate_limit.window"),
			Login:    v.GetInt("rate_limit.login"),
			Password: v.GetInt("rate_limit.password"),
			Debrief:  v.GetInt("rate_limit.debrief"),
			Forum:    v.GetInt("rate_limit.forum"),
			Webhook:  v.GetInt("rate_limit.webhook"),
		},
	}
}

func setDefaults(v *viper.Viper, env string) {
	isTest := env == "TEST"

	v.SetDefault("build", "develop")
	v.SetDefault("debug", env == "DEV")
	v.SetDefault("test_mode", isTest)

	v.SetDefault("app_name", "Kiongozi")
	v.SetDefault("secret_key", "k1o-ng0z!_d3v(secret)*f8#q2l@m4zv^p%w7j+x0r&c9e=t5")
	v.SetDefault("default_from_name", "Kiongozi")
	v.SetDefault("default_from_email", "noreply@localhost")
	v.SetDefault("frontend_base_url", "http://localhost:3000")
	v.SetDefault("password_reset_timeout_delta", 3*24*time.Hour)

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", "0.0.0.0:8000")
	v.SetDefault("server.debug_host", "0.0.0.0:4000")
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.jwt_expiration_delta", 4*time.Hour)
	v.SetDefault("server.jwt_refresh_expiration_delta", 7*24*time.Hour)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "kiongozi")
	v.SetDefault("database.user", "kiongozi")
	v.SetDefault("database.password", "kiongozi")
	v.SetDefault("database.admin_user", "postgres")
	v.SetDefault("database.admin_password", "postgres")
	v.SetDefault("database.disable_tls", env == "DEV" || isTest)

	v.SetDefault("redis.url", "")

	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.model", "claude-sonnet-4-5")
	v.SetDefault("ai.max_tokens", 1024)
	v.SetDefault("ai.timeout", 60*time.Second)
	v.SetDefault("ai.max_retries", 3)

	v.SetDefault("billing.paddle_webhook_secret", "")
	v.SetDefault("billing.signature_tolerance", 5*time.Second)
	v.SetDefault("billing.grace_period", 7*24*time.Hour)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.window", time.Minute)
	v.SetDefault("rate_limit.login", 10)
	v.SetDefault("rate_limit.password", 5)
	v.SetDefault("rate_limit.debrief", 6)
	v.SetDefault("rate_limit.forum", 20)
	v.SetDefault("rate_limit.webhook", 120)
}
