package config

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/vault-client-go"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var v = viper.New()

// PlanOverride lets an operator change quota defaults or pricing for a
// single plan without a rebuild. Zero fields fall back to the catalog.
type PlanOverride struct {
	MaxUsers         int     `mapstructure:"MAX_USERS"`
	MaxBranches      int     `mapstructure:"MAX_BRANCHES"`
	StorageLimitMB   int64   `mapstructure:"STORAGE_LIMIT_MB"`
	APICallLimit     int64   `mapstructure:"API_CALL_LIMIT"`
	IntegrationLimit int     `mapstructure:"INTEGRATION_LIMIT"`
	Price            float64 `mapstructure:"PRICE"`
}

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	TLS        struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Otel struct {
		Enable bool   `mapstructure:"ENABLE"`
		Addr   string `mapstructure:"ADDR"`
	} `mapstructure:"OTEL"`
	Pyroscope struct {
		Enable bool   `mapstructure:"ENABLE"`
		Addr   string `mapstructure:"ADDR"`
	} `mapstructure:"PYROSCOPE"`
	Metrics struct {
		Enable bool `mapstructure:"ENABLE"`
		Port   int  `mapstructure:"PORT"`
	} `mapstructure:"METRICS"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	SMTP struct {
		Host     string `mapstructure:"HOST"`
		Port     int    `mapstructure:"PORT"`
		User     string `mapstructure:"USER"`
		Password string `mapstructure:"PASSWORD"`
		From     string `mapstructure:"FROM"`
	} `mapstructure:"SMTP"`
	ObjectStore struct {
		Endpoint   string `mapstructure:"ENDPOINT"`
		AccessKey  string `mapstructure:"ACCESS_KEY"`
		SecretKey  string `mapstructure:"SECRET_KEY"`
		Secure     bool   `mapstructure:"SECURE"`
		BucketName string `mapstructure:"BUCKET_NAME"`
	} `mapstructure:"OBJECT_STORE"`
	Licensing struct {
		GracePeriodDays     int                     `mapstructure:"GRACE_PERIOD_DAYS"`
		RenewalWindowDays   int                     `mapstructure:"RENEWAL_WINDOW_DAYS"`
		RenewalTermDays     int                     `mapstructure:"RENEWAL_TERM_DAYS"`
		AlertThreshold      float64                 `mapstructure:"ALERT_THRESHOLD"`
		MaxTransferAttempts int                     `mapstructure:"MAX_TRANSFER_ATTEMPTS"`
		ValidationCacheTTL  time.Duration           `mapstructure:"VALIDATION_CACHE_TTL"`
		PlanOverrides       map[string]PlanOverride `mapstructure:"PLAN_OVERRIDES"`
	} `mapstructure:"LICENSING"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

type Params struct {
	fx.In
	Vault *vault.Client `optional:"true"`
}

func setDefaults() {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "licenseplane")
	v.SetDefault("HTTP_SERVER.ADDR", "8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", time.Minute)
	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("DATABASE.SSLMODE", "disable")
	v.SetDefault("LICENSING.GRACE_PERIOD_DAYS", 15)
	v.SetDefault("LICENSING.RENEWAL_WINDOW_DAYS", 30)
	v.SetDefault("LICENSING.RENEWAL_TERM_DAYS", 365)
	v.SetDefault("LICENSING.ALERT_THRESHOLD", 80)
	v.SetDefault("LICENSING.MAX_TRANSFER_ATTEMPTS", 3)
	v.SetDefault("LICENSING.VALIDATION_CACHE_TTL", time.Minute)
}

func LoadConfig(p Params) *Config {
	setDefaults()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			zap.L().Error("failed to read config file", zap.Error(err))
			os.Exit(1)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		zap.L().Error("failed to unmarshal config", zap.Error(err))
		os.Exit(1)
	}

	if p.Vault != nil {
		applySecrets(p.Vault, &cfg)
	}

	return &cfg
}

// applySecrets overlays credentials from Vault kv2 on top of the file/env
// config. Missing keys leave the existing values untouched.
func applySecrets(client *vault.Client, cfg *Config) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	secret, err := client.Secrets.KvV2Read(ctx, cfg.AppEnv, vault.WithMountPath("secret"))
	if err != nil {
		zap.L().Error("failed to read secrets from vault", zap.Error(err))
		os.Exit(1)
	}

	get := func(key, fallback string) string {
		if val, ok := secret.Data.Data[key].(string); ok && val != "" {
			return val
		}
		return fallback
	}

	cfg.Database.User = get("postgres_user", cfg.Database.User)
	cfg.Database.Password = get("postgres_password", cfg.Database.Password)
	cfg.Redis.Password = get("redis_password", cfg.Redis.Password)
	cfg.SMTP.User = get("smtp_user", cfg.SMTP.User)
	cfg.SMTP.Password = get("smtp_password", cfg.SMTP.Password)
	cfg.ObjectStore.AccessKey = get("objstore_access_key", cfg.ObjectStore.AccessKey)
	cfg.ObjectStore.SecretKey = get("objstore_secret_key", cfg.ObjectStore.SecretKey)
}
