package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var config = viper.New()

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	TLS        struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
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
			MaxOpenConn     int           `mapstructure:"MAX_OPEN_CONN"`
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
	AccessControl struct {
		Model  string `mapstructure:"MODEL"`
		Policy string `mapstructure:"POLICY"`
	} `mapstructure:"ACCESS_CONTROL"`
	Engine Engine `mapstructure:"ENGINE"`
}

// Engine holds the economy tuning knobs. Prices and reward amounts are
// decimal strings in token base units so they survive 64-bit overflow.
type Engine struct {
	InitialPrice        string        `mapstructure:"INITIAL_PRICE"`
	PriceMultiplier     string        `mapstructure:"PRICE_MULTIPLIER"`
	ReferralDiscountBps int64         `mapstructure:"REFERRAL_DISCOUNT_BPS"`
	LevelThreshold      int64         `mapstructure:"LEVEL_THRESHOLD"`
	EngagementBase      string        `mapstructure:"ENGAGEMENT_BASE"`
	EngagementCooldown  time.Duration `mapstructure:"ENGAGEMENT_COOLDOWN"`
	WeeklyInterval      time.Duration `mapstructure:"WEEKLY_INTERVAL"`
	WeeklyBonusBase     string        `mapstructure:"WEEKLY_BONUS_BASE"`
	PurchaseChiefBonus  string        `mapstructure:"PURCHASE_CHIEF_BONUS"`
	ChiefBonusBps       int64         `mapstructure:"CHIEF_BONUS_BPS"`
	ChiefMinBalance     string        `mapstructure:"CHIEF_MIN_BALANCE"`
	ChiefMinLevel       int64         `mapstructure:"CHIEF_MIN_LEVEL"`
	EscrowAccount       string        `mapstructure:"ESCROW_ACCOUNT"`
	TreasuryAccount     string        `mapstructure:"TREASURY_ACCOUNT"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

func LoadConfig() *Config {
	config.SetConfigName("config")
	config.SetConfigType("yaml")
	config.AddConfigPath(".")

	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()

	setEngineDefaults(config)

	if err := config.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			zap.L().Error("failed to read config file", zap.Error(err))
		}
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		zap.L().Error("failed to unmarshal config", zap.Error(err))
	}

	return &cfg
}

func setEngineDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "incentive-controlplane")
	v.SetDefault("HTTP_SERVER.ADDR", "8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("DATABASE.TYPE", "sqlite")
	v.SetDefault("REDIS.ADDR", "127.0.0.1:6379")

	v.SetDefault("ENGINE.INITIAL_PRICE", "300000000000000")
	v.SetDefault("ENGINE.PRICE_MULTIPLIER", "1.05")
	v.SetDefault("ENGINE.REFERRAL_DISCOUNT_BPS", 1_000)
	v.SetDefault("ENGINE.LEVEL_THRESHOLD", 10)
	v.SetDefault("ENGINE.ENGAGEMENT_BASE", "10000000000000")
	v.SetDefault("ENGINE.ENGAGEMENT_COOLDOWN", 24*time.Hour)
	v.SetDefault("ENGINE.WEEKLY_INTERVAL", 7*24*time.Hour)
	v.SetDefault("ENGINE.WEEKLY_BONUS_BASE", "50000000000000")
	v.SetDefault("ENGINE.PURCHASE_CHIEF_BONUS", "5000000000000")
	v.SetDefault("ENGINE.CHIEF_BONUS_BPS", 500)
	v.SetDefault("ENGINE.CHIEF_MIN_BALANCE", "1000000000000000")
	v.SetDefault("ENGINE.CHIEF_MIN_LEVEL", 5)
	v.SetDefault("ENGINE.ESCROW_ACCOUNT", "sys:escrow")
	v.SetDefault("ENGINE.TREASURY_ACCOUNT", "sys:treasury")
}
