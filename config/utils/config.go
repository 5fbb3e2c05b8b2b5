// Package config loads the scheduler's configuration from config.yaml and
// the environment. It covers the app identity, logger, database, cache,
// broker, HTTP surface and the scheduling knobs themselves.
package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

type (
	AppConfig struct {
		App        *App        `mapstructure:"app"`
		Redis      *Redis      `mapstructure:"redis"`
		Logger     *Logger     `mapstructure:"logger"`
		DB         *DB         `mapstructure:"db"`
		AMQP       *AMQP       `mapstructure:"amqp"`
		HTTP       *HTTP       `mapstructure:"http"`
		Scheduling *Scheduling `mapstructure:"scheduling"`
		Materials  *Materials  `mapstructure:"materials"`
	}

	// App contains the application identity
	App struct {
		Name  string `mapstructure:"name"`
		Env   string `mapstructure:"env"`
		Owner string `mapstructure:"owner"`
	}

	// Redis contains all the environment variables for the cache service
	Redis struct {
		Host     string `mapstructure:"host"`
		Port     string `mapstructure:"port"`
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
	}

	// DB contains all the environment variables for the database
	DB struct {
		Connection string `mapstructure:"connection"`
		Host       string `mapstructure:"host"`
		Port       string `mapstructure:"port"`
		User       string `mapstructure:"user"`
		Password   string `mapstructure:"password"`
		Name       string `mapstructure:"name"`
	}

	// AMQP contains the broker connection settings
	AMQP struct {
		URL string `mapstructure:"url"`
	}

	// HTTP contains the API listener settings
	HTTP struct {
		Addr string `mapstructure:"addr"`
	}

	// Scheduling contains the engine knobs
	Scheduling struct {
		Strategy        string `mapstructure:"strategy"`
		IntervalSeconds int    `mapstructure:"intervalSeconds"`
		ApprovalPolicy  string `mapstructure:"approvalPolicy"`
		StatusFile      string `mapstructure:"statusFile"`
	}

	// Materials contains the stock thresholds and optional changeover
	// overrides keyed "FROM->TO"
	Materials struct {
		LowStockThreshold      int            `mapstructure:"lowStockThreshold"`
		CriticalStockThreshold int            `mapstructure:"criticalStockThreshold"`
		ChangeCosts            map[string]int `mapstructure:"changeCosts"`
	}

	// Logger contains all the environment variables for the logger
	Logger struct {
		Level             string                `mapstructure:"level"`
		Development       bool                  `mapstructure:"development"`
		DisableStacktrace bool                  `mapstructure:"disableStacktrace"`
		Encoding          string                `mapstructure:"encoding"`
		EncoderConfig     zapcore.EncoderConfig `mapstructure:"encoderConfig"`
	}
)

// addZapEncoderConfig fills encoder config with zapcore types
func addZapEncoderConfig(cfg *zapcore.EncoderConfig) {
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeDuration = zapcore.SecondsDurationEncoder
	cfg.EncodeCaller = zapcore.ShortCallerEncoder
	cfg.EncodeName = func(s string, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString("[" + s + "]")
	}
}

// New creates a new AppConfig instance
func New() *AppConfig {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/secrets/")

	viper.AutomaticEnv()
	viper.SetEnvPrefix("env")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Fatalf("config file not found: %v", err)
		} else {
			log.Fatalf("error reading config file: %v", err)
		}
	}

	if err := viper.BindEnv("app.name", "APP_NAME"); err != nil {
		log.Fatalf("error finding APP_NAME env variable")
	}

	// Bind DB variables
	viper.BindEnv("db.host", "PG_HOST")
	viper.BindEnv("db.port", "PG_PORT")
	viper.BindEnv("db.user", "PG_USER")
	viper.BindEnv("db.password", "PG_PASS")
	viper.BindEnv("db.name", "PG_DB")

	// Bind Redis variables
	viper.BindEnv("redis.addr", "REDIS_ADDR")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")

	// Bind broker and HTTP variables
	viper.BindEnv("amqp.url", "AMQP_URL")
	viper.BindEnv("http.addr", "HTTP_ADDR")

	// Bind scheduling variables
	viper.BindEnv("scheduling.strategy", "SCHED_STRATEGY")
	viper.BindEnv("scheduling.statusFile", "SCHED_STATUS_FILE")

	var config *AppConfig
	if err := viper.Unmarshal(&config); err != nil {
		log.Fatalf("unable to decode into struct: %v", err)
	}
	addZapEncoderConfig(&config.Logger.EncoderConfig)

	return config
}
