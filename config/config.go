package config

import (
	"errors"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Scheduler SchedulerConfig
	Notify    NotifyConfig
}

type AppConfig struct {
	Port       string
	Env        string
	LogLevel   string
	Timezone   string
	CORSOrigin string
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret       string
	Issuer       string
	AccessExpiry time.Duration
}

type SchedulerConfig struct {
	SlotLockTTL           time.Duration
	SlotLockWait          time.Duration
	DelayLookbackDays     int
	SurgeonDelayThreshold int
	RoomDelayThreshold    int
}

type NotifyConfig struct {
	RedisChannel   string
	WebhookURL     string
	WebhookTimeout time.Duration
}

// LoadConfig reads .env from the working directory, falling back to the
// process environment when the file is absent.
func LoadConfig() (*Config, error) {
	return LoadConfigFile(".env")
}

func LoadConfigFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	config := &Config{
		App: AppConfig{
			Port:       v.GetString("APP_PORT"),
			Env:        v.GetString("APP_ENV"),
			LogLevel:   v.GetString("LOG_LEVEL"),
			Timezone:   v.GetString("APP_TIMEZONE"),
			CORSOrigin: v.GetString("CORS_ALLOW_ORIGIN"),
		},
		DB: DBConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			Name:     v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		JWT: JWTConfig{
			Secret:       v.GetString("JWT_SECRET"),
			Issuer:       v.GetString("JWT_ISSUER"),
			AccessExpiry: duration(v, "JWT_ACCESS_EXPIRY", 15*time.Minute),
		},
		Scheduler: SchedulerConfig{
			SlotLockTTL:           duration(v, "SCHEDULER_SLOT_LOCK_TTL", 15*time.Second),
			SlotLockWait:          duration(v, "SCHEDULER_SLOT_LOCK_WAIT", 3*time.Second),
			DelayLookbackDays:     v.GetInt("SCHEDULER_DELAY_LOOKBACK_DAYS"),
			SurgeonDelayThreshold: v.GetInt("SCHEDULER_SURGEON_DELAY_THRESHOLD"),
			RoomDelayThreshold:    v.GetInt("SCHEDULER_ROOM_DELAY_THRESHOLD"),
		},
		Notify: NotifyConfig{
			RedisChannel:   v.GetString("NOTIFY_REDIS_CHANNEL"),
			WebhookURL:     v.GetString("NOTIFY_WEBHOOK_URL"),
			WebhookTimeout: duration(v, "NOTIFY_WEBHOOK_TIMEOUT", 5*time.Second),
		},
	}

	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("APP_TIMEZONE", "Local")
	v.SetDefault("CORS_ALLOW_ORIGIN", "*")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("JWT_ISSUER", "or-scheduler")
	v.SetDefault("SCHEDULER_DELAY_LOOKBACK_DAYS", 30)
	v.SetDefault("SCHEDULER_SURGEON_DELAY_THRESHOLD", 3)
	v.SetDefault("SCHEDULER_ROOM_DELAY_THRESHOLD", 5)
	v.SetDefault("NOTIFY_REDIS_CHANNEL", "or-scheduler:events")
}

// duration parses a Go duration string, using fallback when unset or malformed.
func duration(v *viper.Viper, key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Location resolves the configured timezone used for shift windows and weeks.
func (c AppConfig) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}
