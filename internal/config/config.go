package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	NewRelic NewRelicConfig
	Monitor  MonitorConfig
	Sweep    SweepConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// MonitorConfig holds the trip lifecycle monitor's timing parameters.
type MonitorConfig struct {
	// DepartingLead is how long before departure the trip moves from
	// SCHEDULED to DEPARTING.
	DepartingLead time.Duration

	// ArrivingPeriod is how long after arrival the trip stays in
	// ARRIVING before the validation window opens.
	ArrivingPeriod time.Duration

	// ValidationInterval is the spacing of validation reminders. The
	// validation window is ValidationInterval * (1 + MaxReminders).
	ValidationInterval time.Duration

	// MaxReminders bounds the number of validation reminders sent.
	MaxReminders int
}

// SweepConfig holds the recovery sweep and timer dispatch parameters.
type SweepConfig struct {
	// Interval is how often the recovery sweep runs.
	Interval time.Duration

	// Lookahead is how far past now the sweep scans for imminent
	// departures.
	Lookahead time.Duration

	// TimerPoll is the timer dispatcher's polling interval.
	TimerPoll time.Duration

	// LockTTL bounds how long the sweep's single-flight lock is held.
	LockTTL time.Duration
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "voyage"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		NewRelic: NewRelicConfig{
			AppName:    getEnv("NEW_RELIC_APP_NAME", "voyage-trip-service"),
			LicenseKey: getEnv("NEW_RELIC_LICENSE_KEY", ""),
			Enabled:    getBoolEnv("NEW_RELIC_ENABLED", false),
		},
		Monitor: MonitorConfig{
			DepartingLead:      getDurationEnv("MONITOR_DEPARTING_LEAD", 30*time.Minute),
			ArrivingPeriod:     getDurationEnv("MONITOR_ARRIVING_PERIOD", 15*time.Minute),
			ValidationInterval: getDurationEnv("MONITOR_VALIDATION_INTERVAL", 48*time.Hour),
			MaxReminders:       getIntEnv("MONITOR_MAX_REMINDERS", 2),
		},
		Sweep: SweepConfig{
			Interval:  getDurationEnv("SWEEP_INTERVAL", time.Minute),
			Lookahead: getDurationEnv("SWEEP_LOOKAHEAD", time.Hour),
			TimerPoll: getDurationEnv("TIMER_POLL_INTERVAL", 5*time.Second),
			LockTTL:   getDurationEnv("SWEEP_LOCK_TTL", 5*time.Minute),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
