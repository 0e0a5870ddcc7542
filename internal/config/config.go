package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	LockAdvisory = "advisory"
	LockLocal    = "local"
	LockNone     = "none"
)

type Config struct {
	DatabaseURL    string `yaml:"database_url"`
	Driver         string `yaml:"driver"`
	User           string `yaml:"user"`
	LogLevel       string `yaml:"log_level"`
	LogFile        string `yaml:"log_file"`
	LockMode       string `yaml:"lock_mode"`
	HaltOnError    bool   `yaml:"halt_on_error"`
	PushgatewayURL string `yaml:"pushgateway_url"`
	APIPort        int    `yaml:"api_port"`
	NumReaders     int    `yaml:"num_readers"`
}

func defaults() *Config {
	return &Config{
		Driver:     DriverPostgres,
		User:       "SYS",
		LogLevel:   "INFO",
		LogFile:    "bigblue_logFiles/bigblue.log",
		APIPort:    8080,
		NumReaders: 4,
	}
}

// New builds the configuration from defaults, an optional YAML file named by
// STMDB_CONFIG, and finally the environment, which always wins.
func New() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("STMDB_CONFIG"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.Driver = getEnv("STMDB_DRIVER", cfg.Driver)
	cfg.User = getEnv("STMDB_USER", cfg.User)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = getEnv("LOG_FILE", cfg.LogFile)
	cfg.LockMode = getEnv("LOCK_MODE", cfg.LockMode)
	cfg.PushgatewayURL = getEnv("PUSHGATEWAY_URL", cfg.PushgatewayURL)

	var err error
	cfg.HaltOnError, err = getEnvAsBool("HALT_ON_ERROR", cfg.HaltOnError)
	if err != nil {
		return nil, err
	}

	cfg.APIPort, err = getEnvAsInt("API_PORT", cfg.APIPort)
	if err != nil {
		return nil, err
	}

	cfg.NumReaders, err = getEnvAsInt("NUM_READERS", cfg.NumReaders)
	if err != nil {
		return nil, err
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	if cfg.Driver != DriverPostgres && cfg.Driver != DriverSQLite {
		return nil, fmt.Errorf("invalid value for STMDB_DRIVER: expected %q or %q, got '%s'", DriverPostgres, DriverSQLite, cfg.Driver)
	}

	if cfg.LockMode == "" {
		cfg.LockMode = LockLocal
		if cfg.Driver == DriverPostgres {
			cfg.LockMode = LockAdvisory
		}
	}
	switch cfg.LockMode {
	case LockAdvisory, LockLocal, LockNone:
	default:
		return nil, fmt.Errorf("invalid value for LOCK_MODE: got '%s'", cfg.LockMode)
	}
	if cfg.LockMode == LockAdvisory && cfg.Driver != DriverPostgres {
		return nil, fmt.Errorf("LOCK_MODE %q requires the %q driver", LockAdvisory, DriverPostgres)
	}

	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func getEnv(key string, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: expected an integer, got '%s'", key, valueStr)
	}

	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) (bool, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return false, fmt.Errorf("invalid value for %s: expected a boolean, got '%s'", key, valueStr)
	}

	return value, nil
}
