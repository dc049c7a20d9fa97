package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Reservation limits live in Policy so that they
// can also be supplied from a YAML file.
type Config struct {
	Env               string        // application environment (e.g. "dev", "prod")
	Port              string        // HTTP port to listen on
	LogLevel          string        // debug, info, warn or error
	Store             string        // "mysql" or "memory"
	DBUser            string        // database username
	DBPass            string        // database password (optional)
	DBHost            string        // database host address
	DBPort            string        // database port number
	DBName            string        // database name
	DBMaxOpenConns    int           // connection pool size
	DBConnMaxLifetime time.Duration // recycle connections after this long
	JWTSecret         string        // secret used to sign session tokens
	SessionTTLHours   int           // session token lifetime in hours
	OperatorKeyHash   string        // bcrypt hash of the key guarding /v1/internal routes
	AMQPURL           string        // RabbitMQ URL; empty disables messaging
	SweepInterval     time.Duration // in-process sweeper period; 0 disables the loop
	Policy            Policy        // reservation and expiry limits
}

// LoadDotEnv reads KEY=VALUE pairs from path into the environment without
// overriding variables that are already set.  A missing file is not an
// error so that production can rely on the real environment only.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.  The database
// variables are only required when the MySQL store is selected.
func Load() Config {
	cfg := LoadWorker()
	cfg.JWTSecret = must("JWT_SECRET")
	return cfg
}

// LoadWorker is Load without the HTTP-only settings, for processes that
// never issue or verify session tokens.
func LoadWorker() Config {
	cfg := Config{
		Env:             envStr("APP_ENV", "dev"),
		Port:            envStr("APP_PORT", "8080"),
		LogLevel:        envStr("LOG_LEVEL", "info"),
		Store:           envStr("STORE", "mysql"),
		SessionTTLHours: envInt("SESSION_TTL_HOURS", 24),
		OperatorKeyHash: os.Getenv("OPERATOR_KEY_HASH"),
		AMQPURL:         os.Getenv("RABBITMQ_URL"),
		SweepInterval:   envDur("SWEEP_INTERVAL", time.Minute),
		Policy:          DefaultPolicy(),
	}
	if cfg.AMQPURL == "" {
		cfg.AMQPURL = os.Getenv("AMQP_URL")
	}
	if cfg.Store == "mysql" {
		cfg.DBUser = must("DB_USER")
		cfg.DBPass = os.Getenv("DB_PASS")
		cfg.DBHost = must("DB_HOST")
		cfg.DBPort = must("DB_PORT")
		cfg.DBName = must("DB_NAME")
		cfg.DBMaxOpenConns = envInt("DB_MAX_OPEN_CONNS", 25)
		cfg.DBConnMaxLifetime = envDur("DB_CONN_MAX_LIFETIME", 30*time.Minute)
	}
	return cfg
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}
