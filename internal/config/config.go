package config // package config loads application configuration from environment variables

import (
	"log"  // log is used to report configuration errors and halt execution
	"os"   // os provides access to environment variables
	"time" // time expresses timeouts and batch windows
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable. The event store backend is selectable so the
// service can run fully in memory during development and tests, or on
// MySQL in production.
type Config struct {
	Env  string // application environment (e.g. "dev", "prod")
	Port string // HTTP port to listen on

	EventStore string // event store backend: "memory" or "mysql"
	DBUser     string // database username (mysql backend only)
	DBPass     string // database password (optional)
	DBHost     string // database host address
	DBPort     string // database port number
	DBName     string // database name

	JWTSecret    string // secret used to sign admin access tokens
	AdminKeyHash string // bcrypt hash of the admin key exchanged for tokens
	AccessTTLMin int    // access token time-to-live in minutes

	AskTimeout time.Duration // gateway request/reply deadline per call
	ShardCount int           // number of registry shards for entity routing

	ProjectionCommitBatch    int           // events per offset commit
	ProjectionCommitInterval time.Duration // max time between offset commits
	ProjectionRetryAttempts  int           // per-event attempts before stream restart
	ProjectionRetryBase      time.Duration // first per-event retry delay
	ProjectionRestartMin     time.Duration // lower bound of the restart backoff
	ProjectionRestartMax     time.Duration // upper bound of the restart backoff
}

// Load reads configuration values from environment variables and returns a
// Config. Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message. Database variables
// are only required when the MySQL event store is selected.
func Load() Config {
	cfg := Config{
		Env:        must("APP_ENV"),  // environment (dev/test/prod)
		Port:       must("APP_PORT"), // port to bind the HTTP server
		EventStore: getenv("EVENT_STORE", "memory"),

		JWTSecret:    must("JWT_SECRET"),     // secret used for signing JWTs
		AdminKeyHash: must("ADMIN_KEY_HASH"), // bcrypt hash of the admin key
		AccessTTLMin: envInt("ACCESS_TOKEN_TTL_MIN", 15),

		AskTimeout: time.Duration(envInt("ASK_TIMEOUT_MS", 500)) * time.Millisecond,
		ShardCount: envInt("SHARD_COUNT", 32),

		ProjectionCommitBatch:    envInt("PROJECTION_COMMIT_BATCH", 100),
		ProjectionCommitInterval: envDur("PROJECTION_COMMIT_INTERVAL", 500*time.Millisecond),
		ProjectionRetryAttempts:  envInt("PROJECTION_RETRY_ATTEMPTS", 4),
		ProjectionRetryBase:      envDur("PROJECTION_RETRY_BASE", 5*time.Second),
		ProjectionRestartMin:     envDur("PROJECTION_RESTART_MIN", 3*time.Second),
		ProjectionRestartMax:     envDur("PROJECTION_RESTART_MAX", 30*time.Second),
	}
	if cfg.EventStore == "mysql" {
		cfg.DBUser = must("DB_USER")      // database user
		cfg.DBPass = os.Getenv("DB_PASS") // database password (empty allowed)
		cfg.DBHost = must("DB_HOST")      // database host
		cfg.DBPort = must("DB_PORT")      // database port
		cfg.DBName = must("DB_NAME")      // database name
	}
	return cfg
}

// must retrieves the value of a required environment variable. If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}
