package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendMemory  = "memory"
	BackendFile    = "file"
	BackendSQLite  = "sqlite"
	BackendCouchDB = "couchdb"
)

type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Auth      AuthConfig
	WebSocket WebSocketConfig
	CORS      CORSConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	Env             string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type StoreConfig struct {
	Backend    string
	NotesDir   string
	SQLitePath string
	CouchDB    CouchDBConfig
}

type CouchDBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

// URL returns the CouchDB endpoint with credentials embedded.
func (c CouchDBConfig) URL() string {
	return fmt.Sprintf("http://%s:%s@%s:%s", c.User, c.Password, c.Host, c.Port)
}

type AuthConfig struct {
	Username               string
	Password               string
	JWTSecret              string
	Expiration             time.Duration
	RefreshTokenExpiration time.Duration
}

type WebSocketConfig struct {
	Enabled         bool
	ReadBufferSize  int
	WriteBufferSize int
	MaxMessageSize  int64
	WriteWait       time.Duration
	PongWait        time.Duration
	PingPeriod      time.Duration
	MaxConnPerUser  int
}

type CORSConfig struct {
	AllowedOrigins string
	AllowedMethods string
	AllowedHeaders string
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	godotenv.Load()

	var errs []string
	duration := func(key, def string) time.Duration {
		d, err := getEnvAsDuration(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return d
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8000"),
			Host:            getEnv("HOST", "0.0.0.0"),
			Env:             getEnv("ENV", "development"),
			ReadTimeout:     duration("SERVER_READ_TIMEOUT", "15s"),
			WriteTimeout:    duration("SERVER_WRITE_TIMEOUT", "15s"),
			IdleTimeout:     duration("SERVER_IDLE_TIMEOUT", "60s"),
			ShutdownTimeout: duration("SERVER_SHUTDOWN_TIMEOUT", "30s"),
		},
		Store: StoreConfig{
			Backend:    strings.ToLower(getEnv("STORE_BACKEND", BackendFile)),
			NotesDir:   getEnv("NOTES_DIR", "notes"),
			SQLitePath: getEnv("SQLITE_PATH", "notes.db"),
			CouchDB: CouchDBConfig{
				Host:     getEnv("COUCHDB_HOST", "localhost"),
				Port:     getEnv("COUCHDB_PORT", "5984"),
				User:     getEnv("COUCHDB_USER", "admin"),
				Password: getEnv("COUCHDB_PASSWORD", "password"),
				Name:     getEnv("COUCHDB_NAME", "notes"),
			},
		},
		Auth: AuthConfig{
			Username:               getEnv("NOTES_USERNAME", "admin"),
			Password:               getEnv("NOTES_PASSWORD", "changeme"),
			JWTSecret:              getEnv("JWT_SECRET", getEnv("NOTES_SECRET_KEY", "change-this-secret-key-in-production")),
			Expiration:             duration("JWT_EXPIRATION", "720h"),
			RefreshTokenExpiration: duration("REFRESH_TOKEN_EXPIRATION", "2160h"),
		},
		WebSocket: WebSocketConfig{
			Enabled:         getEnvAsBool("WS_ENABLED", true),
			ReadBufferSize:  getEnvAsInt("WS_READ_BUFFER_SIZE", 4096),
			WriteBufferSize: getEnvAsInt("WS_WRITE_BUFFER_SIZE", 4096),
			MaxMessageSize:  int64(getEnvAsInt("WS_MAX_MESSAGE_SIZE", 10485760)),
			WriteWait:       duration("WS_WRITE_WAIT", "10s"),
			PongWait:        duration("WS_PONG_WAIT", "60s"),
			PingPeriod:      duration("WS_PING_PERIOD", "54s"),
			MaxConnPerUser:  getEnvAsInt("WS_MAX_CONN_PER_USER", 5),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			AllowedMethods: getEnv("CORS_ALLOWED_METHODS", "GET,POST,PUT,DELETE,OPTIONS"),
			AllowedHeaders: getEnv("CORS_ALLOWED_HEADERS", "Content-Type,Authorization,X-Device-ID"),
		},
		Logging: LoggingConfig{
			Level:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "text")),
		},
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendFile, BackendSQLite, BackendCouchDB:
	default:
		return fmt.Errorf("invalid STORE_BACKEND %q: want memory, file, sqlite or couchdb", c.Store.Backend)
	}

	if c.Auth.Username == "" {
		return fmt.Errorf("NOTES_USERNAME must not be empty")
	}
	if c.Auth.Expiration <= 0 || c.Auth.RefreshTokenExpiration <= 0 {
		return fmt.Errorf("token expirations must be positive")
	}
	if c.WebSocket.PingPeriod >= c.WebSocket.PongWait {
		return fmt.Errorf("WS_PING_PERIOD (%s) must be shorter than WS_PONG_WAIT (%s)", c.WebSocket.PingPeriod, c.WebSocket.PongWait)
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid LOG_FORMAT %q: want text or json", c.Logging.Format)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key, defaultValue string) (time.Duration, error) {
	raw := getEnv(key, defaultValue)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
