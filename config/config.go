package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config aggregates all deployment settings. Values come from the
// environment; a .env file is honored in dev.
type Config struct {
	// ServerPort is the HTTP listen port for the login API.
	ServerPort int
	// ProtocolPort is the TCP listen port for the native framed protocol.
	ProtocolPort int

	// AssistantURL is the base URL of the response pipeline service.
	// Empty means no pipeline is attached.
	AssistantURL string

	Database DatabaseConfig
	Auth     AuthConfig
	Bridge   BridgeConfig
	Audit    AuditConfig
	RabbitMQ RabbitMQConfig
	PubSub   PubSubConfig
	Minio    MinioConfig
	GCS      GCSConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	UseSSL   bool
}

// AuthConfig controls the trust layer.
type AuthConfig struct {
	// JWTSecret signs all tokens. Required whenever Required is true.
	JWTSecret string
	// Required disables the authentication handshake when false. This is
	// a deliberate backward-compatibility escape hatch; the server logs a
	// warning at startup and grants every connection a synthetic
	// all-permission context.
	Required bool
	// HandshakeTimeoutSeconds bounds the wait for the auth-request frame.
	HandshakeTimeoutSeconds int
}

// BridgeConfig controls the WebSocket bridge.
type BridgeConfig struct {
	// ListenPort is the WebSocket listen port.
	ListenPort int
	// BackendAddr is the host:port of the native TCP server.
	BackendAddr string
}

// AuditConfig selects the audit event pipeline backends. Empty backends
// disable the corresponding stage.
type AuditConfig struct {
	// QueueBackend is "rabbitmq", "pubsub", or "" (disabled).
	QueueBackend string
	// Queue is the queue/topic name audit events are published to.
	Queue string
	// ArchiveBackend is "minio", "gcs", or "" (disabled).
	ArchiveBackend string
}

type RabbitMQConfig struct {
	URL             string
	QueueDurable    bool
	QueueAutoDelete bool
	PrefetchCount   int
}

type PubSubConfig struct {
	ProjectID          string
	CredentialsFile    string
	SubscriptionSuffix string
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type GCSConfig struct {
	Bucket          string
	ProjectID       string
	CredentialsFile string
}

func LoadConfig() Config {
	if os.Getenv("ENV") == "dev" {
		godotenv.Load()
	}

	return Config{
		ServerPort:   getEnvInt("SERVER_PORT", 8080),
		ProtocolPort: getEnvInt("PROTOCOL_PORT", 5555),
		AssistantURL: getEnv("ASSISTANT_URL", ""),
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "gateway"),
			Password: getEnv("DB_PASSWORD", "password"),
			DBName:   getEnv("DB_NAME", "gateway_db"),
			UseSSL:   getEnvBool("DB_USE_SSL", false),
		},
		Auth: AuthConfig{
			JWTSecret:               strings.TrimSpace(os.Getenv("JWT_SECRET")),
			Required:                getEnvBool("AUTH_REQUIRED", true),
			HandshakeTimeoutSeconds: getEnvInt("AUTH_HANDSHAKE_TIMEOUT_SECONDS", 10),
		},
		Bridge: BridgeConfig{
			ListenPort:  getEnvInt("BRIDGE_PORT", 8765),
			BackendAddr: getEnv("BRIDGE_BACKEND_ADDR", "localhost:5555"),
		},
		Audit: AuditConfig{
			QueueBackend:   getEnv("AUDIT_QUEUE_BACKEND", ""),
			Queue:          getEnv("AUDIT_QUEUE", "gateway-audit"),
			ArchiveBackend: getEnv("AUDIT_ARCHIVE_BACKEND", ""),
		},
		RabbitMQ: RabbitMQConfig{
			URL:             getEnv("RABBITMQ_URL", ""),
			QueueDurable:    getEnvBool("RABBITMQ_QUEUE_DURABLE", true),
			QueueAutoDelete: getEnvBool("RABBITMQ_QUEUE_AUTO_DELETE", false),
			PrefetchCount:   getEnvInt("RABBITMQ_PREFETCH_COUNT", 0),
		},
		PubSub: PubSubConfig{
			ProjectID:          getEnv("PUBSUB_PROJECT_ID", ""),
			CredentialsFile:    getEnv("PUBSUB_CREDENTIALS_FILE", ""),
			SubscriptionSuffix: getEnv("PUBSUB_SUBSCRIPTION_SUFFIX", "-sub"),
		},
		Minio: MinioConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "gateway-audit"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		GCS: GCSConfig{
			Bucket:          getEnv("GCS_BUCKET", ""),
			ProjectID:       getEnv("GCS_PROJECT_ID", ""),
			CredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		var value int
		fmt.Sscanf(valueStr, "%d", &value)
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		switch strings.ToLower(strings.TrimSpace(valueStr)) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return defaultValue
}
