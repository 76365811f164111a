package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMongo    = "mongo"
	StoreDriverMemory   = "memory"
)

// Event backends.
const (
	EventsBackendNone     = "none"
	EventsBackendRabbitMQ = "rabbitmq"
	EventsBackendPubSub   = "pubsub"
)

// Object storage backends.
const (
	StorageBackendMinio = "minio"
	StorageBackendGCS   = "gcs"
	StorageBackendS3    = "s3"
)

type Config struct {
	ServerPort int    `validate:"gt=0,lt=65536"`
	LogLevel   string `validate:"oneof=debug info warn error"`
	JWTSecret  string `validate:"required,min=32"`

	StoreDriver string `validate:"oneof=postgres mongo memory"`
	Database    DatabaseConfig
	Mongo       MongoConfig

	EventsBackend string `validate:"oneof=none rabbitmq pubsub"`
	EventsChannel string `validate:"required"`
	RabbitMQ      RabbitMQConfig
	PubSub        PubSubConfig

	StorageBackend string `validate:"oneof=minio gcs s3"`
	Minio          MinioConfig
	GCS            GCSConfig
	S3             S3Config
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	UseSSL   bool
}

type MongoConfig struct {
	URI      string
	Database string
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

type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

var validate = validator.New()

// LoadConfig reads configuration from the environment. When ENV=dev a .env
// file in the working directory is loaded first.
func LoadConfig() (Config, error) {
	if os.Getenv("ENV") == "dev" {
		_ = godotenv.Load()
	}

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := Config{
		ServerPort: v.GetInt("server_port"),
		LogLevel:   strings.ToLower(strings.TrimSpace(v.GetString("log_level"))),
		JWTSecret:  strings.TrimSpace(v.GetString("jwt_secret")),

		StoreDriver: strings.ToLower(strings.TrimSpace(v.GetString("store_driver"))),
		Database: DatabaseConfig{
			Host:     v.GetString("db_host"),
			Port:     v.GetInt("db_port"),
			User:     v.GetString("db_user"),
			Password: v.GetString("db_password"),
			DBName:   v.GetString("db_name"),
			UseSSL:   v.GetBool("db_use_ssl"),
		},
		Mongo: MongoConfig{
			URI:      v.GetString("mongo_uri"),
			Database: v.GetString("mongo_database"),
		},

		EventsBackend: strings.ToLower(strings.TrimSpace(v.GetString("events_backend"))),
		EventsChannel: strings.TrimSpace(v.GetString("events_channel")),
		RabbitMQ: RabbitMQConfig{
			URL:             v.GetString("rabbitmq_url"),
			QueueDurable:    v.GetBool("rabbitmq_queue_durable"),
			QueueAutoDelete: v.GetBool("rabbitmq_queue_auto_delete"),
			PrefetchCount:   v.GetInt("rabbitmq_prefetch"),
		},
		PubSub: PubSubConfig{
			ProjectID:          v.GetString("pubsub_project_id"),
			CredentialsFile:    v.GetString("pubsub_credentials_file"),
			SubscriptionSuffix: v.GetString("pubsub_subscription_suffix"),
		},

		StorageBackend: strings.ToLower(strings.TrimSpace(v.GetString("storage_backend"))),
		Minio: MinioConfig{
			Endpoint:  v.GetString("minio_endpoint"),
			AccessKey: v.GetString("minio_access_key"),
			SecretKey: v.GetString("minio_secret_key"),
			Bucket:    v.GetString("minio_bucket"),
			UseSSL:    v.GetBool("minio_use_ssl"),
		},
		GCS: GCSConfig{
			Bucket:          v.GetString("gcs_bucket"),
			ProjectID:       v.GetString("gcs_project_id"),
			CredentialsFile: v.GetString("gcs_credentials_file"),
		},
		S3: S3Config{
			Bucket:    v.GetString("s3_bucket"),
			Region:    v.GetString("s3_region"),
			Endpoint:  v.GetString("s3_endpoint"),
			AccessKey: v.GetString("s3_access_key"),
			SecretKey: v.GetString("s3_secret_key"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints and backend-specific requirements.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid config: %s failed on %q", verrs[0].Field(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	switch c.StoreDriver {
	case StoreDriverMongo:
		if strings.TrimSpace(c.Mongo.URI) == "" || strings.TrimSpace(c.Mongo.Database) == "" {
			return errors.New("invalid config: MONGO_URI and MONGO_DATABASE are required for the mongo store")
		}
	case StoreDriverPostgres:
		if strings.TrimSpace(c.Database.Host) == "" || strings.TrimSpace(c.Database.DBName) == "" {
			return errors.New("invalid config: DB_HOST and DB_NAME are required for the postgres store")
		}
	}

	switch c.EventsBackend {
	case EventsBackendRabbitMQ:
		if strings.TrimSpace(c.RabbitMQ.URL) == "" {
			return errors.New("invalid config: RABBITMQ_URL is required for the rabbitmq events backend")
		}
	case EventsBackendPubSub:
		if strings.TrimSpace(c.PubSub.ProjectID) == "" {
			return errors.New("invalid config: PUBSUB_PROJECT_ID is required for the pubsub events backend")
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server_port", 8080)
	v.SetDefault("log_level", "info")

	v.SetDefault("store_driver", StoreDriverPostgres)
	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", 5432)
	v.SetDefault("db_user", "taskboard")
	v.SetDefault("db_password", "password")
	v.SetDefault("db_name", "taskboard_db")
	v.SetDefault("db_use_ssl", false)
	v.SetDefault("mongo_database", "taskboard")

	v.SetDefault("events_backend", EventsBackendNone)
	v.SetDefault("events_channel", "taskboard.events")
	v.SetDefault("rabbitmq_queue_durable", true)
	v.SetDefault("rabbitmq_prefetch", 10)
	v.SetDefault("pubsub_subscription_suffix", "-sub")

	v.SetDefault("storage_backend", StorageBackendMinio)
	v.SetDefault("minio_endpoint", "localhost:9000")
	v.SetDefault("minio_bucket", "taskboard-backups")
	v.SetDefault("s3_region", "us-east-1")
}
