package utils

import (
	"context"
	"time"

	"github.com/covid19cz/erouska-push/internal/logging"
	"github.com/sethvargo/go-envconfig"
)

// Config Configuration of the push backend.
type Config struct {
	LogLevel  string `env:"LOG_LEVEL,default=info"`
	Port      string `env:"PORT,default=8080"`
	ProjectID string `env:"PROJECT_ID"`

	// firestore, postgres or memory
	RegistryBackend           string `env:"REGISTRY_BACKEND,default=firestore" validate:"oneof=firestore postgres memory"`
	InvalidRegistrationPolicy string `env:"INVALID_REGISTRATION_POLICY,default=deactivate" validate:"oneof=deactivate delete"`

	PostgresAddr             string        `env:"POSTGRES_ADDR,default=localhost:5432"`
	PostgresDatabaseSecret   string        `env:"POSTGRES_DATABASE_SECRET,default=push-database-name"`
	PostgresUserSecret       string        `env:"POSTGRES_USER_SECRET,default=push-database-login"`
	PostgresPasswordSecret   string        `env:"POSTGRES_PASSWORD_SECRET,default=push-database-password"`
	CloudSQLConnectionSecret string        `env:"CLOUDSQL_CONNECTION_SECRET"`
	FirebaseDatabaseURL      string        `env:"FIREBASE_URL"`
	ReportTopic              string        `env:"REPORT_TOPIC"`
	RedisAddr                string        `env:"PUSH_REDIS_ADDR"`
	RedisDB                  int           `env:"PUSH_REDIS_DB,default=0"`
	ExpiredLogTTL            time.Duration `env:"EXPIRED_LOG_TTL,default=720h"`
	ReconcileLockExpiry      time.Duration `env:"RECONCILE_LOCK_EXPIRY,default=10m"`
	ReconcileRetryAttempts   uint          `env:"RECONCILE_RETRY_ATTEMPTS,default=3"`
	ReconcileRetryDelay      time.Duration `env:"RECONCILE_RETRY_DELAY,default=100ms"`
	DispatchMaxConcurrency   int           `env:"DISPATCH_MAX_CONCURRENCY,default=8" validate:"min=1"`

	// fcm (Firebase Admin SDK) or legacy (GCM HTTP endpoint)
	GCMTransport          string `env:"GCM_TRANSPORT,default=fcm" validate:"oneof=fcm legacy none"`
	GCMBatchSize          int    `env:"GCM_BATCH_SIZE,default=500" validate:"min=1,max=1000"`
	GCMLegacyEndpoint     string `env:"GCM_LEGACY_ENDPOINT,default=https://fcm.googleapis.com/fcm/send"`
	GCMServerKeySecret    string `env:"GCM_SERVER_KEY_SECRET,default=push-gcm-server-key"`
	GCMMaxThrottleRetries int    `env:"GCM_MAX_THROTTLE_RETRIES,default=5"`

	APNSBatchSize   int    `env:"APNS_BATCH_SIZE,default=100" validate:"min=1"`
	APNSConcurrency int    `env:"APNS_CONCURRENCY,default=16" validate:"min=1"`
	APNSKeyID       string `env:"APNS_KEY_ID"`
	APNSTeamID      string `env:"APNS_TEAM_ID"`
	// environment without a topic has no gateway
	APNSDebugTopic string `env:"APNS_DEBUG_TOPIC"`
	APNSBetaTopic  string `env:"APNS_BETA_TOPIC"`
	APNSProdTopic  string `env:"APNS_PROD_TOPIC"`
	// secret name pattern, %v is replaced by lower-cased environment
	APNSKeySecretPattern string `env:"APNS_KEY_SECRET_PATTERN,default=push-apns-%v-key"`

	APIKeySecret string `env:"API_KEY_SECRET,default=push-apikey"`
}

// APNSTopics Topics of APNS environments that have one set.
func (c *Config) APNSTopics() map[string]string {
	topics := make(map[string]string)
	for env, topic := range map[string]string{"DEBUG": c.APNSDebugTopic, "BETA": c.APNSBetaTopic, "PROD": c.APNSProdTopic} {
		if topic != "" {
			topics[env] = topic
		}
	}
	return topics
}

// LoadConfig Load config from environment and validate it.
func LoadConfig(ctx context.Context) (*Config, error) {
	return LoadConfigFrom(ctx, envconfig.OsLookuper())
}

// LoadConfigFrom Load config using given lookuper.
func LoadConfigFrom(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	logger := logging.FromContext(ctx).Named("utils.LoadConfig")

	var config Config
	if err := envconfig.ProcessWith(ctx, &config, lookuper); err != nil {
		logger.Debugf("Could not load Config: %v", err)
		return nil, err
	}

	if err := Validate.Struct(&config); err != nil {
		logger.Debugf("Invalid Config: %v", err)
		return nil, err
	}

	return &config, nil
}
