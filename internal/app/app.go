package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/covid19cz/erouska-push/internal/counters"
	"github.com/covid19cz/erouska-push/internal/feedback"
	"github.com/covid19cz/erouska-push/internal/firebase"
	"github.com/covid19cz/erouska-push/internal/logging"
	"github.com/covid19cz/erouska-push/internal/pubsub"
	"github.com/covid19cz/erouska-push/internal/push"
	"github.com/covid19cz/erouska-push/internal/redismutex"
	"github.com/covid19cz/erouska-push/internal/registry"
	"github.com/covid19cz/erouska-push/internal/secrets"
	"github.com/covid19cz/erouska-push/internal/transport/apns"
	"github.com/covid19cz/erouska-push/internal/transport/fcm"
	"github.com/covid19cz/erouska-push/internal/transport/gcm"
	"github.com/covid19cz/erouska-push/internal/utils"
	errs "github.com/covid19cz/erouska-push/internal/utils/errors"
	httputils "github.com/covid19cz/erouska-push/internal/utils/http"
	"go.opencensus.io/plugin/ochttp"
)

//App Wired push backend.
type App struct {
	Config   *utils.Config
	Sender   *push.Sender
	Registry push.Registry
	Secrets  secrets.Manager

	closers []func() error
}

//Close Releases all connections.
func (a *App) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

//New Builds the app from config: registry backend, transports, reconciler and sender.
func New(ctx context.Context, config *utils.Config) (*App, error) {
	logger := logging.FromContext(ctx).Named("app.New")

	a := &App{Config: config}

	secretClient, err := secrets.NewClient(ctx, config.ProjectID)
	if err != nil {
		return nil, err
	}
	a.Secrets = secretClient
	a.closers = append(a.closers, secretClient.Close)

	if err := a.wire(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}

	logger.Infof("Push backend ready: registry=%v gcm=%v apns=%v", config.RegistryBackend, config.GCMTransport, keys(config.APNSTopics()))

	return a, nil
}

//NewWith Builds the app over given registry and secrets; used by tools and local runs.
func NewWith(ctx context.Context, config *utils.Config, reg push.Registry, secretManager secrets.Manager) (*App, error) {
	a := &App{Config: config, Registry: reg, Secrets: secretManager}
	if err := a.wire(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	config := a.Config

	if err := checkLimits(config); err != nil {
		return err
	}

	policy, err := push.ParsePolicy(config.InvalidRegistrationPolicy)
	if err != nil {
		return err
	}

	fb, err := a.firebaseClients(ctx)
	if err != nil {
		return err
	}

	if a.Registry == nil {
		if a.Registry, err = a.newRegistry(ctx, fb); err != nil {
			return err
		}
	}

	var store *feedback.Store
	var reconcilerOpts = []push.ReconcilerOption{
		push.WithRetry(config.ReconcileRetryAttempts, config.ReconcileRetryDelay),
	}

	if config.RedisAddr != "" {
		redis, err := feedback.Connect(ctx, config.RedisAddr, config.RedisDB)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, redis.Close)

		store = feedback.NewStore(redis, config.ExpiredLogTTL)
		reconcilerOpts = append(reconcilerOpts, push.WithLocker(redismutex.New(redis, config.ReconcileLockExpiry)))
	}

	transports, err := a.transports(ctx, fb, store)
	if err != nil {
		return err
	}

	reconciler, err := push.NewReconciler(a.Registry, policy, reconcilerOpts...)
	if err != nil {
		return err
	}

	senderOpts := []push.SenderOption{
		push.WithBatchSize(push.PlatformGCM, config.GCMBatchSize),
		push.WithBatchSize(push.PlatformAPNS, config.APNSBatchSize),
		push.WithMaxConcurrency(config.DispatchMaxConcurrency),
	}
	if store != nil {
		senderOpts = append(senderOpts, push.WithExpiredSource(store))
	}
	if fb != nil && fb.Database != nil {
		senderOpts = append(senderOpts, push.WithCounters(counters.NewRecorder(counters.NewClient(fb.Database))))
	}
	if config.ReportTopic != "" {
		publisher, err := pubsub.NewClient(ctx, config.ProjectID)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, publisher.Close)
		senderOpts = append(senderOpts, push.WithReportPublisher(pubsub.NewReportPublisher(publisher, config.ReportTopic)))
	}

	a.Sender, err = push.NewSender(a.Registry, push.NewDispatcher(transports), reconciler, senderOpts...)
	return err
}

func (a *App) firebaseClients(ctx context.Context) (*firebase.Clients, error) {
	config := a.Config

	opts := firebase.Options{
		ProjectID:   config.ProjectID,
		DatabaseURL: config.FirebaseDatabaseURL,
		Firestore:   config.RegistryBackend == "firestore" && a.Registry == nil,
		Messaging:   config.GCMTransport == "fcm",
	}
	if !opts.Firestore && !opts.Messaging && opts.DatabaseURL == "" {
		return nil, nil
	}

	clients, err := firebase.NewClients(ctx, opts)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, clients.Close)

	return clients, nil
}

func (a *App) newRegistry(ctx context.Context, fb *firebase.Clients) (push.Registry, error) {
	config := a.Config

	switch config.RegistryBackend {
	case "firestore":
		return registry.NewFirestore(fb.Firestore), nil
	case "memory":
		return registry.NewMemory(), nil
	case "postgres":
		pgConfig, err := a.postgresConfig(ctx)
		if err != nil {
			return nil, err
		}
		pg, err := registry.NewPostgres(ctx, *pgConfig)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pg.Close)
		return pg, nil
	default:
		return nil, errs.NewConfigurationError("unknown registry backend '%v'", config.RegistryBackend)
	}
}

func (a *App) postgresConfig(ctx context.Context) (*registry.PostgresConfig, error) {
	config := a.Config

	get := func(name string) (string, error) {
		value, err := a.Secrets.Get(ctx, name)
		if err != nil {
			return "", err
		}
		return string(value), nil
	}

	pgConfig := registry.PostgresConfig{Addr: config.PostgresAddr}

	var err error
	if pgConfig.Database, err = get(config.PostgresDatabaseSecret); err != nil {
		return nil, err
	}
	if pgConfig.User, err = get(config.PostgresUserSecret); err != nil {
		return nil, err
	}
	if pgConfig.Password, err = get(config.PostgresPasswordSecret); err != nil {
		return nil, err
	}
	if config.CloudSQLConnectionSecret != "" {
		if pgConfig.CloudSQLConnectionName, err = get(config.CloudSQLConnectionSecret); err != nil {
			return nil, err
		}
	}

	return &pgConfig, nil
}

func (a *App) transports(ctx context.Context, fb *firebase.Clients, store *feedback.Store) (map[push.Platform]push.TransportClient, error) {
	logger := logging.FromContext(ctx).Named("app.transports")
	config := a.Config

	transports := make(map[push.Platform]push.TransportClient)

	switch config.GCMTransport {
	case "fcm":
		transports[push.PlatformGCM] = fcm.New(fb.Messaging)
	case "legacy":
		serverKey, err := a.Secrets.Get(ctx, config.GCMServerKeySecret)
		if err != nil {
			return nil, err
		}
		client := httputils.NewThrottlingAwareClient(&http.Client{
			Transport: &ochttp.Transport{},
			Timeout:   30 * time.Second,
		}, config.GCMMaxThrottleRetries, logger.Debugf)
		transports[push.PlatformGCM] = gcm.New(config.GCMLegacyEndpoint, string(serverKey), client)
	}

	gateways := make(map[push.Environment]apns.Gateway)
	for env, topic := range config.APNSTopics() {
		key, err := a.Secrets.Get(ctx, fmt.Sprintf(config.APNSKeySecretPattern, strings.ToLower(env)))
		if err != nil {
			return nil, err
		}

		client, err := apns.NewClient(push.Environment(env), apns.Credentials{
			KeyID:  config.APNSKeyID,
			TeamID: config.APNSTeamID,
			P8Key:  key,
		})
		if err != nil {
			return nil, errs.NewConfigurationError("APNS %v: %v", env, err)
		}

		gateways[push.Environment(env)] = apns.Gateway{Client: client, Topic: topic}
	}
	if len(gateways) > 0 {
		var recorder apns.ExpiredRecorder
		if store != nil {
			recorder = store
		}
		transports[push.PlatformAPNS] = apns.New(gateways, recorder, config.APNSConcurrency)
	}

	return transports, nil
}

func checkLimits(config *utils.Config) error {
	switch {
	case config.GCMTransport == "fcm" && config.GCMBatchSize > fcm.MaxTokens:
		return errs.NewConfigurationError("GCM batch size %v exceeds FCM limit %v", config.GCMBatchSize, fcm.MaxTokens)
	case config.GCMTransport == "legacy" && config.GCMBatchSize > gcm.MaxRegistrationIDs:
		return errs.NewConfigurationError("GCM batch size %v exceeds limit %v", config.GCMBatchSize, gcm.MaxRegistrationIDs)
	}
	return nil
}

func keys(m map[string]string) []string {
	var out []string
	for _, env := range []string{"DEBUG", "BETA", "PROD"} {
		if _, ok := m[env]; ok {
			out = append(out, env)
		}
	}
	return out
}
