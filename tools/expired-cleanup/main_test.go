package main

import (
	"context"
	"testing"
	"time"

	"github.com/covid19cz/erouska-push/internal/push"
	"github.com/covid19cz/erouska-push/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type expiredLog map[push.Environment][]string

func (l expiredLog) FetchInactiveIDs(ctx context.Context, env push.Environment) ([]string, error) {
	ids := l[env]
	delete(l, env)
	return ids, nil
}

func (l expiredLog) PeekInactiveIDs(ctx context.Context, env push.Environment) ([]string, error) {
	return l[env], nil
}

func newCleaner(t *testing.T, log expiredLog) (*push.Sender, *registry.Memory) {
	ctx := context.Background()
	reg := registry.NewMemory()

	for _, d := range []push.DeviceRecord{
		{ID: "i1", RegistrationID: "apns-1", Platform: push.PlatformAPNS, Environment: push.EnvProd, Active: true, CreatedAt: time.Now()},
		{ID: "i2", RegistrationID: "apns-2", Platform: push.PlatformAPNS, Environment: push.EnvProd, Active: true, CreatedAt: time.Now()},
	} {
		_, err := reg.Register(ctx, d)
		require.NoError(t, err)
	}

	// the deployment policy only deactivates, expired devices are deleted anyway
	reconciler, err := push.NewReconciler(reg, push.PolicyDeactivate, push.WithRetry(1, 0))
	require.NoError(t, err)

	sender, err := push.NewSender(reg, push.NewDispatcher(nil), reconciler, push.WithExpiredSource(log))
	require.NoError(t, err)
	return sender, reg
}

func TestCleanupDryRunKeepsLog(t *testing.T) {
	ctx := context.Background()
	log := expiredLog{push.EnvProd: {"apns-1"}}
	sender, reg := newCleaner(t, log)

	require.NoError(t, cleanup(ctx, sender, true))

	assert.Equal(t, []string{"apns-1"}, log[push.EnvProd], "dry run must not drain the log")
	d, err := reg.Get(ctx, "i1")
	require.NoError(t, err)
	assert.NotNil(t, d)
}

func TestCleanupDeletes(t *testing.T) {
	ctx := context.Background()
	log := expiredLog{push.EnvProd: {"apns-1", "unknown"}}
	sender, reg := newCleaner(t, log)

	require.NoError(t, cleanup(ctx, sender, false))

	assert.Empty(t, log)

	gone, err := reg.Get(ctx, "i1")
	require.NoError(t, err)
	assert.Nil(t, gone)

	kept, err := reg.Get(ctx, "i2")
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

func TestCleanupNotConfigured(t *testing.T) {
	reg := registry.NewMemory()
	reconciler, err := push.NewReconciler(reg, push.PolicyDeactivate)
	require.NoError(t, err)
	bare, err := push.NewSender(reg, push.NewDispatcher(nil), reconciler)
	require.NoError(t, err)

	assert.Error(t, cleanup(context.Background(), bare, true))
	assert.Error(t, cleanup(context.Background(), bare, false))
}
