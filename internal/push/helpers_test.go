package push_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/covid19cz/erouska-push/internal/push"
	"github.com/covid19cz/erouska-push/internal/registry"
	"github.com/stretchr/testify/require"
)

type sendFunc func(ctx context.Context, channel push.Channel, ids []string) ([]push.RecipientOutcome, error)

// fakeTransport records every batch it receives.
type fakeTransport struct {
	mu      sync.Mutex
	send    sendFunc
	batches [][]string
	only    map[push.Environment]bool
}

func (f *fakeTransport) SendBulk(ctx context.Context, channel push.Channel, payload *push.Payload, ids []string) ([]push.RecipientOutcome, error) {
	f.mu.Lock()
	f.batches = append(f.batches, append([]string(nil), ids...))
	f.mu.Unlock()

	if f.send != nil {
		return f.send(ctx, channel, ids)
	}
	return deliverAll(ids), nil
}

func (f *fakeTransport) SupportsChannel(channel push.Channel) bool {
	return f.only == nil || f.only[channel.Environment]
}

func (f *fakeTransport) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func (f *fakeTransport) sizes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sizes []int
	for _, b := range f.batches {
		sizes = append(sizes, len(b))
	}
	return sizes
}

func deliverAll(ids []string) []push.RecipientOutcome {
	outcomes := make([]push.RecipientOutcome, len(ids))
	for i, id := range ids {
		outcomes[i] = push.DeliveredTo(id)
	}
	return outcomes
}

func gcmDevice(id, regID string) push.DeviceRecord {
	return push.DeviceRecord{ID: id, RegistrationID: regID, Platform: push.PlatformGCM, Active: true, CreatedAt: time.Unix(0, 0)}
}

func apnsDevice(id, regID string, env push.Environment) push.DeviceRecord {
	return push.DeviceRecord{ID: id, RegistrationID: regID, Platform: push.PlatformAPNS, Environment: env, Active: true, CreatedAt: time.Unix(0, 0)}
}

func apnsDevices(n int, env push.Environment) []push.DeviceRecord {
	devices := make([]push.DeviceRecord, n)
	for i := range devices {
		devices[i] = apnsDevice(fmt.Sprintf("%v-%03d", env, i), fmt.Sprintf("tok-%v-%03d", env, i), env)
	}
	return devices
}

func newRegistry(t *testing.T, devices ...push.DeviceRecord) *registry.Memory {
	reg := registry.NewMemory()
	for _, d := range devices {
		_, err := reg.Register(context.Background(), d)
		require.NoError(t, err)
	}
	return reg
}

func newPayload(t *testing.T) *push.Payload {
	p, err := push.NewPayload("hello", map[string]string{"k": "v"}, push.Options{})
	require.NoError(t, err)
	return p
}

func newSender(t *testing.T, reg push.Registry, transports map[push.Platform]push.TransportClient, opts ...push.SenderOption) *push.Sender {
	reconciler, err := push.NewReconciler(reg, push.PolicyDeactivate, push.WithRetry(1, 0))
	require.NoError(t, err)

	sender, err := push.NewSender(reg, push.NewDispatcher(transports), reconciler, opts...)
	require.NoError(t, err)
	return sender
}
