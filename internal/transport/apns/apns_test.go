package apns

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/covid19cz/erouska-push/internal/push"
	errs "github.com/covid19cz/erouska-push/internal/utils/errors"
	"github.com/sideshow/apns2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockPusher struct {
	mu        sync.Mutex
	responses map[string]*apns2.Response
	errs      map[string]error
	pushed    []*apns2.Notification
}

func (m *mockPusher) PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pushed = append(m.pushed, n)
	if err := m.errs[n.DeviceToken]; err != nil {
		return nil, err
	}
	if res, ok := m.responses[n.DeviceToken]; ok {
		return res, nil
	}
	return &apns2.Response{StatusCode: apns2.StatusSent}, nil
}

type mockRecorder struct {
	mu     sync.Mutex
	tokens map[push.Environment][]string
}

func (m *mockRecorder) Record(ctx context.Context, env push.Environment, token string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tokens == nil {
		m.tokens = make(map[push.Environment][]string)
	}
	m.tokens[env] = append(m.tokens[env], token)
	return nil
}

var prod = push.Channel{Platform: push.PlatformAPNS, Environment: push.EnvProd}

func TestSendBulk(t *testing.T) {
	pusher := &mockPusher{
		responses: map[string]*apns2.Response{
			"bad":  {StatusCode: 400, Reason: apns2.ReasonBadDeviceToken},
			"gone": {StatusCode: 410, Reason: apns2.ReasonUnregistered},
			"busy": {StatusCode: 429, Reason: apns2.ReasonTooManyRequests},
		},
		errs: map[string]error{"down": errors.New("connection reset")},
	}
	recorder := &mockRecorder{}

	transport := New(map[push.Environment]Gateway{push.EnvProd: {Client: pusher, Topic: "cz.example.app"}}, recorder, 2)

	payload, err := push.NewPayload("Ahoj", map[string]string{"k": "v"}, push.Options{Sound: "default"})
	require.NoError(t, err)

	outcomes, err := transport.SendBulk(context.Background(), prod, payload, []string{"ok", "bad", "gone", "busy", "down"})
	require.NoError(t, err)

	assert.Equal(t, []push.RecipientOutcome{
		push.DeliveredTo("ok"),
		push.Invalid("bad", "400 BadDeviceToken"),
		push.Invalid("gone", "410 Unregistered"),
		push.Failed("busy", "429 TooManyRequests"),
		push.Failed("down", "connection reset"),
	}, outcomes)

	assert.Equal(t, []string{"gone"}, recorder.tokens[push.EnvProd])

	require.Len(t, pusher.pushed, 5)
	for _, n := range pusher.pushed {
		assert.Equal(t, "cz.example.app", n.Topic)
		assert.Equal(t, apns2.PriorityHigh, n.Priority)
	}
}

func TestSendBulkBadCredentials(t *testing.T) {
	pusher := &mockPusher{responses: map[string]*apns2.Response{
		"a": {StatusCode: 403, Reason: apns2.ReasonInvalidProviderToken},
	}}

	transport := New(map[push.Environment]Gateway{push.EnvProd: {Client: pusher}}, nil, 1)

	payload, err := push.NewPayload("Ahoj", nil, push.Options{})
	require.NoError(t, err)

	_, err = transport.SendBulk(context.Background(), prod, payload, []string{"a", "b", "c"})

	var transportErr *errs.TransportError
	require.True(t, errors.As(err, &transportErr))
}

func TestSupportsChannel(t *testing.T) {
	transport := New(map[push.Environment]Gateway{push.EnvProd: {Client: &mockPusher{}}}, nil, 0)

	assert.True(t, transport.SupportsChannel(prod))
	assert.False(t, transport.SupportsChannel(push.Channel{Platform: push.PlatformAPNS, Environment: push.EnvBeta}))
}

func TestBuildNotification(t *testing.T) {
	badge := 3
	payload, err := push.NewPayload("", map[string]string{"k": "v"}, push.Options{
		Badge:            &badge,
		ContentAvailable: true,
		TTL:              time.Hour,
		CollapseKey:      "news",
	})
	require.NoError(t, err)

	now := time.Date(2020, 12, 10, 12, 0, 0, 0, time.UTC)
	n := buildNotification("topic", payload, now)

	assert.Equal(t, apns2.PriorityLow, n.Priority)
	assert.Equal(t, now.Add(time.Hour), n.Expiration)
	assert.Equal(t, "news", n.CollapseID)

	raw, err := n.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"aps":{"badge":3,"content-available":1},"k":"v"}`, string(raw))
}
