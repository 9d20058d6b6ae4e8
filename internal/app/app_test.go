package app

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/covid19cz/erouska-push/internal/push"
	"github.com/covid19cz/erouska-push/internal/registry"
	"github.com/covid19cz/erouska-push/internal/secrets"
	"github.com/covid19cz/erouska-push/internal/utils"
	errs "github.com/covid19cz/erouska-push/internal/utils/errors"
	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadConfig(t *testing.T, env map[string]string) *utils.Config {
	config, err := utils.LoadConfigFrom(context.Background(), envconfig.MapLookuper(env))
	require.NoError(t, err)
	return config
}

func p8Key(t *testing.T) []byte {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
}

func TestNewWithLegacyGCM(t *testing.T) {
	ctx := context.Background()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		assert.Equal(t, "key=server-key", r.Header.Get("Authorization"))

		var req struct {
			RegistrationIDs []string `json:"registration_ids"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		results := make([]map[string]string, len(req.RegistrationIDs))
		for i := range results {
			results[i] = map[string]string{"message_id": "1"}
		}
		results[0] = map[string]string{"error": "NotRegistered"}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"results": results})
	}))
	defer srv.Close()

	config := loadConfig(t, map[string]string{
		"REGISTRY_BACKEND":    "memory",
		"GCM_TRANSPORT":       "legacy",
		"GCM_LEGACY_ENDPOINT": srv.URL,
	})

	reg := registry.NewMemory()
	for _, d := range []push.DeviceRecord{
		{ID: "g1", RegistrationID: "gcm-1", Platform: push.PlatformGCM, Active: true},
		{ID: "g2", RegistrationID: "gcm-2", Platform: push.PlatformGCM, Active: true},
	} {
		_, err := reg.Register(ctx, d)
		require.NoError(t, err)
	}

	a, err := NewWith(ctx, config, reg, secrets.MockClient{"push-gcm-server-key": []byte("server-key")})
	require.NoError(t, err)
	defer a.Close()

	payload, err := push.NewPayload("hi", nil, push.Options{})
	require.NoError(t, err)

	report, err := a.Sender.SendToGroup(ctx, push.Filter{}, payload)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Delivered)
	assert.Equal(t, 1, report.Invalid)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "throttled request is retried")

	dead, err := reg.Get(ctx, "g1")
	require.NoError(t, err)
	assert.False(t, dead.Active)
}

func TestNewWithAPNS(t *testing.T) {
	ctx := context.Background()

	config := loadConfig(t, map[string]string{
		"REGISTRY_BACKEND": "memory",
		"GCM_TRANSPORT":    "none",
		"APNS_KEY_ID":      "ABC123DEFG",
		"APNS_TEAM_ID":     "DEF123GHIJ",
		"APNS_PROD_TOPIC":  "cz.covid19cz.push",
	})

	reg := registry.NewMemory()
	_, err := reg.Register(ctx, push.DeviceRecord{ID: "a1", RegistrationID: "tok", Platform: push.PlatformAPNS, Environment: push.EnvBeta, Active: true})
	require.NoError(t, err)

	a, err := NewWith(ctx, config, reg, secrets.MockClient{"push-apns-prod-key": p8Key(t)})
	require.NoError(t, err)
	defer a.Close()

	payload, err := push.NewPayload("hi", nil, push.Options{})
	require.NoError(t, err)

	// only PROD has a gateway
	_, err = a.Sender.SendToGroup(ctx, push.Filter{}, payload)
	var configErr *errs.ConfigurationError
	assert.True(t, errors.As(err, &configErr), "got %v", err)
}

func TestNewWithErrors(t *testing.T) {
	ctx := context.Background()

	tables := []struct {
		name    string
		env     map[string]string
		secrets secrets.MockClient
	}{
		{"fcm batch over limit", map[string]string{"GCM_TRANSPORT": "fcm", "GCM_BATCH_SIZE": "600"}, nil},
		{"missing server key", map[string]string{"GCM_TRANSPORT": "legacy"}, nil},
		{"missing apns key", map[string]string{"GCM_TRANSPORT": "none", "APNS_DEBUG_TOPIC": "t"}, nil},
		{"broken apns key", map[string]string{"GCM_TRANSPORT": "none", "APNS_DEBUG_TOPIC": "t"}, secrets.MockClient{"push-apns-debug-key": []byte("nope")}},
	}

	for _, table := range tables {
		t.Run(table.name, func(t *testing.T) {
			_, err := NewWith(ctx, loadConfig(t, table.env), registry.NewMemory(), table.secrets)
			assert.Error(t, err)
		})
	}
}
