package push_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/covid19cz/erouska-push/internal/push"
	errs "github.com/covid19cz/erouska-push/internal/utils/errors"
	"github.com/google/go-cmp/cmp"
)

var gcmChannel = push.Channel{Platform: push.PlatformGCM}

func TestDispatchAlignsOutcomes(t *testing.T) {
	batchIDs := []string{"a", "b", "c"}

	tables := []struct {
		name     string
		outcomes []push.RecipientOutcome
		want     []push.RecipientOutcome
	}{
		{
			name:     "in order",
			outcomes: []push.RecipientOutcome{push.DeliveredTo("a"), push.Invalid("b", "NotRegistered"), push.ReplacedWith("c", "c2")},
			want:     []push.RecipientOutcome{push.DeliveredTo("a"), push.Invalid("b", "NotRegistered"), push.ReplacedWith("c", "c2")},
		},
		{
			name:     "positional without ids",
			outcomes: []push.RecipientOutcome{{Kind: push.Delivered}, {Kind: push.InvalidRegistration}, {Kind: push.Delivered}},
			want:     []push.RecipientOutcome{push.DeliveredTo("a"), {RegistrationID: "b", Kind: push.InvalidRegistration}, push.DeliveredTo("c")},
		},
		{
			name:     "reordered",
			outcomes: []push.RecipientOutcome{push.DeliveredTo("c"), push.DeliveredTo("a"), push.Invalid("b", "x")},
			want:     []push.RecipientOutcome{push.DeliveredTo("a"), push.Invalid("b", "x"), push.DeliveredTo("c")},
		},
		{
			name:     "missing",
			outcomes: []push.RecipientOutcome{push.DeliveredTo("c")},
			want: []push.RecipientOutcome{
				push.Failed("a", "gateway returned no result for the recipient"),
				push.Failed("b", "gateway returned no result for the recipient"),
				push.DeliveredTo("c"),
			},
		},
	}

	for _, table := range tables {
		t.Run(table.name, func(t *testing.T) {
			outcomes := table.outcomes
			transport := &fakeTransport{send: func(ctx context.Context, channel push.Channel, ids []string) ([]push.RecipientOutcome, error) {
				return outcomes, nil
			}}
			dispatcher := push.NewDispatcher(map[push.Platform]push.TransportClient{push.PlatformGCM: transport})

			got, err := dispatcher.Dispatch(context.Background(), push.Batch{Channel: gcmChannel, RegistrationIDs: batchIDs})
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(table.want, got); diff != "" {
				t.Errorf("Dispatch() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDispatchTransportError(t *testing.T) {
	transport := &fakeTransport{send: func(ctx context.Context, channel push.Channel, ids []string) ([]push.RecipientOutcome, error) {
		return nil, fmt.Errorf("connection reset")
	}}
	dispatcher := push.NewDispatcher(map[push.Platform]push.TransportClient{push.PlatformGCM: transport})

	got, err := dispatcher.Dispatch(context.Background(), push.Batch{Channel: gcmChannel, RegistrationIDs: []string{"a", "b"}})

	var transportErr *errs.TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("Dispatch() error = %v, want TransportError", err)
	}
	if len(got) != 2 {
		t.Fatalf("Dispatch() returned %v outcomes, want 2", len(got))
	}
	for i, o := range got {
		if o.Kind != push.TransientFailure || o.RegistrationID != []string{"a", "b"}[i] {
			t.Errorf("outcome %v = %+v, want transient failure", i, o)
		}
	}
}

func TestDispatchEmptyBatch(t *testing.T) {
	transport := &fakeTransport{}
	dispatcher := push.NewDispatcher(map[push.Platform]push.TransportClient{push.PlatformGCM: transport})

	got, err := dispatcher.Dispatch(context.Background(), push.Batch{Channel: gcmChannel})
	if err != nil || len(got) != 0 {
		t.Errorf("Dispatch() = %v, %v; want nothing", got, err)
	}
	if transport.calls() != 0 {
		t.Errorf("empty batch reached the gateway")
	}
}

func TestDispatcherSupports(t *testing.T) {
	apns := &fakeTransport{only: map[push.Environment]bool{push.EnvProd: true}}
	dispatcher := push.NewDispatcher(map[push.Platform]push.TransportClient{push.PlatformAPNS: apns, push.PlatformGCM: nil})

	tables := []struct {
		channel push.Channel
		ok      bool
	}{
		{push.Channel{Platform: push.PlatformAPNS, Environment: push.EnvProd}, true},
		{push.Channel{Platform: push.PlatformAPNS, Environment: push.EnvDebug}, false},
		{gcmChannel, false},
	}

	for _, table := range tables {
		err := dispatcher.Supports(table.channel)

		var configErr *errs.ConfigurationError
		if table.ok && err != nil {
			t.Errorf("Supports(%v) = %v, want nil", table.channel, err)
		}
		if !table.ok && !errors.As(err, &configErr) {
			t.Errorf("Supports(%v) = %v, want ConfigurationError", table.channel, err)
		}
	}

	_, err := dispatcher.Dispatch(context.Background(), push.Batch{Channel: gcmChannel, RegistrationIDs: []string{"a"}})
	var configErr *errs.ConfigurationError
	if !errors.As(err, &configErr) {
		t.Errorf("Dispatch() without transport = %v, want ConfigurationError", err)
	}
}
