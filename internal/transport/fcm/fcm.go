package fcm

import (
	"context"
	"fmt"

	"firebase.google.com/go/messaging"
	"github.com/covid19cz/erouska-push/internal/logging"
	"github.com/covid19cz/erouska-push/internal/push"
	errs "github.com/covid19cz/erouska-push/internal/utils/errors"
)

//MaxTokens Max tokens of one multicast message.
const MaxTokens = 500

//MulticastSender Subset of FB messaging client
type MulticastSender interface {
	SendMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
	SendMulticastDryRun(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

//Transport Sends GCM channel batches through FCM multicast.
type Transport struct {
	client MulticastSender
}

var _ push.TransportClient = (*Transport)(nil)

//New Creates transport over FB messaging client.
func New(client MulticastSender) *Transport {
	return &Transport{client: client}
}

//SendBulk Sends one multicast message. Positional responses are mapped to outcomes.
func (t *Transport) SendBulk(ctx context.Context, channel push.Channel, payload *push.Payload, ids []string) ([]push.RecipientOutcome, error) {
	logger := logging.FromContext(ctx).Named("transport.fcm.SendBulk")

	if len(ids) > MaxTokens {
		return nil, &errs.TransportError{Gateway: "fcm", Err: fmt.Errorf("%v tokens exceed the limit of %v", len(ids), MaxTokens)}
	}

	message := buildMessage(payload, ids)

	send := t.client.SendMulticast
	if payload.Options().DryRun {
		send = t.client.SendMulticastDryRun
	}

	resp, err := send(ctx, message)
	if err != nil {
		return nil, &errs.TransportError{Gateway: "fcm", Err: err}
	}

	logger.Debugf("FCM accepted %v, rejected %v of %v tokens", resp.SuccessCount, resp.FailureCount, len(ids))

	if rejectedMessage(resp) {
		return nil, &errs.TransportError{Gateway: "fcm", Err: fmt.Errorf("message rejected: %v", resp.Responses[0].Error)}
	}

	outcomes := make([]push.RecipientOutcome, 0, len(ids))
	for i, r := range resp.Responses {
		if i >= len(ids) {
			break
		}
		outcomes = append(outcomes, toOutcome(ids[i], r))
	}

	return outcomes, nil
}

func buildMessage(payload *push.Payload, ids []string) *messaging.MulticastMessage {
	opts := payload.Options()

	android := &messaging.AndroidConfig{
		CollapseKey: opts.CollapseKey,
		Priority:    opts.Priority,
	}
	if opts.TTL > 0 {
		ttl := opts.TTL
		android.TTL = &ttl
	}

	return &messaging.MulticastMessage{
		Tokens:  ids,
		Data:    payload.Data(),
		Android: android,
	}
}

func toOutcome(id string, r *messaging.SendResponse) push.RecipientOutcome {
	switch {
	case r == nil:
		return push.Failed(id, "missing response")
	case r.Success:
		return push.DeliveredTo(id)
	case isTokenFatal(r.Error):
		return push.Invalid(id, r.Error.Error())
	case r.Error != nil:
		return push.Failed(id, r.Error.Error())
	default:
		return push.Failed(id, "unknown error")
	}
}

// only errors about the token itself retire it; INVALID_ARGUMENT is also returned for a bad message
func isTokenFatal(err error) bool {
	if err == nil {
		return false
	}
	return messaging.IsRegistrationTokenNotRegistered(err) ||
		messaging.IsMismatchedCredential(err)
}

// rejectedMessage reports whether every token failed with INVALID_ARGUMENT, i.e. the message itself is wrong.
func rejectedMessage(resp *messaging.BatchResponse) bool {
	if resp.SuccessCount > 0 || len(resp.Responses) == 0 {
		return false
	}
	for _, r := range resp.Responses {
		if r == nil || r.Success || !messaging.IsInvalidArgument(r.Error) {
			return false
		}
	}
	return true
}
