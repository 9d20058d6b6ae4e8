package apns

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/covid19cz/erouska-push/internal/logging"
	"github.com/covid19cz/erouska-push/internal/push"
	errs "github.com/covid19cz/erouska-push/internal/utils/errors"
	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"golang.org/x/sync/semaphore"
)

//DefaultConcurrency Max pushes of one batch in flight.
const DefaultConcurrency = 16

//Pusher Subset of apns2.Client.
type Pusher interface {
	PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error)
}

//ExpiredRecorder Records tokens the gateway reported as unregistered.
type ExpiredRecorder interface {
	Record(ctx context.Context, env push.Environment, token string, at time.Time) error
}

//Gateway Client and app topic of one environment.
type Gateway struct {
	Client Pusher
	Topic  string
}

//Transport Sends APNS channel batches. APNS has no multicast, each token is pushed on its own.
type Transport struct {
	gateways    map[push.Environment]Gateway
	expired     ExpiredRecorder
	concurrency int64
}

var _ push.TransportClient = (*Transport)(nil)
var _ push.ChannelSupporter = (*Transport)(nil)

//New Creates transport. Recorder may be nil.
func New(gateways map[push.Environment]Gateway, expired ExpiredRecorder, concurrency int) *Transport {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	return &Transport{gateways: gateways, expired: expired, concurrency: int64(concurrency)}
}

//SupportsChannel Whether a gateway of the channel's environment is configured.
func (t *Transport) SupportsChannel(channel push.Channel) bool {
	gw, ok := t.gateways[channel.Environment]
	return ok && gw.Client != nil
}

// reasons meaning the token is dead
var invalidReasons = map[string]bool{
	apns2.ReasonBadDeviceToken:         true,
	apns2.ReasonUnregistered:           true,
	apns2.ReasonDeviceTokenNotForTopic: true,
	apns2.ReasonMissingDeviceToken:     true,
}

// reasons meaning our credentials are wrong, no push of the batch can succeed
var authReasons = map[string]bool{
	apns2.ReasonBadCertificate:            true,
	apns2.ReasonBadCertificateEnvironment: true,
	apns2.ReasonExpiredProviderToken:      true,
	apns2.ReasonForbidden:                 true,
	apns2.ReasonInvalidProviderToken:      true,
	apns2.ReasonMissingProviderToken:      true,
	apns2.ReasonTopicDisallowed:           true,
	apns2.ReasonBadTopic:                  true,
}

//SendBulk Pushes to every token, bounded by the concurrency. A credentials problem aborts the whole batch.
func (t *Transport) SendBulk(ctx context.Context, channel push.Channel, p *push.Payload, ids []string) ([]push.RecipientOutcome, error) {
	logger := logging.FromContext(ctx).Named("transport.apns.SendBulk")

	gw, ok := t.gateways[channel.Environment]
	if !ok || gw.Client == nil {
		return nil, &errs.TransportError{Gateway: channel.String(), Err: fmt.Errorf("no gateway configured")}
	}

	template := buildNotification(gw.Topic, p, time.Now())

	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := semaphore.NewWeighted(t.concurrency)
	outcomes := make([]push.RecipientOutcome, len(ids))

	var wg sync.WaitGroup
	var once sync.Once
	var authErr error

	for i, id := range ids {
		if err := sem.Acquire(batchCtx, 1); err != nil {
			outcomes[i] = push.Failed(id, err.Error())
			continue
		}

		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			defer sem.Release(1)

			n := *template
			n.DeviceToken = id

			res, err := gw.Client.PushWithContext(batchCtx, &n)
			if err != nil {
				outcomes[i] = push.Failed(id, err.Error())
				return
			}

			if authReasons[res.Reason] {
				once.Do(func() {
					authErr = fmt.Errorf("gateway rejected credentials: %v %v", res.StatusCode, res.Reason)
					cancel()
				})
			}

			outcomes[i] = t.toOutcome(ctx, channel.Environment, id, res)
		}(i, id)
	}

	wg.Wait()

	if authErr != nil {
		return nil, &errs.TransportError{Gateway: channel.String(), Err: authErr}
	}

	logger.Debugf("Pushed %v notifications to %v", len(ids), channel)

	return outcomes, nil
}

func (t *Transport) toOutcome(ctx context.Context, env push.Environment, id string, res *apns2.Response) push.RecipientOutcome {
	logger := logging.FromContext(ctx).Named("transport.apns.toOutcome")

	if res.Sent() {
		return push.DeliveredTo(id)
	}

	msg := fmt.Sprintf("%v %v", res.StatusCode, res.Reason)

	if !invalidReasons[res.Reason] {
		return push.Failed(id, msg)
	}

	if res.Reason == apns2.ReasonUnregistered && t.expired != nil {
		at := res.Timestamp.Time
		if at.IsZero() {
			at = time.Now()
		}
		if err := t.expired.Record(ctx, env, id, at); err != nil {
			logger.Warnf("Could not record expired token: %v", err)
		}
	}

	return push.Invalid(id, msg)
}

func buildNotification(topic string, p *push.Payload, now time.Time) *apns2.Notification {
	opts := p.Options()

	body := payload.NewPayload()
	if alert := p.Alert(); alert != "" {
		body.Alert(alert)
	}
	if opts.Sound != "" {
		body.Sound(opts.Sound)
	}
	if opts.Badge != nil {
		body.Badge(*opts.Badge)
	}
	if opts.ContentAvailable {
		body.ContentAvailable()
	}
	for k, v := range p.Extra() {
		body.Custom(k, v)
	}

	n := &apns2.Notification{
		Topic:      topic,
		Payload:    body,
		CollapseID: opts.CollapseKey,
		Priority:   apns2.PriorityHigh,
	}
	if opts.Priority == "normal" || (opts.ContentAvailable && p.Alert() == "") {
		n.Priority = apns2.PriorityLow
	}
	if opts.TTL > 0 {
		n.Expiration = now.Add(opts.TTL)
	}
	return n
}
