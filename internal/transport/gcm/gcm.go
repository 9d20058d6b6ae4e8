package gcm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"

	"github.com/covid19cz/erouska-push/internal/logging"
	"github.com/covid19cz/erouska-push/internal/push"
	errs "github.com/covid19cz/erouska-push/internal/utils/errors"
)

//DefaultEndpoint Legacy GCM HTTP endpoint.
const DefaultEndpoint = "https://fcm.googleapis.com/fcm/send"

//MaxRegistrationIDs Max recipients of one multicast request.
const MaxRegistrationIDs = 1000

type request struct {
	RegistrationIDs []string          `json:"registration_ids"`
	Data            map[string]string `json:"data,omitempty"`
	CollapseKey     string            `json:"collapse_key,omitempty"`
	Priority        string            `json:"priority,omitempty"`
	TimeToLive      *int              `json:"time_to_live,omitempty"`
	DryRun          bool              `json:"dry_run,omitempty"`
}

type result struct {
	MessageID      string `json:"message_id"`
	RegistrationID string `json:"registration_id"`
	Error          string `json:"error"`
}

type response struct {
	MulticastID  int64    `json:"multicast_id"`
	Success      int      `json:"success"`
	Failure      int      `json:"failure"`
	CanonicalIDs int      `json:"canonical_ids"`
	Results      []result `json:"results"`
}

//Transport Legacy GCM HTTP client, the only GCM gateway reporting canonical (rotated) registration ids.
type Transport struct {
	endpoint  string
	serverKey string
	client    *http.Client
}

var _ push.TransportClient = (*Transport)(nil)

//New Creates transport. The client should handle throttling, see utils/http.NewThrottlingAwareClient.
func New(endpoint, serverKey string, client *http.Client) *Transport {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Transport{endpoint: endpoint, serverKey: serverKey, client: client}
}

//SendBulk Sends one multicast request.
func (t *Transport) SendBulk(ctx context.Context, channel push.Channel, payload *push.Payload, ids []string) ([]push.RecipientOutcome, error) {
	logger := logging.FromContext(ctx).Named("transport.gcm.SendBulk")

	if len(ids) > MaxRegistrationIDs {
		return nil, t.fail(fmt.Errorf("%v registration ids exceed the limit of %v", len(ids), MaxRegistrationIDs))
	}

	body, err := json.Marshal(buildRequest(payload, ids))
	if err != nil {
		return nil, t.fail(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, t.fail(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+t.serverKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, t.fail(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := ioutil.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, t.fail(fmt.Errorf("received status %d: %s", resp.StatusCode, bytes.TrimSpace(msg)))
	}

	var parsed response
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, t.fail(fmt.Errorf("could not decode response: %v", err))
	}

	logger.Debugf("GCM multicast %v: success=%v failure=%v canonical=%v", parsed.MulticastID, parsed.Success, parsed.Failure, parsed.CanonicalIDs)

	outcomes := make([]push.RecipientOutcome, 0, len(ids))
	for i, r := range parsed.Results {
		if i >= len(ids) {
			break
		}
		outcomes = append(outcomes, toOutcome(ids[i], r))
	}

	return outcomes, nil
}

func (t *Transport) fail(err error) error {
	return &errs.TransportError{Gateway: "gcm", Err: err}
}

func buildRequest(payload *push.Payload, ids []string) request {
	opts := payload.Options()

	req := request{
		RegistrationIDs: ids,
		Data:            payload.Data(),
		CollapseKey:     opts.CollapseKey,
		Priority:        opts.Priority,
		DryRun:          opts.DryRun,
	}
	if opts.TTL > 0 {
		ttl := int(opts.TTL.Seconds())
		req.TimeToLive = &ttl
	}
	return req
}

func toOutcome(id string, r result) push.RecipientOutcome {
	switch r.Error {
	case "":
		if r.RegistrationID != "" && r.RegistrationID != id {
			return push.ReplacedWith(id, r.RegistrationID)
		}
		return push.DeliveredTo(id)
	case "NotRegistered", "InvalidRegistration", "MismatchSenderId", "MissingRegistration":
		return push.Invalid(id, r.Error)
	default:
		return push.Failed(id, r.Error)
	}
}
