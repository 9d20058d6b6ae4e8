package push

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

//MessageKey Key under which the alert is merged into the data of data-only gateways.
const MessageKey = "message"

//ErrEmptyPayload Payload has neither alert nor extra data.
var ErrEmptyPayload = errors.New("payload has neither alert nor extra data")

//ErrReservedKey Extra data uses a key the gateways reserve for themselves.
var ErrReservedKey = errors.New("reserved data key")

var reservedKeys = map[string]bool{"from": true, "notification": true, "message_type": true}

//IsReservedKey Whether the gateways refuse the key in message data.
func IsReservedKey(key string) bool {
	lower := strings.ToLower(key)
	return reservedKeys[lower] || strings.HasPrefix(lower, "google") || strings.HasPrefix(lower, "gcm")
}

//Options Delivery options, each gateway uses those it understands.
type Options struct {
	Sound            string        `json:"sound,omitempty"`
	Badge            *int          `json:"badge,omitempty"`
	ContentAvailable bool          `json:"contentAvailable,omitempty"`
	TTL              time.Duration `json:"ttl,omitempty"`
	Priority         string        `json:"priority,omitempty" validate:"omitempty,oneof=high normal"`
	CollapseKey      string        `json:"collapseKey,omitempty"`
	DryRun           bool          `json:"dryRun,omitempty"`
}

//Payload Message sent to all recipients of one dispatch. It's never modified after construction.
type Payload struct {
	alert   string
	extra   map[string]string
	options Options
}

//NewPayload Creates payload, copying the extra data.
func NewPayload(alert string, extra map[string]string, options Options) (*Payload, error) {
	if alert == "" && len(extra) == 0 {
		return nil, ErrEmptyPayload
	}

	copied := make(map[string]string, len(extra))
	for k, v := range extra {
		if IsReservedKey(k) {
			return nil, fmt.Errorf("%w: %q", ErrReservedKey, k)
		}
		copied[k] = v
	}

	if options.Badge != nil {
		badge := *options.Badge
		options.Badge = &badge
	}

	return &Payload{alert: alert, extra: copied, options: options}, nil
}

//Alert Primary alert text, may be empty for data-only messages.
func (p *Payload) Alert() string {
	return p.alert
}

//Extra Copy of the extra data.
func (p *Payload) Extra() map[string]string {
	out := make(map[string]string, len(p.extra))
	for k, v := range p.extra {
		out[k] = v
	}
	return out
}

//Data Copy of the extra data with the alert merged under MessageKey.
func (p *Payload) Data() map[string]string {
	data := p.Extra()
	if p.alert != "" {
		data[MessageKey] = p.alert
	}
	return data
}

//Options Delivery options.
func (p *Payload) Options() Options {
	opts := p.options
	if opts.Badge != nil {
		badge := *opts.Badge
		opts.Badge = &badge
	}
	return opts
}
