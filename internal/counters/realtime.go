package counters

import (
	"context"
	"strings"

	"firebase.google.com/go/db"
	"github.com/covid19cz/erouska-push/internal/constants"
	"github.com/covid19cz/erouska-push/internal/logging"
	"github.com/covid19cz/erouska-push/internal/push"
)

// RealtimeDB is a Realtime DB abstraction layer interface
type RealtimeDB interface {
	RunTransaction(ctx context.Context, path string, f db.UpdateFn) error
}

// Client to interact with Realtime DB
type Client struct {
	inner *db.Client
}

// NewClient wraps Realtime DB client.
func NewClient(inner *db.Client) *Client {
	return &Client{inner: inner}
}

// RunTransaction runs f in a transaction at given path in Realtime DB
func (c *Client) RunTransaction(ctx context.Context, path string, f db.UpdateFn) error {
	return c.inner.NewRef(path).Transaction(ctx, f)
}

// Counters of one channel
type Counters struct {
	Delivered int `json:"delivered"`
	Invalid   int `json:"invalid"`
	Replaced  int `json:"replaced"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Batches   int `json:"batches"`
}

func (c *Counters) add(r push.ChannelReport) {
	c.Delivered += r.Delivered
	c.Invalid += r.Invalid
	c.Replaced += r.Replaced
	c.Failed += r.Failed
	c.Skipped += r.Skipped
	c.Batches += r.Batches
}

// Recorder accumulates channel counters of dispatch reports
type Recorder struct {
	db RealtimeDB
}

var _ push.CounterRecorder = (*Recorder)(nil)

// NewRecorder creates recorder
func NewRecorder(db RealtimeDB) *Recorder {
	return &Recorder{db: db}
}

// Path of channel counters in Realtime DB
func Path(channel push.Channel) string {
	return constants.DbPushCountersPrefix + strings.ToLower(strings.ReplaceAll(channel.String(), "/", "-"))
}

// RecordReport adds counts of every channel of the report
func (r *Recorder) RecordReport(ctx context.Context, report *push.DispatchReport) error {
	logger := logging.FromContext(ctx).Named("counters.RecordReport")

	for _, channel := range report.Channels {
		channel := channel

		err := r.db.RunTransaction(ctx, Path(channel.Channel), func(node db.TransactionNode) (interface{}, error) {
			var counters Counters
			if err := node.Unmarshal(&counters); err != nil {
				return nil, err
			}
			counters.add(channel)
			return counters, nil
		})
		if err != nil {
			return err
		}

		logger.Debugf("Recorded counters of %v", channel.Channel)
	}

	return nil
}
