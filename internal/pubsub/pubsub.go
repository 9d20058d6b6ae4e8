package pubsub

import (
	"context"
	"encoding/json"

	"cloud.google.com/go/pubsub"
	"github.com/covid19cz/erouska-push/internal/push"
)

//EventPublisher is an abstraction over PubSub
type EventPublisher interface {
	Publish(ctx context.Context, topic string, msg interface{}) error
}

//Client Real PubSub client.
type Client struct {
	inner *pubsub.Client
}

//NewClient Creates PubSub client of the project.
func NewClient(ctx context.Context, projectID string) (*Client, error) {
	inner, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return &Client{inner: inner}, nil
}

//Close Closes the client.
func (c *Client) Close() error {
	return c.inner.Close()
}

//Publish Publish message to some topic.
func (c *Client) Publish(ctx context.Context, topic string, msg interface{}) error {
	var t = c.inner.Topic(topic)
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	result := t.Publish(ctx, &pubsub.Message{Data: payload})

	// The Get method blocks until a server-generated ID or
	// an error is returned for the published message.
	_, err = result.Get(ctx)
	return err
}

//MockClient NOOP PubSub client.
type MockClient struct{}

//Publish Publish message to some topic.
func (c MockClient) Publish(ctx context.Context, topic string, msg interface{}) error {
	return nil
}

//DispatchedEvent Summary of a finished group dispatch.
type DispatchedEvent struct {
	Delivered   int                  `json:"delivered"`
	Invalid     int                  `json:"invalid"`
	Replaced    int                  `json:"replaced"`
	Failed      int                  `json:"failed"`
	Skipped     int                  `json:"skipped"`
	Mutations   int                  `json:"mutations"`
	BatchErrors int                  `json:"batchErrors"`
	Cancelled   bool                 `json:"cancelled"`
	Channels    []push.ChannelReport `json:"channels"`
	StartedAt   int64                `json:"startedAt"`
	FinishedAt  int64                `json:"finishedAt"`
}

//ReportPublisher Publishes dispatch reports to a topic.
type ReportPublisher struct {
	publisher EventPublisher
	topic     string
}

var _ push.ReportPublisher = (*ReportPublisher)(nil)

//NewReportPublisher Creates report publisher.
func NewReportPublisher(publisher EventPublisher, topic string) *ReportPublisher {
	return &ReportPublisher{publisher: publisher, topic: topic}
}

//PublishReport Publishes summary of the report.
func (p *ReportPublisher) PublishReport(ctx context.Context, report *push.DispatchReport) error {
	return p.publisher.Publish(ctx, p.topic, NewDispatchedEvent(report))
}

//NewDispatchedEvent Summarizes the report.
func NewDispatchedEvent(report *push.DispatchReport) DispatchedEvent {
	return DispatchedEvent{
		Delivered:   report.Delivered,
		Invalid:     report.Invalid,
		Replaced:    report.Replaced,
		Failed:      report.Failed,
		Skipped:     report.Skipped,
		Mutations:   len(report.Mutations),
		BatchErrors: len(report.BatchErrors),
		Cancelled:   report.Cancelled,
		Channels:    report.Channels,
		StartedAt:   report.StartedAt.Unix(),
		FinishedAt:  report.FinishedAt.Unix(),
	}
}
