package push

import "time"

//BatchError Batch whose gateway call failed as a whole.
type BatchError struct {
	Channel    Channel `json:"channel"`
	BatchIndex int     `json:"batchIndex"`
	Size       int     `json:"size"`
	Message    string  `json:"message"`
}

//ChannelReport Result of one channel of a dispatch.
type ChannelReport struct {
	Channel   Channel `json:"channel"`
	Batches   int     `json:"batches"`
	Delivered int     `json:"delivered"`
	Invalid   int     `json:"invalid"`
	Replaced  int     `json:"replaced"`
	Failed    int     `json:"failed"`
	Skipped   int     `json:"skipped"`

	// Outcomes in registration identifier order, skipped batches left out.
	Outcomes []RecipientOutcome `json:"-"`
}

//Total Recipients with an outcome.
func (c ChannelReport) Total() int {
	return c.Delivered + c.Invalid + c.Replaced + c.Failed
}

func (c *ChannelReport) count(outcomes []RecipientOutcome) {
	for _, o := range outcomes {
		switch o.Kind {
		case Delivered:
			c.Delivered++
		case InvalidRegistration:
			c.Invalid++
		case Replaced:
			c.Replaced++
		default:
			c.Failed++
		}
	}
}

//DispatchReport Aggregate result of one dispatch call.
type DispatchReport struct {
	Delivered int `json:"delivered"`
	Invalid   int `json:"invalid"`
	Replaced  int `json:"replaced"`
	Failed    int `json:"failed"`
	// Recipients whose batch never started because the dispatch was cancelled.
	Skipped int `json:"skipped"`

	Channels        []ChannelReport `json:"channels"`
	Mutations       []Mutation      `json:"mutations"`
	BatchErrors     []BatchError    `json:"batchErrors,omitempty"`
	ReconcileErrors []string        `json:"reconcileErrors,omitempty"`
	Cancelled       bool            `json:"cancelled"`

	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

//Total Recipients with an outcome.
func (r *DispatchReport) Total() int {
	return r.Delivered + r.Invalid + r.Replaced + r.Failed
}

//Channel Report of given channel, nil if the channel wasn't part of the dispatch.
func (r *DispatchReport) Channel(channel Channel) *ChannelReport {
	for i := range r.Channels {
		if r.Channels[i].Channel == channel {
			return &r.Channels[i]
		}
	}
	return nil
}

func (r *DispatchReport) merge(channel ChannelReport) {
	r.Delivered += channel.Delivered
	r.Invalid += channel.Invalid
	r.Replaced += channel.Replaced
	r.Failed += channel.Failed
	r.Skipped += channel.Skipped
	r.Channels = append(r.Channels, channel)
}
