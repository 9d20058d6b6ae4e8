package push

import "context"

//Query Selection of active devices in the registry. Empty Environment matches all environments.
type Query struct {
	Platform    Platform
	Environment Environment
	UserID      string
}

//Registry Device registry as seen by the dispatch engine. Mutations of absent devices are no-ops.
type Registry interface {
	QueryActiveDevices(ctx context.Context, query Query) ([]DeviceRecord, error)
	Get(ctx context.Context, deviceID string) (*DeviceRecord, error)
	FindByRegistrationID(ctx context.Context, platform Platform, registrationID string) (*DeviceRecord, error)
	Deactivate(ctx context.Context, deviceID string) error
	Delete(ctx context.Context, deviceID string) error
	UpdateRegistrationID(ctx context.Context, deviceID string, newID string) error
}

//TransportClient Gateway client of one platform. It returns one outcome per identifier or an error when the whole request failed.
type TransportClient interface {
	SendBulk(ctx context.Context, channel Channel, payload *Payload, ids []string) ([]RecipientOutcome, error)
}

//Locker Serializes registry writers across processes.
type Locker interface {
	Lock(ctx context.Context, name string) (unlock func(), err error)
}

//ReportPublisher Publishes finished dispatch reports.
type ReportPublisher interface {
	PublishReport(ctx context.Context, report *DispatchReport) error
}

//CounterRecorder Accumulates per-channel delivery counters.
type CounterRecorder interface {
	RecordReport(ctx context.Context, report *DispatchReport) error
}

//ExpiredSource Log of registration identifiers the gateway reported as expired.
type ExpiredSource interface {
	// FetchInactiveIDs drains the log of the environment.
	FetchInactiveIDs(ctx context.Context, env Environment) ([]string, error)
	// PeekInactiveIDs reads the log without clearing it.
	PeekInactiveIDs(ctx context.Context, env Environment) ([]string, error)
}

//ChannelSupporter Implemented by transports that serve only some channels of their platform.
type ChannelSupporter interface {
	SupportsChannel(channel Channel) bool
}
