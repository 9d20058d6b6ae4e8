package push

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/covid19cz/erouska-push/internal/logging"
	errs "github.com/covid19cz/erouska-push/internal/utils/errors"
	"github.com/stretchr/stew/slice"
	"golang.org/x/sync/semaphore"
)

const (
	//DefaultGCMBatchSize Max tokens of one FCM multicast request.
	DefaultGCMBatchSize = 500
	//DefaultAPNSBatchSize Tokens handed to the APNS transport at once.
	DefaultAPNSBatchSize = 100
	//DefaultMaxConcurrency Max batches in flight.
	DefaultMaxConcurrency = 8
)

//Filter Selection of devices for a group send. Empty fields don't restrict the selection. Environments only
//restrict platforms with environments.
type Filter struct {
	Platforms    []Platform    `json:"platforms,omitempty"`
	Environments []Environment `json:"environments,omitempty"`
	UserID       string        `json:"userId,omitempty"`
	DeviceIDs    []string      `json:"deviceIds,omitempty"`
}

//Sender Drives a dispatch: collect -> classify -> batch -> dispatch -> reconcile -> report.
type Sender struct {
	registry       Registry
	dispatcher     *Dispatcher
	reconciler     *Reconciler
	batchSizes     map[Platform]int
	maxConcurrency int64
	publisher      ReportPublisher
	counters       CounterRecorder
	expired        ExpiredSource
	now            func() time.Time
}

//SenderOption Optional sender setting.
type SenderOption func(*Sender)

//WithBatchSize Overrides the batch size of the platform.
func WithBatchSize(platform Platform, size int) SenderOption {
	return func(s *Sender) {
		s.batchSizes[platform] = size
	}
}

//WithMaxConcurrency Limits batches in flight.
func WithMaxConcurrency(n int) SenderOption {
	return func(s *Sender) {
		s.maxConcurrency = int64(n)
	}
}

//WithReportPublisher Publishes every group dispatch report.
func WithReportPublisher(p ReportPublisher) SenderOption {
	return func(s *Sender) {
		s.publisher = p
	}
}

//WithCounters Records every group dispatch report into counters.
func WithCounters(c CounterRecorder) SenderOption {
	return func(s *Sender) {
		s.counters = c
	}
}

//WithExpiredSource Source for FetchExpiredRegistrations.
func WithExpiredSource(e ExpiredSource) SenderOption {
	return func(s *Sender) {
		s.expired = e
	}
}

//NewSender Creates sender.
func NewSender(registry Registry, dispatcher *Dispatcher, reconciler *Reconciler, opts ...SenderOption) (*Sender, error) {
	if registry == nil || dispatcher == nil || reconciler == nil {
		return nil, errs.NewConfigurationError("sender needs registry, dispatcher and reconciler")
	}

	s := &Sender{
		registry:   registry,
		dispatcher: dispatcher,
		reconciler: reconciler,
		batchSizes: map[Platform]int{
			PlatformGCM:  DefaultGCMBatchSize,
			PlatformAPNS: DefaultAPNSBatchSize,
		},
		maxConcurrency: DefaultMaxConcurrency,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	for platform, size := range s.batchSizes {
		if size < 1 {
			return nil, errs.NewConfigurationError("batch size of %v must be positive, got %v", platform, size)
		}
	}
	if s.maxConcurrency < 1 {
		return nil, errs.NewConfigurationError("max concurrency must be positive, got %v", s.maxConcurrency)
	}

	return s, nil
}

type channelRun struct {
	group      ChannelGroup
	batches    []Batch
	outcomes   [][]RecipientOutcome
	transport  []error
	dispatched []bool
}

//SendToGroup Sends the payload to all active devices matching the filter. Failed batches are accounted in the
//report; only configuration errors (and registry read failures) are returned.
func (s *Sender) SendToGroup(ctx context.Context, filter Filter, payload *Payload) (*DispatchReport, error) {
	logger := logging.FromContext(ctx).Named("push.sender.SendToGroup")

	if payload == nil {
		return nil, errs.NewConfigurationError("missing payload")
	}

	report := &DispatchReport{StartedAt: s.now()}

	devices, err := s.collect(ctx, filter)
	if err != nil {
		return nil, err
	}

	classification, err := Classify(devices)
	if err != nil {
		logger.Errorf("Could not classify devices: %v", err)
		return nil, err
	}

	runs := make([]*channelRun, 0, len(classification.Groups))
	batchCount := 0
	for _, group := range classification.Groups {
		if err := s.dispatcher.Supports(group.Channel); err != nil {
			return nil, err
		}
		batches := SplitBatches(group.Channel, group.RegistrationIDs, s.batchSizes[group.Channel.Platform], payload)
		if len(batches) == 0 {
			continue
		}
		runs = append(runs, &channelRun{
			group:      group,
			batches:    batches,
			outcomes:   make([][]RecipientOutcome, len(batches)),
			transport:  make([]error, len(batches)),
			dispatched: make([]bool, len(batches)),
		})
		batchCount += len(batches)
	}

	logger.Infof("Dispatching to %v devices in %v channels, %v batches", classification.Len(), len(runs), batchCount)

	report.Cancelled = s.dispatchAll(ctx, runs)

	// in-flight batches were finished, their outcomes are reconciled even when ctx is done
	detached := context.WithoutCancel(ctx)

	for _, run := range runs {
		report.merge(s.reconcileRun(detached, run, report))
	}

	report.FinishedAt = s.now()

	logger.Infof("Dispatch finished: delivered=%v invalid=%v replaced=%v failed=%v skipped=%v mutations=%v",
		report.Delivered, report.Invalid, report.Replaced, report.Failed, report.Skipped, len(report.Mutations))

	s.afterDispatch(detached, report)

	return report, nil
}

// dispatchAll runs all batches bounded by maxConcurrency. Returns true when ctx ended before every batch started.
func (s *Sender) dispatchAll(ctx context.Context, runs []*channelRun) bool {
	logger := logging.FromContext(ctx).Named("push.sender.dispatchAll")

	sem := semaphore.NewWeighted(s.maxConcurrency)
	detached := context.WithoutCancel(ctx)
	var wg sync.WaitGroup
	cancelled := false

loop:
	for _, run := range runs {
		for i := range run.batches {
			if ctx.Err() != nil {
				cancelled = true
				break loop
			}
			if err := sem.Acquire(ctx, 1); err != nil {
				cancelled = true
				break loop
			}
			if ctx.Err() != nil {
				sem.Release(1)
				cancelled = true
				break loop
			}

			wg.Add(1)
			go func(run *channelRun, i int) {
				defer wg.Done()
				defer sem.Release(1)

				outcomes, err := s.dispatcher.Dispatch(detached, run.batches[i])
				run.outcomes[i] = outcomes
				run.transport[i] = err
				run.dispatched[i] = true
			}(run, i)
		}
	}

	wg.Wait()

	if cancelled {
		logger.Warnf("Dispatch cancelled, remaining batches skipped: %v", ctx.Err())
	}

	return cancelled
}

func (s *Sender) reconcileRun(ctx context.Context, run *channelRun, report *DispatchReport) ChannelReport {
	logger := logging.FromContext(ctx).Named("push.sender.reconcileRun")

	channel := ChannelReport{Channel: run.group.Channel}

	for i, batch := range run.batches {
		if !run.dispatched[i] {
			channel.Skipped += len(batch.RegistrationIDs)
			continue
		}
		channel.Batches++
		channel.Outcomes = append(channel.Outcomes, run.outcomes[i]...)

		if err := run.transport[i]; err != nil {
			report.BatchErrors = append(report.BatchErrors, BatchError{
				Channel:    batch.Channel,
				BatchIndex: batch.Index,
				Size:       len(batch.RegistrationIDs),
				Message:    err.Error(),
			})
		}
	}

	channel.count(channel.Outcomes)

	mutations, err := s.reconciler.Apply(ctx, channel.Channel, channel.Outcomes)
	if err != nil {
		logger.Errorf("Reconciliation of %v was not complete: %v", channel.Channel, err)
		report.ReconcileErrors = append(report.ReconcileErrors, fmt.Sprintf("%v: %v", channel.Channel, err))
	}
	report.Mutations = append(report.Mutations, mutations...)

	return channel
}

func (s *Sender) afterDispatch(ctx context.Context, report *DispatchReport) {
	logger := logging.FromContext(ctx).Named("push.sender.afterDispatch")

	if s.counters != nil {
		if err := s.counters.RecordReport(ctx, report); err != nil {
			logger.Warnf("Could not record counters: %v", err)
		}
	}
	if s.publisher != nil {
		if err := s.publisher.PublishReport(ctx, report); err != nil {
			logger.Warnf("Could not publish report: %v", err)
		}
	}
}

func (s *Sender) collect(ctx context.Context, filter Filter) ([]DeviceRecord, error) {
	if len(filter.DeviceIDs) > 0 {
		return s.collectByID(ctx, filter)
	}

	platforms := filter.Platforms
	if len(platforms) == 0 {
		platforms = Platforms
	}

	seen := make(map[string]bool)

	var devices []DeviceRecord
	for _, platform := range platforms {
		if !platform.Valid() {
			return nil, errs.NewConfigurationError("unknown platform %q in filter", platform)
		}

		queries := []Query{{Platform: platform, UserID: filter.UserID}}
		if platform.HasEnvironments() && len(filter.Environments) > 0 {
			queries = queries[:0]
			for _, env := range filter.Environments {
				queries = append(queries, Query{Platform: platform, Environment: env, UserID: filter.UserID})
			}
		}

		for _, q := range queries {
			found, err := s.registry.QueryActiveDevices(ctx, q)
			if err != nil {
				return nil, fmt.Errorf("could not query %v devices: %w", q.Platform, err)
			}
			// repeated filter values must not send twice
			for _, d := range found {
				if seen[d.ID] {
					continue
				}
				seen[d.ID] = true
				devices = append(devices, d)
			}
		}
	}

	return devices, nil
}

func (s *Sender) collectByID(ctx context.Context, filter Filter) ([]DeviceRecord, error) {
	seen := make(map[string]bool, len(filter.DeviceIDs))

	var devices []DeviceRecord
	for _, id := range filter.DeviceIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		device, err := s.registry.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("could not get device %v: %w", id, err)
		}
		if device == nil || !device.Active {
			continue
		}
		if len(filter.Platforms) > 0 && !slice.Contains(filter.Platforms, device.Platform) {
			continue
		}
		if device.Platform.HasEnvironments() && len(filter.Environments) > 0 && !slice.Contains(filter.Environments, device.Environment) {
			continue
		}
		if filter.UserID != "" && device.UserID != filter.UserID {
			continue
		}
		devices = append(devices, *device)
	}

	return devices, nil
}

//SendToSingleDevice Sends the payload to one active device and reconciles its outcome.
func (s *Sender) SendToSingleDevice(ctx context.Context, deviceID string, payload *Payload) (RecipientOutcome, error) {
	logger := logging.FromContext(ctx).Named("push.sender.SendToSingleDevice")

	if payload == nil {
		return RecipientOutcome{}, errs.NewConfigurationError("missing payload")
	}

	device, err := s.registry.Get(ctx, deviceID)
	if err != nil {
		return RecipientOutcome{}, fmt.Errorf("could not get device %v: %w", deviceID, err)
	}
	if device == nil || !device.Active {
		return RecipientOutcome{}, &errs.NotFoundError{Msg: fmt.Sprintf("active device %v not found", deviceID)}
	}

	channel, err := ChannelOf(*device)
	if err != nil {
		return RecipientOutcome{}, err
	}
	if err := s.dispatcher.Supports(channel); err != nil {
		return RecipientOutcome{}, err
	}

	batch := Batch{Channel: channel, RegistrationIDs: []string{device.RegistrationID}, Payload: payload}

	outcomes, err := s.dispatcher.Dispatch(context.WithoutCancel(ctx), batch)
	if err != nil {
		logger.Warnf("Sending to device %v failed: %v", deviceID, err)
	}

	if _, err := s.reconciler.Apply(context.WithoutCancel(ctx), channel, outcomes); err != nil {
		logger.Errorf("Could not reconcile outcome of device %v: %v", deviceID, err)
	}

	return outcomes[0], nil
}

//FetchExpiredRegistrations Sweeps the expired identifier log of all APNS environments and returns ids of the devices
//still in the registry.
func (s *Sender) FetchExpiredRegistrations(ctx context.Context) ([]string, error) {
	devices, err := s.expiredDevices(ctx, "push.sender.FetchExpiredRegistrations", s.fetchExpired)
	if err != nil {
		return nil, err
	}
	return deviceIDs(devices), nil
}

//PeekExpiredRegistrations Like FetchExpiredRegistrations, but leaves the expired identifier log untouched.
func (s *Sender) PeekExpiredRegistrations(ctx context.Context) ([]string, error) {
	devices, err := s.expiredDevices(ctx, "push.sender.PeekExpiredRegistrations", s.peekExpired)
	if err != nil {
		return nil, err
	}
	return deviceIDs(devices), nil
}

//PurgeExpiredRegistrations Sweeps the expired identifier log and deletes the devices through the reconciler.
func (s *Sender) PurgeExpiredRegistrations(ctx context.Context) ([]Mutation, error) {
	logger := logging.FromContext(ctx).Named("push.sender.PurgeExpiredRegistrations")

	devices, err := s.expiredDevices(ctx, "push.sender.PurgeExpiredRegistrations", s.fetchExpired)
	if err != nil {
		return nil, err
	}

	var channels []Channel
	byChannel := make(map[Channel][]DeviceRecord)
	for _, device := range devices {
		channel, err := ChannelOf(device)
		if err != nil {
			logger.Warnf("Skipping expired device %v: %v", device.ID, err)
			continue
		}
		if _, ok := byChannel[channel]; !ok {
			channels = append(channels, channel)
		}
		byChannel[channel] = append(byChannel[channel], device)
	}

	var mutations []Mutation
	var failures []error
	for _, channel := range channels {
		applied, err := s.reconciler.Remove(context.WithoutCancel(ctx), channel, byChannel[channel])
		mutations = append(mutations, applied...)
		if err != nil {
			failures = append(failures, err)
		}
	}

	logger.Infof("Deleted %v of %v expired devices", len(mutations), len(devices))

	return mutations, errors.Join(failures...)
}

func (s *Sender) fetchExpired(ctx context.Context, env Environment) ([]string, error) {
	return s.expired.FetchInactiveIDs(ctx, env)
}

func (s *Sender) peekExpired(ctx context.Context, env Environment) ([]string, error) {
	return s.expired.PeekInactiveIDs(ctx, env)
}

func (s *Sender) expiredDevices(ctx context.Context, name string, read func(context.Context, Environment) ([]string, error)) ([]DeviceRecord, error) {
	logger := logging.FromContext(ctx).Named(name)

	if s.expired == nil {
		return nil, errs.NewConfigurationError("no expired registrations source configured")
	}

	seen := make(map[string]bool)
	var devices []DeviceRecord

	for _, env := range Environments {
		ids, err := read(ctx, env)
		if err != nil {
			return nil, fmt.Errorf("could not fetch expired %v registrations: %w", env, err)
		}

		logger.Debugf("Found %v expired registrations in %v", len(ids), env)

		for _, id := range ids {
			device, err := s.registry.FindByRegistrationID(ctx, PlatformAPNS, id)
			if err != nil {
				return nil, fmt.Errorf("could not resolve registration %v: %w", id, err)
			}
			if device == nil || seen[device.ID] {
				continue
			}
			seen[device.ID] = true
			devices = append(devices, *device)
		}
	}

	return devices, nil
}

func deviceIDs(devices []DeviceRecord) []string {
	ids := make([]string, 0, len(devices))
	for _, d := range devices {
		ids = append(ids, d.ID)
	}
	return ids
}
