package push

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/covid19cz/erouska-push/internal/constants"
	"github.com/covid19cz/erouska-push/internal/logging"
	errs "github.com/covid19cz/erouska-push/internal/utils/errors"
)

//Policy What happens to a device whose registration the gateway reports as invalid.
type Policy string

const (
	//PolicyDeactivate Keep the record, mark it inactive.
	PolicyDeactivate Policy = "deactivate"
	//PolicyDelete Remove the record.
	PolicyDelete Policy = "delete"
)

//ParsePolicy Parses policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyDeactivate, PolicyDelete:
		return p, nil
	default:
		return "", errs.NewConfigurationError("unknown invalid registration policy %q", s)
	}
}

//MutationKind Kind of registry write.
type MutationKind string

const (
	//MutationDeactivate Device marked inactive.
	MutationDeactivate MutationKind = "deactivate"
	//MutationDelete Device deleted.
	MutationDelete MutationKind = "delete"
	//MutationUpdateRegistrationID Registration identifier rotated.
	MutationUpdateRegistrationID MutationKind = "update_registration_id"
)

//Mutation Registry write applied by the reconciler. Registration identifiers are credentials and never leave the process.
type Mutation struct {
	Kind              MutationKind `json:"kind"`
	DeviceID          string       `json:"deviceId"`
	RegistrationID    string       `json:"-"`
	NewRegistrationID string       `json:"-"`
}

//Reconciler Applies delivery outcomes onto the registry. It's the only registry writer of the engine.
type Reconciler struct {
	registry      Registry
	policy        Policy
	locker        Locker
	retryAttempts uint
	retryDelay    time.Duration
}

//ReconcilerOption Optional reconciler setting.
type ReconcilerOption func(*Reconciler)

//WithLocker Serializes reconciliation of a channel through the locker.
func WithLocker(locker Locker) ReconcilerOption {
	return func(r *Reconciler) {
		r.locker = locker
	}
}

//WithRetry Retries failed registry writes.
func WithRetry(attempts uint, delay time.Duration) ReconcilerOption {
	return func(r *Reconciler) {
		if attempts > 0 {
			r.retryAttempts = attempts
		}
		r.retryDelay = delay
	}
}

//NewReconciler Creates reconciler.
func NewReconciler(registry Registry, policy Policy, opts ...ReconcilerOption) (*Reconciler, error) {
	if registry == nil {
		return nil, errs.NewConfigurationError("reconciler needs a registry")
	}
	if _, err := ParsePolicy(string(policy)); err != nil {
		return nil, err
	}

	r := &Reconciler{
		registry:      registry,
		policy:        policy,
		retryAttempts: 3,
		retryDelay:    100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

//Policy Configured invalid registration policy.
func (r *Reconciler) Policy() Policy {
	return r.policy
}

//Apply Applies outcomes of one channel in their order. Outcomes referring to identifiers that are not in the
//registry are skipped. Failed writes don't stop the rest, they're returned joined.
func (r *Reconciler) Apply(ctx context.Context, channel Channel, outcomes []RecipientOutcome) ([]Mutation, error) {
	logger := logging.FromContext(ctx).Named("push.reconciler")

	if !needsReconciliation(outcomes) {
		return nil, nil
	}

	unlock, err := r.lock(ctx, channel)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var mutations []Mutation
	var failures []error

	for _, outcome := range outcomes {
		var m *Mutation
		var err error

		switch outcome.Kind {
		case InvalidRegistration:
			m, err = r.applyInvalid(ctx, channel, outcome)
		case Replaced:
			m, err = r.applyReplaced(ctx, channel, outcome)
		default:
			continue
		}

		if err != nil {
			logger.Warnf("Could not reconcile %v outcome of %v: %v", outcome.Kind, outcome.RegistrationID, err)
			failures = append(failures, err)
			continue
		}
		if m != nil {
			logger.Debugf("Applied %v to device %v", m.Kind, m.DeviceID)
			mutations = append(mutations, *m)
		}
	}

	return mutations, errors.Join(failures...)
}

//Remove Deletes devices of one channel regardless of the policy, the gateway reported them as gone for good.
//Devices already missing from the registry are skipped.
func (r *Reconciler) Remove(ctx context.Context, channel Channel, devices []DeviceRecord) ([]Mutation, error) {
	logger := logging.FromContext(ctx).Named("push.reconciler.Remove")

	if len(devices) == 0 {
		return nil, nil
	}

	unlock, err := r.lock(ctx, channel)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var mutations []Mutation
	var failures []error

	for _, device := range devices {
		current, err := r.get(ctx, device.ID)
		if err != nil {
			logger.Warnf("Could not load device %v: %v", device.ID, err)
			failures = append(failures, err)
			continue
		}
		// gone already, or re-registered with a fresh identifier meanwhile
		if current == nil || current.RegistrationID != device.RegistrationID {
			continue
		}

		if err := r.write(ctx, func() error { return r.registry.Delete(ctx, device.ID) }); err != nil {
			logger.Warnf("Could not delete device %v: %v", device.ID, err)
			failures = append(failures, err)
			continue
		}

		logger.Debugf("Deleted device %v", device.ID)
		mutations = append(mutations, Mutation{Kind: MutationDelete, DeviceID: device.ID, RegistrationID: current.RegistrationID})
	}

	return mutations, errors.Join(failures...)
}

func (r *Reconciler) lock(ctx context.Context, channel Channel) (func(), error) {
	if r.locker == nil {
		return func() {}, nil
	}

	lockName := constants.MutexNameReconcilePrefix + strings.ReplaceAll(channel.String(), "/", "-")
	unlock, err := r.locker.Lock(ctx, lockName)
	if err != nil {
		return nil, fmt.Errorf("could not acquire '%v' lock: %w", lockName, err)
	}
	return unlock, nil
}

func needsReconciliation(outcomes []RecipientOutcome) bool {
	for _, o := range outcomes {
		if o.Kind == InvalidRegistration || o.Kind == Replaced {
			return true
		}
	}
	return false
}

func (r *Reconciler) applyInvalid(ctx context.Context, channel Channel, outcome RecipientOutcome) (*Mutation, error) {
	device, err := r.find(ctx, channel.Platform, outcome.RegistrationID)
	if err != nil || device == nil {
		return nil, err
	}
	return r.retire(ctx, device)
}

func (r *Reconciler) applyReplaced(ctx context.Context, channel Channel, outcome RecipientOutcome) (*Mutation, error) {
	if outcome.NewRegistrationID == "" || outcome.NewRegistrationID == outcome.RegistrationID {
		return nil, nil
	}

	device, err := r.find(ctx, channel.Platform, outcome.RegistrationID)
	if err != nil || device == nil || !device.Active {
		return nil, err
	}

	holder, err := r.find(ctx, channel.Platform, outcome.NewRegistrationID)
	if err != nil {
		return nil, err
	}
	if holder != nil && holder.ID != device.ID {
		// the new identifier is already registered, the old record is a duplicate
		return r.retire(ctx, device)
	}

	err = r.write(ctx, func() error {
		return r.registry.UpdateRegistrationID(ctx, device.ID, outcome.NewRegistrationID)
	})
	if err != nil {
		return nil, err
	}

	return &Mutation{
		Kind:              MutationUpdateRegistrationID,
		DeviceID:          device.ID,
		RegistrationID:    outcome.RegistrationID,
		NewRegistrationID: outcome.NewRegistrationID,
	}, nil
}

func (r *Reconciler) retire(ctx context.Context, device *DeviceRecord) (*Mutation, error) {
	m := &Mutation{DeviceID: device.ID, RegistrationID: device.RegistrationID}

	switch r.policy {
	case PolicyDelete:
		m.Kind = MutationDelete
		return m, r.write(ctx, func() error { return r.registry.Delete(ctx, device.ID) })
	default:
		if !device.Active {
			return nil, nil
		}
		m.Kind = MutationDeactivate
		return m, r.write(ctx, func() error { return r.registry.Deactivate(ctx, device.ID) })
	}
}

func (r *Reconciler) find(ctx context.Context, platform Platform, registrationID string) (*DeviceRecord, error) {
	var device *DeviceRecord
	err := r.write(ctx, func() error {
		var err error
		device, err = r.registry.FindByRegistrationID(ctx, platform, registrationID)
		return err
	})
	return device, err
}

func (r *Reconciler) get(ctx context.Context, id string) (*DeviceRecord, error) {
	var device *DeviceRecord
	err := r.write(ctx, func() error {
		var err error
		device, err = r.registry.Get(ctx, id)
		return err
	})
	return device, err
}

func (r *Reconciler) write(ctx context.Context, f func() error) error {
	return retry.Do(
		f,
		retry.Attempts(r.retryAttempts),
		retry.Delay(r.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(func(err error) bool {
			return ctx.Err() == nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}),
	)
}
