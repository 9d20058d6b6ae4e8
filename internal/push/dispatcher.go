package push

import (
	"context"
	"errors"
	"fmt"

	"github.com/covid19cz/erouska-push/internal/logging"
	errs "github.com/covid19cz/erouska-push/internal/utils/errors"
)

const missingResultMsg = "gateway returned no result for the recipient"

//Dispatcher Wire adapter between batches and platform transports. It never touches the registry.
type Dispatcher struct {
	transports map[Platform]TransportClient
}

//NewDispatcher Creates dispatcher with one transport per platform.
func NewDispatcher(transports map[Platform]TransportClient) *Dispatcher {
	copied := make(map[Platform]TransportClient, len(transports))
	for p, t := range transports {
		if t != nil {
			copied[p] = t
		}
	}
	return &Dispatcher{transports: copied}
}

//Supports Checks a transport is registered for the channel.
func (d *Dispatcher) Supports(channel Channel) error {
	transport, ok := d.transports[channel.Platform]
	if !ok {
		return errs.NewConfigurationError("no transport client registered for platform %v", channel.Platform)
	}
	if s, ok := transport.(ChannelSupporter); ok && !s.SupportsChannel(channel) {
		return errs.NewConfigurationError("transport of %v is not configured for channel %v", channel.Platform, channel)
	}
	return nil
}

//Dispatch Sends the batch and returns one outcome per identifier, in batch order. When the whole gateway call
//fails, every identifier gets TransientFailure and the TransportError is returned alongside.
func (d *Dispatcher) Dispatch(ctx context.Context, batch Batch) ([]RecipientOutcome, error) {
	logger := logging.FromContext(ctx).Named("push.dispatcher")

	if len(batch.RegistrationIDs) == 0 {
		return nil, nil
	}

	transport, ok := d.transports[batch.Channel.Platform]
	if !ok {
		return nil, d.Supports(batch.Channel)
	}

	logger.Debugf("Dispatching batch %v of %v with %v recipients", batch.Index, batch.Channel, len(batch.RegistrationIDs))

	outcomes, err := transport.SendBulk(ctx, batch.Channel, batch.Payload, batch.RegistrationIDs)
	if err != nil {
		var transportErr *errs.TransportError
		if !errors.As(err, &transportErr) {
			transportErr = &errs.TransportError{Gateway: batch.Channel.String(), Err: err}
		}

		logger.Warnf("Batch %v of %v failed as a whole: %v", batch.Index, batch.Channel, err)

		failed := make([]RecipientOutcome, len(batch.RegistrationIDs))
		for i, id := range batch.RegistrationIDs {
			failed[i] = Failed(id, transportErr.Error())
		}
		return failed, transportErr
	}

	return alignOutcomes(batch.RegistrationIDs, outcomes), nil
}

// alignOutcomes puts outcomes into the order of ids. Gateways answering positionally may leave RegistrationID
// empty; anything the gateway didn't answer becomes TransientFailure.
func alignOutcomes(ids []string, outcomes []RecipientOutcome) []RecipientOutcome {
	aligned := make([]RecipientOutcome, len(ids))

	if len(outcomes) == len(ids) {
		positional := true
		for i, o := range outcomes {
			if o.RegistrationID != "" && o.RegistrationID != ids[i] {
				positional = false
				break
			}
		}
		if positional {
			for i, o := range outcomes {
				o.RegistrationID = ids[i]
				aligned[i] = o
			}
			return aligned
		}
	}

	byID := make(map[string][]RecipientOutcome, len(outcomes))
	for _, o := range outcomes {
		byID[o.RegistrationID] = append(byID[o.RegistrationID], o)
	}

	for i, id := range ids {
		queue := byID[id]
		if len(queue) == 0 {
			aligned[i] = Failed(id, missingResultMsg)
			continue
		}
		aligned[i] = queue[0]
		byID[id] = queue[1:]
	}

	return aligned
}

func (b Batch) String() string {
	return fmt.Sprintf("%v#%v[%v+%v]", b.Channel, b.Index, b.Offset, len(b.RegistrationIDs))
}
