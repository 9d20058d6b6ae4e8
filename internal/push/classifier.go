package push

import (
	errs "github.com/covid19cz/erouska-push/internal/utils/errors"
)

//ChannelGroup Registration identifiers of one channel, in input order.
type ChannelGroup struct {
	Channel         Channel
	RegistrationIDs []string
}

//Classification Devices partitioned by channel. Groups are ordered by first appearance of their channel.
type Classification struct {
	Groups []ChannelGroup
	index  map[Channel]int
}

//IDs Identifiers of given channel, nil when the channel has no device.
func (c *Classification) IDs(channel Channel) []string {
	if i, ok := c.index[channel]; ok {
		return c.Groups[i].RegistrationIDs
	}
	return nil
}

//Len Number of classified identifiers.
func (c *Classification) Len() int {
	n := 0
	for _, g := range c.Groups {
		n += len(g.RegistrationIDs)
	}
	return n
}

//ChannelOf Computes delivery channel of the device.
func ChannelOf(device DeviceRecord) (Channel, error) {
	switch {
	case !device.Platform.Valid():
		return Channel{}, errs.NewConfigurationError("device %v has unknown platform %q", device.ID, device.Platform)
	case !device.Platform.HasEnvironments():
		return Channel{Platform: device.Platform}, nil
	case !device.Environment.Valid():
		return Channel{}, errs.NewConfigurationError("%v device %v has invalid environment %q", device.Platform, device.ID, device.Environment)
	default:
		return Channel{Platform: device.Platform, Environment: device.Environment}, nil
	}
}

//Classify Partitions active devices by channel. Inactive devices are left out. The first device that can't be
//classified fails the whole classification with ConfigurationError.
func Classify(devices []DeviceRecord) (*Classification, error) {
	c := &Classification{index: make(map[Channel]int)}

	for _, device := range devices {
		if !device.Active {
			continue
		}

		channel, err := ChannelOf(device)
		if err != nil {
			return nil, err
		}

		i, ok := c.index[channel]
		if !ok {
			i = len(c.Groups)
			c.index[channel] = i
			c.Groups = append(c.Groups, ChannelGroup{Channel: channel})
		}
		c.Groups[i].RegistrationIDs = append(c.Groups[i].RegistrationIDs, device.RegistrationID)
	}

	return c, nil
}
