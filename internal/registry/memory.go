package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/covid19cz/erouska-push/internal/push"
	"github.com/google/uuid"
)

var _ push.Registry = (*Memory)(nil)

// Memory is an in-process registry. Devices keep registration order.
type Memory struct {
	mu      sync.RWMutex
	devices map[string]push.DeviceRecord
	order   []string
}

// NewMemory creates empty in-memory registry.
func NewMemory() *Memory {
	return &Memory{devices: make(map[string]push.DeviceRecord)}
}

// Register stores new device. Empty ID gets generated. Registration ID must be unique within the platform.
func (m *Memory) Register(_ context.Context, device push.DeviceRecord) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if device.ID == "" {
		device.ID = uuid.New().String()
	}
	if _, exists := m.devices[device.ID]; exists {
		return "", fmt.Errorf("device %v already registered", device.ID)
	}
	if holder := m.findLocked(device.Platform, device.RegistrationID); holder != nil {
		return "", fmt.Errorf("registration id already used by device %v", holder.ID)
	}

	m.devices[device.ID] = device
	m.order = append(m.order, device.ID)
	return device.ID, nil
}

// QueryActiveDevices returns active devices matching the query.
func (m *Memory) QueryActiveDevices(_ context.Context, query push.Query) ([]push.DeviceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []push.DeviceRecord
	for _, id := range m.order {
		d, ok := m.devices[id]
		if !ok || !d.Active || d.Platform != query.Platform {
			continue
		}
		if query.Environment != "" && d.Environment != query.Environment {
			continue
		}
		if query.UserID != "" && d.UserID != query.UserID {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// Get returns device by its id, nil when not found.
func (m *Memory) Get(_ context.Context, deviceID string) (*push.DeviceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if d, ok := m.devices[deviceID]; ok {
		return &d, nil
	}
	return nil, nil
}

// FindByRegistrationID returns device holding the registration id, nil when not found.
func (m *Memory) FindByRegistrationID(_ context.Context, platform push.Platform, registrationID string) (*push.DeviceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.findLocked(platform, registrationID), nil
}

func (m *Memory) findLocked(platform push.Platform, registrationID string) *push.DeviceRecord {
	for _, id := range m.order {
		if d, ok := m.devices[id]; ok && d.Platform == platform && d.RegistrationID == registrationID {
			return &d
		}
	}
	return nil
}

// Deactivate marks the device inactive.
func (m *Memory) Deactivate(_ context.Context, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d, ok := m.devices[deviceID]; ok {
		d.Active = false
		m.devices[deviceID] = d
	}
	return nil
}

// Delete removes the device.
func (m *Memory) Delete(_ context.Context, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.devices[deviceID]; !ok {
		return nil
	}
	delete(m.devices, deviceID)
	for i, id := range m.order {
		if id == deviceID {
			m.order = append(m.order[:i:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

// UpdateRegistrationID sets new registration id of the device.
func (m *Memory) UpdateRegistrationID(_ context.Context, deviceID string, newID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d, ok := m.devices[deviceID]; ok {
		d.RegistrationID = newID
		m.devices[deviceID] = d
	}
	return nil
}

// Snapshot returns copy of all devices in registration order.
func (m *Memory) Snapshot() []push.DeviceRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]push.DeviceRecord, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.devices[id])
	}
	return out
}
