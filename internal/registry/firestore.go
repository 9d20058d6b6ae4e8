package registry

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/covid19cz/erouska-push/internal/constants"
	"github.com/covid19cz/erouska-push/internal/logging"
	"github.com/covid19cz/erouska-push/internal/push"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var _ push.Registry = (*Firestore)(nil)

// Firestore keeps devices in a Firestore collection, document ID is the device ID.
type Firestore struct {
	client     *firestore.Client
	collection string
}

// NewFirestore creates registry over given client.
func NewFirestore(client *firestore.Client) *Firestore {
	return &Firestore{client: client, collection: constants.CollectionDevices}
}

func (f *Firestore) doc(deviceID string) *firestore.DocumentRef {
	return f.client.Collection(f.collection).Doc(deviceID)
}

func (f *Firestore) byRegistrationID(platform push.Platform, registrationID string) firestore.Query {
	return f.client.Collection(f.collection).
		Where("platform", "==", string(platform)).
		Where("registrationId", "==", registrationID).
		Limit(1)
}

// Register stores new device unless the registration id is already used within the platform.
func (f *Firestore) Register(ctx context.Context, device push.DeviceRecord) (string, error) {
	logger := logging.FromContext(ctx).Named("registry.firestore.Register")

	if device.ID == "" {
		device.ID = uuid.New().String()
	}
	doc := f.doc(device.ID)

	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		existing, err := tx.Documents(f.byRegistrationID(device.Platform, device.RegistrationID)).GetAll()
		if err != nil {
			return fmt.Errorf("Error while querying Firestore: %v", err)
		}
		if len(existing) > 0 {
			return fmt.Errorf("registration id already used by device %v", existing[0].Ref.ID)
		}

		logger.Debugf("Saving device %v", device.ID)

		return tx.Create(doc, device)
	})

	return device.ID, err
}

// QueryActiveDevices returns active devices matching the query ordered by creation.
func (f *Firestore) QueryActiveDevices(ctx context.Context, query push.Query) ([]push.DeviceRecord, error) {
	q := f.client.Collection(f.collection).
		Where("platform", "==", string(query.Platform)).
		Where("active", "==", true)
	if query.Environment != "" {
		q = q.Where("environment", "==", string(query.Environment))
	}
	if query.UserID != "" {
		q = q.Where("userId", "==", query.UserID)
	}

	iter := q.OrderBy("createdAt", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var devices []push.DeviceRecord
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("Error while querying Firestore: %v", err)
		}

		device, err := toDevice(snap)
		if err != nil {
			return nil, err
		}
		devices = append(devices, *device)
	}

	return devices, nil
}

// Get returns device by id, nil when not found.
func (f *Firestore) Get(ctx context.Context, deviceID string) (*push.DeviceRecord, error) {
	snap, err := f.doc(deviceID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("Error while querying Firestore: %v", err)
	}
	return toDevice(snap)
}

// FindByRegistrationID returns device holding the registration id, nil when not found.
func (f *Firestore) FindByRegistrationID(ctx context.Context, platform push.Platform, registrationID string) (*push.DeviceRecord, error) {
	snaps, err := f.byRegistrationID(platform, registrationID).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("Error while querying Firestore: %v", err)
	}
	if len(snaps) == 0 {
		return nil, nil
	}
	return toDevice(snaps[0])
}

// Deactivate marks the device inactive.
func (f *Firestore) Deactivate(ctx context.Context, deviceID string) error {
	return f.mutate(ctx, deviceID, func(tx *firestore.Transaction, doc *firestore.DocumentRef) error {
		return tx.Update(doc, []firestore.Update{{Path: "active", Value: false}})
	})
}

// Delete removes the device.
func (f *Firestore) Delete(ctx context.Context, deviceID string) error {
	return f.mutate(ctx, deviceID, func(tx *firestore.Transaction, doc *firestore.DocumentRef) error {
		return tx.Delete(doc)
	})
}

// UpdateRegistrationID sets new registration id of the device.
func (f *Firestore) UpdateRegistrationID(ctx context.Context, deviceID string, newID string) error {
	return f.mutate(ctx, deviceID, func(tx *firestore.Transaction, doc *firestore.DocumentRef) error {
		return tx.Update(doc, []firestore.Update{{Path: "registrationId", Value: newID}})
	})
}

// mutate runs f in a transaction when the device exists, missing device is a no-op.
func (f *Firestore) mutate(ctx context.Context, deviceID string, fn func(*firestore.Transaction, *firestore.DocumentRef) error) error {
	logger := logging.FromContext(ctx).Named("registry.firestore.mutate")
	doc := f.doc(deviceID)

	return f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(doc); err != nil {
			if status.Code(err) == codes.NotFound {
				logger.Debugf("Device %v not found, nothing to do", deviceID)
				return nil
			}
			return fmt.Errorf("Error while querying Firestore: %v", err)
		}
		return fn(tx, doc)
	})
}

func toDevice(snap *firestore.DocumentSnapshot) (*push.DeviceRecord, error) {
	var device push.DeviceRecord
	if err := snap.DataTo(&device); err != nil {
		return nil, fmt.Errorf("Could not decode device %v: %v", snap.Ref.ID, err)
	}
	device.ID = snap.Ref.ID
	return &device, nil
}
