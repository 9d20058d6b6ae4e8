package registry

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/GoogleCloudPlatform/cloudsql-proxy/proxy/proxy"
	"github.com/covid19cz/erouska-push/internal/logging"
	"github.com/covid19cz/erouska-push/internal/push"
	"github.com/go-pg/pg/v10"
	"github.com/go-pg/pg/v10/orm"
	"github.com/google/uuid"
)

type deviceRow struct {
	tableName struct{} `pg:"push_devices"` //nolint:unused,structcheck

	ID             string    `pg:"id,pk"`
	RegistrationID string    `pg:"registration_id,notnull,unique:platform_registration"`
	Platform       string    `pg:"platform,notnull,unique:platform_registration"`
	Environment    string    `pg:"environment"`
	HardwareID     string    `pg:"hardware_id"`
	UserID         string    `pg:"user_id"`
	Name           string    `pg:"name"`
	Active         bool      `pg:"active,notnull,use_zero"`
	CreatedAt      time.Time `pg:"created_at,notnull"`
}

func fromDevice(d push.DeviceRecord) *deviceRow {
	return &deviceRow{
		ID:             d.ID,
		RegistrationID: d.RegistrationID,
		Platform:       string(d.Platform),
		Environment:    string(d.Environment),
		HardwareID:     d.HardwareID,
		UserID:         d.UserID,
		Name:           d.Name,
		Active:         d.Active,
		CreatedAt:      d.CreatedAt,
	}
}

func (r *deviceRow) toDevice() push.DeviceRecord {
	return push.DeviceRecord{
		ID:             r.ID,
		RegistrationID: r.RegistrationID,
		Platform:       push.Platform(r.Platform),
		Environment:    push.Environment(r.Environment),
		HardwareID:     r.HardwareID,
		UserID:         r.UserID,
		Name:           r.Name,
		Active:         r.Active,
		CreatedAt:      r.CreatedAt,
	}
}

var _ push.Registry = (*Postgres)(nil)

// PostgresConfig Connection settings of the Postgres registry.
type PostgresConfig struct {
	Addr     string
	User     string
	Password string
	Database string
	// CloudSQLConnectionName makes the connection go through Cloud SQL proxy.
	CloudSQLConnectionName string
}

// Postgres keeps devices in a Postgres table.
type Postgres struct {
	inner *pg.DB
}

// NewPostgres connects to the database and creates the schema when missing.
func NewPostgres(ctx context.Context, config PostgresConfig) (*Postgres, error) {
	logger := logging.FromContext(ctx).Named("registry.postgres.NewPostgres")

	options := &pg.Options{
		Addr:     config.Addr,
		User:     config.User,
		Password: config.Password,
		Database: config.Database,
	}
	if config.CloudSQLConnectionName != "" {
		logger.Debugf("Connecting through Cloud SQL proxy to %v", config.CloudSQLConnectionName)
		options.Dialer = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return proxy.Dial(config.CloudSQLConnectionName)
		}
	}

	p := &Postgres{inner: pg.Connect(options)}

	if err := p.createSchema(ctx); err != nil {
		return nil, fmt.Errorf("Error while creating DB schema: %v", err)
	}

	return p, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() error {
	return p.inner.Close()
}

func (p *Postgres) createSchema(ctx context.Context) error {
	return p.inner.ModelContext(ctx, (*deviceRow)(nil)).CreateTable(&orm.CreateTableOptions{
		IfNotExists: true,
	})
}

// Register stores new device.
func (p *Postgres) Register(ctx context.Context, device push.DeviceRecord) (string, error) {
	if device.ID == "" {
		device.ID = uuid.New().String()
	}
	if device.CreatedAt.IsZero() {
		device.CreatedAt = time.Now()
	}

	if _, err := p.inner.ModelContext(ctx, fromDevice(device)).Insert(); err != nil {
		return "", err
	}
	return device.ID, nil
}

// QueryActiveDevices returns active devices matching the query ordered by creation.
func (p *Postgres) QueryActiveDevices(ctx context.Context, query push.Query) ([]push.DeviceRecord, error) {
	var rows []deviceRow

	q := p.inner.ModelContext(ctx, &rows).
		Where("platform = ?", string(query.Platform)).
		Where("active = TRUE")
	if query.Environment != "" {
		q = q.Where("environment = ?", string(query.Environment))
	}
	if query.UserID != "" {
		q = q.Where("user_id = ?", query.UserID)
	}

	if err := q.Order("created_at ASC", "id ASC").Select(); err != nil {
		return nil, err
	}

	devices := make([]push.DeviceRecord, 0, len(rows))
	for i := range rows {
		devices = append(devices, rows[i].toDevice())
	}
	return devices, nil
}

// Get returns device by id, nil when not found.
func (p *Postgres) Get(ctx context.Context, deviceID string) (*push.DeviceRecord, error) {
	return p.first(ctx, func(q *orm.Query) *orm.Query {
		return q.Where("id = ?", deviceID)
	})
}

// FindByRegistrationID returns device holding the registration id, nil when not found.
func (p *Postgres) FindByRegistrationID(ctx context.Context, platform push.Platform, registrationID string) (*push.DeviceRecord, error) {
	return p.first(ctx, func(q *orm.Query) *orm.Query {
		return q.Where("platform = ?", string(platform)).Where("registration_id = ?", registrationID)
	})
}

func (p *Postgres) first(ctx context.Context, where func(*orm.Query) *orm.Query) (*push.DeviceRecord, error) {
	var rows []deviceRow
	if err := where(p.inner.ModelContext(ctx, &rows)).Limit(1).Select(); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	device := rows[0].toDevice()
	return &device, nil
}

// Deactivate marks the device inactive.
func (p *Postgres) Deactivate(ctx context.Context, deviceID string) error {
	_, err := p.inner.ModelContext(ctx, (*deviceRow)(nil)).
		Set("active = FALSE").
		Where("id = ?", deviceID).
		Update()
	return err
}

// Delete removes the device.
func (p *Postgres) Delete(ctx context.Context, deviceID string) error {
	_, err := p.inner.ModelContext(ctx, (*deviceRow)(nil)).
		Where("id = ?", deviceID).
		Delete()
	return err
}

// UpdateRegistrationID sets new registration id of the device.
func (p *Postgres) UpdateRegistrationID(ctx context.Context, deviceID string, newID string) error {
	_, err := p.inner.ModelContext(ctx, (*deviceRow)(nil)).
		Set("registration_id = ?", newID).
		Where("id = ?", deviceID).
		Update()
	return err
}
