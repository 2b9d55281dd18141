package device

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"TrackHub/pkg/utils"

	"github.com/jmoiron/sqlx"
)

var ErrNotFound = errors.New("device not found")

type Device struct {
	ID           int64     `db:"id" json:"id"`
	IMEI         string    `db:"imei" json:"imei"`
	Name         string    `db:"name" json:"name"`
	Battery      int       `db:"battery" json:"battery"`
	LastConnAt   time.Time `db:"last_conn_at" json:"last_conn_at"`
	RegisteredAt time.Time `db:"registered_at" json:"registered_at"`
}

type Repo struct {
	db *sqlx.DB
}

func NewRepo(db *sqlx.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) FindByIMEI(imei string) (*Device, error) {
	var d Device
	query := "SELECT id, imei, name, battery, last_conn_at, registered_at FROM devices WHERE imei = ?"
	err := r.db.Get(&d, query, imei)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device by imei: %w", err)
	}
	return &d, nil
}

// Create registers a first-seen device: zero battery, now as both last
// connection and registration time, no group memberships.
func (r *Repo) Create(imei string) (*Device, error) {
	now := time.Now()
	d := &Device{
		ID:           utils.GenID(),
		IMEI:         imei,
		Battery:      0,
		LastConnAt:   now,
		RegisteredAt: now,
	}
	query := "INSERT INTO devices (id, imei, name, battery, last_conn_at, registered_at) VALUES (?, ?, ?, ?, ?, ?)"
	if _, err := r.db.Exec(query, d.ID, d.IMEI, d.Name, d.Battery, d.LastConnAt, d.RegisteredAt); err != nil {
		return nil, fmt.Errorf("failed to insert device: %w", err)
	}
	return d, nil
}

func (r *Repo) TouchLastConn(imei string) error {
	query := "UPDATE devices SET last_conn_at = ? WHERE imei = ?"
	if _, err := r.db.Exec(query, time.Now(), imei); err != nil {
		return fmt.Errorf("failed to update device last connection: %w", err)
	}
	return nil
}

func (r *Repo) UpdateBattery(imei string, percent int) error {
	query := "UPDATE devices SET battery = ? WHERE imei = ?"
	if _, err := r.db.Exec(query, percent, imei); err != nil {
		return fmt.Errorf("failed to update device battery: %w", err)
	}
	return nil
}

// GroupIDs returns the device's current group memberships. Queried fresh per
// dispatch; membership is never cached across envelopes.
func (r *Repo) GroupIDs(deviceID int64) ([]int64, error) {
	var ids []int64
	query := "SELECT group_id FROM device_groups WHERE device_id = ?"
	if err := r.db.Select(&ids, query, deviceID); err != nil {
		return nil, fmt.Errorf("failed to get group ids for device: %w", err)
	}
	return ids, nil
}

func (r *Repo) List() ([]Device, error) {
	var devices []Device
	query := "SELECT id, imei, name, battery, last_conn_at, registered_at FROM devices ORDER BY registered_at DESC"
	if err := r.db.Select(&devices, query); err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return devices, nil
}
