package data

import (
	"encoding/json"
	"fmt"
	"time"

	"TrackHub/pkg/utils"

	"github.com/jmoiron/sqlx"
)

// Sample kinds persisted for telemetry items.
const (
	KindGPS     = "GPS"
	KindBattery = "BATTERY"
)

type Sample struct {
	ID        int64           `db:"id" json:"id"`
	DeviceID  int64           `db:"device_id" json:"device_id"`
	Kind      string          `db:"kind" json:"kind"`
	Payload   json.RawMessage `db:"payload" json:"payload"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

type Repo struct {
	db *sqlx.DB
}

func NewRepo(db *sqlx.DB) *Repo {
	return &Repo{db: db}
}

// CreateSample persists one telemetry value for a device. payload may be any
// JSON-encodable value.
func (r *Repo) CreateSample(deviceID int64, payload any, kind string) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal sample payload: %w", err)
	}
	query := "INSERT INTO data_samples (id, device_id, kind, payload, created_at) VALUES (?, ?, ?, ?, ?)"
	if _, err := r.db.Exec(query, utils.GenID(), deviceID, kind, raw, time.Now()); err != nil {
		return fmt.Errorf("failed to insert data sample: %w", err)
	}
	return nil
}

// ListByDevice returns the newest samples for a device, optionally filtered
// by kind.
func (r *Repo) ListByDevice(deviceID int64, kind string, limit int) ([]Sample, error) {
	if limit <= 0 {
		limit = 100
	}
	var samples []Sample
	if kind != "" {
		query := "SELECT id, device_id, kind, payload, created_at FROM data_samples WHERE device_id = ? AND kind = ? ORDER BY created_at DESC LIMIT ?"
		if err := r.db.Select(&samples, query, deviceID, kind, limit); err != nil {
			return nil, fmt.Errorf("failed to list data samples: %w", err)
		}
		return samples, nil
	}
	query := "SELECT id, device_id, kind, payload, created_at FROM data_samples WHERE device_id = ? ORDER BY created_at DESC LIMIT ?"
	if err := r.db.Select(&samples, query, deviceID, limit); err != nil {
		return nil, fmt.Errorf("failed to list data samples: %w", err)
	}
	return samples, nil
}
