// Package telemetry interprets decoded envelopes: it keeps device records
// current, persists samples and produces the real-time events to publish.
package telemetry

import (
	"errors"

	"TrackHub/internal/data"
	"TrackHub/internal/device"
	"TrackHub/pkg/codec"
	"TrackHub/pkg/monitor"

	"go.uber.org/zap"
)

// GPSPayload is the data half of a GPS push frame.
type GPSPayload struct {
	IMEI      string  `json:"imei"`
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
	Time      int64   `json:"time"`
}

// BroadcastEvent is one real-time event produced by dispatch. DeviceGroups
// carries the authorization scope to the publisher and never reaches the
// wire.
type BroadcastEvent struct {
	Type         string     `json:"type"`
	Data         GPSPayload `json:"data"`
	DeviceGroups []int64    `json:"-"`
}

// DeviceStore is the slice of the external store the dispatcher mutates.
// Implemented by device.Repo.
type DeviceStore interface {
	FindByIMEI(imei string) (*device.Device, error)
	Create(imei string) (*device.Device, error)
	TouchLastConn(imei string) error
	UpdateBattery(imei string, percent int) error
	GroupIDs(deviceID int64) ([]int64, error)
}

// SampleStore persists telemetry values. Implemented by data.Repo.
type SampleStore interface {
	CreateSample(deviceID int64, payload any, kind string) error
}

type Dispatcher struct {
	devices DeviceStore
	samples SampleStore
	mon     *monitor.Monitor
}

func NewDispatcher(devices DeviceStore, samples SampleStore) *Dispatcher {
	return &Dispatcher{
		devices: devices,
		samples: samples,
		mon:     monitor.NewMonitor("dispatch", 100, 10000, 60000),
	}
}

// Handle processes one envelope and returns the events to broadcast. Items
// are independent: a failing item is logged and skipped, its siblings still
// run. An empty envelope is a no-op.
func (d *Dispatcher) Handle(env *codec.Envelope) []BroadcastEvent {
	if env == nil || env.Count <= 0 {
		return nil
	}
	t := monitor.NewTask()

	dev, err := d.ensureDevice(env.IMEI)
	if err != nil {
		zap.L().Error("failed to resolve device record",
			zap.String("imei", env.IMEI),
			zap.Error(err))
		d.mon.CompleteTask(t, false)
		return nil
	}

	var events []BroadcastEvent
	failed := 0
	for _, item := range env.Items {
		switch item.Tag {
		case codec.TagGNSS:
			ev, err := d.handleGNSS(dev, &item)
			if err != nil {
				failed++
				zap.L().Error("GNSS item failed",
					zap.String("imei", env.IMEI),
					zap.Error(err))
				continue
			}
			events = append(events, *ev)
		case codec.TagBattery:
			if err := d.handleBattery(dev, &item); err != nil {
				failed++
				zap.L().Error("battery item failed",
					zap.String("imei", env.IMEI),
					zap.Error(err))
			}
		case codec.TagSensor, codec.TagIOT:
			// observational only for now
			zap.L().Debug("unprocessed telemetry item",
				zap.String("imei", env.IMEI),
				zap.String("tag", item.Tag))
		default:
			// unknown tags are ignored for forward compatibility
		}
	}

	d.mon.CompleteTask(t, failed == 0)
	return events
}

// ensureDevice creates the record on first sighting of an IMEI and refreshes
// the last-connection time on every later one.
func (d *Dispatcher) ensureDevice(imei string) (*device.Device, error) {
	dev, err := d.devices.FindByIMEI(imei)
	if errors.Is(err, device.ErrNotFound) {
		dev, err = d.devices.Create(imei)
		if err != nil {
			return nil, err
		}
		zap.L().Info("device registered", zap.String("imei", imei))
		return dev, nil
	}
	if err != nil {
		return nil, err
	}
	if err := d.devices.TouchLastConn(imei); err != nil {
		// stale timestamp only, keep dispatching
		zap.L().Warn("failed to refresh device last connection",
			zap.String("imei", imei),
			zap.Error(err))
	}
	return dev, nil
}

func (d *Dispatcher) handleGNSS(dev *device.Device, item *codec.Item) (*BroadcastEvent, error) {
	pos, err := item.DecodeGNSS()
	if err != nil {
		return nil, err
	}
	if err := d.samples.CreateSample(dev.ID, pos, data.KindGPS); err != nil {
		return nil, err
	}
	// groups are read fresh per item so authorization never goes stale
	groups, err := d.devices.GroupIDs(dev.ID)
	if err != nil {
		return nil, err
	}
	return &BroadcastEvent{
		Type: EventTypeGPS,
		Data: GPSPayload{
			IMEI:      dev.IMEI,
			Longitude: pos.Longitude,
			Latitude:  pos.Latitude,
			Time:      pos.Time,
		},
		DeviceGroups: groups,
	}, nil
}

// handleBattery persists the sample and overwrites the device's battery
// level. No broadcast: subscribers pull battery state over the query API.
func (d *Dispatcher) handleBattery(dev *device.Device, item *codec.Item) error {
	lvl, err := item.DecodeBattery()
	if err != nil {
		return err
	}
	if err := d.samples.CreateSample(dev.ID, lvl.Percent, data.KindBattery); err != nil {
		return err
	}
	return d.devices.UpdateBattery(dev.IMEI, lvl.Percent)
}
